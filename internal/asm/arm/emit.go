package arm

import (
	"fmt"

	"github.com/tinyrange/armcc/internal/asm"
)

// EmitProgram lowers a fragment into ARM machine code linked at base. Every
// label referenced by a fixup must be defined by the fragment.
func EmitProgram(fragment asm.Fragment, base uint32) (asm.Program, error) {
	if fragment == nil {
		return asm.Program{}, fmt.Errorf("arm asm: fragment is nil")
	}

	ctx := NewContext("")
	if err := fragment.Emit(ctx); err != nil {
		return asm.Program{}, err
	}
	return ctx.Finish().Link(base)
}

// EmitBytes is a convenience helper returning the raw instruction stream for a
// fragment linked at address zero.
func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment, 0)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}
