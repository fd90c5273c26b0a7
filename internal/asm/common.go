package asm

import (
	"encoding/binary"
	"fmt"
)

type Context interface {
	EmitBytes(data []byte)

	GetLabel(label Label) (int, bool)
	SetLabel(label Label)
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var (
	_ Fragment = Group{}
)

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

type Label string

type labelDef struct {
	label Label
}

func MarkLabel(label Label) Fragment {
	return &labelDef{label: label}
}

func (l *labelDef) Emit(ctx Context) error {
	if _, exists := ctx.GetLabel(l.label); exists {
		return fmt.Errorf("label %q already defined", l.label)
	}
	ctx.SetLabel(l.label)
	return nil
}

// Program is a linked image: code bytes starting at Base plus the offsets of
// every 32-bit word holding an absolute address.
type Program struct {
	base        uint32
	code        []byte
	relocations []int
	symbols     map[Label]uint32
}

func (p Program) Base() uint32 {
	return p.base
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Relocations() []int {
	return append([]int(nil), p.relocations...)
}

// Symbol returns the absolute address assigned to label.
func (p Program) Symbol(label Label) (uint32, bool) {
	addr, ok := p.symbols[label]
	return addr, ok
}

// RelocatedCopy returns the code as if it had been linked at base instead of
// p.Base().
func (p Program) RelocatedCopy(base uint32) []byte {
	out := append([]byte(nil), p.code...)
	delta := base - p.base
	for _, off := range p.relocations {
		if off < 0 || off+4 > len(out) {
			continue
		}
		val := binary.LittleEndian.Uint32(out[off:])
		binary.LittleEndian.PutUint32(out[off:], val+delta)
	}
	return out
}

func NewProgram(base uint32, code []byte, relocations []int, symbols map[Label]uint32) Program {
	syms := make(map[Label]uint32, len(symbols))
	for k, v := range symbols {
		syms[k] = v
	}
	return Program{
		base:        base,
		code:        append([]byte(nil), code...),
		relocations: append([]int(nil), relocations...),
		symbols:     syms,
	}
}
