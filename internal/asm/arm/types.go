package arm

import (
	"fmt"

	"github.com/tinyrange/armcc/internal/asm"
)

// Reg is an integer register number as it appears in instruction fields.
type Reg uint32

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	SP = R13
	LR = R14
	PC = R15
)

func (r Reg) validate() error {
	if r > R15 {
		return fmt.Errorf("arm asm: invalid register r%d", uint32(r))
	}
	return nil
}

func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	default:
		return fmt.Sprintf("r%d", uint32(r))
	}
}

// RegList is a 16-bit register mask as used by LDM/STM.
type RegList uint16

func Regs(regs ...Reg) RegList {
	var l RegList
	for _, r := range regs {
		l |= 1 << (r & 0xF)
	}
	return l
}

func (l RegList) Has(r Reg) bool {
	return l&(1<<(r&0xF)) != 0
}

// Memory represents [base, #disp] addressing for single data transfers.
type Memory struct {
	base Reg
	disp int32
}

func Mem(base Reg) Memory {
	return Memory{base: base}
}

func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error {
	return f(ctx)
}
