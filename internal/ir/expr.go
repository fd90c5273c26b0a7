package ir

import (
	"fmt"
	"math"
)

// Expression is an operand of an operator. The set is closed: physical
// registers, stack locations and constants.
type Expression interface {
	Type() Type
	String() string
	isExpression()
}

// PhysicalRegister is a value held in a register. Register allocation has
// already happened by the time the backend sees the IR.
type PhysicalRegister struct {
	Reg *RegisterDescriptor
	Typ Type
}

func Reg(reg *RegisterDescriptor, typ Type) *PhysicalRegister {
	return &PhysicalRegister{Reg: reg, Typ: typ}
}

func (p *PhysicalRegister) Type() Type     { return p.Typ }
func (p *PhysicalRegister) String() string { return p.Reg.Name }
func (*PhysicalRegister) isExpression()    {}

type StackPlacement uint8

const (
	// PlacementIn slots hold incoming arguments above the saved registers.
	PlacementIn StackPlacement = iota
	// PlacementLocal slots are spill and local storage.
	PlacementLocal
	// PlacementOut slots hold outgoing arguments at the bottom of the frame.
	PlacementOut
)

func (p StackPlacement) String() string {
	switch p {
	case PlacementIn:
		return "in"
	case PlacementLocal:
		return "local"
	case PlacementOut:
		return "out"
	}
	return fmt.Sprintf("placement(%d)", uint8(p))
}

// StackLocation is a word-aligned slot in the current frame. Index is the
// calling-convention slot for in/out locations and the colour assigned by
// stack layout for locals. Offset is the final byte offset from sp and is
// negative until the frame has been laid out.
type StackLocation struct {
	Placement    StackPlacement
	Name         string
	Index        int
	Typ          Type
	AddressTaken bool
	Offset       int
}

func Stack(placement StackPlacement, name string, index int, typ Type) *StackLocation {
	return &StackLocation{Placement: placement, Name: name, Index: index, Typ: typ, Offset: -1}
}

func (s *StackLocation) Type() Type { return s.Typ }

func (s *StackLocation) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s:%s", s.Placement, s.Name)
	}
	return fmt.Sprintf("%s:%d", s.Placement, s.Index)
}

func (*StackLocation) isExpression() {}

// Constant is an immediate value, or the address of a symbol when Symbol is
// set.
type Constant struct {
	Typ    Type
	Value  uint64
	Symbol string
}

func Int(typ Type, v int64) *Constant {
	return &Constant{Typ: typ, Value: uint64(v)}
}

func Float(typ Type, v float64) *Constant {
	if typ.Kind == KindFloat32 {
		return &Constant{Typ: typ, Value: uint64(math.Float32bits(float32(v)))}
	}
	return &Constant{Typ: typ, Value: math.Float64bits(v)}
}

func AddressOf(symbol string) *Constant {
	return &Constant{Typ: Pointer, Symbol: symbol}
}

func (c *Constant) Type() Type { return c.Typ }

// Word returns the idx-th 32-bit word of the value, low word first.
func (c *Constant) Word(idx int) uint32 {
	return uint32(c.Value >> (32 * idx))
}

func (c *Constant) IsZero() bool {
	return c.Symbol == "" && c.Value == 0
}

func (c *Constant) String() string {
	if c.Symbol != "" {
		return "@" + c.Symbol
	}
	switch c.Typ.Kind {
	case KindFloat32:
		return fmt.Sprintf("#%g", math.Float32frombits(uint32(c.Value)))
	case KindFloat64:
		return fmt.Sprintf("#%g", math.Float64frombits(c.Value))
	}
	if c.Typ.IsSigned() {
		return fmt.Sprintf("#%d", int64(c.Value))
	}
	return fmt.Sprintf("#%#x", c.Value)
}

func (*Constant) isExpression() {}

// AsRegister returns the register behind e, if any.
func AsRegister(e Expression) (*RegisterDescriptor, bool) {
	if p, ok := e.(*PhysicalRegister); ok {
		return p.Reg, true
	}
	return nil, false
}
