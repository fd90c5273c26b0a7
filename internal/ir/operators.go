package ir

import (
	"fmt"
	"strings"
)

// Operator is one IR instruction. The set of implementations is closed;
// backends dispatch with a type switch and reject anything they do not know.
type Operator interface {
	// Defs lists the expressions written by the operator.
	Defs() []Expression
	// Uses lists the expressions read by the operator.
	Uses() []Expression
	String() string
	isOperator()
}

type operator struct{}

func (operator) isOperator()        {}
func (operator) Defs() []Expression { return nil }
func (operator) Uses() []Expression { return nil }

func list(exprs ...Expression) []Expression {
	out := exprs[:0:0]
	for _, e := range exprs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func join(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

type Nop struct{ operator }

func (*Nop) String() string { return "nop" }

type ActivationEvent uint8

const (
	EventEnteringException ActivationEvent = iota
	EventNonReachable
	EventAddressTaken
)

func (e ActivationEvent) String() string {
	switch e {
	case EventEnteringException:
		return "entering_exception"
	case EventNonReachable:
		return "non_reachable"
	case EventAddressTaken:
		return "address_taken"
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// ActivationRecordEvent marks a point of interest in the frame's life
// without emitting code.
type ActivationRecordEvent struct {
	operator
	Event ActivationEvent
}

func (o *ActivationRecordEvent) String() string { return "event " + o.Event.String() }

// SingleAssignment copies Src into Dst. Word selects the half of a double
// register when moving between a double and an integer register.
type SingleAssignment struct {
	operator
	Dst, Src Expression
	Word     int
}

func (o *SingleAssignment) Defs() []Expression { return list(o.Dst) }
func (o *SingleAssignment) Uses() []Expression { return list(o.Src) }
func (o *SingleAssignment) String() string {
	return fmt.Sprintf("mov %s, %s", o.Dst, o.Src)
}

// AddressAssignment loads the address of a stack location or symbol.
type AddressAssignment struct {
	operator
	Dst *PhysicalRegister
	Src Expression
}

func (o *AddressAssignment) Defs() []Expression { return list(o.Dst) }
func (o *AddressAssignment) Uses() []Expression { return nil }
func (o *AddressAssignment) String() string {
	return fmt.Sprintf("addr %s, %s", o.Dst, o.Src)
}

type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
)

var binaryOpNames = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "sar"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", uint8(op))
}

func ParseBinaryOp(name string) (BinaryOp, bool) {
	for i, n := range binaryOpNames {
		if n == name {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// Binary computes Dst = Lhs op Rhs. CarryIn folds the carry flag into an add
// or subtract; SetCarry makes the operator update the flags. Long multiplies
// write the high word into DstHi.
type Binary struct {
	operator
	Op       BinaryOp
	Dst      Expression
	DstHi    Expression
	Lhs, Rhs Expression
	Signed   bool
	CarryIn  bool
	SetCarry bool
}

func (o *Binary) Long() bool { return o.DstHi != nil }

func (o *Binary) Defs() []Expression { return list(o.Dst, o.DstHi) }
func (o *Binary) Uses() []Expression { return list(o.Lhs, o.Rhs) }
func (o *Binary) String() string {
	name := o.Op.String()
	if o.CarryIn {
		name += "c"
	}
	if o.SetCarry {
		name += "s"
	}
	return fmt.Sprintf("%s %s", name, join(append(o.Defs(), o.Uses()...)))
}

type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
	OpAbs
	OpSqrt
)

var unaryOpNames = [...]string{"neg", "not", "abs", "sqrt"}

func (op UnaryOp) String() string {
	if int(op) < len(unaryOpNames) {
		return unaryOpNames[op]
	}
	return fmt.Sprintf("unop(%d)", uint8(op))
}

func ParseUnaryOp(name string) (UnaryOp, bool) {
	for i, n := range unaryOpNames {
		if n == name {
			return UnaryOp(i), true
		}
	}
	return 0, false
}

type Unary struct {
	operator
	Op       UnaryOp
	Dst, Src Expression
}

func (o *Unary) Defs() []Expression { return list(o.Dst) }
func (o *Unary) Uses() []Expression { return list(o.Src) }
func (o *Unary) String() string     { return fmt.Sprintf("%s %s, %s", o.Op, o.Dst, o.Src) }

// ZeroExtend, SignExtend and Truncate keep the low Bytes bytes of Src.
type ZeroExtend struct {
	operator
	Dst, Src Expression
	Bytes    int
}

func (o *ZeroExtend) Defs() []Expression { return list(o.Dst) }
func (o *ZeroExtend) Uses() []Expression { return list(o.Src) }
func (o *ZeroExtend) String() string {
	return fmt.Sprintf("zext%d %s, %s", o.Bytes*8, o.Dst, o.Src)
}

type SignExtend struct {
	operator
	Dst, Src Expression
	Bytes    int
}

func (o *SignExtend) Defs() []Expression { return list(o.Dst) }
func (o *SignExtend) Uses() []Expression { return list(o.Src) }
func (o *SignExtend) String() string {
	return fmt.Sprintf("sext%d %s, %s", o.Bytes*8, o.Dst, o.Src)
}

type Truncate struct {
	operator
	Dst, Src Expression
	Bytes    int
}

func (o *Truncate) Defs() []Expression { return list(o.Dst) }
func (o *Truncate) Uses() []Expression { return list(o.Src) }
func (o *Truncate) String() string {
	return fmt.Sprintf("trunc%d %s, %s", o.Bytes*8, o.Dst, o.Src)
}

// Convert changes representation between integer and floating point types,
// or between float precisions, according to the operand types.
type Convert struct {
	operator
	Dst, Src Expression
}

func (o *Convert) Defs() []Expression { return list(o.Dst) }
func (o *Convert) Uses() []Expression { return list(o.Src) }
func (o *Convert) String() string     { return fmt.Sprintf("cvt %s, %s", o.Dst, o.Src) }

// Compare sets the condition codes from Lhs - Rhs.
type Compare struct {
	operator
	Lhs, Rhs Expression
}

func (o *Compare) Uses() []Expression { return list(o.Lhs, o.Rhs) }
func (o *Compare) String() string     { return fmt.Sprintf("cmp %s, %s", o.Lhs, o.Rhs) }

// BitTest sets the condition codes from Lhs & Rhs.
type BitTest struct {
	operator
	Lhs, Rhs Expression
}

func (o *BitTest) Uses() []Expression { return list(o.Lhs, o.Rhs) }
func (o *BitTest) String() string     { return fmt.Sprintf("tst %s, %s", o.Lhs, o.Rhs) }

// SetIfCondition writes 1 to Dst when Cond holds and 0 otherwise.
type SetIfCondition struct {
	operator
	Cond Condition
	Dst  Expression
}

func (o *SetIfCondition) Defs() []Expression { return list(o.Dst) }
func (o *SetIfCondition) String() string {
	return fmt.Sprintf("set.%s %s", o.Cond, o.Dst)
}

// Control operators terminate a basic block.
type Control interface {
	Operator
	Successors() []*BasicBlock
}

type ConditionalControl struct {
	operator
	Cond     Condition
	Taken    *BasicBlock
	NotTaken *BasicBlock
}

func (o *ConditionalControl) Successors() []*BasicBlock {
	return []*BasicBlock{o.Taken, o.NotTaken}
}

func (o *ConditionalControl) String() string {
	return fmt.Sprintf("b.%s %s, %s", o.Cond, o.Taken.Name, o.NotTaken.Name)
}

type UnconditionalControl struct {
	operator
	Target *BasicBlock
}

func (o *UnconditionalControl) Successors() []*BasicBlock { return []*BasicBlock{o.Target} }
func (o *UnconditionalControl) String() string            { return "br " + o.Target.Name }

// MultiWayControl jumps to Targets[Index], or to Default when Index is out
// of range (unsigned).
type MultiWayControl struct {
	operator
	Index   Expression
	Targets []*BasicBlock
	Default *BasicBlock
}

func (o *MultiWayControl) Uses() []Expression { return list(o.Index) }

func (o *MultiWayControl) Successors() []*BasicBlock {
	out := append([]*BasicBlock{o.Default}, o.Targets...)
	return out
}

func (o *MultiWayControl) String() string {
	names := make([]string, len(o.Targets))
	for i, t := range o.Targets {
		names[i] = t.Name
	}
	return fmt.Sprintf("switch %s, %s, [%s]", o.Index, o.Default.Name, strings.Join(names, ", "))
}

// DeadControl ends a block that can never fall off its end.
type DeadControl struct{ operator }

func (*DeadControl) Successors() []*BasicBlock { return nil }
func (*DeadControl) String() string            { return "dead" }

// ReturnControl leaves the method. Value, when set, is the register the
// result was placed in and only serves liveness.
type ReturnControl struct {
	operator
	Value Expression
}

func (o *ReturnControl) Uses() []Expression        { return list(o.Value) }
func (*ReturnControl) Successors() []*BasicBlock { return nil }
func (o *ReturnControl) String() string {
	if o.Value != nil {
		return "ret " + o.Value.String()
	}
	return "ret"
}

// LoadIndirect reads Dst from [Base + Offset]. The access width follows the
// type of Dst.
type LoadIndirect struct {
	operator
	Dst    Expression
	Base   Expression
	Offset int32
}

func (o *LoadIndirect) Defs() []Expression { return list(o.Dst) }
func (o *LoadIndirect) Uses() []Expression { return list(o.Base) }
func (o *LoadIndirect) String() string {
	return fmt.Sprintf("load %s, %s, %d", o.Dst, o.Base, o.Offset)
}

// StoreIndirect writes Src to [Base + Offset]. The access width follows the
// type of Src.
type StoreIndirect struct {
	operator
	Base   Expression
	Offset int32
	Src    Expression
}

func (o *StoreIndirect) Uses() []Expression { return list(o.Base, o.Src) }
func (o *StoreIndirect) String() string {
	return fmt.Sprintf("store %s, %d, %s", o.Base, o.Offset, o.Src)
}

// Call is implemented by the two call operators.
type Call interface {
	Operator
	CallResults() []Expression
	CallArguments() []Expression
}

// DirectCall branches with link to a method of the program. Results and Args
// are already in their calling-convention locations.
type DirectCall struct {
	operator
	Target  string
	Results []Expression
	Args    []Expression
}

func (o *DirectCall) Defs() []Expression          { return o.Results }
func (o *DirectCall) Uses() []Expression          { return o.Args }
func (o *DirectCall) CallResults() []Expression   { return o.Results }
func (o *DirectCall) CallArguments() []Expression { return o.Args }
func (o *DirectCall) String() string {
	return fmt.Sprintf("call %s(%s)", o.Target, join(o.Args))
}

type IndirectCall struct {
	operator
	Target  Expression
	Results []Expression
	Args    []Expression
}

func (o *IndirectCall) Defs() []Expression          { return o.Results }
func (o *IndirectCall) Uses() []Expression          { return append(list(o.Target), o.Args...) }
func (o *IndirectCall) CallResults() []Expression   { return o.Results }
func (o *IndirectCall) CallArguments() []Expression { return o.Args }
func (o *IndirectCall) String() string {
	return fmt.Sprintf("callr %s(%s)", o.Target, join(o.Args))
}

// MoveStackPointer allocates (Enter) or releases the OUT and LOCAL regions
// of the frame.
type MoveStackPointer struct {
	operator
	Enter bool
}

func (o *MoveStackPointer) String() string {
	if o.Enter {
		return "enter"
	}
	return "leave"
}

// MoveIntegerRegisters is a block transfer of integer registers through sp.
// With AddComputed the platform's save set is merged into Registers.
type MoveIntegerRegisters struct {
	operator
	Load        bool
	Registers   uint16
	AddComputed bool
}

func (o *MoveIntegerRegisters) String() string {
	name := "push"
	if o.Load {
		name = "pop"
	}
	if o.AddComputed {
		name += "+"
	}
	return fmt.Sprintf("%s %#04x", name, o.Registers)
}

// MoveFloatingPointRegisters transfers the double registers covering single
// indices Low..High+1. With AddComputed the range is widened to the saved FP
// registers.
type MoveFloatingPointRegisters struct {
	operator
	Load        bool
	Low, High   int
	AddComputed bool
}

func (o *MoveFloatingPointRegisters) String() string {
	name := "pushfp"
	if o.Load {
		name = "popfp"
	}
	if o.AddComputed {
		name += "+"
	}
	return fmt.Sprintf("%s s%d-s%d", name, o.Low, o.High)
}

type Breakpoint struct {
	operator
	Value uint32
}

func (o *Breakpoint) String() string { return fmt.Sprintf("bkpt %#x", o.Value) }

type MoveFromStatusRegister struct {
	operator
	Dst   Expression
	Saved bool
}

func (o *MoveFromStatusRegister) Defs() []Expression { return list(o.Dst) }
func (o *MoveFromStatusRegister) String() string {
	return fmt.Sprintf("mrs %s, %s", o.Dst, statusName(o.Saved))
}

// MoveToStatusRegister writes the PSR fields selected by Fields (bit 0 is
// control, 3 is flags).
type MoveToStatusRegister struct {
	operator
	Src    Expression
	Saved  bool
	Fields uint8
}

func (o *MoveToStatusRegister) Uses() []Expression { return list(o.Src) }
func (o *MoveToStatusRegister) String() string {
	return fmt.Sprintf("msr %s/%#x, %s", statusName(o.Saved), o.Fields, o.Src)
}

func statusName(saved bool) string {
	if saved {
		return "spsr"
	}
	return "cpsr"
}

// CoprocessorOperand names a coprocessor register transfer.
type CoprocessorOperand struct {
	CpNum, Op1, CRn, CRm, Op2 uint32
}

func (c CoprocessorOperand) String() string {
	return fmt.Sprintf("p%d, %d, c%d, c%d, %d", c.CpNum, c.Op1, c.CRn, c.CRm, c.Op2)
}

type MoveToCoprocessor struct {
	operator
	CoprocessorOperand
	Src Expression
}

func (o *MoveToCoprocessor) Uses() []Expression { return list(o.Src) }
func (o *MoveToCoprocessor) String() string {
	return fmt.Sprintf("mcr %s, %s", o.CoprocessorOperand, o.Src)
}

type MoveFromCoprocessor struct {
	operator
	CoprocessorOperand
	Dst Expression
}

func (o *MoveFromCoprocessor) Defs() []Expression { return list(o.Dst) }
func (o *MoveFromCoprocessor) String() string {
	return fmt.Sprintf("mrc %s, %s", o.CoprocessorOperand, o.Dst)
}

// IntrinsicCall is a call to a well-known helper that the backend rewrites
// into concrete operators before emission.
type IntrinsicCall struct {
	operator
	Name    string
	Results []Expression
	Args    []Expression
}

func (o *IntrinsicCall) Defs() []Expression { return o.Results }
func (o *IntrinsicCall) Uses() []Expression { return o.Args }
func (o *IntrinsicCall) String() string {
	return fmt.Sprintf("intrinsic %s(%s)", o.Name, join(o.Args))
}
