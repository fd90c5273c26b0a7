package arm

import (
	"fmt"

	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
)

// Direction says which side of a call a state describes.
type Direction uint8

const (
	Caller Direction = iota
	Callee
)

func (d Direction) String() string {
	if d == Caller {
		return "caller"
	}
	return "callee"
}

// FragmentKind names the reason a location is requested from a CallState.
type FragmentKind uint8

const (
	CopyIncomingArgumentFromPhysicalToPseudoRegister FragmentKind = iota
	AllocatePhysicalRegisterForArgument
	AllocatePhysicalRegisterForReturnValue
	CopyIncomingArgumentFromStackToPseudoRegister
	AllocateStackInLocation
	AllocateStackLocalLocation
	AllocateStackOutLocation
)

// Location is where one fragment of a value lives: a register, or a slot
// of a stack region.
type Location struct {
	Register  *ir.RegisterDescriptor
	Placement ir.StackPlacement
	Slot      int
}

func (l Location) IsRegister() bool {
	return l.Register != nil
}

// Expression turns the location into an IR operand of type typ.
func (l Location) Expression(typ ir.Type) ir.Expression {
	if l.Register != nil {
		return ir.Reg(l.Register, typ)
	}
	return ir.Stack(l.Placement, "", l.Slot, typ)
}

func (l Location) String() string {
	if l.Register != nil {
		return l.Register.Name
	}
	return fmt.Sprintf("%s:%d", l.Placement, l.Slot)
}

// CallingConvention holds the register budgets, in words.
type CallingConvention struct {
	regs           *RegisterSet
	integerWords   int
	floatWords     int
	wordsPerResult int
}

func NewCallingConvention(regs *RegisterSet, c config.Convention) *CallingConvention {
	fp := 0
	if c.FloatWords != nil && regs.HasVFP() {
		fp = *c.FloatWords
	}
	return &CallingConvention{
		regs:           regs,
		integerWords:   c.IntegerWords,
		floatWords:     fp,
		wordsPerResult: c.WordsPerResult,
	}
}

func (c *CallingConvention) IntegerWords() int { return c.integerWords }
func (c *CallingConvention) FloatWords() int   { return c.floatWords }

// usesFP reports whether values of typ travel in VFP registers.
func (c *CallingConvention) usesFP(typ ir.Type) bool {
	return typ.IsFloat() && c.regs.HasVFP()
}

// NewCallState starts a fresh assignment walk.
func (c *CallingConvention) NewCallState(dir Direction) *CallState {
	return &CallState{cc: c, Direction: dir}
}

// CallState carries the cursors of one assignment walk.
type CallState struct {
	cc        *CallingConvention
	Direction Direction

	nextInteger       int
	nextFloat         int
	nextIntegerResult int
	nextFloatResult   int
	nextStackIn       int
	nextStackLocal    int
	nextStackOut      int
}

// CanMapToRegister reports whether an argument of typ fits in the remaining
// register budget of its file. A double is checked from the next even
// register; the cursor itself is left alone so an odd single stays free for
// a later float.
func (s *CallState) CanMapToRegister(typ ir.Type) bool {
	words := typ.Words()
	if s.cc.usesFP(typ) {
		n := s.nextFloat
		if words == 2 && n%2 != 0 {
			n++
		}
		return words <= s.cc.floatWords && n+words <= s.cc.floatWords
	}
	return words <= s.cc.integerWords && s.nextInteger+words <= s.cc.integerWords
}

// CanMapResultToRegister reports whether a result of typ is returned in
// registers.
func (s *CallState) CanMapResultToRegister(typ ir.Type) bool {
	return typ.Words() <= s.cc.wordsPerResult
}

// GetNextIndex advances the cursor selected by kind and returns the
// location for one fragment of a value of typ.
func (s *CallState) GetNextIndex(kind FragmentKind, typ ir.Type, fragment int) (Location, error) {
	switch kind {
	case CopyIncomingArgumentFromPhysicalToPseudoRegister, AllocatePhysicalRegisterForArgument:
		if s.cc.usesFP(typ) {
			return s.nextFP(typ, &s.nextFloat)
		}
		return s.nextInt(&s.nextInteger)

	case AllocatePhysicalRegisterForReturnValue:
		if s.cc.usesFP(typ) {
			return s.nextFP(typ, &s.nextFloatResult)
		}
		return s.nextInt(&s.nextIntegerResult)

	case CopyIncomingArgumentFromStackToPseudoRegister, AllocateStackInLocation:
		slot := s.nextStackIn
		s.nextStackIn++
		return Location{Placement: ir.PlacementIn, Slot: slot}, nil

	case AllocateStackLocalLocation:
		slot := s.nextStackLocal
		s.nextStackLocal++
		return Location{Placement: ir.PlacementLocal, Slot: slot}, nil

	case AllocateStackOutLocation:
		slot := s.nextStackOut
		s.nextStackOut++
		return Location{Placement: ir.PlacementOut, Slot: slot}, nil
	}
	return Location{}, fmt.Errorf("arm: fragment kind %d for %s fragment %d: %w", kind, typ, fragment, ir.ErrTypeConsistency)
}

func (s *CallState) nextInt(cursor *int) (Location, error) {
	n := *cursor
	if n > 15 {
		return Location{}, fmt.Errorf("arm: integer cursor %d past r15: %w", n, ir.ErrInternal)
	}
	*cursor = n + 1
	return Location{Register: s.cc.regs.Integer(armasm.Reg(n))}, nil
}

func (s *CallState) nextFP(typ ir.Type, cursor *int) (Location, error) {
	n := *cursor
	var reg *ir.RegisterDescriptor
	if typ.Words() == 2 {
		if n%2 != 0 {
			n++
		}
		reg = s.cc.regs.Double(n / 2)
		*cursor = n + 2
	} else {
		reg = s.cc.regs.Single(n)
		*cursor = n + 1
	}
	if reg == nil {
		return Location{}, fmt.Errorf("arm: fp cursor %d has no register: %w", n, ir.ErrInternal)
	}
	return Location{Register: reg}, nil
}

// StackInWords, StackOutWords and StackLocalWords report how many slots the
// walk consumed.
func (s *CallState) StackInWords() int    { return s.nextStackIn }
func (s *CallState) StackOutWords() int   { return s.nextStackOut }
func (s *CallState) StackLocalWords() int { return s.nextStackLocal }

// AssignArgument returns one location per fragment of an argument: a
// single FP register for VFP values, otherwise one per word.
func (s *CallState) AssignArgument(typ ir.Type) ([]Location, error) {
	words := typ.Words()
	if s.CanMapToRegister(typ) {
		if s.cc.usesFP(typ) {
			loc, err := s.GetNextIndex(AllocatePhysicalRegisterForArgument, typ, 0)
			if err != nil {
				return nil, err
			}
			return []Location{loc}, nil
		}
		out := make([]Location, 0, words)
		for i := 0; i < words; i++ {
			loc, err := s.GetNextIndex(AllocatePhysicalRegisterForArgument, typ, i)
			if err != nil {
				return nil, err
			}
			out = append(out, loc)
		}
		return out, nil
	}

	kind := AllocateStackOutLocation
	if s.Direction == Callee {
		kind = AllocateStackInLocation
	}
	out := make([]Location, 0, words)
	for i := 0; i < words; i++ {
		loc, err := s.GetNextIndex(kind, typ, i)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// AssignReturnValue returns the locations a result of typ comes back in, nil
// for void. Results too large for registers take one stack slot per word
// provided by the caller: OUT slots at the call site, IN slots in the callee.
func (s *CallState) AssignReturnValue(typ ir.Type) ([]Location, error) {
	if typ.Kind == ir.KindVoid {
		return nil, nil
	}
	if !s.CanMapResultToRegister(typ) {
		kind := AllocateStackOutLocation
		if s.Direction == Callee {
			kind = AllocateStackInLocation
		}
		out := make([]Location, 0, typ.Words())
		for i := 0; i < typ.Words(); i++ {
			loc, err := s.GetNextIndex(kind, typ, i)
			if err != nil {
				return nil, err
			}
			out = append(out, loc)
		}
		return out, nil
	}
	if s.cc.usesFP(typ) {
		loc, err := s.GetNextIndex(AllocatePhysicalRegisterForReturnValue, typ, 0)
		if err != nil {
			return nil, err
		}
		return []Location{loc}, nil
	}
	var out []Location
	for i := 0; i < typ.Words(); i++ {
		loc, err := s.GetNextIndex(AllocatePhysicalRegisterForReturnValue, typ, i)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// AssignSignature walks a signature on one state: the result first, so a
// result passed in memory takes the lowest stack slots, then every argument.
func (c *CallingConvention) AssignSignature(dir Direction, result ir.Type, params []ir.Type) ([]Location, [][]Location, *CallState, error) {
	state := c.NewCallState(dir)
	ret, err := state.AssignReturnValue(result)
	if err != nil {
		return nil, nil, nil, err
	}
	out := make([][]Location, 0, len(params))
	for _, p := range params {
		locs, err := state.AssignArgument(p)
		if err != nil {
			return nil, nil, nil, err
		}
		out = append(out, locs)
	}
	return ret, out, state, nil
}

// IsScratched reports whether the convention lets a call clobber reg.
func (c *CallingConvention) IsScratched(reg *ir.RegisterDescriptor) bool {
	switch reg.File {
	case ir.FileInteger:
		n := armasm.Reg(reg.Encoding)
		return int(n) < c.integerWords || n == ScratchInteger || n == armasm.LR
	case ir.FileFloatingPoint:
		return singleIndex(reg) < c.floatWords || reg.Is(ir.Scratch)
	case ir.FileConditionCodes:
		return true
	}
	return false
}

// ShouldSaveRegister reports whether a method that modifies reg must
// preserve it for its caller.
func (c *CallingConvention) ShouldSaveRegister(reg *ir.RegisterDescriptor) bool {
	if reg.Is(ir.Special) || reg.File == ir.FileSystem || reg.File == ir.FileStatus {
		return false
	}
	return !c.IsScratched(reg)
}

// CollectExpressionsToInvalidate lists every location whose value a call
// destroys. The order is fixed: the call's results, the callee's formal
// results, the arguments, the registers the convention scratches, the
// condition codes, then address-taken stack locations.
func (c *CallingConvention) CollectExpressionsToInvalidate(call ir.Call, result ir.Type, addressTaken []*ir.StackLocation) ([]ir.Expression, error) {
	var out []ir.Expression
	out = append(out, call.CallResults()...)

	formal, err := c.NewCallState(Caller).AssignReturnValue(result)
	if err != nil {
		return nil, err
	}
	for _, loc := range formal {
		out = append(out, loc.Expression(result))
	}

	out = append(out, call.CallArguments()...)

	for _, reg := range c.regs.All() {
		if reg.File != ir.FileInteger && reg.File != ir.FileFloatingPoint {
			continue
		}
		if c.IsScratched(reg) {
			out = append(out, ir.Reg(reg, registerType(reg)))
		}
	}

	out = append(out, ir.Reg(c.regs.ConditionCodes(), ir.Void))
	for _, loc := range addressTaken {
		out = append(out, loc)
	}
	return out, nil
}

// registerType is the natural type of a register's content.
func registerType(reg *ir.RegisterDescriptor) ir.Type {
	switch {
	case reg.File == ir.FileFloatingPoint && reg.Double:
		return ir.Float64
	case reg.File == ir.FileFloatingPoint:
		return ir.Float32
	}
	return ir.Uint32
}
