package arm

import (
	"github.com/tinyrange/armcc/internal/asm"
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

// dispatch emits one operator. It reports whether the remaining operators of
// the block are unreachable.
func (s *CompilationState) dispatch(op ir.Operator) bool {
	if _, ok := op.(*ir.ReturnControl); !ok {
		if _, ok := op.(*ir.MoveIntegerRegisters); !ok {
			s.pcPopped = false
		}
	}

	switch o := op.(type) {
	case *ir.Nop:
	case *ir.ActivationRecordEvent:
		return s.emitEvent(o)
	case *ir.SingleAssignment:
		s.emitAssignment(o)
	case *ir.AddressAssignment:
		s.emitAddressAssignment(o)
	case *ir.Binary:
		s.emitBinary(o)
	case *ir.Unary:
		s.emitUnary(o)
	case *ir.ZeroExtend:
		s.emitExtend(o.Dst, o.Src, o.Bytes, false)
	case *ir.SignExtend:
		s.emitExtend(o.Dst, o.Src, o.Bytes, true)
	case *ir.Truncate:
		s.emitExtend(o.Dst, o.Src, o.Bytes, o.Dst.Type().IsSigned())
	case *ir.Convert:
		s.emitConvert(o)
	case *ir.Compare:
		s.emitCompare(o)
	case *ir.BitTest:
		s.emitBitTest(o)
	case *ir.SetIfCondition:
		s.emitSetIfCondition(o)
	case *ir.ConditionalControl:
		s.emitConditionalControl(o)
	case *ir.UnconditionalControl:
		s.emitBranchToBlock(armasm.CondAL, o.Target)
	case *ir.MultiWayControl:
		s.emitMultiWay(o)
	case *ir.DeadControl:
		s.EnqueueOpcode(armasm.SoftwareInterrupt{Value: 0})
	case *ir.ReturnControl:
		s.emitReturn(o)
	case *ir.LoadIndirect:
		s.emitLoadIndirect(o)
	case *ir.StoreIndirect:
		s.emitStoreIndirect(o)
	case *ir.DirectCall:
		s.emitDirectCall(o)
	case *ir.IndirectCall:
		s.emitIndirectCall(o)
	case *ir.MoveStackPointer:
		s.emitMoveStackPointer(o)
	case *ir.MoveIntegerRegisters:
		s.emitMoveIntegerRegisters(o)
	case *ir.MoveFloatingPointRegisters:
		s.emitMoveFloatingPointRegisters(o)
	case *ir.Breakpoint:
		s.emitBreakpoint(o)
	case *ir.MoveFromStatusRegister:
		s.emitMoveFromStatus(o)
	case *ir.MoveToStatusRegister:
		s.emitMoveToStatus(o)
	case *ir.MoveToCoprocessor:
		s.emitCoprocessor(o.CoprocessorOperand, o.Src, false)
	case *ir.MoveFromCoprocessor:
		s.emitCoprocessor(o.CoprocessorOperand, o.Dst, true)
	case *ir.IntrinsicCall:
		s.failf("intrinsic %s reached the emitter: %w", o.Name, ir.ErrTypeConsistency)
	default:
		s.failf("operator %T: %w", op, ir.ErrNotImplemented)
	}
	return false
}

func (s *CompilationState) notImplemented(op ir.Operator) {
	s.failf("%s: %w", op, ir.ErrNotImplemented)
}

// mismatch reports operands from register files the operator cannot pair.
func (s *CompilationState) mismatch(op ir.Operator) {
	s.failf("%s: register files do not match: %w", op, ir.ErrTypeConsistency)
}

func (s *CompilationState) emitEvent(o *ir.ActivationRecordEvent) bool {
	switch o.Event {
	case ir.EventEnteringException:
		s.headerFlags |= codemap.InterruptHandler
	case ir.EventNonReachable:
		return true
	}
	return false
}

// withCondition returns op predicated on cond. Opcodes built by the
// emitter leave Cond unset, so the field is always overwritten.
func withCondition(op armasm.Encoder, cond armasm.Condition) armasm.Encoder {
	switch op.(type) {
	case armasm.Breakpoint, *armasm.Breakpoint:
		// BKPT is unconditional.
		return op
	}
	return conditioned{op: op, cond: cond}
}

// conditioned encodes op with its condition field replaced.
type conditioned struct {
	op   armasm.Encoder
	cond armasm.Condition
}

func (c conditioned) Encode() (uint32, error) {
	word, err := c.op.Encode()
	if err != nil {
		return 0, err
	}
	return word&^(0xF<<28) | uint32(c.cond&0xF)<<28, nil
}

var integerConditions = [...]armasm.Condition{
	ir.Always:               armasm.CondAL,
	ir.Equal:                armasm.CondEQ,
	ir.NotEqual:             armasm.CondNE,
	ir.SignedLess:           armasm.CondLT,
	ir.SignedLessOrEqual:    armasm.CondLE,
	ir.SignedGreater:        armasm.CondGT,
	ir.SignedGreaterOrEqual: armasm.CondGE,
	ir.UnsignedLower:        armasm.CondLO,
	ir.UnsignedLowerOrSame:  armasm.CondLS,
	ir.UnsignedHigher:       armasm.CondHI,
	ir.UnsignedHigherOrSame: armasm.CondHS,
	ir.Negative:             armasm.CondMI,
	ir.PositiveOrZero:       armasm.CondPL,
	ir.Overflow:             armasm.CondVS,
	ir.NoOverflow:           armasm.CondVC,
}

// armCondition maps an IR condition to an ARM predicate. After FMSTAT the
// ordered comparisons must be false for unordered operands.
func (s *CompilationState) armCondition(c ir.Condition) armasm.Condition {
	if s.floatFlags {
		switch c {
		case ir.SignedLess:
			return armasm.CondMI
		case ir.SignedLessOrEqual:
			return armasm.CondLS
		}
	}
	if int(c) < len(integerConditions) {
		return integerConditions[c]
	}
	s.failf("condition %s: %w", c, ir.ErrNotImplemented)
	return armasm.CondAL
}

func asInt(e ir.Expression) (armasm.Reg, bool) {
	r, ok := ir.AsRegister(e)
	if !ok || r.File != ir.FileInteger {
		return 0, false
	}
	return intReg(r), true
}

func asFP(e ir.Expression) (*ir.RegisterDescriptor, bool) {
	r, ok := ir.AsRegister(e)
	if !ok || r.File != ir.FileFloatingPoint {
		return nil, false
	}
	return r, true
}

func asConstant(e ir.Expression) (*ir.Constant, bool) {
	c, ok := e.(*ir.Constant)
	return c, ok
}

func (s *CompilationState) noteConstant(l ConstantLevel) {
	s.current.constant = max(s.current.constant, l)
}

func (s *CompilationState) noteBranch(l BranchLevel) {
	s.current.branch = max(s.current.branch, l)
}

// loadConstant materialises value in rd at the operator's constant level.
func (s *CompilationState) loadConstant(rd armasm.Reg, value uint32) {
	initial := ConstantSmallLoad
	if _, _, _, ok := armasm.EncodeImmediateOrInverted(value); ok {
		initial = ConstantImmediate
	}
	level := s.levels.constant(s.current.op, initial)
	if level == ConstantImmediate {
		s.noteConstant(level)
		s.emit(armasm.MovImmediate(s.takeCondition(), rd, value))
		return
	}
	s.loadPool(rd, s.ctx.Literal(value), level)
}

// loadAddress loads the absolute address of label into rd.
func (s *CompilationState) loadAddress(rd armasm.Reg, label asm.Label) {
	level := s.levels.constant(s.current.op, ConstantSmallLoad)
	s.loadPool(rd, s.ctx.AddressLiteral(label), level)
}

func (s *CompilationState) loadPool(rd armasm.Reg, label asm.Label, level ConstantLevel) {
	s.noteConstant(level)
	cond := s.takeCondition()
	if n := level.chainLength(); n > 0 {
		s.emit(armasm.LoadLiteralFar(cond, rd, ScratchInteger, label, n))
		return
	}
	s.emit(armasm.LoadLiteral(cond, rd, label))
}

// loadFloatConstant loads a single or double constant into a VFP register.
func (s *CompilationState) loadFloatConstant(fd *ir.RegisterDescriptor, c *ir.Constant) {
	var label asm.Label
	if fd.Double {
		label = s.ctx.DoubleLiteral(c.Value)
	} else {
		label = s.ctx.Literal(c.Word(0))
	}
	level := s.levels.constant(s.current.op, ConstantSmallLoad)
	s.noteConstant(level)
	s.emit(armasm.LoadFloatLiteral(s.takeCondition(), vfpNumber(fd), fd.Double, ScratchInteger, label, level.chainLength()))
}

// jump transfers control to label at the given branch level.
func (s *CompilationState) jump(cond armasm.Condition, label asm.Label, link bool, level BranchLevel) {
	s.noteBranch(level)
	s.pending = armasm.CondAL
	switch level {
	case BranchSkip, BranchShort:
		s.emit(armasm.BranchTo(cond, label, link))
	case BranchNearRelativeLoad:
		s.emit(armasm.JumpNear(cond, label, link))
	default:
		s.emit(armasm.JumpFar(cond, label, ScratchInteger, link))
	}
}

func (s *CompilationState) branchLevel() BranchLevel {
	return s.levels.branch(s.current.op, BranchShort)
}

// emitBranchToBlock branches to b unless it is the next block and cond is
// always.
func (s *CompilationState) emitBranchToBlock(cond armasm.Condition, b *ir.BasicBlock) {
	if cond == armasm.CondAL && s.adjacent(b) {
		s.noteBranch(BranchSkip)
		return
	}
	s.jump(cond, s.blockLabel(b), false, s.branchLevel())
}

func methodLabel(name string) asm.Label {
	return asm.Label(name)
}

// operandImmediate reports the rotated immediate form of a constant operand.
func operandImmediate(e ir.Expression) (seed, rot uint32, ok bool) {
	c, isConst := asConstant(e)
	if !isConst || c.Symbol != "" {
		return 0, 0, false
	}
	return armasm.EncodeImmediate(c.Word(0))
}

// intOperand returns e in an integer register, loading constants into ip.
func (s *CompilationState) intOperand(e ir.Expression) (armasm.Reg, bool) {
	if r, ok := asInt(e); ok {
		return r, true
	}
	switch x := e.(type) {
	case *ir.Constant:
		if x.Symbol != "" {
			s.loadAddress(ScratchInteger, methodLabel(x.Symbol))
		} else {
			s.loadConstant(ScratchInteger, x.Word(0))
		}
		return ScratchInteger, true
	case *ir.StackLocation:
		s.loadStack(ScratchInteger, x, 0)
		return ScratchInteger, true
	}
	return 0, false
}
