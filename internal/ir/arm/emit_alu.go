package arm

import (
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/ir"
)

var integerAlu = map[ir.BinaryOp]armasm.AluOp{
	ir.OpAdd: armasm.AluADD,
	ir.OpSub: armasm.AluSUB,
	ir.OpAnd: armasm.AluAND,
	ir.OpOr:  armasm.AluORR,
	ir.OpXor: armasm.AluEOR,
}

var floatAlu = map[ir.BinaryOp]armasm.VFPBinaryOp{
	ir.OpAdd: armasm.VFPADD,
	ir.OpSub: armasm.VFPSUB,
	ir.OpMul: armasm.VFPMUL,
	ir.OpDiv: armasm.VFPDIV,
}

var negatedAlu = map[armasm.AluOp]armasm.AluOp{
	armasm.AluADD: armasm.AluSUB,
	armasm.AluSUB: armasm.AluADD,
	armasm.AluCMP: armasm.AluCMN,
	armasm.AluCMN: armasm.AluCMP,
}

func commutative(op ir.BinaryOp) bool {
	switch op {
	case ir.OpAdd, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor:
		return true
	}
	return false
}

func (s *CompilationState) emitBinary(o *ir.Binary) {
	if fd, ok := asFP(o.Dst); ok {
		s.emitFloatBinary(o, fd)
		return
	}
	rd, ok := asInt(o.Dst)
	if !ok {
		s.notImplemented(o)
		return
	}

	switch o.Op {
	case ir.OpMul:
		s.emitMultiply(o, rd)
	case ir.OpShl, ir.OpShr, ir.OpSar:
		s.emitShift(o, rd)
	case ir.OpDiv, ir.OpRem:
		s.failf("integer %s has no instruction: %w", o.Op, ir.ErrNotImplemented)
	default:
		s.emitArithmetic(o, rd)
	}
	if o.SetCarry {
		s.SetConditionBit()
	}
}

func (s *CompilationState) emitFloatBinary(o *ir.Binary, fd *ir.RegisterDescriptor) {
	vop, known := floatAlu[o.Op]
	fn, lok := asFP(o.Lhs)
	fm, rok := asFP(o.Rhs)
	if !known || !lok || !rok || fn.Double != fd.Double || fm.Double != fd.Double {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.VFPBinary{Op: vop, Double: fd.Double, Fd: vfpNumber(fd), Fn: vfpNumber(fn), Fm: vfpNumber(fm)})
}

func (s *CompilationState) emitArithmetic(o *ir.Binary, rd armasm.Reg) {
	alu, known := integerAlu[o.Op]
	if !known {
		s.notImplemented(o)
		return
	}
	lhs, rhs := o.Lhs, o.Rhs

	if _, isConst := asConstant(lhs); isConst {
		switch {
		case commutative(o.Op):
			lhs, rhs = rhs, lhs
		case o.Op == ir.OpSub && !o.CarryIn:
			if seed, rot, ok := operandImmediate(lhs); ok {
				if rn, ok := s.intOperand(rhs); ok {
					s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluRSB, Rn: rn, Rd: rd, Seed: seed, Rotation: rot})
					return
				}
			}
		}
	}
	if o.CarryIn {
		switch alu {
		case armasm.AluADD:
			alu = armasm.AluADC
		case armasm.AluSUB:
			alu = armasm.AluSBC
		default:
			s.notImplemented(o)
			return
		}
	}

	rn, ok := s.intOperand(lhs)
	if !ok {
		s.notImplemented(o)
		return
	}

	if c, isConst := asConstant(rhs); isConst && c.Symbol == "" {
		if seed, rot, ok := s.aluImmediate(&alu, c.Word(0)); ok {
			s.EnqueueOpcode(armasm.DataProcessingImm{Alu: alu, Rn: rn, Rd: rd, Seed: seed, Rotation: rot})
			return
		}
	}
	if rn == ScratchInteger {
		if _, inReg := asInt(rhs); !inReg {
			s.failf("%s needs two scratch registers: %w", o, ir.ErrNotImplemented)
			return
		}
	}
	rm, ok := s.intOperand(rhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: alu, Rn: rn, Rd: rd, Rm: rm})
}

// aluImmediate encodes value for alu, switching to the complementary
// operation when only the negated or inverted value fits.
func (s *CompilationState) aluImmediate(alu *armasm.AluOp, value uint32) (seed, rot uint32, ok bool) {
	if seed, rot, ok = armasm.EncodeImmediate(value); ok {
		return seed, rot, true
	}
	switch *alu {
	case armasm.AluADD, armasm.AluSUB, armasm.AluCMP, armasm.AluCMN:
		seed, rot, negated, ok := armasm.EncodeImmediateOrNegated(value)
		if ok && negated {
			*alu = negatedAlu[*alu]
			return seed, rot, true
		}
	case armasm.AluAND:
		seed, rot, inverted, ok := armasm.EncodeImmediateOrInverted(value)
		if ok && inverted {
			*alu = armasm.AluBIC
			return seed, rot, true
		}
	}
	return 0, 0, false
}

func (s *CompilationState) emitMultiply(o *ir.Binary, rd armasm.Reg) {
	lhs, lok := s.intOperand(o.Lhs)
	if !lok {
		s.notImplemented(o)
		return
	}
	if lhs == ScratchInteger {
		if _, inReg := asInt(o.Rhs); !inReg {
			s.failf("%s needs two scratch registers: %w", o, ir.ErrNotImplemented)
			return
		}
	}
	rhs, rok := s.intOperand(o.Rhs)
	if !rok {
		s.notImplemented(o)
		return
	}

	if o.DstHi != nil {
		hi, ok := asInt(o.DstHi)
		if !ok {
			s.notImplemented(o)
			return
		}
		s.EnqueueOpcode(armasm.MultiplyLong{Signed: o.Signed, RdHi: hi, RdLo: rd, Rs: rhs, Rm: lhs})
		return
	}

	// MUL on v4 is unpredictable when rd and rm coincide.
	rm, rs := lhs, rhs
	if rm == rd {
		rm, rs = rs, rm
	}
	if rm == rd {
		s.moveRegister(ScratchInteger, rm)
		rm = ScratchInteger
	}
	s.EnqueueOpcode(armasm.Multiply{Rd: rd, Rs: rs, Rm: rm})
}

func shiftFor(op ir.BinaryOp) armasm.ShiftType {
	switch op {
	case ir.OpShr:
		return armasm.ShiftLSR
	case ir.OpSar:
		return armasm.ShiftASR
	}
	return armasm.ShiftLSL
}

func (s *CompilationState) emitShift(o *ir.Binary, rd armasm.Reg) {
	shift := shiftFor(o.Op)

	if c, ok := asConstant(o.Rhs); ok && c.Symbol == "" {
		rm, ok := s.intOperand(o.Lhs)
		if !ok {
			s.notImplemented(o)
			return
		}
		amount := c.Word(0)
		switch {
		case amount == 0 && o.SetCarry:
			// The S bit needs an opcode of its own even when rd == rm.
			s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: rd, Rm: rm})
			return
		case amount == 0:
			s.moveRegister(rd, rm)
			return
		case amount >= 32 && shift == armasm.ShiftASR:
			// ASR #32 is encoded with a zero amount.
			amount = 0
		case amount > 32:
			s.loadConstant(rd, 0)
			return
		case amount == 32 && shift == armasm.ShiftLSL:
			s.loadConstant(rd, 0)
			return
		case amount == 32:
			amount = 0
		}
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: rd, Rm: rm, Shift: shift, Amount: amount})
		return
	}

	rm, ok := s.intOperand(o.Lhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	if rm == ScratchInteger {
		if _, inReg := asInt(o.Rhs); !inReg {
			s.failf("%s needs two scratch registers: %w", o, ir.ErrNotImplemented)
			return
		}
	}
	rs, ok := s.intOperand(o.Rhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.DataProcessingReg{Alu: armasm.AluMOV, Rd: rd, Rm: rm, Shift: shift, Rs: rs})
}

func (s *CompilationState) emitUnary(o *ir.Unary) {
	if fd, ok := asFP(o.Dst); ok {
		fm, ok := asFP(o.Src)
		if !ok || fm.Double != fd.Double {
			s.notImplemented(o)
			return
		}
		var vop armasm.VFPUnaryOp
		switch o.Op {
		case ir.OpNeg:
			vop = armasm.VFPNEG
		case ir.OpAbs:
			vop = armasm.VFPABS
		case ir.OpSqrt:
			vop = armasm.VFPSQRT
		default:
			s.notImplemented(o)
			return
		}
		s.EnqueueOpcode(armasm.VFPUnary{Op: vop, Double: fd.Double, Fd: vfpNumber(fd), Fm: vfpNumber(fm)})
		return
	}

	rd, ok := asInt(o.Dst)
	if !ok {
		s.notImplemented(o)
		return
	}
	rm, ok := s.intOperand(o.Src)
	if !ok {
		s.notImplemented(o)
		return
	}
	switch o.Op {
	case ir.OpNeg:
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluRSB, Rn: rm, Rd: rd})
	case ir.OpNot:
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMVN, Rd: rd, Rm: rm})
	case ir.OpAbs:
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, SetCC: true, Rd: rd, Rm: rm})
		s.PrepareCondition(armasm.CondMI)
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluRSB, Rn: rd, Rd: rd})
	default:
		s.notImplemented(o)
	}
}

// emitExtend widens or narrows the low bytes of src into dst.
func (s *CompilationState) emitExtend(dst, src ir.Expression, bytes int, signed bool) {
	rd, ok := asInt(dst)
	if !ok {
		s.failf("extend into %s: %w", dst, ir.ErrNotImplemented)
		return
	}
	rm, ok := s.intOperand(src)
	if !ok {
		s.failf("extend of %s: %w", src, ir.ErrNotImplemented)
		return
	}
	if bytes >= 4 {
		s.moveRegister(rd, rm)
		return
	}
	if bytes == 1 && !signed {
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluAND, Rn: rm, Rd: rd, Seed: 0xFF})
		return
	}
	amount := uint32(32 - 8*bytes)
	right := armasm.ShiftLSR
	if signed {
		right = armasm.ShiftASR
	}
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: rd, Rm: rm, Shift: armasm.ShiftLSL, Amount: amount})
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: rd, Rm: rd, Shift: right, Amount: amount})
}

func (s *CompilationState) requireVFP(op ir.Operator) bool {
	if !s.platform.HasVFP() {
		s.failf("%s without vfp: %w", op, ir.ErrNotImplemented)
		return false
	}
	return true
}

func (s *CompilationState) emitConvert(o *ir.Convert) {
	dt, st := o.Dst.Type(), o.Src.Type()
	if !dt.IsFloat() && !st.IsFloat() {
		s.emitExtend(o.Dst, o.Src, min(dt.Size(), st.Size()), st.IsSigned())
		return
	}
	if !s.requireVFP(o) {
		return
	}
	switch {
	case dt.IsFloat() && st.IsFloat():
		fd, dok := asFP(o.Dst)
		fm, sok := asFP(o.Src)
		if !dok || !sok {
			s.notImplemented(o)
			return
		}
		if fd.Double == fm.Double {
			s.emitAssignment(&ir.SingleAssignment{Dst: o.Dst, Src: o.Src})
			return
		}
		s.EnqueueOpcode(armasm.VFPConvert{Double: fm.Double, Fd: vfpNumber(fd), Fm: vfpNumber(fm)})

	case dt.IsFloat():
		fd, ok := asFP(o.Dst)
		rm, rok := s.intOperand(o.Src)
		if !ok || !rok {
			s.notImplemented(o)
			return
		}
		vop := armasm.VFPUITO
		if st.IsSigned() {
			vop = armasm.VFPSITO
		}
		s.EnqueueOpcode(armasm.VFPRegisterTransfer{Fn: ScratchSingle, Rd: rm})
		s.EnqueueOpcode(armasm.VFPUnary{Op: vop, Double: fd.Double, Fd: vfpNumber(fd), Fm: ScratchSingle})

	default:
		fm, ok := asFP(o.Src)
		rd, rok := asInt(o.Dst)
		if !ok || !rok {
			s.notImplemented(o)
			return
		}
		vop := armasm.VFPTOUIZ
		if dt.IsSigned() {
			vop = armasm.VFPTOSIZ
		}
		s.EnqueueOpcode(armasm.VFPUnary{Op: vop, Double: fm.Double, Fd: ScratchSingle, Fm: vfpNumber(fm)})
		s.EnqueueOpcode(armasm.VFPRegisterTransfer{ToCore: true, Fn: ScratchSingle, Rd: rd})
	}
}

func (s *CompilationState) emitCompare(o *ir.Compare) {
	if fn, ok := asFP(o.Lhs); ok {
		s.emitFloatCompare(o, fn)
		return
	}
	s.floatFlags = false
	rn, ok := s.intOperand(o.Lhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	if c, isConst := asConstant(o.Rhs); isConst && c.Symbol == "" {
		alu := armasm.AluCMP
		if seed, rot, ok := s.aluImmediate(&alu, c.Word(0)); ok {
			s.EnqueueOpcode(armasm.DataProcessingImm{Alu: alu, Rn: rn, Seed: seed, Rotation: rot})
			return
		}
	}
	if rn == ScratchInteger {
		if _, inReg := asInt(o.Rhs); !inReg {
			s.failf("%s needs two scratch registers: %w", o, ir.ErrNotImplemented)
			return
		}
	}
	rm, ok := s.intOperand(o.Rhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluCMP, Rn: rn, Rm: rm})
}

func (s *CompilationState) emitFloatCompare(o *ir.Compare, fn *ir.RegisterDescriptor) {
	if !s.requireVFP(o) {
		return
	}
	s.floatFlags = true
	if c, ok := asConstant(o.Rhs); ok && c.IsZero() {
		s.EnqueueOpcode(armasm.VFPCompareZero{Double: fn.Double, Fd: vfpNumber(fn)})
	} else if fm, ok := asFP(o.Rhs); ok && fm.Double == fn.Double {
		s.EnqueueOpcode(armasm.VFPUnary{Op: armasm.VFPCMP, Double: fn.Double, Fd: vfpNumber(fn), Fm: vfpNumber(fm)})
	} else {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.VFPStatusTransfer{})
}

func (s *CompilationState) emitBitTest(o *ir.BitTest) {
	s.floatFlags = false
	rn, ok := s.intOperand(o.Lhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	if seed, rot, ok := operandImmediate(o.Rhs); ok {
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluTST, Rn: rn, Seed: seed, Rotation: rot})
		return
	}
	if rn == ScratchInteger {
		if _, inReg := asInt(o.Rhs); !inReg {
			s.failf("%s needs two scratch registers: %w", o, ir.ErrNotImplemented)
			return
		}
	}
	rm, ok := s.intOperand(o.Rhs)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluTST, Rn: rn, Rm: rm})
}

func (s *CompilationState) emitSetIfCondition(o *ir.SetIfCondition) {
	rd, ok := asInt(o.Dst)
	if !ok {
		s.notImplemented(o)
		return
	}
	cond := s.armCondition(o.Cond)
	s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluMOV, Rd: rd})
	s.PrepareCondition(cond)
	s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluMOV, Rd: rd, Seed: 1})
}
