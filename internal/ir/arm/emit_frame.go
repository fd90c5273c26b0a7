package arm

import (
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

// integerMask resolves the register list of o. fast is set for a restore
// of pc alone when lr was never touched, which becomes MOV pc, lr. skip is
// set when there is nothing to transfer.
func (s *CompilationState) integerMask(o *ir.MoveIntegerRegisters) (mask uint16, fast, skip bool) {
	mask = o.Registers
	if o.AddComputed {
		mask |= s.saveMask
	}
	lrUsed := s.registersUsed != nil && s.registersUsed.Test(uint(s.platform.regs.Integer(armasm.LR).Index))
	switch {
	case mask == 0:
		return 0, false, true
	case !o.Load && mask == 1<<armasm.LR && !lrUsed:
		return mask, false, true
	case o.Load && mask == 1<<armasm.PC && !lrUsed:
		return mask, true, false
	}
	return mask, false, false
}

// floatRange resolves the single-precision range of o. Both bounds are
// even, and high names the first register of the last pair.
func (s *CompilationState) floatRange(o *ir.MoveFloatingPointRegisters) (low, high int, skip bool) {
	low, high = o.Low, o.High
	if o.AddComputed && s.fpLow <= s.fpHigh {
		if low > high {
			low, high = s.fpLow, s.fpHigh
		} else {
			low, high = min(low, s.fpLow), max(high, s.fpHigh)
		}
	}
	if low > high || !s.platform.HasVFP() {
		return 0, -1, true
	}
	return low &^ 1, high &^ 1, false
}

func (s *CompilationState) emitMoveIntegerRegisters(o *ir.MoveIntegerRegisters) {
	mask, fast, skip := s.integerMask(o)
	if skip {
		return
	}
	if o.Load {
		s.pcPopped = mask&(1<<armasm.PC) != 0
		if fast {
			s.emit(armasm.Return())
			return
		}
		s.EnqueueOpcode(armasm.BlockTransfer{
			Transfer:  armasm.Transfer{Load: true, WriteBack: true, Up: true},
			Rn:        armasm.SP,
			Registers: armasm.RegList(mask),
		})
		return
	}
	s.pcPopped = false
	s.headerFlags |= codemap.HasIntRegisterSave
	s.EnqueueOpcode(armasm.BlockTransfer{
		Transfer:  armasm.Transfer{WriteBack: true, PreIndex: true},
		Rn:        armasm.SP,
		Registers: armasm.RegList(mask),
	})
}

func (s *CompilationState) emitMoveFloatingPointRegisters(o *ir.MoveFloatingPointRegisters) {
	low, high, skip := s.floatRange(o)
	if skip {
		return
	}
	op := armasm.VFPBlockTransfer{
		Rn:    armasm.SP,
		Fd:    uint32(low),
		Count: uint32(high - low + 2),
	}
	if o.Load {
		op.Transfer = armasm.Transfer{Load: true, WriteBack: true, Up: true}
	} else {
		op.Transfer = armasm.Transfer{WriteBack: true, PreIndex: true}
		s.headerFlags |= codemap.HasFpRegisterSave
	}
	s.EnqueueOpcode(op)
}

// emitMoveStackPointer allocates (Enter) or releases the OUT and LOCAL
// regions.
func (s *CompilationState) emitMoveStackPointer(o *ir.MoveStackPointer) {
	bytes := uint32(4 * (s.stackForCalls + s.stackForLocals))
	if bytes == 0 {
		return
	}
	alu := armasm.AluADD
	if o.Enter {
		alu = armasm.AluSUB
	}
	s.headerFlags |= codemap.HasStackAdjustment
	if seed, rot, ok := armasm.EncodeImmediate(bytes); ok {
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: alu, Rn: armasm.SP, Rd: armasm.SP, Seed: seed, Rotation: rot})
		return
	}
	s.loadConstant(ScratchInteger, bytes)
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: alu, Rn: armasm.SP, Rd: armasm.SP, Rm: ScratchInteger})
}

func (s *CompilationState) emitBreakpoint(o *ir.Breakpoint) {
	if s.platform.Capabilities()&ARMv5 == 0 {
		s.failf("bkpt needs ARMv5: %w", ir.ErrNotImplemented)
		return
	}
	s.EnqueueOpcode(armasm.Breakpoint{Value: o.Value})
}

func (s *CompilationState) emitMoveFromStatus(o *ir.MoveFromStatusRegister) {
	rd, ok := asInt(o.Dst)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.MoveFromStatus{UseSPSR: o.Saved, Rd: rd})
}

func (s *CompilationState) emitMoveToStatus(o *ir.MoveToStatusRegister) {
	fields := armasm.PSRFields(o.Fields)
	if fields == 0 {
		fields = armasm.PSRFieldAll
	}
	if seed, rot, ok := operandImmediate(o.Src); ok {
		s.EnqueueOpcode(armasm.MoveToStatusImm{UseSPSR: o.Saved, Fields: fields, Seed: seed, Rotation: rot})
		return
	}
	rm, ok := s.intOperand(o.Src)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.MoveToStatusReg{UseSPSR: o.Saved, Fields: fields, Rm: rm})
}

// emitCoprocessor is MRC when from is set and MCR otherwise.
func (s *CompilationState) emitCoprocessor(c ir.CoprocessorOperand, e ir.Expression, from bool) {
	var rd armasm.Reg
	var ok bool
	if from {
		rd, ok = asInt(e)
	} else {
		rd, ok = s.intOperand(e)
	}
	if !ok {
		s.failf("coprocessor transfer with %s: %w", e, ir.ErrNotImplemented)
		return
	}
	s.EnqueueOpcode(armasm.CoprocRegisterTransfer{
		FromCoproc: from,
		CpNum:      c.CpNum,
		Op1:        c.Op1,
		Op2:        c.Op2,
		CRn:        c.CRn,
		CRm:        c.CRm,
		Rd:         rd,
	})
}
