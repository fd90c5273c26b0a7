package arm

import (
	"github.com/tinyrange/armcc/internal/asm"
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

func (s *CompilationState) emitConditionalControl(o *ir.ConditionalControl) {
	cond := s.armCondition(o.Cond)
	level := s.branchLevel()

	switch {
	case s.adjacent(o.NotTaken):
		s.jump(cond, s.blockLabel(o.Taken), false, level)
	case s.adjacent(o.Taken):
		s.jump(cond.Invert(), s.blockLabel(o.NotTaken), false, level)
	case o.Taken.Weight >= o.NotTaken.Weight:
		s.jump(cond, s.blockLabel(o.Taken), false, level)
		s.jump(armasm.CondAL, s.blockLabel(o.NotTaken), false, level)
	default:
		s.jump(cond.Invert(), s.blockLabel(o.NotTaken), false, level)
		s.jump(armasm.CondAL, s.blockLabel(o.Taken), false, level)
	}
}

// emitMultiWay dispatches through a table of block addresses placed right
// after the bounds check:
//
//	cmp   idx, #n
//	ldrlo pc, [pc, idx, lsl #2]
//	b     default
//	.word target0 ...
func (s *CompilationState) emitMultiWay(o *ir.MultiWayControl) {
	idx, ok := s.intOperand(o.Index)
	if !ok {
		s.notImplemented(o)
		return
	}
	n := uint32(len(o.Targets))
	if seed, rot, ok := armasm.EncodeImmediate(n); ok {
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluCMP, Rn: idx, Seed: seed, Rotation: rot})
	} else {
		if idx == ScratchInteger {
			s.failf("%s: index and bound both need ip: %w", o, ir.ErrNotImplemented)
			return
		}
		s.emit(armasm.LoadLiteralFar(armasm.CondAL, ScratchInteger, ScratchInteger, s.ctx.Literal(n), 4))
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluCMP, Rn: idx, Rm: ScratchInteger})
	}
	s.PrepareCondition(armasm.CondLO)
	s.EnqueueOpcode(armasm.SingleTransferReg{
		Transfer: armasm.Transfer{Load: true, Up: true, PreIndex: true},
		Rn:       armasm.PC,
		Rd:       armasm.PC,
		Rm:       idx,
		Shift:    armasm.ShiftLSL,
		Amount:   2,
	})

	level := max(s.branchLevel(), BranchShort)
	defaultLabel := s.blockLabel(o.Default)
	var over asm.Label
	switch level {
	case BranchShort, BranchNearRelativeLoad:
		// One opcode, so the table starts where pc pointed.
		s.jump(armasm.CondAL, defaultLabel, false, level)
	default:
		over = asm.Label(string(s.blockLabel(s.block)) + "$default")
		s.jump(armasm.CondAL, over, false, BranchShort)
		s.noteBranch(level)
	}
	for _, t := range o.Targets {
		s.emit(armasm.Address(s.blockLabel(t)))
	}
	if over != "" {
		s.ctx.SetLabel(over)
		s.jump(armasm.CondAL, defaultLabel, false, level)
	}
}

// vectorSlots lists the handler behind each of the eight exception
// vectors. The reset vector enters the bootstrap code; slot 5 is unused.
var vectorSlots = [8]ir.HardwareException{
	ir.ExceptionBootstrap,
	ir.ExceptionUndefinedInstruction,
	ir.ExceptionSoftwareInterrupt,
	ir.ExceptionPrefetchAbort,
	ir.ExceptionDataAbort,
	ir.ExceptionNone,
	ir.ExceptionInterrupt,
	ir.ExceptionFastInterrupt,
}

func (s *CompilationState) handlerFor(e ir.HardwareException) *ir.Method {
	if e == ir.ExceptionNone || s.program == nil {
		return nil
	}
	return s.program.Handler(e)
}

func (s *CompilationState) emitReturn(o *ir.ReturnControl) {
	switch s.method.Exception {
	case ir.ExceptionVectorTable:
		s.noteBranch(BranchNearRelativeLoad)
		for _, e := range vectorSlots {
			if h := s.handlerFor(e); h != nil {
				s.emit(armasm.JumpNear(armasm.CondAL, methodLabel(h.Name), false))
				continue
			}
			s.EnqueueOpcode(armasm.SoftwareInterrupt{Value: uint32(e)})
		}
		return
	case ir.ExceptionBootstrap:
		if h := s.handlerFor(ir.ExceptionReset); h != nil {
			s.noteBranch(BranchNearRelativeLoad)
			s.emit(armasm.JumpNear(armasm.CondAL, methodLabel(h.Name), false))
		} else {
			s.EnqueueOpcode(armasm.SoftwareInterrupt{Value: uint32(ir.ExceptionReset)})
		}
		return
	}

	if s.pcPopped {
		return
	}
	switch s.method.Exception {
	case ir.ExceptionInterrupt, ir.ExceptionFastInterrupt, ir.ExceptionPrefetchAbort:
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluSUB, SetCC: true, Rn: armasm.LR, Rd: armasm.PC, Seed: 4})
	case ir.ExceptionDataAbort:
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluSUB, SetCC: true, Rn: armasm.LR, Rd: armasm.PC, Seed: 8})
	case ir.ExceptionSoftwareInterrupt, ir.ExceptionUndefinedInstruction, ir.ExceptionReset:
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, SetCC: true, Rd: armasm.PC, Rm: armasm.LR})
	default:
		s.emit(armasm.Return())
	}
}

func (s *CompilationState) emitDirectCall(o *ir.DirectCall) {
	if s.program != nil && s.program.Method(o.Target) == nil {
		s.failf("call to unknown method %s: %w", o.Target, ir.ErrTypeConsistency)
		return
	}
	// A leaf that never returns from the call can jump instead of link.
	_, dead := s.nextOp.(*ir.DeadControl)
	dead = dead && s.headerFlags&codemap.HasIntRegisterSave == 0
	s.jump(armasm.CondAL, methodLabel(o.Target), !dead, s.branchLevel())
}

func (s *CompilationState) emitIndirectCall(o *ir.IndirectCall) {
	var rt armasm.Reg
	switch t := o.Target.(type) {
	case *ir.PhysicalRegister:
		r, ok := asInt(t)
		if !ok {
			s.notImplemented(o)
			return
		}
		rt = r
		if rt == armasm.LR {
			s.moveRegister(ScratchInteger, rt)
			rt = ScratchInteger
		}
	case *ir.StackLocation:
		s.loadStack(ScratchInteger, t, 0)
		rt = ScratchInteger
	case *ir.Constant:
		if t.Symbol == "" {
			s.notImplemented(o)
			return
		}
		s.loadAddress(ScratchInteger, methodLabel(t.Symbol))
		rt = ScratchInteger
	default:
		s.notImplemented(o)
		return
	}
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: armasm.LR, Rm: armasm.PC})
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: armasm.PC, Rm: rt})
}
