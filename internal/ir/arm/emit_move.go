package arm

import (
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

// stackOffset is the sp-relative byte offset of loc plus extra.
func (s *CompilationState) stackOffset(loc *ir.StackLocation, extra int) int32 {
	if loc.Offset < 0 {
		s.failf("%s has no frame offset: %w", loc, ir.ErrInternal)
		return 0
	}
	return int32(loc.Offset + extra)
}

func magnitude(offset int32) (uint32, bool) {
	if offset < 0 {
		return uint32(-offset), false
	}
	return uint32(offset), true
}

// transferKind picks the halfword form for a sub-word access, or reports
// that the word/byte form serves.
func transferKind(typ ir.Type, load bool) (kind uint32, halfword, byteAccess bool) {
	switch typ.Size() {
	case 1:
		if load && typ.IsSigned() {
			return armasm.HalfwordSigned8, true, false
		}
		return 0, false, true
	case 2:
		if load && typ.IsSigned() {
			return armasm.HalfwordSigned16, true, false
		}
		return armasm.HalfwordUnsigned16, true, false
	}
	return 0, false, false
}

// transfer emits a load or store of rd at [base, #offset] with the width of
// typ. Offsets past the immediate range go through ip unless the access is
// to the frame, where they indicate a layout bug.
func (s *CompilationState) transfer(load bool, rd, base armasm.Reg, offset int32, typ ir.Type, frame bool) {
	mag, up := magnitude(offset)
	kind, halfword, byteAccess := transferKind(typ, load)
	limit := uint32(s.platform.GetOffsetLimit(typ))
	t := armasm.Transfer{Load: load, Up: up, PreIndex: true}

	if mag < limit {
		if halfword {
			s.EnqueueOpcode(armasm.HalfwordTransferImm{Transfer: t, Kind: kind, Rn: base, Rd: rd, Offset: mag})
		} else {
			s.EnqueueOpcode(armasm.SingleTransferImm{Transfer: t, Byte: byteAccess, Rn: base, Rd: rd, Offset: mag})
		}
		return
	}
	if frame {
		s.failf("frame offset %d exceeds %d: %w", offset, limit, ir.ErrInternal)
		return
	}
	if !load && rd == ScratchInteger {
		s.failf("store of ip with offset %d: %w", offset, ir.ErrNotImplemented)
		return
	}
	cond := s.pending
	if base == ScratchInteger {
		s.adjustInPlace(base, mag, up)
		s.PrepareCondition(cond)
		t.Up = true
		if halfword {
			s.EnqueueOpcode(armasm.HalfwordTransferImm{Transfer: t, Kind: kind, Rn: base, Rd: rd})
		} else {
			s.EnqueueOpcode(armasm.SingleTransferImm{Transfer: t, Byte: byteAccess, Rn: base, Rd: rd})
		}
		return
	}
	s.loadConstant(ScratchInteger, mag)
	s.PrepareCondition(cond)
	if halfword {
		s.EnqueueOpcode(armasm.HalfwordTransferReg{Transfer: t, Kind: kind, Rn: base, Rd: rd, Rm: ScratchInteger})
	} else {
		s.EnqueueOpcode(armasm.SingleTransferReg{Transfer: t, Byte: byteAccess, Rn: base, Rd: rd, Rm: ScratchInteger})
	}
}

// transferFP is FLDS/FLDD/FSTS/FSTD at [base, #offset].
func (s *CompilationState) transferFP(load bool, fd *ir.RegisterDescriptor, base armasm.Reg, offset int32, frame bool) {
	mag, up := magnitude(offset)
	if mag%4 != 0 {
		s.failf("unaligned vfp access at %d: %w", offset, ir.ErrNotImplemented)
		return
	}
	if mag < uint32(s.platform.GetOffsetLimit(ir.Float64)) {
		s.EnqueueOpcode(armasm.VFPDataTransfer{Load: load, Up: up, Double: fd.Double, Rn: base, Fd: vfpNumber(fd), Offset: mag / 4})
		return
	}
	if frame {
		s.failf("frame offset %d out of vfp range: %w", offset, ir.ErrInternal)
		return
	}
	cond := s.pending
	if base == ScratchInteger {
		s.adjustInPlace(base, mag, up)
	} else {
		s.loadConstant(ScratchInteger, mag)
		alu := armasm.AluADD
		if !up {
			alu = armasm.AluSUB
		}
		s.PrepareCondition(cond)
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: alu, Rn: base, Rd: ScratchInteger, Rm: ScratchInteger})
	}
	s.PrepareCondition(cond)
	s.EnqueueOpcode(armasm.VFPDataTransfer{Load: load, Up: true, Double: fd.Double, Rn: ScratchInteger, Fd: vfpNumber(fd)})
}

// adjustInPlace adds (or subtracts) mag to rd one immediate chunk at a
// time, each under the pending condition.
func (s *CompilationState) adjustInPlace(rd armasm.Reg, mag uint32, up bool) {
	cond := s.takeCondition()
	alu := armasm.AluADD
	if !up {
		alu = armasm.AluSUB
	}
	for _, chunk := range armasm.SplitImmediate(mag) {
		seed, rot, _ := armasm.EncodeImmediate(chunk)
		s.PrepareCondition(cond)
		s.EnqueueOpcode(armasm.DataProcessingImm{Alu: alu, Rn: rd, Rd: rd, Seed: seed, Rotation: rot})
	}
}

func (s *CompilationState) loadStack(rd armasm.Reg, loc *ir.StackLocation, word int) {
	typ := loc.Typ
	if word > 0 || typ.Words() > 1 {
		typ = ir.Uint32
	}
	s.transfer(true, rd, armasm.SP, s.stackOffset(loc, 4*word), typ, true)
}

func (s *CompilationState) storeStack(rd armasm.Reg, loc *ir.StackLocation, word int) {
	typ := loc.Typ
	if word > 0 || typ.Words() > 1 {
		typ = ir.Uint32
	}
	s.transfer(false, rd, armasm.SP, s.stackOffset(loc, 4*word), typ, true)
}

func (s *CompilationState) moveRegister(rd, rm armasm.Reg) {
	if rd == rm {
		return
	}
	s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluMOV, Rd: rd, Rm: rm})
}

func (s *CompilationState) emitAssignment(o *ir.SingleAssignment) {
	switch dst := o.Dst.(type) {
	case *ir.PhysicalRegister:
		switch dst.Reg.File {
		case ir.FileInteger:
			s.assignToInteger(o, intReg(dst.Reg))
			return
		case ir.FileFloatingPoint:
			s.assignToFP(o, dst.Reg)
			return
		case ir.FileSystem:
			if rm, ok := asInt(o.Src); ok {
				s.EnqueueOpcode(armasm.VFPSystemTransfer{SysReg: dst.Reg.Encoding - armasm.EncodingSys0, Rd: rm})
				return
			}
			if _, ok := o.Src.(*ir.PhysicalRegister); ok {
				s.mismatch(o)
				return
			}
		}
	case *ir.StackLocation:
		s.assignToStack(o, dst)
		return
	}
	s.notImplemented(o)
}

func (s *CompilationState) assignToInteger(o *ir.SingleAssignment, rd armasm.Reg) {
	switch src := o.Src.(type) {
	case *ir.PhysicalRegister:
		switch src.Reg.File {
		case ir.FileInteger:
			s.moveRegister(rd, intReg(src.Reg))
		case ir.FileFloatingPoint:
			if src.Reg.Double {
				s.EnqueueOpcode(armasm.VFPHalfTransfer{ToCore: true, High: o.Word == 1, Dn: vfpNumber(src.Reg), Rd: rd})
			} else {
				s.EnqueueOpcode(armasm.VFPRegisterTransfer{ToCore: true, Fn: vfpNumber(src.Reg), Rd: rd})
			}
		case ir.FileSystem:
			if src.Reg.Encoding == armasm.EncodingFPSCR {
				s.headerFlags |= codemap.HasFpStatusRegisterSave
			}
			s.EnqueueOpcode(armasm.VFPSystemTransfer{ToCore: true, SysReg: src.Reg.Encoding - armasm.EncodingSys0, Rd: rd})
		default:
			s.mismatch(o)
		}
	case *ir.Constant:
		if src.Symbol != "" {
			s.loadAddress(rd, methodLabel(src.Symbol))
			return
		}
		s.loadConstant(rd, src.Word(o.Word))
	case *ir.StackLocation:
		s.loadStack(rd, src, o.Word)
	default:
		s.notImplemented(o)
	}
}

func (s *CompilationState) assignToFP(o *ir.SingleAssignment, fd *ir.RegisterDescriptor) {
	switch src := o.Src.(type) {
	case *ir.PhysicalRegister:
		switch {
		case src.Reg.File == ir.FileFloatingPoint && src.Reg.Double == fd.Double:
			if src.Reg != fd {
				s.EnqueueOpcode(armasm.VFPUnary{Op: armasm.VFPCPY, Double: fd.Double, Fd: vfpNumber(fd), Fm: vfpNumber(src.Reg)})
			}
		case src.Reg.File == ir.FileInteger && fd.Double:
			s.EnqueueOpcode(armasm.VFPHalfTransfer{High: o.Word == 1, Dn: vfpNumber(fd), Rd: intReg(src.Reg)})
		case src.Reg.File == ir.FileInteger:
			s.EnqueueOpcode(armasm.VFPRegisterTransfer{Fn: vfpNumber(fd), Rd: intReg(src.Reg)})
		default:
			s.mismatch(o)
		}
	case *ir.Constant:
		if src.Symbol != "" {
			s.notImplemented(o)
			return
		}
		s.loadFloatConstant(fd, src)
	case *ir.StackLocation:
		s.transferFP(true, fd, armasm.SP, s.stackOffset(src, 0), true)
	default:
		s.notImplemented(o)
	}
}

func (s *CompilationState) assignToStack(o *ir.SingleAssignment, dst *ir.StackLocation) {
	switch src := o.Src.(type) {
	case *ir.PhysicalRegister:
		switch src.Reg.File {
		case ir.FileInteger:
			s.storeStack(intReg(src.Reg), dst, o.Word)
		case ir.FileFloatingPoint:
			s.transferFP(false, src.Reg, armasm.SP, s.stackOffset(dst, 0), true)
		default:
			s.mismatch(o)
		}
	case *ir.Constant:
		if src.Symbol != "" {
			s.loadAddress(ScratchInteger, methodLabel(src.Symbol))
			s.storeStack(ScratchInteger, dst, 0)
			return
		}
		for w := 0; w < max(dst.Typ.Words(), 1); w++ {
			s.loadConstant(ScratchInteger, src.Word(w))
			s.storeStack(ScratchInteger, dst, w)
		}
	case *ir.StackLocation:
		if stackKey(src) == stackKey(dst) {
			return
		}
		for w := 0; w < max(dst.Typ.Words(), 1); w++ {
			s.loadStack(ScratchInteger, src, w)
			s.storeStack(ScratchInteger, dst, w)
		}
	default:
		s.notImplemented(o)
	}
}

func (s *CompilationState) emitAddressAssignment(o *ir.AddressAssignment) {
	rd := intReg(o.Dst.Reg)
	switch src := o.Src.(type) {
	case *ir.StackLocation:
		off := uint32(s.stackOffset(src, 0))
		if seed, rot, ok := armasm.EncodeImmediate(off); ok {
			s.EnqueueOpcode(armasm.DataProcessingImm{Alu: armasm.AluADD, Rn: armasm.SP, Rd: rd, Seed: seed, Rotation: rot})
			return
		}
		s.loadConstant(rd, off)
		s.EnqueueOpcode(armasm.DataProcessingShift{Alu: armasm.AluADD, Rn: armasm.SP, Rd: rd, Rm: rd})
	case *ir.Constant:
		if src.Symbol == "" {
			s.notImplemented(o)
			return
		}
		s.loadAddress(rd, methodLabel(src.Symbol))
	default:
		s.notImplemented(o)
	}
}

func (s *CompilationState) emitLoadIndirect(o *ir.LoadIndirect) {
	base, ok := asInt(o.Base)
	if !ok {
		s.notImplemented(o)
		return
	}
	if rd, ok := asInt(o.Dst); ok {
		s.transfer(true, rd, base, o.Offset, o.Dst.Type(), false)
		return
	}
	if fd, ok := asFP(o.Dst); ok {
		s.transferFP(true, fd, base, o.Offset, false)
		return
	}
	s.notImplemented(o)
}

func (s *CompilationState) emitStoreIndirect(o *ir.StoreIndirect) {
	base, ok := asInt(o.Base)
	if !ok {
		s.notImplemented(o)
		return
	}
	if fd, ok := asFP(o.Src); ok {
		s.transferFP(false, fd, base, o.Offset, false)
		return
	}
	rs, ok := s.intOperand(o.Src)
	if !ok {
		s.notImplemented(o)
		return
	}
	s.transfer(false, rs, base, o.Offset, o.Src.Type(), false)
}
