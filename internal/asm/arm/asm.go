package arm

import (
	"fmt"

	"github.com/tinyrange/armcc/internal/asm"
)

func requireContext(ctx asm.Context) (*Context, error) {
	if c, ok := ctx.(*Context); ok {
		return c, nil
	}
	return nil, fmt.Errorf("arm asm: unsupported context %T", ctx)
}

// Op emits a single opcode.
func Op(op Encoder) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		_, err = c.Emit(op)
		return err
	})
}

// MovImmediate materialises value in rd with MOV or MVN when it has a rotated
// immediate form, and with a literal pool load otherwise.
func MovImmediate(cond Condition, rd Reg, value uint32) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		if seed, rot, inverted, ok := EncodeImmediateOrInverted(value); ok {
			alu := AluMOV
			if inverted {
				alu = AluMVN
			}
			_, err := c.Emit(DataProcessingImm{Cond: cond, Alu: alu, Rd: rd, Seed: seed, Rotation: rot})
			return err
		}
		return emitLoadPC(c, cond, rd, c.Literal(value))
	})
}

// LoadLiteral loads the word at label with a single pc-relative LDR.
func LoadLiteral(cond Condition, rd Reg, label asm.Label) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		return emitLoadPC(c, cond, rd, label)
	})
}

func emitLoadPC(c *Context, cond Condition, rd Reg, label asm.Label) error {
	pos, err := c.Emit(SingleTransferImm{
		Cond:     cond,
		Transfer: Transfer{Load: true, Up: true, PreIndex: true},
		Rn:       PC,
		Rd:       rd,
	})
	if err != nil {
		return err
	}
	c.AddFixup(Fixup{Kind: FixupLoadPC, Offset: pos, Target: label})
	return nil
}

// LoadLiteralFar loads the word at label through scratch. The offset is built
// by a MOV/ORR chain of count opcodes, so it reaches 2^(8*count) bytes.
func LoadLiteralFar(cond Condition, rd, scratch Reg, label asm.Label, count int) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		start, err := emitOffsetChain(c, cond, scratch, count)
		if err != nil {
			return err
		}
		anchor, err := c.Emit(SingleTransferReg{
			Cond:     cond,
			Transfer: Transfer{Load: true, Up: true, PreIndex: true},
			Rn:       PC,
			Rd:       rd,
			Rm:       scratch,
		})
		if err != nil {
			return err
		}
		c.AddFixup(Fixup{Kind: FixupMoveImmediate, Offset: start, Anchor: anchor, Count: count, Target: label})
		return nil
	})
}

func emitOffsetChain(c *Context, cond Condition, scratch Reg, count int) (int, error) {
	if count < 1 || count > 4 {
		return 0, fmt.Errorf("arm asm: offset chain of %d opcodes", count)
	}
	start := c.Offset()
	for k := 0; k < count; k++ {
		op := DataProcessingImm{Cond: cond, Alu: AluORR, Rn: scratch, Rd: scratch}
		if k == 0 {
			op.Alu = AluMOV
			op.Rn = R0
		}
		if _, err := c.Emit(op); err != nil {
			return 0, err
		}
	}
	return start, nil
}

// LoadFloatLiteral loads a VFP register from label: a single FLDS/FLDD when
// count is zero, otherwise through an offset chain in scratch added to pc.
func LoadFloatLiteral(cond Condition, fd uint32, double bool, scratch Reg, label asm.Label, count int) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			pos, err := c.Emit(VFPDataTransfer{Cond: cond, Load: true, Up: true, Double: double, Rn: PC, Fd: fd})
			if err != nil {
				return err
			}
			c.AddFixup(Fixup{Kind: FixupLoadPCVFP, Offset: pos, Target: label})
			return nil
		}
		start, err := emitOffsetChain(c, cond, scratch, count)
		if err != nil {
			return err
		}
		anchor, err := c.Emit(DataProcessingShift{Cond: cond, Alu: AluADD, Rn: PC, Rd: scratch, Rm: scratch})
		if err != nil {
			return err
		}
		if _, err := c.Emit(VFPDataTransfer{Cond: cond, Load: true, Up: true, Double: double, Rn: scratch, Fd: fd}); err != nil {
			return err
		}
		c.AddFixup(Fixup{Kind: FixupMoveImmediate, Offset: start, Anchor: anchor, Count: count, Target: label})
		return nil
	})
}

// BranchTo is B (or BL when link is set) to label.
func BranchTo(cond Condition, label asm.Label, link bool) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		pos, err := c.Emit(Branch{Cond: cond, Link: link})
		if err != nil {
			return err
		}
		c.AddFixup(Fixup{Kind: FixupBranch, Offset: pos, Target: label})
		return nil
	})
}

func setReturnAddress(c *Context, cond Condition) error {
	// pc reads 8 ahead, so lr ends up just past the following pc load.
	_, err := c.Emit(DataProcessingShift{Cond: cond, Alu: AluMOV, Rd: LR, Rm: PC})
	return err
}

// JumpNear loads pc from a pool word holding the address of target.
func JumpNear(cond Condition, target asm.Label, link bool) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		if link {
			if err := setReturnAddress(c, cond); err != nil {
				return err
			}
		}
		return emitLoadPC(c, cond, PC, c.AddressLiteral(target))
	})
}

// JumpFar is JumpNear for pools out of LDR range: the pool word is reached
// through a 32-bit offset in scratch.
func JumpFar(cond Condition, target asm.Label, scratch Reg, link bool) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		start, err := emitOffsetChain(c, cond, scratch, 4)
		if err != nil {
			return err
		}
		if link {
			// The chain is position independent, so lr can be set after it.
			if err := setReturnAddress(c, cond); err != nil {
				return err
			}
		}
		anchor, err := c.Emit(SingleTransferReg{
			Cond:     cond,
			Transfer: Transfer{Load: true, Up: true, PreIndex: true},
			Rn:       PC,
			Rd:       PC,
			Rm:       scratch,
		})
		if err != nil {
			return err
		}
		c.AddFixup(Fixup{Kind: FixupMoveImmediate, Offset: start, Anchor: anchor, Count: 4, Target: c.AddressLiteral(target)})
		return nil
	})
}

// Address emits a data word holding the absolute address of label.
func Address(label asm.Label) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		pos := c.Word(0)
		c.AddFixup(Fixup{Kind: FixupAbsolute, Offset: pos, Target: label})
		return nil
	})
}

// Push is STMDB sp!, {regs}.
func Push(regs RegList) asm.Fragment {
	return Op(BlockTransfer{
		Cond:      CondAL,
		Transfer:  Transfer{WriteBack: true, PreIndex: true},
		Rn:        SP,
		Registers: regs,
	})
}

// Pop is LDMIA sp!, {regs}.
func Pop(regs RegList) asm.Fragment {
	return Op(BlockTransfer{
		Cond:      CondAL,
		Transfer:  Transfer{Load: true, WriteBack: true, Up: true},
		Rn:        SP,
		Registers: regs,
	})
}

// Return is MOV pc, lr.
func Return() asm.Fragment {
	return Op(DataProcessingShift{Cond: CondAL, Alu: AluMOV, Rd: PC, Rm: LR})
}
