package arm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tinyrange/armcc/internal/asm"
)

// ErrOutOfRange reports a fixup whose target cannot be reached by the opcode
// form that was emitted. Callers escalate the encoding level and retry.
var ErrOutOfRange = errors.New("arm asm: fixup target out of range")

type FixupKind uint8

const (
	// FixupBranch patches the 24-bit word offset of B/BL.
	FixupBranch FixupKind = iota
	// FixupLoadPC patches LDR rd,[pc,#±imm12].
	FixupLoadPC
	// FixupLoadPCVFP patches FLDS/FLDD rd,[pc,#±imm8*4].
	FixupLoadPCVFP
	// FixupMoveImmediate patches a MOV/ORR chain that builds a pc-relative
	// offset in a scratch register, consumed by the opcode at Anchor.
	FixupMoveImmediate
	// FixupAbsolute stores the 32-bit target address.
	FixupAbsolute
)

var fixupKindNames = [...]string{"branch", "ldr-pc", "fld-pc", "mov-imm", "abs32"}

func (k FixupKind) String() string {
	if int(k) < len(fixupKindNames) {
		return fixupKindNames[k]
	}
	return fmt.Sprintf("fixup(%d)", uint8(k))
}

// Fixup is a deferred patch of the opcode (or data word) at Offset.
type Fixup struct {
	Kind   FixupKind
	Offset int
	// Anchor is the opcode reading pc for FixupMoveImmediate. Ignored by the
	// other kinds, which read pc themselves.
	Anchor int
	// Count is the number of chained opcodes for FixupMoveImmediate.
	Count  int
	Target asm.Label
	Addend int32
}

func (f Fixup) String() string {
	return fmt.Sprintf("%s@%#x->%s%+d", f.Kind, f.Offset, f.Target, f.Addend)
}

// Apply patches code, which is linked at base, so that the fixup refers to the
// absolute address target.
func (f Fixup) Apply(code []byte, base, target uint32) error {
	if f.Offset < 0 || f.Offset+4 > len(code) {
		return fmt.Errorf("arm asm: fixup %s outside region of %d bytes", f, len(code))
	}
	dest := int64(target) + int64(f.Addend)
	site := int64(base) + int64(f.Offset)

	switch f.Kind {
	case FixupBranch:
		rel := dest - (site + PCOffset)
		if !BranchOffsetFits(rel) {
			return fmt.Errorf("%w: %s needs %d bytes", ErrOutOfRange, f, rel)
		}
		word := readWord(code, f.Offset)
		word = word&^0x00FFFFFF | (uint32(rel)>>2)&0x00FFFFFF
		writeWord(code, f.Offset, word)

	case FixupLoadPC:
		rel := dest - (site + PCOffset)
		mag, up := magnitude(rel)
		if mag >= singleTransferLimit {
			return fmt.Errorf("%w: %s needs %d bytes", ErrOutOfRange, f, rel)
		}
		word := readWord(code, f.Offset)
		word = word&^(0xFFF|1<<23) | uint32(mag) | flag(up, 23)
		writeWord(code, f.Offset, word)

	case FixupLoadPCVFP:
		rel := dest - (site + PCOffset)
		mag, up := magnitude(rel)
		if mag%4 != 0 || mag/4 >= coprocTransferLimitW {
			return fmt.Errorf("%w: %s needs %d bytes", ErrOutOfRange, f, rel)
		}
		word := readWord(code, f.Offset)
		word = word&^(0xFF|1<<23) | uint32(mag/4) | flag(up, 23)
		writeWord(code, f.Offset, word)

	case FixupMoveImmediate:
		if f.Count < 1 || f.Count > 4 {
			return fmt.Errorf("arm asm: move-immediate chain of %d opcodes", f.Count)
		}
		if f.Anchor < 0 || f.Anchor+4 > len(code) || f.Offset+4*f.Count > len(code) {
			return fmt.Errorf("arm asm: fixup %s outside region of %d bytes", f, len(code))
		}
		anchor := int64(base) + int64(f.Anchor)
		rel := dest - (anchor + PCOffset)
		mag, up := magnitude(rel)
		if f.Count < 4 && mag >= 1<<(8*f.Count) {
			return fmt.Errorf("%w: %s needs %d bytes", ErrOutOfRange, f, rel)
		}
		for k := 0; k < f.Count; k++ {
			seed := uint32(mag>>(8*k)) & 0xFF
			rot := uint32(16-4*k) & 0xF
			pos := f.Offset + 4*k
			word := readWord(code, pos)
			writeWord(code, pos, word&^0xFFF|rot<<8|seed)
		}
		word, err := setDirection(readWord(code, f.Anchor), up)
		if err != nil {
			return fmt.Errorf("arm asm: fixup %s: %w", f, err)
		}
		writeWord(code, f.Anchor, word)

	case FixupAbsolute:
		writeWord(code, f.Offset, uint32(dest))

	default:
		return fmt.Errorf("arm asm: unknown fixup kind %d", f.Kind)
	}
	return nil
}

func magnitude(v int64) (int64, bool) {
	if v < 0 {
		return -v, false
	}
	return v, true
}

// setDirection makes the anchor of a move-immediate chain add or subtract the
// computed offset. Loads flip their U bit; data processing flips ADD and SUB,
// which only subtracts the right way round when pc is the first operand.
func setDirection(word uint32, up bool) (uint32, error) {
	if fmtSingleReg.matches(word) {
		return word&^(1<<23) | flag(up, 23), nil
	}
	if !fmtDataProcessingShift.matches(word) {
		return 0, fmt.Errorf("anchor %#08x is neither a load nor an add", word)
	}
	if Reg((word>>16)&0xF) != PC {
		return 0, fmt.Errorf("anchor %#08x does not read pc as its first operand", word)
	}
	alu := AluSUB
	if up {
		alu = AluADD
	}
	return word&^(0xF<<21) | uint32(alu)<<21, nil
}

func readWord(code []byte, pos int) uint32 {
	return binary.LittleEndian.Uint32(code[pos : pos+4])
}

func writeWord(code []byte, pos int, word uint32) {
	binary.LittleEndian.PutUint32(code[pos:pos+4], word)
}
