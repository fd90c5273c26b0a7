package arm

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/ir"
)

// Encodings of the registers outside the VFP numbering.
const (
	EncodingCPSR           uint32 = 96
	EncodingSPSR           uint32 = 97
	EncodingConditionCodes uint32 = 98
)

// Backend scratch registers. They are never handed to the allocator.
const (
	ScratchInteger = armasm.R12
	// ScratchSingle is the single register conversions go through.
	ScratchSingle uint32 = 31
)

// RegisterSet is the register table of one processor configuration. It is
// built once and only read afterwards.
type RegisterSet struct {
	regs       []*ir.RegisterDescriptor
	byName     map[string]*ir.RegisterDescriptor
	byEncoding map[uint32]*ir.RegisterDescriptor
	aliases    []*bitset.BitSet

	singles []*ir.RegisterDescriptor
	doubles []*ir.RegisterDescriptor
	status  *ir.RegisterDescriptor
	saved   *ir.RegisterDescriptor
	cc      *ir.RegisterDescriptor
}

// NewRegisterSet builds the table. VFP registers only exist when vfp is set.
func NewRegisterSet(vfp bool) *RegisterSet {
	s := &RegisterSet{
		byName:     make(map[string]*ir.RegisterDescriptor),
		byEncoding: make(map[uint32]*ir.RegisterDescriptor),
	}

	for n := 0; n < 16; n++ {
		class := ir.AvailableForAllocation
		name := fmt.Sprintf("r%d", n)
		switch armasm.Reg(n) {
		case ScratchInteger:
			class = ir.Scratch
		case armasm.SP:
			class, name = ir.Special|ir.StackPointer, "sp"
		case armasm.LR:
			class, name = ir.AvailableForAllocation|ir.LinkAddress, "lr"
		case armasm.PC:
			class, name = ir.Special|ir.ProgramCounter, "pc"
		}
		s.add(&ir.RegisterDescriptor{
			Name:          name,
			Encoding:      uint32(n),
			File:          ir.FileInteger,
			Class:         class,
			StorageOffset: 4 * n,
			StorageSize:   4,
		})
	}

	if vfp {
		for n := 0; n < 32; n++ {
			class := ir.AvailableForAllocation
			if uint32(n) == ScratchSingle {
				class = ir.Scratch
			}
			s.singles = append(s.singles, s.add(&ir.RegisterDescriptor{
				Name:          fmt.Sprintf("s%d", n),
				Encoding:      armasm.EncodingS0 + uint32(n),
				File:          ir.FileFloatingPoint,
				Class:         class,
				StorageOffset: 4 * n,
				StorageSize:   4,
			}))
		}
		for n := 0; n < 16; n++ {
			class := ir.AvailableForAllocation
			if uint32(2*n+1) == ScratchSingle {
				class = ir.Scratch
			}
			s.doubles = append(s.doubles, s.add(&ir.RegisterDescriptor{
				Name:          fmt.Sprintf("d%d", n),
				Encoding:      armasm.EncodingD0 + uint32(n),
				File:          ir.FileFloatingPoint,
				Double:        true,
				Class:         class,
				StorageOffset: 8 * n,
				StorageSize:   8,
			}))
		}
		for i, sys := range []struct {
			name string
			enc  uint32
		}{
			{"fpsid", armasm.EncodingFPSID},
			{"fpscr", armasm.EncodingFPSCR},
			{"fpexc", armasm.EncodingFPEXC},
		} {
			s.add(&ir.RegisterDescriptor{
				Name:          sys.name,
				Encoding:      sys.enc,
				File:          ir.FileSystem,
				Class:         ir.Special,
				StorageOffset: 4 * i,
				StorageSize:   4,
			})
		}
	}

	s.status = s.add(&ir.RegisterDescriptor{
		Name: "cpsr", Encoding: EncodingCPSR, File: ir.FileStatus,
		Class: ir.Special | ir.StatusRegister, StorageOffset: 0, StorageSize: 4,
	})
	s.saved = s.add(&ir.RegisterDescriptor{
		Name: "spsr", Encoding: EncodingSPSR, File: ir.FileStatus,
		Class: ir.Special | ir.StatusRegister, StorageOffset: 4, StorageSize: 4,
	})
	s.cc = s.add(&ir.RegisterDescriptor{
		Name: "cc", Encoding: EncodingConditionCodes, File: ir.FileConditionCodes,
		Class: ir.Special | ir.ConditionCodes, StorageSize: 4,
	})

	s.aliases = make([]*bitset.BitSet, len(s.regs))
	for i, a := range s.regs {
		set := bitset.New(uint(len(s.regs)))
		for j, b := range s.regs {
			if i != j && a.Overlaps(b) {
				set.Set(uint(j))
			}
		}
		s.aliases[i] = set
	}
	return s
}

func (s *RegisterSet) add(r *ir.RegisterDescriptor) *ir.RegisterDescriptor {
	r.Index = len(s.regs)
	s.regs = append(s.regs, r)
	s.byName[r.Name] = r
	s.byEncoding[r.Encoding] = r
	return r
}

func (s *RegisterSet) Len() int {
	return len(s.regs)
}

func (s *RegisterSet) All() []*ir.RegisterDescriptor {
	return s.regs
}

func (s *RegisterSet) ByIndex(idx int) *ir.RegisterDescriptor {
	return s.regs[idx]
}

func (s *RegisterSet) ByName(name string) (*ir.RegisterDescriptor, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// ByEncoding looks up a register by its numeric encoding. Encodings the
// processor does not have are reported as not found.
func (s *RegisterSet) ByEncoding(enc uint32) (*ir.RegisterDescriptor, bool) {
	r, ok := s.byEncoding[enc]
	return r, ok
}

// Integer returns r<n>.
func (s *RegisterSet) Integer(n armasm.Reg) *ir.RegisterDescriptor {
	return s.regs[n]
}

// Single returns s<n>, or nil without VFP.
func (s *RegisterSet) Single(n int) *ir.RegisterDescriptor {
	if n < 0 || n >= len(s.singles) {
		return nil
	}
	return s.singles[n]
}

// Double returns d<n>, or nil without VFP.
func (s *RegisterSet) Double(n int) *ir.RegisterDescriptor {
	if n < 0 || n >= len(s.doubles) {
		return nil
	}
	return s.doubles[n]
}

func (s *RegisterSet) HasVFP() bool {
	return len(s.singles) > 0
}

func (s *RegisterSet) Status(saved bool) *ir.RegisterDescriptor {
	if saved {
		return s.saved
	}
	return s.status
}

func (s *RegisterSet) ConditionCodes() *ir.RegisterDescriptor {
	return s.cc
}

// Aliases returns the registers sharing storage with r. The set must not
// be modified.
func (s *RegisterSet) Aliases(r *ir.RegisterDescriptor) *bitset.BitSet {
	return s.aliases[r.Index]
}

// Interferes reports whether writing a clobbers b.
func (s *RegisterSet) Interferes(a, b *ir.RegisterDescriptor) bool {
	return a == b || s.aliases[a.Index].Test(uint(b.Index))
}

// singleIndex is the first single register overlapping an FP register.
func singleIndex(r *ir.RegisterDescriptor) int {
	return r.StorageOffset / 4
}

// vfpNumber is the register number used in VFP opcode fields.
func vfpNumber(r *ir.RegisterDescriptor) uint32 {
	if r.Double {
		return r.Encoding - armasm.EncodingD0
	}
	return r.Encoding - armasm.EncodingS0
}

func intReg(r *ir.RegisterDescriptor) armasm.Reg {
	return armasm.Reg(r.Encoding)
}
