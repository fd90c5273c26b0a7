package arm

import (
	"fmt"
	"log/slog"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/mod/semver"

	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/image"
	"github.com/tinyrange/armcc/internal/ir"
)

// Capabilities are the processor features code may rely on.
type Capabilities uint32

const (
	ARMv4  Capabilities = 0x00001
	ARMv5  Capabilities = 0x00002
	ARMv7M Capabilities = 0x00004
	ARMv7R Capabilities = 0x00008
	ARMv7A Capabilities = 0x00010
	VFPv2  Capabilities = 0x10000
)

// InstructionSet selects the opcode families the emitter may use.
type InstructionSet uint8

const (
	InstructionSetARM InstructionSet = iota
	InstructionSetARMVFP
)

func (s InstructionSet) String() string {
	if s == InstructionSetARMVFP {
		return "arm+vfp"
	}
	return "arm"
}

// Placement is where an object goes in the memory map.
type Placement struct {
	Kind   string
	Region string
}

// Platform is the per-target singleton shared by every method compilation.
// It is not modified after NewPlatform returns.
type Platform struct {
	target *config.Target
	caps   Capabilities
	regs   *RegisterSet
	cc     *CallingConvention
	isa    InstructionSet
	log    *slog.Logger
}

func NewPlatform(target *config.Target, log *slog.Logger) (*Platform, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Platform{target: target, log: log}

	version := target.Version()
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("arm: architecture %q has no version", target.Architecture)
	}
	switch {
	case semver.Compare(version, "v7") >= 0:
		p.caps = ARMv4 | ARMv5 | ARMv7M
	case semver.Compare(version, "v5") >= 0:
		p.caps = ARMv4 | ARMv5
	default:
		p.caps = ARMv4
	}
	if target.VFP {
		p.caps |= VFPv2
		p.isa = InstructionSetARMVFP
	}

	p.regs = NewRegisterSet(target.VFP)
	p.cc = NewCallingConvention(p.regs, target.Convention)
	return p, nil
}

func (p *Platform) Capabilities() Capabilities { return p.caps }
func (p *Platform) HasVFP() bool               { return p.caps&VFPv2 != 0 }
func (p *Platform) Registers() *RegisterSet    { return p.regs }
func (p *Platform) Convention() *CallingConvention {
	return p.cc
}
func (p *Platform) InstructionSet() InstructionSet { return p.isa }
func (p *Platform) Target() *config.Target         { return p.target }
func (p *Platform) Logger() *slog.Logger           { return p.log }

// PlatformVersion is the architecture name used in diagnostics.
func (p *Platform) PlatformVersion() string {
	switch {
	case p.caps&ARMv7M != 0:
		return "7M"
	case p.caps&ARMv5 != 0:
		return "5"
	}
	return "4"
}

// AtLeast reports whether the target architecture is version or newer.
func (p *Platform) AtLeast(version string) bool {
	return semver.Compare(p.target.Version(), version) >= 0
}

// CanFitInRegister reports whether a value of typ can live in one register.
func (p *Platform) CanFitInRegister(typ ir.Type) bool {
	if typ.IsFloat() && p.HasVFP() {
		return true
	}
	return typ.Size() <= 4
}

// GetRuntimeType is the type a register holds when nothing else is known.
func (p *Platform) GetRuntimeType(reg *ir.RegisterDescriptor) ir.Type {
	return registerType(reg)
}

const (
	MemoryAlignment = 4
	LoadCost        = 4
	StoreCost       = 3
)

// GetOffsetLimit is the exclusive bound on the immediate offset of a load or
// store of typ.
func (p *Platform) GetOffsetLimit(typ ir.Type) int32 {
	if typ.IsFloat() && p.HasVFP() {
		return 1024
	}
	if typ.Size() < 4 {
		return 256
	}
	return 4096
}

// ComputeSetOfRegistersToSave decides what a method's prologue preserves.
// Exception handlers save every register the convention does not scratch
// (their wrappers push the scratched ones explicitly); FastInterrupt skips
// the banked r8-r12. Methods asking for the full context save every
// non-special register. Everything else saves the modified registers the
// convention requires.
func (p *Platform) ComputeSetOfRegistersToSave(m *ir.Method, modified *bitset.BitSet) *bitset.BitSet {
	out := bitset.New(uint(p.regs.Len()))
	for _, reg := range p.regs.All() {
		if reg.File != ir.FileInteger && reg.File != ir.FileFloatingPoint {
			continue
		}
		switch {
		case m.Exception.IsHandler():
			if reg.Is(ir.Special) || p.cc.IsScratched(reg) {
				continue
			}
			if m.Exception == ir.ExceptionFastInterrupt && reg.File == ir.FileInteger &&
				reg.Encoding >= 8 && reg.Encoding <= 12 {
				continue
			}
			out.Set(uint(reg.Index))
		case m.FullContext:
			if !reg.Is(ir.Special) {
				out.Set(uint(reg.Index))
			}
		default:
			if modified != nil && modified.Test(uint(reg.Index)) && p.cc.ShouldSaveRegister(reg) {
				out.Set(uint(reg.Index))
			}
		}
	}
	return out
}

// GetMemoryRequirements classifies a method or data blob into a memory
// region kind. Explicit placements win.
func (p *Platform) GetMemoryRequirements(obj any) (Placement, error) {
	switch o := obj.(type) {
	case *ir.Method:
		pl := Placement{Kind: config.KindCode, Region: o.Placement}
		switch o.Exception {
		case ir.ExceptionVectorTable:
			pl.Kind = config.KindVectors
		case ir.ExceptionBootstrap, ir.ExceptionReset:
			pl.Kind = config.KindBootstrap
		}
		return pl, nil
	case *ir.DataDescriptor:
		pl := Placement{Kind: config.KindDataRO, Region: o.Placement}
		if o.Mutable {
			pl.Kind = config.KindDataRW
		}
		return pl, nil
	}
	return Placement{}, fmt.Errorf("arm: no memory requirements for %T: %w", obj, ir.ErrTypeConsistency)
}

// ConfigureMemoryMap builds the memory map described by the target.
func (p *Platform) ConfigureMemoryMap() (*image.MemoryMap, error) {
	return image.NewMemoryMap(p.target.Memory)
}
