package arm

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/armcc/internal/asm"
)

const (
	elfHeaderSize        = 52
	elfProgramHeaderSize = 32

	// EABI version 5, the value GNU tools expect on ARM executables.
	elfFlagsEABI5 = 0x05000000
)

var defaultStandaloneELFConfig = StandaloneELFConfig{
	BaseAddress:      0x8000,
	SegmentOffset:    0x1000,
	SegmentAlignment: 0x1000,
	SegmentFlags:     elf.PF_R | elf.PF_X,
}

type StandaloneELFConfig struct {
	BaseAddress      uint32
	SegmentOffset    uint32
	SegmentAlignment uint32
	SegmentFlags     elf.ProgFlag
}

func DefaultStandaloneELFConfig() StandaloneELFConfig {
	return defaultStandaloneELFConfig
}

// StandaloneELF wraps an image in a single PT_LOAD segment at the program's
// own base address.
func StandaloneELF(prog asm.Program) ([]byte, error) {
	cfg := DefaultStandaloneELFConfig()
	cfg.BaseAddress = prog.Base()
	return StandaloneELFWithConfig(prog, cfg)
}

func StandaloneELFWithConfig(prog asm.Program, cfg StandaloneELFConfig) ([]byte, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	code := prog.RelocatedCopy(cfg.BaseAddress)
	size := uint32(len(code))

	prefix := make([]byte, cfg.SegmentOffset)
	fillELFHeader(prefix[:elfHeaderSize], cfg)
	fillProgramHeader(prefix[elfHeaderSize:elfHeaderSize+elfProgramHeaderSize], cfg, size)

	return append(prefix, code...), nil
}

func EmitStandaloneELF(f asm.Fragment) ([]byte, error) {
	cfg := DefaultStandaloneELFConfig()
	prog, err := EmitProgram(f, cfg.BaseAddress)
	if err != nil {
		return nil, err
	}
	return StandaloneELFWithConfig(prog, cfg)
}

func (cfg StandaloneELFConfig) withDefaults() StandaloneELFConfig {
	def := DefaultStandaloneELFConfig()
	if cfg.SegmentOffset == 0 {
		cfg.SegmentOffset = def.SegmentOffset
	}
	if cfg.SegmentAlignment == 0 {
		cfg.SegmentAlignment = def.SegmentAlignment
	}
	if cfg.SegmentFlags == 0 {
		cfg.SegmentFlags = def.SegmentFlags
	}
	return cfg
}

func (cfg StandaloneELFConfig) validate() error {
	if cfg.SegmentOffset < elfHeaderSize+elfProgramHeaderSize {
		return fmt.Errorf("segment offset %#x too small for ELF headers (%#x)", cfg.SegmentOffset, elfHeaderSize+elfProgramHeaderSize)
	}
	if cfg.SegmentAlignment == 0 || cfg.SegmentAlignment&(cfg.SegmentAlignment-1) != 0 {
		return fmt.Errorf("segment alignment %#x is not a power of two", cfg.SegmentAlignment)
	}
	if (cfg.BaseAddress-cfg.SegmentOffset)%cfg.SegmentAlignment != 0 {
		return fmt.Errorf("base address %#x must be congruent to offset %#x modulo %#x",
			cfg.BaseAddress, cfg.SegmentOffset, cfg.SegmentAlignment)
	}
	return nil
}

func fillELFHeader(buf []byte, cfg StandaloneELFConfig) {
	for idx := range buf {
		buf[idx] = 0
	}
	buf[0] = 0x7f
	buf[1] = 'E'
	buf[2] = 'L'
	buf[3] = 'F'
	buf[4] = byte(elf.ELFCLASS32)
	buf[5] = byte(elf.ELFDATA2LSB)
	buf[6] = byte(elf.EV_CURRENT)

	binary.LittleEndian.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(buf[18:], uint16(elf.EM_ARM))
	binary.LittleEndian.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	binary.LittleEndian.PutUint32(buf[24:], cfg.BaseAddress)
	binary.LittleEndian.PutUint32(buf[28:], elfHeaderSize)
	binary.LittleEndian.PutUint32(buf[32:], 0) // section header offset
	binary.LittleEndian.PutUint32(buf[36:], elfFlagsEABI5)
	binary.LittleEndian.PutUint16(buf[40:], elfHeaderSize)
	binary.LittleEndian.PutUint16(buf[42:], elfProgramHeaderSize)
	binary.LittleEndian.PutUint16(buf[44:], 1) // one program header
}

func fillProgramHeader(buf []byte, cfg StandaloneELFConfig, size uint32) {
	for idx := range buf {
		buf[idx] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(buf[4:], cfg.SegmentOffset)
	binary.LittleEndian.PutUint32(buf[8:], cfg.BaseAddress)
	binary.LittleEndian.PutUint32(buf[12:], cfg.BaseAddress)
	binary.LittleEndian.PutUint32(buf[16:], size)
	binary.LittleEndian.PutUint32(buf[20:], size)
	binary.LittleEndian.PutUint32(buf[24:], uint32(cfg.SegmentFlags))
	binary.LittleEndian.PutUint32(buf[28:], cfg.SegmentAlignment)
}
