package testutil

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// objdumpCandidates are the cross disassemblers tried in order. ARM_OBJDUMP
// overrides the search.
var objdumpCandidates = []string{
	"arm-none-eabi-objdump",
	"arm-linux-gnueabi-objdump",
	"arm-linux-gnueabihf-objdump",
}

// DisasmLine is one instruction of an objdump listing.
type DisasmLine struct {
	Text       string
	Normalized string
	Mnemonic   string
}

func (l DisasmLine) Contains(s string) bool {
	return strings.Contains(l.Normalized, s)
}

func findObjdump() (string, bool) {
	if tool := os.Getenv("ARM_OBJDUMP"); tool != "" {
		path, err := exec.LookPath(tool)
		return path, err == nil
	}
	for _, tool := range objdumpCandidates {
		if path, err := exec.LookPath(tool); err == nil {
			return path, true
		}
	}
	return "", false
}

// DisassembleWithObjdump disassembles ARM code loaded at address 0. The test
// is skipped when no ARM objdump is installed.
func DisassembleWithObjdump(t *testing.T, code []byte) []DisasmLine {
	t.Helper()
	tool, ok := findObjdump()
	if !ok {
		t.Skip("no ARM objdump found (set ARM_OBJDUMP)")
	}

	path := filepath.Join(t.TempDir(), "code.o")
	if err := os.WriteFile(path, relocatableARM(code), 0o644); err != nil {
		t.Fatalf("write object: %v", err)
	}
	out, err := exec.Command(tool, "-d", "--no-show-raw-insn", path).CombinedOutput()
	if err != nil {
		t.Fatalf("%s: %v\n%s", filepath.Base(tool), err, out)
	}
	lines := parseListing(out)
	if len(lines) == 0 {
		t.Fatalf("objdump listed no instructions:\n%s", out)
	}
	return lines
}

// relocatableARM wraps code in an ELF32 object with a .text section and its
// section name table.
func relocatableARM(code []byte) []byte {
	const (
		ehsize = 52
		shsize = 40
	)
	names := []byte("\x00.text\x00.shstrtab\x00")
	text := append([]byte(nil), code...)
	for len(text)%4 != 0 {
		text = append(text, 0)
	}
	namesOff := ehsize + len(text)
	shoff := namesOff + len(names)
	for shoff%4 != 0 {
		shoff++
	}

	hdr := elf.Header32{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Flags:     0x05000000, // EABI5
		Ehsize:    ehsize,
		Shoff:     uint32(shoff),
		Shentsize: shsize,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section32{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       ehsize,
			Size:      uint32(len(code)),
			Addralign: 4,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       uint32(namesOff),
			Size:      uint32(len(names)),
			Addralign: 1,
		},
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	buf.Write(text)
	buf.Write(names)
	for buf.Len() < shoff {
		buf.WriteByte(0)
	}
	_ = binary.Write(&buf, binary.LittleEndian, sections)
	return buf.Bytes()
}

// parseListing keeps the instruction lines of objdump -d output. Labels,
// headers and data directives such as the .word lines of a literal pool
// are dropped.
func parseListing(out []byte) []DisasmLine {
	var lines []DisasmLine
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		_, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		text := strings.TrimSpace(rest)
		if text == "" || text[0] == '<' || text[0] == '.' || strings.HasPrefix(text, "file format") {
			continue
		}
		fields := strings.Fields(text)
		lines = append(lines, DisasmLine{
			Text:       text,
			Normalized: strings.Join(fields, " "),
			Mnemonic:   strings.ToLower(fields[0]),
		})
	}
	return lines
}
