package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "target.yaml", `architecture: ARMv5TE
vfp: true
convention:
  integerWords: 4
memory:
  - name: rom
    kinds: [vectors, bootstrap, code, data_ro]
    base: 0x0
    size: 0x10000
    reserved:
      - name: boot-loader
        base: 0x4000
        size: 0x1000
  - name: ram
    kinds: [DATA_RW]
    base: 0x20000000
    size: 0x8000
`)

	target, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if target.Architecture != "armv5te" {
		t.Errorf("Architecture = %q, want armv5te", target.Architecture)
	}
	if target.Version() != "v5" {
		t.Errorf("Version = %q, want v5", target.Version())
	}
	if got := *target.Convention.FloatWords; got != 4 {
		t.Errorf("FloatWords = %d, want 4", got)
	}
	if target.Convention.WordsPerResult != 2 {
		t.Errorf("WordsPerResult = %d, want 2", target.Convention.WordsPerResult)
	}
	if len(target.Memory) != 2 {
		t.Fatalf("Memory length = %d, want 2", len(target.Memory))
	}
	if !target.Memory[1].Serves(KindDataRW) {
		t.Errorf("ram kinds = %v, want data_rw", target.Memory[1].Kinds)
	}
	if got := target.Memory[0].Reserved[0].Base; got != 0x4000 {
		t.Errorf("reserved base = %#x, want 0x4000", got)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "target.toml", `architecture = "armv4"
vfp = false

[[memory]]
name = "flash"
kinds = ["vectors", "code"]
base = 0
size = 0x20000
`)

	target, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if target.Version() != "v4" {
		t.Errorf("Version = %q, want v4", target.Version())
	}
	if got := *target.Convention.FloatWords; got != 0 {
		t.Errorf("FloatWords = %d, want 0 without vfp", got)
	}
	if target.Memory[0].End() != 0x20000 {
		t.Errorf("End = %#x, want 0x20000", target.Memory[0].End())
	}
}

func TestLoadRejectsInvalidTargets(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown arch", "architecture: armv9\nmemory: [{name: a, kinds: [code], base: 0, size: 16}]\n", "unknown architecture"},
		{"vfp on v4", "architecture: armv4\nvfp: true\nmemory: [{name: a, kinds: [code], base: 0, size: 16}]\n", "vfp requires"},
		{"no memory", "architecture: armv5\n", "no memory"},
		{"bad kind", "memory: [{name: a, kinds: [heap], base: 0, size: 16}]\n", "unknown kind"},
		{"unaligned", "memory: [{name: a, kinds: [code], base: 2, size: 16}]\n", "not word aligned"},
		{"reserved outside", "memory: [{name: a, kinds: [code], base: 0, size: 16, reserved: [{base: 16, size: 4}]}]\n", "outside region"},
		{"duplicate", "memory: [{name: a, kinds: [code], base: 0, size: 16}, {name: a, kinds: [code], base: 16, size: 16}]\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "target.yaml", tt.content))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := Load(writeFile(t, "target.json", "{}")); err == nil {
		t.Fatal("expected error for .json")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")
	if err := Write(path, Default()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	target, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if target.Architecture != "armv5" || !target.VFP {
		t.Errorf("round trip lost target: %+v", target)
	}
	if len(target.Memory) != 2 || target.Memory[1].Base != 0x8000 {
		t.Errorf("round trip lost memory map: %+v", target.Memory)
	}
}
