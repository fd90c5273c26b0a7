package main

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/armcc/internal/config"
)

const program = `
entrypoint: sum
methods:
  - name: sum
    params: [i32]
    result: i32
    blocks:
      - name: entry
        ops:
          - mov: [r1, "#0"]
          - br: loop
      - name: loop
        ops:
          - add: [r1, r1, r0]
          - sub.s: [r0, r0, "#1"]
          - b.ne: [loop, done]
      - name: done
        ops:
          - mov: [r0, r1]
          - ret: [r0]
`

func writeProgram(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(program), 0o644))
	return path
}

func TestRunWritesELF(t *testing.T) {
	src := writeProgram(t)
	out := filepath.Join(t.TempDir(), "sum.elf")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-o", out, src}, &stdout, &stderr), stderr.String())

	f, err := elf.Open(out)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, elf.EM_ARM, f.Machine)
	require.Equal(t, uint64(0x8000), f.Progs[0].Vaddr)
}

func TestRunListing(t *testing.T) {
	src := writeProgram(t)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-list", "-dump-codemap", src}, &stdout, &stderr), stderr.String())

	listing := stdout.String()
	require.Contains(t, listing, "; region ram")
	require.Contains(t, listing, "sum:\n")
	require.Contains(t, listing, "00008000:  e3a01000")
	require.Contains(t, listing, "Ranges: ([]codemap.Range)")
	require.Contains(t, listing, `Method: (string) (len=3) "sum"`)
	require.NotContains(t, listing, "codemap sum\n")
}

func TestRunBinaryPerRegion(t *testing.T) {
	src := filepath.Join(t.TempDir(), "boot.yaml")
	require.NoError(t, os.WriteFile(src, []byte(`
methods:
  - name: vectors
    exception: vector_table
    blocks:
      - name: entry
        ops:
          - ret:
  - name: boot
    exception: bootstrap
    blocks:
      - name: entry
        ops:
          - ret:
`), 0o644))
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-format", "bin", "-o", filepath.Join(dir, "img.bin"), src}, &stdout, &stderr), stderr.String())

	vec, err := os.ReadFile(filepath.Join(dir, "img.vectors.bin"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(vec), 32)
	_, err = os.Stat(filepath.Join(dir, "img.ram.bin"))
	require.NoError(t, err)
}

func TestRunWriteTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-write-target", path}, &stdout, &stderr))

	target, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default().Architecture, target.Architecture)
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Error(t, run(nil, &stdout, &stderr))
	require.Error(t, run([]string{"-format", "hex", writeProgram(t)}, &stdout, &stderr))
	require.Error(t, run([]string{filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr))
}
