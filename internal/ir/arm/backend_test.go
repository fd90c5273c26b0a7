package arm

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
)

func regionWords(t *testing.T, out *ir.Output, name string) []uint32 {
	t.Helper()
	for _, r := range out.Regions {
		if r.Name == name {
			return wordsOf(r.Program.Bytes())
		}
	}
	t.Fatalf("no region %s in output", name)
	return nil
}

const farCall = `
entrypoint: caller
methods:
  - name: caller
    result: i32
    blocks:
      - name: entry
        ops:
          - call: {target: leaf, results: [r0]}
          - ret: [r0]
  - name: leaf
    result: i32
    placement: far
    blocks:
      - name: entry
        ops:
          - mov: [r0, "#42"]
          - ret: [r0]
data:
  - name: answer
    words: [42]
`

func TestBuildEscalatesFarCalls(t *testing.T) {
	target := config.Default()
	target.Memory = append(target.Memory, config.Region{
		Name: "far", Kinds: []string{config.KindCode}, Base: 0x40000000, Size: 0x1000,
	})
	b, err := NewBackend(target)
	require.NoError(t, err)

	var prepared atomic.Int32
	b.Progress = func(string) { prepared.Add(1) }

	prog := parseProgram(t, b.Platform(), farCall)
	out, err := b.Build(context.Background(), prog)
	require.NoError(t, err)
	require.Equal(t, int32(2), prepared.Load())

	require.Equal(t, uint32(0x40000000), out.Symbols["leaf"])
	require.Contains(t, out.Symbols, "answer")
	require.Contains(t, regionWords(t, out, "ram"), uint32(0x40000000), "pool holds the callee address")
	require.Equal(t, []uint32{0xE3A0002A, 0xE1A0F00E}, regionWords(t, out, "far"))

	var st *CompilationState
	for _, s := range b.States() {
		if s.Method().Name == "caller" {
			st = s
		}
	}
	require.NotNil(t, st)
	var call ir.Operator
	for _, blk := range st.Method().Blocks {
		for _, op := range blk.Operators {
			if _, ok := op.(*ir.DirectCall); ok {
				call = op
			}
		}
	}
	require.NotNil(t, call)
	// The pool word holds the absolute address, so one escalation reaches
	// any distance. The far level is for pools beyond LDR range.
	require.Equal(t, BranchNearRelativeLoad, st.levels.branches[call])

	require.Contains(t, out.CodeMaps, "caller")
	require.Equal(t, out.Symbols["caller"], out.CodeMaps["caller"].Ranges[0].Start)
}

func TestBuildVectorTable(t *testing.T) {
	target := config.Default()
	b, err := NewBackend(target)
	require.NoError(t, err)
	prog := parseProgram(t, b.Platform(), `
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
  - name: irq
    exception: irq
    blocks:
      - name: entry
        ops:
          - ret:
`)
	out, err := b.Build(context.Background(), prog)
	require.NoError(t, err)
	require.Equal(t, uint32(0), out.Symbols["vectors"])

	vec := regionWords(t, out, "vectors")
	require.GreaterOrEqual(t, len(vec), 8)
	require.Equal(t, uint32(0xE59FF000), vec[0]&0xFFFFF000, "reset enters the bootstrap code")
	require.Equal(t, uint32(0xEF000002), vec[1], "no undefined handler")
	require.Equal(t, uint32(0xEF000000), vec[5])
	require.Equal(t, uint32(0xE59FF000), vec[6]&0xFFFFF000)
	require.Contains(t, vec[8:], out.Symbols["irq"])
	require.Contains(t, vec[8:], out.Symbols["boot"])

	var irq *CompilationState
	for _, s := range b.States() {
		if s.Method().Name == "irq" {
			irq = s
		}
	}
	require.NotNil(t, irq)
	sec := irq.Section()
	code := wordsOf(sec.Code[:sec.PoolOffset])
	require.Equal(t, uint32(0xE25EF004), code[len(code)-1], "subs pc, lr, #4")
}

func TestBuildProgramForTarget(t *testing.T) {
	require.Contains(t, ir.Families(), "arm")

	target := config.Default()
	p, err := NewPlatform(target, nil)
	require.NoError(t, err)
	prog := parseProgram(t, p, countdown)

	out, err := ir.BuildProgramForTarget(context.Background(), target, prog)
	require.NoError(t, err)
	require.Equal(t, uint32(0x8000), out.Symbols["sum"])
	words := regionWords(t, out, "ram")
	require.Equal(t, uint32(0x1AFFFFFC), words[3])
}

func TestBuildRejectsUnknownCallee(t *testing.T) {
	b, err := NewBackend(config.Default())
	require.NoError(t, err)
	prog := &ir.Program{Methods: []*ir.Method{{
		Name: "f",
		Blocks: []*ir.BasicBlock{{
			Name:      "entry",
			Operators: []ir.Operator{&ir.DirectCall{Target: "missing"}, &ir.ReturnControl{}},
		}},
	}}}
	_, err = b.Build(context.Background(), prog)
	require.Error(t, err)
}

func TestBuildHonoursCancellation(t *testing.T) {
	b, err := NewBackend(config.Default())
	require.NoError(t, err)
	prog := parseProgram(t, b.Platform(), countdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, prog)
	require.ErrorIs(t, err, context.Canceled)
}
