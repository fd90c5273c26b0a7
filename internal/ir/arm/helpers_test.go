package arm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
	"github.com/tinyrange/armcc/internal/ir/irtext"
)

func newTestPlatform(t *testing.T, edit func(*config.Target)) *Platform {
	t.Helper()
	target := config.Default()
	if edit != nil {
		edit(target)
	}
	p, err := NewPlatform(target, nil)
	require.NoError(t, err)
	return p
}

func parseProgram(t *testing.T, p *Platform, src string) *ir.Program {
	t.Helper()
	prog, err := irtext.Parse([]byte(src), p.Registers())
	require.NoError(t, err)
	return prog
}

// prepareMethod runs the passes Backend.prepare runs for one method.
func prepareMethod(t *testing.T, p *Platform, prog *ir.Program, name string) *CompilationState {
	t.Helper()
	m := prog.Method(name)
	require.NotNil(t, m, "method %s", name)
	st := NewCompilationState(p, prog, m)
	require.NoError(t, p.LowerIntrinsics(m))
	p.SynthesizeFrame(m)
	require.NoError(t, st.PrepareDataStructures())
	require.NoError(t, st.AssignStackLocations())
	st.OrderBasicBlocks()
	return st
}

// emitWords compiles one method and links it alone at address 0. It
// returns the code words before the literal pool and the pool words.
func emitWords(t *testing.T, p *Platform, src, name string) (code, pool []uint32) {
	t.Helper()
	st := prepareMethod(t, p, parseProgram(t, p, src), name)
	sec, err := st.EmitCode()
	require.NoError(t, err)
	linked, err := sec.Link(0)
	require.NoError(t, err)
	words := wordsOf(linked.Bytes())
	return words[:sec.PoolOffset/4], words[sec.PoolOffset/4:]
}

func wordsOf(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}
