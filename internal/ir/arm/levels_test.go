package arm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/armcc/internal/ir"
)

func firstOperator[T ir.Operator](t *testing.T, m *ir.Method) T {
	t.Helper()
	for _, b := range m.Blocks {
		for _, op := range b.Operators {
			if x, ok := op.(T); ok {
				return x
			}
		}
	}
	var zero T
	t.Fatalf("%s has no %T", m.Name, zero)
	return zero
}

// containsRun reports whether run appears contiguously in words.
func containsRun(words, run []uint32) bool {
	for i := 0; i+len(run) <= len(words); i++ {
		match := true
		for j, w := range run {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestEscalateWalksEveryLevel(t *testing.T) {
	levels := newEncodingLevels()
	call := &ir.DirectCall{Target: "g"}
	for _, want := range []BranchLevel{BranchNearRelativeLoad, BranchFarRelativeLoad} {
		require.NoError(t, levels.escalate(call, fixupOwner{op: call, branch: levels.branch(call, BranchShort)}))
		require.Equal(t, want, levels.branch(call, BranchShort))
	}
	err := levels.escalate(call, fixupOwner{op: call, branch: BranchFarRelativeLoad})
	require.ErrorIs(t, err, ir.ErrInternal)

	p := newTestPlatform(t, nil)
	prog := parseProgram(t, p, single(`
          - mov: [r0, "#0x12345678/u32"]
          - ret: [r0]
`))
	mov := prog.Method("f").Blocks[0].Operators[0]
	for _, want := range []ConstantLevel{
		ConstantNearRelativeLoad,
		ConstantFarRelativeLoad16Bit,
		ConstantFarRelativeLoad24Bit,
		ConstantFarRelativeLoad32Bit,
	} {
		cur := levels.constant(mov, ConstantSmallLoad)
		require.NoError(t, levels.escalate(mov, fixupOwner{op: mov, constant: cur}))
		require.Equal(t, want, levels.constant(mov, ConstantSmallLoad))
	}
	err = levels.escalate(mov, fixupOwner{op: mov, constant: ConstantFarRelativeLoad32Bit})
	require.ErrorIs(t, err, ir.ErrInternal)

	// A lower initial level never hides an escalated one.
	require.Equal(t, ConstantFarRelativeLoad32Bit, levels.constant(mov, ConstantImmediate))
}

func TestEmitConstantAtFarLevels(t *testing.T) {
	chain := []uint32{
		0xE3A0C000, // mov ip, #0
		0xE38CCC00, // orr ip, ip, #0 ror 24
		0xE38CC800, // orr ip, ip, #0 ror 16
		0xE38CC400, // orr ip, ip, #0 ror 8
	}
	for level, n := range map[ConstantLevel]int{
		ConstantFarRelativeLoad16Bit: 2,
		ConstantFarRelativeLoad24Bit: 3,
		ConstantFarRelativeLoad32Bit: 4,
	} {
		t.Run(level.String(), func(t *testing.T) {
			p := newTestPlatform(t, nil)
			prog := parseProgram(t, p, single(`
          - mov: [r0, "#0x12345678/u32"]
          - ret: [r0]
`))
			st := prepareMethod(t, p, prog, "f")
			st.levels.constants[prog.Method("f").Blocks[0].Operators[0]] = level

			sec, err := st.EmitCode()
			require.NoError(t, err)
			linked, err := sec.Link(0)
			require.NoError(t, err)
			words := wordsOf(linked.Bytes())

			// The pool word sits right after the return, so the offset is 0.
			want := append(append([]uint32{}, chain[:n]...),
				0xE79F000C, // ldr r0, [pc, ip]
				0xE1A0F00E,
				0x12345678,
			)
			require.Equal(t, want, words)
		})
	}
}

func TestEmitCallAtFarLevel(t *testing.T) {
	p := newTestPlatform(t, nil)
	prog := parseProgram(t, p, `
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
    blocks:
      - name: entry
        ops:
          - mov: [r0, "#42"]
          - ret: [r0]
`)
	st := prepareMethod(t, p, prog, "caller")
	call := firstOperator[*ir.DirectCall](t, st.Method())
	st.levels.branches[call] = BranchFarRelativeLoad

	sec, err := st.EmitCode()
	require.NoError(t, err)
	code := wordsOf(sec.Code[:sec.PoolOffset])
	require.True(t, containsRun(code, []uint32{
		0xE3A0C000, // mov ip, #0
		0xE38CC000, // orr ip, ip, #0
		0xE38CC000,
		0xE38CC000,
		0xE1A0E00F, // mov lr, pc
		0xE79FF00C, // ldr pc, [pc, ip]
	}), "%08x", code)
	require.Len(t, sec.Code[sec.PoolOffset:], 4, "one pool word for the callee address")
}
