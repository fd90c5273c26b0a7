package irtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
	"github.com/tinyrange/armcc/internal/ir/arm"
)

func registers(t *testing.T) Registers {
	t.Helper()
	p, err := arm.NewPlatform(config.Default(), nil)
	require.NoError(t, err)
	return p.Registers()
}

const loopProgram = `
entrypoint: sum
methods:
  - name: sum
    params: [i32]
    result: i32
    blocks:
      - name: entry
        kind: entry
        ops:
          - mov: [r1, "#0"]
          - br: loop
      - name: loop
        weight: 10
        ops:
          - add: [r1, r1, r0]
          - sub.s: [r0, r0, "#1"]
          - b.ne: [loop, done]
      - name: done
        ops:
          - mov: [r0, r1]
          - ret: [r0]
data:
  - name: table
    words: [1, 0xdeadbeef]
  - name: greeting
    mutable: true
    string: hi
`

func TestParseLoop(t *testing.T) {
	prog, err := Parse([]byte(loopProgram), registers(t))
	require.NoError(t, err)
	require.Equal(t, "sum", prog.Entrypoint)
	require.Len(t, prog.Methods, 1)

	m := prog.Methods[0]
	require.Equal(t, []ir.Type{ir.Int32}, m.Params)
	require.Equal(t, ir.Int32, m.Result)
	require.Len(t, m.Blocks, 3)
	require.Equal(t, ir.BlockEntry, m.Blocks[0].Kind)
	require.Equal(t, 10, m.Blocks[1].Weight)

	sub, ok := m.Blocks[1].Operators[1].(*ir.Binary)
	require.True(t, ok)
	require.Equal(t, ir.OpSub, sub.Op)
	require.True(t, sub.SetCarry)
	require.False(t, sub.CarryIn)
	c, ok := sub.Rhs.(*ir.Constant)
	require.True(t, ok)
	require.Equal(t, uint64(1), c.Value)

	br, ok := m.Blocks[1].Terminator().(*ir.ConditionalControl)
	require.True(t, ok)
	require.Equal(t, ir.NotEqual, br.Cond)
	require.Same(t, m.Blocks[1], br.Taken)
	require.Same(t, m.Blocks[2], br.NotTaken)

	require.Len(t, prog.Data, 2)
	require.Equal(t, []byte{1, 0, 0, 0, 0xef, 0xbe, 0xad, 0xde}, prog.Data[0].Bytes)
	require.True(t, prog.Data[1].Mutable)
	require.Equal(t, []byte("hi"), prog.Data[1].Bytes)
}

func TestParseOperands(t *testing.T) {
	mp := &methodParser{regs: registers(t), method: &ir.Method{}, slots: map[string]*ir.StackLocation{}}

	e, err := mp.operand("r4/ref")
	require.NoError(t, err)
	reg := e.(*ir.PhysicalRegister)
	require.Equal(t, "r4", reg.Reg.Name)
	require.Equal(t, ir.Reference, reg.Typ)

	e, err = mp.operand("d2")
	require.NoError(t, err)
	require.Equal(t, ir.Float64, e.Type())

	e, err = mp.operand("s3")
	require.NoError(t, err)
	require.Equal(t, ir.Float32, e.Type())

	e, err = mp.operand("#-1/i8")
	require.NoError(t, err)
	require.Equal(t, "#-1", e.String())

	e, err = mp.operand("#1.5")
	require.NoError(t, err)
	require.Equal(t, ir.Float64, e.Type())

	e, err = mp.operand("#0x80000000/u32")
	require.NoError(t, err)
	require.Equal(t, uint32(0x80000000), e.(*ir.Constant).Word(0))

	e, err = mp.operand("@table")
	require.NoError(t, err)
	require.Equal(t, "table", e.(*ir.Constant).Symbol)

	a, err := mp.operand("local:x/f64")
	require.NoError(t, err)
	b, err := mp.operand("local:x")
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, ir.Float64, a.Type())

	in, err := mp.operand("in:1")
	require.NoError(t, err)
	loc := in.(*ir.StackLocation)
	require.Equal(t, ir.PlacementIn, loc.Placement)
	require.Equal(t, 1, loc.Index)
	require.Equal(t, -1, loc.Offset)

	_, err = mp.operand("local:x/i32")
	require.Error(t, err)
	_, err = mp.operand("r99")
	require.Error(t, err)
	_, err = mp.operand("heap:0")
	require.Error(t, err)
}

func TestParseFrameAndCalls(t *testing.T) {
	src := `
methods:
  - name: callee
    result: f64
    blocks:
      - name: entry
        ops:
          - mov: [d0, "#2.5"]
          - ret: [d0]
  - name: irq
    exception: irq
    fullContext: true
    blocks:
      - name: entry
        ops:
          - push: {registers: [r0, lr], computed: true}
          - pushfp: {low: 0, high: 2}
          - enter:
          - call: {target: callee, results: [d0]}
          - callr: {target: r4, args: [r0]}
          - intrinsic: {name: breakpoint, args: ["#7"]}
          - mrs.saved: [r1]
          - msr: [r1, 9]
          - mcr: {cp: 15, crn: 1, reg: r2}
          - leave:
          - popfp: {low: 0, high: 2}
          - pop: {registers: [r0, pc]}
          - ret:
`
	prog, err := Parse([]byte(src), registers(t))
	require.NoError(t, err)
	irq := prog.Method("irq")
	require.NotNil(t, irq)
	require.Equal(t, ir.ExceptionInterrupt, irq.Exception)
	require.True(t, irq.FullContext)

	ops := irq.Blocks[0].Operators
	push := ops[0].(*ir.MoveIntegerRegisters)
	require.False(t, push.Load)
	require.True(t, push.AddComputed)
	require.Equal(t, uint16(1<<0|1<<14), push.Registers)

	fp := ops[1].(*ir.MoveFloatingPointRegisters)
	require.Equal(t, 2, fp.High)
	require.True(t, ops[2].(*ir.MoveStackPointer).Enter)
	require.Equal(t, "callee", ops[3].(*ir.DirectCall).Target)
	require.Len(t, ops[4].(*ir.IndirectCall).Args, 1)
	require.Equal(t, "breakpoint", ops[5].(*ir.IntrinsicCall).Name)
	require.True(t, ops[6].(*ir.MoveFromStatusRegister).Saved)
	require.Equal(t, uint8(9), ops[7].(*ir.MoveToStatusRegister).Fields)
	require.Equal(t, uint32(15), ops[8].(*ir.MoveToCoprocessor).CpNum)
	require.Equal(t, uint16(1<<0|1<<15), ops[11].(*ir.MoveIntegerRegisters).Registers)
}

func TestParseErrors(t *testing.T) {
	regs := registers(t)
	for name, src := range map[string]string{
		"unknown operator": "methods: [{name: f, blocks: [{name: e, ops: [{frob: [r0]}, {ret: }]}]}]",
		"unknown block":    "methods: [{name: f, blocks: [{name: e, ops: [{br: nowhere}]}]}]",
		"bad condition":    "methods: [{name: f, blocks: [{name: e, ops: [{b.zz: [e, e]}]}]}]",
		"arity":            "methods: [{name: f, blocks: [{name: e, ops: [{add: [r0, r1]}, {ret: }]}]}]",
		"no terminator":    "methods: [{name: f, blocks: [{name: e, ops: [{nop: }]}]}]",
		"bad exception":    "methods: [{name: f, exception: nmi, blocks: [{name: e, ops: [{ret: }]}]}]",
	} {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			_, err := Parse([]byte(src), regs)
			require.Error(t, err)
		})
	}
}
