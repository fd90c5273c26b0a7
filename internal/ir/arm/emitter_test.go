package arm

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm/armasm"

	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
)

func single(body string) string {
	return `
methods:
  - name: f
    params: [i32, i32]
    result: i32
    blocks:
      - name: entry
        ops:
` + body
}

func TestEmitLeafAdd(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, pool := emitWords(t, p, single(`
          - add: [r0, r0, r1]
          - ret: [r0]
`), "f")
	require.Equal(t, []uint32{0xE0800001, 0xE1A0F00E}, code)
	require.Empty(t, pool)
}

const countdown = `
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

func TestEmitLoop(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, countdown, "sum")
	require.Equal(t, []uint32{
		0xE3A01000, // mov r1, #0
		0xE0811000, // add r1, r1, r0
		0xE2500001, // subs r0, r0, #1
		0x1AFFFFFC, // bne loop
		0xE1A00001, // mov r0, r1
		0xE1A0F00E, // mov pc, lr
	}, code)
}

func TestEmittedCodeDecodes(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, countdown, "sum")
	var buf [4]byte
	for i, w := range code {
		binary.LittleEndian.PutUint32(buf[:], w)
		inst, err := armasm.Decode(buf[:], armasm.ModeARM)
		require.NoError(t, err, "word %d: %#08x", i, w)
		require.NotEmpty(t, armasm.GNUSyntax(inst))
	}
}

func TestEmitConstants(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, pool := emitWords(t, p, single(`
          - mov: [r0, "#0x12345678/u32"]
          - mov: [r1, "#-1"]
          - ret: [r0]
`), "f")
	require.Equal(t, []uint32{
		0xE59F0004, // ldr r0, [pc, #4]
		0xE3E01000, // mvn r1, #0
		0xE1A0F00E,
	}, code)
	require.Equal(t, []uint32{0x12345678}, pool)
}

func TestEmitCompareAndSet(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, single(`
          - cmp: [r0, "#10"]
          - set.lt: [r0]
          - ret: [r0]
`), "f")
	require.Equal(t, []uint32{
		0xE350000A, // cmp r0, #10
		0xE3A00000, // mov r0, #0
		0xB3A00001, // movlt r0, #1
		0xE1A0F00E,
	}, code)
}

func TestEmitCompareNegatedImmediate(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, single(`
          - cmp: [r0, "#-4"]
          - add: [r1, r1, "#-8"]
          - ret: [r0]
`), "f")
	require.Equal(t, []uint32{
		0xE3700004, // cmn r0, #4
		0xE2411008, // sub r1, r1, #8
		0xE1A0F00E,
	}, code)
}

func TestEmitUnaryAndExtend(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, single(`
          - neg: [r0, r1]
          - abs: [r2, r3]
          - zext: [r0, r1, 1]
          - sext: [r2, r3, 2]
          - ret: [r0]
`), "f")
	require.Equal(t, []uint32{
		0xE2610000, // rsb r0, r1, #0
		0xE1B02003, // movs r2, r3
		0x42622000, // rsbmi r2, r2, #0
		0xE20100FF, // and r0, r1, #255
		0xE1A02803, // mov r2, r3, lsl #16
		0xE1A02842, // mov r2, r2, asr #16
		0xE1A0F00E,
	}, code)
}

func TestEmitLocalSlot(t *testing.T) {
	p := newTestPlatform(t, nil)
	prog := parseProgram(t, p, single(`
          - mov: ["local:x", r0]
          - mov: [r1, "local:x"]
          - ret: [r1]
`))
	st := prepareMethod(t, p, prog, "f")
	out, local, saved, in := st.StackLayout()
	require.Equal(t, [4]int{0, 1, 0, 0}, [4]int{out, local, saved, in})

	sec, err := st.EmitCode()
	require.NoError(t, err)
	require.Equal(t, []uint32{
		0xE24DD004, // sub sp, sp, #4
		0xE58D0000, // str r0, [sp]
		0xE59D1000, // ldr r1, [sp]
		0xE28DD004, // add sp, sp, #4
		0xE1A0F00E,
	}, wordsOf(sec.Code[:sec.PoolOffset]))
}

func TestEmitMultiWay(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, `
methods:
  - name: pick
    params: [i32]
    blocks:
      - name: entry
        ops:
          - switch: [r0, other, a, b]
      - name: other
        ops:
          - ret:
      - name: a
        ops:
          - ret:
      - name: b
        ops:
          - ret:
`, "pick")
	require.Equal(t, []uint32{
		0xE3500002, // cmp r0, #2
		0x379FF100, // ldrlo pc, [pc, r0, lsl #2]
		0xEA000001, // b other
		24,         // .word a
		28,         // .word b
		0xE1A0F00E,
		0xE1A0F00E,
		0xE1A0F00E,
	}, code)
}

func TestEmitFloatCompareUsesOrderedConditions(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, `
methods:
  - name: neg
    params: [f64]
    result: i32
    blocks:
      - name: entry
        ops:
          - cmp: [d0, "#0/f64"]
          - b.lt: [yes, no]
      - name: yes
        ops:
          - mov: [r0, "#1"]
          - ret: [r0]
      - name: no
        ops:
          - mov: [r0, "#0"]
          - ret: [r0]
`, "neg")
	// fcmpzd, fmstat, then the inverted branch to "no".
	require.GreaterOrEqual(t, len(code), 3)
	require.Equal(t, uint32(0x5), code[2]>>28, "expected bpl, got %#08x", code[2])
	require.Equal(t, uint32(0xA), code[2]>>24&0xF)
}

func TestEmitBreakpoint(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, single(`
          - intrinsic: {name: Breakpoint, args: ["#7"]}
          - ret:
`), "f")
	require.Equal(t, []uint32{0xE1200077, 0xE1A0F00E}, code)

	v4 := newTestPlatform(t, func(target *config.Target) {
		target.Architecture = "armv4"
		target.VFP = false
		zero := 0
		target.Convention.FloatWords = &zero
	})
	prog := parseProgram(t, v4, single(`
          - bkpt: ["#7"]
          - ret:
`))
	st := prepareMethod(t, v4, prog, "f")
	_, err := st.EmitCode()
	require.ErrorIs(t, err, ir.ErrNotImplemented)
}

func TestEmitRejectsIntegerDivide(t *testing.T) {
	p := newTestPlatform(t, nil)
	prog := parseProgram(t, p, single(`
          - div: [r0, r0, r1]
          - ret: [r0]
`))
	st := prepareMethod(t, p, prog, "f")
	_, err := st.EmitCode()
	require.True(t, errors.Is(err, ir.ErrNotImplemented), "err = %v", err)
}

func TestEmitCalleeSavedRegisters(t *testing.T) {
	p := newTestPlatform(t, nil)
	prog := parseProgram(t, p, `
methods:
  - name: leaf
    blocks:
      - name: entry
        ops:
          - ret:
  - name: keep
    params: [ref]
    result: ref
    blocks:
      - name: entry
        ops:
          - mov: [r4/ref, r0/ref]
          - call: {target: leaf}
          - mov: [r0/ref, r4/ref]
          - ret: [r0/ref]
`)
	st := prepareMethod(t, p, prog, "keep")
	sec, err := st.EmitCode()
	require.NoError(t, err)
	code := wordsOf(sec.Code[:sec.PoolOffset])
	require.Len(t, code, 5)
	require.Equal(t, uint32(0xE92D4010), code[0]) // stmdb sp!, {r4, lr}
	require.Equal(t, uint32(0xE1A04000), code[1]) // mov r4, r0
	require.Equal(t, uint32(0xEB), code[2]>>24)   // bl leaf
	require.Equal(t, uint32(0xE1A00004), code[3]) // mov r0, r4
	require.Equal(t, uint32(0xE8BD8010), code[4]) // ldmia sp!, {r4, pc}

	changed, err := st.CreateCodeMaps(0x8000)
	require.NoError(t, err)
	require.True(t, changed)
	cm := st.CodeMap()
	require.Len(t, cm.Ranges, 1)
	r := cm.Ranges[0]
	require.Equal(t, uint32(0x8000), r.Start)
	require.Equal(t, uint32(0x8000+sec.PoolOffset), r.End)
	require.NotZero(t, r.Flags&codemap.EntryPoint)
	require.NotZero(t, r.Flags&codemap.HasIntRegisterSave)

	var entered []uint8
	require.NoError(t, r.Decode(func(ev codemap.Event) error {
		if ev.Effect == codemap.EnterRegisterSet {
			entered = append(entered, ev.Register)
		}
		return nil
	}))
	require.Contains(t, entered, uint8(0))
	require.Contains(t, entered, uint8(4))

	changed, err = st.CreateCodeMaps(0x8000)
	require.NoError(t, err)
	require.False(t, changed, "an unchanged method must keep its code map")
}

func TestEmitZeroShiftSetsFlags(t *testing.T) {
	p := newTestPlatform(t, nil)
	code, _ := emitWords(t, p, single(`
          - add: [r1, r0, r1]
          - shl.s: [r0, r0, "#0"]
          - ret: [r0]
`), "f")
	require.Equal(t, []uint32{
		0xE0801001, // add r1, r0, r1
		0xE1B00000, // movs r0, r0
		0xE1A0F00E,
	}, code)
}

func TestEmitRejectsMismatchedRegisterFiles(t *testing.T) {
	p := newTestPlatform(t, nil)
	for _, body := range []string{
		"          - mov: [s0, d1]\n          - ret:\n",
		"          - mov: [d0, s1]\n          - ret:\n",
	} {
		prog := parseProgram(t, p, single(body))
		st := prepareMethod(t, p, prog, "f")
		_, err := st.EmitCode()
		require.ErrorIs(t, err, ir.ErrTypeConsistency, body)
	}
}
