package arm

import (
	"testing"

	"github.com/tinyrange/armcc/internal/asm"
	"github.com/tinyrange/armcc/internal/asm/testutil"
)

func TestKitchenSinkDisassemblyARM(t *testing.T) {
	frag, expect := buildARMKitchenSink()

	prog, err := EmitProgram(frag, 0)
	if err != nil {
		t.Fatalf("EmitProgram failed: %v", err)
	}

	lines := testutil.DisassembleWithObjdump(t, prog.Bytes())
	testutil.VerifyExpectations(t, lines, expect)
}

type armSinkBuilder struct {
	fragments    []asm.Fragment
	expectations []testutil.Expectation
}

func (b *armSinkBuilder) add(name, mnemonic string, frag asm.Fragment, contains ...string) {
	b.fragments = append(b.fragments, frag)
	b.expectations = append(b.expectations, testutil.Expectation{
		Name:     name,
		Mnemonic: mnemonic,
		Contains: contains,
	})
}

func (b *armSinkBuilder) addMulti(frag asm.Fragment, exps ...testutil.Expectation) {
	b.fragments = append(b.fragments, frag)
	b.expectations = append(b.expectations, exps...)
}

func (b *armSinkBuilder) fragment() asm.Fragment {
	return asm.Group(b.fragments)
}

func buildARMKitchenSink() (asm.Fragment, []testutil.Expectation) {
	var builder armSinkBuilder

	builder.add("mov_imm", "mov", MovImmediate(CondAL, R0, 1), "r0", "#1")
	builder.add("mvn_imm", "mvn", MovImmediate(CondAL, R1, 0xFFFFFF00), "r1", "#255")
	builder.add("add_reg", "add", Op(DataProcessingShift{Cond: CondAL, Alu: AluADD, Rn: R2, Rd: R1, Rm: R3}), "r1", "r2", "r3")
	builder.add("sub_imm", "sub", Op(DataProcessingImm{Cond: CondAL, Alu: AluSUB, Rn: SP, Rd: SP, Seed: 16}), "sp", "#16")
	builder.add("cmp_imm", "cmp", Op(DataProcessingImm{Cond: CondAL, Alu: AluCMP, Rn: R4, Seed: 0x3F}), "r4", "#63")
	builder.add("lsl_imm", "lsl", Op(DataProcessingShift{Cond: CondAL, Alu: AluMOV, Rd: R5, Rm: R6, Shift: ShiftLSL, Amount: 3}), "r5", "r6", "#3")
	builder.add("mul", "mul", Op(Multiply{Cond: CondAL, Rd: R0, Rs: R2, Rm: R1}), "r0", "r1", "r2")
	builder.add("umull", "umull", Op(MultiplyLong{Cond: CondAL, RdHi: R1, RdLo: R0, Rs: R3, Rm: R2}), "r0", "r1", "r2", "r3")
	builder.add("ldr_imm", "ldr", Op(SingleTransferImm{
		Cond:     CondAL,
		Transfer: Transfer{Load: true, Up: true, PreIndex: true},
		Rn:       R1, Rd: R0, Offset: 8,
	}), "r0", "[r1, #8]")
	builder.add("strb_imm", "strb", Op(SingleTransferImm{
		Cond:     CondAL,
		Transfer: Transfer{Up: true, PreIndex: true},
		Byte:     true,
		Rn:       R1, Rd: R2,
	}), "r2", "[r1")
	builder.add("ldrsh_imm", "ldrsh", Op(HalfwordTransferImm{
		Cond:     CondAL,
		Transfer: Transfer{Load: true, Up: true, PreIndex: true},
		Kind:     HalfwordSigned16,
		Rn:       R1, Rd: R0, Offset: 2,
	}), "r0", "[r1, #2]")
	builder.add("push", "push", Push(Regs(R4, R5, LR)), "r4", "r5", "lr")
	builder.add("pop", "pop", Pop(Regs(R4, R5, PC)), "r4", "r5", "pc")
	builder.add("swi", "", Op(SoftwareInterrupt{Cond: CondAL, Value: 3}), "0x00000003")
	builder.add("vfp_add", "", Op(VFPBinary{Cond: CondAL, Op: VFPADD, Fd: 0, Fn: 1, Fm: 2}), "s0", "s1", "s2")
	builder.add("vfp_add_double", "", Op(VFPBinary{Cond: CondAL, Op: VFPADD, Double: true, Fd: 1, Fn: 2, Fm: 3}), "d1", "d2", "d3")
	builder.add("vfp_mov_core", "", Op(VFPRegisterTransfer{Cond: CondAL, Fn: 3, Rd: R2}), "s3", "r2")
	builder.add("vfp_status", "", Op(VFPStatusTransfer{Cond: CondAL}))
	builder.add("return", "mov", Return(), "pc", "lr")

	builder.addMulti(asm.Group{
		BranchTo(CondEQ, "sink_end", false),
		MovImmediate(CondAL, R7, 0x12345678),
		asm.MarkLabel("sink_end"),
		Return(),
	},
		testutil.Expectation{Name: "beq", Mnemonic: "b", Cond: "eq"},
		testutil.Expectation{Name: "ldr_pool", Mnemonic: "ldr", Contains: []string{"r7", "[pc"}},
		testutil.Expectation{Name: "final_return", Mnemonic: "mov", Contains: []string{"pc", "lr"}, Absent: []string{"r7"}},
	)

	return builder.fragment(), builder.expectations
}
