package arm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type knownOpcode struct {
	name string
	op   Opcode
	word uint32
}

func knownOpcodes() []knownOpcode {
	return []knownOpcode{
		{"mov r0, #1", &DataProcessingImm{Cond: CondAL, Alu: AluMOV, Rd: R0, Seed: 1}, 0xE3A00001},
		{"cmp r1, #0x3f", &DataProcessingImm{Cond: CondAL, Alu: AluCMP, SetCC: true, Rn: R1, Seed: 0x3F}, 0xE351003F},
		{"subne sp, sp, #0x100", &DataProcessingImm{Cond: CondNE, Alu: AluSUB, Rn: SP, Rd: SP, Seed: 1, Rotation: 12}, 0x124DDC01},
		{"add r1, r2, r3", &DataProcessingShift{Cond: CondAL, Alu: AluADD, Rn: R2, Rd: R1, Rm: R3}, 0xE0821003},
		{"mov r0, r1, lsl #2", &DataProcessingShift{Cond: CondAL, Alu: AluMOV, Rd: R0, Rm: R1, Shift: ShiftLSL, Amount: 2}, 0xE1A00101},
		{"movs r0, r1, asr r2", &DataProcessingReg{Cond: CondAL, Alu: AluMOV, SetCC: true, Rd: R0, Rm: R1, Shift: ShiftASR, Rs: R2}, 0xE1B00251},
		{"mul r0, r1, r2", &Multiply{Cond: CondAL, Rd: R0, Rs: R2, Rm: R1}, 0xE0000291},
		{"mla r0, r1, r2, r3", &Multiply{Cond: CondAL, Accumulate: true, Rd: R0, Rn: R3, Rs: R2, Rm: R1}, 0xE0203291},
		{"umull r0, r1, r2, r3", &MultiplyLong{Cond: CondAL, RdHi: R1, RdLo: R0, Rs: R3, Rm: R2}, 0xE0810392},
		{"smull r0, r1, r2, r3", &MultiplyLong{Cond: CondAL, Signed: true, RdHi: R1, RdLo: R0, Rs: R3, Rm: R2}, 0xE0C10392},
		{"ldrh r0, [r1, #2]", &HalfwordTransferImm{Cond: CondAL, Transfer: Transfer{Load: true, Up: true, PreIndex: true}, Kind: HalfwordUnsigned16, Rn: R1, Rd: R0, Offset: 2}, 0xE1D100B2},
		{"ldrsb r0, [r1, #-1]", &HalfwordTransferImm{Cond: CondAL, Transfer: Transfer{Load: true, PreIndex: true}, Kind: HalfwordSigned8, Rn: R1, Rd: R0, Offset: 1}, 0xE15100D1},
		{"strh r0, [r1, r2]", &HalfwordTransferReg{Cond: CondAL, Transfer: Transfer{Up: true, PreIndex: true}, Kind: HalfwordUnsigned16, Rn: R1, Rd: R0, Rm: R2}, 0xE18100B2},
		{"ldr r0, [pc, #4]", &SingleTransferImm{Cond: CondAL, Transfer: Transfer{Load: true, Up: true, PreIndex: true}, Rn: PC, Rd: R0, Offset: 4}, 0xE59F0004},
		{"strb r2, [r3, #-8]!", &SingleTransferImm{Cond: CondAL, Transfer: Transfer{WriteBack: true, PreIndex: true}, Byte: true, Rn: R3, Rd: R2, Offset: 8}, 0xE5632008},
		{"ldrlo pc, [pc, r0, lsl #2]", &SingleTransferReg{Cond: CondLO, Transfer: Transfer{Load: true, Up: true, PreIndex: true}, Rn: PC, Rd: PC, Rm: R0, Shift: ShiftLSL, Amount: 2}, 0x379FF100},
		{"stmdb sp!, {r4, lr}", &BlockTransfer{Cond: CondAL, Transfer: Transfer{WriteBack: true, PreIndex: true}, Rn: SP, Registers: Regs(R4, LR)}, 0xE92D4010},
		{"ldmia sp!, {r4, pc}", &BlockTransfer{Cond: CondAL, Transfer: Transfer{Load: true, WriteBack: true, Up: true}, Rn: SP, Registers: Regs(R4, PC)}, 0xE8BD8010},
		{"b .", &Branch{Cond: CondAL, Offset: -8}, 0xEAFFFFFE},
		{"bleq .+8", &Branch{Cond: CondEQ, Link: true, Offset: 0}, 0x0B000000},
		{"swi 0x12", &SoftwareInterrupt{Cond: CondAL, Value: 0x12}, 0xEF000012},
		{"bkpt 0x1234", &Breakpoint{Value: 0x1234}, 0xE1212374},
		{"mrs r0, cpsr", &MoveFromStatus{Cond: CondAL, Rd: R0}, 0xE10F0000},
		{"mrs r1, spsr", &MoveFromStatus{Cond: CondAL, UseSPSR: true, Rd: R1}, 0xE14F1000},
		{"msr cpsr_c, r0", &MoveToStatusReg{Cond: CondAL, Fields: PSRFieldControl, Rm: R0}, 0xE121F000},
		{"msr cpsr_c, #0xd3", &MoveToStatusImm{Cond: CondAL, Fields: PSRFieldControl, Seed: 0xD3}, 0xE321F0D3},
		{"mrc p15, 0, r0, c1, c0, 0", &CoprocRegisterTransfer{Cond: CondAL, FromCoproc: true, CpNum: 15, CRn: 1, Rd: R0}, 0xEE110F10},
		{"mcr p15, 0, r0, c7, c10, 4", &CoprocRegisterTransfer{Cond: CondAL, CpNum: 15, Op2: 4, CRn: 7, CRm: 10, Rd: R0}, 0xEE070F9A},
		{"fadds s0, s1, s2", &VFPBinary{Cond: CondAL, Op: VFPADD, Fd: 0, Fn: 1, Fm: 2}, 0xEE300A81},
		{"faddd d0, d1, d2", &VFPBinary{Cond: CondAL, Op: VFPADD, Double: true, Fd: 0, Fn: 1, Fm: 2}, 0xEE310B02},
		{"fsubs s0, s0, s0", &VFPBinary{Cond: CondAL, Op: VFPSUB}, 0xEE300A40},
		{"fmuls s0, s0, s0", &VFPBinary{Cond: CondAL, Op: VFPMUL}, 0xEE200A00},
		{"fdivs s0, s0, s0", &VFPBinary{Cond: CondAL, Op: VFPDIV}, 0xEE800A00},
		{"fcpys s0, s1", &VFPUnary{Cond: CondAL, Op: VFPCPY, Fd: 0, Fm: 1}, 0xEEB00A60},
		{"fcmpd d0, d1", &VFPUnary{Cond: CondAL, Op: VFPCMP, Double: true, Fd: 0, Fm: 1}, 0xEEB40B41},
		{"fsitod d0, s1", &VFPUnary{Cond: CondAL, Op: VFPSITO, Double: true, Fd: 0, Fm: 1}, 0xEEB80BE0},
		{"ftosizd s0, d1", &VFPUnary{Cond: CondAL, Op: VFPTOSIZ, Double: true, Fd: 0, Fm: 1}, 0xEEBD0BC1},
		{"fcmpzs s3", &VFPCompareZero{Cond: CondAL, Fd: 3}, 0xEEF51A40},
		{"fcvtds d0, s1", &VFPConvert{Cond: CondAL, Fd: 0, Fm: 1}, 0xEEB70AE0},
		{"fcvtsd s1, d2", &VFPConvert{Cond: CondAL, Double: true, Fd: 1, Fm: 2}, 0xEEF70BC2},
		{"flds s0, [r0, #4]", &VFPDataTransfer{Cond: CondAL, Load: true, Up: true, Rn: R0, Offset: 1}, 0xED900A01},
		{"fstd d1, [sp, #-8]", &VFPDataTransfer{Cond: CondAL, Double: true, Rn: SP, Fd: 1, Offset: 2}, 0xED0D1B02},
		{"fstmdbd sp!, {d8-d9}", &VFPBlockTransfer{Cond: CondAL, Transfer: Transfer{WriteBack: true, PreIndex: true}, Double: true, Rn: SP, Fd: 8, Count: 4}, 0xED2D8B04},
		{"fldmiad sp!, {d8-d9}", &VFPBlockTransfer{Cond: CondAL, Transfer: Transfer{Load: true, WriteBack: true, Up: true}, Double: true, Rn: SP, Fd: 8, Count: 4}, 0xECBD8B04},
		{"fmsr s0, r1", &VFPRegisterTransfer{Cond: CondAL, Fn: 0, Rd: R1}, 0xEE001A10},
		{"fmrs r1, s1", &VFPRegisterTransfer{Cond: CondAL, ToCore: true, Fn: 1, Rd: R1}, 0xEE101A90},
		{"fmdlr d0, r1", &VFPHalfTransfer{Cond: CondAL, Dn: 0, Rd: R1}, 0xEE001B10},
		{"fmrdh r1, d0", &VFPHalfTransfer{Cond: CondAL, ToCore: true, High: true, Dn: 0, Rd: R1}, 0xEE301B10},
		{"fmrx r0, fpscr", &VFPSystemTransfer{Cond: CondAL, ToCore: true, SysReg: SysRegFPSCR, Rd: R0}, 0xEEF10A10},
		{"fmxr fpexc, r0", &VFPSystemTransfer{Cond: CondAL, SysReg: SysRegFPEXC, Rd: R0}, 0xEEE80A10},
		{"fmstat", &VFPStatusTransfer{Cond: CondAL}, 0xEEF1FA10},
	}
}

func TestOpcodeKnownEncodings(t *testing.T) {
	for _, tc := range knownOpcodes() {
		t.Run(tc.name, func(t *testing.T) {
			word, err := tc.op.Encode()
			require.NoError(t, err)
			assert.Equalf(t, tc.word, word, "encoding %#08x, want %#08x", word, tc.word)
		})
	}
}

func TestOpcodeDecodeRoundTrip(t *testing.T) {
	for _, tc := range knownOpcodes() {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(tc.word)
			require.NoError(t, err)
			assert.IsType(t, tc.op, decoded)
			assert.Equal(t, tc.op, decoded)

			again, err := decoded.Encode()
			require.NoError(t, err)
			assert.Equal(t, tc.word, again)
		})
	}
}

func TestDataProcessingImmediateRoundTrip(t *testing.T) {
	for _, v := range immediateSamples() {
		seed, rot, ok := EncodeImmediate(v)
		if !ok {
			continue
		}
		op := DataProcessingImm{Cond: CondGE, Alu: AluEOR, Rn: R5, Rd: R9, Seed: seed, Rotation: rot}
		word, err := op.Encode()
		require.NoError(t, err)

		var back DataProcessingImm
		require.NoError(t, back.Decode(word))
		require.Equal(t, op, back)
		require.Equal(t, v, back.Value())
	}
}

func TestOpcodeEncodeRejectsBadFields(t *testing.T) {
	bad := []Encoder{
		DataProcessingImm{Alu: AluMOV, Rd: Reg(16)},
		DataProcessingImm{Alu: AluMOV, Seed: 0x100},
		SingleTransferImm{Offset: 4096},
		HalfwordTransferImm{Kind: HalfwordUnsigned16, Offset: 256},
		HalfwordTransferImm{Kind: HalfwordSWP},
		BlockTransfer{Rn: SP},
		Branch{Offset: 1 << 25},
		Branch{Offset: 2},
		SoftwareInterrupt{Value: 1 << 24},
		VFPBinary{Op: VFPADD, Double: true, Fd: 16},
		VFPUnary{Op: VFPUnaryOp(0x04)},
		VFPDataTransfer{Offset: 256},
		VFPBlockTransfer{Rn: SP},
	}
	for _, op := range bad {
		if _, err := op.Encode(); err == nil {
			t.Fatalf("%#v: expected encode error", op)
		}
	}
}

func TestConditionInvert(t *testing.T) {
	pairs := [][2]Condition{{CondEQ, CondNE}, {CondHS, CondLO}, {CondGE, CondLT}, {CondGT, CondLE}, {CondHI, CondLS}}
	for _, p := range pairs {
		assert.Equal(t, p[1], p[0].Invert())
		assert.Equal(t, p[0], p[1].Invert())
	}
	assert.Equal(t, CondAL, CondAL.Invert())
}
