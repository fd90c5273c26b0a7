package arm

// Condition is the predicate stored in bits 28..31 of every ARM opcode.
type Condition uint32

const (
	CondEQ Condition = 0x0
	CondNE Condition = 0x1
	CondCS Condition = 0x2
	CondCC Condition = 0x3
	CondMI Condition = 0x4
	CondPL Condition = 0x5
	CondVS Condition = 0x6
	CondVC Condition = 0x7
	CondHI Condition = 0x8
	CondLS Condition = 0x9
	CondGE Condition = 0xA
	CondLT Condition = 0xB
	CondGT Condition = 0xC
	CondLE Condition = 0xD
	CondAL Condition = 0xE
	CondNV Condition = 0xF

	CondHS = CondCS
	CondLO = CondCC
)

var conditionNames = [...]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "", "nv",
}

func (c Condition) String() string {
	return conditionNames[c&0xF]
}

// Invert returns the opposite predicate. AL and NV have no opposite and are
// returned unchanged.
func (c Condition) Invert() Condition {
	if c >= CondAL {
		return c
	}
	return c ^ 1
}

// AluOp selects the data-processing operation in bits 21..24.
type AluOp uint32

const (
	AluAND AluOp = 0x0
	AluEOR AluOp = 0x1
	AluSUB AluOp = 0x2
	AluRSB AluOp = 0x3
	AluADD AluOp = 0x4
	AluADC AluOp = 0x5
	AluSBC AluOp = 0x6
	AluRSC AluOp = 0x7
	AluTST AluOp = 0x8
	AluTEQ AluOp = 0x9
	AluCMP AluOp = 0xA
	AluCMN AluOp = 0xB
	AluORR AluOp = 0xC
	AluMOV AluOp = 0xD
	AluBIC AluOp = 0xE
	AluMVN AluOp = 0xF
)

var aluNames = [...]string{
	"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc",
	"tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn",
}

func (a AluOp) String() string {
	return aluNames[a&0xF]
}

// IsCompare reports whether the operation only updates flags (no Rd).
func (a AluOp) IsCompare() bool {
	return a >= AluTST && a <= AluCMN
}

// IsMove reports whether the operation ignores Rn.
func (a AluOp) IsMove() bool {
	return a == AluMOV || a == AluMVN
}

// ShiftType is the barrel shifter mode in bits 5..6.
type ShiftType uint32

const (
	ShiftLSL ShiftType = 0
	ShiftLSR ShiftType = 1
	ShiftASR ShiftType = 2
	ShiftROR ShiftType = 3
)

var shiftNames = [...]string{"lsl", "lsr", "asr", "ror"}

func (s ShiftType) String() string {
	return shiftNames[s&3]
}

// Program status register bits and modes.
const (
	PSRBitT = 5
	PSRBitF = 6
	PSRBitI = 7
	PSRBitV = 28
	PSRBitC = 29
	PSRBitZ = 30
	PSRBitN = 31

	PSRT uint32 = 1 << PSRBitT
	PSRF uint32 = 1 << PSRBitF
	PSRI uint32 = 1 << PSRBitI
	PSRV uint32 = 1 << PSRBitV
	PSRC uint32 = 1 << PSRBitC
	PSRZ uint32 = 1 << PSRBitZ
	PSRN uint32 = 1 << PSRBitN

	PSRModeMask  uint32 = 0x1F
	PSRModeUser  uint32 = 0x10
	PSRModeFIQ   uint32 = 0x11
	PSRModeIRQ   uint32 = 0x12
	PSRModeSVC   uint32 = 0x13
	PSRModeAbort uint32 = 0x17
	PSRModeUndef uint32 = 0x1B
	PSRModeSYS   uint32 = 0x1F
)

// PSRFields is the MSR field mask (bits 16..19).
type PSRFields uint32

const (
	PSRFieldControl   PSRFields = 1
	PSRFieldExtension PSRFields = 2
	PSRFieldStatus    PSRFields = 4
	PSRFieldFlags     PSRFields = 8
	PSRFieldAll       PSRFields = 0xF
)

// PCOffset is how far ahead of the executing opcode the pc register reads.
const PCOffset = 8

// Halfword transfer kinds (bits 5..6).
const (
	HalfwordSWP          uint32 = 0
	HalfwordUnsigned16   uint32 = 1
	HalfwordSigned8      uint32 = 2
	HalfwordSigned16     uint32 = 3
	halfwordKindShift           = 5
	halfwordKindMask            = 3
	halfwordOffsetLimit         = 0x100
	singleTransferLimit         = 0x1000
	coprocTransferLimitW        = 0x100
)

// VFP register numbering used by register descriptors: s0..s31 follow the 16
// integer registers at 32, d0..d15 at 64, system registers at 80.
const (
	EncodingS0     uint32 = 32
	EncodingD0     uint32 = 64
	EncodingSys0   uint32 = 80
	SysRegFPSID    uint32 = 0
	SysRegFPSCR    uint32 = 1
	SysRegFPEXC    uint32 = 8
	EncodingFPSID         = EncodingSys0 + SysRegFPSID
	EncodingFPSCR         = EncodingSys0 + SysRegFPSCR
	EncodingFPEXC         = EncodingSys0 + SysRegFPEXC
	FPEXCEnable    uint32 = 1 << 30
	FPEXCException uint32 = 1 << 31
)

// VFP binary data operations (p:q:r:s).
type VFPBinaryOp uint32

const (
	VFPMAC  VFPBinaryOp = 0x0
	VFPNMAC VFPBinaryOp = 0x1
	VFPMSC  VFPBinaryOp = 0x2
	VFPNMSC VFPBinaryOp = 0x3
	VFPMUL  VFPBinaryOp = 0x4
	VFPNMUL VFPBinaryOp = 0x5
	VFPADD  VFPBinaryOp = 0x6
	VFPSUB  VFPBinaryOp = 0x7
	VFPDIV  VFPBinaryOp = 0x8
)

var vfpBinaryNames = map[VFPBinaryOp]string{
	VFPMAC: "fmac", VFPNMAC: "fnmac", VFPMSC: "fmsc", VFPNMSC: "fnmsc",
	VFPMUL: "fmul", VFPNMUL: "fnmul", VFPADD: "fadd", VFPSUB: "fsub", VFPDIV: "fdiv",
}

func (o VFPBinaryOp) String() string {
	return vfpBinaryNames[o]
}

// VFP unary (extension) operations, stored as Fn:N.
type VFPUnaryOp uint32

const (
	VFPCPY   VFPUnaryOp = 0x00
	VFPABS   VFPUnaryOp = 0x01
	VFPNEG   VFPUnaryOp = 0x02
	VFPSQRT  VFPUnaryOp = 0x03
	VFPCMP   VFPUnaryOp = 0x08
	VFPCMPE  VFPUnaryOp = 0x09
	VFPUITO  VFPUnaryOp = 0x10
	VFPSITO  VFPUnaryOp = 0x11
	VFPTOUI  VFPUnaryOp = 0x18
	VFPTOUIZ VFPUnaryOp = 0x19
	VFPTOSI  VFPUnaryOp = 0x1A
	VFPTOSIZ VFPUnaryOp = 0x1B
)

var vfpUnaryNames = map[VFPUnaryOp]string{
	VFPCPY: "fcpy", VFPABS: "fabs", VFPNEG: "fneg", VFPSQRT: "fsqrt",
	VFPCMP: "fcmp", VFPCMPE: "fcmpe", VFPUITO: "fuito", VFPSITO: "fsito",
	VFPTOUI: "ftoui", VFPTOUIZ: "ftouiz", VFPTOSI: "ftosi", VFPTOSIZ: "ftosiz",
}

func (o VFPUnaryOp) String() string {
	return vfpUnaryNames[o]
}
