package arm

import "fmt"

var (
	fmtVFPStatusTransfer = format{"fmstat", 0x0EF1FA10, 0x0FFFFFFF}
	fmtVFPSystemTransfer = format{"vfp system register transfer", 0x0EE00A10, 0x0FE00FFF}
	fmtVFPHalfTransfer   = format{"vfp half register transfer", 0x0E000B10, 0x0FC00FFF}
	fmtVFPTransfer32     = format{"vfp register transfer", 0x0E000A10, 0x0FE00F7F}
	fmtVFPDataTransfer   = format{"vfp data transfer", 0x0D000A00, 0x0F200E00}
	fmtVFPCompareZero    = format{"vfp compare with zero", 0x0EB50A40, 0x0FBF0E7F}
	fmtVFPConvert        = format{"vfp precision conversion", 0x0EB70AC0, 0x0FBF0ED0}
	fmtVFPUnary          = format{"vfp unary operation", 0x0EB00A40, 0x0FB00E50}
	fmtVFPBinary         = format{"vfp binary operation", 0x0E000A00, 0x0F000E10}
	fmtVFPBlock          = format{"vfp block transfer", 0x0C000A00, 0x0E000E00}
)

// Single registers split their number across a 4-bit field and one extra
// bit; double registers use the 4-bit field alone.
func vfpReg(r uint32, double bool, pos, extra uint) uint32 {
	if double {
		return (r & 0xF) << pos
	}
	return (r>>1)<<pos | (r&1)<<extra
}

func vfpRegAt(word uint32, double bool, pos, extra uint) uint32 {
	if double {
		return (word >> pos) & 0xF
	}
	return ((word>>pos)&0xF)<<1 | (word>>extra)&1
}

func validateVFPRegs(double bool, regs ...uint32) error {
	limit := uint32(32)
	prefix := "s"
	if double {
		limit = 16
		prefix = "d"
	}
	for _, r := range regs {
		if r >= limit {
			return fmt.Errorf("arm asm: invalid register %s%d", prefix, r)
		}
	}
	return nil
}

// VFPBinary is FADD/FSUB/FMUL/FDIV and the multiply-accumulate family.
type VFPBinary struct {
	Cond       Condition
	Op         VFPBinaryOp
	Double     bool
	Fd, Fn, Fm uint32
}

func (o VFPBinary) Encode() (uint32, error) {
	if err := validateVFPRegs(o.Double, o.Fd, o.Fn, o.Fm); err != nil {
		return 0, err
	}
	if o.Op > VFPDIV {
		return 0, fmt.Errorf("arm asm: invalid vfp binary operation %d", o.Op)
	}
	op := uint32(o.Op)
	return fmtVFPBinary.base | condField(o.Cond) |
		(op>>3&1)<<23 | (op>>2&1)<<21 | (op>>1&1)<<20 | (op&1)<<6 | flag(o.Double, 8) |
		vfpReg(o.Fd, o.Double, 12, 22) | vfpReg(o.Fn, o.Double, 16, 7) | vfpReg(o.Fm, o.Double, 0, 5), nil
}

func (o *VFPBinary) Decode(word uint32) error {
	if err := fmtVFPBinary.check(word); err != nil {
		return err
	}
	double := isSet(word, 8)
	*o = VFPBinary{
		Cond:   condOf(word),
		Op:     VFPBinaryOp((word>>23&1)<<3 | (word>>21&1)<<2 | (word>>20&1)<<1 | word>>6&1),
		Double: double,
		Fd:     vfpRegAt(word, double, 12, 22),
		Fn:     vfpRegAt(word, double, 16, 7),
		Fm:     vfpRegAt(word, double, 0, 5),
	}
	return nil
}

// VFPUnary is the extension-opcode group: copy, abs, neg, sqrt, compare and
// integer conversions.
type VFPUnary struct {
	Cond   Condition
	Op     VFPUnaryOp
	Double bool
	Fd, Fm uint32
}

// operandPrecision reports whether Fd and Fm are double registers. Integer
// conversions always keep the integer side in a single register.
func (o VFPUnary) operandPrecision() (fdDouble, fmDouble bool) {
	switch o.Op {
	case VFPUITO, VFPSITO:
		return o.Double, false
	case VFPTOUI, VFPTOUIZ, VFPTOSI, VFPTOSIZ:
		return false, o.Double
	default:
		return o.Double, o.Double
	}
}

func (o VFPUnary) Encode() (uint32, error) {
	fdDouble, fmDouble := o.operandPrecision()
	if err := validateVFPRegs(fdDouble, o.Fd); err != nil {
		return 0, err
	}
	if err := validateVFPRegs(fmDouble, o.Fm); err != nil {
		return 0, err
	}
	if _, ok := vfpUnaryNames[o.Op]; !ok {
		return 0, fmt.Errorf("arm asm: invalid vfp unary operation %#x", uint32(o.Op))
	}
	op := uint32(o.Op)
	return fmtVFPUnary.base | condField(o.Cond) | (op>>1)<<16 | (op&1)<<7 | flag(o.Double, 8) |
		vfpReg(o.Fd, fdDouble, 12, 22) | vfpReg(o.Fm, fmDouble, 0, 5), nil
}

func (o *VFPUnary) Decode(word uint32) error {
	if err := fmtVFPUnary.check(word); err != nil {
		return err
	}
	*o = VFPUnary{
		Cond:   condOf(word),
		Op:     VFPUnaryOp(((word>>16)&0xF)<<1 | (word>>7)&1),
		Double: isSet(word, 8),
	}
	fdDouble, fmDouble := o.operandPrecision()
	o.Fd = vfpRegAt(word, fdDouble, 12, 22)
	o.Fm = vfpRegAt(word, fmDouble, 0, 5)
	return nil
}

// VFPCompareZero is FCMPZ/FCMPEZ.
type VFPCompareZero struct {
	Cond     Condition
	CheckNaN bool
	Double   bool
	Fd       uint32
}

func (o VFPCompareZero) Encode() (uint32, error) {
	if err := validateVFPRegs(o.Double, o.Fd); err != nil {
		return 0, err
	}
	return fmtVFPCompareZero.base | condField(o.Cond) | flag(o.CheckNaN, 7) | flag(o.Double, 8) |
		vfpReg(o.Fd, o.Double, 12, 22), nil
}

func (o *VFPCompareZero) Decode(word uint32) error {
	if err := fmtVFPCompareZero.check(word); err != nil {
		return err
	}
	double := isSet(word, 8)
	*o = VFPCompareZero{
		Cond:     condOf(word),
		CheckNaN: isSet(word, 7),
		Double:   double,
		Fd:       vfpRegAt(word, double, 12, 22),
	}
	return nil
}

// VFPConvert is FCVTDS (Double false: single source) or FCVTSD.
type VFPConvert struct {
	Cond   Condition
	Double bool
	Fd, Fm uint32
}

func (o VFPConvert) Encode() (uint32, error) {
	if err := validateVFPRegs(!o.Double, o.Fd); err != nil {
		return 0, err
	}
	if err := validateVFPRegs(o.Double, o.Fm); err != nil {
		return 0, err
	}
	return fmtVFPConvert.base | condField(o.Cond) | flag(o.Double, 8) |
		vfpReg(o.Fd, !o.Double, 12, 22) | vfpReg(o.Fm, o.Double, 0, 5), nil
}

func (o *VFPConvert) Decode(word uint32) error {
	if err := fmtVFPConvert.check(word); err != nil {
		return err
	}
	double := isSet(word, 8)
	*o = VFPConvert{
		Cond:   condOf(word),
		Double: double,
		Fd:     vfpRegAt(word, !double, 12, 22),
		Fm:     vfpRegAt(word, double, 0, 5),
	}
	return nil
}

// VFPDataTransfer is FLDS/FLDD/FSTS/FSTD with an 8-bit word offset.
type VFPDataTransfer struct {
	Cond   Condition
	Load   bool
	Up     bool
	Double bool
	Rn     Reg
	Fd     uint32
	Offset uint32
}

func (o VFPDataTransfer) Encode() (uint32, error) {
	if err := o.Rn.validate(); err != nil {
		return 0, err
	}
	if err := validateVFPRegs(o.Double, o.Fd); err != nil {
		return 0, err
	}
	if o.Offset > 0xFF {
		return 0, fmt.Errorf("arm asm: vfp transfer offset %d words out of range", o.Offset)
	}
	return fmtVFPDataTransfer.base | condField(o.Cond) | flag(o.Up, 23) | flag(o.Load, 20) |
		uint32(o.Rn)<<16 | flag(o.Double, 8) | vfpReg(o.Fd, o.Double, 12, 22) | o.Offset, nil
}

func (o *VFPDataTransfer) Decode(word uint32) error {
	if err := fmtVFPDataTransfer.check(word); err != nil {
		return err
	}
	double := isSet(word, 8)
	*o = VFPDataTransfer{
		Cond:   condOf(word),
		Load:   isSet(word, 20),
		Up:     isSet(word, 23),
		Double: double,
		Rn:     regAt(word, 16),
		Fd:     vfpRegAt(word, double, 12, 22),
		Offset: word & 0xFF,
	}
	return nil
}

// VFPBlockTransfer is FLDM/FSTM. Count is in words.
type VFPBlockTransfer struct {
	Cond Condition
	Transfer
	Double bool
	Rn     Reg
	Fd     uint32
	Count  uint32
}

func (o VFPBlockTransfer) Encode() (uint32, error) {
	if err := o.Rn.validate(); err != nil {
		return 0, err
	}
	if err := validateVFPRegs(o.Double, o.Fd); err != nil {
		return 0, err
	}
	if o.Count == 0 || o.Count > 0xFF {
		return 0, fmt.Errorf("arm asm: vfp block count %d out of range", o.Count)
	}
	if o.PreIndex && !o.WriteBack {
		return 0, fmt.Errorf("arm asm: vfp block transfer with pre-index requires write-back")
	}
	return fmtVFPBlock.base | condField(o.Cond) | o.Transfer.bits() | uint32(o.Rn)<<16 |
		flag(o.Double, 8) | vfpReg(o.Fd, o.Double, 12, 22) | o.Count, nil
}

func (o *VFPBlockTransfer) Decode(word uint32) error {
	if err := fmtVFPBlock.check(word); err != nil {
		return err
	}
	double := isSet(word, 8)
	*o = VFPBlockTransfer{
		Cond:     condOf(word),
		Transfer: decodeTransferFlags(word),
		Double:   double,
		Rn:       regAt(word, 16),
		Fd:       vfpRegAt(word, double, 12, 22),
		Count:    word & 0xFF,
	}
	return nil
}

// VFPRegisterTransfer is FMSR (ToCore false) or FMRS on a single register.
type VFPRegisterTransfer struct {
	Cond   Condition
	ToCore bool
	Fn     uint32
	Rd     Reg
}

func (o VFPRegisterTransfer) Encode() (uint32, error) {
	if err := o.Rd.validate(); err != nil {
		return 0, err
	}
	if err := validateVFPRegs(false, o.Fn); err != nil {
		return 0, err
	}
	return fmtVFPTransfer32.base | condField(o.Cond) | flag(o.ToCore, 20) |
		vfpReg(o.Fn, false, 16, 7) | uint32(o.Rd)<<12, nil
}

func (o *VFPRegisterTransfer) Decode(word uint32) error {
	if err := fmtVFPTransfer32.check(word); err != nil {
		return err
	}
	*o = VFPRegisterTransfer{
		Cond:   condOf(word),
		ToCore: isSet(word, 20),
		Fn:     vfpRegAt(word, false, 16, 7),
		Rd:     regAt(word, 12),
	}
	return nil
}

// VFPHalfTransfer moves one half of a double register: FMDLR/FMDHR into the
// VFP, FMRDL/FMRDH out of it.
type VFPHalfTransfer struct {
	Cond   Condition
	ToCore bool
	High   bool
	Dn     uint32
	Rd     Reg
}

func (o VFPHalfTransfer) Encode() (uint32, error) {
	if err := o.Rd.validate(); err != nil {
		return 0, err
	}
	if err := validateVFPRegs(true, o.Dn); err != nil {
		return 0, err
	}
	return fmtVFPHalfTransfer.base | condField(o.Cond) | flag(o.High, 21) | flag(o.ToCore, 20) |
		o.Dn<<16 | uint32(o.Rd)<<12, nil
}

func (o *VFPHalfTransfer) Decode(word uint32) error {
	if err := fmtVFPHalfTransfer.check(word); err != nil {
		return err
	}
	*o = VFPHalfTransfer{
		Cond:   condOf(word),
		High:   isSet(word, 21),
		ToCore: isSet(word, 20),
		Dn:     (word >> 16) & 0xF,
		Rd:     regAt(word, 12),
	}
	return nil
}

// VFPSystemTransfer is FMXR (ToCore false) or FMRX.
type VFPSystemTransfer struct {
	Cond   Condition
	ToCore bool
	SysReg uint32
	Rd     Reg
}

func (o VFPSystemTransfer) Encode() (uint32, error) {
	if err := o.Rd.validate(); err != nil {
		return 0, err
	}
	if o.SysReg > 0xF {
		return 0, fmt.Errorf("arm asm: invalid vfp system register %d", o.SysReg)
	}
	return fmtVFPSystemTransfer.base | condField(o.Cond) | flag(o.ToCore, 20) | o.SysReg<<16 | uint32(o.Rd)<<12, nil
}

func (o *VFPSystemTransfer) Decode(word uint32) error {
	if err := fmtVFPSystemTransfer.check(word); err != nil {
		return err
	}
	*o = VFPSystemTransfer{
		Cond:   condOf(word),
		ToCore: isSet(word, 20),
		SysReg: (word >> 16) & 0xF,
		Rd:     regAt(word, 12),
	}
	return nil
}

// VFPStatusTransfer is FMSTAT: copy the FPSCR flags into the CPSR.
type VFPStatusTransfer struct {
	Cond Condition
}

func (o VFPStatusTransfer) Encode() (uint32, error) {
	return fmtVFPStatusTransfer.base | condField(o.Cond), nil
}

func (o *VFPStatusTransfer) Decode(word uint32) error {
	if err := fmtVFPStatusTransfer.check(word); err != nil {
		return err
	}
	*o = VFPStatusTransfer{Cond: condOf(word)}
	return nil
}

func decodeVFP(word uint32) Opcode {
	if (word>>9)&7 != 5 {
		return nil
	}
	switch {
	case fmtVFPStatusTransfer.matches(word):
		return &VFPStatusTransfer{}
	case fmtVFPSystemTransfer.matches(word):
		return &VFPSystemTransfer{}
	case fmtVFPHalfTransfer.matches(word):
		return &VFPHalfTransfer{}
	case fmtVFPTransfer32.matches(word):
		return &VFPRegisterTransfer{}
	case fmtVFPDataTransfer.matches(word):
		return &VFPDataTransfer{}
	case fmtVFPCompareZero.matches(word):
		return &VFPCompareZero{}
	case fmtVFPConvert.matches(word):
		return &VFPConvert{}
	case fmtVFPUnary.matches(word):
		return &VFPUnary{}
	case fmtVFPBinary.matches(word):
		return &VFPBinary{}
	case fmtVFPBlock.matches(word):
		return &VFPBlockTransfer{}
	}
	return nil
}
