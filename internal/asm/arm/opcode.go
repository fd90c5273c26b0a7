package arm

import (
	"fmt"
)

// Encoder is the in-memory form of one instruction. Encode validates the
// fields and returns the 32-bit word.
type Encoder interface {
	Encode() (uint32, error)
}

// Opcode is an Encoder that can also be filled from a word of the same
// format. Field records implement it through their pointer types.
type Opcode interface {
	Encoder
	Decode(word uint32) error
}

type format struct {
	name string
	base uint32
	mask uint32
}

func (f format) matches(word uint32) bool {
	return word&f.mask == f.base
}

func (f format) check(word uint32) error {
	if !f.matches(word) {
		return fmt.Errorf("arm asm: %#08x is not a %s opcode", word, f.name)
	}
	return nil
}

var (
	fmtDataProcessingImm   = format{"data processing (immediate)", 0x02000000, 0x0E000000}
	fmtDataProcessingShift = format{"data processing (shift immediate)", 0x00000000, 0x0E000010}
	fmtDataProcessingReg   = format{"data processing (shift register)", 0x00000010, 0x0E000090}
	fmtMultiply            = format{"multiply", 0x00000090, 0x0FC000F0}
	fmtMultiplyLong        = format{"multiply long", 0x00800090, 0x0F8000F0}
	fmtHalfwordReg         = format{"halfword transfer (register)", 0x00000090, 0x0E400F90}
	fmtHalfwordImm         = format{"halfword transfer (immediate)", 0x00400090, 0x0E400090}
	fmtSingleImm           = format{"single transfer (immediate)", 0x04000000, 0x0E000000}
	fmtSingleReg           = format{"single transfer (register)", 0x06000000, 0x0E000010}
	fmtBlock               = format{"block transfer", 0x08000000, 0x0E000000}
	fmtBranch              = format{"branch", 0x0A000000, 0x0E000000}
	fmtCoprocTransfer      = format{"coprocessor data transfer", 0x0C000000, 0x0E000000}
	fmtCoprocOperation     = format{"coprocessor data operation", 0x0E000000, 0x0F000010}
	fmtCoprocRegister      = format{"coprocessor register transfer", 0x0E000010, 0x0F000010}
	fmtSWI                 = format{"software interrupt", 0x0F000000, 0x0F000000}
	fmtBKPT                = format{"breakpoint", 0xE1200070, 0xFFF000F0}
	fmtMRS                 = format{"mrs", 0x010F0000, 0x0FBF0FFF}
	fmtMSRReg              = format{"msr (register)", 0x0120F000, 0x0FB0FFF0}
	fmtMSRImm              = format{"msr (immediate)", 0x0320F000, 0x0FB0F000}
)

func condField(c Condition) uint32 { return uint32(c&0xF) << 28 }

func condOf(word uint32) Condition { return Condition(word >> 28) }

func flag(b bool, pos uint) uint32 {
	if b {
		return 1 << pos
	}
	return 0
}

func isSet(word uint32, pos uint) bool {
	return word&(1<<pos) != 0
}

func regAt(word uint32, pos uint) Reg {
	return Reg((word >> pos) & 0xF)
}

func validateRegs(regs ...Reg) error {
	for _, r := range regs {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

// DataProcessingImm is `<op>{cond}{s} rd, rn, #imm`.
type DataProcessingImm struct {
	Cond     Condition
	Alu      AluOp
	SetCC    bool
	Rn, Rd   Reg
	Seed     uint32
	Rotation uint32
}

func (o DataProcessingImm) Value() uint32 {
	return DecodeImmediate(o.Seed, o.Rotation)
}

func (o DataProcessingImm) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd); err != nil {
		return 0, err
	}
	if o.Seed > 0xFF || o.Rotation > 0xF {
		return 0, fmt.Errorf("arm asm: immediate seed %#x rot %d out of range", o.Seed, o.Rotation)
	}
	return fmtDataProcessingImm.base | condField(o.Cond) |
		uint32(o.Alu&0xF)<<21 | flag(o.SetCC || o.Alu.IsCompare(), 20) |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | o.Rotation<<8 | o.Seed, nil
}

func (o *DataProcessingImm) Decode(word uint32) error {
	if err := fmtDataProcessingImm.check(word); err != nil {
		return err
	}
	*o = DataProcessingImm{
		Cond:     condOf(word),
		Alu:      AluOp((word >> 21) & 0xF),
		SetCC:    isSet(word, 20),
		Rn:       regAt(word, 16),
		Rd:       regAt(word, 12),
		Rotation: (word >> 8) & 0xF,
		Seed:     word & 0xFF,
	}
	return nil
}

// DataProcessingShift is `<op>{cond}{s} rd, rn, rm, <shift> #amount`.
type DataProcessingShift struct {
	Cond   Condition
	Alu    AluOp
	SetCC  bool
	Rn, Rd Reg
	Rm     Reg
	Shift  ShiftType
	Amount uint32
}

func (o DataProcessingShift) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd, o.Rm); err != nil {
		return 0, err
	}
	if o.Amount > 31 {
		return 0, fmt.Errorf("arm asm: shift amount %d out of range", o.Amount)
	}
	return fmtDataProcessingShift.base | condField(o.Cond) |
		uint32(o.Alu&0xF)<<21 | flag(o.SetCC || o.Alu.IsCompare(), 20) |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | o.Amount<<7 | uint32(o.Shift&3)<<5 | uint32(o.Rm), nil
}

func (o *DataProcessingShift) Decode(word uint32) error {
	if err := fmtDataProcessingShift.check(word); err != nil {
		return err
	}
	*o = DataProcessingShift{
		Cond:   condOf(word),
		Alu:    AluOp((word >> 21) & 0xF),
		SetCC:  isSet(word, 20),
		Rn:     regAt(word, 16),
		Rd:     regAt(word, 12),
		Amount: (word >> 7) & 0x1F,
		Shift:  ShiftType((word >> 5) & 3),
		Rm:     regAt(word, 0),
	}
	return nil
}

// DataProcessingReg is `<op>{cond}{s} rd, rn, rm, <shift> rs`.
type DataProcessingReg struct {
	Cond   Condition
	Alu    AluOp
	SetCC  bool
	Rn, Rd Reg
	Rm     Reg
	Shift  ShiftType
	Rs     Reg
}

func (o DataProcessingReg) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd, o.Rm, o.Rs); err != nil {
		return 0, err
	}
	return fmtDataProcessingReg.base | condField(o.Cond) |
		uint32(o.Alu&0xF)<<21 | flag(o.SetCC || o.Alu.IsCompare(), 20) |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | uint32(o.Rs)<<8 | uint32(o.Shift&3)<<5 | uint32(o.Rm), nil
}

func (o *DataProcessingReg) Decode(word uint32) error {
	if err := fmtDataProcessingReg.check(word); err != nil {
		return err
	}
	*o = DataProcessingReg{
		Cond:  condOf(word),
		Alu:   AluOp((word >> 21) & 0xF),
		SetCC: isSet(word, 20),
		Rn:    regAt(word, 16),
		Rd:    regAt(word, 12),
		Rs:    regAt(word, 8),
		Shift: ShiftType((word >> 5) & 3),
		Rm:    regAt(word, 0),
	}
	return nil
}

// Multiply is MUL/MLA: rd = rm*rs (+ rn).
type Multiply struct {
	Cond       Condition
	Accumulate bool
	SetCC      bool
	Rd, Rn     Reg
	Rs, Rm     Reg
}

func (o Multiply) Encode() (uint32, error) {
	if err := validateRegs(o.Rd, o.Rn, o.Rs, o.Rm); err != nil {
		return 0, err
	}
	return fmtMultiply.base | condField(o.Cond) | flag(o.Accumulate, 21) | flag(o.SetCC, 20) |
		uint32(o.Rd)<<16 | uint32(o.Rn)<<12 | uint32(o.Rs)<<8 | uint32(o.Rm), nil
}

func (o *Multiply) Decode(word uint32) error {
	if err := fmtMultiply.check(word); err != nil {
		return err
	}
	*o = Multiply{
		Cond:       condOf(word),
		Accumulate: isSet(word, 21),
		SetCC:      isSet(word, 20),
		Rd:         regAt(word, 16),
		Rn:         regAt(word, 12),
		Rs:         regAt(word, 8),
		Rm:         regAt(word, 0),
	}
	return nil
}

// MultiplyLong is UMULL/SMULL/UMLAL/SMLAL.
type MultiplyLong struct {
	Cond       Condition
	Signed     bool
	Accumulate bool
	SetCC      bool
	RdHi, RdLo Reg
	Rs, Rm     Reg
}

func (o MultiplyLong) Encode() (uint32, error) {
	if err := validateRegs(o.RdHi, o.RdLo, o.Rs, o.Rm); err != nil {
		return 0, err
	}
	return fmtMultiplyLong.base | condField(o.Cond) | flag(o.Signed, 22) | flag(o.Accumulate, 21) |
		flag(o.SetCC, 20) | uint32(o.RdHi)<<16 | uint32(o.RdLo)<<12 | uint32(o.Rs)<<8 | uint32(o.Rm), nil
}

func (o *MultiplyLong) Decode(word uint32) error {
	if err := fmtMultiplyLong.check(word); err != nil {
		return err
	}
	*o = MultiplyLong{
		Cond:       condOf(word),
		Signed:     isSet(word, 22),
		Accumulate: isSet(word, 21),
		SetCC:      isSet(word, 20),
		RdHi:       regAt(word, 16),
		RdLo:       regAt(word, 12),
		Rs:         regAt(word, 8),
		Rm:         regAt(word, 0),
	}
	return nil
}

// Transfer holds the P/U/W/L bits shared by the load/store formats.
type Transfer struct {
	Load      bool
	WriteBack bool
	Up        bool
	PreIndex  bool
}

func (t Transfer) bits() uint32 {
	return flag(t.PreIndex, 24) | flag(t.Up, 23) | flag(t.WriteBack, 21) | flag(t.Load, 20)
}

func decodeTransferFlags(word uint32) Transfer {
	return Transfer{
		Load:      isSet(word, 20),
		WriteBack: isSet(word, 21),
		Up:        isSet(word, 23),
		PreIndex:  isSet(word, 24),
	}
}

// HalfwordTransferImm is LDRH/STRH/LDRSB/LDRSH with an 8-bit offset.
type HalfwordTransferImm struct {
	Cond Condition
	Transfer
	Kind   uint32
	Rn, Rd Reg
	Offset uint32
}

func (o HalfwordTransferImm) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd); err != nil {
		return 0, err
	}
	if o.Offset >= halfwordOffsetLimit {
		return 0, fmt.Errorf("arm asm: halfword offset %d out of range", o.Offset)
	}
	if o.Kind == HalfwordSWP || o.Kind > halfwordKindMask {
		return 0, fmt.Errorf("arm asm: invalid halfword transfer kind %d", o.Kind)
	}
	return fmtHalfwordImm.base | condField(o.Cond) | o.Transfer.bits() |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | (o.Offset>>4)<<8 | o.Kind<<halfwordKindShift | o.Offset&0xF, nil
}

func (o *HalfwordTransferImm) Decode(word uint32) error {
	if err := fmtHalfwordImm.check(word); err != nil {
		return err
	}
	*o = HalfwordTransferImm{
		Cond:     condOf(word),
		Transfer: decodeTransferFlags(word),
		Kind:     (word >> halfwordKindShift) & halfwordKindMask,
		Rn:       regAt(word, 16),
		Rd:       regAt(word, 12),
		Offset:   ((word>>8)&0xF)<<4 | word&0xF,
	}
	return nil
}

// HalfwordTransferReg is the register-offset halfword form.
type HalfwordTransferReg struct {
	Cond Condition
	Transfer
	Kind   uint32
	Rn, Rd Reg
	Rm     Reg
}

func (o HalfwordTransferReg) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd, o.Rm); err != nil {
		return 0, err
	}
	if o.Kind == HalfwordSWP || o.Kind > halfwordKindMask {
		return 0, fmt.Errorf("arm asm: invalid halfword transfer kind %d", o.Kind)
	}
	return fmtHalfwordReg.base | condField(o.Cond) | o.Transfer.bits() |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | o.Kind<<halfwordKindShift | uint32(o.Rm), nil
}

func (o *HalfwordTransferReg) Decode(word uint32) error {
	if err := fmtHalfwordReg.check(word); err != nil {
		return err
	}
	*o = HalfwordTransferReg{
		Cond:     condOf(word),
		Transfer: decodeTransferFlags(word),
		Kind:     (word >> halfwordKindShift) & halfwordKindMask,
		Rn:       regAt(word, 16),
		Rd:       regAt(word, 12),
		Rm:       regAt(word, 0),
	}
	return nil
}

// SingleTransferImm is LDR/STR{B} rd, [rn, #offset].
type SingleTransferImm struct {
	Cond Condition
	Transfer
	Byte   bool
	Rn, Rd Reg
	Offset uint32
}

func (o SingleTransferImm) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd); err != nil {
		return 0, err
	}
	if o.Offset >= singleTransferLimit {
		return 0, fmt.Errorf("arm asm: load/store offset %d out of range", o.Offset)
	}
	return fmtSingleImm.base | condField(o.Cond) | o.Transfer.bits() | flag(o.Byte, 22) |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | o.Offset, nil
}

func (o *SingleTransferImm) Decode(word uint32) error {
	if err := fmtSingleImm.check(word); err != nil {
		return err
	}
	*o = SingleTransferImm{
		Cond:     condOf(word),
		Transfer: decodeTransferFlags(word),
		Byte:     isSet(word, 22),
		Rn:       regAt(word, 16),
		Rd:       regAt(word, 12),
		Offset:   word & 0xFFF,
	}
	return nil
}

// SingleTransferReg is LDR/STR{B} rd, [rn, rm, <shift> #amount].
type SingleTransferReg struct {
	Cond Condition
	Transfer
	Byte   bool
	Rn, Rd Reg
	Rm     Reg
	Shift  ShiftType
	Amount uint32
}

func (o SingleTransferReg) Encode() (uint32, error) {
	if err := validateRegs(o.Rn, o.Rd, o.Rm); err != nil {
		return 0, err
	}
	if o.Amount > 31 {
		return 0, fmt.Errorf("arm asm: shift amount %d out of range", o.Amount)
	}
	return fmtSingleReg.base | condField(o.Cond) | o.Transfer.bits() | flag(o.Byte, 22) |
		uint32(o.Rn)<<16 | uint32(o.Rd)<<12 | o.Amount<<7 | uint32(o.Shift&3)<<5 | uint32(o.Rm), nil
}

func (o *SingleTransferReg) Decode(word uint32) error {
	if err := fmtSingleReg.check(word); err != nil {
		return err
	}
	*o = SingleTransferReg{
		Cond:     condOf(word),
		Transfer: decodeTransferFlags(word),
		Byte:     isSet(word, 22),
		Rn:       regAt(word, 16),
		Rd:       regAt(word, 12),
		Amount:   (word >> 7) & 0x1F,
		Shift:    ShiftType((word >> 5) & 3),
		Rm:       regAt(word, 0),
	}
	return nil
}

// BlockTransfer is LDM/STM.
type BlockTransfer struct {
	Cond Condition
	Transfer
	// PSR selects the user bank, or restores CPSR from SPSR when pc is loaded.
	PSR       bool
	Rn        Reg
	Registers RegList
}

func (o BlockTransfer) Encode() (uint32, error) {
	if err := o.Rn.validate(); err != nil {
		return 0, err
	}
	if o.Registers == 0 {
		return 0, fmt.Errorf("arm asm: empty register list")
	}
	return fmtBlock.base | condField(o.Cond) | o.Transfer.bits() | flag(o.PSR, 22) |
		uint32(o.Rn)<<16 | uint32(o.Registers), nil
}

func (o *BlockTransfer) Decode(word uint32) error {
	if err := fmtBlock.check(word); err != nil {
		return err
	}
	*o = BlockTransfer{
		Cond:      condOf(word),
		Transfer:  decodeTransferFlags(word),
		PSR:       isSet(word, 22),
		Rn:        regAt(word, 16),
		Registers: RegList(word & 0xFFFF),
	}
	return nil
}

// Branch is B/BL. Offset is relative to the branch address plus PCOffset.
type Branch struct {
	Cond   Condition
	Link   bool
	Offset int32
}

const (
	minBranchOffset = -(1 << 25)
	maxBranchOffset = (1 << 25) - 4
)

// BranchOffsetFits reports whether a pc-relative byte offset can be encoded in
// a B/BL opcode.
func BranchOffsetFits(offset int64) bool {
	return offset%4 == 0 && offset >= minBranchOffset && offset <= maxBranchOffset
}

func (o Branch) Encode() (uint32, error) {
	if !BranchOffsetFits(int64(o.Offset)) {
		return 0, fmt.Errorf("arm asm: branch offset %d out of range", o.Offset)
	}
	return fmtBranch.base | condField(o.Cond) | flag(o.Link, 24) | (uint32(o.Offset)>>2)&0x00FFFFFF, nil
}

func (o *Branch) Decode(word uint32) error {
	if err := fmtBranch.check(word); err != nil {
		return err
	}
	*o = Branch{
		Cond:   condOf(word),
		Link:   isSet(word, 24),
		Offset: int32(word<<8) >> 6,
	}
	return nil
}

// SoftwareInterrupt is SWI #value.
type SoftwareInterrupt struct {
	Cond  Condition
	Value uint32
}

func (o SoftwareInterrupt) Encode() (uint32, error) {
	if o.Value > 0x00FFFFFF {
		return 0, fmt.Errorf("arm asm: swi value %#x out of range", o.Value)
	}
	return fmtSWI.base | condField(o.Cond) | o.Value, nil
}

func (o *SoftwareInterrupt) Decode(word uint32) error {
	if err := fmtSWI.check(word); err != nil {
		return err
	}
	*o = SoftwareInterrupt{Cond: condOf(word), Value: word & 0x00FFFFFF}
	return nil
}

// Breakpoint is BKPT #value (ARMv5). It is unconditional.
type Breakpoint struct {
	Value uint32
}

func (o Breakpoint) Encode() (uint32, error) {
	if o.Value > 0xFFFF {
		return 0, fmt.Errorf("arm asm: bkpt value %#x out of range", o.Value)
	}
	return fmtBKPT.base | (o.Value>>4)<<8 | o.Value&0xF, nil
}

func (o *Breakpoint) Decode(word uint32) error {
	if err := fmtBKPT.check(word); err != nil {
		return err
	}
	*o = Breakpoint{Value: ((word>>8)&0xFFF)<<4 | word&0xF}
	return nil
}

// MoveFromStatus is MRS rd, CPSR|SPSR.
type MoveFromStatus struct {
	Cond    Condition
	UseSPSR bool
	Rd      Reg
}

func (o MoveFromStatus) Encode() (uint32, error) {
	if err := o.Rd.validate(); err != nil {
		return 0, err
	}
	return fmtMRS.base | condField(o.Cond) | flag(o.UseSPSR, 22) | uint32(o.Rd)<<12, nil
}

func (o *MoveFromStatus) Decode(word uint32) error {
	if err := fmtMRS.check(word); err != nil {
		return err
	}
	*o = MoveFromStatus{Cond: condOf(word), UseSPSR: isSet(word, 22), Rd: regAt(word, 12)}
	return nil
}

// MoveToStatusReg is MSR CPSR_<fields>, rm.
type MoveToStatusReg struct {
	Cond    Condition
	UseSPSR bool
	Fields  PSRFields
	Rm      Reg
}

func (o MoveToStatusReg) Encode() (uint32, error) {
	if err := o.Rm.validate(); err != nil {
		return 0, err
	}
	return fmtMSRReg.base | condField(o.Cond) | flag(o.UseSPSR, 22) | uint32(o.Fields&0xF)<<16 | uint32(o.Rm), nil
}

func (o *MoveToStatusReg) Decode(word uint32) error {
	if err := fmtMSRReg.check(word); err != nil {
		return err
	}
	*o = MoveToStatusReg{
		Cond:    condOf(word),
		UseSPSR: isSet(word, 22),
		Fields:  PSRFields((word >> 16) & 0xF),
		Rm:      regAt(word, 0),
	}
	return nil
}

// MoveToStatusImm is MSR CPSR_<fields>, #imm.
type MoveToStatusImm struct {
	Cond     Condition
	UseSPSR  bool
	Fields   PSRFields
	Seed     uint32
	Rotation uint32
}

func (o MoveToStatusImm) Encode() (uint32, error) {
	if o.Seed > 0xFF || o.Rotation > 0xF {
		return 0, fmt.Errorf("arm asm: immediate seed %#x rot %d out of range", o.Seed, o.Rotation)
	}
	return fmtMSRImm.base | condField(o.Cond) | flag(o.UseSPSR, 22) | uint32(o.Fields&0xF)<<16 |
		o.Rotation<<8 | o.Seed, nil
}

func (o *MoveToStatusImm) Decode(word uint32) error {
	if err := fmtMSRImm.check(word); err != nil {
		return err
	}
	*o = MoveToStatusImm{
		Cond:     condOf(word),
		UseSPSR:  isSet(word, 22),
		Fields:   PSRFields((word >> 16) & 0xF),
		Rotation: (word >> 8) & 0xF,
		Seed:     word & 0xFF,
	}
	return nil
}

// CoprocRegisterTransfer is MCR (FromCoproc false) or MRC.
type CoprocRegisterTransfer struct {
	Cond       Condition
	FromCoproc bool
	CpNum      uint32
	Op1, Op2   uint32
	CRn, CRm   uint32
	Rd         Reg
}

func (o CoprocRegisterTransfer) Encode() (uint32, error) {
	if err := o.Rd.validate(); err != nil {
		return 0, err
	}
	if o.CpNum > 0xF || o.Op1 > 7 || o.Op2 > 7 || o.CRn > 0xF || o.CRm > 0xF {
		return 0, fmt.Errorf("arm asm: coprocessor field out of range")
	}
	return fmtCoprocRegister.base | condField(o.Cond) | o.Op1<<21 | flag(o.FromCoproc, 20) |
		o.CRn<<16 | uint32(o.Rd)<<12 | o.CpNum<<8 | o.Op2<<5 | o.CRm, nil
}

func (o *CoprocRegisterTransfer) Decode(word uint32) error {
	if err := fmtCoprocRegister.check(word); err != nil {
		return err
	}
	*o = CoprocRegisterTransfer{
		Cond:       condOf(word),
		Op1:        (word >> 21) & 7,
		FromCoproc: isSet(word, 20),
		CRn:        (word >> 16) & 0xF,
		Rd:         regAt(word, 12),
		CpNum:      (word >> 8) & 0xF,
		Op2:        (word >> 5) & 7,
		CRm:        word & 0xF,
	}
	return nil
}

// CoprocDataTransfer is LDC/STC with an 8-bit word offset.
type CoprocDataTransfer struct {
	Cond Condition
	Transfer
	Wide   bool
	Rn     Reg
	CRd    uint32
	CpNum  uint32
	Offset uint32
}

func (o CoprocDataTransfer) Encode() (uint32, error) {
	if err := o.Rn.validate(); err != nil {
		return 0, err
	}
	if o.CRd > 0xF || o.CpNum > 0xF || o.Offset >= coprocTransferLimitW {
		return 0, fmt.Errorf("arm asm: coprocessor field out of range")
	}
	return fmtCoprocTransfer.base | condField(o.Cond) | o.Transfer.bits() | flag(o.Wide, 22) |
		uint32(o.Rn)<<16 | o.CRd<<12 | o.CpNum<<8 | o.Offset, nil
}

func (o *CoprocDataTransfer) Decode(word uint32) error {
	if err := fmtCoprocTransfer.check(word); err != nil {
		return err
	}
	*o = CoprocDataTransfer{
		Cond:     condOf(word),
		Transfer: decodeTransferFlags(word),
		Wide:     isSet(word, 22),
		Rn:       regAt(word, 16),
		CRd:      (word >> 12) & 0xF,
		CpNum:    (word >> 8) & 0xF,
		Offset:   word & 0xFF,
	}
	return nil
}

// CoprocDataOperation is CDP.
type CoprocDataOperation struct {
	Cond          Condition
	Op1, Op2      uint32
	CRn, CRd, CRm uint32
	CpNum         uint32
}

func (o CoprocDataOperation) Encode() (uint32, error) {
	if o.Op1 > 0xF || o.Op2 > 7 || o.CRn > 0xF || o.CRd > 0xF || o.CRm > 0xF || o.CpNum > 0xF {
		return 0, fmt.Errorf("arm asm: coprocessor field out of range")
	}
	return fmtCoprocOperation.base | condField(o.Cond) | o.Op1<<20 | o.CRn<<16 | o.CRd<<12 |
		o.CpNum<<8 | o.Op2<<5 | o.CRm, nil
}

func (o *CoprocDataOperation) Decode(word uint32) error {
	if err := fmtCoprocOperation.check(word); err != nil {
		return err
	}
	*o = CoprocDataOperation{
		Cond:  condOf(word),
		Op1:   (word >> 20) & 0xF,
		CRn:   (word >> 16) & 0xF,
		CRd:   (word >> 12) & 0xF,
		CpNum: (word >> 8) & 0xF,
		Op2:   (word >> 5) & 7,
		CRm:   word & 0xF,
	}
	return nil
}

// Decode identifies the format of word and returns its field record. VFP
// opcodes are recognised ahead of the generic coprocessor forms.
func Decode(word uint32) (Opcode, error) {
	var op Opcode
	switch {
	case fmtBKPT.matches(word):
		op = &Breakpoint{}
	case fmtMRS.matches(word):
		op = &MoveFromStatus{}
	case fmtMSRReg.matches(word):
		op = &MoveToStatusReg{}
	case fmtMSRImm.matches(word):
		op = &MoveToStatusImm{}
	case fmtMultiply.matches(word):
		op = &Multiply{}
	case fmtMultiplyLong.matches(word):
		op = &MultiplyLong{}
	case fmtHalfwordImm.matches(word) && (word>>halfwordKindShift)&halfwordKindMask != HalfwordSWP:
		op = &HalfwordTransferImm{}
	case fmtHalfwordReg.matches(word) && (word>>halfwordKindShift)&halfwordKindMask != HalfwordSWP:
		op = &HalfwordTransferReg{}
	case fmtDataProcessingImm.matches(word):
		op = &DataProcessingImm{}
	case fmtDataProcessingShift.matches(word):
		op = &DataProcessingShift{}
	case fmtDataProcessingReg.matches(word):
		op = &DataProcessingReg{}
	case fmtSingleImm.matches(word):
		op = &SingleTransferImm{}
	case fmtSingleReg.matches(word):
		op = &SingleTransferReg{}
	case fmtBlock.matches(word):
		op = &BlockTransfer{}
	case fmtBranch.matches(word):
		op = &Branch{}
	case fmtSWI.matches(word):
		op = &SoftwareInterrupt{}
	default:
		if vfp := decodeVFP(word); vfp != nil {
			op = vfp
			break
		}
		switch {
		case fmtCoprocRegister.matches(word):
			op = &CoprocRegisterTransfer{}
		case fmtCoprocOperation.matches(word):
			op = &CoprocDataOperation{}
		case fmtCoprocTransfer.matches(word):
			op = &CoprocDataTransfer{}
		default:
			return nil, fmt.Errorf("arm asm: unrecognised opcode %#08x", word)
		}
	}
	if err := op.Decode(word); err != nil {
		return nil, err
	}
	return op, nil
}
