package arm

import (
	"fmt"

	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/ir"
)

// Names of the helper calls rewritten by LowerIntrinsics.
const (
	IntrinsicSetRegister            = "SetRegister"
	IntrinsicGetRegister            = "GetRegister"
	IntrinsicSetStatusRegister      = "SetStatusRegister"
	IntrinsicSetSavedStatusRegister = "SetSavedStatusRegister"
	IntrinsicGetStatusRegister      = "GetStatusRegister"
	IntrinsicGetSavedStatusRegister = "GetSavedStatusRegister"
	IntrinsicMoveToCoprocessor      = "MoveToCoprocessor"
	IntrinsicMoveFromCoprocessor    = "MoveFromCoprocessor"
	IntrinsicBreakpoint             = "Breakpoint"
	IntrinsicScratchedRegisters     = "ScratchedRegisters"
	IntrinsicPushRegisters          = "PushRegisters"
	IntrinsicPopRegisters           = "PopRegisters"
	IntrinsicPushFpRegisters        = "PushFpRegisters"
	IntrinsicPopFpRegisters         = "PopFpRegisters"
)

type intrinsicFunc func(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error)

var intrinsics map[string]intrinsicFunc

func init() {
	intrinsics = map[string]intrinsicFunc{
		IntrinsicSetRegister:            lowerSetRegister,
		IntrinsicGetRegister:            lowerGetRegister,
		IntrinsicSetStatusRegister:      lowerSetStatus(false),
		IntrinsicSetSavedStatusRegister: lowerSetStatus(true),
		IntrinsicGetStatusRegister:      lowerGetStatus(false),
		IntrinsicGetSavedStatusRegister: lowerGetStatus(true),
		IntrinsicMoveToCoprocessor:      lowerMoveToCoprocessor,
		IntrinsicMoveFromCoprocessor:    lowerMoveFromCoprocessor,
		IntrinsicBreakpoint:             lowerBreakpoint,
		IntrinsicScratchedRegisters:     lowerScratchedRegisters,
		IntrinsicPushRegisters:          lowerMoveRegisters(false),
		IntrinsicPopRegisters:           lowerMoveRegisters(true),
		IntrinsicPushFpRegisters:        lowerMoveFpRegisters(false),
		IntrinsicPopFpRegisters:         lowerMoveFpRegisters(true),
	}
}

// LowerIntrinsics rewrites every IntrinsicCall of m into concrete operators.
// Unknown names are an error.
func (p *Platform) LowerIntrinsics(m *ir.Method) error {
	for _, b := range m.Blocks {
		out := b.Operators[:0:0]
		for _, op := range b.Operators {
			call, ok := op.(*ir.IntrinsicCall)
			if !ok {
				out = append(out, op)
				continue
			}
			lower, ok := intrinsics[call.Name]
			if !ok {
				return fmt.Errorf("arm: %s: unknown intrinsic %q: %w", m.Name, call.Name, ir.ErrNotImplemented)
			}
			ops, err := lower(p, m, call)
			if err != nil {
				return fmt.Errorf("arm: %s: %s: %w", m.Name, call.Name, err)
			}
			out = append(out, ops...)
		}
		b.Operators = out
	}
	return nil
}

func constantArg(call *ir.IntrinsicCall, idx int) (uint32, error) {
	if idx >= len(call.Args) {
		return 0, fmt.Errorf("missing argument %d: %w", idx, ir.ErrTypeConsistency)
	}
	c, ok := call.Args[idx].(*ir.Constant)
	if !ok || c.Symbol != "" {
		return 0, fmt.Errorf("argument %d must be a constant, got %s: %w", idx, call.Args[idx], ir.ErrTypeConsistency)
	}
	return c.Word(0), nil
}

func valueArg(call *ir.IntrinsicCall, idx int) (ir.Expression, error) {
	if idx >= len(call.Args) {
		return nil, fmt.Errorf("missing argument %d: %w", idx, ir.ErrTypeConsistency)
	}
	return call.Args[idx], nil
}

func result(call *ir.IntrinsicCall) (ir.Expression, error) {
	if len(call.Results) != 1 {
		return nil, fmt.Errorf("expected one result, got %d: %w", len(call.Results), ir.ErrTypeConsistency)
	}
	return call.Results[0], nil
}

func lowerSetRegister(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
	enc, err := constantArg(call, 0)
	if err != nil {
		return nil, err
	}
	value, err := valueArg(call, 1)
	if err != nil {
		return nil, err
	}
	reg, ok := p.regs.ByEncoding(enc)
	if !ok {
		p.log.Debug("dropping write to missing register", "method", m.Name, "encoding", enc)
		return nil, nil
	}
	return []ir.Operator{&ir.SingleAssignment{Dst: ir.Reg(reg, value.Type()), Src: value}}, nil
}

func lowerGetRegister(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
	enc, err := constantArg(call, 0)
	if err != nil {
		return nil, err
	}
	dst, err := result(call)
	if err != nil {
		return nil, err
	}
	reg, ok := p.regs.ByEncoding(enc)
	if !ok {
		p.log.Debug("reading missing register as zero", "method", m.Name, "encoding", enc)
		return []ir.Operator{&ir.SingleAssignment{Dst: dst, Src: ir.Int(dst.Type(), 0)}}, nil
	}
	if reg.Is(ir.ProgramCounter) {
		// pc reads ahead of the executing opcode.
		return []ir.Operator{&ir.Binary{
			Op:  ir.OpSub,
			Dst: dst,
			Lhs: ir.Reg(reg, ir.Uint32),
			Rhs: ir.Int(ir.Uint32, armasm.PCOffset),
		}}, nil
	}
	return []ir.Operator{&ir.SingleAssignment{Dst: dst, Src: ir.Reg(reg, dst.Type())}}, nil
}

func lowerSetStatus(saved bool) intrinsicFunc {
	return func(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
		fields, err := constantArg(call, 0)
		if err != nil {
			return nil, err
		}
		value, err := valueArg(call, 1)
		if err != nil {
			return nil, err
		}
		return []ir.Operator{&ir.MoveToStatusRegister{Src: value, Saved: saved, Fields: uint8(fields)}}, nil
	}
}

func lowerGetStatus(saved bool) intrinsicFunc {
	return func(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
		dst, err := result(call)
		if err != nil {
			return nil, err
		}
		return []ir.Operator{&ir.MoveFromStatusRegister{Dst: dst, Saved: saved}}, nil
	}
}

func coprocessorOperand(call *ir.IntrinsicCall) (ir.CoprocessorOperand, error) {
	var v [5]uint32
	for i := range v {
		c, err := constantArg(call, i)
		if err != nil {
			return ir.CoprocessorOperand{}, err
		}
		v[i] = c
	}
	return ir.CoprocessorOperand{CpNum: v[0], Op1: v[1], CRn: v[2], CRm: v[3], Op2: v[4]}, nil
}

func lowerMoveToCoprocessor(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
	operand, err := coprocessorOperand(call)
	if err != nil {
		return nil, err
	}
	value, err := valueArg(call, 5)
	if err != nil {
		return nil, err
	}
	return []ir.Operator{&ir.MoveToCoprocessor{CoprocessorOperand: operand, Src: value}}, nil
}

func lowerMoveFromCoprocessor(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
	operand, err := coprocessorOperand(call)
	if err != nil {
		return nil, err
	}
	dst, err := result(call)
	if err != nil {
		return nil, err
	}
	return []ir.Operator{&ir.MoveFromCoprocessor{CoprocessorOperand: operand, Dst: dst}}, nil
}

func lowerBreakpoint(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
	value, err := constantArg(call, 0)
	if err != nil {
		return nil, err
	}
	return []ir.Operator{&ir.Breakpoint{Value: value}}, nil
}

// ScratchedRegisterMask is the LDM/STM mask of the integer registers a call
// may clobber.
func (p *Platform) ScratchedRegisterMask() uint16 {
	var mask uint16
	for n := armasm.R0; n <= armasm.PC; n++ {
		if p.cc.IsScratched(p.regs.Integer(n)) {
			mask |= 1 << n
		}
	}
	return mask
}

func lowerScratchedRegisters(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
	dst, err := result(call)
	if err != nil {
		return nil, err
	}
	return []ir.Operator{&ir.SingleAssignment{Dst: dst, Src: ir.Int(ir.Uint32, int64(p.ScratchedRegisterMask()))}}, nil
}

func lowerMoveRegisters(load bool) intrinsicFunc {
	return func(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
		mask, err := constantArg(call, 0)
		if err != nil {
			return nil, err
		}
		computed, err := constantArg(call, 1)
		if err != nil {
			return nil, err
		}
		return []ir.Operator{&ir.MoveIntegerRegisters{Load: load, Registers: uint16(mask), AddComputed: computed != 0}}, nil
	}
}

func lowerMoveFpRegisters(load bool) intrinsicFunc {
	return func(p *Platform, m *ir.Method, call *ir.IntrinsicCall) ([]ir.Operator, error) {
		if !p.HasVFP() {
			return nil, fmt.Errorf("target has no vfp: %w", ir.ErrTypeConsistency)
		}
		low, err := constantArg(call, 0)
		if err != nil {
			return nil, err
		}
		high, err := constantArg(call, 1)
		if err != nil {
			return nil, err
		}
		computed, err := constantArg(call, 2)
		if err != nil {
			return nil, err
		}
		return []ir.Operator{&ir.MoveFloatingPointRegisters{
			Load:        load,
			Low:         int(int32(low)),
			High:        int(int32(high)),
			AddComputed: computed != 0,
		}}, nil
	}
}
