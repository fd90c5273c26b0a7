package codemap

import (
	"encoding/binary"
	"fmt"
)

// Event is one decoded stream entry. Address is absolute.
type Event struct {
	Address  uint32
	Effect   Effect
	Register uint8
	Offset   uint32
	Mode     Mode
	Skip     uint8
}

func (e Event) String() string {
	switch e.Effect {
	case EnterRegisterSet, LeaveRegisterSet:
		return fmt.Sprintf("%#08x %s r%d", e.Address, e.Effect, e.Register)
	case EnterStack, LeaveStack:
		return fmt.Sprintf("%#08x %s [sp+%d]", e.Address, e.Effect, e.Offset*4)
	case SetMode:
		return fmt.Sprintf("%#08x %s %s", e.Address, e.Effect, e.Mode)
	case SkipToOpcode:
		return fmt.Sprintf("%#08x %s %d", e.Address, e.Effect, e.Skip)
	}
	return fmt.Sprintf("%#08x %s", e.Address, e.Effect)
}

// Encoder appends events to a stream.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Bytes() []byte {
	return append([]byte(nil), e.buf...)
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

// Skip advances the stream by n opcodes, split into events of at most
// SkipMax.
func (e *Encoder) Skip(n uint32) {
	for n > 0 {
		step := n
		if step > SkipMax {
			step = SkipMax
		}
		e.buf = append(e.buf, byte(SkipToOpcode)|byte(step))
		n -= step
	}
}

func (e *Encoder) SetMode(m Mode) {
	e.buf = append(e.buf, byte(SetMode)|byte(m))
}

// Register records reg entering (alive) or leaving the live set.
func (e *Encoder) Register(reg uint8, alive bool) {
	effect := LeaveRegisterSet
	if alive {
		effect = EnterRegisterSet
	}
	e.buf = append(e.buf, byte(effect)|reg&0x0F)
}

// Stack records the word at sp+4*offset entering or leaving the live set.
// Offsets above StackMax have no encoding.
func (e *Encoder) Stack(offset uint32, alive bool) error {
	effect := LeaveStack
	if alive {
		effect = EnterStack
	}
	switch {
	case offset <= stackInline:
		e.buf = append(e.buf, byte(effect)|byte(offset))
	case offset < 0xFF:
		e.buf = append(e.buf, byte(effect)|stackExt8, byte(offset))
	case offset <= StackMax:
		e.buf = append(e.buf, byte(effect)|stackExt16, 0, 0)
		binary.LittleEndian.PutUint16(e.buf[len(e.buf)-2:], uint16(offset))
	default:
		return fmt.Errorf("codemap: stack offset %#x words past %#x", offset, StackMax)
	}
	return nil
}

// Decode replays the stream, calling fn once per event.
func (r Range) Decode(fn func(Event) error) error {
	addr := r.Start
	s := r.Stream
	for i := 0; i < len(s); i++ {
		b := s[i]
		ev := Event{Address: addr, Effect: Effect(b & effectMask)}
		val := b & valueMask
		switch ev.Effect {
		case EnterRegisterSet, LeaveRegisterSet:
			ev.Register = val & 0x0F
		case EnterStack, LeaveStack:
			switch val {
			case stackExt8:
				if i+1 >= len(s) {
					return fmt.Errorf("codemap: truncated stack offset at byte %d", i)
				}
				ev.Offset = uint32(s[i+1])
				i++
			case stackExt16:
				if i+2 >= len(s) {
					return fmt.Errorf("codemap: truncated stack offset at byte %d", i)
				}
				ev.Offset = uint32(binary.LittleEndian.Uint16(s[i+1:]))
				i += 2
			default:
				ev.Offset = uint32(val)
			}
		case SetMode:
			ev.Mode = Mode(val)
		case SkipToOpcode:
			ev.Skip = val
			addr += uint32(val) * OpcodeSize
		default:
			return fmt.Errorf("codemap: unknown effect %#x at byte %d", b, i)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
