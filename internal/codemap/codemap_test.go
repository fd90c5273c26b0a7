package codemap

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, r Range) []Event {
	t.Helper()
	var events []Event
	require.NoError(t, r.Decode(func(ev Event) error {
		events = append(events, ev)
		return nil
	}))
	return events
}

func TestEncoderStackOffsets(t *testing.T) {
	var enc Encoder
	require.NoError(t, enc.Stack(0x1D, true))
	require.NoError(t, enc.Stack(0x1E, true))
	require.NoError(t, enc.Stack(0xFE, false))
	require.NoError(t, enc.Stack(0xFF, true))
	require.NoError(t, enc.Stack(0x1234, false))

	assert.Equal(t, []byte{
		0x5D,
		0x5E, 0x1E,
		0x7E, 0xFE,
		0x5F, 0xFF, 0x00,
		0x7F, 0x34, 0x12,
	}, enc.Bytes())

	events := decodeAll(t, Range{Start: 0x100, Stream: enc.Bytes()})
	require.Len(t, events, 5, spew.Sdump(events))
	offsets := []uint32{0x1D, 0x1E, 0xFE, 0xFF, 0x1234}
	for i, ev := range events {
		assert.Equal(t, offsets[i], ev.Offset)
		assert.Equal(t, uint32(0x100), ev.Address)
	}
	assert.Equal(t, EnterStack, events[0].Effect)
	assert.Equal(t, LeaveStack, events[2].Effect)
}

func TestEncoderRejectsWideStackOffset(t *testing.T) {
	var enc Encoder
	require.NoError(t, enc.Stack(StackMax, true))
	assert.Equal(t, []byte{0x5F, 0xFF, 0xFF}, enc.Bytes())

	require.Error(t, enc.Stack(StackMax+1, true))
	require.Error(t, enc.Stack(0x12345, false))
	assert.Equal(t, 3, enc.Len(), "a rejected offset must not write")
}

func TestEncoderSkipChunks(t *testing.T) {
	var enc Encoder
	enc.Skip(70)
	enc.Register(14, true)
	enc.SetMode(ModeInternal)
	enc.Register(3, false)

	assert.Equal(t, []byte{0xFF, 0xFF, 0xE8, 0x0E, 0x81, 0x23}, enc.Bytes())

	events := decodeAll(t, Range{Start: 0x1000, Stream: enc.Bytes()})
	require.Len(t, events, 6)
	last := events[len(events)-1]
	assert.Equal(t, uint32(0x1000+70*4), last.Address)
	assert.Equal(t, uint8(3), last.Register)
	assert.Equal(t, ModeInternal, events[4].Mode)
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	err := Range{Stream: []byte{0x5F, 0x01}}.Decode(func(Event) error { return nil })
	assert.Error(t, err)
	err = Range{Stream: []byte{0xA0}}.Decode(func(Event) error { return nil })
	assert.Error(t, err)
}

func TestSameContents(t *testing.T) {
	a := &CodeMap{Method: "m", Ranges: []Range{{Start: 0, End: 8, Flags: EntryPoint, Stream: []byte{0x40}}}}
	b := &CodeMap{Method: "m", Ranges: []Range{{Start: 0, End: 8, Flags: EntryPoint, Stream: []byte{0x40}}}}
	assert.True(t, a.SameContents(b))

	b.Ranges[0].Stream = []byte{0x41}
	assert.False(t, a.SameContents(b))
	assert.False(t, a.SameContents(nil))
	assert.True(t, (*CodeMap)(nil).SameContents(nil))
}

func TestValidateRejectsOverlap(t *testing.T) {
	m := &CodeMap{Method: "m", Ranges: []Range{{Start: 0, End: 16}, {Start: 8, End: 24}}}
	assert.Error(t, m.Validate())
	m.Ranges[1].Start = 16
	assert.NoError(t, m.Validate())

	r, ok := m.Find(20)
	require.True(t, ok)
	assert.Equal(t, uint32(16), r.Start)
}
