// Package codemap holds the per-method stack-walk metadata the runtime
// consults to find live pointers in registers and stack slots.
package codemap

import (
	"bytes"
	"fmt"
	"strings"
)

// Flags describe the code covered by a range.
type Flags uint16

const (
	NormalCode Flags = 1 << iota
	EntryPoint
	ExceptionHandler
	InterruptHandler
	ColdSection
	BottomOfCallStack
	HasStackAdjustment
	HasFpStatusRegisterSave
	HasFpRegisterSave
	HasIntRegisterSave
)

var flagNames = []string{
	"normal", "entry", "handler", "interrupt", "cold", "bottom",
	"stack-adjust", "fpscr-save", "fp-save", "int-save",
}

func (f Flags) String() string {
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Effect is the high three bits of a stream byte.
type Effect uint8

const (
	EnterRegisterSet Effect = 0x00
	LeaveRegisterSet Effect = 0x20
	EnterStack       Effect = 0x40
	LeaveStack       Effect = 0x60
	SetMode          Effect = 0x80
	SkipToOpcode     Effect = 0xE0

	effectMask = 0xE0
	valueMask  = 0x1F
)

func (e Effect) String() string {
	switch e {
	case EnterRegisterSet:
		return "enter-reg"
	case LeaveRegisterSet:
		return "leave-reg"
	case EnterStack:
		return "enter-stack"
	case LeaveStack:
		return "leave-stack"
	case SetMode:
		return "mode"
	case SkipToOpcode:
		return "skip"
	}
	return fmt.Sprintf("effect(%#x)", uint8(e))
}

// Mode is the pointer classification applied to subsequent enter events.
type Mode uint8

const (
	ModeHeap Mode = iota
	ModeInternal
	ModePotential
)

func (m Mode) String() string {
	switch m {
	case ModeHeap:
		return "heap"
	case ModeInternal:
		return "internal"
	case ModePotential:
		return "potential"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

const (
	// SkipMax is the largest opcode count one skip event can carry.
	SkipMax = valueMask
	// stackInline is the largest stack offset stored in the event byte.
	stackInline = 0x1D
	stackExt8   = 0x1E
	stackExt16  = 0x1F
	// StackMax is the largest word offset a stack event can carry.
	StackMax = 0xFFFF
	// OpcodeSize is the distance covered by one skipped opcode.
	OpcodeSize = 4
)

// Range covers [Start, End) and carries the encoded stack walk for it.
type Range struct {
	Start  uint32
	End    uint32
	Flags  Flags
	Stream []byte
}

func (r Range) Equal(o Range) bool {
	return r.Start == o.Start && r.End == o.End && r.Flags == o.Flags && bytes.Equal(r.Stream, o.Stream)
}

// CodeMap is the metadata for one method. Ranges are ordered by address
// and never overlap.
type CodeMap struct {
	Method string
	Ranges []Range
}

// SameContents reports whether two maps describe identical ranges.
func (m *CodeMap) SameContents(o *CodeMap) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.Ranges) != len(o.Ranges) {
		return false
	}
	for i := range m.Ranges {
		if !m.Ranges[i].Equal(o.Ranges[i]) {
			return false
		}
	}
	return true
}

// Find returns the range containing addr.
func (m *CodeMap) Find(addr uint32) (Range, bool) {
	for _, r := range m.Ranges {
		if addr >= r.Start && addr < r.End {
			return r, true
		}
	}
	return Range{}, false
}

// Validate checks ordering and overlap.
func (m *CodeMap) Validate() error {
	for i, r := range m.Ranges {
		if r.End < r.Start {
			return fmt.Errorf("codemap: %s: range %d ends before it starts", m.Method, i)
		}
		if i > 0 && r.Start < m.Ranges[i-1].End {
			return fmt.Errorf("codemap: %s: range %d at %#x overlaps previous", m.Method, i, r.Start)
		}
	}
	return nil
}

func (m *CodeMap) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "codemap %s\n", m.Method)
	for _, r := range m.Ranges {
		fmt.Fprintf(&sb, "  [%#08x, %#08x) %s\n", r.Start, r.End, r.Flags)
		_ = r.Decode(func(ev Event) error {
			fmt.Fprintf(&sb, "    %s\n", ev)
			return nil
		})
	}
	return sb.String()
}
