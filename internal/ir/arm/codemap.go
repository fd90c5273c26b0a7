package arm

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

// mapEvent is the pointer-live set in force from offset onwards. block is
// set for the first event of each basic block.
type mapEvent struct {
	offset int
	block  *ir.BasicBlock
	live   *bitset.BitSet
}

func (s *CompilationState) startRegion(b *ir.BasicBlock) {
	live := s.pointers.LiveIn(b)
	if live == nil {
		live = bitset.New(uint(s.pointers.Len()))
	}
	ev := mapEvent{offset: s.ctx.Offset(), block: b, live: live.Clone()}
	// The state after the previous block's last opcode is replaced by the
	// block's live-in set at the same address.
	if n := len(s.events); n > 0 && s.events[n-1].offset == ev.offset && s.events[n-1].block == nil {
		s.events[n-1] = ev
		return
	}
	s.events = append(s.events, ev)
}

func (s *CompilationState) recordLiveness(offset int, live *bitset.BitSet) {
	if n := len(s.events); n > 0 && s.events[n-1].offset == offset && s.events[n-1].block == nil {
		s.events[n-1].live = live.Clone()
		return
	}
	s.events = append(s.events, mapEvent{offset: offset, live: live.Clone()})
}

func (s *CompilationState) rangeFlags(b *ir.BasicBlock) codemap.Flags {
	flags := s.headerFlags
	switch {
	case b.Kind == ir.BlockExceptionHandler:
		flags |= codemap.ExceptionHandler
	case b == s.order[0] || b.Kind == ir.BlockEntry:
		flags |= codemap.EntryPoint
	default:
		flags |= codemap.NormalCode
	}
	if b.Cold {
		flags |= codemap.ColdSection
	}
	return flags
}

// opensRange reports whether b cannot share the range of the previous
// block.
func opensRange(prev, b *ir.BasicBlock) bool {
	return prev == nil || b.Kind == ir.BlockEntry || b.Kind == ir.BlockExceptionHandler ||
		prev.Kind == ir.BlockExceptionHandler || b.Cold != prev.Cold
}

// CreateCodeMaps builds the code map of the last emitted section placed at
// base. It reports whether the map differs from the previous one.
func (s *CompilationState) CreateCodeMaps(base uint32) (bool, error) {
	if s.pointers == nil {
		return false, fmt.Errorf("arm: %s: liveness not computed: %w", s.method.Name, ir.ErrInternal)
	}
	cm := &codemap.CodeMap{Method: s.method.Name}
	end := base + uint32(s.section.PoolOffset)

	var (
		enc    *codemap.Encoder
		cur    codemap.Range
		open   bool
		state  *bitset.BitSet
		mode   codemap.Mode
		cursor uint32
		prev   *ir.BasicBlock
	)
	closeRange := func(at uint32) {
		if !open {
			return
		}
		cur.End = at
		cur.Stream = enc.Bytes()
		cm.Ranges = append(cm.Ranges, cur)
		open = false
	}

	for _, ev := range s.events {
		addr := base + uint32(ev.offset)
		if ev.block != nil {
			if opensRange(prev, ev.block) {
				closeRange(addr)
				enc = &codemap.Encoder{}
				cur = codemap.Range{Start: addr, Flags: s.rangeFlags(ev.block)}
				open = true
				state = bitset.New(uint(s.pointers.Len()))
				mode = codemap.ModeHeap
				cursor = addr
			}
			prev = ev.block
		}
		if !open {
			continue
		}
		if addr < cursor {
			return false, fmt.Errorf("arm: %s: code map event at %#x before %#x: %w", s.method.Name, addr, cursor, ir.ErrInternal)
		}
		changed := state.SymmetricDifference(ev.live)
		for idx, ok := changed.NextSet(0); ok; idx, ok = changed.NextSet(idx + 1) {
			if addr > cursor {
				enc.Skip((addr - cursor) / codemap.OpcodeSize)
				cursor = addr
			}
			v := s.pointers.variableAt(idx)
			alive := ev.live.Test(idx)
			if alive && v.mode != mode {
				enc.SetMode(v.mode)
				mode = v.mode
			}
			if v.key.isRegister() {
				enc.Register(uint8(v.reg.Encoding), alive)
				continue
			}
			if len(v.locs) > 0 && v.locs[0].Offset >= 0 {
				if err := enc.Stack(uint32(v.locs[0].Offset/4), alive); err != nil {
					return false, fmt.Errorf("arm: %s: %s: %w", s.method.Name, v.locs[0], err)
				}
			}
		}
		state = ev.live
	}
	closeRange(end)

	if err := cm.Validate(); err != nil {
		return false, err
	}
	if cm.SameContents(s.codeMap) {
		return false, nil
	}
	s.codeMap = cm
	return true, nil
}
