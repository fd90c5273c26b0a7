package arm

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

// varKey identifies a storage location tracked by liveness. Registers are
// keyed by table index; stack slots by placement and name or slot, so
// separate StackLocation values naming the same slot share a key.
type varKey struct {
	reg       int
	placement ir.StackPlacement
	name      string
	index     int
}

func registerKey(r *ir.RegisterDescriptor) varKey {
	return varKey{reg: r.Index + 1}
}

func stackKey(s *ir.StackLocation) varKey {
	k := varKey{placement: s.Placement, name: s.Name}
	if s.Name == "" {
		k.index = s.Index
	}
	return k
}

func (k varKey) isRegister() bool { return k.reg != 0 }

type varInfo struct {
	key  varKey
	mode codemap.Mode
	// words is the widest access seen, used for stack slots.
	words int
	locs  []*ir.StackLocation
	reg   *ir.RegisterDescriptor
}

// livenessFilter decides which expressions an analysis tracks. gen is
// asked about uses, track about both uses and definitions.
type livenessFilter struct {
	track func(e ir.Expression) bool
	gen   func(e ir.Expression) bool
}

// pointerFilter tracks integer registers and stack slots; only
// pointer-typed reads make a location live.
var pointerFilter = livenessFilter{
	track: func(e ir.Expression) bool {
		switch x := e.(type) {
		case *ir.PhysicalRegister:
			return x.Reg.File == ir.FileInteger && !x.Reg.Is(ir.Special)
		case *ir.StackLocation:
			return true
		}
		return false
	},
	gen: func(e ir.Expression) bool {
		return e.Type().PointerKind() != ir.NotPointer
	},
}

// localFilter tracks the LOCAL stack region for slot colouring.
var localFilter = livenessFilter{
	track: func(e ir.Expression) bool {
		s, ok := e.(*ir.StackLocation)
		return ok && s.Placement == ir.PlacementLocal
	},
	gen: func(ir.Expression) bool { return true },
}

// Liveness is a backward data-flow solution over one method.
type Liveness struct {
	vars  []*varInfo
	index map[varKey]int

	regs   *RegisterSet
	filter livenessFilter
	kills  func(ir.Call) ([]ir.Expression, error)

	blockIn  map[*ir.BasicBlock]*bitset.BitSet
	blockOut map[*ir.BasicBlock]*bitset.BitSet
	after    map[ir.Operator]*bitset.BitSet
}

// computeLiveness solves liveness for the locations selected by filter.
// kills lists what a call destroys.
func computeLiveness(m *ir.Method, regs *RegisterSet, filter livenessFilter, kills func(ir.Call) ([]ir.Expression, error)) (*Liveness, error) {
	l := &Liveness{
		index:    make(map[varKey]int),
		regs:     regs,
		filter:   filter,
		kills:    kills,
		blockIn:  make(map[*ir.BasicBlock]*bitset.BitSet),
		blockOut: make(map[*ir.BasicBlock]*bitset.BitSet),
		after:    make(map[ir.Operator]*bitset.BitSet),
	}

	// Register every location first so the bit sets have a fixed width.
	for _, b := range m.Blocks {
		for _, op := range b.Operators {
			for _, e := range op.Uses() {
				l.variable(e, true)
			}
			defs, err := l.defs(op)
			if err != nil {
				return nil, err
			}
			for _, e := range defs {
				l.variable(e, false)
			}
			if aa, ok := op.(*ir.AddressAssignment); ok {
				l.variable(aa.Src, false)
			}
		}
	}

	width := uint(len(l.vars))
	for _, b := range m.Blocks {
		l.blockIn[b] = bitset.New(width)
		l.blockOut[b] = bitset.New(width)
	}

	for changed := true; changed; {
		changed = false
		for i := len(m.Blocks) - 1; i >= 0; i-- {
			b := m.Blocks[i]
			out := bitset.New(width)
			for _, s := range b.Successors() {
				if in, ok := l.blockIn[s]; ok {
					out.InPlaceUnion(in)
				}
			}
			live := out.Clone()
			for j := len(b.Operators) - 1; j >= 0; j-- {
				if err := l.step(live, b.Operators[j]); err != nil {
					return nil, err
				}
			}
			if !out.Equal(l.blockOut[b]) || !live.Equal(l.blockIn[b]) {
				l.blockOut[b] = out
				l.blockIn[b] = live
				changed = true
			}
		}
	}

	for _, b := range m.Blocks {
		live := l.blockOut[b].Clone()
		for j := len(b.Operators) - 1; j >= 0; j-- {
			op := b.Operators[j]
			l.after[op] = live.Clone()
			if err := l.step(live, op); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

func (l *Liveness) variable(e ir.Expression, use bool) (int, bool) {
	if e == nil || !l.filter.track(e) {
		return 0, false
	}
	var key varKey
	var reg *ir.RegisterDescriptor
	var loc *ir.StackLocation
	switch x := e.(type) {
	case *ir.PhysicalRegister:
		key, reg = registerKey(x.Reg), x.Reg
	case *ir.StackLocation:
		key, loc = stackKey(x), x
	default:
		return 0, false
	}
	idx, ok := l.index[key]
	if !ok {
		idx = len(l.vars)
		l.index[key] = idx
		l.vars = append(l.vars, &varInfo{key: key, reg: reg, mode: codemap.ModeHeap})
	}
	v := l.vars[idx]
	if loc != nil {
		v.locs = appendUnique(v.locs, loc)
	}
	if w := e.Type().Words(); w > v.words {
		v.words = w
	}
	if use && e.Type().PointerKind() != ir.NotPointer {
		v.mode = pointerMode(e.Type().PointerKind())
	}
	return idx, true
}

func appendUnique(locs []*ir.StackLocation, loc *ir.StackLocation) []*ir.StackLocation {
	for _, l := range locs {
		if l == loc {
			return locs
		}
	}
	return append(locs, loc)
}

func pointerMode(k ir.PointerKind) codemap.Mode {
	switch k {
	case ir.InternalPointer:
		return codemap.ModeInternal
	case ir.PotentialPointer:
		return codemap.ModePotential
	}
	return codemap.ModeHeap
}

// defs is what op overwrites, including everything a call destroys.
func (l *Liveness) defs(op ir.Operator) ([]ir.Expression, error) {
	call, ok := op.(ir.Call)
	if !ok || l.kills == nil {
		return op.Defs(), nil
	}
	killed, err := l.kills(call)
	if err != nil {
		return nil, err
	}
	return append(op.Defs(), killed...), nil
}

func (l *Liveness) step(live *bitset.BitSet, op ir.Operator) error {
	defs, err := l.defs(op)
	if err != nil {
		return err
	}
	for _, d := range defs {
		if idx, ok := l.lookup(d); ok {
			live.Clear(uint(idx))
		}
		if r, isReg := d.(*ir.PhysicalRegister); isReg {
			aliases := l.regs.Aliases(r.Reg)
			for a, more := aliases.NextSet(0); more; a, more = aliases.NextSet(a + 1) {
				if other, tracked := l.index[registerKey(l.regs.ByIndex(int(a)))]; tracked {
					live.Clear(uint(other))
				}
			}
		}
	}
	for _, u := range op.Uses() {
		if !l.filter.gen(u) {
			continue
		}
		if idx, ok := l.lookup(u); ok {
			live.Set(uint(idx))
		}
	}
	return nil
}

func (l *Liveness) lookup(e ir.Expression) (int, bool) {
	switch x := e.(type) {
	case *ir.PhysicalRegister:
		idx, ok := l.index[registerKey(x.Reg)]
		return idx, ok
	case *ir.StackLocation:
		idx, ok := l.index[stackKey(x)]
		return idx, ok
	}
	return 0, false
}

// Len is the number of tracked locations.
func (l *Liveness) Len() int { return len(l.vars) }

// LiveIn returns the locations live on entry to b.
func (l *Liveness) LiveIn(b *ir.BasicBlock) *bitset.BitSet { return l.blockIn[b] }

// LiveAfter returns the locations live right after op.
func (l *Liveness) LiveAfter(op ir.Operator) *bitset.BitSet { return l.after[op] }

func (l *Liveness) variableAt(idx uint) *varInfo { return l.vars[idx] }
