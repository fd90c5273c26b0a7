// Package image places compiled sections into the target's memory map and
// resolves the fixups between them.
package image

import (
	"fmt"
	"sort"

	"github.com/tinyrange/armcc/internal/config"
)

// Span is a free address range [Base, End).
type Span struct {
	Base uint32
	End  uint64
}

func (s Span) Size() uint64 {
	return s.End - uint64(s.Base)
}

// Area is a configured memory region with its reserved blocks removed.
type Area struct {
	Name  string
	Kinds []string
	Base  uint32
	End   uint64
	Free  []Span
}

func (a *Area) Serves(kind string) bool {
	for _, k := range a.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type MemoryMap struct {
	Areas []*Area
}

// NewMemoryMap builds the memory map for a target. Reserved blocks are cut
// out of the free space of their region.
func NewMemoryMap(regions []config.Region) (*MemoryMap, error) {
	m := &MemoryMap{}
	for _, r := range regions {
		area := &Area{
			Name:  r.Name,
			Kinds: append([]string(nil), r.Kinds...),
			Base:  r.Base,
			End:   r.End(),
			Free:  []Span{{Base: r.Base, End: r.End()}},
		}
		for _, b := range r.Reserved {
			area.Free = subtract(area.Free, uint64(b.Base), uint64(b.Base)+uint64(b.Size))
		}
		m.Areas = append(m.Areas, area)
	}
	sort.SliceStable(m.Areas, func(i, j int) bool { return m.Areas[i].Base < m.Areas[j].Base })
	for i := 1; i < len(m.Areas); i++ {
		if uint64(m.Areas[i].Base) < m.Areas[i-1].End {
			return nil, fmt.Errorf("image: region %s overlaps %s", m.Areas[i].Name, m.Areas[i-1].Name)
		}
	}
	return m, nil
}

// subtract removes [lo, hi) from spans. A block may remove a whole span,
// trim its prefix or suffix, or split it in two.
func subtract(spans []Span, lo, hi uint64) []Span {
	var out []Span
	for _, s := range spans {
		base := uint64(s.Base)
		switch {
		case hi <= base || lo >= s.End:
			out = append(out, s)
		case lo <= base && hi >= s.End:
			// fully reserved
		case lo <= base:
			out = append(out, Span{Base: uint32(hi), End: s.End})
		case hi >= s.End:
			out = append(out, Span{Base: s.Base, End: lo})
		default:
			out = append(out, Span{Base: s.Base, End: lo}, Span{Base: uint32(hi), End: s.End})
		}
	}
	return out
}

// Area returns the area that should receive a section: the named area when
// placement is set, otherwise the first area serving kind.
func (m *MemoryMap) Area(placement, kind string) (*Area, error) {
	if placement != "" {
		for _, a := range m.Areas {
			if a.Name == placement {
				return a, nil
			}
		}
		return nil, fmt.Errorf("image: unknown memory region %q", placement)
	}
	for _, a := range m.Areas {
		if a.Serves(kind) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("image: no memory region serves %q", kind)
}
