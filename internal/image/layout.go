package image

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tinyrange/armcc/internal/asm"
	"github.com/tinyrange/armcc/internal/asm/arm"
)

// Section is a unit of placement: a compiled method or a data blob.
type Section struct {
	Name string
	// Kind is the usage category (config.Kind*) used to pick an area when
	// Placement is empty.
	Kind      string
	Placement string
	Code      []byte
	Labels    map[asm.Label]int
	Fixups    []arm.Fixup
}

// FromArm wraps a finished assembler section.
func FromArm(s arm.Section, kind, placement string) *Section {
	return &Section{
		Name:      s.Name,
		Kind:      kind,
		Placement: placement,
		Code:      s.Code,
		Labels:    s.Labels,
		Fixups:    s.Fixups,
	}
}

// Placed is a section with its final address.
type Placed struct {
	*Section
	Area    *Area
	Address uint32
}

func (p *Placed) End() uint32 {
	return p.Address + uint32(len(p.Code))
}

// Overflow is a fixup whose target was out of reach of the emitted form.
type Overflow struct {
	Section string
	Fixup   int
	Err     error
}

func (o Overflow) Error() string {
	return fmt.Sprintf("%s: fixup %d: %v", o.Section, o.Fixup, o.Err)
}

// Layout is a placement of sections in a memory map.
type Layout struct {
	Sections []*Placed
	symbols  map[asm.Label]uint32
	patched  map[*Placed][]byte
	relocs   map[*Placed][]int
}

// Place assigns addresses to sections in order. Each area is filled
// sequentially, skipping reserved blocks.
func (m *MemoryMap) Place(sections []*Section) (*Layout, error) {
	type cursor struct {
		span int
		addr uint64
	}
	cursors := make(map[*Area]*cursor)

	l := &Layout{symbols: make(map[asm.Label]uint32)}
	for _, s := range sections {
		area, err := m.Area(s.Placement, s.Kind)
		if err != nil {
			return nil, fmt.Errorf("place %s: %w", s.Name, err)
		}
		c := cursors[area]
		if c == nil {
			c = &cursor{}
			if len(area.Free) > 0 {
				c.addr = uint64(area.Free[0].Base)
			}
			cursors[area] = c
		}
		size := uint64(len(s.Code))
		for {
			if c.span >= len(area.Free) {
				return nil, fmt.Errorf("place %s: region %s is full", s.Name, area.Name)
			}
			span := area.Free[c.span]
			if c.addr < uint64(span.Base) {
				c.addr = uint64(span.Base)
			}
			c.addr = (c.addr + 3) &^ 3
			if c.addr+size <= span.End {
				break
			}
			c.span++
		}
		p := &Placed{Section: s, Area: area, Address: uint32(c.addr)}
		c.addr += size
		l.Sections = append(l.Sections, p)

		if _, dup := l.symbols[asm.Label(s.Name)]; dup {
			return nil, fmt.Errorf("place %s: duplicate symbol", s.Name)
		}
		l.symbols[asm.Label(s.Name)] = p.Address
		for label, off := range s.Labels {
			if _, dup := l.symbols[label]; dup {
				return nil, fmt.Errorf("place %s: duplicate label %q", s.Name, label)
			}
			l.symbols[label] = p.Address + uint32(off)
		}
	}
	return l, nil
}

// Symbol returns the absolute address of a label.
func (l *Layout) Symbol(label asm.Label) (uint32, bool) {
	addr, ok := l.symbols[label]
	return addr, ok
}

// Symbols returns every known label address.
func (l *Layout) Symbols() map[string]uint32 {
	out := make(map[string]uint32, len(l.symbols))
	for k, v := range l.symbols {
		out[string(k)] = v
	}
	return out
}

// Section returns the placement of a named section.
func (l *Layout) Section(name string) (*Placed, bool) {
	for _, p := range l.Sections {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Resolve applies every fixup. Fixups whose target does not fit are
// returned as overflows rather than errors so the caller can pick a longer
// encoding and lay out again.
func (l *Layout) Resolve() ([]Overflow, error) {
	l.patched = make(map[*Placed][]byte, len(l.Sections))
	l.relocs = make(map[*Placed][]int, len(l.Sections))

	var overflows []Overflow
	for _, p := range l.Sections {
		code := append([]byte(nil), p.Code...)
		for i, f := range p.Fixups {
			target, ok := l.symbols[f.Target]
			if !ok {
				return nil, fmt.Errorf("image: %s: undefined label %q", p.Name, f.Target)
			}
			if err := f.Apply(code, p.Address, target); err != nil {
				if errors.Is(err, arm.ErrOutOfRange) {
					overflows = append(overflows, Overflow{Section: p.Name, Fixup: i, Err: err})
					continue
				}
				return nil, fmt.Errorf("image: %s: %w", p.Name, err)
			}
			if f.Kind == arm.FixupAbsolute {
				l.relocs[p] = append(l.relocs[p], f.Offset)
			}
		}
		l.patched[p] = code
	}
	return overflows, nil
}

// AreaImage is the linked content of one area.
type AreaImage struct {
	Name    string
	Program asm.Program
}

// Link concatenates the resolved sections of each area, zero filling any
// gaps. Resolve must have succeeded without overflows.
func (l *Layout) Link() ([]AreaImage, error) {
	if l.patched == nil {
		return nil, fmt.Errorf("image: link before resolve")
	}
	byArea := make(map[*Area][]*Placed)
	var areas []*Area
	for _, p := range l.Sections {
		if _, ok := byArea[p.Area]; !ok {
			areas = append(areas, p.Area)
		}
		byArea[p.Area] = append(byArea[p.Area], p)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].Base < areas[j].Base })

	var out []AreaImage
	for _, area := range areas {
		placed := byArea[area]
		sort.Slice(placed, func(i, j int) bool { return placed[i].Address < placed[j].Address })
		base := placed[0].Address
		end := base
		for _, p := range placed {
			if p.End() > end {
				end = p.End()
			}
		}
		buf := make([]byte, end-base)
		var relocs []int
		symbols := make(map[asm.Label]uint32)
		for _, p := range placed {
			off := int(p.Address - base)
			copy(buf[off:], l.patched[p])
			for _, r := range l.relocs[p] {
				relocs = append(relocs, off+r)
			}
			symbols[asm.Label(p.Name)] = p.Address
			for label, lo := range p.Labels {
				symbols[label] = p.Address + uint32(lo)
			}
		}
		sort.Ints(relocs)
		out = append(out, AreaImage{Name: area.Name, Program: asm.NewProgram(base, buf, relocs, symbols)})
	}
	return out, nil
}
