package arm

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/armcc/internal/asm"
)

// Context accumulates the opcodes of one section together with its labels,
// deferred fixups and a literal pool that is placed after the code.
type Context struct {
	name      string
	text      []byte
	labels    map[asm.Label]int
	fixups    []Fixup
	pool      []poolEntry
	poolIndex map[poolEntry]int
	doubles   map[uint64]int
}

type poolEntry struct {
	value  uint32
	target asm.Label
	// pair is set on both words of a 64-bit literal so they are never
	// shared with single words.
	pair int
}

// Section is a finished Context: code followed by the literal pool, label
// offsets and the fixups that still need absolute addresses.
type Section struct {
	Name   string
	Code   []byte
	Labels map[asm.Label]int
	Fixups []Fixup
	// PoolOffset is where the literal pool starts within Code.
	PoolOffset int
}

// NewContext returns an empty context. The name prefixes generated pool
// labels so several sections can share one label namespace.
func NewContext(name string) *Context {
	return &Context{
		name:      name,
		labels:    make(map[asm.Label]int),
		poolIndex: make(map[poolEntry]int),
		doubles:   make(map[uint64]int),
	}
}

func (c *Context) Name() string {
	return c.name
}

func (c *Context) EmitBytes(data []byte) {
	c.text = append(c.text, data...)
}

func (c *Context) SetLabel(label asm.Label) {
	c.labels[label] = len(c.text)
}

func (c *Context) GetLabel(label asm.Label) (int, bool) {
	pos, ok := c.labels[label]
	return pos, ok
}

// Offset returns the position the next opcode will be written at.
func (c *Context) Offset() int {
	return len(c.text)
}

func (c *Context) emit32(word uint32) int {
	pos := len(c.text)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	c.text = append(c.text, buf[:]...)
	return pos
}

// Emit encodes op and appends it, returning its offset.
func (c *Context) Emit(op Encoder) (int, error) {
	word, err := op.Encode()
	if err != nil {
		return 0, err
	}
	return c.emit32(word), nil
}

// Word appends a raw data word.
func (c *Context) Word(value uint32) int {
	return c.emit32(value)
}

// OpcodeAt decodes the word previously written at pos.
func (c *Context) OpcodeAt(pos int) (Opcode, error) {
	if pos < 0 || pos+4 > len(c.text) {
		return nil, fmt.Errorf("arm asm: no opcode at %#x", pos)
	}
	return Decode(binary.LittleEndian.Uint32(c.text[pos:]))
}

// Rewrite re-encodes op over the word at pos.
func (c *Context) Rewrite(pos int, op Encoder) error {
	if pos < 0 || pos+4 > len(c.text) {
		return fmt.Errorf("arm asm: no opcode at %#x", pos)
	}
	word, err := op.Encode()
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(c.text[pos:], word)
	return nil
}

func (c *Context) AddFixup(f Fixup) {
	c.fixups = append(c.fixups, f)
}

// FixupCount is the number of fixups recorded so far. Fixups keep their
// index in the finished Section.
func (c *Context) FixupCount() int {
	return len(c.fixups)
}

// Literal returns the label of a pool word holding value.
func (c *Context) Literal(value uint32) asm.Label {
	return c.poolLabel(poolEntry{value: value})
}

// AddressLiteral returns the label of a pool word holding the absolute
// address of target.
func (c *Context) AddressLiteral(target asm.Label) asm.Label {
	return c.poolLabel(poolEntry{target: target})
}

// DoubleLiteral returns the label of two adjacent pool words holding value,
// low word first.
func (c *Context) DoubleLiteral(value uint64) asm.Label {
	idx, ok := c.doubles[value]
	if !ok {
		pair := len(c.doubles) + 1
		idx = len(c.pool)
		c.pool = append(c.pool,
			poolEntry{value: uint32(value), pair: pair},
			poolEntry{value: uint32(value >> 32), pair: pair})
		c.doubles[value] = idx
	}
	return asm.Label(fmt.Sprintf("%s$pool%d", c.name, idx))
}

func (c *Context) poolLabel(e poolEntry) asm.Label {
	idx, ok := c.poolIndex[e]
	if !ok {
		idx = len(c.pool)
		c.pool = append(c.pool, e)
		c.poolIndex[e] = idx
	}
	return asm.Label(fmt.Sprintf("%s$pool%d", c.name, idx))
}

// Finish appends the literal pool and returns the section.
func (c *Context) Finish() Section {
	if rem := len(c.text) % 4; rem != 0 {
		c.text = append(c.text, make([]byte, 4-rem)...)
	}
	poolOffset := len(c.text)
	for idx, e := range c.pool {
		label := asm.Label(fmt.Sprintf("%s$pool%d", c.name, idx))
		c.SetLabel(label)
		pos := c.emit32(e.value)
		if e.target != "" {
			c.AddFixup(Fixup{Kind: FixupAbsolute, Offset: pos, Target: e.target})
		}
	}
	c.pool = nil
	c.poolIndex = make(map[poolEntry]int)
	c.doubles = make(map[uint64]int)

	labels := make(map[asm.Label]int, len(c.labels))
	for k, v := range c.labels {
		labels[k] = v
	}
	return Section{
		Name:       c.name,
		Code:       append([]byte(nil), c.text...),
		Labels:     labels,
		Fixups:     append([]Fixup(nil), c.fixups...),
		PoolOffset: poolOffset,
	}
}

// Link resolves every fixup against the section's own labels, as if the
// section were placed at base.
func (s Section) Link(base uint32) (asm.Program, error) {
	code := append([]byte(nil), s.Code...)
	var relocations []int
	for _, f := range s.Fixups {
		pos, ok := s.Labels[f.Target]
		if !ok {
			return asm.Program{}, fmt.Errorf("arm asm: undefined label %q", f.Target)
		}
		if err := f.Apply(code, base, base+uint32(pos)); err != nil {
			return asm.Program{}, err
		}
		if f.Kind == FixupAbsolute {
			relocations = append(relocations, f.Offset)
		}
	}
	symbols := make(map[asm.Label]uint32, len(s.Labels))
	for k, v := range s.Labels {
		symbols[k] = base + uint32(v)
	}
	return asm.NewProgram(base, code, relocations, symbols), nil
}
