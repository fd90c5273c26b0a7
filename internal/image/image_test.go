package image

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/armcc/internal/asm"
	"github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/config"
)

func TestReservedBlocksSplitRegions(t *testing.T) {
	m, err := NewMemoryMap([]config.Region{{
		Name:  "ram",
		Kinds: []string{config.KindCode},
		Base:  0x1000,
		Size:  0x1000,
		Reserved: []config.Block{
			{Base: 0x1000, Size: 0x100}, // prefix
			{Base: 0x1F00, Size: 0x100}, // suffix
			{Base: 0x1800, Size: 0x80},  // middle
		},
	}})
	require.NoError(t, err)
	require.Len(t, m.Areas, 1)
	assert.Equal(t, []Span{
		{Base: 0x1100, End: 0x1800},
		{Base: 0x1880, End: 0x1F00},
	}, m.Areas[0].Free)
}

func TestReservedBlockCoveringRegion(t *testing.T) {
	m, err := NewMemoryMap([]config.Region{{
		Name: "rom", Kinds: []string{config.KindCode}, Base: 0, Size: 0x100,
		Reserved: []config.Block{{Base: 0, Size: 0x100}},
	}})
	require.NoError(t, err)
	assert.Empty(t, m.Areas[0].Free)

	_, err = m.Place([]*Section{{Name: "f", Kind: config.KindCode, Code: make([]byte, 4)}})
	assert.ErrorContains(t, err, "full")
}

func TestOverlappingRegionsRejected(t *testing.T) {
	_, err := NewMemoryMap([]config.Region{
		{Name: "a", Kinds: []string{config.KindCode}, Base: 0, Size: 0x200},
		{Name: "b", Kinds: []string{config.KindCode}, Base: 0x100, Size: 0x200},
	})
	assert.Error(t, err)
}

func TestPlaceSkipsReservedSpace(t *testing.T) {
	m, err := NewMemoryMap([]config.Region{{
		Name: "ram", Kinds: []string{config.KindCode, config.KindDataRO}, Base: 0, Size: 0x100,
		Reserved: []config.Block{{Base: 0x10, Size: 0x10}},
	}})
	require.NoError(t, err)

	layout, err := m.Place([]*Section{
		{Name: "a", Kind: config.KindCode, Code: make([]byte, 8)},
		{Name: "b", Kind: config.KindCode, Code: make([]byte, 12)},
		{Name: "c", Kind: config.KindDataRO, Code: make([]byte, 3)},
		{Name: "d", Kind: config.KindDataRO, Code: make([]byte, 4)},
	})
	require.NoError(t, err)

	want := map[string]uint32{"a": 0, "b": 0x20, "c": 0x2C, "d": 0x30}
	for name, addr := range want {
		p, ok := layout.Section(name)
		require.True(t, ok, name)
		assert.Equal(t, addr, p.Address, name)
	}
}

func TestResolveReportsOverflow(t *testing.T) {
	m, err := NewMemoryMap([]config.Region{
		{Name: "near", Kinds: []string{config.KindCode}, Base: 0, Size: 0x1000},
		{Name: "far", Kinds: []string{config.KindCode}, Base: 0x08000000, Size: 0x1000},
	})
	require.NoError(t, err)

	caller := arm.NewContext("caller")
	require.NoError(t, arm.BranchTo(arm.CondAL, "callee", true).Emit(caller))
	require.NoError(t, arm.Address("callee").Emit(caller))

	callee := arm.NewContext("callee")
	require.NoError(t, arm.Return().Emit(callee))

	layout, err := m.Place([]*Section{
		FromArm(caller.Finish(), config.KindCode, "near"),
		FromArm(callee.Finish(), config.KindCode, "far"),
	})
	require.NoError(t, err)

	overflows, err := layout.Resolve()
	require.NoError(t, err)
	require.Len(t, overflows, 1)
	assert.Equal(t, "caller", overflows[0].Section)
	assert.Equal(t, 0, overflows[0].Fixup)

	images, err := layout.Link()
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "near", images[0].Name)
	code := images[0].Program.Bytes()
	assert.Equal(t, uint32(0x08000000), binary.LittleEndian.Uint32(code[4:]))
	assert.Equal(t, []int{4}, images[0].Program.Relocations())

	addr, ok := images[1].Program.Symbol(asm.Label("callee"))
	require.True(t, ok)
	assert.Equal(t, uint32(0x08000000), addr)
}

func TestResolveUndefinedLabel(t *testing.T) {
	m, err := NewMemoryMap(config.Default().Memory)
	require.NoError(t, err)

	ctx := arm.NewContext("f")
	require.NoError(t, arm.BranchTo(arm.CondAL, "missing", false).Emit(ctx))
	layout, err := m.Place([]*Section{FromArm(ctx.Finish(), config.KindCode, "")})
	require.NoError(t, err)
	_, err = layout.Resolve()
	assert.ErrorContains(t, err, "missing")
}
