package arm

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/require"

	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
)

func locationNames(locs [][]Location) [][]string {
	out := make([][]string, len(locs))
	for i, l := range locs {
		for _, loc := range l {
			out[i] = append(out[i], loc.String())
		}
	}
	return out
}

func TestAssignSignatureIntegers(t *testing.T) {
	p := newTestPlatform(t, nil)
	params := []ir.Type{ir.Int32, ir.Int32, ir.Int32, ir.Int32, ir.Int32}

	ret, locs, state, err := p.Convention().AssignSignature(Callee, ir.Int32, params)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"r0"}}, locationNames([][]Location{ret}))
	require.Equal(t, [][]string{{"r0"}, {"r1"}, {"r2"}, {"r3"}, {"in:0"}}, locationNames(locs))
	require.Equal(t, 1, state.StackInWords())
	require.Equal(t, 0, state.StackOutWords())

	_, _, state, err = p.Convention().AssignSignature(Caller, ir.Void, params)
	require.NoError(t, err)
	require.Equal(t, 1, state.StackOutWords())
}

func TestAssignSignatureWideValues(t *testing.T) {
	p := newTestPlatform(t, nil)
	_, locs, _, err := p.Convention().AssignSignature(Callee, ir.Void, []ir.Type{
		ir.Int32, ir.Int64, ir.Int64, ir.Float32, ir.Float64, ir.Float32, ir.Float64,
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"r0"},
		{"r1", "r2"},
		// Only r3 is left, so the whole value goes to the stack.
		{"in:0", "in:1"},
		{"s0"},
		// Doubles start on an even single.
		{"d1"},
		{"in:2"},
		{"in:3", "in:4"},
	}, locationNames(locs))
}

func TestAssignSignatureWithoutVFP(t *testing.T) {
	p := newTestPlatform(t, func(target *config.Target) {
		target.VFP = false
		zero := 0
		target.Convention.FloatWords = &zero
	})
	_, locs, _, err := p.Convention().AssignSignature(Callee, ir.Void, []ir.Type{ir.Float64, ir.Float32})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"r0", "r1"}, {"r2"}}, locationNames(locs))
}

func TestAssignSignatureBackFillsSingle(t *testing.T) {
	p := newTestPlatform(t, nil)
	_, locs, _, err := p.Convention().AssignSignature(Callee, ir.Void, []ir.Type{
		ir.Float32, ir.Float32, ir.Float32, ir.Float64, ir.Float32,
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"s0"}, {"s1"}, {"s2"},
		// d2 would need s4 and s5, past the budget.
		{"in:0", "in:1"},
		{"s3"},
	}, locationNames(locs))
}

func TestCanMapToRegisterLeavesCursor(t *testing.T) {
	p := newTestPlatform(t, nil)
	state := p.Convention().NewCallState(Caller)
	_, err := state.AssignArgument(ir.Float32)
	require.NoError(t, err)

	require.True(t, state.CanMapToRegister(ir.Float64))
	require.Equal(t, 1, state.nextFloat)
	require.True(t, state.CanMapToRegister(ir.Float64))

	// Arguments wider than two words still go to registers when they fit.
	big := ir.Struct("triple", ir.Int32, ir.Int32, ir.Int32)
	require.True(t, state.CanMapToRegister(big))
	locs, err := state.AssignArgument(big)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"r0", "r1", "r2"}}, locationNames([][]Location{locs}))
}

func TestAssignReturnValue(t *testing.T) {
	p := newTestPlatform(t, nil)
	cc := p.Convention()

	locs, err := cc.NewCallState(Caller).AssignReturnValue(ir.Int64)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"r0", "r1"}}, locationNames([][]Location{locs}))

	locs, err = cc.NewCallState(Caller).AssignReturnValue(ir.Float64)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"d0"}}, locationNames([][]Location{locs}))

	locs, err = cc.NewCallState(Caller).AssignReturnValue(ir.Void)
	require.NoError(t, err)
	require.Nil(t, locs)

	big := ir.Struct("triple", ir.Int32, ir.Int32, ir.Int32)
	locs, err = cc.NewCallState(Caller).AssignReturnValue(big)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"out:0", "out:1", "out:2"}}, locationNames([][]Location{locs}))

	state := cc.NewCallState(Callee)
	locs, err = state.AssignReturnValue(big)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"in:0", "in:1", "in:2"}}, locationNames([][]Location{locs}))
	require.Equal(t, 3, state.StackInWords())
}

func TestAssignSignatureLargeResultTakesFirstSlots(t *testing.T) {
	p := newTestPlatform(t, nil)
	big := ir.Struct("triple", ir.Int32, ir.Int32, ir.Int32)
	params := []ir.Type{ir.Int32, ir.Int32, ir.Int32, ir.Int32, ir.Int32}

	ret, locs, state, err := p.Convention().AssignSignature(Callee, big, params)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"in:0", "in:1", "in:2"}}, locationNames([][]Location{ret}))
	require.Equal(t, [][]string{{"in:3"}}, locationNames(locs[4:]))
	require.Equal(t, 4, state.StackInWords())

	ret, _, state, err = p.Convention().AssignSignature(Caller, big, params)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"out:0", "out:1", "out:2"}}, locationNames([][]Location{ret}))
	require.Equal(t, 4, state.StackOutWords())
}

func TestGetNextIndexUnknownKind(t *testing.T) {
	p := newTestPlatform(t, nil)
	_, err := p.Convention().NewCallState(Caller).GetNextIndex(FragmentKind(99), ir.Int32, 0)
	require.ErrorIs(t, err, ir.ErrTypeConsistency)
}

func TestShouldSaveRegister(t *testing.T) {
	p := newTestPlatform(t, nil)
	cc := p.Convention()
	regs := p.Registers()

	for n, want := range map[armasm.Reg]bool{
		armasm.R0: false, armasm.R3: false, armasm.R4: true, armasm.R11: true,
		ScratchInteger: false, armasm.SP: false, armasm.LR: false, armasm.PC: false,
	} {
		require.Equal(t, want, cc.ShouldSaveRegister(regs.Integer(n)), "r%d", n)
	}
	require.False(t, cc.ShouldSaveRegister(regs.Single(3)))
	require.True(t, cc.ShouldSaveRegister(regs.Single(4)))
	require.False(t, cc.ShouldSaveRegister(regs.Single(int(ScratchSingle))))
	require.True(t, cc.ShouldSaveRegister(regs.Double(2)))
	require.False(t, cc.ShouldSaveRegister(regs.ConditionCodes()))
}

func TestCollectExpressionsToInvalidate(t *testing.T) {
	p := newTestPlatform(t, nil)
	regs := p.Registers()
	slot := ir.Stack(ir.PlacementLocal, "buf", 0, ir.Int32)
	call := &ir.DirectCall{
		Target:  "g",
		Results: []ir.Expression{ir.Reg(regs.Integer(armasm.R0), ir.Int32)},
		Args:    []ir.Expression{ir.Reg(regs.Integer(armasm.R1), ir.Int32)},
	}
	out, err := p.Convention().CollectExpressionsToInvalidate(call, ir.Int32, []*ir.StackLocation{slot})
	require.NoError(t, err)

	require.Same(t, call.Results[0], out[0])
	require.Equal(t, "r0", out[1].String(), "formal result")
	require.Same(t, call.Args[0], out[2])
	require.Same(t, slot, out[len(out)-1])
	cc, ok := ir.AsRegister(out[len(out)-2])
	require.True(t, ok)
	require.Equal(t, ir.FileConditionCodes, cc.File)

	big := ir.Struct("triple", ir.Int32, ir.Int32, ir.Int32)
	wide, err := p.Convention().CollectExpressionsToInvalidate(call, big, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"out:0", "out:1", "out:2"}, []string{wide[1].String(), wide[2].String(), wide[3].String()})

	var names []string
	for _, e := range out[3 : len(out)-2] {
		names = append(names, e.String())
	}
	require.Contains(t, names, "r12")
	require.Contains(t, names, "lr")
	require.Contains(t, names, "s0")
	require.NotContains(t, names, "r4")
	require.NotContains(t, names, "sp")
}

func TestComputeSetOfRegistersToSave(t *testing.T) {
	p := newTestPlatform(t, nil)
	regs := p.Registers()
	modified := bitset.New(uint(regs.Len()))
	for _, r := range []*ir.RegisterDescriptor{regs.Integer(armasm.R0), regs.Integer(armasm.R5), regs.Integer(armasm.LR), regs.Double(3)} {
		modified.Set(uint(r.Index))
	}
	has := func(set *bitset.BitSet, r *ir.RegisterDescriptor) bool { return set.Test(uint(r.Index)) }

	plain := p.ComputeSetOfRegistersToSave(&ir.Method{Name: "f"}, modified)
	require.True(t, has(plain, regs.Integer(armasm.R5)))
	require.True(t, has(plain, regs.Double(3)))
	require.False(t, has(plain, regs.Integer(armasm.R0)))
	require.False(t, has(plain, regs.Integer(armasm.LR)))
	require.False(t, has(plain, regs.Integer(armasm.R6)))

	irq := p.ComputeSetOfRegistersToSave(&ir.Method{Name: "irq", Exception: ir.ExceptionInterrupt}, nil)
	require.True(t, has(irq, regs.Integer(armasm.R4)))
	require.True(t, has(irq, regs.Integer(armasm.R10)))
	require.False(t, has(irq, regs.Integer(armasm.R0)))
	require.False(t, has(irq, regs.Integer(armasm.SP)))

	fiq := p.ComputeSetOfRegistersToSave(&ir.Method{Name: "fiq", Exception: ir.ExceptionFastInterrupt}, nil)
	require.True(t, has(fiq, regs.Integer(armasm.R7)))
	require.False(t, has(fiq, regs.Integer(armasm.R8)))
	require.False(t, has(fiq, regs.Integer(armasm.R11)))

	full := p.ComputeSetOfRegistersToSave(&ir.Method{Name: "ctx", FullContext: true}, nil)
	require.True(t, has(full, regs.Integer(armasm.R0)))
	require.True(t, has(full, regs.Integer(armasm.LR)))
	require.False(t, has(full, regs.Integer(armasm.PC)))
}

func TestPlatformQueries(t *testing.T) {
	p := newTestPlatform(t, nil)
	require.Equal(t, "5", p.PlatformVersion())
	require.True(t, p.AtLeast("v5"))
	require.False(t, p.AtLeast("v7"))
	require.Equal(t, InstructionSetARMVFP, p.InstructionSet())

	require.Equal(t, int32(4096), p.GetOffsetLimit(ir.Int32))
	require.Equal(t, int32(256), p.GetOffsetLimit(ir.Int16))
	require.Equal(t, int32(1024), p.GetOffsetLimit(ir.Float64))
	require.True(t, p.CanFitInRegister(ir.Float64))
	require.False(t, p.CanFitInRegister(ir.Int64))

	pl, err := p.GetMemoryRequirements(&ir.Method{Exception: ir.ExceptionVectorTable})
	require.NoError(t, err)
	require.Equal(t, config.KindVectors, pl.Kind)
	pl, err = p.GetMemoryRequirements(&ir.Method{Exception: ir.ExceptionReset, Placement: "rom"})
	require.NoError(t, err)
	require.Equal(t, Placement{Kind: config.KindBootstrap, Region: "rom"}, pl)
	pl, err = p.GetMemoryRequirements(&ir.DataDescriptor{Mutable: true})
	require.NoError(t, err)
	require.Equal(t, config.KindDataRW, pl.Kind)
	_, err = p.GetMemoryRequirements(42)
	require.ErrorIs(t, err, ir.ErrTypeConsistency)

	v4 := newTestPlatform(t, func(target *config.Target) {
		target.Architecture = "armv4t"
		target.VFP = false
		zero := 0
		target.Convention.FloatWords = &zero
	})
	require.Equal(t, "4", v4.PlatformVersion())
	require.False(t, v4.HasVFP())
	require.Equal(t, int32(4096), v4.GetOffsetLimit(ir.Float32))
	require.False(t, v4.CanFitInRegister(ir.Float64))
}
