package arm

import (
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/ir"
)

// HasExplicitFrame reports whether m already manages its own frame with
// register block transfers or stack pointer moves.
func HasExplicitFrame(m *ir.Method) bool {
	for _, b := range m.Blocks {
		for _, op := range b.Operators {
			switch op.(type) {
			case *ir.MoveIntegerRegisters, *ir.MoveFloatingPointRegisters, *ir.MoveStackPointer:
				return true
			}
		}
	}
	return false
}

// SynthesizeFrame inserts the prologue at the entry block and an epilogue in
// front of every return. Methods with an explicit frame, the vector table,
// the bootstrap code and the reset handler are left alone.
func (p *Platform) SynthesizeFrame(m *ir.Method) {
	switch m.Exception {
	case ir.ExceptionVectorTable, ir.ExceptionBootstrap, ir.ExceptionReset:
		return
	}
	if HasExplicitFrame(m) || m.Entry() == nil {
		return
	}

	var (
		push, pop         []ir.Operator
		saveMask, restore uint16
	)
	handler := m.Exception.IsHandler()
	if handler {
		// Handlers interrupt arbitrary code, so the scratched registers go
		// too. The return restores pc from lr itself.
		saveMask = p.ScratchedRegisterMask()
		restore = saveMask
		push = append(push, &ir.ActivationRecordEvent{Event: ir.EventEnteringException})
	} else {
		saveMask = 1 << armasm.LR
		restore = 1 << armasm.PC
	}

	push = append(push, &ir.MoveIntegerRegisters{Registers: saveMask, AddComputed: true})
	if p.HasVFP() {
		fp := &ir.MoveFloatingPointRegisters{Low: 0, High: -1, AddComputed: true}
		if handler {
			fp.High = 30
		}
		push = append(push, fp)
		pop = append(pop, &ir.MoveFloatingPointRegisters{Load: true, Low: fp.Low, High: fp.High, AddComputed: true})
	}
	push = append(push, &ir.MoveStackPointer{Enter: true})

	pop = append([]ir.Operator{&ir.MoveStackPointer{}}, pop...)
	pop = append(pop, &ir.MoveIntegerRegisters{Load: true, Registers: restore, AddComputed: true})

	entry := m.Entry()
	if hasPredecessors(m, entry) {
		// Loops back to the entry must not run the prologue again.
		pre := &ir.BasicBlock{Name: entry.Name + ".frame", Kind: ir.BlockEntry, Weight: entry.Weight}
		pre.Operators = append(push, &ir.UnconditionalControl{Target: entry})
		if entry.Kind == ir.BlockEntry {
			entry.Kind = ir.BlockNormal
		}
		m.Blocks = append([]*ir.BasicBlock{pre}, m.Blocks...)
	} else {
		entry.Operators = append(append([]ir.Operator(nil), push...), entry.Operators...)
	}

	for _, b := range m.Blocks {
		if _, ok := b.Terminator().(*ir.ReturnControl); !ok {
			continue
		}
		last := len(b.Operators) - 1
		ops := make([]ir.Operator, 0, len(b.Operators)+len(pop))
		ops = append(ops, b.Operators[:last]...)
		for _, op := range pop {
			ops = append(ops, cloneFrameOperator(op))
		}
		b.Operators = append(ops, b.Operators[last])
	}
}

func hasPredecessors(m *ir.Method, target *ir.BasicBlock) bool {
	for _, b := range m.Blocks {
		for _, s := range b.Successors() {
			if s == target {
				return true
			}
		}
	}
	return false
}

// cloneFrameOperator gives every epilogue its own operators so encoding
// state keyed by operator stays per site.
func cloneFrameOperator(op ir.Operator) ir.Operator {
	switch o := op.(type) {
	case *ir.MoveStackPointer:
		c := *o
		return &c
	case *ir.MoveIntegerRegisters:
		c := *o
		return &c
	case *ir.MoveFloatingPointRegisters:
		c := *o
		return &c
	}
	return op
}
