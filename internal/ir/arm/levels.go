package arm

import (
	"fmt"

	"github.com/tinyrange/armcc/internal/ir"
)

// BranchLevel is how a control transfer reaches its target. Levels only
// ever increase while a program is laid out.
type BranchLevel uint8

const (
	// BranchSkip falls through to the adjacent block.
	BranchSkip BranchLevel = iota
	// BranchShort is B/BL with a 24-bit word offset.
	BranchShort
	// BranchNearRelativeLoad loads pc from a pool word holding the target.
	BranchNearRelativeLoad
	// BranchFarRelativeLoad reaches the pool word through a 32-bit offset
	// built in ip.
	BranchFarRelativeLoad
)

var branchLevelNames = [...]string{"skip", "short", "near", "far"}

func (l BranchLevel) String() string {
	if int(l) < len(branchLevelNames) {
		return branchLevelNames[l]
	}
	return fmt.Sprintf("branch(%d)", uint8(l))
}

// ConstantLevel is how a constant reaches its register.
type ConstantLevel uint8

const (
	// ConstantImmediate uses MOV/MVN with a rotated immediate.
	ConstantImmediate ConstantLevel = iota
	// ConstantSmallLoad and ConstantNearRelativeLoad load from the pool with
	// a single pc-relative LDR.
	ConstantSmallLoad
	ConstantNearRelativeLoad
	// The far levels build the pool offset in ip with a chain of two, three
	// or four opcodes.
	ConstantFarRelativeLoad16Bit
	ConstantFarRelativeLoad24Bit
	ConstantFarRelativeLoad32Bit
)

var constantLevelNames = [...]string{"immediate", "small", "near", "far16", "far24", "far32"}

func (l ConstantLevel) String() string {
	if int(l) < len(constantLevelNames) {
		return constantLevelNames[l]
	}
	return fmt.Sprintf("constant(%d)", uint8(l))
}

// chainLength is the offset chain used by a far level, 0 for a direct load.
func (l ConstantLevel) chainLength() int {
	switch l {
	case ConstantFarRelativeLoad16Bit:
		return 2
	case ConstantFarRelativeLoad24Bit:
		return 3
	case ConstantFarRelativeLoad32Bit:
		return 4
	}
	return 0
}

// encodingLevels holds the current level of every operator that owns a
// fixup. Operators not present are at their initial level.
type encodingLevels struct {
	branches  map[ir.Operator]BranchLevel
	constants map[ir.Operator]ConstantLevel
}

func newEncodingLevels() *encodingLevels {
	return &encodingLevels{
		branches:  make(map[ir.Operator]BranchLevel),
		constants: make(map[ir.Operator]ConstantLevel),
	}
}

func (e *encodingLevels) branch(op ir.Operator, initial BranchLevel) BranchLevel {
	if l, ok := e.branches[op]; ok && l > initial {
		return l
	}
	return initial
}

func (e *encodingLevels) constant(op ir.Operator, initial ConstantLevel) ConstantLevel {
	if l, ok := e.constants[op]; ok && l > initial {
		return l
	}
	return initial
}

// ownsBranch reports whether op's fixups are branches to code.
func ownsBranch(op ir.Operator) bool {
	switch op.(type) {
	case *ir.ConditionalControl, *ir.UnconditionalControl, *ir.MultiWayControl,
		*ir.DirectCall, *ir.ReturnControl:
		return true
	}
	return false
}

// escalate raises the level op was emitted at by one.
func (e *encodingLevels) escalate(op ir.Operator, emitted fixupOwner) error {
	if ownsBranch(op) {
		if emitted.branch >= BranchFarRelativeLoad {
			return fmt.Errorf("arm: %s: branch already at level %s: %w", op, emitted.branch, ir.ErrInternal)
		}
		e.branches[op] = emitted.branch + 1
		return nil
	}
	if emitted.constant >= ConstantFarRelativeLoad32Bit {
		return fmt.Errorf("arm: %s: constant already at level %s: %w", op, emitted.constant, ir.ErrInternal)
	}
	e.constants[op] = emitted.constant + 1
	return nil
}

// fixupOwner ties a fixup to the operator and level that produced it.
type fixupOwner struct {
	op       ir.Operator
	branch   BranchLevel
	constant ConstantLevel
}
