package arm

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/tinyrange/armcc/internal/asm"
	armasm "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/ir"
)

// CompilationState is the per-method context of the backend: frame layout,
// register usage, encoding levels and the emitted code. It is owned by one
// goroutine at a time.
type CompilationState struct {
	platform *Platform
	program  *ir.Program
	method   *ir.Method
	log      *slog.Logger

	order    []*ir.BasicBlock
	position map[*ir.BasicBlock]int

	registersUsed   *bitset.BitSet
	registersToSave *bitset.BitSet
	saveMask        uint16
	fpLow, fpHigh   int

	// Region sizes in words. The frame is OUT at sp, then LOCAL, SAVED
	// and IN at the top.
	stackForCalls  int
	stackForLocals int
	stackSaved     int
	stackIn        int

	pointers     *Liveness
	addressTaken []*ir.StackLocation
	stackSlots   map[varKey][]*ir.StackLocation

	levels        *encodingLevels
	estimatedSize int

	// Emission state, reset by EmitCode.
	ctx         *armasm.Context
	owners      []fixupOwner
	current     fixupOwner
	pending     armasm.Condition
	lastOpcode  int
	headerFlags codemap.Flags
	pcPopped    bool

	// floatFlags is set while the condition flags come from FMSTAT.
	floatFlags bool
	block      *ir.BasicBlock
	nextOp     ir.Operator
	events     []mapEvent
	err        error

	section armasm.Section
	codeMap *codemap.CodeMap
}

// NewCompilationState prepares the state for one method of prog.
func NewCompilationState(p *Platform, prog *ir.Program, m *ir.Method) *CompilationState {
	return &CompilationState{
		platform: p,
		program:  prog,
		method:   m,
		log:      p.log.With("method", m.Name),
		levels:   newEncodingLevels(),
		fpLow:    0,
		fpHigh:   -1,
	}
}

func (s *CompilationState) Method() *ir.Method { return s.method }
func (s *CompilationState) Section() armasm.Section { return s.section }
func (s *CompilationState) CodeMap() *codemap.CodeMap { return s.codeMap }
func (s *CompilationState) RegistersToSave() *bitset.BitSet {
	return s.registersToSave
}
func (s *CompilationState) Order() []*ir.BasicBlock { return s.order }

// StackLayout reports the region sizes in words: OUT, LOCAL, SAVED and IN.
func (s *CompilationState) StackLayout() (out, local, saved, in int) {
	return s.stackForCalls, s.stackForLocals, s.stackSaved, s.stackIn
}

// calleeResult is the declared result type of a call target, or the type of
// the first result when the target is unknown.
func (s *CompilationState) calleeResult(call ir.Call) ir.Type {
	if dc, ok := call.(*ir.DirectCall); ok && s.program != nil {
		if m := s.program.Method(dc.Target); m != nil {
			return m.Result
		}
	}
	if res := call.CallResults(); len(res) > 0 {
		return res[0].Type()
	}
	return ir.Void
}

func (s *CompilationState) invalidatedBy(call ir.Call) ([]ir.Expression, error) {
	return s.platform.cc.CollectExpressionsToInvalidate(call, s.calleeResult(call), s.addressTaken)
}

// forEachStackLocation visits every stack operand of the method, including
// address operands.
func (s *CompilationState) forEachStackLocation(fn func(*ir.StackLocation)) {
	visit := func(e ir.Expression) {
		if loc, ok := e.(*ir.StackLocation); ok {
			fn(loc)
		}
	}
	for _, b := range s.method.Blocks {
		for _, op := range b.Operators {
			for _, e := range op.Defs() {
				visit(e)
			}
			for _, e := range op.Uses() {
				visit(e)
			}
			if aa, ok := op.(*ir.AddressAssignment); ok {
				visit(aa.Src)
			}
		}
	}
}

// PrepareDataStructures collects the registers the method touches, the
// save set, the frame region sizes and pointer liveness.
func (s *CompilationState) PrepareDataStructures() error {
	p := s.platform
	regs := p.regs
	s.registersUsed = bitset.New(uint(regs.Len()))

	touch := func(r *ir.RegisterDescriptor) {
		s.registersUsed.Set(uint(r.Index))
		s.registersUsed.InPlaceUnion(regs.Aliases(r))
	}

	s.stackSlots = make(map[varKey][]*ir.StackLocation)
	addressTaken := make(map[varKey]bool)
	s.forEachStackLocation(func(loc *ir.StackLocation) {
		k := stackKey(loc)
		s.stackSlots[k] = appendUnique(s.stackSlots[k], loc)
		if loc.AddressTaken {
			addressTaken[k] = true
		}
	})

	for _, b := range s.method.Blocks {
		for _, op := range b.Operators {
			for _, e := range op.Defs() {
				if r, ok := ir.AsRegister(e); ok {
					touch(r)
				}
			}
			switch o := op.(type) {
			case *ir.AddressAssignment:
				if loc, ok := o.Src.(*ir.StackLocation); ok {
					addressTaken[stackKey(loc)] = true
				}
			case *ir.DirectCall:
				touch(regs.Integer(armasm.LR))
				if callee := s.program.Method(o.Target); callee != nil {
					_, _, state, err := p.cc.AssignSignature(Caller, callee.Result, callee.Signature())
					if err != nil {
						return fmt.Errorf("arm: %s: call to %s: %w", s.method.Name, o.Target, err)
					}
					s.stackForCalls = max(s.stackForCalls, state.StackOutWords())
				}
			case *ir.IndirectCall:
				touch(regs.Integer(armasm.LR))
			case *ir.MultiWayControl:
				touch(regs.Integer(ScratchInteger))
			}
		}
	}

	_, _, callee, err := p.cc.AssignSignature(Callee, s.method.Result, s.method.Signature())
	if err != nil {
		return fmt.Errorf("arm: %s: signature: %w", s.method.Name, err)
	}
	s.stackIn = callee.StackInWords()

	for k, locs := range s.stackSlots {
		words := 1
		for _, l := range locs {
			words = max(words, l.Typ.Words())
			if addressTaken[k] {
				l.AddressTaken = true
			}
		}
		switch k.placement {
		case ir.PlacementOut:
			s.stackForCalls = max(s.stackForCalls, locs[0].Index+words)
		case ir.PlacementIn:
			s.stackIn = max(s.stackIn, locs[0].Index+words)
		}
		if addressTaken[k] {
			s.addressTaken = append(s.addressTaken, locs[0])
		}
	}
	sort.Slice(s.addressTaken, func(i, j int) bool {
		return s.addressTaken[i].String() < s.addressTaken[j].String()
	})

	s.registersToSave = p.ComputeSetOfRegistersToSave(s.method, s.registersUsed)
	s.saveMask = 0
	s.fpLow, s.fpHigh = 0, -1
	first := true
	for i, ok := s.registersToSave.NextSet(0); ok; i, ok = s.registersToSave.NextSet(i + 1) {
		r := regs.ByIndex(int(i))
		switch r.File {
		case ir.FileInteger:
			s.saveMask |= 1 << r.Encoding
		case ir.FileFloatingPoint:
			lo := singleIndex(r) &^ 1
			if first {
				s.fpLow, s.fpHigh, first = lo, lo, false
			}
			s.fpLow = min(s.fpLow, lo)
			s.fpHigh = max(s.fpHigh, lo)
		}
	}

	s.pointers, err = computeLiveness(s.method, regs, pointerFilter, s.invalidatedBy)
	if err != nil {
		return err
	}
	return nil
}

// savedWords is the SAVED region size: every register block stored
// through sp by the prologue.
func (s *CompilationState) savedWords() int {
	words := 0
	for _, b := range s.method.Blocks {
		for _, op := range b.Operators {
			switch o := op.(type) {
			case *ir.MoveIntegerRegisters:
				if o.Load {
					continue
				}
				if mask, _, skip := s.integerMask(o); !skip {
					words += bits.OnesCount16(mask)
				}
			case *ir.MoveFloatingPointRegisters:
				if o.Load {
					continue
				}
				if low, high, skip := s.floatRange(o); !skip {
					words += high - low + 2
				}
			}
		}
	}
	return words
}

// AssignStackLocations colours the LOCAL region and gives every stack
// operand its final sp-relative byte offset.
func (s *CompilationState) AssignStackLocations() error {
	locals, err := computeLiveness(s.method, s.platform.regs, localFilter, s.invalidatedBy)
	if err != nil {
		return err
	}

	n := locals.Len()
	interferes := make([]*bitset.BitSet, n)
	for i := range interferes {
		interferes[i] = bitset.New(uint(n))
	}
	connect := func(set *bitset.BitSet) {
		for a, ok := set.NextSet(0); ok; a, ok = set.NextSet(a + 1) {
			interferes[a].InPlaceUnion(set)
		}
	}
	all := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		if v := locals.variableAt(uint(i)); locationAddressTaken(v) {
			all.Set(uint(i))
		}
	}
	for _, b := range s.method.Blocks {
		connect(locals.LiveIn(b).Union(all))
		for _, op := range b.Operators {
			live := locals.LiveAfter(op).Union(all)
			for _, d := range op.Defs() {
				if idx, ok := locals.lookup(d); ok {
					live.Set(uint(idx))
				}
			}
			connect(live)
		}
	}
	for a, ok := all.NextSet(0); ok; a, ok = all.NextSet(a + 1) {
		for i := 0; i < n; i++ {
			interferes[a].Set(uint(i))
			interferes[i].Set(a)
		}
	}

	colour := make([]int, n)
	used := 0
	for i := 0; i < n; i++ {
		v := locals.variableAt(uint(i))
		words := max(v.words, 1)
		for base := 0; ; base++ {
			if s.slotFree(locals, interferes[i], colour[:i], base, words) {
				colour[i] = base
				used = max(used, base+words)
				break
			}
		}
	}
	s.stackForLocals = used
	s.stackSaved = s.savedWords()

	for i := 0; i < n; i++ {
		for _, loc := range locals.variableAt(uint(i)).locs {
			loc.Index = colour[i]
		}
	}
	for k, locs := range s.stackSlots {
		var words int
		switch k.placement {
		case ir.PlacementOut:
			words = locs[0].Index
		case ir.PlacementLocal:
			words = s.stackForCalls + locs[0].Index
		case ir.PlacementIn:
			words = s.stackForCalls + s.stackForLocals + s.stackSaved + locs[0].Index
		}
		for _, loc := range locs {
			loc.Offset = 4 * words
		}
	}
	s.log.Debug("stack layout", "out", s.stackForCalls, "local", s.stackForLocals, "saved", s.stackSaved, "in", s.stackIn)
	return nil
}

func locationAddressTaken(v *varInfo) bool {
	for _, l := range v.locs {
		if l.AddressTaken {
			return true
		}
	}
	return false
}

// slotFree reports whether words slots at base overlap no already coloured
// interfering local.
func (s *CompilationState) slotFree(locals *Liveness, conflicts *bitset.BitSet, colours []int, base, words int) bool {
	for j, c := range colours {
		if !conflicts.Test(uint(j)) {
			continue
		}
		w := max(locals.variableAt(uint(j)).words, 1)
		if base < c+w && c < base+words {
			return false
		}
	}
	return true
}

// OrderBasicBlocks fixes the emission order: the entry block, the other
// normal blocks in their original order, then cold blocks and exception
// handlers.
func (s *CompilationState) OrderBasicBlocks() {
	blocks := s.method.Blocks
	s.order = s.order[:0]
	if len(blocks) > 0 {
		s.order = append(s.order, blocks[0])
	}
	var tail []*ir.BasicBlock
	for _, b := range blocks[min(1, len(blocks)):] {
		if b.Cold || b.Kind == ir.BlockExceptionHandler {
			tail = append(tail, b)
			continue
		}
		s.order = append(s.order, b)
	}
	sort.SliceStable(tail, func(i, j int) bool {
		return !tail[i].Cold && tail[j].Cold
	})
	s.order = append(s.order, tail...)

	s.position = make(map[*ir.BasicBlock]int, len(s.order))
	for i, b := range s.order {
		s.position[b] = i
	}

	s.estimatedSize = 0
	for _, b := range s.order {
		for _, op := range b.Operators {
			s.estimatedSize += s.EstimateMinimumSize(op)
		}
	}
	s.log.Debug("ordered blocks", "blocks", len(s.order), "estimate", s.estimatedSize)
}

// EstimatedSize is the lower bound on the code size computed while
// ordering blocks.
func (s *CompilationState) EstimatedSize() int { return s.estimatedSize }

// EstimateMinimumSize is the smallest number of bytes op can emit.
func (s *CompilationState) EstimateMinimumSize(op ir.Operator) int {
	switch o := op.(type) {
	case *ir.Nop, *ir.ActivationRecordEvent:
		return 0
	case *ir.SingleAssignment:
		dst, dok := ir.AsRegister(o.Dst)
		src, sok := ir.AsRegister(o.Src)
		if dok && sok && dst == src {
			return 0
		}
	case *ir.UnconditionalControl:
		if s.adjacent(o.Target) {
			return 0
		}
	case *ir.MoveStackPointer:
		if s.stackForCalls+s.stackForLocals == 0 {
			return 0
		}
	case *ir.MoveIntegerRegisters:
		if _, _, skip := s.integerMask(o); skip {
			return 0
		}
	case *ir.MoveFloatingPointRegisters:
		if _, _, skip := s.floatRange(o); skip {
			return 0
		}
	}
	return 4
}

// adjacent reports whether b directly follows the block being processed.
func (s *CompilationState) adjacent(b *ir.BasicBlock) bool {
	if s.block == nil {
		return false
	}
	pos, ok := s.position[s.block]
	return ok && pos+1 < len(s.order) && s.order[pos+1] == b
}

func (s *CompilationState) blockLabel(b *ir.BasicBlock) asm.Label {
	return asm.Label(s.method.Name + "." + b.Name)
}

// Escalate raises the encoding level of the operator owning fixup idx of
// the last emitted section.
func (s *CompilationState) Escalate(idx int) error {
	if idx < 0 || idx >= len(s.owners) {
		return fmt.Errorf("arm: %s: fixup %d has no owner: %w", s.method.Name, idx, ir.ErrInternal)
	}
	owner := s.owners[idx]
	if err := s.levels.escalate(owner.op, owner); err != nil {
		return err
	}
	s.log.Debug("escalated encoding", "op", owner.op.String(), "fixup", idx)
	return nil
}

// PrepareCondition makes the next enqueued opcode conditional.
func (s *CompilationState) PrepareCondition(c armasm.Condition) {
	s.pending = c
}

func (s *CompilationState) takeCondition() armasm.Condition {
	c := s.pending
	s.pending = armasm.CondAL
	return c
}

// EnqueueOpcode emits op under the pending condition.
func (s *CompilationState) EnqueueOpcode(op armasm.Encoder) {
	if s.err != nil {
		return
	}
	op = withCondition(op, s.takeCondition())
	pos, err := s.ctx.Emit(op)
	if err != nil {
		s.err = fmt.Errorf("arm: %s: %w", s.method.Name, err)
		return
	}
	s.lastOpcode = pos
}

// emit runs a fragment builder against the method context.
func (s *CompilationState) emit(f asm.Fragment) {
	if s.err != nil {
		return
	}
	s.pending = armasm.CondAL
	start := s.ctx.Offset()
	if err := f.Emit(s.ctx); err != nil {
		s.err = fmt.Errorf("arm: %s: %w", s.method.Name, err)
		return
	}
	if end := s.ctx.Offset(); end > start {
		s.lastOpcode = end - 4
	}
}

// SetConditionBit patches the S bit into the last emitted data-processing
// or multiply opcode.
func (s *CompilationState) SetConditionBit() {
	if s.err != nil {
		return
	}
	op, err := s.ctx.OpcodeAt(s.lastOpcode)
	if err != nil {
		s.err = err
		return
	}
	switch o := op.(type) {
	case *armasm.DataProcessingImm:
		o.SetCC = true
	case *armasm.DataProcessingShift:
		o.SetCC = true
	case *armasm.DataProcessingReg:
		o.SetCC = true
	case *armasm.Multiply:
		o.SetCC = true
	case *armasm.MultiplyLong:
		o.SetCC = true
	default:
		s.err = fmt.Errorf("arm: %s: cannot set condition bit on %T: %w", s.method.Name, op, ir.ErrInternal)
		return
	}
	if err := s.ctx.Rewrite(s.lastOpcode, op); err != nil {
		s.err = err
	}
}

func (s *CompilationState) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *CompilationState) failf(format string, args ...any) {
	s.fail(fmt.Errorf("arm: %s: "+format, append([]any{s.method.Name}, args...)...))
}

// EmitCode emits the method into a fresh section. Levels raised by
// Escalate since the previous call take effect.
func (s *CompilationState) EmitCode() (armasm.Section, error) {
	if s.order == nil {
		return armasm.Section{}, fmt.Errorf("arm: %s: blocks not ordered: %w", s.method.Name, ir.ErrInternal)
	}
	s.ctx = armasm.NewContext(s.method.Name)
	s.owners = s.owners[:0]
	s.pending = armasm.CondAL
	s.headerFlags = 0
	s.pcPopped = false
	s.events = s.events[:0]
	s.floatFlags = false
	s.err = nil

	switch s.method.Exception {
	case ir.ExceptionBootstrap, ir.ExceptionReset:
		s.headerFlags |= codemap.BottomOfCallStack
	}

	for _, b := range s.order {
		s.block = b
		s.ctx.SetLabel(s.blockLabel(b))
		s.startRegion(b)
		for i, op := range b.Operators {
			s.nextOp = nil
			if i+1 < len(b.Operators) {
				s.nextOp = b.Operators[i+1]
			}
			if stop := s.emitOperator(op); stop {
				break
			}
			if s.err != nil {
				return armasm.Section{}, s.err
			}
		}
		if s.err != nil {
			return armasm.Section{}, s.err
		}
	}
	s.block = nil

	s.section = s.ctx.Finish()
	return s.section, nil
}

// emitOperator emits one operator, records which level owns its fixups and
// tracks pointer liveness. It reports whether the rest of the block is
// unreachable.
func (s *CompilationState) emitOperator(op ir.Operator) bool {
	s.current = fixupOwner{op: op}
	before := s.ctx.FixupCount()

	stop := s.dispatch(op)

	for i := before; i < s.ctx.FixupCount(); i++ {
		s.owners = append(s.owners, s.current)
	}
	if live := s.pointers.LiveAfter(op); live != nil {
		s.recordLiveness(s.ctx.Offset(), live)
	}
	return stop
}
