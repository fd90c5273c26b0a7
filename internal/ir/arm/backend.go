package arm

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/image"
	"github.com/tinyrange/armcc/internal/ir"
)

// maxLayoutPasses bounds the emit/place/resolve loop. Every pass raises at
// least one encoding level and levels are finite, so hitting the bound
// means an operator keeps overflowing at its longest form.
const maxLayoutPasses = 64

func init() {
	ir.RegisterBackend("arm", func(target *config.Target) (ir.Backend, error) {
		return NewBackend(target)
	})
}

// Backend compiles whole programs for one ARM target.
type Backend struct {
	platform *Platform

	// Progress, when set, is called once per prepared method.
	Progress func(method string)

	mu       sync.Mutex
	building bool
	states   []*CompilationState
}

func NewBackend(target *config.Target) (*Backend, error) {
	p, err := NewPlatform(target, nil)
	if err != nil {
		return nil, err
	}
	return &Backend{platform: p}, nil
}

func (b *Backend) Platform() *Platform { return b.platform }

// States returns the compilation state of every method of the last build.
func (b *Backend) States() []*CompilationState { return b.states }

// Build lowers prog into one linked program per memory region. Methods are
// prepared concurrently, then emitted and laid out until every fixup fits.
func (b *Backend) Build(ctx context.Context, prog *ir.Program) (*ir.Output, error) {
	b.mu.Lock()
	if b.building {
		b.mu.Unlock()
		return nil, fmt.Errorf("arm: build already in progress: %w", ir.ErrInternal)
	}
	b.building = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.building = false
		b.mu.Unlock()
	}()

	if err := prog.Validate(); err != nil {
		return nil, err
	}

	states, err := b.prepare(ctx, prog)
	if err != nil {
		return nil, err
	}
	b.states = states

	layout, err := b.layout(ctx, prog, states)
	if err != nil {
		return nil, err
	}

	out := &ir.Output{
		Symbols:  layout.Symbols(),
		CodeMaps: make(map[string]*codemap.CodeMap, len(states)),
	}
	for _, st := range states {
		placed, ok := layout.Section(st.method.Name)
		if !ok {
			return nil, fmt.Errorf("arm: %s was not placed: %w", st.method.Name, ir.ErrInternal)
		}
		if _, err := st.CreateCodeMaps(placed.Address); err != nil {
			return nil, err
		}
		out.CodeMaps[st.method.Name] = st.CodeMap()
	}

	areas, err := layout.Link()
	if err != nil {
		return nil, err
	}
	for _, a := range areas {
		out.Regions = append(out.Regions, ir.RegionOutput{Name: a.Name, Program: a.Program})
	}
	return out, nil
}

// prepare runs the per-method passes up to block ordering.
func (b *Backend) prepare(ctx context.Context, prog *ir.Program) ([]*CompilationState, error) {
	states := make([]*CompilationState, len(prog.Methods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var progressMu sync.Mutex
	for i, m := range prog.Methods {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := NewCompilationState(b.platform, prog, m)
			if err := b.platform.LowerIntrinsics(m); err != nil {
				return fmt.Errorf("arm: %s: %w", m.Name, err)
			}
			b.platform.SynthesizeFrame(m)
			if err := st.PrepareDataStructures(); err != nil {
				return err
			}
			if err := st.AssignStackLocations(); err != nil {
				return err
			}
			st.OrderBasicBlocks()
			states[i] = st

			if b.Progress != nil {
				progressMu.Lock()
				b.Progress(m.Name)
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

// sectionRank puts the vector table and bootstrap code ahead of other
// methods in their areas.
func sectionRank(m *ir.Method) int {
	switch m.Exception {
	case ir.ExceptionVectorTable:
		return 0
	case ir.ExceptionBootstrap:
		return 1
	}
	return 2
}

func (b *Backend) dataSection(d *ir.DataDescriptor) (*image.Section, error) {
	pl, err := b.platform.GetMemoryRequirements(d)
	if err != nil {
		return nil, err
	}
	code := append([]byte(nil), d.Bytes...)
	if rem := len(code) % MemoryAlignment; rem != 0 {
		code = append(code, make([]byte, MemoryAlignment-rem)...)
	}
	return &image.Section{Name: d.Name, Kind: pl.Kind, Placement: pl.Region, Code: code}, nil
}

// layout emits every method, places it with the data and resolves fixups.
// Fixups that do not fit raise their owner's level and the owning method
// is emitted again.
func (b *Backend) layout(ctx context.Context, prog *ir.Program, states []*CompilationState) (*image.Layout, error) {
	mm, err := b.platform.ConfigureMemoryMap()
	if err != nil {
		return nil, err
	}

	var data []*image.Section
	for _, d := range prog.Data {
		s, err := b.dataSection(d)
		if err != nil {
			return nil, err
		}
		data = append(data, s)
	}

	ordered := make([]*CompilationState, 0, len(states))
	for rank := 0; rank <= 2; rank++ {
		for _, st := range states {
			if sectionRank(st.method) == rank {
				ordered = append(ordered, st)
			}
		}
	}
	byName := make(map[string]*CompilationState, len(states))
	code := make(map[string]*image.Section, len(states))
	dirty := make(map[string]bool, len(states))
	for _, st := range states {
		byName[st.method.Name] = st
		dirty[st.method.Name] = true
	}

	for pass := 0; pass < maxLayoutPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, st := range ordered {
			name := st.method.Name
			if !dirty[name] {
				continue
			}
			sec, err := st.EmitCode()
			if err != nil {
				return nil, err
			}
			pl, err := b.platform.GetMemoryRequirements(st.method)
			if err != nil {
				return nil, err
			}
			code[name] = image.FromArm(sec, pl.Kind, pl.Region)
			dirty[name] = false
		}

		sections := make([]*image.Section, 0, len(ordered)+len(data))
		for _, st := range ordered {
			sections = append(sections, code[st.method.Name])
		}
		sections = append(sections, data...)

		layout, err := mm.Place(sections)
		if err != nil {
			return nil, err
		}
		overflows, err := layout.Resolve()
		if err != nil {
			return nil, err
		}
		if len(overflows) == 0 {
			b.platform.log.Debug("layout stable", "iteration", pass)
			return layout, nil
		}
		for _, o := range overflows {
			st, ok := byName[o.Section]
			if !ok {
				return nil, fmt.Errorf("arm: %w", o)
			}
			if err := st.Escalate(o.Fixup); err != nil {
				return nil, err
			}
			dirty[o.Section] = true
		}
		b.platform.log.Debug("escalated encodings", "iteration", pass, "overflows", len(overflows))
	}
	return nil, fmt.Errorf("arm: layout did not converge after %d passes: %w", maxLayoutPasses, ir.ErrInternal)
}
