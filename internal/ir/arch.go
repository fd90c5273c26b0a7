package ir

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/armcc/internal/asm"
	"github.com/tinyrange/armcc/internal/codemap"
	"github.com/tinyrange/armcc/internal/config"
)

// Output is what a backend produces for a whole program.
type Output struct {
	// Regions holds one linked program per memory region that received
	// code or data, in address order.
	Regions  []RegionOutput
	Symbols  map[string]uint32
	CodeMaps map[string]*codemap.CodeMap
}

type RegionOutput struct {
	Name    string
	Program asm.Program
}

// Backend lowers a Program for one target configuration.
type Backend interface {
	Build(ctx context.Context, p *Program) (*Output, error)
}

// BackendFactory creates a backend for a validated target.
type BackendFactory func(target *config.Target) (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
)

// RegisterBackend wires an architecture family into NewBackend. It panics
// when the same family is registered twice so mistakes are caught during
// init.
func RegisterBackend(family string, factory BackendFactory) {
	if family == "" {
		panic("ir: cannot register backend for empty family")
	}
	if factory == nil {
		panic("ir: backend factory must be non-nil")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[family]; exists {
		panic(fmt.Sprintf("ir: backend for %s already registered", family))
	}
	backends[family] = factory
}

// Families lists the registered architecture families.
func Families() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]string, 0, len(backends))
	for name := range backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewBackend instantiates the backend registered for the target's family.
func NewBackend(target *config.Target) (Backend, error) {
	if target == nil {
		return nil, fmt.Errorf("ir: target must be non-nil")
	}
	family := target.Family()

	backendsMu.RLock()
	factory, ok := backends[family]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ir: no backend registered for %q", family)
	}
	return factory(target)
}

// BuildProgramForTarget lowers prog with the backend registered for target.
func BuildProgramForTarget(ctx context.Context, target *config.Target, prog *Program) (*Output, error) {
	if prog == nil {
		return nil, fmt.Errorf("ir: program must be non-nil")
	}
	backend, err := NewBackend(target)
	if err != nil {
		return nil, err
	}
	return backend.Build(ctx, prog)
}
