package agent

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownRunner is returned when a requested runner mode is not registered.
var ErrUnknownRunner = errors.New("agent: unknown runner mode") //nolint:gochecknoglobals // sentinel error

// RunnerFactory builds a Runner. The returned close func releases whatever
// the runner holds and may be nil.
type RunnerFactory func() (Runner, func() error, error)

// Registry maps runner modes to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]RunnerFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]RunnerFactory)}
}

func (r *Registry) Register(mode string, factory RunnerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[mode] = factory
}

// Create instantiates the runner registered for mode.
func (r *Registry) Create(mode string) (Runner, func() error, error) {
	r.mu.RLock()
	factory, ok := r.factories[mode]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("agent.Registry.Create(%q): %w (available: %v)", mode, ErrUnknownRunner, r.Available())
	}

	runner, closeFn, err := factory()
	if err != nil {
		return nil, nil, fmt.Errorf("agent.Registry.Create(%q): %w", mode, err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return runner, closeFn, nil
}

// Available returns registered modes in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
