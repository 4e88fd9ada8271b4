package backend

import (
	"fmt"
	"sync"

	"github.com/openviking/membridge/core/memconfig"
)

// defaultFactory adapts New to the Factory shape with the package default
// logger.
func defaultFactory(cfg memconfig.Config, agentID, endpoint, sessionStorePath string) (*OpenVikingBackend, error) {
	return New(cfg, agentID, endpoint, sessionStorePath, nil)
}

// Factory builds one OpenVikingBackend for an (agentId, endpoint) pair.
// Injected so tests can assemble fakes without a real store.
type Factory func(cfg memconfig.Config, agentID, endpoint, sessionStorePath string) (*OpenVikingBackend, error)

// Registry memoizes one Bridge/Outbox/Pipeline instance per (agentId,
// endpoint) pair (spec §5 "Global per-endpoint singletons"). It is
// injectable rather than a package-level global so unrelated tests don't
// share hidden static state.
type Registry struct {
	factory Factory

	mu        sync.Mutex
	instances map[string]*OpenVikingBackend
}

// NewRegistry builds a Registry using factory (or New, if factory is nil)
// to construct each per-(agentId,endpoint) instance.
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = defaultFactory
	}
	return &Registry{factory: factory, instances: make(map[string]*OpenVikingBackend)}
}

func registryKey(agentID, endpoint string) string {
	return agentID + "|" + endpoint
}

// GetOrCreate returns the memoized backend for (agentID, endpoint),
// constructing and start()-ing it on first use.
func (r *Registry) GetOrCreate(cfg memconfig.Config, agentID, endpoint, sessionStorePath string) (*OpenVikingBackend, error) {
	key := registryKey(agentID, endpoint)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.instances[key]; ok {
		return b, nil
	}

	// New already starts the outbox's flush loop; the registry's job is
	// purely memoization, so factories that wrap New don't need to start
	// anything themselves.
	b, err := r.factory(cfg, agentID, endpoint, sessionStorePath)
	if err != nil {
		return nil, err
	}
	r.instances[key] = b
	return b, nil
}

// Get returns the already-constructed backend for (agentID, endpoint), if
// any, without constructing one.
func (r *Registry) Get(agentID, endpoint string) (*OpenVikingBackend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.instances[registryKey(agentID, endpoint)]
	return b, ok
}

// StopAll closes every memoized instance (spec §5 "stop() at process
// shutdown"), collecting and joining any close errors rather than
// stopping at the first one so no instance is left running.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, b := range r.instances {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	r.instances = make(map[string]*OpenVikingBackend)

	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}
