package providers

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrDuplicateBackend is returned when a backend appears twice in the configuration
	ErrDuplicateBackend = errors.New("backend configured more than once")

	// ErrInvalidPriority is returned when the priority list repeats or names unknown backends
	ErrInvalidPriority = errors.New("invalid backend priority")
)

// Registry holds the static backend catalogue in priority order.
// It is immutable after construction and safe for concurrent reads.
type Registry struct {
	backends *orderedmap.OrderedMap[BackendID, BackendConfig]
}

// NewRegistry orders configs by priority. Backends missing from priority
// follow it in canonical order.
func NewRegistry(priority []BackendID, configs []BackendConfig) (*Registry, error) {
	byID := make(map[BackendID]BackendConfig, len(configs))
	for _, cfg := range configs {
		if !cfg.ID.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.ID)
		}
		if _, dup := byID[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBackend, cfg.ID)
		}
		if cfg.DisplayName == "" {
			cfg.DisplayName = DefaultDisplayName(cfg.ID)
		}
		byID[cfg.ID] = cfg.clone()
	}

	seen := make(map[BackendID]bool, len(priority))
	for _, id := range priority {
		if !id.Valid() {
			return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidPriority, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidPriority, id)
		}
		seen[id] = true
	}

	order := append([]BackendID(nil), priority...)
	for _, id := range AllBackends {
		if !seen[id] {
			order = append(order, id)
		}
	}

	backends := orderedmap.New[BackendID, BackendConfig](len(byID))
	for _, id := range order {
		if cfg, ok := byID[id]; ok {
			backends.Set(id, cfg)
		}
	}

	return &Registry{backends: backends}, nil
}

// ListEnabled returns the usable backends in priority order
func (r *Registry) ListEnabled() []BackendConfig {
	out := make([]BackendConfig, 0, r.backends.Len())
	for pair := r.backends.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Usable() {
			out = append(out, pair.Value.clone())
		}
	}
	return out
}

// List returns every registered backend in priority order
func (r *Registry) List() []BackendConfig {
	out := make([]BackendConfig, 0, r.backends.Len())
	for pair := r.backends.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.clone())
	}
	return out
}

// Get returns the configuration of a single backend
func (r *Registry) Get(id BackendID) (BackendConfig, error) {
	cfg, ok := r.backends.Get(id)
	if !ok {
		return BackendConfig{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	return cfg.clone(), nil
}

// Len returns the number of registered backends
func (r *Registry) Len() int {
	return r.backends.Len()
}
