package backend

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// ImageRegistry owns the image-backend adapter set (spec §3, §4.2).
// Concurrent readers get a cloned reference to the adapter map; all
// single-key mutations take the exclusive lock; adapters are never
// mutated in their immutable fields after construction.
type ImageRegistry struct {
	mu       sync.RWMutex
	backends map[string]Adapter
	logger   zerolog.Logger
}

func NewImageRegistry(logger zerolog.Logger) *ImageRegistry {
	return &ImageRegistry{
		backends: make(map[string]Adapter),
		logger:   logger.With().Str("component", "image_registry").Logger(),
	}
}

// InitializeFromConfig constructs adapters for every enabled entry.
// Construction failure is logged and skipped, not fatal (spec §4.2:
// best-effort fleet bring-up, grounded on original_source's
// initialize_from_config).
func (r *ImageRegistry) InitializeFromConfig(cfgs []Config) {
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			r.logger.Info().Str("backend", cfg.Name).Msg("backend disabled, skipping")
			continue
		}
		adapter, err := New(cfg)
		if err != nil {
			r.logger.Error().Err(err).Str("backend", cfg.Name).Msg("failed to construct backend, skipping")
			continue
		}
		r.mu.Lock()
		r.backends[cfg.Name] = adapter
		r.mu.Unlock()
	}
}

func (r *ImageRegistry) AddBackend(cfg Config) error {
	r.mu.RLock()
	_, exists := r.backends[cfg.Name]
	r.mu.RUnlock()
	if exists {
		return gwerrors.BackendAlreadyExists(cfg.Name)
	}

	adapter, err := New(cfg)
	if err != nil {
		return gwerrors.InvalidRequest("construct backend %s: %v", cfg.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[cfg.Name]; exists {
		return gwerrors.BackendAlreadyExists(cfg.Name)
	}
	r.backends[cfg.Name] = adapter
	return nil
}

func (r *ImageRegistry) RemoveBackend(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; !exists {
		return gwerrors.BackendNotFound(name)
	}
	delete(r.backends, name)
	return nil
}

func (r *ImageRegistry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.backends[name]
	return a, ok
}

func (r *ImageRegistry) GetAll() map[string]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Adapter, len(r.backends))
	for k, v := range r.backends {
		out[k] = v
	}
	return out
}

// GetHealthy returns every adapter whose Status().Healthy is currently
// true, without issuing a fresh probe.
func (r *ImageRegistry) GetHealthy() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.backends))
	for _, a := range r.backends {
		if a.Status().Healthy {
			out = append(out, a)
		}
	}
	return out
}

func (r *ImageRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

func (r *ImageRegistry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// ListBackends snapshots the adapter set, then probes each outside the
// lock (spec §4.2: "avoiding holding the registry lock during async I/O").
func (r *ImageRegistry) ListBackends(ctx context.Context) []Status {
	adapters := r.GetAll()
	statuses := make([]Status, 0, len(adapters))
	for _, a := range adapters {
		a.HealthProbe(ctx)
		statuses = append(statuses, a.Status())
	}
	return statuses
}
