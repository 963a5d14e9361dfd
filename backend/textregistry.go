package backend

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// TextRegistry owns the text-backend adapter set plus the derived
// model-id → backend-name mapping (spec §3, §4.2).
type TextRegistry struct {
	mu            sync.RWMutex
	backends      map[string]Adapter
	modelToBackend map[string]string
	logger        zerolog.Logger
}

func NewTextRegistry(logger zerolog.Logger) *TextRegistry {
	return &TextRegistry{
		backends:       make(map[string]Adapter),
		modelToBackend: make(map[string]string),
		logger:         logger.With().Str("component", "text_registry").Logger(),
	}
}

// AddBackend registers a text adapter and (re)binds its declared models,
// last writer wins on overlap (spec §3).
func (r *TextRegistry) AddBackend(cfg Config) error {
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
	for _, m := range cfg.Models {
		r.modelToBackend[m] = cfg.Name
	}
	return nil
}

// RemoveBackend removes an adapter and purges every model mapping
// pointing at it (spec §4.2).
func (r *TextRegistry) RemoveBackend(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; !exists {
		return gwerrors.BackendNotFound(name)
	}
	delete(r.backends, name)
	for model, owner := range r.modelToBackend {
		if owner == name {
			delete(r.modelToBackend, model)
		}
	}
	return nil
}

func (r *TextRegistry) GetBackend(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.backends[name]
	return a, ok
}

// GetBackendForModel implements the 5-step selection policy of spec §4.2.
func (r *TextRegistry) GetBackendForModel(model, preferred string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// 1. Explicit preference wins regardless of enabled/health.
	if preferred != "" {
		if a, ok := r.backends[preferred]; ok {
			return a, nil
		}
	}

	// 2. Model mapping, if the resolved adapter is enabled.
	if model != "" {
		if name, ok := r.modelToBackend[model]; ok {
			if a, ok := r.backends[name]; ok && a.IsEnabled() {
				return a, nil
			}
		}
	}

	// 3. Scan for the first enabled adapter whose Models() contains model.
	if model != "" {
		for _, a := range r.backends {
			if !a.IsEnabled() {
				continue
			}
			for _, m := range a.Models() {
				if m == model {
					return a, nil
				}
			}
		}
	}

	// 4. Any enabled adapter.
	for _, a := range r.backends {
		if a.IsEnabled() {
			return a, nil
		}
	}

	// 5. Nothing available.
	return nil, gwerrors.NoHealthyBackends("no available backend for model '%s'", model)
}

func (r *TextRegistry) GetAllBackends() map[string]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Adapter, len(r.backends))
	for k, v := range r.backends {
		out[k] = v
	}
	return out
}

func (r *TextRegistry) ListBackends(ctx context.Context) []Status {
	all := r.GetAllBackends()
	statuses := make([]Status, 0, len(all))
	for _, a := range all {
		a.HealthProbe(ctx)
		statuses = append(statuses, a.Status())
	}
	return statuses
}

// HealthCheckAll probes every adapter and returns (total, healthy, unhealthy).
func (r *TextRegistry) HealthCheckAll(ctx context.Context) (total, healthy, unhealthy int) {
	all := r.GetAllBackends()
	total = len(all)
	for _, a := range all {
		if a.HealthProbe(ctx) {
			healthy++
		} else {
			unhealthy++
		}
	}
	return
}
