// Package healthcheck implements the background health-check manager
// that periodically probes every registered backend and records
// per-backend health with timestamps and failure counts (spec §4.5).
package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
)

// Record is the per-backend health record the manager maintains
// (spec §3 "HealthRecord").
type Record struct {
	IsHealthy           bool
	LastCheckTime       time.Time
	ConsecutiveFailures int
	LastErrorMessage    string
}

// AdapterSource enumerates the current adapter set of one registry. Both
// backend.ImageRegistry and backend.TextRegistry satisfy this via small
// wrapper functions, since the manager doesn't care which registry kind
// it watches — only that it can snapshot a name→Adapter map each tick.
type AdapterSource func() map[string]backend.Adapter

// Manager runs one background probe loop per registry it is started
// against (spec §4.5: "launches one background task per registry").
type Manager struct {
	source AdapterSource
	logger zerolog.Logger

	mu      sync.RWMutex
	records map[string]Record

	onTransition func(name string, healthy bool)

	cancel context.CancelFunc
	done   chan struct{}
}

func New(source AdapterSource, logger zerolog.Logger) *Manager {
	return &Manager{
		source:  source,
		logger:  logger.With().Str("component", "health_manager").Logger(),
		records: make(map[string]Record),
		done:    make(chan struct{}),
	}
}

// OnTransition registers a callback invoked whenever a backend's health
// flips (healthy->unhealthy or back), after the record is updated. Not
// called for the first probe of a backend that starts unhealthy, since
// there is no prior state to transition from.
func (m *Manager) OnTransition(fn func(name string, healthy bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Start launches the probe loop at the given interval, floored at 1s
// (spec §4.5: "minimum of all configured backends' interval_secs, floored
// at 1s; default 30s when no backends are configured").
func (m *Manager) Start(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.loop(ctx, interval)
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

func (m *Manager) loop(ctx context.Context, interval time.Duration) {
	defer close(m.done)
	m.probeAll(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx, interval)
		}
	}
}

// probeAll snapshots the current adapter set and fans out parallel
// probes; a slow probe does not block its siblings (spec §4.5).
func (m *Manager) probeAll(ctx context.Context, interval time.Duration) {
	adapters := m.source()

	var wg sync.WaitGroup
	for name, a := range adapters {
		wg.Add(1)
		go func(name string, a backend.Adapter) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()

			healthy := a.HealthProbe(probeCtx)
			errMsg := ""
			if !healthy {
				errMsg = "no healthy endpoints"
			}

			m.mu.Lock()
			prev, hadPrev := m.records[name]
			rec := Record{IsHealthy: healthy, LastCheckTime: time.Now(), LastErrorMessage: errMsg}
			if healthy {
				rec.ConsecutiveFailures = 0
			} else {
				rec.ConsecutiveFailures = prev.ConsecutiveFailures + 1
			}
			m.records[name] = rec
			changed := hadPrev && prev.IsHealthy != healthy
			onTransition := m.onTransition
			m.mu.Unlock()

			m.logger.Debug().Str("backend", name).Bool("healthy", healthy).Msg("probe complete")
			if changed && onTransition != nil {
				onTransition(name, healthy)
			}
		}(name, a)
	}
	wg.Wait()
}

// IsHealthy returns true if no record exists yet (optimistic initial
// state) or the latest record is healthy (spec §4.5).
func (m *Manager) IsHealthy(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	return !ok || rec.IsHealthy
}

// GetStatus returns the latest record for name, if any.
func (m *Manager) GetStatus(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	return rec, ok
}

// GetHealthSummary returns (total, healthy, unhealthy) counts from the
// current adapter enumeration and latest records.
func (m *Manager) GetHealthSummary() (total, healthy, unhealthy int) {
	adapters := m.source()
	m.mu.RLock()
	defer m.mu.RUnlock()
	total = len(adapters)
	for name := range adapters {
		rec, ok := m.records[name]
		if !ok || rec.IsHealthy {
			healthy++
		}
	}
	unhealthy = total - healthy
	return
}

// GetUnhealthyBackends returns the names whose latest record is unhealthy.
func (m *Manager) GetUnhealthyBackends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, rec := range m.records {
		if !rec.IsHealthy {
			names = append(names, name)
		}
	}
	return names
}

// ImageSource adapts an ImageRegistry to an AdapterSource.
func ImageSource(r *backend.ImageRegistry) AdapterSource {
	return func() map[string]backend.Adapter { return r.GetAll() }
}

// TextSource adapts a TextRegistry to an AdapterSource.
func TextSource(r *backend.TextRegistry) AdapterSource {
	return func() map[string]backend.Adapter { return r.GetAllBackends() }
}
