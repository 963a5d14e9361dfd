// Package modelsync periodically calls ListModels on every enabled text
// backend and logs newly observed / disappeared model ids, adapted from
// provider/modelsync.go's ticker-based polling loop but rescheduled onto
// a real cron expression (SPEC_FULL.md §4).
package modelsync

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
)

// Syncer owns the cron schedule and the last-observed model catalog.
type Syncer struct {
	registry *backend.TextRegistry
	logger   zerolog.Logger
	timeout  time.Duration

	cron *cron.Cron

	mu      sync.RWMutex
	catalog map[string][]string // backend name -> model ids
}

// New builds a Syncer; timeout bounds each sync run's ListModels calls.
func New(registry *backend.TextRegistry, logger zerolog.Logger, timeout time.Duration) *Syncer {
	return &Syncer{
		registry: registry,
		logger:   logger.With().Str("component", "model_sync").Logger(),
		timeout:  timeout,
		cron:     cron.New(),
		catalog:  make(map[string][]string),
	}
}

// Start schedules the periodic sync and runs one immediately. schedule is
// a standard 5-field cron expression (e.g. "*/5 * * * *" for every 5
// minutes).
func (s *Syncer) Start(schedule string) error {
	s.syncAll()
	_, err := s.cron.AddFunc(schedule, s.syncAll)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Msg("model sync scheduled")
	return nil
}

// Stop halts the cron schedule and waits for any in-flight run.
func (s *Syncer) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Catalog returns the last-synced model ids per backend name.
func (s *Syncer) Catalog() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.catalog))
	for k, v := range s.catalog {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func (s *Syncer) syncAll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	backends := s.registry.GetAllBackends()

	var wg sync.WaitGroup
	results := make(map[string][]string)
	var mu sync.Mutex

	for name, a := range backends {
		if !a.IsEnabled() {
			continue
		}
		wg.Add(1)
		go func(name string, a backend.Adapter) {
			defer wg.Done()
			resp, err := a.ListModels(ctx)
			if err != nil {
				s.logger.Debug().Err(err).Str("backend", name).Msg("model sync failed")
				return
			}
			ids := make([]string, len(resp.Data))
			for i, m := range resp.Data {
				ids[i] = m.ID
			}
			mu.Lock()
			results[name] = ids
			mu.Unlock()
		}(name, a)
	}
	wg.Wait()

	s.diffAndLog(results)

	s.mu.Lock()
	s.catalog = results
	s.mu.Unlock()
}

func (s *Syncer) diffAndLog(next map[string][]string) {
	s.mu.RLock()
	prev := s.catalog
	s.mu.RUnlock()

	for name, ids := range next {
		prevSet := toSet(prev[name])
		nextSet := toSet(ids)
		for id := range nextSet {
			if !prevSet[id] {
				s.logger.Info().Str("backend", name).Str("model", id).Msg("model observed")
			}
		}
		for id := range prevSet {
			if !nextSet[id] {
				s.logger.Info().Str("backend", name).Str("model", id).Msg("model disappeared")
			}
		}
	}
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
