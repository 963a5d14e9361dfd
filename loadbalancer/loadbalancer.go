// Package loadbalancer selects one adapter from the image registry
// under a configurable strategy (spec §4.3).
package loadbalancer

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// Strategy names a load-balancing algorithm.
type Strategy string

const (
	RoundRobin        Strategy = "round_robin"
	WeightedRoundRobin Strategy = "weighted_round_robin"
	Random            Strategy = "random"
	LeastConnections  Strategy = "least_connections"
)

// ParseStrategy maps a config string to a Strategy, defaulting to
// round-robin for anything unrecognized.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case RoundRobin, WeightedRoundRobin, Random, LeastConnections:
		return Strategy(s)
	default:
		return RoundRobin
	}
}

// LoadBalancer is a stateless-per-call selector over a registry's image
// backends (spec §4.3). It is safe for concurrent use.
type LoadBalancer struct {
	registry *backend.ImageRegistry

	mu       sync.Mutex
	strategy Strategy
	rrCursor int

	connMu   sync.Mutex
	inFlight map[string]int
}

func New(registry *backend.ImageRegistry) *LoadBalancer {
	return &LoadBalancer{
		registry: registry,
		strategy: RoundRobin,
		inFlight: make(map[string]int),
	}
}

func (lb *LoadBalancer) Strategy() Strategy {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.strategy
}

func (lb *LoadBalancer) SetStrategy(s Strategy) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.strategy = s
}

// SelectBackend returns an adapter. If name is non-empty, that adapter is
// returned directly without strategy evaluation (spec §4.3).
func (lb *LoadBalancer) SelectBackend(name string) (backend.Adapter, error) {
	if name != "" {
		a, ok := lb.registry.Get(name)
		if !ok {
			return nil, gwerrors.BackendNotFound(name)
		}
		return a, nil
	}

	healthy := lb.registry.GetHealthy()
	if len(healthy) == 0 {
		return nil, gwerrors.NoHealthyBackends("no healthy backends available")
	}
	// Deterministic order so round-robin windows are well-defined across calls.
	sort.Slice(healthy, func(i, j int) bool { return healthy[i].Name() < healthy[j].Name() })

	switch lb.Strategy() {
	case WeightedRoundRobin:
		return lb.selectWeightedRoundRobin(healthy), nil
	case Random:
		return healthy[rand.Intn(len(healthy))], nil
	case LeastConnections:
		return lb.selectLeastConnections(healthy), nil
	default:
		return lb.selectRoundRobin(healthy), nil
	}
}

func (lb *LoadBalancer) selectRoundRobin(healthy []backend.Adapter) backend.Adapter {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	idx := lb.rrCursor % len(healthy)
	lb.rrCursor++
	return healthy[idx]
}

// selectWeightedRoundRobin expands the healthy set into a virtual
// sequence where each adapter appears Status().Weight times, then
// round-robins over that expansion. The expansion is recomputed on every
// call since the healthy set may have changed (spec §4.3).
func (lb *LoadBalancer) selectWeightedRoundRobin(healthy []backend.Adapter) backend.Adapter {
	expanded := make([]backend.Adapter, 0, len(healthy))
	for _, a := range healthy {
		w := a.Status().Weight
		if w < 1 {
			w = 1
		}
		for i := 0; i < w; i++ {
			expanded = append(expanded, a)
		}
	}
	if len(expanded) == 0 {
		expanded = healthy
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()
	idx := lb.rrCursor % len(expanded)
	lb.rrCursor++
	return expanded[idx]
}

func (lb *LoadBalancer) selectLeastConnections(healthy []backend.Adapter) backend.Adapter {
	lb.connMu.Lock()
	defer lb.connMu.Unlock()

	best := healthy[0]
	bestCount := lb.inFlight[best.Name()]
	for _, a := range healthy[1:] {
		c := lb.inFlight[a.Name()]
		if c < bestCount {
			best, bestCount = a, c
		}
	}
	return best
}

// Dispatched marks one outstanding request against name for the
// least-connections strategy. Completed must be called exactly once when
// that request finishes, regardless of outcome.
func (lb *LoadBalancer) Dispatched(name string) {
	lb.connMu.Lock()
	defer lb.connMu.Unlock()
	lb.inFlight[name]++
}

func (lb *LoadBalancer) Completed(name string) {
	lb.connMu.Lock()
	defer lb.connMu.Unlock()
	if lb.inFlight[name] > 0 {
		lb.inFlight[name]--
	}
}
