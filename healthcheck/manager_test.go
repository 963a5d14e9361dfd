package healthcheck

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
)

// fakeAdapter is a minimal backend.Adapter stub whose HealthProbe result
// is controlled by the test.
type fakeAdapter struct {
	name    string
	healthy bool
}

func (f *fakeAdapter) Name() string                                           { return f.name }
func (f *fakeAdapter) Protocol() backend.Protocol                             { return backend.ProtocolHTTP }
func (f *fakeAdapter) Models() []string                                      { return nil }
func (f *fakeAdapter) Capabilities() []string                                { return nil }
func (f *fakeAdapter) IsEnabled() bool                                       { return true }
func (f *fakeAdapter) Status() backend.Status                                { return backend.Status{Name: f.name, Healthy: f.healthy} }
func (f *fakeAdapter) ChatCompletion(context.Context, *backend.ChatRequest) (*backend.ChatResponse, error) {
	return nil, nil
}
func (f *fakeAdapter) TextCompletion(context.Context, *backend.TextRequest) (*backend.TextResponse, error) {
	return nil, nil
}
func (f *fakeAdapter) GenerateImage(context.Context, *backend.ImageRequest) (*backend.ImageResponse, error) {
	return nil, nil
}
func (f *fakeAdapter) ListModels(context.Context) (*backend.ModelsResponse, error) { return nil, nil }
func (f *fakeAdapter) HealthProbe(context.Context) bool                           { return f.healthy }

func TestHealthSummary(t *testing.T) {
	a := &fakeAdapter{name: "a", healthy: false}
	b := &fakeAdapter{name: "b", healthy: false}
	source := func() map[string]backend.Adapter {
		return map[string]backend.Adapter{"a": a, "b": b}
	}

	m := New(source, zerolog.New(io.Discard))
	m.Start(20 * time.Millisecond)
	defer m.Stop()

	time.Sleep(60 * time.Millisecond)

	total, healthy, unhealthy := m.GetHealthSummary()
	if total != 2 || healthy != 0 || unhealthy != 2 {
		t.Fatalf("expected (2,0,2), got (%d,%d,%d)", total, healthy, unhealthy)
	}
	if m.IsHealthy("a") {
		t.Fatalf("expected a unhealthy")
	}
}

func TestOnTransitionFiresOnHealthFlip(t *testing.T) {
	a := &fakeAdapter{name: "a", healthy: true}
	source := func() map[string]backend.Adapter {
		return map[string]backend.Adapter{"a": a}
	}

	m := New(source, zerolog.New(io.Discard))
	var mu sync.Mutex
	var transitions []bool
	m.OnTransition(func(name string, healthy bool) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, healthy)
	})

	// Start floors the interval at 1s: the first probe runs immediately,
	// the second one tick later.
	m.Start(time.Second)
	time.Sleep(25 * time.Millisecond)
	a.healthy = false
	time.Sleep(1100 * time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[0] != false {
		t.Fatalf("expected a healthy->unhealthy transition to fire, got %v", transitions)
	}
}

func TestIsHealthyOptimisticBeforeFirstProbe(t *testing.T) {
	source := func() map[string]backend.Adapter { return map[string]backend.Adapter{} }
	m := New(source, zerolog.New(io.Discard))
	if !m.IsHealthy("never-probed") {
		t.Fatalf("expected optimistic healthy=true before any record exists")
	}
}
