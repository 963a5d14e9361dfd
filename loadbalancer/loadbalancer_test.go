package loadbalancer

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
)

func newTestRegistry(t *testing.T, cfgs ...backend.Config) *backend.ImageRegistry {
	t.Helper()
	r := backend.NewImageRegistry(zerolog.New(io.Discard))
	for _, cfg := range cfgs {
		if err := r.AddBackend(cfg); err != nil {
			t.Fatalf("add %s: %v", cfg.Name, err)
		}
	}
	return r
}

func imgCfg(name string, weight int) backend.Config {
	return backend.Config{
		Name: name, Protocol: "http", Endpoints: []string{"http://" + name},
		Enabled: true, LoadBalancer: backend.LoadBalancerConfig{Weight: weight},
	}
}

func TestSelectBackendEmptyRegistry(t *testing.T) {
	lb := New(newTestRegistry(t))
	if _, err := lb.SelectBackend(""); err == nil {
		t.Fatalf("expected NoHealthyBackends on empty registry")
	}
}

func TestSelectBackendExplicitName(t *testing.T) {
	lb := New(newTestRegistry(t, imgCfg("sd", 1), imgCfg("dalle", 1)))
	a, err := lb.SelectBackend("dalle")
	if err != nil || a.Name() != "dalle" {
		t.Fatalf("expected dalle, got %v err=%v", a, err)
	}
}

func TestSelectBackendNonexistentName(t *testing.T) {
	lb := New(newTestRegistry(t, imgCfg("sd", 1)))
	if _, err := lb.SelectBackend("missing"); err == nil {
		t.Fatalf("expected BackendNotFound")
	}
}

func TestRoundRobinDistribution(t *testing.T) {
	lb := New(newTestRegistry(t, imgCfg("a", 1), imgCfg("b", 1), imgCfg("c", 1)))
	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		a, err := lb.SelectBackend("")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[a.Name()]++
	}
	for name, c := range counts {
		if c < 8 || c > 12 {
			t.Errorf("backend %s got %d selections, want roughly 10", name, c)
		}
	}
}

func TestWeightedRoundRobinDistribution(t *testing.T) {
	lb := New(newTestRegistry(t, imgCfg("sd", 1), imgCfg("dalle", 3)))
	lb.SetStrategy(WeightedRoundRobin)

	counts := map[string]int{}
	for i := 0; i < 16; i++ {
		a, err := lb.SelectBackend("")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[a.Name()]++
	}
	if counts["sd"] != 4 || counts["dalle"] != 12 {
		t.Errorf("expected sd=4 dalle=12, got sd=%d dalle=%d", counts["sd"], counts["dalle"])
	}
}

func TestLeastConnections(t *testing.T) {
	lb := New(newTestRegistry(t, imgCfg("a", 1), imgCfg("b", 1)))
	lb.SetStrategy(LeastConnections)

	lb.Dispatched("a")
	lb.Dispatched("a")
	a, err := lb.SelectBackend("")
	if err != nil || a.Name() != "b" {
		t.Fatalf("expected b (fewer in-flight), got %v err=%v", a, err)
	}
}
