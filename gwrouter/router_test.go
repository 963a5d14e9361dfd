package gwrouter

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
)

func setup(t *testing.T, names ...string) (*backend.ImageRegistry, *loadbalancer.LoadBalancer) {
	t.Helper()
	reg := backend.NewImageRegistry(zerolog.New(io.Discard))
	for _, n := range names {
		cfg := backend.Config{Name: n, Protocol: "http", Endpoints: []string{"http://" + n}, Enabled: true}
		if err := reg.AddBackend(cfg); err != nil {
			t.Fatalf("add %s: %v", n, err)
		}
	}
	return reg, loadbalancer.New(reg)
}

func TestRouteExplicitName(t *testing.T) {
	reg, lb := setup(t, "sd", "dalle")
	r := New(Config{}, reg, lb)
	a, err := r.Route("dalle", "")
	if err != nil || a.Name() != "dalle" {
		t.Fatalf("expected dalle, got %v err=%v", a, err)
	}
}

func TestRouteModelSubstring(t *testing.T) {
	reg, lb := setup(t, "stable-diffusion")
	r := New(Config{}, reg, lb)
	a, err := r.Route("", "stable-diffusion-v1")
	if err != nil || a.Name() != "stable-diffusion" {
		t.Fatalf("expected stable-diffusion, got %v err=%v", a, err)
	}
}

func TestRouteDefaultBackend(t *testing.T) {
	reg, lb := setup(t, "sd", "dalle")
	r := New(Config{DefaultBackend: "sd", FallbackEnabled: false}, reg, lb)
	for i := 0; i < 5; i++ {
		a, err := r.Route("", "")
		if err != nil || a.Name() != "sd" {
			t.Fatalf("expected sd every time, got %v err=%v", a, err)
		}
	}
}

func TestRouteNoFallbackFails(t *testing.T) {
	reg, lb := setup(t, "sd")
	r := New(Config{FallbackEnabled: false}, reg, lb)
	if _, err := r.Route("", ""); err == nil {
		t.Fatalf("expected NoHealthyBackends when no policy step resolves")
	}
}

func TestRouteFallbackToLoadBalancer(t *testing.T) {
	reg, lb := setup(t, "sd")
	r := New(Config{FallbackEnabled: true}, reg, lb)
	a, err := r.Route("", "")
	if err != nil || a.Name() != "sd" {
		t.Fatalf("expected sd via fallback, got %v err=%v", a, err)
	}
}
