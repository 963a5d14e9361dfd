// Package gwrouter implements the gateway's policy router: the thin
// layer above the load balancer that adds default-backend, model-name
// substring matching, and fallback behavior (spec §4.4). This is
// distinct from httpapi's HTTP route table — gwrouter decides *which
// backend*, not *which handler*.
package gwrouter

import (
	"strings"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
)

// Config holds the router's policy knobs (spec §4.4).
type Config struct {
	DefaultBackend  string
	FallbackEnabled bool
}

// Router applies policy before deferring to the load balancer.
type Router struct {
	cfg      Config
	registry *backend.ImageRegistry
	lb       *loadbalancer.LoadBalancer
}

func New(cfg Config, registry *backend.ImageRegistry, lb *loadbalancer.LoadBalancer) *Router {
	return &Router{cfg: cfg, registry: registry, lb: lb}
}

// Route resolves an adapter for an image-generation request, given an
// optional explicit backend name and an optional model hint, following
// the 5-step policy in spec §4.4.
func (r *Router) Route(explicitName, model string) (backend.Adapter, error) {
	a, _, err := r.RouteVia(explicitName, model)
	return a, err
}

// RouteVia is Route plus the name of the policy step that resolved the
// adapter, for metrics/logging callers that want to know how a backend
// was picked rather than just which one.
func (r *Router) RouteVia(explicitName, model string) (backend.Adapter, string, error) {
	// 1. Explicit name, if it exists.
	if explicitName != "" {
		if a, ok := r.registry.Get(explicitName); ok {
			return a, "explicit", nil
		}
	}

	// 2. Model-name substring match, first hit in registry order.
	// Permissive by design (spec §4.4, §9): a short backend name can
	// shadow a more specific one; this is the specified behavior, not a
	// defect.
	if model != "" {
		for name, a := range r.registry.GetAll() {
			if strings.Contains(model, name) {
				return a, "model_match", nil
			}
		}
	}

	// 3. Configured default backend.
	if r.cfg.DefaultBackend != "" {
		if a, ok := r.registry.Get(r.cfg.DefaultBackend); ok {
			return a, "default", nil
		}
	}

	// 4. Fallback to the load balancer over the whole healthy set.
	if r.cfg.FallbackEnabled {
		a, err := r.lb.SelectBackend("")
		if err != nil {
			return nil, "", err
		}
		return a, string(r.lb.Strategy()), nil
	}

	// 5. Nothing left to try.
	return nil, "", gwerrors.NoHealthyBackends("no backend selected by router policy")
}
