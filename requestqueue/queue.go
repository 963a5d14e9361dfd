// Package requestqueue implements the single submission boundary for
// image-generation requests (spec §4.6). It is intentionally a thin
// pass-through — the spec's Request Queue does not enforce a queue-depth
// contract in the source it was distilled from, and this reimplements
// that behavior rather than inventing one (spec §9 open question).
package requestqueue

import (
	"context"

	"github.com/google/uuid"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwrouter"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
)

// Queue is the submission boundary into the image-generation adapter
// call. It resolves exactly one adapter per request via the router, so a
// backend removed mid-flight cannot be selected after its removal
// commits (spec §4.6).
type Queue struct {
	router *gwrouter.Router
	lb     *loadbalancer.LoadBalancer
}

func New(router *gwrouter.Router, lb *loadbalancer.LoadBalancer) *Queue {
	return &Queue{router: router, lb: lb}
}

// Result wraps an ImageResponse with the correlation id assigned at
// submission time, for logging/audit, plus which backend and routing
// step served the request.
type Result struct {
	CorrelationID string
	Backend       string
	SelectedVia   string
	Response      *backend.ImageResponse
}

// Submit resolves an adapter (explicit name takes precedence) and
// invokes GenerateImage on it, returning the adapter's error unchanged
// (spec §4.6 steps 1-3).
func (q *Queue) Submit(ctx context.Context, req *backend.ImageRequest, explicitBackend string) (*Result, error) {
	correlationID := uuid.NewString()

	adapter, via, err := q.router.RouteVia(explicitBackend, req.Model)
	if err != nil {
		return nil, err
	}

	name := adapter.Name()
	q.lb.Dispatched(name)
	defer q.lb.Completed(name)

	resp, err := adapter.GenerateImage(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{CorrelationID: correlationID, Backend: name, SelectedVia: via, Response: resp}, nil
}
