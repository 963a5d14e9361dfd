package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics replaces the teacher's hand-rolled observability/metrics.go
// registry with the real client_golang instrumentation, since two other
// pack repos reach for it directly for the same purpose. Each Server
// owns its own prometheus.Registry rather than registering onto the
// global default — the global default is a package-level singleton, so
// a second NewServer (e.g. a second test in the same process) would
// panic with AlreadyRegisteredError on identical collector names.
type metrics struct {
	registry       *prometheus.Registry
	dispatchTotal  *prometheus.CounterVec
	backendHealthy *prometheus.GaugeVec
	selectionTotal *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dispatch_total",
			Help: "Total requests dispatched to a backend, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		backendHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_backend_healthy",
			Help: "1 if the backend is currently healthy, else 0.",
		}, []string{"backend", "registry"}),
		selectionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_loadbalancer_selection_total",
			Help: "Total backend selections by the router, by backend and the policy step that resolved it (explicit, model_match, default, or a load-balancer strategy name).",
		}, []string{"backend", "strategy"}),
	}
}

// refreshHealthGauges snapshots each adapter's last-known Status (no
// network I/O) into the backend-health gauge before every /metrics
// scrape.
func (s *Server) refreshHealthGauges() {
	for _, a := range s.imageRegistry.GetAll() {
		st := a.Status()
		v := 0.0
		if st.Healthy {
			v = 1
		}
		s.metrics.backendHealthy.WithLabelValues(st.Name, "image").Set(v)
	}
	for _, a := range s.textRegistry.GetAllBackends() {
		st := a.Status()
		v := 0.0
		if st.Healthy {
			v = 1
		}
		s.metrics.backendHealthy.WithLabelValues(st.Name, "text").Set(v)
	}
}

func (s *Server) metricsHandler() http.Handler {
	next := promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.refreshHealthGauges()
		next.ServeHTTP(w, r)
	})
}
