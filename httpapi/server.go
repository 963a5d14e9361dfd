// Package httpapi wires the gateway's chi HTTP surface (spec §6) on top
// of the backend registries, load balancer, router, request queue,
// health-check managers, and audit log, grounded on router/router.go's
// middleware-chain-then-routes shape.
package httpapi

import (
	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/audit"
	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwconfig"
	"github.com/neuralfoundry-coder/generative-img-serving/gwrouter"
	"github.com/neuralfoundry-coder/generative-img-serving/healthcheck"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
	"github.com/neuralfoundry-coder/generative-img-serving/modelsync"
	"github.com/neuralfoundry-coder/generative-img-serving/requestqueue"
	"github.com/neuralfoundry-coder/generative-img-serving/storage"
)

// Server holds every dependency a handler needs. Handlers are methods on
// Server so they share this without a global.
type Server struct {
	cfg *gwconfig.Settings

	imageRegistry *backend.ImageRegistry
	textRegistry  *backend.TextRegistry

	lb     *loadbalancer.LoadBalancer
	router *gwrouter.Router
	queue  *requestqueue.Queue

	imageHealth *healthcheck.Manager
	textHealth  *healthcheck.Manager

	syncer *modelsync.Syncer
	urls   *storage.UrlHandler
	auditl *audit.Log

	metrics *metrics
	logger  zerolog.Logger
}

// NewServer assembles a Server from already-constructed components; it
// performs no I/O itself.
func NewServer(
	cfg *gwconfig.Settings,
	imageRegistry *backend.ImageRegistry,
	textRegistry *backend.TextRegistry,
	lb *loadbalancer.LoadBalancer,
	router *gwrouter.Router,
	queue *requestqueue.Queue,
	imageHealth *healthcheck.Manager,
	textHealth *healthcheck.Manager,
	syncer *modelsync.Syncer,
	urls *storage.UrlHandler,
	auditl *audit.Log,
	logger zerolog.Logger,
) *Server {
	return &Server{
		cfg:           cfg,
		imageRegistry: imageRegistry,
		textRegistry:  textRegistry,
		lb:            lb,
		router:        router,
		queue:         queue,
		imageHealth:   imageHealth,
		textHealth:    textHealth,
		syncer:        syncer,
		urls:          urls,
		auditl:        auditl,
		metrics:       newMetrics(),
		logger:        logger.With().Str("component", "httpapi").Logger(),
	}
}
