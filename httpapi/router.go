package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router with the full middleware chain and
// every route from spec §6, mirroring router/router.go's structure:
// ambient middleware first, unauthenticated health/metrics endpoints,
// then the authenticated /v1 route group.
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(maxBodySize(5 * 1024 * 1024))

	r.Get("/health", s.health)
	r.Get("/metrics", s.metricsHandler().ServeHTTP)

	if s.urls != nil && s.cfg.Storage.BasePath != "" {
		fs := http.FileServer(http.Dir(s.cfg.Storage.BasePath))
		r.Handle("/files/*", http.StripPrefix("/files/", fs))
	}

	auth := newAuthMiddleware(s.cfg.Auth, s.logger)
	limiter := newRateLimiter(s.cfg.RateLimit)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.handler)
		v1.Use(limiter.handler)

		v1.Post("/images/generations", s.generateImage)
		v1.Post("/chat/completions", s.chatCompletion)
		v1.Post("/completions", s.textCompletion)
		v1.Get("/models", s.listModels)

		v1.Get("/backends", s.listImageBackends)
		v1.Post("/backends", s.addBackend)
		v1.Delete("/backends/{name}", s.removeBackend)
		v1.Get("/backends/text", s.listTextBackends)
		v1.Get("/backends/audit", s.backendAudit)
	})

	return r
}
