package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/gwconfig"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// authMiddleware checks the bearer token against the configured key
// list, adapted from middleware/auth.go but validating locally instead
// of against an upstream /v1/users/me call: this gateway is the
// identity boundary, there is no upstream to defer to.
type authMiddleware struct {
	cfg    gwconfig.AuthConfig
	logger zerolog.Logger
}

func newAuthMiddleware(cfg gwconfig.AuthConfig, logger zerolog.Logger) *authMiddleware {
	return &authMiddleware{cfg: cfg, logger: logger}
}

func (a *authMiddleware) handler(next http.Handler) http.Handler {
	keys := make(map[string]bool, len(a.cfg.APIKeys))
	for _, k := range a.cfg.APIKeys {
		keys[k] = true
	}
	bypass := make(map[string]bool, len(a.cfg.BypassPaths))
	for _, p := range a.cfg.BypassPaths {
		bypass[p] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || bypass[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing_authentication", "Authorization header required")
			return
		}
		key := header
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			key = header[len("bearer "):]
		}
		if key == "" || !keys[key] {
			writeError(w, http.StatusUnauthorized, "invalid_authentication", "unknown API key")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func apiKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyContextKey).(string); ok {
		return v
	}
	return ""
}

// rateLimiter is a per-key fixed window limiter, ported from
// middleware/ratelimit.go's sliding-window approach but simplified to a
// per-second fixed window since the gateway config expresses limits in
// requests-per-second rather than per-minute.
type rateLimiter struct {
	cfg     gwconfig.RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

func newRateLimiter(cfg gwconfig.RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, windows: make(map[string]*window)}
}

func (rl *rateLimiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := apiKeyFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		allowed, remaining := rl.allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.RequestsPerSecond))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
				fmt.Sprintf("rate limit of %d requests/sec exceeded", rl.cfg.RequestsPerSecond))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rl.cfg.RequestsPerSecond + rl.cfg.BurstSize
	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= time.Second {
		w = &window{start: now}
		rl.windows[key] = w
	}
	if w.count >= limit {
		return false, 0
	}
	w.count++
	return true, limit - w.count
}

// requestLogger logs one line per request, grounded on the teacher
// router's mwRequestLogger.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// maxBodySize caps request bodies, grounded on router/router.go's
// mwMaxBodySize.
func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// recoverer turns a panic in a handler into a 500 instead of crashing
// the server.
func recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("panic recovered")
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
