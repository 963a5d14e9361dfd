package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// httpAdapter implements Adapter for the http, openai and tgi protocol
// families: all three are forwarded as plain OpenAI-shaped JSON over
// POST/GET, grounded on provider/openai.go's request/response handling
// and original_source's OpenAICompatibleBackend.
type httpAdapter struct {
	name         string
	protocol     Protocol
	enabled      bool
	models       []string
	capabilities []string
	weight       int
	healthPath   string
	probeTimeout time.Duration

	authHeader string
	authValue  string

	client *http.Client

	mu        sync.RWMutex
	endpoints []*endpointState
	cursor    int
}

func newHTTPAdapter(cfg Config, proto Protocol) (Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("backend name must not be empty")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("backend %q must declare at least one endpoint", cfg.Name)
	}

	hc := cfg.effectiveHealthCheck()
	requestTimeout := timeoutDuration(hc.TimeoutSecs) * 4
	if cfg.TimeoutMs > 0 {
		requestTimeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	endpoints := make([]*endpointState, len(cfg.Endpoints))
	for i, u := range cfg.Endpoints {
		endpoints[i] = &endpointState{url: strings.TrimRight(u, "/"), healthy: true}
	}

	a := &httpAdapter{
		name:         cfg.Name,
		protocol:     proto,
		enabled:      cfg.Enabled,
		models:       cfg.Models,
		capabilities: cfg.Capabilities,
		weight:       cfg.effectiveWeight(),
		healthPath:   hc.Path,
		probeTimeout: timeoutDuration(hc.TimeoutSecs),
		endpoints:    endpoints,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	a.configureAuth(cfg.Auth)
	return a, nil
}

// configureAuth resolves the adapter's auth header once, at construction
// (spec §4.1: token_env is read from the environment exactly once).
func (a *httpAdapter) configureAuth(auth AuthConfig) {
	token := auth.APIKey
	if auth.TokenEnv != "" {
		token = os.Getenv(auth.TokenEnv)
	}
	if token == "" {
		a.authHeader = ""
		return
	}
	if auth.HeaderName != "" {
		a.authHeader = auth.HeaderName
		a.authValue = token
		return
	}
	a.authHeader = "Authorization"
	a.authValue = "Bearer " + token
}

func (a *httpAdapter) Name() string          { return a.name }
func (a *httpAdapter) Protocol() Protocol     { return a.protocol }
func (a *httpAdapter) Models() []string       { return a.models }
func (a *httpAdapter) Capabilities() []string { return a.capabilities }
func (a *httpAdapter) IsEnabled() bool        { return a.enabled }

func (a *httpAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	urls := make([]string, len(a.endpoints))
	healthy := false
	for i, e := range a.endpoints {
		urls[i] = e.url
		if e.healthy {
			healthy = true
		}
	}
	return Status{
		Name:         a.name,
		Protocol:     string(a.protocol),
		Endpoints:    urls,
		Healthy:      healthy,
		Models:       a.models,
		Capabilities: a.capabilities,
		Weight:       a.weight,
		Enabled:      a.enabled,
	}
}

// nextEndpoint picks the next healthy endpoint under the adapter's
// round-robin cursor (spec §4.1 "Endpoint selection"). The cursor
// advances on every call regardless of outcome, under the same lock as
// the endpoints list (spec §5).
func (a *httpAdapter) nextEndpoint() (*endpointState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	healthy := make([]*endpointState, 0, len(a.endpoints))
	for _, e := range a.endpoints {
		if e.healthy {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) == 0 {
		return nil, gwerrors.NoHealthyEndpoints(a.name)
	}
	idx := a.cursor % len(healthy)
	a.cursor++
	return healthy[idx], nil
}

// recordResult applies the health transition table from spec §4.1.
func (a *httpAdapter) recordResult(ep *endpointState, statusCode int, transportErr error, parseErr error, isProbe bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ep.lastCheck = time.Now()

	switch {
	case transportErr != nil:
		ep.consecutiveFailures++
		if ep.consecutiveFailures >= failureThreshold {
			ep.healthy = false
		}
	case statusCode >= 200 && statusCode < 300 && parseErr == nil:
		ep.healthy = true
		ep.consecutiveFailures = 0
	case statusCode == http.StatusUnauthorized && isProbe:
		ep.healthy = true
		ep.consecutiveFailures = 0
	case statusCode >= 500:
		ep.consecutiveFailures++
		if ep.consecutiveFailures >= failureThreshold {
			ep.healthy = false
		}
	case statusCode >= 400:
		// 4xx other than 401-during-probe: client error, health unchanged.
	}
}

func (a *httpAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.authHeader != "" {
		req.Header.Set(a.authHeader, a.authValue)
	}
}

func (a *httpAdapter) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}, isProbe bool) error {
	ep, err := a.nextEndpoint()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, merr := json.Marshal(body)
		if merr != nil {
			return gwerrors.BackendError("marshal request: %v", merr)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.url+path, reader)
	if err != nil {
		return gwerrors.BackendError("build request: %v", err)
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		a.recordResult(ep, 0, err, nil, isProbe)
		return gwerrors.HTTPClient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		a.recordResult(ep, resp.StatusCode, nil, nil, isProbe)
		return gwerrors.BackendError("backend %s returned status %d: %s", a.name, resp.StatusCode, string(raw))
	}

	var decodeErr error
	if out != nil {
		decodeErr = json.NewDecoder(resp.Body).Decode(out)
	}
	a.recordResult(ep, resp.StatusCode, nil, decodeErr, isProbe)
	if decodeErr != nil {
		return gwerrors.BackendError("decode response from %s: %v", a.name, decodeErr)
	}
	return nil
}

func (a *httpAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := a.doJSON(ctx, http.MethodPost, "/chat/completions", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *httpAdapter) TextCompletion(ctx context.Context, req *TextRequest) (*TextResponse, error) {
	var resp TextResponse
	if err := a.doJSON(ctx, http.MethodPost, "/completions", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *httpAdapter) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	var resp ImageResponse
	if err := a.doJSON(ctx, http.MethodPost, "/images/generations", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels returns upstream /models if it parses; otherwise synthesizes
// a response from the adapter's configured model list (spec §4.1).
func (a *httpAdapter) ListModels(ctx context.Context) (*ModelsResponse, error) {
	var resp ModelsResponse
	err := a.doJSON(ctx, http.MethodGet, "/models", nil, &resp, false)
	if err == nil {
		return &resp, nil
	}
	return a.syntheticModels(), nil
}

func (a *httpAdapter) syntheticModels() *ModelsResponse {
	data := make([]ModelInfo, len(a.models))
	now := time.Now().Unix()
	for i, m := range a.models {
		data[i] = ModelInfo{ID: m, Object: "model", Created: now, OwnedBy: a.name}
	}
	return &ModelsResponse{Object: "list", Data: data}
}

// HealthProbe probes every endpoint (not just the next-in-rotation one),
// matching original_source's health_check loop over the full endpoint set.
func (a *httpAdapter) HealthProbe(ctx context.Context) bool {
	a.mu.RLock()
	endpoints := make([]*endpointState, len(a.endpoints))
	copy(endpoints, a.endpoints)
	a.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	anyHealthy := false
	for _, ep := range endpoints {
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, ep.url+a.healthPath, nil)
		if err != nil {
			a.recordResult(ep, 0, err, nil, true)
			continue
		}
		a.setHeaders(req)
		resp, err := a.client.Do(req)
		if err != nil {
			a.recordResult(ep, 0, err, nil, true)
			continue
		}
		resp.Body.Close()
		a.recordResult(ep, resp.StatusCode, nil, nil, true)
	}

	a.mu.RLock()
	for _, ep := range a.endpoints {
		if ep.healthy {
			anyHealthy = true
			break
		}
	}
	a.mu.RUnlock()
	return anyHealthy
}
