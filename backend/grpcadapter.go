package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// gRPC image-backend wire schema (spec §4.1: "gRPC image adapter uses a
// separately-defined RPC schema for generate/health"). Method names
// mirror a conventional single-service proto without requiring one.
const (
	grpcServiceName        = "gateway.ImageBackend"
	grpcMethodGenerate      = "/" + grpcServiceName + "/GenerateImage"
	grpcMethodHealth        = "/" + grpcServiceName + "/HealthCheck"
	grpcMethodListModels    = "/" + grpcServiceName + "/ListModels"
)

type grpcHealthRequest struct{}

type grpcHealthResponse struct {
	Healthy bool `json:"healthy"`
}

// grpcAdapter implements Adapter for image backends speaking the gateway's
// JSON-over-gRPC schema. Text gRPC is not required (spec §4.1).
type grpcAdapter struct {
	name         string
	enabled      bool
	models       []string
	capabilities []string
	weight       int
	timeout      time.Duration

	mu        sync.RWMutex
	endpoints []*endpointState
	conns     []*grpc.ClientConn
	cursor    int
}

func newGRPCAdapter(cfg Config) (Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("backend name must not be empty")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("backend %q must declare at least one endpoint", cfg.Name)
	}
	hc := cfg.effectiveHealthCheck()

	endpoints := make([]*endpointState, len(cfg.Endpoints))
	conns := make([]*grpc.ClientConn, len(cfg.Endpoints))
	for i, target := range cfg.Endpoints {
		conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial grpc endpoint %s: %w", target, err)
		}
		endpoints[i] = &endpointState{url: target, healthy: true}
		conns[i] = conn
	}

	return &grpcAdapter{
		name:         cfg.Name,
		enabled:      cfg.Enabled,
		models:       cfg.Models,
		capabilities: cfg.Capabilities,
		weight:       cfg.effectiveWeight(),
		timeout:      timeoutDuration(hc.TimeoutSecs),
		endpoints:    endpoints,
		conns:        conns,
	}, nil
}

func (a *grpcAdapter) Name() string          { return a.name }
func (a *grpcAdapter) Protocol() Protocol     { return ProtocolGRPC }
func (a *grpcAdapter) Models() []string       { return a.models }
func (a *grpcAdapter) Capabilities() []string { return a.capabilities }
func (a *grpcAdapter) IsEnabled() bool        { return a.enabled }

func (a *grpcAdapter) Status() Status {
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
		Name: a.name, Protocol: string(ProtocolGRPC), Endpoints: urls, Healthy: healthy,
		Models: a.models, Capabilities: a.capabilities, Weight: a.weight, Enabled: a.enabled,
	}
}

func (a *grpcAdapter) nextConn() (*grpc.ClientConn, *endpointState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var healthyIdx []int
	for i, e := range a.endpoints {
		if e.healthy {
			healthyIdx = append(healthyIdx, i)
		}
	}
	if len(healthyIdx) == 0 {
		return nil, nil, gwerrors.NoHealthyEndpoints(a.name)
	}
	idx := healthyIdx[a.cursor%len(healthyIdx)]
	a.cursor++
	return a.conns[idx], a.endpoints[idx], nil
}

func (a *grpcAdapter) recordResult(ep *endpointState, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ep.lastCheck = time.Now()
	if err != nil {
		ep.consecutiveFailures++
		if ep.consecutiveFailures >= failureThreshold {
			ep.healthy = false
		}
		return
	}
	ep.healthy = true
	ep.consecutiveFailures = 0
}

func (a *grpcAdapter) invoke(ctx context.Context, method string, req, resp interface{}) error {
	conn, ep, err := a.nextConn()
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err = conn.Invoke(callCtx, method, req, resp, grpc.CallContentSubtype(jsonCodecName))
	a.recordResult(ep, err)
	if err != nil {
		return gwerrors.HTTPClient(err)
	}
	return nil
}

func (a *grpcAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return nil, gwerrors.BackendError("backend %s: chat completion not supported over gRPC", a.name)
}

func (a *grpcAdapter) TextCompletion(ctx context.Context, req *TextRequest) (*TextResponse, error) {
	return nil, gwerrors.BackendError("backend %s: text completion not supported over gRPC", a.name)
}

func (a *grpcAdapter) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	var resp ImageResponse
	if err := a.invoke(ctx, grpcMethodGenerate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *grpcAdapter) ListModels(ctx context.Context) (*ModelsResponse, error) {
	var resp ModelsResponse
	if err := a.invoke(ctx, grpcMethodListModels, &struct{}{}, &resp); err == nil {
		return &resp, nil
	}
	data := make([]ModelInfo, len(a.models))
	now := time.Now().Unix()
	for i, m := range a.models {
		data[i] = ModelInfo{ID: m, Object: "model", Created: now, OwnedBy: a.name}
	}
	return &ModelsResponse{Object: "list", Data: data}, nil
}

func (a *grpcAdapter) HealthProbe(ctx context.Context) bool {
	a.mu.RLock()
	endpoints := make([]*endpointState, len(a.endpoints))
	conns := make([]*grpc.ClientConn, len(a.conns))
	copy(endpoints, a.endpoints)
	copy(conns, a.conns)
	a.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	for i, ep := range endpoints {
		var resp grpcHealthResponse
		err := conns[i].Invoke(probeCtx, grpcMethodHealth, &grpcHealthRequest{}, &resp, grpc.CallContentSubtype(jsonCodecName))
		a.recordResult(ep, err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.endpoints {
		if e.healthy {
			return true
		}
	}
	return false
}
