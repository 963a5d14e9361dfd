package backend

import (
	"context"
	"time"
)

// Protocol tags a backend's wire protocol family.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolOpenAI    Protocol = "openai"
	ProtocolAnthropic Protocol = "anthropic"
	ProtocolTGI       Protocol = "tgi"
	ProtocolGRPC      Protocol = "grpc"
)

// ParseProtocol maps a config/request string to a Protocol, defaulting
// unknown values to http (spec §6, §9 "config-driven enum parsing").
func ParseProtocol(s string) Protocol {
	switch Protocol(s) {
	case ProtocolHTTP, ProtocolOpenAI, ProtocolAnthropic, ProtocolTGI, ProtocolGRPC:
		return Protocol(s)
	default:
		return ProtocolHTTP
	}
}

// Type distinguishes which registry a BackendConfig belongs in.
type Type string

const (
	TypeImage Type = "image"
	TypeText  Type = "text"
	TypeMulti Type = "multi"
)

// ParseType maps a config/request string to a Type, defaulting unknown
// values to image (spec §6).
func ParseType(s string) Type {
	switch Type(s) {
	case TypeImage, TypeText, TypeMulti:
		return Type(s)
	default:
		return TypeImage
	}
}

// AuthConfig describes how an adapter authenticates to its upstream.
type AuthConfig struct {
	Type      string `yaml:"type"`
	TokenEnv  string `yaml:"token_env"`
	APIKey    string `yaml:"api_key"`
	HeaderName string `yaml:"header_name"`
}

// HealthCheckConfig configures an adapter's background probe.
type HealthCheckConfig struct {
	Path          string `yaml:"path"`
	IntervalSecs  int    `yaml:"interval_secs"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
}

// LoadBalancerConfig carries per-backend load-balancing hints.
type LoadBalancerConfig struct {
	Strategy string `yaml:"strategy"`
	Weight   int    `yaml:"weight"`
}

// Config is the BackendConfig input record (spec §3). Legacy flat fields
// (HealthCheckPath, HealthCheckIntervalSecs, TimeoutMs, Weight) mirror
// the nested ones, following original_source's settings.rs.
type Config struct {
	Name         string             `yaml:"name"`
	BackendType  string             `yaml:"backend_type"`
	Protocol     string             `yaml:"protocol"`
	Endpoints    []string           `yaml:"endpoints"`
	Enabled      bool               `yaml:"enabled"`
	Auth         AuthConfig         `yaml:"auth"`
	HealthCheck  HealthCheckConfig  `yaml:"health_check"`
	LoadBalancer LoadBalancerConfig `yaml:"load_balancer"`
	Models       []string           `yaml:"models"`
	Capabilities []string           `yaml:"capabilities"`

	// Legacy flat fields, used when the nested form is absent.
	HealthCheckPath         string `yaml:"health_check_path"`
	HealthCheckIntervalSecs int    `yaml:"health_check_interval_secs"`
	TimeoutMs               int    `yaml:"timeout_ms"`
	Weight                  int    `yaml:"weight"`
}

// effectiveHealthCheck resolves the nested or legacy health-check fields,
// applying spec defaults (path "/health", interval 30s, timeout 5s).
func (c Config) effectiveHealthCheck() HealthCheckConfig {
	hc := c.HealthCheck
	if hc.Path == "" {
		hc.Path = c.HealthCheckPath
	}
	if hc.Path == "" {
		hc.Path = "/health"
	}
	if hc.IntervalSecs == 0 {
		hc.IntervalSecs = c.HealthCheckIntervalSecs
	}
	if hc.IntervalSecs == 0 {
		hc.IntervalSecs = 30
	}
	if hc.TimeoutSecs == 0 {
		if c.TimeoutMs > 0 {
			hc.TimeoutSecs = c.TimeoutMs / 1000
			if hc.TimeoutSecs == 0 {
				hc.TimeoutSecs = 1
			}
		} else {
			hc.TimeoutSecs = 5
		}
	}
	return hc
}

func (c Config) effectiveWeight() int {
	if c.LoadBalancer.Weight > 0 {
		return c.LoadBalancer.Weight
	}
	if c.Weight > 0 {
		return c.Weight
	}
	return 1
}

// Adapter is the protocol-specific runtime object for one configured
// backend (spec §4.1). One Adapter owns one client, an ordered endpoint
// list with independent health state, and a round-robin cursor.
type Adapter interface {
	Name() string
	Protocol() Protocol
	Models() []string
	Capabilities() []string
	IsEnabled() bool
	Status() Status

	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	TextCompletion(ctx context.Context, req *TextRequest) (*TextResponse, error)
	// GenerateImage is only meaningful for image adapters. The http,
	// openai, tgi and anthropic adapters forward it to the upstream's
	// /images/generations whichever registry holds them; the gRPC adapter
	// instead returns a BackendError from the chat and text completions.
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
	ListModels(ctx context.Context) (*ModelsResponse, error)

	// HealthProbe probes every endpoint and updates health state,
	// returning true iff at least one endpoint is healthy afterward.
	HealthProbe(ctx context.Context) bool
}

// New constructs the protocol-matched Adapter for cfg. Callers
// (registries) decide whether construction failure is fatal or skipped.
func New(cfg Config) (Adapter, error) {
	proto := ParseProtocol(cfg.Protocol)
	switch proto {
	case ProtocolGRPC:
		return newGRPCAdapter(cfg)
	case ProtocolAnthropic:
		return newAnthropicAdapter(cfg)
	default:
		return newHTTPAdapter(cfg, proto)
	}
}

func timeoutDuration(secs int) time.Duration {
	if secs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}
