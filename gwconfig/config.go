// Package gwconfig loads and validates the gateway's YAML configuration,
// grounded on config/config.go's env-var loader pattern and
// original_source/src/config/settings.rs's struct shape, defaults, and
// validate() rules.
package gwconfig

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// AuthConfig gates the /v1 route group.
type AuthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	APIKeys     []string `yaml:"api_keys"`
	BypassPaths []string `yaml:"bypass_paths"`
}

// RateLimitConfig configures the fixed-window limiter in front of /v1.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	BurstSize         int  `yaml:"burst_size"`
}

// StorageConfig locates generated artifacts and their public URL prefix.
type StorageConfig struct {
	BasePath  string `yaml:"base_path"`
	URLPrefix string `yaml:"url_prefix"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RoutingConfig configures gwrouter's policy layer.
type RoutingConfig struct {
	DefaultStrategy string            `yaml:"default_strategy"`
	DefaultBackend  string            `yaml:"default_backend"`
	FallbackEnabled bool              `yaml:"fallback_enabled"`
	ModelMappings   map[string]string `yaml:"model_mappings"`
}

// Settings is the top-level configuration record (spec §6).
type Settings struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Routing   RoutingConfig   `yaml:"routing"`

	// Backends, either inline or split into per-type sections (spec §6).
	Backends      []backend.Config `yaml:"backends"`
	BackendGroups BackendGroups    `yaml:"backend_groups"`
}

// BackendGroups mirrors original_source's split-file backends.yaml shape.
type BackendGroups struct {
	Image []backend.Config `yaml:"image"`
	Text  []backend.Config `yaml:"text"`
	GRPC  []backend.Config `yaml:"grpc"`
}

// Default returns a Settings with every documented default applied
// (spec §6; original_source's Default impls for Settings/BackendConfig).
func Default() Settings {
	return Settings{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, GracefulTimeout: 15 * time.Second},
		Auth:   AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{
			Enabled: true, RequestsPerSecond: 100, BurstSize: 200,
		},
		Storage: StorageConfig{BasePath: "./generated", URLPrefix: "http://localhost:8080/files"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Routing: RoutingConfig{DefaultStrategy: "round_robin", FallbackEnabled: true},
	}
}

// Load reads gatewayPath (YAML), optionally merges a separate
// backendsPath, applies GEN_GATEWAY__ environment overrides, validates,
// and ensures a bootstrap API key exists.
func Load(gatewayPath, backendsPath string) (*Settings, error) {
	_ = godotenv.Load()

	settings := Default()

	if gatewayPath != "" {
		raw, err := os.ReadFile(gatewayPath)
		if err != nil {
			return nil, gwerrors.Config("read %s: %v", gatewayPath, err)
		}
		if err := yaml.Unmarshal(raw, &settings); err != nil {
			return nil, gwerrors.Config("parse %s: %v", gatewayPath, err)
		}
	}

	if backendsPath != "" {
		groups, err := readBackendGroups(backendsPath)
		if err != nil {
			return nil, err
		}
		settings.BackendGroups = groups
	}

	applyEnvOverrides(&settings)

	if err := ensureBootstrapAPIKey(&settings); err != nil {
		return nil, err
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// readBackendGroups parses a split backends.yaml file into BackendGroups.
func readBackendGroups(path string) (BackendGroups, error) {
	var groups BackendGroups
	raw, err := os.ReadFile(path)
	if err != nil {
		return groups, gwerrors.Config("read %s: %v", path, err)
	}
	if err := yaml.Unmarshal(raw, &groups); err != nil {
		return groups, gwerrors.Config("parse %s: %v", path, err)
	}
	return groups, nil
}

// AllBackendConfigs flattens inline Backends and BackendGroups into one
// list, tagging each entry's BackendType from the group it came from
// (original_source's flatten_backends).
func (s *Settings) AllBackendConfigs() []backend.Config {
	all := make([]backend.Config, 0, len(s.Backends))
	all = append(all, s.Backends...)
	for _, c := range s.BackendGroups.Image {
		c.BackendType = string(backend.TypeImage)
		all = append(all, c)
	}
	for _, c := range s.BackendGroups.Text {
		c.BackendType = string(backend.TypeText)
		all = append(all, c)
	}
	for _, c := range s.BackendGroups.GRPC {
		if c.BackendType == "" {
			c.BackendType = string(backend.TypeImage)
		}
		all = append(all, c)
	}
	return all
}

// Validate enforces the fatal-at-load-time rules from original_source's
// Settings::validate(): nonzero port, unique non-empty backend names,
// non-empty endpoint lists.
func (s *Settings) Validate() error {
	if s.Server.Port == 0 {
		return gwerrors.Config("server.port must not be 0")
	}
	seen := make(map[string]bool)
	for _, b := range s.AllBackendConfigs() {
		if b.Name == "" {
			return gwerrors.Config("backend name must not be empty")
		}
		if seen[b.Name] {
			return gwerrors.Config("duplicate backend name: %s", b.Name)
		}
		seen[b.Name] = true
		if len(b.Endpoints) == 0 {
			return gwerrors.Config("backend %s must declare at least one endpoint", b.Name)
		}
	}
	return nil
}

// ensureBootstrapAPIKey generates GEN_GATEWAY_API_KEY and persists it to
// .env when unset, so the operator has a key to use on first run
// (spec §6).
func ensureBootstrapAPIKey(s *Settings) error {
	if os.Getenv("GEN_GATEWAY_API_KEY") != "" {
		return nil
	}
	if len(s.Auth.APIKeys) > 0 {
		return nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return gwerrors.Config("generate bootstrap api key: %v", err)
	}
	key := "gw_" + hex.EncodeToString(buf)

	f, err := os.OpenFile(".env", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return gwerrors.Config("persist bootstrap api key: %v", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "GEN_GATEWAY_API_KEY=%s\n", key); err != nil {
		return gwerrors.Config("persist bootstrap api key: %v", err)
	}

	os.Setenv("GEN_GATEWAY_API_KEY", key)
	s.Auth.APIKeys = append(s.Auth.APIKeys, key)
	return nil
}

// applyEnvOverrides applies GEN_GATEWAY__<SECTION>__<KEY> overrides on
// top of the parsed YAML (spec §6; original_source's
// Environment::with_prefix("GEN_GATEWAY").separator("__")).
func applyEnvOverrides(s *Settings) {
	const prefix = "GEN_GATEWAY__"
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		segs := strings.Split(key, "__")
		val := parts[1]

		if len(segs) != 2 {
			continue
		}
		section, field := segs[0], segs[1]
		switch section {
		case "server":
			switch field {
			case "host":
				s.Server.Host = val
			case "port":
				if n, err := strconv.Atoi(val); err == nil {
					s.Server.Port = n
				}
			}
		case "auth":
			switch field {
			case "enabled":
				if b, err := strconv.ParseBool(val); err == nil {
					s.Auth.Enabled = b
				}
			}
		case "rate_limit":
			switch field {
			case "enabled":
				if b, err := strconv.ParseBool(val); err == nil {
					s.RateLimit.Enabled = b
				}
			case "requests_per_second":
				if n, err := strconv.Atoi(val); err == nil {
					s.RateLimit.RequestsPerSecond = n
				}
			}
		case "storage":
			switch field {
			case "base_path":
				s.Storage.BasePath = val
			case "url_prefix":
				s.Storage.URLPrefix = val
			}
		case "logging":
			switch field {
			case "level":
				s.Logging.Level = val
			case "format":
				s.Logging.Format = val
			}
		}
	}
}
