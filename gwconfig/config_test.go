package gwconfig

import (
	"os"
	"testing"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
)

func minimalBackend(name string) backend.Config {
	return backend.Config{Name: name, Protocol: "http", Endpoints: []string{"http://" + name}, Enabled: true}
}

func TestValidateRejectsZeroPort(t *testing.T) {
	s := Default()
	s.Server.Port = 0
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for port 0")
	}
}

func TestValidateRejectsEmptyEndpoints(t *testing.T) {
	s := Default()
	s.Backends = append(s.Backends, backend.Config{Name: "noendpoints"})
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for backend with no endpoints")
	}
}

func TestValidateRejectsDuplicateName(t *testing.T) {
	s := Default()
	cfg1 := minimalBackend("dup")
	cfg2 := minimalBackend("dup")
	s.Backends = append(s.Backends, cfg1, cfg2)
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for duplicate backend name")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("GEN_GATEWAY__SERVER__PORT", "9090")
	defer os.Unsetenv("GEN_GATEWAY__SERVER__PORT")

	s := Default()
	applyEnvOverrides(&s)
	if s.Server.Port != 9090 {
		t.Fatalf("expected port override to 9090, got %d", s.Server.Port)
	}
}
