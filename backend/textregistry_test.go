package backend

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func textCfg(name string, models []string) Config {
	return Config{
		Name:      name,
		Protocol:  "openai",
		Endpoints: []string{"http://" + name + ".internal"},
		Enabled:   true,
		Models:    models,
	}
}

func TestTextRegistryAddRemove(t *testing.T) {
	r := NewTextRegistry(testLogger())
	if err := r.AddBackend(textCfg("a", []string{"m1"})); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := r.AddBackend(textCfg("b", []string{"m2"})); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if len(r.GetAllBackends()) != 2 {
		t.Fatalf("expected 2 backends")
	}
	if err := r.RemoveBackend("a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if _, ok := r.GetBackend("a"); ok {
		t.Fatalf("expected a to be absent after removal")
	}
}

func TestTextRegistryAddDuplicate(t *testing.T) {
	r := NewTextRegistry(testLogger())
	if err := r.AddBackend(textCfg("a", nil)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := r.AddBackend(textCfg("a", nil)); err == nil {
		t.Fatalf("expected BackendAlreadyExists on duplicate add")
	}
	if len(r.GetAllBackends()) != 1 {
		t.Fatalf("duplicate add must not mutate registry state")
	}
}

func TestGetBackendForModel(t *testing.T) {
	r := NewTextRegistry(testLogger())
	_ = r.AddBackend(textCfg("gpt-local", []string{"gpt-4", "gpt-3.5-turbo"}))

	a, err := r.GetBackendForModel("gpt-3.5-turbo", "")
	if err != nil || a.Name() != "gpt-local" {
		t.Fatalf("expected gpt-local for gpt-3.5-turbo, got %v err=%v", a, err)
	}

	if _, err := r.GetBackendForModel("claude-3", ""); err == nil {
		t.Fatalf("expected NoHealthyBackends for unmapped model with no fallback")
	}
}

func TestRemoveBackendPurgesModelMapping(t *testing.T) {
	r := NewTextRegistry(testLogger())
	_ = r.AddBackend(textCfg("n", []string{"m1", "m2"}))
	_ = r.RemoveBackend("n")

	if _, err := r.GetBackendForModel("m1", ""); err == nil {
		t.Fatalf("expected no backend for m1 after removal")
	}
}

func TestDuplicateModelSecondAddWins(t *testing.T) {
	r := NewTextRegistry(testLogger())
	_ = r.AddBackend(textCfg("first", []string{"shared-model"}))
	_ = r.AddBackend(textCfg("second", []string{"shared-model"}))

	a, err := r.GetBackendForModel("shared-model", "")
	if err != nil || a.Name() != "second" {
		t.Fatalf("expected second backend to own the mapping, got %v", a)
	}
}

func TestImageRegistryAddRemove(t *testing.T) {
	r := NewImageRegistry(testLogger())
	cfg := Config{Name: "sd", Protocol: "http", Endpoints: []string{"http://sd.internal"}, Enabled: true}
	if err := r.AddBackend(cfg); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddBackend(cfg); err == nil {
		t.Fatalf("expected BackendAlreadyExists")
	}
	if err := r.RemoveBackend("sd"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.RemoveBackend("sd"); err == nil {
		t.Fatalf("expected BackendNotFound on second removal")
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		w, h int
	}{
		{"1024x1024", 1024, 1024},
		{"512x768", 512, 768},
		{"invalid", 1024, 1024},
		{"", 1024, 1024},
	}
	for _, c := range cases {
		req := &ImageRequest{Size: c.in}
		w, h := req.ParseSize()
		if w != c.w || h != c.h {
			t.Errorf("ParseSize(%q) = (%d,%d), want (%d,%d)", c.in, w, h, c.w, c.h)
		}
	}
}
