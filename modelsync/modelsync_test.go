package modelsync

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
)

func TestSyncAllPopulatesCatalog(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"llama-3-8b","object":"model"},{"id":"llama-3-70b","object":"model"}]}`))
	}))
	defer upstream.Close()

	reg := backend.NewTextRegistry(zerolog.New(io.Discard))
	if err := reg.AddBackend(backend.Config{
		Name: "tgi", Protocol: "tgi", Endpoints: []string{upstream.URL}, Enabled: true,
	}); err != nil {
		t.Fatalf("add backend: %v", err)
	}

	s := New(reg, zerolog.New(io.Discard), 2*time.Second)
	s.syncAll()

	catalog := s.Catalog()
	ids := catalog["tgi"]
	if len(ids) != 2 {
		t.Fatalf("expected 2 models, got %v", ids)
	}
}

func TestSyncAllSkipsDisabledBackends(t *testing.T) {
	reg := backend.NewTextRegistry(zerolog.New(io.Discard))
	if err := reg.AddBackend(backend.Config{
		Name: "off", Protocol: "http", Endpoints: []string{"http://127.0.0.1:0"}, Enabled: false,
	}); err != nil {
		t.Fatalf("add backend: %v", err)
	}

	s := New(reg, zerolog.New(io.Discard), 2*time.Second)
	s.syncAll()

	if _, ok := s.Catalog()["off"]; ok {
		t.Fatalf("expected disabled backend to be skipped")
	}
}

func TestDiffAndLogDoesNotPanicOnEmptyPrevious(t *testing.T) {
	s := New(backend.NewTextRegistry(zerolog.New(io.Discard)), zerolog.New(io.Discard), time.Second)
	s.diffAndLog(map[string][]string{"tgi": {"model-a"}})
}
