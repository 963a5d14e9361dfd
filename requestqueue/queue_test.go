package requestqueue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwrouter"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
)

func TestSubmitRoutesAndGeneratesImage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[{"url":"http://example/1.png"}]}`))
	}))
	defer upstream.Close()

	reg := backend.NewImageRegistry(zerolog.New(io.Discard))
	if err := reg.AddBackend(backend.Config{
		Name: "sd", Protocol: "http", Endpoints: []string{upstream.URL}, Enabled: true,
	}); err != nil {
		t.Fatalf("add backend: %v", err)
	}

	lb := loadbalancer.New(reg)
	router := gwrouter.New(gwrouter.Config{FallbackEnabled: true}, reg, lb)
	q := New(router, lb)

	res, err := q.Submit(context.Background(), &backend.ImageRequest{Prompt: "a cat"}, "sd")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.CorrelationID == "" {
		t.Fatalf("expected non-empty correlation id")
	}
	if len(res.Response.Data) != 1 || res.Response.Data[0].URL != "http://example/1.png" {
		t.Fatalf("unexpected response: %+v", res.Response)
	}
}

func TestSubmitUnknownBackendFails(t *testing.T) {
	reg := backend.NewImageRegistry(zerolog.New(io.Discard))
	lb := loadbalancer.New(reg)
	router := gwrouter.New(gwrouter.Config{}, reg, lb)
	q := New(router, lb)

	if _, err := q.Submit(context.Background(), &backend.ImageRequest{Prompt: "x"}, "missing"); err == nil {
		t.Fatalf("expected error for nonexistent explicit backend")
	}
}
