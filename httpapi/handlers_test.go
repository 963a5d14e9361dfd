package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/neuralfoundry-coder/generative-img-serving/audit"
	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwconfig"
	"github.com/neuralfoundry-coder/generative-img-serving/gwrouter"
	"github.com/neuralfoundry-coder/generative-img-serving/healthcheck"
	"github.com/neuralfoundry-coder/generative-img-serving/loadbalancer"
	"github.com/neuralfoundry-coder/generative-img-serving/requestqueue"
	"github.com/neuralfoundry-coder/generative-img-serving/storage"
)

func testServer(t *testing.T, upstream *httptest.Server) (*Server, *backend.ImageRegistry, *backend.TextRegistry) {
	t.Helper()
	logger := zerolog.New(io.Discard)

	imgReg := backend.NewImageRegistry(logger)
	txtReg := backend.NewTextRegistry(logger)
	if upstream != nil {
		if err := imgReg.AddBackend(backend.Config{
			Name: "sd", Protocol: "http", Endpoints: []string{upstream.URL}, Enabled: true,
		}); err != nil {
			t.Fatalf("add image backend: %v", err)
		}
	}

	lb := loadbalancer.New(imgReg)
	router := gwrouter.New(gwrouter.Config{FallbackEnabled: true}, imgReg, lb)
	queue := requestqueue.New(router, lb)

	imgHealth := healthcheck.New(healthcheck.ImageSource(imgReg), logger)
	txtHealth := healthcheck.New(healthcheck.TextSource(txtReg), logger)

	cfg := gwconfig.Default()
	cfg.Auth.Enabled = false

	urls := storage.NewUrlHandler(cfg.Storage.URLPrefix)

	s := NewServer(&cfg, imgReg, txtReg, lb, router, queue, imgHealth, txtHealth, nil, urls, nil, logger)
	return s, imgReg, txtReg
}

func TestGenerateImageHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[{"url":"http://example/1.png"}]}`))
	}))
	defer upstream.Close()

	s, _, _ := testServer(t, upstream)
	r := s.NewRouter()

	body, _ := json.Marshal(map[string]string{"prompt": "a cat", "backend": "sd"})
	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp backend.ImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].URL != "http://example/1.png" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGenerateImageDefaultsSize(t *testing.T) {
	var gotBody map[string]interface{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[{"url":"http://example/1.png"}]}`))
	}))
	defer upstream.Close()

	s, _, _ := testServer(t, upstream)
	r := s.NewRouter()

	body, _ := json.Marshal(map[string]string{"prompt": "a cat", "backend": "sd", "size": "not-a-size"})
	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotBody["size"] != "1024x1024" {
		t.Fatalf("expected size to default to 1024x1024 on parse failure, got %v", gotBody["size"])
	}
}

func TestGenerateImageMissingPrompt(t *testing.T) {
	s, _, _ := testServer(t, nil)
	r := s.NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAddAndRemoveBackend(t *testing.T) {
	s, imgReg, _ := testServer(t, nil)
	r := s.NewRouter()

	body, _ := json.Marshal(map[string]interface{}{
		"name": "new-backend", "endpoints": []string{"http://127.0.0.1:9"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/backends", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !imgReg.Contains("new-backend") {
		t.Fatalf("expected backend to be registered")
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/backends/new-backend", nil)
	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delRec.Code)
	}
	if imgReg.Contains("new-backend") {
		t.Fatalf("expected backend to be removed")
	}
}

func TestBackendAuditEndpoint(t *testing.T) {
	logger := zerolog.New(io.Discard)
	imgReg := backend.NewImageRegistry(logger)
	txtReg := backend.NewTextRegistry(logger)
	lb := loadbalancer.New(imgReg)
	router := gwrouter.New(gwrouter.Config{FallbackEnabled: true}, imgReg, lb)
	queue := requestqueue.New(router, lb)
	imgHealth := healthcheck.New(healthcheck.ImageSource(imgReg), logger)
	txtHealth := healthcheck.New(healthcheck.TextSource(txtReg), logger)
	cfg := gwconfig.Default()
	cfg.Auth.Enabled = false
	urls := storage.NewUrlHandler(cfg.Storage.URLPrefix)

	auditLog, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer auditLog.Close()

	s := NewServer(&cfg, imgReg, txtReg, lb, router, queue, imgHealth, txtHealth, nil, urls, auditLog, logger)
	r := s.NewRouter()

	body, _ := json.Marshal(map[string]interface{}{
		"name": "audited-backend", "endpoints": []string{"http://127.0.0.1:9"},
	})
	addReq := httptest.NewRequest(http.MethodPost, "/v1/backends", bytes.NewReader(body))
	addRec := httptest.NewRecorder()
	r.ServeHTTP(addRec, addReq)
	if addRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", addRec.Code, addRec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/backends/audit", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var events []audit.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Backend != "audited-backend" || events[0].Type != audit.EventAdded {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestHealthEndpointUnauthenticated(t *testing.T) {
	s, _, _ := testServer(t, nil)
	s.cfg.Auth.Enabled = true
	r := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestChatCompletionNoHealthyBackend(t *testing.T) {
	s, _, _ := testServer(t, nil)
	r := s.NewRouter()

	body, _ := json.Marshal(map[string]interface{}{
		"model": "claude-3", "messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}
