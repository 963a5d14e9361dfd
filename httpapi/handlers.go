package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/neuralfoundry-coder/generative-img-serving/audit"
	"github.com/neuralfoundry-coder/generative-img-serving/backend"
	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// generateImage handles POST /v1/images/generations.
func (s *Server) generateImage(w http.ResponseWriter, r *http.Request) {
	var req backend.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "prompt is required")
		return
	}
	// N is a pointer so an explicit "n":0 (forwarded to the backend
	// unchanged, spec §8) is distinguishable from an omitted field
	// (defaulted to 1).
	if req.N == nil {
		one := 1
		req.N = &one
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "url"
	}
	width, height := req.ParseSize()
	req.Size = fmt.Sprintf("%dx%d", width, height)

	result, err := s.queue.Submit(r.Context(), &req, req.Backend)
	if err != nil {
		s.metrics.dispatchTotal.WithLabelValues(req.Backend, "error").Inc()
		writeGatewayError(w, err)
		return
	}
	s.metrics.dispatchTotal.WithLabelValues(result.Backend, "ok").Inc()
	s.metrics.selectionTotal.WithLabelValues(result.Backend, result.SelectedVia).Inc()
	w.Header().Set("X-Correlation-ID", result.CorrelationID)
	writeJSON(w, http.StatusOK, result.Response)
}

// chatCompletion handles POST /v1/chat/completions.
func (s *Server) chatCompletion(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "messages is required")
		return
	}

	adapter, err := s.textRegistry.GetBackendForModel(req.Model, req.Backend)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	resp, err := adapter.ChatCompletion(r.Context(), &req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// textCompletion handles POST /v1/completions.
func (s *Server) textCompletion(w http.ResponseWriter, r *http.Request) {
	var req backend.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "prompt is required")
		return
	}

	adapter, err := s.textRegistry.GetBackendForModel(req.Model, req.Backend)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	resp, err := adapter.TextCompletion(r.Context(), &req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listModels handles GET /v1/models: the union of image and text models
// (spec §6).
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	var out []backend.ModelInfo

	add := func(a backend.Adapter) {
		for _, m := range a.Models() {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, backend.ModelInfo{ID: m, Object: "model", OwnedBy: a.Name()})
		}
	}
	for _, a := range s.imageRegistry.GetAll() {
		add(a)
	}
	for _, a := range s.textRegistry.GetAllBackends() {
		add(a)
	}
	if out == nil {
		out = []backend.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, backend.ModelsResponse{Object: "list", Data: out})
}

// listImageBackends handles GET /v1/backends.
func (s *Server) listImageBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.imageRegistry.ListBackends(r.Context()))
}

// listTextBackends handles GET /v1/backends/text.
func (s *Server) listTextBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.textRegistry.ListBackends(r.Context()))
}

// backendAudit handles GET /v1/backends/audit: the most recent backend
// lifecycle events (add/remove/health transition), newest first. Accepts
// an optional ?limit= query param, default 100.
func (s *Server) backendAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditl == nil {
		writeJSON(w, http.StatusOK, []audit.Event{})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.auditl.Recent(r.Context(), limit)
	if err != nil {
		writeGatewayError(w, gwerrors.Internal("reading audit log: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// addBackendRequest mirrors spec §6's add-backend request shape.
type addBackendRequest struct {
	Name                    string   `json:"name"`
	Protocol                string   `json:"protocol"`
	Endpoints               []string `json:"endpoints"`
	HealthCheckPath         string   `json:"health_check_path"`
	HealthCheckIntervalSecs int      `json:"health_check_interval_secs"`
	TimeoutMs               int      `json:"timeout_ms"`
	Weight                  int      `json:"weight"`
	BackendType             string   `json:"backend_type"`
	Models                  []string `json:"models"`
}

// addBackend handles POST /v1/backends. Unknown protocol values default
// to http; unknown backend types default to image (spec §6).
func (s *Server) addBackend(w http.ResponseWriter, r *http.Request) {
	var req addBackendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || len(req.Endpoints) == 0 {
		writeError(w, http.StatusBadRequest, string(gwerrors.KindInvalidRequest), "name and endpoints are required")
		return
	}

	cfg := backend.Config{
		Name:                    req.Name,
		Protocol:                req.Protocol,
		Endpoints:               req.Endpoints,
		Enabled:                 true,
		HealthCheckPath:         req.HealthCheckPath,
		HealthCheckIntervalSecs: req.HealthCheckIntervalSecs,
		TimeoutMs:               req.TimeoutMs,
		Weight:                  req.Weight,
		Models:                  req.Models,
	}

	backendType := backend.ParseType(req.BackendType)

	var err error
	switch backendType {
	case backend.TypeText:
		err = s.textRegistry.AddBackend(cfg)
	default:
		err = s.imageRegistry.AddBackend(cfg)
	}
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	if s.auditl != nil {
		_ = s.auditl.Record(r.Context(), req.Name, audit.EventAdded, string(backendType))
	}
	w.WriteHeader(http.StatusCreated)
}

// removeBackend handles DELETE /v1/backends/{name}. It tries the image
// registry first, then the text registry, since the name is unique
// within each but the path carries no type hint (spec §6).
func (s *Server) removeBackend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := s.imageRegistry.RemoveBackend(name)
	if err != nil {
		err = s.textRegistry.RemoveBackend(name)
	}
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	if s.auditl != nil {
		_ = s.auditl.Record(r.Context(), name, audit.EventRemoved, "")
	}
	w.WriteHeader(http.StatusNoContent)
}

// health handles GET /health (unauthenticated): the combined summary of
// both health-check managers.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	imgTotal, imgHealthy, imgUnhealthy := s.imageHealth.GetHealthSummary()
	txtTotal, txtHealthy, txtUnhealthy := s.textHealth.GetHealthSummary()

	status := "healthy"
	if imgUnhealthy+txtUnhealthy > 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"image": map[string]int{
			"total": imgTotal, "healthy": imgHealthy, "unhealthy": imgUnhealthy,
		},
		"text": map[string]int{
			"total": txtTotal, "healthy": txtHealthy, "unhealthy": txtUnhealthy,
		},
	})
}
