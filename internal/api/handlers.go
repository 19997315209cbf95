package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/yusufekorman/ratelimit-proxy/internal/counter"
	"github.com/yusufekorman/ratelimit-proxy/internal/engine"
	"github.com/yusufekorman/ratelimit-proxy/internal/obs"
)

type Handlers struct {
	engine  *engine.Engine
	manager *counter.Manager
	metrics *obs.Metrics
}

func NewHandlers(eng *engine.Engine, mgr *counter.Manager, metrics *obs.Metrics) *Handlers {
	return &Handlers{engine: eng, manager: mgr, metrics: metrics}
}

type allowResponse struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

type denyResponse struct {
	Allowed    bool `json:"allowed"`
	RetryAfter int  `json:"retryAfter"`
}

type healthResponse struct {
	Status          string `json:"status"`
	Redis           string `json:"redis"`
	MemoryStoreSize int64  `json:"memoryStoreSize"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RateLimit handles POST /ratelimit: one admission check per call.
func (h *Handlers) RateLimit(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	dec, err := h.engine.Check(r.Context(), req)
	if err != nil {
		var ve *engine.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error"})
		return
	}

	if !dec.Allowed {
		h.metrics.Decisions.WithLabelValues("denied").Inc()
		w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, denyResponse{Allowed: false, RetryAfter: dec.RetryAfter})
		return
	}

	h.metrics.Decisions.WithLabelValues("allowed").Inc()
	writeJSON(w, http.StatusOK, allowResponse{Allowed: true, Remaining: dec.Remaining})
}

// Health handles GET /health. The store-size figure reflects whichever
// backend is currently authoritative.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		Redis:           h.manager.Status(),
		MemoryStoreSize: h.manager.StoreSize(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
