package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is anything whose reachability can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	stores map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler checks every named store on each probe.
func NewHealthHandler(stores map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{stores: stores, logger: logger}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth reports 200 when every store answers, 503 otherwise.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.stores))}
	status := http.StatusOK

	for name, p := range h.stores {
		if err := p.Ping(ctx); err != nil {
			h.logger.Error("health check failed", slog.String("store", name), slog.String("error", err.Error()))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
