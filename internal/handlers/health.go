package handlers

import (
	"context"
	"net/http"

	"github.com/lojafacil/engine/internal/platform/httpx"
)

// HealthHandlers answers liveness and readiness probes. The readiness
// check is optional; without one /readyz mirrors /healthz.
type HealthHandlers struct {
	ready func(ctx context.Context) error
}

// NewHealthHandlers builds probe handlers with an optional readiness check.
func NewHealthHandlers(ready func(ctx context.Context) error) *HealthHandlers {
	return &HealthHandlers{ready: ready}
}

func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h != nil && h.ready != nil {
		if err := h.ready(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("not_ready", err.Error(), http.StatusServiceUnavailable))
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}
