package handler

import (
	"net/http"

	"github.com/pushtray/pushtray/internal/conn"
	"github.com/pushtray/pushtray/internal/dispatch"
)

// HealthHandler serves the liveness probe endpoint. The probe always
// answers 200 while the process is up; the push channel state rides
// along for operators, since a reconnecting daemon is alive but degraded.
type HealthHandler struct {
	mgr  *conn.Manager
	disp *dispatch.Dispatcher
}

func NewHealthHandler(mgr *conn.Manager, disp *dispatch.Dispatcher) *HealthHandler {
	return &HealthHandler{mgr: mgr, disp: disp}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"connection":    h.mgr.State(),
		"authenticated": h.disp.Authenticated(),
	})
}
