package handler

import (
	"net/http"

	"github.com/pushtray/pushtray/internal/conn"
	"github.com/pushtray/pushtray/internal/dispatch"
	"github.com/pushtray/pushtray/internal/store"
)

// StatsHandler serves a human-readable JSON snapshot of the subsystem.
// Raw Prometheus metrics (counters, gauges) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type StatsHandler struct {
	store *store.Store
	mgr   *conn.Manager
	disp  *dispatch.Dispatcher
}

func NewStatsHandler(st *store.Store, mgr *conn.Manager, disp *dispatch.Dispatcher) *StatsHandler {
	return &StatsHandler{store: st, mgr: mgr, disp: disp}
}

// GetStats handles GET /api/v1/stats
//
// @Summary  Real-time subsystem snapshot
// @Tags     stats
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/stats [get]
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": map[string]int{
			"active":   h.store.Len(),
			"capacity": h.store.Capacity(),
		},
		"connection": map[string]any{
			"state":         h.mgr.State(),
			"retries":       h.mgr.Retries(),
			"authenticated": h.disp.Authenticated(),
		},
	})
}
