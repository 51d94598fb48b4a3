package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/pushtray/pushtray/internal/api/middleware"
	"github.com/pushtray/pushtray/internal/domain"
	"github.com/pushtray/pushtray/internal/store"
)

// NotificationHandler exposes the store over HTTP for an out-of-process
// presentation layer.
type NotificationHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewNotificationHandler(st *store.Store, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: st, logger: logger}
}

// Create handles POST /api/v1/notifications
//
// The body is either a single draft object or an array of drafts, the
// same shape the push channel delivers. Every element is validated, and
// caller-supplied ids are checked for conflicts, before any insert; a
// failing element rejects the whole request.
//
// @Summary  Create one or more notifications
// @Tags     notifications
// @Accept   json
// @Produce  json
// @Success  201  {object}  map[string]any
// @Failure  400  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/notifications [post]
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	candidates, err := domain.SplitPayload(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(candidates) == 0 {
		mapError(w, domain.ErrEmptyPayload)
		return
	}

	drafts := make([]domain.Draft, 0, len(candidates))
	for i, raw := range candidates {
		var d domain.Draft
		if err := json.Unmarshal(raw, &d); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("item %d: invalid JSON", i))
			return
		}
		if err := d.Validate(); err != nil {
			h.logger.Warn("create notification rejected",
				zap.Int("item", i),
				zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
				zap.Error(err),
			)
			mapError(w, fmt.Errorf("item %d: %w", i, err))
			return
		}
		drafts = append(drafts, d)
	}
	if err := h.checkIDConflicts(drafts); err != nil {
		mapError(w, err)
		return
	}

	ids := make([]string, 0, len(drafts))
	for i, d := range drafts {
		id, err := h.store.Add(d)
		if err != nil {
			// Only reachable when a concurrent insert claimed an id
			// between the conflict check and here.
			mapError(w, fmt.Errorf("item %d: %w", i, err))
			return
		}
		ids = append(ids, id)
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"ids":   ids,
		"count": len(ids),
	})
}

// List handles GET /api/v1/notifications
//
// @Summary  List active notifications in insertion order
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.store.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"count": len(items),
	})
}

// Dismiss handles DELETE /api/v1/notifications/{id}
//
// Dismissal is idempotent: an unknown id is a no-op and still answers
// 204, matching the store's remove contract.
//
// @Summary  Dismiss a notification
// @Tags     notifications
// @Param    id  path  string  true  "Notification id"
// @Success  204
// @Router   /api/v1/notifications/{id} [delete]
func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.store.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/notifications
//
// @Summary  Remove every active notification
// @Tags     notifications
// @Success  204
// @Router   /api/v1/notifications [delete]
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// checkIDConflicts rejects caller-supplied ids that collide with an
// active item or with each other, before any element is inserted.
func (h *NotificationHandler) checkIDConflicts(drafts []domain.Draft) error {
	active := make(map[string]bool)
	for _, it := range h.store.Snapshot() {
		active[it.ID] = true
	}
	for i, d := range drafts {
		if d.ID == "" {
			continue
		}
		if active[d.ID] {
			return fmt.Errorf("item %d: %w", i, domain.ErrDuplicateID)
		}
		active[d.ID] = true
	}
	return nil
}
