package notify

import (
	"context"
	"net/http"

	"lv-goldex/internal/httputil"
	"lv-goldex/internal/model"

	"github.com/go-chi/chi/v5"
)

type InboxReader interface {
	List(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type Handler struct {
	inbox InboxReader
}

func NewHandler(inbox InboxReader) *Handler {
	return &Handler{inbox: inbox}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := httputil.Pagination(r, 50, 200)
	items, err := h.inbox.List(r.Context(), userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.inbox.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
