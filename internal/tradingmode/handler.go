package tradingmode

import (
	"context"
	"net/http"

	"lv-goldex/internal/httputil"
	"lv-goldex/internal/model"
)

type Writer interface {
	Reader
	Set(ctx context.Context, paused bool, message, updatedBy string, expectedVersion int64) (model.TradingMode, error)
}

type Handler struct {
	store Writer
}

func NewHandler(store Writer) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	mode, err := h.store.Get(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mode)
}

type setModeRequest struct {
	TradingPaused bool   `json:"trading_paused"`
	Message       string `json:"message"`
	Version       int64  `json:"version"`
}

func (h *Handler) Set(w http.ResponseWriter, r *http.Request, adminID string) {
	var req setModeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	mode, err := h.store.Set(r.Context(), req.TradingPaused, req.Message, adminID, req.Version)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mode)
}
