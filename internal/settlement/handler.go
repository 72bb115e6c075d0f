package settlement

import (
	"context"
	"net/http"
	"strings"

	"lv-goldex/internal/httputil"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	wf *Workflow
}

func NewHandler(wf *Workflow) *Handler {
	return &Handler{wf: wf}
}

type transitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request, adminID string) {
	var req transitionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	status := types.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	o, err := h.wf.TransitionOrder(r.Context(), adminID, chi.URLParam(r, "id"), status, req.Note)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

type reviewRequest struct {
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

type reviewFunc func(ctx context.Context, adminID, txID, text string) (model.Transaction, error)

// review decodes an optional body and runs fn with the note or reason.
func (h *Handler) review(w http.ResponseWriter, r *http.Request, adminID string, fn reviewFunc) {
	var req reviewRequest
	if r.ContentLength != 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}
	text := req.Reason
	if text == "" {
		text = req.Note
	}
	t, err := fn(r.Context(), adminID, chi.URLParam(r, "id"), text)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request, adminID string) {
	h.review(w, r, adminID, h.wf.ApproveDeposit)
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request, adminID string) {
	h.review(w, r, adminID, h.wf.RejectDeposit)
}

func (h *Handler) ConfirmWithdraw(w http.ResponseWriter, r *http.Request, adminID string) {
	h.review(w, r, adminID, h.wf.ConfirmWithdraw)
}

func (h *Handler) RejectWithdraw(w http.ResponseWriter, r *http.Request, adminID string) {
	h.review(w, r, adminID, h.wf.RejectWithdraw)
}
