package delivery

import (
	"net/http"
	"strings"

	"lv-goldex/internal/httputil"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Product string `json:"product"`
	Amount  string `json:"amount"`
	Address string `json:"address"`
	Note    string `json:"note"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, userID string) {
	var req createRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	d, err := h.svc.Create(r.Context(), CreateRequest{
		UserID:  userID,
		Product: types.ProductType(strings.ToLower(strings.TrimSpace(req.Product))),
		Amount:  amount,
		Address: req.Address,
		Note:    req.Note,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	h.list(w, r, userID)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, strings.TrimSpace(r.URL.Query().Get("user_id")))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := httputil.Pagination(r, 50, 200)
	items, err := h.svc.List(r.Context(), model.DeliveryFilter{
		UserID: userID,
		Status: types.DeliveryStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request, adminID string) {
	var req transitionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	status := types.DeliveryStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	d, err := h.svc.Transition(r.Context(), adminID, chi.URLParam(r, "id"), status, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}
