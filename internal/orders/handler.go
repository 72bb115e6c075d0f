package orders

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

type placeOrderRequest struct {
	Side    string `json:"side"`
	Product string `json:"product"`
	Amount  string `json:"amount"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	o, err := h.svc.Create(r.Context(), PlaceOrderRequest{
		UserID:  userID,
		Side:    types.OrderSide(strings.ToLower(strings.TrimSpace(req.Side))),
		Product: types.ProductType(strings.ToLower(strings.TrimSpace(req.Product))),
		Amount:  amount,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	h.list(w, r, userID)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	o, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

// AdminList lists every user's orders, optionally narrowed by user_id.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, strings.TrimSpace(r.URL.Query().Get("user_id")))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := httputil.Pagination(r, 50, 200)
	items, err := h.svc.List(r.Context(), model.OrderFilter{
		UserID: userID,
		Status: types.OrderStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
