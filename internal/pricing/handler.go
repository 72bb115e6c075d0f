package pricing

import (
	"context"
	"errors"
	"net/http"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/httputil"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Setter interface {
	SetPrice(ctx context.Context, product types.ProductType, buy, sell decimal.Decimal, updatedBy string) (model.Quote, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, product types.ProductType) error
}

type Handler struct {
	source Source
	setter Setter
	cache  Invalidator
}

// NewHandler wires the read path through source and admin writes through
// setter. cache may be nil when no quote cache is configured.
func NewHandler(source Source, setter Setter, cache Invalidator) *Handler {
	return &Handler{source: source, setter: setter, cache: cache}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]model.Quote, 0, len(types.Products))
	for _, p := range types.Products {
		q, err := h.source.GetActivePrice(r.Context(), p)
		if errors.Is(err, apperr.ErrPriceUnavailable) {
			continue
		}
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		out = append(out, q)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

type setPriceRequest struct {
	BuyPrice  string `json:"buy_price"`
	SellPrice string `json:"sell_price"`
}

func (h *Handler) Set(w http.ResponseWriter, r *http.Request, adminID string) {
	product := types.ProductType(chi.URLParam(r, "product"))
	var req setPriceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	buy, err := decimal.NewFromString(req.BuyPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid buy_price"})
		return
	}
	sell, err := decimal.NewFromString(req.SellPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid sell_price"})
		return
	}
	q, err := h.setter.SetPrice(r.Context(), product, buy, sell, adminID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if h.cache != nil {
		_ = h.cache.Invalidate(r.Context(), product)
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}
