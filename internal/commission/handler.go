package commission

import (
	"context"
	"net/http"

	"lv-goldex/internal/httputil"
	"lv-goldex/internal/model"
)

type RuleLister interface {
	List(ctx context.Context) ([]model.CommissionRule, error)
}

type Handler struct {
	rules RuleLister
}

func NewHandler(rules RuleLister) *Handler {
	return &Handler{rules: rules}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.rules.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
