package ledger

import (
	"errors"
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

func (h *Handler) Wallets(w http.ResponseWriter, r *http.Request, userID string) {
	summary, err := h.svc.Summary(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

type openWalletRequest struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

func (h *Handler) OpenWallet(w http.ResponseWriter, r *http.Request, userID string) {
	var req openWalletRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	wallet, err := h.svc.OpenWallet(r.Context(), userID, types.WalletKind(strings.ToLower(strings.TrimSpace(req.Kind))), req.Label)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wallet)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := httputil.Pagination(r, 50, 200)
	items, err := h.svc.Transactions(r.Context(), userID, model.TransactionFilter{
		Kind:   types.TransactionKind(r.URL.Query().Get("kind")),
		Status: types.TransactionStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) VerifyWallet(w http.ResponseWriter, r *http.Request, userID string) {
	walletID := chi.URLParam(r, "id")
	if err := h.svc.VerifyWalletChain(r.Context(), userID, walletID); err != nil {
		if errors.Is(err, ErrChainBroken) {
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"wallet_id": walletID, "valid": false, "detail": err.Error()})
			return
		}
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"wallet_id": walletID, "valid": true})
}

type depositRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Method    string `json:"method"`
}

func (h *Handler) RequestDeposit(w http.ResponseWriter, r *http.Request, userID string) {
	var req depositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	meta := map[string]any{}
	if req.Reference != "" {
		meta["payment_reference"] = strings.TrimSpace(req.Reference)
	}
	if req.Method != "" {
		meta["method"] = strings.TrimSpace(req.Method)
	}
	t, err := h.svc.RequestDeposit(r.Context(), userID, amount, meta)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

type withdrawRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	var req withdrawRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	kind := types.WalletKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = types.WalletKindRial
	}
	t, err := h.svc.Withdraw(r.Context(), userID, kind, amount, strings.TrimSpace(req.Destination))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

type transferRequest struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	Amount       string `json:"amount"`
	Note         string `json:"note"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request, userID string) {
	var req transferRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	res, err := h.svc.Transfer(r.Context(), userID, TransferRequest{
		FromWalletID: strings.TrimSpace(req.FromWalletID),
		ToWalletID:   strings.TrimSpace(req.ToWalletID),
		Amount:       amount,
		Note:         strings.TrimSpace(req.Note),
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}
