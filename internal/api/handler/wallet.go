package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/service"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

type walletView struct {
	Coins       int64     `json:"coins"`
	Diamonds    int64     `json:"diamonds"`
	LastUpdated time.Time `json:"last_updated"`
}

func newWalletView(b models.Balance) walletView {
	return walletView{Coins: b.Coins, Diamonds: b.Diamonds, LastUpdated: b.UpdatedAt}
}

// GetWallet handles GET /v1/wallet.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	b, err := h.svc.GetWallet(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, "get_wallet", err)
		return
	}
	RespondJSON(w, http.StatusOK, newWalletView(b))
}

type exchangeRequest struct {
	Diamonds int64 `json:"diamonds"`
}

type exchangeResponse struct {
	DiamondsUsed  int64      `json:"diamonds_used"`
	CoinsReceived int64      `json:"coins_received"`
	NewBalance    walletView `json:"new_balance"`
}

// Exchange handles POST /v1/wallet/exchange.
func (h *WalletHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req exchangeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, err := h.svc.Exchange(r.Context(), accountID, req.Diamonds)
	if err != nil {
		writeServiceError(w, r, "exchange", err)
		return
	}
	RespondJSON(w, http.StatusOK, exchangeResponse{
		DiamondsUsed:  res.DiamondsUsed,
		CoinsReceived: res.CoinsReceived,
		NewBalance:    newWalletView(res.NewBalance),
	})
}

// ListTransactions handles GET /v1/wallet/transactions?page=&page_size=.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	page, ok := queryInt(r, "page", 1, 1)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page", "page must be a positive integer")
		return
	}
	pageSize, ok := queryInt(r, "page_size", 20, 1)
	if !ok || pageSize > 100 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page-size", "page_size must be between 1 and 100")
		return
	}

	entries, total, err := h.svc.ListTransactions(r.Context(), accountID, page, pageSize)
	if err != nil {
		writeServiceError(w, r, "list_transactions", err)
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":     entries,
		"page":      page,
		"page_size": pageSize,
		"total":     total,
	})
}

type transferRequest struct {
	ToUserID    string `json:"to_user_id" validate:"required,max=128"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency" validate:"omitempty,oneof=coins diamonds"`
	Description string `json:"description" validate:"max=256"`
}

// Transfer handles POST /v1/wallet/transfer.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	currency := domain.CurrencyCoins
	if req.Currency != "" {
		currency = domain.Currency(req.Currency)
	}

	debit, credit, err := h.svc.Transfer(r.Context(), service.TransferRequest{
		From:        accountID,
		To:          req.ToUserID,
		Currency:    currency,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, "transfer", err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]any{
		"operation_id": debit.OperationID,
		"debit":        debit,
		"credit":       credit,
	})
}
