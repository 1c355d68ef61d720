package handler

import (
	"net/http"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/service"
)

// InternalHandler serves the service-to-service routes used by the game,
// gift and reward systems. Callers pass realized amounts.
type InternalHandler struct {
	wallet  *service.WalletService
	rewards *service.RewardService
}

func NewInternalHandler(wallet *service.WalletService, rewards *service.RewardService) *InternalHandler {
	return &InternalHandler{wallet: wallet, rewards: rewards}
}

type mutationRequest struct {
	AccountID   string `json:"account_id" validate:"required,max=128"`
	Currency    string `json:"currency" validate:"required,oneof=coins diamonds"`
	Amount      int64  `json:"amount"`
	Kind        string `json:"kind" validate:"required"`
	Description string `json:"description" validate:"max=256"`
	ReferenceID string `json:"reference_id" validate:"max=128"`
}

func (req mutationRequest) mutation() service.Mutation {
	m := service.Mutation{
		AccountID:   req.AccountID,
		Currency:    domain.Currency(req.Currency),
		Amount:      req.Amount,
		Kind:        domain.EntryKind(req.Kind),
		Description: req.Description,
	}
	if req.ReferenceID != "" {
		ref := req.ReferenceID
		m.ReferenceID = &ref
	}
	return m
}

// Credit handles POST /v1/internal/ledger/credit.
func (h *InternalHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	entry, err := h.wallet.Credit(r.Context(), req.mutation())
	if err != nil {
		writeServiceError(w, r, "credit", err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

// Debit handles POST /v1/internal/ledger/debit.
func (h *InternalHandler) Debit(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	entry, err := h.wallet.Debit(r.Context(), req.mutation())
	if err != nil {
		writeServiceError(w, r, "debit", err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

type giftRequest struct {
	FromAccountID    string `json:"from_account_id" validate:"required,max=128"`
	ToAccountID      string `json:"to_account_id" validate:"required,max=128"`
	CoinCost         int64  `json:"coin_cost"`
	DiamondsCredited int64  `json:"diamonds_credited"`
	GiftRef          string `json:"gift_ref" validate:"max=128"`
}

// Gift handles POST /v1/internal/gifts.
func (h *InternalHandler) Gift(w http.ResponseWriter, r *http.Request) {
	var req giftRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	sent, received, err := h.wallet.Gift(r.Context(), service.GiftRequest{
		From:             req.FromAccountID,
		To:               req.ToAccountID,
		CoinCost:         req.CoinCost,
		DiamondsCredited: req.DiamondsCredited,
		GiftRef:          req.GiftRef,
	})
	if err != nil {
		writeServiceError(w, r, "gift", err)
		return
	}
	body := map[string]any{"operation_id": sent.OperationID, "sent": sent}
	if received.ID != "" {
		body["received"] = received
	}
	RespondJSON(w, http.StatusCreated, body)
}

type dailyRewardRequest struct {
	AccountID  string `json:"account_id" validate:"required,max=128"`
	VIPTier    int    `json:"vip_tier"`
	DayInCycle int    `json:"day_in_cycle"`
}

// DailyReward handles POST /v1/internal/rewards/daily. The caller has already
// checked that the account has not claimed today.
func (h *InternalHandler) DailyReward(w http.ResponseWriter, r *http.Request) {
	var req dailyRewardRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	entry, err := h.rewards.ClaimDaily(r.Context(), req.AccountID, req.VIPTier, req.DayInCycle)
	if err != nil {
		writeServiceError(w, r, "daily_reward", err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

type referralRequest struct {
	ReferrerID string `json:"referrer_id" validate:"required,max=128"`
	RefereeID  string `json:"referee_id" validate:"required,max=128"`
}

// Referral handles POST /v1/internal/rewards/referral.
func (h *InternalHandler) Referral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	entries, err := h.rewards.GrantReferral(r.Context(), req.ReferrerID, req.RefereeID)
	if err != nil {
		writeServiceError(w, r, "referral_bonus", err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

type eventRewardRequest struct {
	AccountID string `json:"account_id" validate:"required,max=128"`
	Currency  string `json:"currency" validate:"required,oneof=coins diamonds"`
	Amount    int64  `json:"amount"`
	EventID   string `json:"event_id" validate:"required,max=128"`
}

// EventReward handles POST /v1/internal/rewards/event.
func (h *InternalHandler) EventReward(w http.ResponseWriter, r *http.Request) {
	var req eventRewardRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	entry, err := h.rewards.GrantEventReward(r.Context(), req.AccountID, domain.Currency(req.Currency), req.Amount, req.EventID)
	if err != nil {
		writeServiceError(w, r, "event_reward", err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}
