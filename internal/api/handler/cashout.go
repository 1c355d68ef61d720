package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashoutHandler serves both the owner and the admin cash-out routes.
type CashoutHandler struct {
	svc *service.CashoutService
}

func NewCashoutHandler(svc *service.CashoutService) *CashoutHandler {
	return &CashoutHandler{svc: svc}
}

type createCashoutRequest struct {
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	PaymentMethod  string          `json:"payment_method" validate:"required,max=64"`
	PaymentDetails json.RawMessage `json:"payment_details"`
}

// CreateCashout handles POST /v1/cashouts.
func (h *CashoutHandler) CreateCashout(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req createCashoutRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if len(req.PaymentDetails) > 0 && !json.Valid(req.PaymentDetails) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "payment_details must be a JSON value")
		return
	}

	c, err := h.svc.Submit(r.Context(), service.SubmitCashoutRequest{
		AccountID:      accountID,
		AmountUSD:      req.AmountUSD,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		writeServiceError(w, r, "cashout_submit", err)
		return
	}
	RespondJSON(w, http.StatusCreated, c)
}

// ListMyCashouts handles GET /v1/cashouts.
func (h *CashoutHandler) ListMyCashouts(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		writeServiceError(w, r, "cashout_list", err)
		return
	}
	respondCashoutPage(w, items, limit, offset, nil)
}

// GetCashout handles GET /v1/cashouts/{id}; owners and admins only.
func (h *CashoutHandler) GetCashout(w http.ResponseWriter, r *http.Request) {
	accountID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	id, ok := cashoutID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "cashout_get", err)
		return
	}
	if !isAdmin && c.AccountID != accountID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	RespondJSON(w, http.StatusOK, c)
}

// AdminListCashouts handles GET /v1/admin/cashouts?status=&limit=&offset=.
func (h *CashoutHandler) AdminListCashouts(w http.ResponseWriter, r *http.Request) {
	var status *domain.CashoutStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseCashoutStatus(raw)
		if !ok {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-status", "unknown cash-out status")
			return
		}
		status = &st
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		writeServiceError(w, r, "cashout_admin_list", err)
		return
	}

	var pending *int64
	if status != nil && *status == domain.CashoutClearedPendingApproval {
		if n, err := h.svc.PendingApprovalCount(r.Context()); err == nil {
			pending = &n
		}
	}
	respondCashoutPage(w, items, limit, offset, pending)
}

// Approve handles POST /v1/admin/cashouts/{id}/approve.
func (h *CashoutHandler) Approve(w http.ResponseWriter, r *http.Request) {
	reviewerID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	id, ok := cashoutID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Approve(r.Context(), id, reviewerID)
	if err != nil {
		writeServiceError(w, r, "cashout_approve", err)
		return
	}
	RespondJSON(w, http.StatusOK, c)
}

type rejectCashoutRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Reject handles POST /v1/admin/cashouts/{id}/reject.
func (h *CashoutHandler) Reject(w http.ResponseWriter, r *http.Request) {
	reviewerID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	id, ok := cashoutID(w, r)
	if !ok {
		return
	}
	var req rejectCashoutRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	c, err := h.svc.Reject(r.Context(), id, reviewerID, req.Reason)
	if err != nil {
		writeServiceError(w, r, "cashout_reject", err)
		return
	}
	RespondJSON(w, http.StatusOK, c)
}

func cashoutID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-cashout-id", "Invalid cash-out ID")
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int32, ok bool) {
	l, ok := queryInt(r, "limit", 50, 1)
	if !ok || l > 500 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be between 1 and 500")
		return 0, 0, false
	}
	o, ok := queryInt(r, "offset", 0, 0)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
		return 0, 0, false
	}
	return int32(l), int32(o), true
}

func respondCashoutPage(w http.ResponseWriter, items []models.CashoutRequest, limit, offset int32, total *int64) {
	if items == nil {
		items = []models.CashoutRequest{}
	}
	body := map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	}
	if total != nil {
		body["total_count"] = *total
	}
	RespondJSON(w, http.StatusOK, body)
}
