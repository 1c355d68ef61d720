package handler

import (
	"net/http"

	"github.com/ayo6706/economy-ledger/internal/rewards"
	"github.com/ayo6706/economy-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

type RewardHandler struct {
	svc *service.RewardService
}

func NewRewardHandler(svc *service.RewardService) *RewardHandler {
	return &RewardHandler{svc: svc}
}

// EarningTargets handles GET /v1/earning-targets.
func (h *RewardHandler) EarningTargets(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	progress, err := h.svc.EarningTargets(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, "earning_targets", err)
		return
	}
	if progress == nil {
		progress = []rewards.TargetProgress{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"targets": progress})
}

// ClaimEarningTarget handles POST /v1/earning-targets/{tier}/claim.
func (h *RewardHandler) ClaimEarningTarget(w http.ResponseWriter, r *http.Request) {
	accountID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	entry, err := h.svc.ClaimEarningTarget(r.Context(), accountID, chi.URLParam(r, "tier"))
	if err != nil {
		writeServiceError(w, r, "earning_target_claim", err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}
