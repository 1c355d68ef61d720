package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/repository"
)

// Early rejection is allowed; early approval is not.
var cashoutTransitions = map[domain.CashoutStatus]map[domain.CashoutStatus]struct{}{
	domain.CashoutPending: {
		domain.CashoutClearedPendingApproval: {},
		domain.CashoutRejected:               {},
	},
	domain.CashoutClearedPendingApproval: {
		domain.CashoutApproved: {},
		domain.CashoutRejected: {},
	},
	domain.CashoutApproved: {},
	domain.CashoutRejected: {},
}

func canTransition(current, next domain.CashoutStatus) bool {
	nextStates, ok := cashoutTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

type cashoutTransition struct {
	next     domain.CashoutStatus
	actorID  *string
	reason   *string
	action   string
	metadata map[string]any
}

// transitionCashout moves c to t.next under the row lock the caller already
// holds, and writes the audit row in the same transaction.
func transitionCashout(ctx context.Context, qtx repository.Querier, audit *AuditService, c models.CashoutRequest, t cashoutTransition, now time.Time) (models.CashoutRequest, error) {
	if !canTransition(c.Status, t.next) {
		return c, fmt.Errorf("invalid cash-out transition %s -> %s", c.Status, t.next)
	}

	params := repository.UpdateCashoutStatusParams{
		ID:              c.ID,
		FromStatus:      c.Status,
		ToStatus:        t.next,
		RejectionReason: t.reason,
		UpdatedAt:       now,
	}
	if t.actorID != nil {
		params.ReviewedBy = t.actorID
		params.ReviewedAt = &now
	}
	rows, err := qtx.UpdateCashoutStatus(ctx, params)
	if err != nil {
		return c, err
	}
	if rows != 1 {
		// the row is locked by the caller, so a miss means the status guard is wrong
		return c, fmt.Errorf("cash-out %s %s -> %s updated %d rows", c.ID, c.Status, t.next, rows)
	}

	if err := audit.Write(ctx, qtx, "cashout", c.ID.String(), t.actorID, t.action, string(c.Status), string(t.next), t.metadata); err != nil {
		return c, err
	}

	c.Status = t.next
	c.UpdatedAt = now
	if t.actorID != nil {
		c.ReviewedBy = t.actorID
		reviewedAt := now
		c.ReviewedAt = &reviewedAt
	}
	if t.reason != nil {
		c.RejectionReason = t.reason
	}
	return c, nil
}
