package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/observability"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/ayo6706/economy-ledger/internal/settlement"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	settlementNotifyTimeout = 10 * time.Second
	// approvals younger than this are left to the inline notification
	settlementRedeliverAfter = time.Minute
)

// CashoutService runs the withdrawal workflow: escrow at submission, a
// clearance hold, then manual approval or rejection.
type CashoutService struct {
	engine     *LedgerEngine
	economy    economy.Provider
	settlement settlement.Initiator
	audit      *AuditService
}

func NewCashoutService(engine *LedgerEngine, provider economy.Provider, initiator settlement.Initiator) *CashoutService {
	return &CashoutService{
		engine:     engine,
		economy:    provider,
		settlement: initiator,
		audit:      NewAuditService(engine.Now),
	}
}

type SubmitCashoutRequest struct {
	AccountID      string
	AmountUSD      decimal.Decimal
	PaymentMethod  string
	PaymentDetails json.RawMessage
}

// Submit escrows the diamonds and records the request in one transaction.
// If the escrow debit fails no request is created.
func (s *CashoutService) Submit(ctx context.Context, req SubmitCashoutRequest) (*models.CashoutRequest, error) {
	if err := domain.ValidateUSD(req.AmountUSD); err != nil {
		return nil, err
	}
	cfg, err := currentConfig(ctx, s.economy)
	if err != nil {
		return nil, err
	}
	if req.AmountUSD.LessThan(cfg.MinCashoutUSD) || req.AmountUSD.GreaterThan(cfg.MaxCashoutUSD) {
		return nil, fmt.Errorf("amount %s outside [%s, %s]: %w",
			req.AmountUSD.StringFixed(domain.USDScale), cfg.MinCashoutUSD.StringFixed(domain.USDScale),
			cfg.MaxCashoutUSD.StringFixed(domain.USDScale), domain.ErrOutOfRange)
	}
	diamonds, err := domain.DiamondsForUSD(req.AmountUSD, cfg.DiamondToUSDRate)
	if err != nil {
		return nil, err
	}

	now := s.engine.Now().UTC().Truncate(time.Microsecond)
	c := models.CashoutRequest{
		ID:               uuid.New(),
		AccountID:        req.AccountID,
		AmountUSD:        req.AmountUSD,
		DiamondsEscrowed: diamonds,
		PaymentMethod:    req.PaymentMethod,
		PaymentDetails:   req.PaymentDetails,
		Status:           domain.CashoutPending,
		RequestedAt:      now,
		ClearanceAt:      now.Add(cfg.ClearancePeriod()),
		UpdatedAt:        now,
	}
	ref := domain.RefPrefixCashout + c.ID.String()

	var res *PostResult
	err = s.engine.Transact(ctx, "cashout_submit", func(q repository.Querier) error {
		var err error
		res, err = s.engine.PostTx(ctx, q, Posting{
			AccountID:   c.AccountID,
			Currency:    domain.CurrencyDiamonds,
			Amount:      -diamonds,
			Kind:        domain.KindWithdrawal,
			Description: fmt.Sprintf("cash-out escrow for $%s", c.AmountUSD.StringFixed(domain.USDScale)),
			ReferenceID: &ref,
		})
		if err != nil {
			return err
		}
		if err := q.InsertCashout(ctx, c); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "cashout", c.ID.String(), &c.AccountID, "cashout_submitted", "", string(c.Status), map[string]any{
			"amount_usd":        c.AmountUSD.StringFixed(domain.USDScale),
			"diamonds_escrowed": diamonds,
			"rate":              cfg.DiamondToUSDRate.String(),
			"config_version":    cfg.Version,
		})
	})
	if err != nil {
		return nil, err
	}
	recordEntries(res.Entries)
	observability.IncrementCashoutTransition(string(domain.CashoutPending))
	zap.L().Info("cash-out submitted",
		zap.String("cashout_id", c.ID.String()),
		zap.String("account_id", c.AccountID),
		zap.Int64("diamonds_escrowed", diamonds),
	)
	return &c, nil
}

// PromoteCleared moves up to batch pending requests whose clearance time has
// passed to cleared_pending_approval. Safe to run from several workers.
func (s *CashoutService) PromoteCleared(ctx context.Context, now time.Time, batch int32) (int, error) {
	if batch <= 0 {
		batch = 50
	}
	promoted := 0
	err := s.engine.Store().RunInTx(ctx, func(q repository.Querier) error {
		promoted = 0
		due, err := q.ClaimDueCashouts(ctx, repository.ClaimDueCashoutsParams{Now: now, Limit: batch})
		if err != nil {
			return err
		}
		for _, c := range due {
			if _, err := transitionCashout(ctx, q, s.audit, c, cashoutTransition{
				next:   domain.CashoutClearedPendingApproval,
				action: "cashout_cleared",
			}, now.UTC()); err != nil {
				return fmt.Errorf("promote cash-out %s: %w", c.ID, err)
			}
			promoted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := 0; i < promoted; i++ {
		observability.IncrementCashoutTransition(string(domain.CashoutClearedPendingApproval))
	}
	return promoted, nil
}

// Approve finalizes a cleared request. Approving an already approved request
// returns it unchanged.
func (s *CashoutService) Approve(ctx context.Context, id uuid.UUID, reviewerID string) (*models.CashoutRequest, error) {
	var (
		out      models.CashoutRequest
		approved bool
	)
	err := s.engine.Store().RunInTx(ctx, func(q repository.Querier) error {
		approved = false
		c, err := lockCashout(ctx, q, id)
		if err != nil {
			return err
		}
		switch c.Status {
		case domain.CashoutApproved:
			out = c
			return nil
		case domain.CashoutRejected:
			return fmt.Errorf("cash-out %s is rejected: %w", id, domain.ErrAlreadyProcessed)
		case domain.CashoutPending:
			return fmt.Errorf("cash-out %s clears at %s: %w", id, c.ClearanceAt.Format(time.RFC3339), domain.ErrNotClearanceReached)
		}
		out, err = transitionCashout(ctx, q, s.audit, c, cashoutTransition{
			next:    domain.CashoutApproved,
			actorID: &reviewerID,
			action:  "cashout_approved",
		}, s.engine.Now().UTC().Truncate(time.Microsecond))
		if err != nil {
			return err
		}
		approved = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if approved {
		observability.IncrementCashoutTransition(string(domain.CashoutApproved))
		zap.L().Info("cash-out approved", zap.String("cashout_id", id.String()), zap.String("reviewer_id", reviewerID))
		s.notifySettlement(ctx, &out)
	}
	return &out, nil
}

// Reject refunds the escrow with a compensating entry in the same transaction
// as the status change. Rejecting an already rejected request returns it unchanged.
func (s *CashoutService) Reject(ctx context.Context, id uuid.UUID, reviewerID, reason string) (*models.CashoutRequest, error) {
	var (
		out      models.CashoutRequest
		res      *PostResult
		rejected bool
	)
	err := s.engine.Transact(ctx, "cashout_reject", func(q repository.Querier) error {
		rejected, res = false, nil
		c, err := lockCashout(ctx, q, id)
		if err != nil {
			return err
		}
		switch c.Status {
		case domain.CashoutRejected:
			out = c
			return nil
		case domain.CashoutApproved:
			return fmt.Errorf("cash-out %s is approved: %w", id, domain.ErrAlreadyProcessed)
		}

		ref := domain.RefPrefixCashout + c.ID.String()
		res, err = s.engine.PostTx(ctx, q, Posting{
			AccountID:   c.AccountID,
			Currency:    domain.CurrencyDiamonds,
			Amount:      c.DiamondsEscrowed,
			Kind:        domain.KindWithdrawalRefund,
			Description: "cash-out rejected: escrow refunded",
			ReferenceID: &ref,
		})
		if err != nil {
			return err
		}

		var reasonPtr *string
		if reason != "" {
			reasonPtr = &reason
		}
		out, err = transitionCashout(ctx, q, s.audit, c, cashoutTransition{
			next:     domain.CashoutRejected,
			actorID:  &reviewerID,
			reason:   reasonPtr,
			action:   "cashout_rejected",
			metadata: map[string]any{"refunded_diamonds": c.DiamondsEscrowed},
		}, s.engine.Now().UTC().Truncate(time.Microsecond))
		if err != nil {
			return err
		}
		rejected = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected {
		recordEntries(res.Entries)
		observability.IncrementCashoutTransition(string(domain.CashoutRejected))
		zap.L().Info("cash-out rejected", zap.String("cashout_id", id.String()), zap.String("reviewer_id", reviewerID))
	}
	return &out, nil
}

func (s *CashoutService) Get(ctx context.Context, id uuid.UUID) (*models.CashoutRequest, error) {
	c, err := s.engine.Store().Queries().GetCashout(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrCashoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cash-out: %w", err)
	}
	return &c, nil
}

func (s *CashoutService) ListForAccount(ctx context.Context, accountID string, limit, offset int32) ([]models.CashoutRequest, error) {
	limit, offset = clampPage(limit, offset)
	return s.engine.Store().Queries().ListCashouts(ctx, repository.ListCashoutsParams{
		AccountID: &accountID,
		Limit:     limit,
		Offset:    offset,
	})
}

// ListByStatus lists requests across accounts; a nil status lists all.
func (s *CashoutService) ListByStatus(ctx context.Context, status *domain.CashoutStatus, limit, offset int32) ([]models.CashoutRequest, error) {
	limit, offset = clampPage(limit, offset)
	return s.engine.Store().Queries().ListCashouts(ctx, repository.ListCashoutsParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *CashoutService) PendingApprovalCount(ctx context.Context) (int64, error) {
	n, err := s.engine.Store().Queries().CountCashoutsByStatus(ctx, domain.CashoutClearedPendingApproval)
	if err != nil {
		return 0, fmt.Errorf("count pending approval: %w", err)
	}
	return n, nil
}

// notifySettlement publishes the approval and records the acknowledgement.
// Failures are logged; RedeliverSettlements picks the request up later.
func (s *CashoutService) notifySettlement(ctx context.Context, c *models.CashoutRequest) {
	if s.settlement == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settlementNotifyTimeout)
	defer cancel()
	if err := s.sendSettlement(nctx, *c); err != nil {
		return
	}
	at := s.engine.Now().UTC().Truncate(time.Microsecond)
	if _, err := s.engine.Store().Queries().MarkCashoutSettlementNotified(nctx, c.ID, at); err != nil {
		zap.L().Warn("record settlement notification", zap.Error(err), zap.String("cashout_id", c.ID.String()))
		return
	}
	c.SettlementNotifiedAt = &at
}

// RedeliverSettlements re-sends the settlement event for up to batch approved
// requests that were never acknowledged. Delivery is at-least-once; consumers
// dedupe on cashout_id.
func (s *CashoutService) RedeliverSettlements(ctx context.Context, now time.Time, batch int32) (int, error) {
	if s.settlement == nil {
		return 0, nil
	}
	if batch <= 0 {
		batch = 50
	}
	delivered := 0
	err := s.engine.Store().RunInTx(ctx, func(q repository.Querier) error {
		delivered = 0
		stuck, err := q.ClaimUnsettledCashouts(ctx, repository.ClaimUnsettledCashoutsParams{
			ApprovedBefore: now.Add(-settlementRedeliverAfter),
			Limit:          batch,
		})
		if err != nil {
			return err
		}
		for _, c := range stuck {
			nctx, cancel := context.WithTimeout(ctx, settlementNotifyTimeout)
			err := s.sendSettlement(nctx, c)
			cancel()
			if err != nil {
				continue
			}
			if _, err := q.MarkCashoutSettlementNotified(ctx, c.ID, now.UTC()); err != nil {
				return fmt.Errorf("mark cash-out %s settled: %w", c.ID, err)
			}
			delivered++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if delivered > 0 {
		zap.L().Info("settlement events redelivered", zap.Int("count", delivered))
	}
	return delivered, nil
}

func (s *CashoutService) sendSettlement(ctx context.Context, c models.CashoutRequest) error {
	if err := s.settlement.Notify(ctx, settlement.EventFromCashout(c)); err != nil {
		observability.IncrementSettlementNotification(s.settlement.Name(), "failed")
		zap.L().Error("settlement notification failed",
			zap.Error(err),
			zap.String("cashout_id", c.ID.String()),
			zap.String("sink", s.settlement.Name()),
		)
		return err
	}
	observability.IncrementSettlementNotification(s.settlement.Name(), "sent")
	return nil
}

func lockCashout(ctx context.Context, q repository.Querier, id uuid.UUID) (models.CashoutRequest, error) {
	c, err := q.GetCashoutForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return c, domain.ErrCashoutNotFound
	}
	if err != nil {
		return c, fmt.Errorf("lock cash-out: %w", err)
	}
	return c, nil
}

func clampPage(limit, offset int32) (int32, int32) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func currentConfig(ctx context.Context, p economy.Provider) (*economy.Config, error) {
	cfg, err := p.Current(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConfigUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	if cfg == nil {
		return nil, domain.ErrConfigUnavailable
	}
	return cfg, nil
}
