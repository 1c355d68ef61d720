package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/observability"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"go.uber.org/zap"
)

const reconciliationPageSize = 200

// Drift reasons reported by reconciliation.
const (
	DriftRunningSum = "running_sum"
	DriftHashChain  = "hash_chain"
	DriftStore      = "store_mismatch"
)

// Drift describes one account/currency chain that failed verification.
type Drift struct {
	AccountID string
	Currency  domain.Currency
	Reason    string
	EntryID   string
	Expected  int64
	Actual    int64
}

// ReconciliationReport summarizes one full pass.
type ReconciliationReport struct {
	Accounts int
	Entries  int
	Drifts   []Drift
}

// ReconciliationService verifies the transaction log against the balance store.
// It only reports; nothing is repaired.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run walks every account and checks both currency chains.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	queries := s.store.Queries()
	report := &ReconciliationReport{}
	after := ""
	for {
		balances, err := queries.ListBalances(ctx, repository.ListBalancesParams{
			AfterAccountID: after,
			Limit:          reconciliationPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list balances: %w", err)
		}
		for _, b := range balances {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Accounts++
			for _, c := range []domain.Currency{domain.CurrencyCoins, domain.CurrencyDiamonds} {
				n, drift, err := s.verifyChain(ctx, queries, b, c)
				if err != nil {
					return nil, err
				}
				report.Entries += n
				if drift != nil {
					report.Drifts = append(report.Drifts, *drift)
				}
			}
		}
		if len(balances) < reconciliationPageSize {
			break
		}
		after = balances[len(balances)-1].AccountID
	}

	if len(report.Drifts) == 0 {
		zap.L().Info("ledger reconciled", zap.Int("accounts", report.Accounts), zap.Int("entries", report.Entries))
	}
	return report, nil
}

func (s *ReconciliationService) verifyChain(ctx context.Context, q repository.Querier, b models.Balance, c domain.Currency) (int, *Drift, error) {
	entries, err := q.ListAccountCurrencyEntries(ctx, b.AccountID, c)
	if err != nil {
		return 0, nil, fmt.Errorf("list %s entries for %s: %w", c, b.AccountID, err)
	}

	var (
		running  int64
		prevHash string
	)
	for _, e := range entries {
		running += e.Amount
		if e.BalanceAfter != running {
			return len(entries), reportDrift(Drift{
				AccountID: b.AccountID, Currency: c, Reason: DriftRunningSum,
				EntryID: e.ID, Expected: running, Actual: e.BalanceAfter,
			}), nil
		}
		if e.PrevHash != prevHash || EntryHash(e) != e.Hash {
			return len(entries), reportDrift(Drift{
				AccountID: b.AccountID, Currency: c, Reason: DriftHashChain,
				EntryID: e.ID, Expected: running, Actual: e.BalanceAfter,
			}), nil
		}
		prevHash = e.Hash
	}

	if stored := b.Amount(c); stored != running {
		return len(entries), reportDrift(Drift{
			AccountID: b.AccountID, Currency: c, Reason: DriftStore,
			Expected: running, Actual: stored,
		}), nil
	}
	return len(entries), nil, nil
}

func reportDrift(d Drift) *Drift {
	observability.IncrementLedgerDrift(string(d.Currency), d.Reason)
	zap.L().Error("CRITICAL: ledger drift detected",
		zap.String("account_id", d.AccountID),
		zap.String("currency", string(d.Currency)),
		zap.String("reason", d.Reason),
		zap.String("entry_id", d.EntryID),
		zap.Int64("expected", d.Expected),
		zap.Int64("actual", d.Actual),
	)
	return &d
}
