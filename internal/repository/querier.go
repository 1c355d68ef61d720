package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Querier is the data access contract shared by the Postgres and in-memory stores.
type Querier interface {
	// GetBalance returns a zero balance with version 0 when the account has no row yet.
	GetBalance(ctx context.Context, accountID string) (models.Balance, error)
	// CompareAndSwapBalance writes the new amounts only if the stored version equals
	// ExpectedVersion and returns the number of rows written (0 on conflict).
	CompareAndSwapBalance(ctx context.Context, arg CompareAndSwapBalanceParams) (int64, error)
	ListBalances(ctx context.Context, arg ListBalancesParams) ([]models.Balance, error)

	InsertEntry(ctx context.Context, e models.Entry) error
	GetLastEntry(ctx context.Context, accountID string, currency domain.Currency) (models.Entry, error)
	ListEntries(ctx context.Context, arg ListEntriesParams) ([]models.Entry, error)
	CountEntries(ctx context.Context, accountID string) (int64, error)
	ListAccountCurrencyEntries(ctx context.Context, accountID string, currency domain.Currency) ([]models.Entry, error)
	EntryExistsForReference(ctx context.Context, arg EntryReferenceParams) (bool, error)

	InsertCashout(ctx context.Context, c models.CashoutRequest) error
	GetCashout(ctx context.Context, id uuid.UUID) (models.CashoutRequest, error)
	GetCashoutForUpdate(ctx context.Context, id uuid.UUID) (models.CashoutRequest, error)
	UpdateCashoutStatus(ctx context.Context, arg UpdateCashoutStatusParams) (int64, error)
	ListCashouts(ctx context.Context, arg ListCashoutsParams) ([]models.CashoutRequest, error)
	CountCashoutsByStatus(ctx context.Context, status domain.CashoutStatus) (int64, error)
	ClaimDueCashouts(ctx context.Context, arg ClaimDueCashoutsParams) ([]models.CashoutRequest, error)
	// ClaimUnsettledCashouts locks approved requests whose settlement event was never acknowledged.
	ClaimUnsettledCashouts(ctx context.Context, arg ClaimUnsettledCashoutsParams) ([]models.CashoutRequest, error)
	MarkCashoutSettlementNotified(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)

	InsertAuditLog(ctx context.Context, rec models.AuditRecord) error
}

type CompareAndSwapBalanceParams struct {
	AccountID       string
	ExpectedVersion int64
	Coins           int64
	Diamonds        int64
	UpdatedAt       time.Time
}

type ListBalancesParams struct {
	AfterAccountID string
	Limit          int32
}

type ListEntriesParams struct {
	AccountID string
	Limit     int32
	Offset    int32
}

type EntryReferenceParams struct {
	AccountID   string
	Kind        domain.EntryKind
	ReferenceID string
}

type UpdateCashoutStatusParams struct {
	ID              uuid.UUID
	FromStatus      domain.CashoutStatus
	ToStatus        domain.CashoutStatus
	ReviewedBy      *string
	ReviewedAt      *time.Time
	RejectionReason *string
	UpdatedAt       time.Time
}

type ListCashoutsParams struct {
	AccountID *string
	Status    *domain.CashoutStatus
	Limit     int32
	Offset    int32
}

type ClaimDueCashoutsParams struct {
	Now   time.Time
	Limit int32
}

type ClaimUnsettledCashoutsParams struct {
	ApprovedBefore time.Time
	Limit          int32
}
