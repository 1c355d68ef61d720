package models

import (
	"encoding/json"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is the per-account wallet row.
type Balance struct {
	AccountID string    `json:"account_id"`
	Coins     int64     `json:"coins"`
	Diamonds  int64     `json:"diamonds"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Amount returns the balance held in currency c.
func (b Balance) Amount(c domain.Currency) int64 {
	if c == domain.CurrencyDiamonds {
		return b.Diamonds
	}
	return b.Coins
}

// With returns a copy of b with currency c set to amount.
func (b Balance) With(c domain.Currency, amount int64) Balance {
	if c == domain.CurrencyDiamonds {
		b.Diamonds = amount
	} else {
		b.Coins = amount
	}
	return b
}

// Entry is an immutable transaction log record.
type Entry struct {
	ID               string           `json:"id"`
	OperationID      string           `json:"operation_id"`
	AccountID        string           `json:"account_id"`
	Kind             domain.EntryKind `json:"kind"`
	Currency         domain.Currency  `json:"currency"`
	Amount           int64            `json:"amount"`
	BalanceAfter     int64            `json:"balance_after"`
	Description      string           `json:"description"`
	RelatedAccountID *string          `json:"related_account_id,omitempty"`
	ReferenceID      *string          `json:"reference_id,omitempty"`
	PrevHash         string           `json:"-"`
	Hash             string           `json:"-"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ExchangeResult reports a diamonds to coins conversion.
type ExchangeResult struct {
	DiamondsUsed  int64   `json:"diamonds_used"`
	CoinsReceived int64   `json:"coins_received"`
	NewBalance    Balance `json:"new_balance"`
	DebitEntry    Entry   `json:"-"`
	CreditEntry   Entry   `json:"-"`
}

// CashoutRequest is a withdrawal of diamonds to real money.
type CashoutRequest struct {
	ID               uuid.UUID            `json:"id"`
	AccountID        string               `json:"account_id"`
	AmountUSD        decimal.Decimal      `json:"amount_usd"`
	DiamondsEscrowed int64                `json:"diamonds_escrowed"`
	PaymentMethod    string               `json:"payment_method"`
	PaymentDetails   json.RawMessage      `json:"payment_details,omitempty"`
	Status           domain.CashoutStatus `json:"status"`
	RequestedAt      time.Time            `json:"requested_at"`
	ClearanceAt      time.Time            `json:"clearance_at"`
	ReviewedBy       *string              `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time           `json:"reviewed_at,omitempty"`
	RejectionReason  *string              `json:"rejection_reason,omitempty"`
	// SettlementNotifiedAt is set once the processor has accepted the approval event.
	SettlementNotifiedAt *time.Time `json:"settlement_notified_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// AuditRecord is one immutable state-change record.
type AuditRecord struct {
	EntityType string
	EntityID   string
	ActorID    *string
	Action     string
	PrevState  string
	NextState  string
	Metadata   []byte
	CreatedAt  time.Time
}
