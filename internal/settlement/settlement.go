// Package settlement notifies the downstream payment processor that an
// approved cash-out is ready to be disbursed. Delivery is fire-and-notify:
// the ledger never waits on the processor's outcome.
package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event is the payload published for every approved cash-out.
type Event struct {
	CashoutID        uuid.UUID       `json:"cashout_id"`
	AccountID        string          `json:"account_id"`
	AmountUSD        decimal.Decimal `json:"amount_usd"`
	DiamondsEscrowed int64           `json:"diamonds_escrowed"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentDetails   json.RawMessage `json:"payment_details,omitempty"`
	ReviewedBy       string          `json:"reviewed_by"`
	ApprovedAt       time.Time       `json:"approved_at"`
}

// EventFromCashout builds the settlement payload from an approved request.
func EventFromCashout(c models.CashoutRequest) Event {
	ev := Event{
		CashoutID:        c.ID,
		AccountID:        c.AccountID,
		AmountUSD:        c.AmountUSD,
		DiamondsEscrowed: c.DiamondsEscrowed,
		PaymentMethod:    c.PaymentMethod,
		PaymentDetails:   c.PaymentDetails,
		ApprovedAt:       c.UpdatedAt,
	}
	if c.ReviewedBy != nil {
		ev.ReviewedBy = *c.ReviewedBy
	}
	if c.ReviewedAt != nil {
		ev.ApprovedAt = *c.ReviewedAt
	}
	return ev
}

// Initiator hands approved cash-outs to the disbursement side.
type Initiator interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// LogInitiator only records the event. It is the default for local runs.
type LogInitiator struct{}

func NewLogInitiator() *LogInitiator {
	return &LogInitiator{}
}

func (LogInitiator) Name() string { return "log" }

func (LogInitiator) Notify(_ context.Context, ev Event) error {
	zap.L().Info("settlement requested",
		zap.String("cashout_id", ev.CashoutID.String()),
		zap.String("account_id", ev.AccountID),
		zap.String("amount_usd", ev.AmountUSD.StringFixed(2)),
		zap.String("payment_method", ev.PaymentMethod),
	)
	return nil
}
