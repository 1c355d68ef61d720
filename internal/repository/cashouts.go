package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const cashoutColumns = `id, account_id, amount_usd::text, diamonds_escrowed, payment_method, payment_details,
	status, requested_at, clearance_at, reviewed_by, reviewed_at, rejection_reason, settlement_notified_at, updated_at`

const insertCashout = `
INSERT INTO cashout_requests (
	id, account_id, amount_usd, diamonds_escrowed, payment_method, payment_details,
	status, requested_at, clearance_at, updated_at
) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10)
`

func (q *Queries) InsertCashout(ctx context.Context, c models.CashoutRequest) error {
	details := []byte(c.PaymentDetails)
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := q.db.Exec(ctx, insertCashout,
		c.ID, c.AccountID, c.AmountUSD.StringFixed(domain.USDScale), c.DiamondsEscrowed, c.PaymentMethod, details,
		string(c.Status), c.RequestedAt, c.ClearanceAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cashout: %w", err)
	}
	return nil
}

const getCashout = `SELECT ` + cashoutColumns + ` FROM cashout_requests WHERE id = $1`

func (q *Queries) GetCashout(ctx context.Context, id uuid.UUID) (models.CashoutRequest, error) {
	c, err := scanCashout(q.db.QueryRow(ctx, getCashout, id))
	if err != nil {
		return models.CashoutRequest{}, notFound(err)
	}
	return c, nil
}

func (q *Queries) GetCashoutForUpdate(ctx context.Context, id uuid.UUID) (models.CashoutRequest, error) {
	c, err := scanCashout(q.db.QueryRow(ctx, getCashout+` FOR UPDATE`, id))
	if err != nil {
		return models.CashoutRequest{}, notFound(err)
	}
	return c, nil
}

const updateCashoutStatus = `
UPDATE cashout_requests
SET status = $3,
	reviewed_by = COALESCE($4, reviewed_by),
	reviewed_at = COALESCE($5, reviewed_at),
	rejection_reason = COALESCE($6, rejection_reason),
	updated_at = $7
WHERE id = $1 AND status = $2
`

func (q *Queries) UpdateCashoutStatus(ctx context.Context, arg UpdateCashoutStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateCashoutStatus,
		arg.ID, string(arg.FromStatus), string(arg.ToStatus),
		arg.ReviewedBy, arg.ReviewedAt, arg.RejectionReason, arg.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("update cashout status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListCashouts(ctx context.Context, arg ListCashoutsParams) ([]models.CashoutRequest, error) {
	var (
		where []string
		args  []interface{}
	)
	if arg.AccountID != nil {
		args = append(args, *arg.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if arg.Status != nil {
		args = append(args, string(*arg.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + cashoutColumns + ` FROM cashout_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, arg.Limit, arg.Offset)
	query += fmt.Sprintf(` ORDER BY requested_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cashouts: %w", err)
	}
	return collectCashouts(rows)
}

const countCashoutsByStatus = `SELECT COUNT(*) FROM cashout_requests WHERE status = $1`

func (q *Queries) CountCashoutsByStatus(ctx context.Context, status domain.CashoutStatus) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, countCashoutsByStatus, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cashouts: %w", err)
	}
	return n, nil
}

// Rows locked by another worker are skipped, so concurrent sweeps never
// promote the same request twice.
const claimDueCashouts = `
SELECT ` + cashoutColumns + `
FROM cashout_requests
WHERE status = 'pending' AND clearance_at <= $1
ORDER BY clearance_at
LIMIT $2
FOR UPDATE SKIP LOCKED
`

func (q *Queries) ClaimDueCashouts(ctx context.Context, arg ClaimDueCashoutsParams) ([]models.CashoutRequest, error) {
	rows, err := q.db.Query(ctx, claimDueCashouts, arg.Now, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("claim due cashouts: %w", err)
	}
	return collectCashouts(rows)
}

const claimUnsettledCashouts = `
SELECT ` + cashoutColumns + `
FROM cashout_requests
WHERE status = 'approved' AND settlement_notified_at IS NULL AND reviewed_at <= $1
ORDER BY reviewed_at
LIMIT $2
FOR UPDATE SKIP LOCKED
`

func (q *Queries) ClaimUnsettledCashouts(ctx context.Context, arg ClaimUnsettledCashoutsParams) ([]models.CashoutRequest, error) {
	rows, err := q.db.Query(ctx, claimUnsettledCashouts, arg.ApprovedBefore, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("claim unsettled cashouts: %w", err)
	}
	return collectCashouts(rows)
}

const markCashoutSettlementNotified = `
UPDATE cashout_requests
SET settlement_notified_at = $2
WHERE id = $1 AND status = 'approved' AND settlement_notified_at IS NULL
`

func (q *Queries) MarkCashoutSettlementNotified(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, markCashoutSettlementNotified, id, at)
	if err != nil {
		return 0, fmt.Errorf("mark cashout settled: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCashout(row pgx.Row) (models.CashoutRequest, error) {
	var (
		c       models.CashoutRequest
		amount  string
		status  string
		details []byte
	)
	err := row.Scan(&c.ID, &c.AccountID, &amount, &c.DiamondsEscrowed, &c.PaymentMethod, &details,
		&status, &c.RequestedAt, &c.ClearanceAt, &c.ReviewedBy, &c.ReviewedAt, &c.RejectionReason, &c.SettlementNotifiedAt, &c.UpdatedAt)
	if err != nil {
		return models.CashoutRequest{}, err
	}
	c.AmountUSD, err = decimal.NewFromString(amount)
	if err != nil {
		return models.CashoutRequest{}, fmt.Errorf("parse amount_usd: %w", err)
	}
	c.Status = domain.CashoutStatus(status)
	c.PaymentDetails = details
	return c, nil
}

func collectCashouts(rows pgx.Rows) ([]models.CashoutRequest, error) {
	defer rows.Close()
	var out []models.CashoutRequest
	for rows.Next() {
		c, err := scanCashout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cashout: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
