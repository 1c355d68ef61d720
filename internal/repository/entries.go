package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/jackc/pgx/v5"
)

const entryColumns = `id, operation_id, account_id, kind, currency, amount, balance_after,
	description, related_account_id, reference_id, prev_hash, hash, created_at`

const insertEntry = `
INSERT INTO ledger_entries (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

func (q *Queries) InsertEntry(ctx context.Context, e models.Entry) error {
	_, err := q.db.Exec(ctx, insertEntry,
		e.ID, e.OperationID, e.AccountID, string(e.Kind), string(e.Currency), e.Amount, e.BalanceAfter,
		e.Description, e.RelatedAccountID, e.ReferenceID, e.PrevHash, e.Hash, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

const getLastEntry = `
SELECT ` + entryColumns + `
FROM ledger_entries
WHERE account_id = $1 AND currency = $2
ORDER BY seq DESC
LIMIT 1
`

func (q *Queries) GetLastEntry(ctx context.Context, accountID string, currency domain.Currency) (models.Entry, error) {
	e, err := scanEntry(q.db.QueryRow(ctx, getLastEntry, accountID, string(currency)))
	if err != nil {
		return models.Entry{}, notFound(err)
	}
	return e, nil
}

const listEntries = `
SELECT ` + entryColumns + `
FROM ledger_entries
WHERE account_id = $1
ORDER BY seq DESC
LIMIT $2 OFFSET $3
`

func (q *Queries) ListEntries(ctx context.Context, arg ListEntriesParams) ([]models.Entry, error) {
	rows, err := q.db.Query(ctx, listEntries, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return collectEntries(rows)
}

const countEntries = `SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`

func (q *Queries) CountEntries(ctx context.Context, accountID string) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, countEntries, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

const listAccountCurrencyEntries = `
SELECT ` + entryColumns + `
FROM ledger_entries
WHERE account_id = $1 AND currency = $2
ORDER BY seq ASC
`

func (q *Queries) ListAccountCurrencyEntries(ctx context.Context, accountID string, currency domain.Currency) ([]models.Entry, error) {
	rows, err := q.db.Query(ctx, listAccountCurrencyEntries, accountID, string(currency))
	if err != nil {
		return nil, fmt.Errorf("list account entries: %w", err)
	}
	return collectEntries(rows)
}

const entryExistsForReference = `
SELECT EXISTS (
	SELECT 1 FROM ledger_entries
	WHERE account_id = $1 AND kind = $2 AND reference_id = $3
)
`

func (q *Queries) EntryExistsForReference(ctx context.Context, arg EntryReferenceParams) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, entryExistsForReference, arg.AccountID, string(arg.Kind), arg.ReferenceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check entry reference: %w", err)
	}
	return exists, nil
}

func scanEntry(row pgx.Row) (models.Entry, error) {
	var (
		e        models.Entry
		kind     string
		currency string
	)
	err := row.Scan(&e.ID, &e.OperationID, &e.AccountID, &kind, &currency, &e.Amount, &e.BalanceAfter,
		&e.Description, &e.RelatedAccountID, &e.ReferenceID, &e.PrevHash, &e.Hash, &e.CreatedAt)
	if err != nil {
		return models.Entry{}, err
	}
	e.Kind = domain.EntryKind(kind)
	e.Currency = domain.Currency(currency)
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]models.Entry, error) {
	defer rows.Close()
	var out []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
