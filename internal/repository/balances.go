package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/jackc/pgx/v5"
)

const getBalance = `
SELECT account_id, coins, diamonds, version, updated_at
FROM account_balances
WHERE account_id = $1
`

func (q *Queries) GetBalance(ctx context.Context, accountID string) (models.Balance, error) {
	var b models.Balance
	err := q.db.QueryRow(ctx, getBalance, accountID).Scan(&b.AccountID, &b.Coins, &b.Diamonds, &b.Version, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{AccountID: accountID}, nil
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// The first write for an account inserts the row; a concurrent first write
// loses the insert race and reports zero rows, which callers treat as a conflict.
const insertBalance = `
INSERT INTO account_balances (account_id, coins, diamonds, version, updated_at)
VALUES ($1, $2, $3, 1, $4)
ON CONFLICT (account_id) DO NOTHING
`

const casBalance = `
UPDATE account_balances
SET coins = $2, diamonds = $3, version = version + 1, updated_at = $5
WHERE account_id = $1 AND version = $4
`

func (q *Queries) CompareAndSwapBalance(ctx context.Context, arg CompareAndSwapBalanceParams) (int64, error) {
	if arg.ExpectedVersion == 0 {
		tag, err := q.db.Exec(ctx, insertBalance, arg.AccountID, arg.Coins, arg.Diamonds, arg.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("insert balance: %w", err)
		}
		return tag.RowsAffected(), nil
	}
	tag, err := q.db.Exec(ctx, casBalance, arg.AccountID, arg.Coins, arg.Diamonds, arg.ExpectedVersion, arg.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("compare and swap balance: %w", err)
	}
	return tag.RowsAffected(), nil
}

const listBalances = `
SELECT account_id, coins, diamonds, version, updated_at
FROM account_balances
WHERE account_id > $1
ORDER BY account_id
LIMIT $2
`

func (q *Queries) ListBalances(ctx context.Context, arg ListBalancesParams) ([]models.Balance, error) {
	rows, err := q.db.Query(ctx, listBalances, arg.AfterAccountID, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.AccountID, &b.Coins, &b.Diamonds, &b.Version, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
