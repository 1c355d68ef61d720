package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/economy-ledger/internal/db"
	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/ayo6706/economy-ledger/internal/service"
	"github.com/ayo6706/economy-ledger/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to LEDGER_TEST_DATABASE_URL, migrates it and wipes
// every table. Tests skip when the variable is unset.
func openTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	release := dblock.Acquire()
	t.Cleanup(release)

	require.NoError(t, db.Migrate(dsn))
	pool, err := db.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(),
		"TRUNCATE TABLE account_balances, ledger_entries, cashout_requests, audit_log, idempotency_keys")
	require.NoError(t, err)
	return pool
}

func TestPostgresBalanceCompareAndSwap(t *testing.T) {
	pool := openTestDB(t)
	q := repository.New(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	b, err := q.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.Zero(t, b.Version)

	n, err := q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "acc-1", Coins: 10, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// a second first-write loses the insert race
	n, err = q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "acc-1", Coins: 99, UpdatedAt: now})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "acc-1", ExpectedVersion: 1, Coins: 5, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "acc-1", ExpectedVersion: 1, Coins: 1, UpdatedAt: now})
	require.NoError(t, err)
	assert.Zero(t, n, "stale version must not write")

	_, err = q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "acc-1", ExpectedVersion: 2, Coins: -1, UpdatedAt: now})
	require.Error(t, err, "non-negative check constraint")

	b, err = q.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Coins)
	assert.Equal(t, int64(2), b.Version)
}

func TestPostgresLedgerRoundTrip(t *testing.T) {
	pool := openTestDB(t)
	store := repository.NewStore(pool)
	engine := service.NewLedgerEngine(store)
	ctx := context.Background()

	_, err := engine.Credit(ctx, service.Mutation{AccountID: "alice", Currency: domain.CurrencyCoins, Amount: 500, Kind: domain.KindDeposit})
	require.NoError(t, err)
	_, _, err = engine.Transfer(ctx, service.TransferRequest{From: "alice", To: "bob", Currency: domain.CurrencyCoins, Amount: 200})
	require.NoError(t, err)

	_, err = engine.Debit(ctx, service.Mutation{AccountID: "bob", Currency: domain.CurrencyCoins, Amount: 201, Kind: domain.KindTransferOut})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	q := store.Queries()
	total, err := q.CountEntries(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	entries, err := q.ListAccountCurrencyEntries(ctx, "alice", domain.CurrencyCoins)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, service.EntryHash(entries[1]), entries[1].Hash)

	report, err := service.NewReconciliationService(store).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
	assert.Equal(t, 2, report.Accounts)

	_, err = pool.Exec(ctx, "UPDATE ledger_entries SET amount = 1 WHERE account_id = 'alice'")
	require.Error(t, err, "ledger entries are append-only")
}

func TestPostgresOpposingTransfersDoNotDeadlock(t *testing.T) {
	pool := openTestDB(t)
	store := repository.NewStore(pool)
	engine := service.NewLedgerEngine(store).
		WithMaxAttempts(200).
		WithBackoff(time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	const (
		seed    = 1000
		workers = 8
		rounds  = 10
	)
	for _, acc := range []string{"alice", "bob"} {
		_, err := engine.Credit(ctx, service.Mutation{AccountID: acc, Currency: domain.CurrencyCoins, Amount: seed, Kind: domain.KindDeposit})
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		moved    = map[string]int64{}
		failures []error
	)
	run := func(from, to string) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _, err := engine.Transfer(ctx, service.TransferRequest{From: from, To: to, Currency: domain.CurrencyCoins, Amount: 1})
			mu.Lock()
			if err != nil {
				failures = append(failures, err)
			} else {
				moved[from]++
			}
			mu.Unlock()
		}
	}
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go run("alice", "bob")
		go run("bob", "alice")
	}
	wg.Wait()

	for _, err := range failures {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			assert.NotEqual(t, "40P01", pgErr.Code, "deadlock detected: %v", err)
		}
		assert.ErrorIs(t, err, domain.ErrConcurrencyExhausted)
	}

	q := store.Queries()
	alice, err := q.GetBalance(ctx, "alice")
	require.NoError(t, err)
	bob, err := q.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2*seed), alice.Coins+bob.Coins)
	assert.Equal(t, seed-moved["alice"]+moved["bob"], alice.Coins)

	for _, b := range []models.Balance{alice, bob} {
		last, err := q.GetLastEntry(ctx, b.AccountID, domain.CurrencyCoins)
		require.NoError(t, err)
		assert.Equal(t, b.Coins, last.BalanceAfter, b.AccountID)
	}

	report, err := service.NewReconciliationService(store).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
}

func TestPostgresIdempotencyKeys(t *testing.T) {
	pool := openTestDB(t)
	q := repository.New(pool)
	ctx := context.Background()

	_, err := q.GetIdempotencyKey(ctx, "k1")
	require.True(t, errors.Is(err, pgx.ErrNoRows))

	row, err := q.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{IdempotencyKey: "k1", RequestHash: "h", Method: "POST", Path: "/v1/wallet/exchange"})
	require.NoError(t, err)
	assert.True(t, row.InProgress)

	_, err = q.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{IdempotencyKey: "k1", RequestHash: "h", Method: "POST", Path: "/v1/wallet/exchange"})
	require.True(t, errors.Is(err, pgx.ErrNoRows))

	require.NoError(t, q.ReleaseIdempotencyKey(ctx, "k1", "h"))
	_, err = q.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{IdempotencyKey: "k1", RequestHash: "h", Method: "POST", Path: "/v1/wallet/exchange"})
	require.NoError(t, err)

	row, err = q.FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{IdempotencyKey: "k1", RequestHash: "h", ResponseStatus: 201, ResponseBody: []byte(`{}`), ContentType: "application/json"})
	require.NoError(t, err)
	assert.False(t, row.InProgress)
	assert.Equal(t, int32(201), row.ResponseStatus)
}

func TestPostgresCashoutQueries(t *testing.T) {
	pool := openTestDB(t)
	q := repository.New(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	c := models.CashoutRequest{
		ID:               uuid.New(),
		AmountUSD:        decimal.RequireFromString("10.00"),
		AccountID:        "creator",
		DiamondsEscrowed: 33334,
		PaymentMethod:    "paypal",
		Status:           domain.CashoutPending,
		RequestedAt:      now.Add(-8 * 24 * time.Hour),
		ClearanceAt:      now.Add(-24 * time.Hour),
		UpdatedAt:        now,
	}
	require.NoError(t, q.InsertCashout(ctx, c))

	due, err := q.ClaimDueCashouts(ctx, repository.ClaimDueCashoutsParams{Now: now, Limit: 10})
	require.NoError(t, err)
	require.Len(t, due, 1)

	n, err := q.UpdateCashoutStatus(ctx, repository.UpdateCashoutStatusParams{
		ID: c.ID, FromStatus: domain.CashoutPending, ToStatus: domain.CashoutClearedPendingApproval, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = q.UpdateCashoutStatus(ctx, repository.UpdateCashoutStatusParams{
		ID: c.ID, FromStatus: domain.CashoutPending, ToStatus: domain.CashoutRejected, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := q.CountCashoutsByStatus(ctx, domain.CashoutClearedPendingApproval)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := q.GetCashout(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountUSD.Equal(c.AmountUSD))
	assert.Equal(t, domain.CashoutClearedPendingApproval, got.Status)
	assert.Nil(t, got.SettlementNotifiedAt)

	reviewer := "admin-1"
	reviewedAt := now.Add(-time.Hour)
	n, err = q.UpdateCashoutStatus(ctx, repository.UpdateCashoutStatusParams{
		ID: c.ID, FromStatus: domain.CashoutClearedPendingApproval, ToStatus: domain.CashoutApproved,
		ReviewedBy: &reviewer, ReviewedAt: &reviewedAt, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unsettled, err := q.ClaimUnsettledCashouts(ctx, repository.ClaimUnsettledCashoutsParams{ApprovedBefore: now, Limit: 10})
	require.NoError(t, err)
	require.Len(t, unsettled, 1)

	n, err = q.MarkCashoutSettlementNotified(ctx, c.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = q.MarkCashoutSettlementNotified(ctx, c.ID, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	unsettled, err = q.ClaimUnsettledCashouts(ctx, repository.ClaimUnsettledCashoutsParams{ApprovedBefore: now, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}
