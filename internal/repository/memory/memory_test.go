package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAndSwapBalance(t *testing.T) {
	ctx := context.Background()
	q := New().Queries()

	b, err := q.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Version)

	n, err := q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "alice", ExpectedVersion: 0, Coins: 10, UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// stale version
	n, err = q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "alice", ExpectedVersion: 0, Coins: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	b, err = q.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Coins)
	assert.Equal(t, int64(1), b.Version)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(q repository.Querier) error {
		_, err := q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "bob", Diamonds: 5})
		require.NoError(t, err)
		require.NoError(t, q.InsertEntry(ctx, models.Entry{ID: "e1", AccountID: "bob", Currency: domain.CurrencyDiamonds, Amount: 5, BalanceAfter: 5}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.Queries().GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Diamonds)
	assert.Empty(t, s.Entries())
}

func TestInjectConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.InjectConflicts("carol", 1)

	n, err := s.Queries().CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "carol", Coins: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.Queries().CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{AccountID: "carol", Coins: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListEntriesNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	q := New().Queries()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.InsertEntry(ctx, models.Entry{ID: id, AccountID: "dave", Currency: domain.CurrencyCoins, Amount: 1, BalanceAfter: int64(i + 1)}))
	}
	require.NoError(t, q.InsertEntry(ctx, models.Entry{ID: "x", AccountID: "erin", Currency: domain.CurrencyCoins, Amount: 1, BalanceAfter: 1}))

	got, err := q.ListEntries(ctx, repository.ListEntriesParams{AccountID: "dave", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	total, err := q.CountEntries(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	last, err := q.GetLastEntry(ctx, "dave", domain.CurrencyCoins)
	require.NoError(t, err)
	assert.Equal(t, "c", last.ID)

	_, err = q.GetLastEntry(ctx, "dave", domain.CurrencyDiamonds)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
