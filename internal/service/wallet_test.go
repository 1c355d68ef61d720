package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletExchangeUsesConfiguredRate(t *testing.T) {
	_, engine, _ := newTestEngine(t)
	provider := loadEconomy(t)
	svc := NewWalletService(engine, provider)
	ctx := context.Background()
	fund(t, engine, "acc-a", domain.CurrencyDiamonds, 1000)

	res, err := svc.Exchange(ctx, "acc-a", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.CoinsReceived)

	w, err := svc.GetWallet(ctx, "acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(300), w.Coins)
	assert.Zero(t, w.Diamonds)

	provider.Fail(errors.New("unreachable"))
	_, err = svc.Exchange(ctx, "acc-a", 1)
	require.ErrorIs(t, err, domain.ErrConfigUnavailable)
}

func TestWalletTransferDefaultsToCoins(t *testing.T) {
	_, engine, _ := newTestEngine(t)
	svc := NewWalletService(engine, loadEconomy(t))
	ctx := context.Background()
	fund(t, engine, "acc-a", domain.CurrencyCoins, 50)

	debit, _, err := svc.Transfer(ctx, TransferRequest{From: "acc-a", To: "acc-b", Amount: 20})
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyCoins, debit.Currency)
}

func TestWalletListTransactionsPages(t *testing.T) {
	_, engine, _ := newTestEngine(t)
	svc := NewWalletService(engine, loadEconomy(t))
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		fund(t, engine, "acc-a", domain.CurrencyCoins, int64(i))
	}

	first, total, err := svc.ListTransactions(ctx, "acc-a", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, first, 2)
	assert.Equal(t, int64(5), first[0].Amount)
	assert.Equal(t, int64(4), first[1].Amount)

	last, _, err := svc.ListTransactions(ctx, "acc-a", 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(1), last[0].Amount)

	empty, total, err := svc.ListTransactions(ctx, "nobody", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Zero(t, total)
}

func TestWalletListTransactionsFarPagesAreEmpty(t *testing.T) {
	_, engine, _ := newTestEngine(t)
	svc := NewWalletService(engine, loadEconomy(t))
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		fund(t, engine, "acc-a", domain.CurrencyCoins, int64(i))
	}

	for _, page := range []int{3, 4294967297, math.MaxInt32, math.MaxInt} {
		items, total, err := svc.ListTransactions(ctx, "acc-a", page, 20)
		require.NoError(t, err)
		assert.Empty(t, items, "page %d", page)
		assert.Equal(t, int64(3), total)
	}
}
