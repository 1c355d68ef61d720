package service

import (
	"context"
	"testing"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimDaily(t *testing.T) {
	store, engine, _ := newTestEngine(t)
	svc := NewRewardService(engine, loadEconomy(t))
	ctx := context.Background()

	entry, err := svc.ClaimDaily(ctx, "player", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.Amount)
	assert.Equal(t, domain.KindReward, entry.Kind)

	entry, err = svc.ClaimDaily(ctx, "player", 10, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), entry.Amount)
	assert.Equal(t, int64(4600), entry.BalanceAfter)

	_, err = svc.ClaimDaily(ctx, "player", 0, 8)
	require.ErrorIs(t, err, domain.ErrInvalidDay)
	_, err = svc.ClaimDaily(ctx, "player", 11, 1)
	require.ErrorIs(t, err, domain.ErrInvalidTier)
	assert.Len(t, store.Entries(), 2)
}

func TestGrantReferralOncePerReferee(t *testing.T) {
	store, engine, _ := newTestEngine(t)
	svc := NewRewardService(engine, loadEconomy(t))
	ctx := context.Background()

	entries, err := svc.GrantReferral(ctx, "referrer", "newcomer")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].OperationID, entries[1].OperationID)

	_, err = svc.GrantReferral(ctx, "referrer", "newcomer")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = svc.GrantReferral(ctx, "referrer", "referrer")
	require.ErrorIs(t, err, domain.ErrInvalidTransfer)

	_, err = svc.GrantReferral(ctx, "referrer", "second-newcomer")
	require.NoError(t, err)

	referrer, _ := store.Queries().GetBalance(ctx, "referrer")
	newcomer, _ := store.Queries().GetBalance(ctx, "newcomer")
	assert.Equal(t, int64(1000), referrer.Coins)
	assert.Equal(t, int64(200), newcomer.Coins)
}

func TestGrantEventRewardOncePerEvent(t *testing.T) {
	store, engine, _ := newTestEngine(t)
	svc := NewRewardService(engine, loadEconomy(t))
	ctx := context.Background()

	entry, err := svc.GrantEventReward(ctx, "player", domain.CurrencyDiamonds, 300, "spring-fest")
	require.NoError(t, err)
	assert.Equal(t, domain.KindEventReward, entry.Kind)
	require.NotNil(t, entry.ReferenceID)
	assert.Equal(t, "event:spring-fest", *entry.ReferenceID)

	_, err = svc.GrantEventReward(ctx, "player", domain.CurrencyDiamonds, 300, "spring-fest")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = svc.GrantEventReward(ctx, "player", domain.CurrencyCoins, 50, "summer-fest")
	require.NoError(t, err)

	_, err = svc.GrantEventReward(ctx, "player", domain.CurrencyCoins, 0, "autumn-fest")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	b, _ := store.Queries().GetBalance(ctx, "player")
	assert.Equal(t, int64(300), b.Diamonds)
	assert.Equal(t, int64(50), b.Coins)
}

func TestEarningTargets(t *testing.T) {
	_, engine, _ := newTestEngine(t)
	svc := NewRewardService(engine, loadEconomy(t))
	ctx := context.Background()
	fund(t, engine, "creator", domain.CurrencyDiamonds, 60000)

	progress, err := svc.EarningTargets(ctx, "creator")
	require.NoError(t, err)
	require.Len(t, progress, 4)
	assert.Equal(t, "bronze", progress[0].Tier.ID)
	assert.True(t, progress[0].IsCompleted)
	assert.Equal(t, "6", progress[0].Progress.String())
	assert.True(t, progress[1].IsCompleted)
	assert.False(t, progress[2].IsCompleted)
	assert.Equal(t, "0.3", progress[2].Progress.String())

	entry, err := svc.ClaimEarningTarget(ctx, "creator", "silver")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), entry.Amount)
	assert.Equal(t, domain.CurrencyCoins, entry.Currency)

	_, err = svc.ClaimEarningTarget(ctx, "creator", "silver")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	_, err = svc.ClaimEarningTarget(ctx, "creator", "gold")
	require.ErrorIs(t, err, domain.ErrTargetNotReached)
	_, err = svc.ClaimEarningTarget(ctx, "creator", "diamond")
	require.ErrorIs(t, err, domain.ErrUnknownTier)
}
