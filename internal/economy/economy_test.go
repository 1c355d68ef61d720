package economy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultConfigPath = "../../config/economy.yaml"

func TestFileProviderLoadsDefaultConfig(t *testing.T) {
	cfg, err := NewFileProvider(defaultConfigPath).Current(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.ExchangeRate.Equal(decimal.RequireFromString("0.30")))
	assert.True(t, cfg.DiamondToUSDRate.Equal(decimal.RequireFromString("0.0003")))
	assert.Equal(t, 7, cfg.ClearanceDays)
	assert.Equal(t, 7*24*time.Hour, cfg.ClearancePeriod())
	assert.Len(t, cfg.VIPMultipliers, MaxVIPTier+1)
	assert.True(t, cfg.VIPMultipliers[MaxVIPTier].Equal(decimal.NewFromInt(3)))
	assert.Equal(t, []int64{100, 150, 200, 250, 300, 400, 500}, cfg.DailyRewards.Base)

	silver, ok := cfg.Tier("silver")
	require.True(t, ok)
	assert.Equal(t, int64(50000), silver.DiamondsRequired)
}

func TestFileProviderRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchange_rate: "0"
diamond_to_usd_rate: "0.0003"
min_cashout_usd: "10"
max_cashout_usd: "100"
`), 0o600))

	_, err := NewFileProvider(path).Current(context.Background())
	require.Error(t, err)
}

func TestFileProviderMissingFile(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "nope.yaml")).Current(context.Background())
	require.Error(t, err)
}

func TestValidateSortsTiers(t *testing.T) {
	cfg := testConfig(t)
	cfg.EarningTargets = []EarningTier{
		{ID: "b", DiamondsRequired: 200},
		{ID: "a", DiamondsRequired: 100},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "a", cfg.EarningTargets[0].ID)

	cfg.EarningTargets = append(cfg.EarningTargets, EarningTier{ID: "a", DiamondsRequired: 300})
	require.Error(t, cfg.Validate())
}

func TestValidateVIPMultiplierRange(t *testing.T) {
	for _, m := range []string{"0.99", "3.01", "-1"} {
		cfg := testConfig(t)
		cfg.VIPMultipliers[4] = decimal.RequireFromString(m)
		assert.Error(t, cfg.Validate(), m)
	}

	cfg := testConfig(t)
	cfg.VIPMultipliers[0] = decimal.NewFromInt(1)
	cfg.VIPMultipliers[MaxVIPTier] = decimal.NewFromInt(3)
	assert.NoError(t, cfg.Validate())
}

type countingProvider struct {
	cfg   *Config
	err   error
	calls int
}

func (p *countingProvider) Current(context.Context) (*Config, error) {
	p.calls++
	return p.cfg, p.err
}

func TestCachedProviderServesWithinTTL(t *testing.T) {
	src := &countingProvider{cfg: testConfig(t)}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewCachedProvider(src, nil, 30*time.Second)
	p.now = func() time.Time { return now }

	_, err := p.Current(context.Background())
	require.NoError(t, err)
	now = now.Add(10 * time.Second)
	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	now = now.Add(30 * time.Second)
	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedProviderFailsClosedAfterExpiry(t *testing.T) {
	src := &countingProvider{cfg: testConfig(t)}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewCachedProvider(src, nil, time.Second)
	p.now = func() time.Time { return now }

	_, err := p.Current(context.Background())
	require.NoError(t, err)

	src.err = errors.New("db down")
	src.cfg = nil
	now = now.Add(2 * time.Second)
	_, err = p.Current(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigUnavailable)
}

func TestCachedProviderUsesRedis(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(cachedSnapshot{FetchedAt: now.Add(-10 * time.Second), Config: cfg})
	require.NoError(t, err)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(redisCacheKey).SetVal(string(payload))

	src := &countingProvider{err: errors.New("should not be called")}
	p := NewCachedProvider(src, rdb, time.Minute)
	p.now = func() time.Time { return now }

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, got.ExchangeRate.Equal(cfg.ExchangeRate))
	assert.Equal(t, 0, src.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedProviderAgesRedisSnapshotFromSourceRead(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old, err := json.Marshal(cachedSnapshot{FetchedAt: now.Add(-50 * time.Second), Config: cfg})
	require.NoError(t, err)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(redisCacheKey).SetVal(string(old))

	src := &countingProvider{cfg: cfg}
	p := NewCachedProvider(src, rdb, time.Minute)
	p.now = func() time.Time { return now }

	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls)

	// 65s after the original source read: both layers are expired
	now = now.Add(15 * time.Second)
	fresh, err := json.Marshal(cachedSnapshot{FetchedAt: now, Config: cfg})
	require.NoError(t, err)
	mock.ExpectGet(redisCacheKey).SetVal(string(old))
	mock.ExpectSet(redisCacheKey, fresh, time.Minute).SetVal("OK")

	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedProviderPopulatesRedisOnMiss(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(cachedSnapshot{FetchedAt: now, Config: cfg})
	require.NoError(t, err)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(redisCacheKey).RedisNil()
	mock.ExpectSet(redisCacheKey, payload, time.Minute).SetVal("OK")

	src := &countingProvider{cfg: cfg}
	p := NewCachedProvider(src, rdb, time.Minute)
	p.now = func() time.Time { return now }

	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

type blockingProvider struct {
	cfg     *Config
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Current(context.Context) (*Config, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.cfg, nil
}

func TestCachedProviderFetchesOutsideLock(t *testing.T) {
	src := &blockingProvider{cfg: testConfig(t), entered: make(chan struct{}, 1), release: make(chan struct{})}
	p := NewCachedProvider(src, nil, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := p.Current(context.Background())
		done <- err
	}()
	<-src.entered

	invalidated := make(chan struct{})
	go func() {
		p.Invalidate(context.Background())
		close(invalidated)
	}()
	select {
	case <-invalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("cache mutex held during source fetch")
	}

	close(src.release)
	require.NoError(t, <-done)
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewFileProvider(defaultConfigPath).Current(context.Background())
	require.NoError(t, err)
	return cfg
}
