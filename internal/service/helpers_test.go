package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/ayo6706/economy-ledger/internal/repository/memory"
	"github.com/ayo6706/economy-ledger/internal/settlement"
	"github.com/stretchr/testify/require"
)

const economyFixture = "../../config/economy.yaml"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*memory.Store, *LedgerEngine, *testClock) {
	t.Helper()
	store := memory.New()
	clock := newTestClock()
	engine := NewLedgerEngine(store).WithClock(clock.Now)
	engine.sleep = func(context.Context, time.Duration) error { return nil }
	return store, engine, clock
}

func loadEconomy(t *testing.T) *economy.StaticProvider {
	t.Helper()
	cfg, err := economy.NewFileProvider(economyFixture).Current(context.Background())
	require.NoError(t, err)
	return economy.NewStaticProvider(cfg)
}

func fund(t *testing.T, engine *LedgerEngine, accountID string, currency domain.Currency, amount int64) {
	t.Helper()
	_, err := engine.Credit(context.Background(), Mutation{
		AccountID:   accountID,
		Currency:    currency,
		Amount:      amount,
		Kind:        domain.KindDeposit,
		Description: "test funding",
	})
	require.NoError(t, err)
}

type recordingInitiator struct {
	mu     sync.Mutex
	events []settlement.Event
	err    error
}

func (r *recordingInitiator) Name() string { return "recording" }

func (r *recordingInitiator) Notify(_ context.Context, ev settlement.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingInitiator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
