package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/ayo6706/economy-ledger/internal/repository/memory"
	"github.com/ayo6706/economy-ledger/internal/service"
	"github.com/ayo6706/economy-ledger/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCashoutService(t *testing.T, store *memory.Store) (*service.LedgerEngine, *service.CashoutService) {
	t.Helper()
	cfg, err := economy.NewFileProvider("../../config/economy.yaml").Current(context.Background())
	require.NoError(t, err)
	engine := service.NewLedgerEngine(store)
	return engine, service.NewCashoutService(engine, economy.NewStaticProvider(cfg), nil)
}

func TestClearanceWorkerPromotesDueRequests(t *testing.T) {
	store := memory.New()
	engine, cashouts := newCashoutService(t, store)
	ctx := context.Background()

	_, err := engine.Credit(ctx, service.Mutation{AccountID: "creator", Currency: domain.CurrencyDiamonds, Amount: 1_000_000, Kind: domain.KindDeposit})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := cashouts.Submit(ctx, service.SubmitCashoutRequest{
			AccountID:     "creator",
			AmountUSD:     decimal.RequireFromString("10.00"),
			PaymentMethod: "paypal",
		})
		require.NoError(t, err)
	}

	w := NewClearanceWorker(cashouts).WithBatchSize(2)
	require.NoError(t, w.ProcessOnce(ctx))
	pending, err := cashouts.PendingApprovalCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	w.WithClock(func() time.Time { return time.Now().Add(8 * 24 * time.Hour) })
	require.NoError(t, w.ProcessOnce(ctx))
	pending, err = cashouts.PendingApprovalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pending)
}

type failingPromoter struct{}

func (failingPromoter) PromoteCleared(context.Context, time.Time, int32) (int, error) {
	return 0, errors.New("database unavailable")
}

func (failingPromoter) PendingApprovalCount(context.Context) (int64, error) {
	return 0, nil
}

func TestClearanceWorkerReportsErrors(t *testing.T) {
	err := NewClearanceWorker(failingPromoter{}).ProcessOnce(context.Background())
	require.Error(t, err)
}

func TestClearanceWorkerStopIsIdempotent(t *testing.T) {
	w := NewClearanceWorker(failingPromoter{}).WithPollInterval(time.Hour)
	stop := w.Run(context.Background())
	stop()
	w.Stop()
}

func TestReconciliationWorkerRunOnce(t *testing.T) {
	store := memory.New()
	engine := service.NewLedgerEngine(store)
	ctx := context.Background()
	_, err := engine.Credit(ctx, service.Mutation{AccountID: "acc-a", Currency: domain.CurrencyCoins, Amount: 10, Kind: domain.KindDeposit})
	require.NoError(t, err)

	w := NewReconciliationWorker(service.NewReconciliationService(store))
	report := w.RunOnce(ctx)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Accounts)
	assert.Empty(t, report.Drifts)

	b, err := store.Queries().GetBalance(ctx, "acc-a")
	require.NoError(t, err)
	b.Coins = 11
	store.SetBalance(b)
	report = w.RunOnce(ctx)
	require.NotNil(t, report)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, service.DriftStore, report.Drifts[0].Reason)
}

type blockingReconciler struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingReconciler) Run(ctx context.Context) (*service.ReconciliationReport, error) {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &service.ReconciliationReport{}, nil
}

func TestReconciliationWorkerSkipsOverlappingPass(t *testing.T) {
	b := &blockingReconciler{entered: make(chan struct{}), release: make(chan struct{})}
	w := NewReconciliationWorker(b).WithInterval(time.Minute)

	done := make(chan *service.ReconciliationReport)
	go func() { done <- w.RunOnce(context.Background()) }()
	<-b.entered

	assert.Nil(t, w.RunOnce(context.Background()))

	close(b.release)
	assert.NotNil(t, <-done)
}

type countingRedeliverer struct {
	results []int
	calls   int
	err     error
}

func (r *countingRedeliverer) RedeliverSettlements(context.Context, time.Time, int32) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n := r.results[r.calls]
	r.calls++
	return n, nil
}

func TestSettlementWorkerDrainsFullBatches(t *testing.T) {
	r := &countingRedeliverer{results: []int{3, 3, 1}}
	w := NewSettlementWorker(r).WithBatchSize(3)
	require.NoError(t, w.ProcessOnce(context.Background()))
	assert.Equal(t, 3, r.calls)
}

func TestSettlementWorkerReportsErrors(t *testing.T) {
	w := NewSettlementWorker(&countingRedeliverer{err: errors.New("database unavailable")})
	require.Error(t, w.ProcessOnce(context.Background()))
}

type flakySink struct {
	fail bool
	sent []settlement.Event
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Notify(_ context.Context, ev settlement.Event) error {
	s.sent = append(s.sent, ev)
	if s.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestSettlementWorkerRedeliversFailedApproval(t *testing.T) {
	store := memory.New()
	cfg, err := economy.NewFileProvider("../../config/economy.yaml").Current(context.Background())
	require.NoError(t, err)
	engine := service.NewLedgerEngine(store)
	sink := &flakySink{fail: true}
	cashouts := service.NewCashoutService(engine, economy.NewStaticProvider(cfg), sink)
	ctx := context.Background()

	_, err = engine.Credit(ctx, service.Mutation{AccountID: "creator", Currency: domain.CurrencyDiamonds, Amount: 100_000, Kind: domain.KindDeposit})
	require.NoError(t, err)
	c, err := cashouts.Submit(ctx, service.SubmitCashoutRequest{
		AccountID:     "creator",
		AmountUSD:     decimal.RequireFromString("10.00"),
		PaymentMethod: "paypal",
	})
	require.NoError(t, err)
	later := func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	require.NoError(t, NewClearanceWorker(cashouts).WithClock(later).ProcessOnce(ctx))
	_, err = cashouts.Approve(ctx, c.ID, "admin-1")
	require.NoError(t, err)
	require.Len(t, sink.sent, 1)

	sink.fail = false
	w := NewSettlementWorker(cashouts).WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	require.NoError(t, w.ProcessOnce(ctx))
	require.Len(t, sink.sent, 2)
	assert.Equal(t, c.ID, sink.sent[1].CashoutID)

	require.NoError(t, w.ProcessOnce(ctx))
	assert.Len(t, sink.sent, 2)
}
