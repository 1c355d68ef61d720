package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/economy-ledger/internal/observability"
	"go.uber.org/zap"
)

// CashoutPromoter is the slice of the cash-out service the clearance worker drives.
type CashoutPromoter interface {
	PromoteCleared(ctx context.Context, now time.Time, batch int32) (int, error)
	PendingApprovalCount(ctx context.Context) (int64, error)
}

// ClearanceWorker moves cash-outs whose clearance period has elapsed into
// the approval queue. Safe for concurrent instances thanks to FOR UPDATE SKIP LOCKED.
type ClearanceWorker struct {
	svc          CashoutPromoter
	pollInterval time.Duration
	batchSize    int32
	now          func() time.Time
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewClearanceWorker(svc CashoutPromoter) *ClearanceWorker {
	return &ClearanceWorker{
		svc:          svc,
		pollInterval: time.Minute,
		batchSize:    50,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

func (w *ClearanceWorker) WithPollInterval(interval time.Duration) *ClearanceWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

func (w *ClearanceWorker) WithBatchSize(size int32) *ClearanceWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

func (w *ClearanceWorker) WithClock(now func() time.Time) *ClearanceWorker {
	if now != nil {
		w.now = now
	}
	return w
}

// Start runs until Stop is called or ctx is canceled.
func (w *ClearanceWorker) Start(ctx context.Context) {
	zap.L().Info("clearance worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("clearance worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("clearance worker stop signal received")
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("clearance run failed", zap.Error(err))
			}
		}
	}
}

func (w *ClearanceWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ClearanceWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce drains every due request in batches, then refreshes the
// pending-approval gauge.
func (w *ClearanceWorker) ProcessOnce(ctx context.Context) error {
	now := w.now().UTC()
	total := 0
	for {
		n, err := w.svc.PromoteCleared(ctx, now, w.batchSize)
		if err != nil {
			observability.IncrementWorkerRun("clearance", "failed")
			return fmt.Errorf("promote cleared cash-outs: %w", err)
		}
		total += n
		if n < int(w.batchSize) {
			break
		}
	}
	if total > 0 {
		zap.L().Info("cash-outs cleared for approval", zap.Int("count", total))
	}

	pending, err := w.svc.PendingApprovalCount(ctx)
	if err != nil {
		observability.IncrementWorkerRun("clearance", "failed")
		return err
	}
	observability.SetCashoutPendingApproval(pending)
	observability.IncrementWorkerRun("clearance", "success")
	return nil
}

func (w *ClearanceWorker) String() string {
	return fmt.Sprintf("ClearanceWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
