package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/economy-ledger/internal/observability"
	"go.uber.org/zap"
)

// SettlementRedeliverer re-sends settlement events the processor never acknowledged.
type SettlementRedeliverer interface {
	RedeliverSettlements(ctx context.Context, now time.Time, batch int32) (int, error)
}

// SettlementWorker sweeps approved cash-outs whose settlement notification
// failed and publishes them again.
type SettlementWorker struct {
	svc      SettlementRedeliverer
	interval time.Duration
	batch    int32
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSettlementWorker(svc SettlementRedeliverer) *SettlementWorker {
	return &SettlementWorker{
		svc:      svc,
		interval: 5 * time.Minute,
		batch:    20,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (w *SettlementWorker) WithInterval(interval time.Duration) *SettlementWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

func (w *SettlementWorker) WithBatchSize(size int32) *SettlementWorker {
	if size > 0 {
		w.batch = size
	}
	return w
}

func (w *SettlementWorker) WithClock(now func() time.Time) *SettlementWorker {
	if now != nil {
		w.now = now
	}
	return w
}

func (w *SettlementWorker) Start(ctx context.Context) {
	zap.L().Info("settlement worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("settlement redelivery failed", zap.Error(err))
			}
		}
	}
}

func (w *SettlementWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SettlementWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce keeps sweeping while full batches are delivered. A batch with
// any failed delivery ends the pass; the rest waits for the next tick.
func (w *SettlementWorker) ProcessOnce(ctx context.Context) error {
	now := w.now().UTC()
	total := 0
	for {
		n, err := w.svc.RedeliverSettlements(ctx, now, w.batch)
		if err != nil {
			observability.IncrementWorkerRun("settlement", "failed")
			return fmt.Errorf("redeliver settlements: %w", err)
		}
		total += n
		if n < int(w.batch) {
			break
		}
	}
	if total > 0 {
		zap.L().Info("settlement sweep finished", zap.Int("redelivered", total))
	}
	observability.IncrementWorkerRun("settlement", "success")
	return nil
}
