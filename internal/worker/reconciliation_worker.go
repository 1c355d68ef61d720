package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayo6706/economy-ledger/internal/observability"
	"github.com/ayo6706/economy-ledger/internal/service"
	"go.uber.org/zap"
)

// Reconciler verifies the transaction log against the balance store.
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconciliationReport, error)
}

// ReconciliationWorker re-verifies every account's entry chains on a schedule.
type ReconciliationWorker struct {
	svc      Reconciler
	interval time.Duration
	timeout  time.Duration
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciliationWorker constructs a worker with a default daily interval.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		interval: 24 * time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithTimeout bounds a single pass. Zero means the pass may take up to one interval.
func (w *ReconciliationWorker) WithTimeout(timeout time.Duration) *ReconciliationWorker {
	if timeout >= 0 {
		w.timeout = timeout
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce performs a single pass and returns its report. Drift is logged by
// the service; nothing is repaired here. A pass that starts while another is
// still running is skipped and returns nil.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) *service.ReconciliationReport {
	if !w.running.CompareAndSwap(false, true) {
		observability.IncrementWorkerRun("reconciliation", "skipped")
		zap.L().Warn("reconciliation still running, skipping pass")
		return nil
	}
	defer w.running.Store(false)

	timeout := w.timeout
	if timeout == 0 {
		timeout = w.interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return nil
	}
	result := "success"
	if len(report.Drifts) > 0 {
		result = "drift"
	}
	observability.IncrementWorkerRun("reconciliation", result)
	zap.L().Info("reconciliation finished",
		zap.Int("accounts", report.Accounts),
		zap.Int("entries", report.Entries),
		zap.Int("drifts", len(report.Drifts)),
		zap.Duration("took", time.Since(started)),
	)
	return report
}
