package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	ledgerMutationCounter   *prometheus.CounterVec
	ledgerRetryCounter      *prometheus.CounterVec
	ledgerExhaustedCounter  *prometheus.CounterVec
	ledgerDriftCounter      *prometheus.CounterVec
	idempotencyCounter      *prometheus.CounterVec
	cashoutPendingGauge     prometheus.Gauge
	cashoutTransitionCount  *prometheus.CounterVec
	settlementNotifyCounter *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
	rateLimitedCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerMutationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Transaction log entries written",
		}, []string{"kind", "currency"})

		ledgerRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_version_conflicts_total",
			Help: "Balance compare-and-swap conflicts that triggered a retry",
		}, []string{"operation"})

		ledgerExhaustedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_concurrency_exhausted_total",
			Help: "Operations that gave up after the retry bound",
		}, []string{"operation"})

		ledgerDriftCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Log and balance store disagreements found at write time or by reconciliation",
		}, []string{"currency", "reason"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		cashoutPendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cashout_pending_approval",
			Help: "Cash-out requests cleared and waiting for review",
		})

		cashoutTransitionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashout_transitions_total",
			Help: "Cash-out state transitions",
		}, []string{"to"})

		settlementNotifyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_notifications_total",
			Help: "Settlement initiator notifications after approval",
		}, []string{"sink", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		rateLimitedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"scope"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerMutationCounter,
			ledgerRetryCounter,
			ledgerExhaustedCounter,
			ledgerDriftCounter,
			idempotencyCounter,
			cashoutPendingGauge,
			cashoutTransitionCount,
			settlementNotifyCounter,
			workerRunCounter,
			rateLimitedCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerEntry(kind, currency string) {
	if ledgerMutationCounter == nil {
		return
	}
	ledgerMutationCounter.WithLabelValues(kind, currency).Inc()
}

func IncrementLedgerRetry(operation string) {
	if ledgerRetryCounter == nil {
		return
	}
	ledgerRetryCounter.WithLabelValues(operation).Inc()
}

func IncrementConcurrencyExhausted(operation string) {
	if ledgerExhaustedCounter == nil {
		return
	}
	ledgerExhaustedCounter.WithLabelValues(operation).Inc()
}

func IncrementLedgerDrift(currency, reason string) {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.WithLabelValues(currency, reason).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetCashoutPendingApproval(size int64) {
	if cashoutPendingGauge == nil {
		return
	}
	cashoutPendingGauge.Set(float64(size))
}

func IncrementCashoutTransition(to string) {
	if cashoutTransitionCount == nil {
		return
	}
	cashoutTransitionCount.WithLabelValues(to).Inc()
}

func IncrementSettlementNotification(sink, result string) {
	if settlementNotifyCounter == nil {
		return
	}
	settlementNotifyCounter.WithLabelValues(sink, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementRateLimited(scope string) {
	if rateLimitedCounter == nil {
		return
	}
	rateLimitedCounter.WithLabelValues(scope).Inc()
}
