package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/economy-ledger/internal/api/problem"
	"github.com/ayo6706/economy-ledger/internal/domain"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	slug   string
	code   string
}

// Order matters only for errors that wrap more than one sentinel.
var errorMappings = []errorMapping{
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "ledger/insufficient-balance", "INSUFFICIENT_BALANCE"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "ledger/invalid-amount", "INVALID_AMOUNT"},
	{domain.ErrInvalidCurrency, http.StatusBadRequest, "ledger/invalid-currency", "INVALID_CURRENCY"},
	{domain.ErrInvalidTransfer, http.StatusBadRequest, "ledger/invalid-transfer", "INVALID_TRANSFER"},
	{domain.ErrOutOfRange, http.StatusBadRequest, "cashout/out-of-range", "OUT_OF_RANGE"},
	{domain.ErrNotClearanceReached, http.StatusConflict, "cashout/not-cleared", "NOT_CLEARANCE_REACHED"},
	{domain.ErrAlreadyProcessed, http.StatusConflict, "cashout/already-processed", "ALREADY_PROCESSED"},
	{domain.ErrCashoutNotFound, http.StatusNotFound, "cashout/not-found", "NOT_FOUND"},
	{domain.ErrUnknownTier, http.StatusNotFound, "rewards/unknown-tier", "NOT_FOUND"},
	{domain.ErrAlreadyClaimed, http.StatusConflict, "rewards/already-claimed", "ALREADY_CLAIMED"},
	{domain.ErrTargetNotReached, http.StatusConflict, "rewards/target-not-reached", "TARGET_NOT_REACHED"},
	{domain.ErrInvalidDay, http.StatusBadRequest, "rewards/invalid-input", "INVALID_REWARD_INPUT"},
	{domain.ErrInvalidTier, http.StatusBadRequest, "rewards/invalid-input", "INVALID_REWARD_INPUT"},
	{domain.ErrConcurrencyExhausted, http.StatusServiceUnavailable, "ledger/concurrency-exhausted", "CONCURRENCY_EXHAUSTED"},
	{domain.ErrConfigUnavailable, http.StatusServiceUnavailable, "economy/config-unavailable", "CONFIG_UNAVAILABLE"},
}

// writeServiceError maps domain errors to problem responses. Anything unknown
// is logged and reported as INTERNAL without leaking the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			problem.WriteCode(w, r, m.status, problem.Type(m.slug), m.code, err.Error())
			return
		}
	}
	if m, ok := mapDBError(err); ok {
		zap.L().Warn("database error mapped", zap.Error(err), zap.String("operation", op))
		problem.WriteCode(w, r, m.status, problem.Type(m.slug), m.code, http.StatusText(m.status))
		return
	}

	fields := []zap.Field{zap.Error(err), zap.String("operation", op)}
	if errors.Is(err, domain.ErrLedgerInconsistent) {
		zap.L().Error("ledger inconsistency surfaced to caller", fields...)
	} else {
		zap.L().Error("request failed", fields...)
	}
	problem.WriteCode(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"), "INTERNAL", "unexpected server error")
}
