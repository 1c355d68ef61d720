package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidTransfer      = errors.New("invalid transfer")
	ErrVersionConflict      = errors.New("balance version conflict")
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")
	ErrLedgerInconsistent   = errors.New("ledger inconsistent with balance store")

	ErrOutOfRange          = errors.New("cash-out amount out of range")
	ErrNotClearanceReached = errors.New("cash-out clearance period not reached")
	ErrAlreadyProcessed    = errors.New("cash-out already processed")
	ErrCashoutNotFound     = errors.New("cash-out request not found")

	ErrConfigUnavailable = errors.New("economy config unavailable")

	ErrInvalidDay       = errors.New("day in cycle out of range")
	ErrInvalidTier      = errors.New("vip tier out of range")
	ErrUnknownTier      = errors.New("earning target tier not found")
	ErrTargetNotReached = errors.New("earning target not reached")
	ErrAlreadyClaimed   = errors.New("reward already claimed")
)

// InsufficientBalanceError carries the shortfall details of a rejected debit.
type InsufficientBalanceError struct {
	AccountID string
	Currency  Currency
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: available %d, requested %d",
		e.Currency, e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}
