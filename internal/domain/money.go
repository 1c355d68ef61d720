package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// USDScale is the number of fractional digits accepted for cash-out amounts.
const USDScale = 2

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// CoinsForDiamonds converts diamonds to coins at rate, rounding down.
// The fractional remainder is kept by the platform.
func CoinsForDiamonds(diamonds int64, rate decimal.Decimal) (int64, error) {
	if diamonds <= 0 {
		return 0, fmt.Errorf("diamonds %d: %w", diamonds, ErrInvalidAmount)
	}
	if !rate.IsPositive() {
		return 0, fmt.Errorf("exchange rate %s: %w", rate, ErrInvalidAmount)
	}
	coins := decimal.NewFromInt(diamonds).Mul(rate).Floor()
	if coins.GreaterThan(maxInt64) {
		return 0, fmt.Errorf("exchange result overflows: %w", ErrInvalidAmount)
	}
	return coins.IntPart(), nil
}

// DiamondsForUSD returns how many diamonds must be escrowed to cash out amountUSD,
// rounding up so that the escrow always covers the payout.
func DiamondsForUSD(amountUSD, diamondToUSDRate decimal.Decimal) (int64, error) {
	if !diamondToUSDRate.IsPositive() {
		return 0, fmt.Errorf("diamond to usd rate %s: %w", diamondToUSDRate, ErrConfigUnavailable)
	}
	if !amountUSD.IsPositive() {
		return 0, fmt.Errorf("amount %s: %w", amountUSD, ErrInvalidAmount)
	}
	needed := amountUSD.DivRound(diamondToUSDRate, 16).Ceil()
	if needed.GreaterThan(maxInt64) {
		return 0, fmt.Errorf("diamonds needed overflows: %w", ErrInvalidAmount)
	}
	return needed.IntPart(), nil
}

// ValidateUSD rejects non-positive amounts and amounts with sub-cent precision.
func ValidateUSD(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s must be positive: %w", amount, ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(USDScale)) {
		return fmt.Errorf("amount %s has more than %d decimals: %w", amount, USDScale, ErrInvalidAmount)
	}
	return nil
}

// AddBalance applies delta to balance, refusing negative results and overflow.
func AddBalance(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, fmt.Errorf("balance overflow: %w", ErrInvalidAmount)
	}
	next := balance + delta
	if next < 0 {
		return 0, ErrInsufficientBalance
	}
	return next, nil
}
