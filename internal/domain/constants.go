package domain

import "strings"

// Currency identifies one of the two wallet balances.
type Currency string

const (
	CurrencyCoins    Currency = "coins"
	CurrencyDiamonds Currency = "diamonds"
)

// ParseCurrency normalizes user input into a Currency.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToLower(strings.TrimSpace(s))); c {
	case CurrencyCoins, CurrencyDiamonds:
		return c, nil
	default:
		return "", ErrInvalidCurrency
	}
}

// Valid reports whether c is one of the two wallet currencies.
func (c Currency) Valid() bool {
	return c == CurrencyCoins || c == CurrencyDiamonds
}

// EntryKind classifies a transaction log entry.
type EntryKind string

const (
	KindDeposit          EntryKind = "deposit"
	KindGiftSent         EntryKind = "gift_sent"
	KindGiftReceived     EntryKind = "gift_received"
	KindExchange         EntryKind = "exchange"
	KindTransferIn       EntryKind = "transfer_in"
	KindTransferOut      EntryKind = "transfer_out"
	KindReward           EntryKind = "reward"
	KindWithdrawal       EntryKind = "withdrawal"
	KindWithdrawalRefund EntryKind = "withdrawal_refund"
	KindReferralBonus    EntryKind = "referral_bonus"
	KindEventReward      EntryKind = "event_reward"
)

var entryKinds = map[EntryKind]struct{}{
	KindDeposit:          {},
	KindGiftSent:         {},
	KindGiftReceived:     {},
	KindExchange:         {},
	KindTransferIn:       {},
	KindTransferOut:      {},
	KindReward:           {},
	KindWithdrawal:       {},
	KindWithdrawalRefund: {},
	KindReferralBonus:    {},
	KindEventReward:      {},
}

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	_, ok := entryKinds[k]
	return ok
}

// CashoutStatus is the state of a cash-out request.
type CashoutStatus string

const (
	CashoutPending                CashoutStatus = "pending"
	CashoutClearedPendingApproval CashoutStatus = "cleared_pending_approval"
	CashoutApproved               CashoutStatus = "approved"
	CashoutRejected               CashoutStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s CashoutStatus) Terminal() bool {
	return s == CashoutApproved || s == CashoutRejected
}

// ParseCashoutStatus accepts the lower-case status names used on the wire.
func ParseCashoutStatus(s string) (CashoutStatus, bool) {
	switch st := CashoutStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case CashoutPending, CashoutClearedPendingApproval, CashoutApproved, CashoutRejected:
		return st, true
	default:
		return "", false
	}
}

// Reference prefixes used to make one-time payouts idempotent per account.
const (
	RefPrefixCashout       = "cashout:"
	RefPrefixReferral      = "referral:"
	RefPrefixEvent         = "event:"
	RefPrefixEarningTarget = "earning-target:"
	RefPrefixGift          = "gift:"
)

// Roles carried in bearer tokens.
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)
