// Package economy supplies versioned economy parameters: exchange rates,
// cash-out limits, VIP multipliers, reward schedules and earning targets.
package economy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MaxVIPTier is the highest VIP tier the multiplier table covers.
const MaxVIPTier = 10

var (
	minVIPMultiplier = decimal.NewFromInt(1)
	maxVIPMultiplier = decimal.NewFromInt(3)
)

// Config is one immutable snapshot of the economy parameters.
type Config struct {
	Version          int64             `json:"version"`
	EffectiveAt      time.Time         `json:"effective_at"`
	ExchangeRate     decimal.Decimal   `json:"exchange_rate"`
	DiamondToUSDRate decimal.Decimal   `json:"diamond_to_usd_rate"`
	MinCashoutUSD    decimal.Decimal   `json:"min_cashout_usd"`
	MaxCashoutUSD    decimal.Decimal   `json:"max_cashout_usd"`
	ClearanceDays    int               `json:"clearance_days"`
	VIPMultipliers   []decimal.Decimal `json:"vip_multipliers"`
	DailyRewards     DailySchedule     `json:"daily_rewards"`
	EarningTargets   []EarningTier     `json:"earning_targets"`
	Referral         ReferralAmounts   `json:"referral"`
}

// DailySchedule is the 7-day login reward cycle. Day7Bonus is paid on top of Base[6].
type DailySchedule struct {
	Base      []int64 `json:"base"`
	Day7Bonus int64   `json:"day7_bonus"`
}

type EarningTier struct {
	ID               string          `json:"id"`
	DiamondsRequired int64           `json:"diamonds_required"`
	CoinReward       int64           `json:"coin_reward"`
	CashRewardUSD    decimal.Decimal `json:"cash_reward_usd"`
	Badge            string          `json:"badge"`
}

type ReferralAmounts struct {
	ReferrerCoins int64 `json:"referrer_coins"`
	RefereeCoins  int64 `json:"referee_coins"`
}

// ClearancePeriod returns the holding interval between submission and approval eligibility.
func (c *Config) ClearancePeriod() time.Duration {
	return time.Duration(c.ClearanceDays) * 24 * time.Hour
}

// Tier looks up an earning tier by id.
func (c *Config) Tier(id string) (EarningTier, bool) {
	for _, t := range c.EarningTargets {
		if t.ID == id {
			return t, true
		}
	}
	return EarningTier{}, false
}

// Validate checks internal consistency and sorts earning tiers by requirement.
func (c *Config) Validate() error {
	if !c.ExchangeRate.IsPositive() {
		return fmt.Errorf("exchange_rate must be positive")
	}
	if !c.DiamondToUSDRate.IsPositive() {
		return fmt.Errorf("diamond_to_usd_rate must be positive")
	}
	if !c.MinCashoutUSD.IsPositive() {
		return fmt.Errorf("min_cashout_usd must be positive")
	}
	if c.MaxCashoutUSD.LessThan(c.MinCashoutUSD) {
		return fmt.Errorf("max_cashout_usd must be >= min_cashout_usd")
	}
	if c.ClearanceDays < 0 {
		return fmt.Errorf("clearance_days must not be negative")
	}
	if len(c.VIPMultipliers) != MaxVIPTier+1 {
		return fmt.Errorf("vip_multipliers must list %d tiers, got %d", MaxVIPTier+1, len(c.VIPMultipliers))
	}
	for i, m := range c.VIPMultipliers {
		if m.LessThan(minVIPMultiplier) || m.GreaterThan(maxVIPMultiplier) {
			return fmt.Errorf("vip_multipliers[%d] = %s outside [%s, %s]", i, m, minVIPMultiplier, maxVIPMultiplier)
		}
	}
	if len(c.DailyRewards.Base) != 7 {
		return fmt.Errorf("daily_rewards.base must have 7 days, got %d", len(c.DailyRewards.Base))
	}
	for i, amount := range c.DailyRewards.Base {
		if amount < 0 {
			return fmt.Errorf("daily_rewards.base[%d] must not be negative", i)
		}
	}
	if c.DailyRewards.Day7Bonus < 0 {
		return fmt.Errorf("daily_rewards.day7_bonus must not be negative")
	}
	seen := make(map[string]struct{}, len(c.EarningTargets))
	for _, t := range c.EarningTargets {
		if t.ID == "" {
			return fmt.Errorf("earning target id is required")
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate earning target %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.DiamondsRequired <= 0 {
			return fmt.Errorf("earning target %q: diamonds_required must be positive", t.ID)
		}
		if t.CoinReward < 0 || t.CashRewardUSD.IsNegative() {
			return fmt.Errorf("earning target %q: rewards must not be negative", t.ID)
		}
	}
	sort.SliceStable(c.EarningTargets, func(i, j int) bool {
		return c.EarningTargets[i].DiamondsRequired < c.EarningTargets[j].DiamondsRequired
	})
	if c.Referral.ReferrerCoins < 0 || c.Referral.RefereeCoins < 0 {
		return fmt.Errorf("referral amounts must not be negative")
	}
	return nil
}
