// Package rewards computes reward amounts from economy policy. It performs no I/O.
package rewards

import (
	"sort"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/shopspring/decimal"
)

const CycleDays = 7

// DailyReward returns the coins for dayInCycle (1..7) at vipTier (0..10):
// the scheduled base, plus the day-7 bonus on day 7, times the tier multiplier, floored.
func DailyReward(schedule economy.DailySchedule, vip []decimal.Decimal, vipTier, dayInCycle int) (int64, error) {
	if dayInCycle < 1 || dayInCycle > CycleDays || dayInCycle > len(schedule.Base) {
		return 0, domain.ErrInvalidDay
	}
	multiplier, err := Multiplier(vip, vipTier)
	if err != nil {
		return 0, err
	}

	base := schedule.Base[dayInCycle-1]
	if dayInCycle == CycleDays {
		base += schedule.Day7Bonus
	}
	return decimal.NewFromInt(base).Mul(multiplier).Floor().IntPart(), nil
}

// Multiplier returns the VIP multiplier for tier.
func Multiplier(vip []decimal.Decimal, tier int) (decimal.Decimal, error) {
	if tier < 0 || tier > economy.MaxVIPTier || tier >= len(vip) {
		return decimal.Decimal{}, domain.ErrInvalidTier
	}
	return vip[tier], nil
}

// TargetProgress is the read-side view of one earning tier.
type TargetProgress struct {
	Tier        economy.EarningTier `json:"tier"`
	Progress    decimal.Decimal     `json:"progress"`
	IsCompleted bool                `json:"is_completed"`
}

// EvaluateTargets reports progress toward every tier, ascending by requirement.
// Progress is currentDiamonds / requirement and may exceed 1.
func EvaluateTargets(currentDiamonds int64, tiers []economy.EarningTier) []TargetProgress {
	sorted := append([]economy.EarningTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DiamondsRequired < sorted[j].DiamondsRequired
	})

	current := decimal.NewFromInt(currentDiamonds)
	out := make([]TargetProgress, 0, len(sorted))
	for _, t := range sorted {
		progress := decimal.Zero
		if t.DiamondsRequired > 0 {
			progress = current.DivRound(decimal.NewFromInt(t.DiamondsRequired), 4)
		}
		out = append(out, TargetProgress{
			Tier:        t,
			Progress:    progress,
			IsCompleted: currentDiamonds >= t.DiamondsRequired,
		})
	}
	return out
}

// ReferralBonus returns the coins paid to the referrer and the referee.
func ReferralBonus(cfg economy.ReferralAmounts) (referrerCoins, refereeCoins int64) {
	return cfg.ReferrerCoins, cfg.RefereeCoins
}
