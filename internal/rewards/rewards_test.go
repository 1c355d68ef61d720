package rewards

import (
	"testing"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	schedule = economy.DailySchedule{Base: []int64{100, 150, 200, 250, 300, 400, 500}, Day7Bonus: 1000}
	vipTable = func() []decimal.Decimal {
		out := make([]decimal.Decimal, 0, economy.MaxVIPTier+1)
		for i := 0; i <= economy.MaxVIPTier; i++ {
			out = append(out, decimal.NewFromFloat(1).Add(decimal.NewFromFloat(0.2).Mul(decimal.NewFromInt(int64(i)))))
		}
		return out
	}()
)

func TestDailyReward(t *testing.T) {
	tests := []struct {
		name string
		tier int
		day  int
		want int64
	}{
		{"day one no vip", 0, 1, 100},
		{"day three tier two", 2, 3, 280},
		{"day seven includes bonus", 0, 7, 1500},
		{"day seven max tier", 10, 7, 4500},
		{"floors fractional", 1, 2, 180},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DailyReward(schedule, vipTable, tc.tier, tc.day)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDailyRewardFloorsDown(t *testing.T) {
	odd := economy.DailySchedule{Base: []int64{101, 0, 0, 0, 0, 0, 0}}
	got, err := DailyReward(odd, vipTable, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(121), got) // 121.2
}

func TestDailyRewardRejectsBadInput(t *testing.T) {
	_, err := DailyReward(schedule, vipTable, 0, 0)
	require.ErrorIs(t, err, domain.ErrInvalidDay)
	_, err = DailyReward(schedule, vipTable, 0, 8)
	require.ErrorIs(t, err, domain.ErrInvalidDay)
	_, err = DailyReward(schedule, vipTable, -1, 1)
	require.ErrorIs(t, err, domain.ErrInvalidTier)
	_, err = DailyReward(schedule, vipTable, 11, 1)
	require.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestEvaluateTargets(t *testing.T) {
	tiers := []economy.EarningTier{
		{ID: "gold", DiamondsRequired: 200000},
		{ID: "bronze", DiamondsRequired: 10000},
		{ID: "silver", DiamondsRequired: 50000},
	}

	got := EvaluateTargets(60000, tiers)
	require.Len(t, got, 3)

	assert.Equal(t, "bronze", got[0].Tier.ID)
	assert.True(t, got[0].IsCompleted)
	assert.True(t, got[0].Progress.Equal(decimal.NewFromInt(6)))

	assert.Equal(t, "silver", got[1].Tier.ID)
	assert.True(t, got[1].IsCompleted)
	assert.True(t, got[1].Progress.Equal(decimal.RequireFromString("1.2")))

	assert.Equal(t, "gold", got[2].Tier.ID)
	assert.False(t, got[2].IsCompleted)
	assert.True(t, got[2].Progress.Equal(decimal.RequireFromString("0.3")))

	// input order untouched
	assert.Equal(t, "gold", tiers[0].ID)
}

func TestReferralBonus(t *testing.T) {
	referrer, referee := ReferralBonus(economy.ReferralAmounts{ReferrerCoins: 500, RefereeCoins: 200})
	assert.Equal(t, int64(500), referrer)
	assert.Equal(t, int64(200), referee)
}
