package economy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Provider returns the economy config effective now.
type Provider interface {
	Current(ctx context.Context) (*Config, error)
}

// FileProvider reads a YAML (or any viper-supported) file on every call.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

type fileConfig struct {
	Version          int64    `mapstructure:"version"`
	EffectiveAt      string   `mapstructure:"effective_at"`
	ExchangeRate     string   `mapstructure:"exchange_rate"`
	DiamondToUSDRate string   `mapstructure:"diamond_to_usd_rate"`
	MinCashoutUSD    string   `mapstructure:"min_cashout_usd"`
	MaxCashoutUSD    string   `mapstructure:"max_cashout_usd"`
	ClearanceDays    int      `mapstructure:"clearance_days"`
	VIPMultipliers   []string `mapstructure:"vip_multipliers"`
	DailyRewards     struct {
		Base      []int64 `mapstructure:"base"`
		Day7Bonus int64   `mapstructure:"day7_bonus"`
	} `mapstructure:"daily_rewards"`
	EarningTargets []struct {
		ID               string `mapstructure:"id"`
		DiamondsRequired int64  `mapstructure:"diamonds_required"`
		CoinReward       int64  `mapstructure:"coin_reward"`
		CashRewardUSD    string `mapstructure:"cash_reward_usd"`
		Badge            string `mapstructure:"badge"`
	} `mapstructure:"earning_targets"`
	Referral struct {
		ReferrerCoins int64 `mapstructure:"referrer_coins"`
		RefereeCoins  int64 `mapstructure:"referee_coins"`
	} `mapstructure:"referral"`
}

func (p *FileProvider) Current(_ context.Context) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(p.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read economy config %s: %w", p.path, err)
	}
	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode economy config: %w", err)
	}
	cfg, err := raw.toConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid economy config: %w", err)
	}
	return cfg, nil
}

func (raw fileConfig) toConfig() (*Config, error) {
	cfg := &Config{
		Version:       raw.Version,
		ClearanceDays: raw.ClearanceDays,
		DailyRewards: DailySchedule{
			Base:      raw.DailyRewards.Base,
			Day7Bonus: raw.DailyRewards.Day7Bonus,
		},
		Referral: ReferralAmounts{
			ReferrerCoins: raw.Referral.ReferrerCoins,
			RefereeCoins:  raw.Referral.RefereeCoins,
		},
	}
	if strings.TrimSpace(raw.EffectiveAt) != "" {
		at, err := time.Parse(time.RFC3339, raw.EffectiveAt)
		if err != nil {
			return nil, fmt.Errorf("effective_at: %w", err)
		}
		cfg.EffectiveAt = at
	}

	var err error
	if cfg.ExchangeRate, err = parseDecimal("exchange_rate", raw.ExchangeRate); err != nil {
		return nil, err
	}
	if cfg.DiamondToUSDRate, err = parseDecimal("diamond_to_usd_rate", raw.DiamondToUSDRate); err != nil {
		return nil, err
	}
	if cfg.MinCashoutUSD, err = parseDecimal("min_cashout_usd", raw.MinCashoutUSD); err != nil {
		return nil, err
	}
	if cfg.MaxCashoutUSD, err = parseDecimal("max_cashout_usd", raw.MaxCashoutUSD); err != nil {
		return nil, err
	}
	for i, m := range raw.VIPMultipliers {
		d, err := parseDecimal(fmt.Sprintf("vip_multipliers[%d]", i), m)
		if err != nil {
			return nil, err
		}
		cfg.VIPMultipliers = append(cfg.VIPMultipliers, d)
	}
	for _, t := range raw.EarningTargets {
		cash := decimal.Zero
		if strings.TrimSpace(t.CashRewardUSD) != "" {
			if cash, err = parseDecimal("earning_targets."+t.ID+".cash_reward_usd", t.CashRewardUSD); err != nil {
				return nil, err
			}
		}
		cfg.EarningTargets = append(cfg.EarningTargets, EarningTier{
			ID:               t.ID,
			DiamondsRequired: t.DiamondsRequired,
			CoinReward:       t.CoinReward,
			CashRewardUSD:    cash,
			Badge:            t.Badge,
		})
	}
	return cfg, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// StaticProvider always returns the same snapshot. Tests use it.
type StaticProvider struct {
	cfg *Config
	err error
}

func NewStaticProvider(cfg *Config) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

// Fail makes subsequent Current calls return err.
func (p *StaticProvider) Fail(err error) {
	p.err = err
}

func (p *StaticProvider) Current(_ context.Context) (*Config, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.cfg, nil
}
