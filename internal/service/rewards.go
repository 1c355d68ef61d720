package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/ayo6706/economy-ledger/internal/rewards"
)

// RewardService applies reward policy through the ledger engine.
type RewardService struct {
	engine  *LedgerEngine
	economy economy.Provider
}

func NewRewardService(engine *LedgerEngine, provider economy.Provider) *RewardService {
	return &RewardService{engine: engine, economy: provider}
}

// ClaimDaily credits the daily login reward. The caller has already checked
// that the account has not claimed today and chosen dayInCycle.
func (s *RewardService) ClaimDaily(ctx context.Context, accountID string, vipTier, dayInCycle int) (models.Entry, error) {
	cfg, err := currentConfig(ctx, s.economy)
	if err != nil {
		return models.Entry{}, err
	}
	amount, err := rewards.DailyReward(cfg.DailyRewards, cfg.VIPMultipliers, vipTier, dayInCycle)
	if err != nil {
		return models.Entry{}, err
	}
	return s.engine.Credit(ctx, Mutation{
		AccountID:   accountID,
		Currency:    domain.CurrencyCoins,
		Amount:      amount,
		Kind:        domain.KindReward,
		Description: fmt.Sprintf("daily reward day %d (vip %d)", dayInCycle, vipTier),
	})
}

// GrantReferral pays both sides of a referral once per referee.
func (s *RewardService) GrantReferral(ctx context.Context, referrerID, refereeID string) ([]models.Entry, error) {
	if referrerID == "" || refereeID == "" || referrerID == refereeID {
		return nil, fmt.Errorf("referrer and referee must be distinct accounts: %w", domain.ErrInvalidTransfer)
	}
	cfg, err := currentConfig(ctx, s.economy)
	if err != nil {
		return nil, err
	}
	referrerCoins, refereeCoins := rewards.ReferralBonus(cfg.Referral)

	ref := domain.RefPrefixReferral + refereeID
	var postings []Posting
	if referrerCoins > 0 {
		related := refereeID
		postings = append(postings, Posting{
			AccountID: referrerID, Currency: domain.CurrencyCoins, Amount: referrerCoins,
			Kind: domain.KindReferralBonus, Description: "referral bonus", RelatedAccountID: &related, ReferenceID: &ref,
		})
	}
	if refereeCoins > 0 {
		related := referrerID
		postings = append(postings, Posting{
			AccountID: refereeID, Currency: domain.CurrencyCoins, Amount: refereeCoins,
			Kind: domain.KindReferralBonus, Description: "welcome referral bonus", RelatedAccountID: &related, ReferenceID: &ref,
		})
	}
	if len(postings) == 0 {
		return nil, fmt.Errorf("referral bonus is zero: %w", domain.ErrInvalidAmount)
	}

	var res *PostResult
	err = s.engine.Transact(ctx, "referral_bonus", func(q repository.Querier) error {
		for _, p := range postings {
			if err := ensureUnclaimed(ctx, q, p.AccountID, domain.KindReferralBonus, ref); err != nil {
				return err
			}
		}
		var err error
		res, err = s.engine.PostTx(ctx, q, postings...)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordEntries(res.Entries)
	return res.Entries, nil
}

// GrantEventReward credits an event payout at most once per account and event.
func (s *RewardService) GrantEventReward(ctx context.Context, accountID string, currency domain.Currency, amount int64, eventID string) (models.Entry, error) {
	if strings.TrimSpace(eventID) == "" {
		return models.Entry{}, fmt.Errorf("event id is required: %w", domain.ErrInvalidAmount)
	}
	if amount <= 0 {
		return models.Entry{}, fmt.Errorf("event reward %d: %w", amount, domain.ErrInvalidAmount)
	}
	ref := domain.RefPrefixEvent + eventID
	var res *PostResult
	err := s.engine.Transact(ctx, "event_reward", func(q repository.Querier) error {
		if err := ensureUnclaimed(ctx, q, accountID, domain.KindEventReward, ref); err != nil {
			return err
		}
		var err error
		res, err = s.engine.PostTx(ctx, q, Posting{
			AccountID: accountID, Currency: currency, Amount: amount,
			Kind: domain.KindEventReward, Description: "event reward " + eventID, ReferenceID: &ref,
		})
		return err
	})
	if err != nil {
		return models.Entry{}, err
	}
	recordEntries(res.Entries)
	return res.Entries[0], nil
}

// EarningTargets reports progress of the current diamond balance against every tier.
func (s *RewardService) EarningTargets(ctx context.Context, accountID string) ([]rewards.TargetProgress, error) {
	cfg, err := currentConfig(ctx, s.economy)
	if err != nil {
		return nil, err
	}
	b, err := s.engine.Store().Queries().GetBalance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return rewards.EvaluateTargets(b.Diamonds, cfg.EarningTargets), nil
}

// ClaimEarningTarget pays a completed tier's coin reward once. Cash rewards
// and badges are fulfilled outside the ledger.
func (s *RewardService) ClaimEarningTarget(ctx context.Context, accountID, tierID string) (models.Entry, error) {
	cfg, err := currentConfig(ctx, s.economy)
	if err != nil {
		return models.Entry{}, err
	}
	tier, ok := cfg.Tier(tierID)
	if !ok {
		return models.Entry{}, fmt.Errorf("tier %q: %w", tierID, domain.ErrUnknownTier)
	}
	if tier.CoinReward <= 0 {
		return models.Entry{}, fmt.Errorf("tier %q has no coin reward: %w", tierID, domain.ErrInvalidAmount)
	}

	ref := domain.RefPrefixEarningTarget + tier.ID
	var res *PostResult
	err = s.engine.Transact(ctx, "earning_target", func(q repository.Querier) error {
		b, err := q.GetBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if b.Diamonds < tier.DiamondsRequired {
			return fmt.Errorf("tier %q needs %d diamonds, have %d: %w", tier.ID, tier.DiamondsRequired, b.Diamonds, domain.ErrTargetNotReached)
		}
		if err := ensureUnclaimed(ctx, q, accountID, domain.KindReward, ref); err != nil {
			return err
		}
		res, err = s.engine.PostTx(ctx, q, Posting{
			AccountID: accountID, Currency: domain.CurrencyCoins, Amount: tier.CoinReward,
			Kind: domain.KindReward, Description: "earning target " + tier.ID, ReferenceID: &ref,
		})
		return err
	})
	if err != nil {
		return models.Entry{}, err
	}
	recordEntries(res.Entries)
	return res.Entries[0], nil
}

func ensureUnclaimed(ctx context.Context, q repository.Querier, accountID string, kind domain.EntryKind, ref string) error {
	exists, err := q.EntryExistsForReference(ctx, repository.EntryReferenceParams{
		AccountID:   accountID,
		Kind:        kind,
		ReferenceID: ref,
	})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s for %s: %w", ref, accountID, domain.ErrAlreadyClaimed)
	}
	return nil
}
