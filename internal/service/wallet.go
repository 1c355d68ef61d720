package service

import (
	"context"
	"fmt"
	"math"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/repository"
)

// WalletService serves balance reads and the user-initiated mutations.
type WalletService struct {
	engine  *LedgerEngine
	economy economy.Provider
}

func NewWalletService(engine *LedgerEngine, provider economy.Provider) *WalletService {
	return &WalletService{engine: engine, economy: provider}
}

func (s *WalletService) GetWallet(ctx context.Context, accountID string) (models.Balance, error) {
	b, err := s.engine.Store().Queries().GetBalance(ctx, accountID)
	if err != nil {
		return models.Balance{}, fmt.Errorf("get wallet: %w", err)
	}
	return b, nil
}

// ListTransactions returns one page of the account's log, newest first, and the total count.
func (s *WalletService) ListTransactions(ctx context.Context, accountID string, page, pageSize int) ([]models.Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	q := s.engine.Store().Queries()
	total, err := q.CountEntries(ctx, accountID)
	if err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}
	// pages past the end, including offsets beyond int32, are empty
	if page-1 > math.MaxInt32/pageSize {
		return nil, total, nil
	}
	offset := int64(page-1) * int64(pageSize)
	if offset >= total {
		return nil, total, nil
	}
	entries, err := q.ListEntries(ctx, repository.ListEntriesParams{
		AccountID: accountID,
		Limit:     int32(pageSize),
		Offset:    int32(offset),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	return entries, total, nil
}

// Exchange converts diamonds to coins at the currently effective rate.
func (s *WalletService) Exchange(ctx context.Context, accountID string, diamonds int64) (*models.ExchangeResult, error) {
	cfg, err := currentConfig(ctx, s.economy)
	if err != nil {
		return nil, err
	}
	return s.engine.Exchange(ctx, accountID, diamonds, cfg.ExchangeRate)
}

func (s *WalletService) Transfer(ctx context.Context, req TransferRequest) (debit, credit models.Entry, err error) {
	if req.Currency == "" {
		req.Currency = domain.CurrencyCoins
	}
	return s.engine.Transfer(ctx, req)
}

func (s *WalletService) Credit(ctx context.Context, m Mutation) (models.Entry, error) {
	return s.engine.Credit(ctx, m)
}

func (s *WalletService) Debit(ctx context.Context, m Mutation) (models.Entry, error) {
	return s.engine.Debit(ctx, m)
}

func (s *WalletService) Gift(ctx context.Context, req GiftRequest) (sent, received models.Entry, err error) {
	return s.engine.Gift(ctx, req)
}
