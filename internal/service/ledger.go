package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/observability"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 5 * time.Millisecond
	defaultMaxBackoff  = 250 * time.Millisecond
)

// Posting is one signed balance change. Positive amounts credit, negative debit.
type Posting struct {
	AccountID        string
	Currency         domain.Currency
	Amount           int64
	Kind             domain.EntryKind
	Description      string
	RelatedAccountID *string
	ReferenceID      *string
}

// PostResult holds the entries written by one operation and the resulting balances.
type PostResult struct {
	OperationID string
	Entries     []models.Entry
	Balances    map[string]models.Balance
}

// Mutation is a single-account credit or debit.
type Mutation struct {
	AccountID   string
	Currency    domain.Currency
	Amount      int64
	Kind        domain.EntryKind
	Description string
	ReferenceID *string
}

type TransferRequest struct {
	From        string
	To          string
	Currency    domain.Currency
	Amount      int64
	Description string
}

// GiftRequest moves coins from the sender and credits diamonds to the receiver.
// The catalog price and the receiver's share are computed upstream.
type GiftRequest struct {
	From             string
	To               string
	CoinCost         int64
	DiamondsCredited int64
	GiftRef          string
}

// LedgerEngine is the only writer of balances. Every operation runs in one
// database transaction; per-account compare-and-swap is applied in ascending
// account order and the whole transaction is retried on a version conflict.
type LedgerEngine struct {
	store       QueryStore
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewLedgerEngine(store QueryStore) *LedgerEngine {
	return &LedgerEngine{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		now:         time.Now,
		sleep:       sleepContext,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// WithMaxAttempts overrides the retry bound for version conflicts.
func (e *LedgerEngine) WithMaxAttempts(n int) *LedgerEngine {
	if n > 0 {
		e.maxAttempts = n
	}
	return e
}

// WithBackoff overrides the retry backoff window.
func (e *LedgerEngine) WithBackoff(base, ceiling time.Duration) *LedgerEngine {
	if base > 0 {
		e.baseBackoff = base
	}
	if ceiling >= e.baseBackoff {
		e.maxBackoff = ceiling
	}
	return e
}

// WithClock overrides the time source used for entry timestamps.
func (e *LedgerEngine) WithClock(now func() time.Time) *LedgerEngine {
	if now != nil {
		e.now = now
	}
	return e
}

// Store exposes the engine's store to read-side callers.
func (e *LedgerEngine) Store() QueryStore {
	return e.store
}

// Now returns the engine clock.
func (e *LedgerEngine) Now() time.Time {
	return e.now()
}

// Transact runs fn in a transaction, retrying the whole transaction when a
// balance compare-and-swap loses a race. fn must be safe to re-run.
func (e *LedgerEngine) Transact(ctx context.Context, operation string, fn func(q repository.Querier) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := e.store.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		lastErr = err
		observability.IncrementLedgerRetry(operation)
		if attempt == e.maxAttempts {
			break
		}
		if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
			return err
		}
	}

	observability.IncrementConcurrencyExhausted(operation)
	zap.L().Warn("ledger retries exhausted",
		zap.String("operation", operation),
		zap.String("account_id", conflictAccount(lastErr)),
		zap.Int("attempts", e.maxAttempts),
	)
	return fmt.Errorf("%s: %w", operation, domain.ErrConcurrencyExhausted)
}

// backoff returns a full-jitter delay for the given attempt.
func (e *LedgerEngine) backoff(attempt int) time.Duration {
	ceiling := e.baseBackoff << (attempt - 1)
	if ceiling <= 0 || ceiling > e.maxBackoff {
		ceiling = e.maxBackoff
	}
	return time.Duration(mathrand.Int63n(int64(ceiling) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Post applies postings atomically in their own transaction.
func (e *LedgerEngine) Post(ctx context.Context, operation string, postings ...Posting) (*PostResult, error) {
	var res *PostResult
	err := e.Transact(ctx, operation, func(q repository.Querier) error {
		var err error
		res, err = e.PostTx(ctx, q, postings...)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordEntries(res.Entries)
	return res, nil
}

// PostTx applies postings inside the caller's transaction. On any error the
// caller must roll back.
func (e *LedgerEngine) PostTx(ctx context.Context, q repository.Querier, postings ...Posting) (*PostResult, error) {
	if len(postings) == 0 {
		return nil, fmt.Errorf("no postings: %w", domain.ErrInvalidAmount)
	}
	accounts := make(map[string]struct{}, len(postings))
	for _, p := range postings {
		if err := validatePosting(p); err != nil {
			return nil, err
		}
		accounts[p.AccountID] = struct{}{}
	}
	ordered := make([]string, 0, len(accounts))
	for id := range accounts {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	before := make(map[string]models.Balance, len(ordered))
	for _, id := range ordered {
		b, err := q.GetBalance(ctx, id)
		if err != nil {
			return nil, err
		}
		before[id] = b
	}

	after := make(map[string]models.Balance, len(ordered))
	for id, b := range before {
		after[id] = b
	}
	balanceAfter := make([]int64, len(postings))
	for i, p := range postings {
		b := after[p.AccountID]
		current := b.Amount(p.Currency)
		next, err := domain.AddBalance(current, p.Amount)
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, &domain.InsufficientBalanceError{
				AccountID: p.AccountID,
				Currency:  p.Currency,
				Available: current,
				Requested: -p.Amount,
			}
		}
		if err != nil {
			return nil, err
		}
		after[p.AccountID] = b.With(p.Currency, next)
		balanceAfter[i] = next
	}

	now := e.now().UTC().Truncate(time.Microsecond)
	for _, id := range ordered {
		b := after[id]
		rows, err := q.CompareAndSwapBalance(ctx, repository.CompareAndSwapBalanceParams{
			AccountID:       id,
			ExpectedVersion: before[id].Version,
			Coins:           b.Coins,
			Diamonds:        b.Diamonds,
			UpdatedAt:       now,
		})
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, &versionConflict{accountID: id}
		}
		b.Version = before[id].Version + 1
		b.UpdatedAt = now
		after[id] = b
	}

	// The CAS above holds the row lock, so the log heads read here are final.
	heads := make(map[chainKey]chainHead)
	operationID := e.newID(now)
	entries := make([]models.Entry, 0, len(postings))
	for i, p := range postings {
		key := chainKey{accountID: p.AccountID, currency: p.Currency}
		head, ok := heads[key]
		if !ok {
			var err error
			head, err = e.loadHead(ctx, q, key, before[p.AccountID].Amount(p.Currency))
			if err != nil {
				return nil, err
			}
		}

		entry := models.Entry{
			ID:               e.newID(now),
			OperationID:      operationID,
			AccountID:        p.AccountID,
			Kind:             p.Kind,
			Currency:         p.Currency,
			Amount:           p.Amount,
			BalanceAfter:     balanceAfter[i],
			Description:      p.Description,
			RelatedAccountID: p.RelatedAccountID,
			ReferenceID:      p.ReferenceID,
			PrevHash:         head.hash,
			CreatedAt:        now,
		}
		entry.Hash = EntryHash(entry)
		if err := q.InsertEntry(ctx, entry); err != nil {
			return nil, err
		}
		heads[key] = chainHead{hash: entry.Hash, balanceAfter: entry.BalanceAfter}
		entries = append(entries, entry)
	}

	return &PostResult{OperationID: operationID, Entries: entries, Balances: after}, nil
}

type chainKey struct {
	accountID string
	currency  domain.Currency
}

type chainHead struct {
	hash         string
	balanceAfter int64
}

// loadHead returns the latest log entry for key and checks that its
// balance_after matches the balance store before anything is appended.
func (e *LedgerEngine) loadHead(ctx context.Context, q repository.Querier, key chainKey, stored int64) (chainHead, error) {
	last, err := q.GetLastEntry(ctx, key.accountID, key.currency)
	if errors.Is(err, repository.ErrNotFound) {
		if stored != 0 {
			return chainHead{}, e.inconsistent(key, stored, 0)
		}
		return chainHead{}, nil
	}
	if err != nil {
		return chainHead{}, err
	}
	if last.BalanceAfter != stored {
		return chainHead{}, e.inconsistent(key, stored, last.BalanceAfter)
	}
	return chainHead{hash: last.Hash, balanceAfter: last.BalanceAfter}, nil
}

func (e *LedgerEngine) inconsistent(key chainKey, stored, logged int64) error {
	observability.IncrementLedgerDrift(string(key.currency), "write_time")
	zap.L().Error("ledger log disagrees with balance store",
		zap.String("account_id", key.accountID),
		zap.String("currency", string(key.currency)),
		zap.Int64("stored", stored),
		zap.Int64("logged", logged),
	)
	return fmt.Errorf("%s %s: stored %d, logged %d: %w", key.accountID, key.currency, stored, logged, domain.ErrLedgerInconsistent)
}

func (e *LedgerEngine) newID(t time.Time) string {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), e.entropy).String()
}

// EntryHash chains an entry to its predecessor for tamper evidence.
func EntryHash(entry models.Entry) string {
	ref := ""
	if entry.ReferenceID != nil {
		ref = *entry.ReferenceID
	}
	payload := strings.Join([]string{
		entry.PrevHash,
		entry.ID,
		entry.AccountID,
		string(entry.Currency),
		string(entry.Kind),
		strconv.FormatInt(entry.Amount, 10),
		strconv.FormatInt(entry.BalanceAfter, 10),
		ref,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func validatePosting(p Posting) error {
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("account id is required: %w", domain.ErrInvalidAmount)
	}
	if !p.Currency.Valid() {
		return domain.ErrInvalidCurrency
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown entry kind %q: %w", p.Kind, domain.ErrInvalidAmount)
	}
	if p.Amount == 0 {
		return fmt.Errorf("zero amount: %w", domain.ErrInvalidAmount)
	}
	return nil
}

func recordEntries(entries []models.Entry) {
	for _, entry := range entries {
		observability.IncrementLedgerEntry(string(entry.Kind), string(entry.Currency))
	}
}

type versionConflict struct {
	accountID string
}

func (e *versionConflict) Error() string {
	return fmt.Sprintf("account %s: %s", e.accountID, domain.ErrVersionConflict)
}

func (e *versionConflict) Unwrap() error {
	return domain.ErrVersionConflict
}

func conflictAccount(err error) string {
	var vc *versionConflict
	if errors.As(err, &vc) {
		return vc.accountID
	}
	return ""
}

// Credit adds a positive amount to one balance.
func (e *LedgerEngine) Credit(ctx context.Context, m Mutation) (models.Entry, error) {
	if m.Amount <= 0 {
		return models.Entry{}, fmt.Errorf("credit %d: %w", m.Amount, domain.ErrInvalidAmount)
	}
	res, err := e.Post(ctx, "credit", Posting{
		AccountID:   m.AccountID,
		Currency:    m.Currency,
		Amount:      m.Amount,
		Kind:        m.Kind,
		Description: m.Description,
		ReferenceID: m.ReferenceID,
	})
	if err != nil {
		return models.Entry{}, err
	}
	return res.Entries[0], nil
}

// Debit removes a positive amount from one balance, never partially.
func (e *LedgerEngine) Debit(ctx context.Context, m Mutation) (models.Entry, error) {
	if m.Amount <= 0 {
		return models.Entry{}, fmt.Errorf("debit %d: %w", m.Amount, domain.ErrInvalidAmount)
	}
	res, err := e.Post(ctx, "debit", Posting{
		AccountID:   m.AccountID,
		Currency:    m.Currency,
		Amount:      -m.Amount,
		Kind:        m.Kind,
		Description: m.Description,
		ReferenceID: m.ReferenceID,
	})
	if err != nil {
		return models.Entry{}, err
	}
	return res.Entries[0], nil
}

// Transfer moves an amount between two accounts in one currency.
func (e *LedgerEngine) Transfer(ctx context.Context, req TransferRequest) (debit, credit models.Entry, err error) {
	if req.Amount <= 0 {
		return debit, credit, fmt.Errorf("transfer %d: %w", req.Amount, domain.ErrInvalidAmount)
	}
	if req.From == req.To {
		return debit, credit, fmt.Errorf("sender and receiver are the same account: %w", domain.ErrInvalidTransfer)
	}
	from, to := req.From, req.To
	res, err := e.Post(ctx, "transfer",
		Posting{
			AccountID:        from,
			Currency:         req.Currency,
			Amount:           -req.Amount,
			Kind:             domain.KindTransferOut,
			Description:      req.Description,
			RelatedAccountID: &to,
		},
		Posting{
			AccountID:        to,
			Currency:         req.Currency,
			Amount:           req.Amount,
			Kind:             domain.KindTransferIn,
			Description:      req.Description,
			RelatedAccountID: &from,
		},
	)
	if err != nil {
		return debit, credit, err
	}
	return res.Entries[0], res.Entries[1], nil
}

// Exchange converts diamonds to coins at rate, flooring the coins received.
func (e *LedgerEngine) Exchange(ctx context.Context, accountID string, diamonds int64, rate decimal.Decimal) (*models.ExchangeResult, error) {
	coins, err := domain.CoinsForDiamonds(diamonds, rate)
	if err != nil {
		return nil, err
	}

	var res *PostResult
	err = e.Transact(ctx, "exchange", func(q repository.Querier) error {
		b, err := q.GetBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if b.Diamonds < diamonds {
			return &domain.InsufficientBalanceError{
				AccountID: accountID,
				Currency:  domain.CurrencyDiamonds,
				Available: b.Diamonds,
				Requested: diamonds,
			}
		}
		if coins == 0 {
			return fmt.Errorf("%d diamonds at %s yields no coins: %w", diamonds, rate, domain.ErrInvalidAmount)
		}
		desc := fmt.Sprintf("exchanged %d diamonds for %d coins", diamonds, coins)
		res, err = e.PostTx(ctx, q,
			Posting{AccountID: accountID, Currency: domain.CurrencyDiamonds, Amount: -diamonds, Kind: domain.KindExchange, Description: desc},
			Posting{AccountID: accountID, Currency: domain.CurrencyCoins, Amount: coins, Kind: domain.KindExchange, Description: desc},
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordEntries(res.Entries)
	return &models.ExchangeResult{
		DiamondsUsed:  diamonds,
		CoinsReceived: coins,
		NewBalance:    res.Balances[accountID],
		DebitEntry:    res.Entries[0],
		CreditEntry:   res.Entries[1],
	}, nil
}

// Gift debits the sender's coins and credits the receiver's diamonds as one operation.
func (e *LedgerEngine) Gift(ctx context.Context, req GiftRequest) (sent, received models.Entry, err error) {
	if req.CoinCost <= 0 || req.DiamondsCredited < 0 {
		return sent, received, fmt.Errorf("gift cost %d, share %d: %w", req.CoinCost, req.DiamondsCredited, domain.ErrInvalidAmount)
	}
	if req.From == req.To {
		return sent, received, fmt.Errorf("cannot gift yourself: %w", domain.ErrInvalidTransfer)
	}
	from, to := req.From, req.To
	var ref *string
	if req.GiftRef != "" {
		r := domain.RefPrefixGift + req.GiftRef
		ref = &r
	}
	postings := []Posting{{
		AccountID:        from,
		Currency:         domain.CurrencyCoins,
		Amount:           -req.CoinCost,
		Kind:             domain.KindGiftSent,
		RelatedAccountID: &to,
		ReferenceID:      ref,
	}}
	if req.DiamondsCredited > 0 {
		postings = append(postings, Posting{
			AccountID:        to,
			Currency:         domain.CurrencyDiamonds,
			Amount:           req.DiamondsCredited,
			Kind:             domain.KindGiftReceived,
			RelatedAccountID: &from,
			ReferenceID:      ref,
		})
	}
	res, err := e.Post(ctx, "gift", postings...)
	if err != nil {
		return sent, received, err
	}
	sent = res.Entries[0]
	if len(res.Entries) > 1 {
		received = res.Entries[1]
	}
	return sent, received, nil
}
