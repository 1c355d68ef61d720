// Package memory provides an in-process Querier for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/models"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store keeps all rows in maps guarded by a single mutex. RunInTx holds the
// mutex for the whole callback and restores a snapshot when fn fails, so
// transactions are fully serialized.
type Store struct {
	mu sync.Mutex
	st *state

	// conflicts forces the next N compare-and-swaps on an account to miss.
	conflicts map[string]int
}

type state struct {
	balances    map[string]models.Balance
	entries     []models.Entry
	cashouts    map[uuid.UUID]models.CashoutRequest
	audit       []models.AuditRecord
	idempotency map[string]repository.IdempotencyKey
}

type snapshot struct {
	balances    map[string]models.Balance
	entries     int
	cashouts    map[uuid.UUID]models.CashoutRequest
	audit       int
	idempotency map[string]repository.IdempotencyKey
}

func New() *Store {
	return &Store{
		st: &state{
			balances:    make(map[string]models.Balance),
			cashouts:    make(map[uuid.UUID]models.CashoutRequest),
			idempotency: make(map[string]repository.IdempotencyKey),
		},
		conflicts: make(map[string]int),
	}
}

// Queries returns a view where every call locks independently.
func (s *Store) Queries() repository.Querier {
	return &view{s: s}
}

// RunInTx executes fn atomically against the store.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&view{s: s, inTx: true}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// InjectConflicts makes the next n balance compare-and-swaps for accountID
// report a version conflict.
func (s *Store) InjectConflicts(accountID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[accountID] = n
}

// Entries returns a copy of the full log in append order.
func (s *Store) Entries() []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Entry(nil), s.st.entries...)
}

// AuditRecords returns a copy of the audit trail in append order.
func (s *Store) AuditRecords() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditRecord(nil), s.st.audit...)
}

// SetBalance overwrites a balance row without logging. Tests use it to
// simulate drift between the log and the balance store.
func (s *Store) SetBalance(b models.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.balances[b.AccountID] = b
}

func (s *Store) snapshot() snapshot {
	balances := make(map[string]models.Balance, len(s.st.balances))
	for k, v := range s.st.balances {
		balances[k] = v
	}
	cashouts := make(map[uuid.UUID]models.CashoutRequest, len(s.st.cashouts))
	for k, v := range s.st.cashouts {
		cashouts[k] = v
	}
	idem := make(map[string]repository.IdempotencyKey, len(s.st.idempotency))
	for k, v := range s.st.idempotency {
		idem[k] = v
	}
	return snapshot{
		balances:    balances,
		entries:     len(s.st.entries),
		cashouts:    cashouts,
		audit:       len(s.st.audit),
		idempotency: idem,
	}
}

func (s *Store) restore(snap snapshot) {
	s.st.balances = snap.balances
	s.st.entries = s.st.entries[:snap.entries]
	s.st.cashouts = snap.cashouts
	s.st.audit = s.st.audit[:snap.audit]
	s.st.idempotency = snap.idempotency
}

type view struct {
	s    *Store
	inTx bool
}

var _ repository.Querier = (*view)(nil)

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) GetBalance(_ context.Context, accountID string) (models.Balance, error) {
	defer v.lock()()
	if b, ok := v.s.st.balances[accountID]; ok {
		return b, nil
	}
	return models.Balance{AccountID: accountID}, nil
}

func (v *view) CompareAndSwapBalance(_ context.Context, arg repository.CompareAndSwapBalanceParams) (int64, error) {
	defer v.lock()()
	if n := v.s.conflicts[arg.AccountID]; n > 0 {
		v.s.conflicts[arg.AccountID] = n - 1
		return 0, nil
	}
	if arg.Coins < 0 || arg.Diamonds < 0 {
		return 0, domain.ErrInsufficientBalance
	}
	current, ok := v.s.st.balances[arg.AccountID]
	if !ok && arg.ExpectedVersion != 0 {
		return 0, nil
	}
	if ok && current.Version != arg.ExpectedVersion {
		return 0, nil
	}
	v.s.st.balances[arg.AccountID] = models.Balance{
		AccountID: arg.AccountID,
		Coins:     arg.Coins,
		Diamonds:  arg.Diamonds,
		Version:   arg.ExpectedVersion + 1,
		UpdatedAt: arg.UpdatedAt,
	}
	return 1, nil
}

func (v *view) ListBalances(_ context.Context, arg repository.ListBalancesParams) ([]models.Balance, error) {
	defer v.lock()()
	var out []models.Balance
	for id, b := range v.s.st.balances {
		if id > arg.AfterAccountID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	if arg.Limit > 0 && len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (v *view) InsertEntry(_ context.Context, e models.Entry) error {
	defer v.lock()()
	v.s.st.entries = append(v.s.st.entries, e)
	return nil
}

func (v *view) GetLastEntry(_ context.Context, accountID string, currency domain.Currency) (models.Entry, error) {
	defer v.lock()()
	for i := len(v.s.st.entries) - 1; i >= 0; i-- {
		e := v.s.st.entries[i]
		if e.AccountID == accountID && e.Currency == currency {
			return e, nil
		}
	}
	return models.Entry{}, repository.ErrNotFound
}

func (v *view) ListEntries(_ context.Context, arg repository.ListEntriesParams) ([]models.Entry, error) {
	defer v.lock()()
	var out []models.Entry
	skipped := int32(0)
	for i := len(v.s.st.entries) - 1; i >= 0; i-- {
		e := v.s.st.entries[i]
		if e.AccountID != arg.AccountID {
			continue
		}
		if skipped < arg.Offset {
			skipped++
			continue
		}
		if arg.Limit > 0 && int32(len(out)) >= arg.Limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (v *view) CountEntries(_ context.Context, accountID string) (int64, error) {
	defer v.lock()()
	var n int64
	for _, e := range v.s.st.entries {
		if e.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (v *view) ListAccountCurrencyEntries(_ context.Context, accountID string, currency domain.Currency) ([]models.Entry, error) {
	defer v.lock()()
	var out []models.Entry
	for _, e := range v.s.st.entries {
		if e.AccountID == accountID && e.Currency == currency {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) EntryExistsForReference(_ context.Context, arg repository.EntryReferenceParams) (bool, error) {
	defer v.lock()()
	for _, e := range v.s.st.entries {
		if e.AccountID == arg.AccountID && e.Kind == arg.Kind && e.ReferenceID != nil && *e.ReferenceID == arg.ReferenceID {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) InsertCashout(_ context.Context, c models.CashoutRequest) error {
	defer v.lock()()
	v.s.st.cashouts[c.ID] = c
	return nil
}

func (v *view) GetCashout(_ context.Context, id uuid.UUID) (models.CashoutRequest, error) {
	defer v.lock()()
	c, ok := v.s.st.cashouts[id]
	if !ok {
		return models.CashoutRequest{}, repository.ErrNotFound
	}
	return c, nil
}

// GetCashoutForUpdate needs no row lock: transactions are already serialized.
func (v *view) GetCashoutForUpdate(ctx context.Context, id uuid.UUID) (models.CashoutRequest, error) {
	return v.GetCashout(ctx, id)
}

func (v *view) UpdateCashoutStatus(_ context.Context, arg repository.UpdateCashoutStatusParams) (int64, error) {
	defer v.lock()()
	c, ok := v.s.st.cashouts[arg.ID]
	if !ok || c.Status != arg.FromStatus {
		return 0, nil
	}
	c.Status = arg.ToStatus
	if arg.ReviewedBy != nil {
		c.ReviewedBy = arg.ReviewedBy
	}
	if arg.ReviewedAt != nil {
		c.ReviewedAt = arg.ReviewedAt
	}
	if arg.RejectionReason != nil {
		c.RejectionReason = arg.RejectionReason
	}
	c.UpdatedAt = arg.UpdatedAt
	v.s.st.cashouts[arg.ID] = c
	return 1, nil
}

func (v *view) ListCashouts(_ context.Context, arg repository.ListCashoutsParams) ([]models.CashoutRequest, error) {
	defer v.lock()()
	var all []models.CashoutRequest
	for _, c := range v.s.st.cashouts {
		if arg.AccountID != nil && c.AccountID != *arg.AccountID {
			continue
		}
		if arg.Status != nil && c.Status != *arg.Status {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].RequestedAt.Equal(all[j].RequestedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].RequestedAt.After(all[j].RequestedAt)
	})
	return page(all, arg.Limit, arg.Offset), nil
}

func (v *view) CountCashoutsByStatus(_ context.Context, status domain.CashoutStatus) (int64, error) {
	defer v.lock()()
	var n int64
	for _, c := range v.s.st.cashouts {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

func (v *view) ClaimDueCashouts(_ context.Context, arg repository.ClaimDueCashoutsParams) ([]models.CashoutRequest, error) {
	defer v.lock()()
	var due []models.CashoutRequest
	for _, c := range v.s.st.cashouts {
		if c.Status == domain.CashoutPending && !c.ClearanceAt.After(arg.Now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ClearanceAt.Before(due[j].ClearanceAt) })
	return page(due, arg.Limit, 0), nil
}

func (v *view) ClaimUnsettledCashouts(_ context.Context, arg repository.ClaimUnsettledCashoutsParams) ([]models.CashoutRequest, error) {
	defer v.lock()()
	var out []models.CashoutRequest
	for _, c := range v.s.st.cashouts {
		if c.Status != domain.CashoutApproved || c.SettlementNotifiedAt != nil {
			continue
		}
		if c.ReviewedAt == nil || c.ReviewedAt.After(arg.ApprovedBefore) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewedAt.Before(*out[j].ReviewedAt) })
	return page(out, arg.Limit, 0), nil
}

func (v *view) MarkCashoutSettlementNotified(_ context.Context, id uuid.UUID, at time.Time) (int64, error) {
	defer v.lock()()
	c, ok := v.s.st.cashouts[id]
	if !ok || c.Status != domain.CashoutApproved || c.SettlementNotifiedAt != nil {
		return 0, nil
	}
	c.SettlementNotifiedAt = &at
	v.s.st.cashouts[id] = c
	return 1, nil
}

func (v *view) InsertAuditLog(_ context.Context, rec models.AuditRecord) error {
	defer v.lock()()
	v.s.st.audit = append(v.s.st.audit, rec)
	return nil
}

// The idempotency methods mirror repository.Queries, including pgx.ErrNoRows
// for misses, so the idempotency store can run on either backend.

func (s *Store) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.st.idempotency[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return k, nil
}

func (s *Store) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.idempotency[arg.IdempotencyKey]; ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	k := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
	}
	s.st.idempotency[arg.IdempotencyKey] = k
	return k, nil
}

func (s *Store) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.st.idempotency[arg.IdempotencyKey]
	if !ok || k.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	k.InProgress = false
	k.ResponseStatus = arg.ResponseStatus
	k.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	k.ContentType = arg.ContentType
	s.st.idempotency[arg.IdempotencyKey] = k
	return k, nil
}

func (s *Store) ReleaseIdempotencyKey(_ context.Context, key, requestHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.st.idempotency[key]; ok && k.InProgress && k.RequestHash == requestHash {
		delete(s.st.idempotency, key)
	}
	return nil
}

func page[T any](items []T, limit, offset int32) []T {
	if offset > 0 {
		if int(offset) >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > int(limit) {
		items = items[:limit]
	}
	return items
}
