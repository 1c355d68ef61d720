package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ayo6706/economy-ledger/internal/repository/memory"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycleWithoutRedis(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memory.New(), time.Hour)

	_, err := s.Lookup(ctx, "acc-1:k1", "hash-a")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Reserve(ctx, "acc-1:k1", "hash-a", "POST", "/v1/wallet/exchange")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "acc-1:k1", "hash-a", "POST", "/v1/wallet/exchange")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Lookup(ctx, "acc-1:k1", "hash-a")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := s.Finalize(ctx, "acc-1:k1", "hash-a", 200, []byte(`{"coins_received":3}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)

	replay, err := s.Lookup(ctx, "acc-1:k1", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "postgres", replay.ServedBy)
	assert.JSONEq(t, `{"coins_received":3}`, string(replay.Body))

	_, err = s.Lookup(ctx, "acc-1:k1", "hash-b")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memory.New(), time.Hour)

	ok, err := s.Reserve(ctx, "k", "h", "POST", "/v1/cashouts")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Release(ctx, "k", "h"))

	ok, err = s.Reserve(ctx, "k", "h", "POST", "/v1/cashouts")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForCompletionRespectsContext(t *testing.T) {
	s := NewStore(nil, memory.New(), time.Hour)
	s.poll = time.Millisecond
	ok, err := s.Reserve(context.Background(), "k", "h", "POST", "/v1/wallet/transfer")
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.WaitForCompletion(ctx, "k", "h")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLookupServedFromRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := NewStore(client, memory.New(), time.Hour)

	payload, err := json.Marshal(cacheEnvelope{Key: "k", Hash: "h", Status: 201, Body: []byte(`{}`), ContentType: "application/json"})
	require.NoError(t, err)
	mock.ExpectGet("ledger:idempotency:k").SetVal(string(payload))
	mock.ExpectGet("ledger:idempotency:k").SetVal(string(payload))

	rec, err := s.Lookup(ctx, "k", "h")
	require.NoError(t, err)
	assert.Equal(t, "redis", rec.ServedBy)
	assert.Equal(t, 201, rec.Status)

	_, err = s.Lookup(ctx, "k", "other")
	require.ErrorIs(t, err, ErrHashMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCachesInRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	keys := memory.New()
	s := NewStore(client, keys, time.Hour)

	ok, err := s.Reserve(ctx, "k", "h", "POST", "/v1/wallet/exchange")
	require.NoError(t, err)
	require.True(t, ok)

	body := []byte(`{"ok":true}`)
	payload, err := json.Marshal(cacheEnvelope{Key: "k", Hash: "h", Status: 200, Body: body, ContentType: "application/json"})
	require.NoError(t, err)
	mock.ExpectSet("ledger:idempotency:k", payload, time.Hour).SetVal("OK")
	mock.ExpectGet("ledger:idempotency:k").RedisNil()
	mock.ExpectSet("ledger:idempotency:k", payload, time.Hour).SetVal("OK")

	_, err = s.Finalize(ctx, "k", "h", 200, body, "application/json")
	require.NoError(t, err)

	rec, err := s.Lookup(ctx, "k", "h")
	require.NoError(t, err)
	assert.Equal(t, "postgres", rec.ServedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}
