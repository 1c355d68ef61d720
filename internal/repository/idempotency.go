package repository

import (
	"context"
	"time"
)

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	InProgress     bool
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	CreatedAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

const idempotencyColumns = `idempotency_key, request_hash, method, path, in_progress,
	response_status, response_body, content_type, created_at`

const getIdempotencyKey = `SELECT ` + idempotencyColumns + ` FROM idempotency_keys WHERE idempotency_key = $1`

// GetIdempotencyKey returns pgx.ErrNoRows when the key is unknown.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := q.db.QueryRow(ctx, getIdempotencyKey, key).Scan(
		&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.InProgress,
		&k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.CreatedAt)
	return k, err
}

const reserveIdempotencyKey = `
INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, response_status, response_body, content_type)
VALUES ($1, $2, $3, $4, TRUE, 0, ''::bytea, '')
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING ` + idempotencyColumns

// ReserveIdempotencyKey returns pgx.ErrNoRows when another request already holds the key.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := q.db.QueryRow(ctx, reserveIdempotencyKey, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path).Scan(
		&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.InProgress,
		&k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.CreatedAt)
	return k, err
}

const finalizeIdempotencyKey = `
UPDATE idempotency_keys
SET in_progress = FALSE, response_status = $1, response_body = $2, content_type = $3
WHERE idempotency_key = $4 AND request_hash = $5
RETURNING ` + idempotencyColumns

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := q.db.QueryRow(ctx, finalizeIdempotencyKey,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash).Scan(
		&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.InProgress,
		&k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.CreatedAt)
	return k, err
}

const releaseIdempotencyKey = `
DELETE FROM idempotency_keys
WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress
`

// ReleaseIdempotencyKey drops an unfinished reservation so the client may retry.
func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := q.db.Exec(ctx, releaseIdempotencyKey, key, requestHash)
	return err
}
