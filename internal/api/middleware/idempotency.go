package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayo6706/economy-ledger/internal/api/problem"
	"github.com/ayo6706/economy-ledger/internal/idempotency"
	"github.com/ayo6706/economy-ledger/internal/observability"
	"go.uber.org/zap"
)

var idempotentMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// IdempotencyMiddleware makes mutating requests safe to retry. The first
// request under a key runs the handler; later ones with the same body get the
// stored response, and a different body under the same key is a conflict.
// Keys are scoped to the authenticated account, so two accounts may reuse the
// same client-generated key. Server errors release the key instead of
// storing the failure.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := idempotentMethods[r.Method]; !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			g := guard{store: store, logger: logger}

			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			switch {
			case clientKey == "":
				observability.IncrementIdempotencyEvent("missing_key")
				problem.WriteCode(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), "IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required")
				return
			case len(clientKey) > maxKeyLength:
				problem.WriteCode(w, r, http.StatusBadRequest, problem.Type("idempotency/invalid-key"), "IDEMPOTENCY_KEY_INVALID", "Idempotency-Key is too long")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.WriteCode(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "INVALID_BODY", "failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			g.key = scopedKey(UserIDFromContext(r.Context()), clientKey)
			g.hash = hashRequest(r.Method, r.URL.Path, body)

			if g.replayExisting(w, r) {
				return
			}

			reserved, err := store.Reserve(r.Context(), g.key, g.hash, r.Method, r.URL.Path)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				logger.Error("idempotency reserve failed", zap.Error(err))
				problem.WriteCode(w, r, http.StatusServiceUnavailable, problem.Type("idempotency/unavailable"), "IDEMPOTENCY_UNAVAILABLE", "idempotency unavailable")
				return
			}
			if !reserved {
				// lost the race to a concurrent request with the same key
				g.await(w, r, "replay_after_reserve")
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)
			g.settle(r, recorder)
		})
	}
}

// guard carries one request's scoped key and body hash through the flow.
type guard struct {
	store  *idempotency.Store
	logger *zap.Logger
	key    string
	hash   string
}

// replayExisting answers from a stored or in-flight record and reports
// whether the response has been written.
func (g guard) replayExisting(w http.ResponseWriter, r *http.Request) bool {
	rec, err := g.store.Lookup(r.Context(), g.key, g.hash)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		respondFromRecord(w, rec)
		return true
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.WriteCode(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), "IDEMPOTENCY_KEY_CONFLICT", "Idempotency-Key was already used with a different request")
		return true
	case errors.Is(err, idempotency.ErrInProgress):
		g.await(w, r, "replay_after_wait")
		return true
	case errors.Is(err, idempotency.ErrNotFound):
		return false
	default:
		// fall through to Reserve, which is authoritative
		observability.IncrementIdempotencyEvent("lookup_error")
		g.logger.Warn("idempotency lookup failed", zap.Error(err))
		return false
	}
}

func (g guard) await(w http.ResponseWriter, r *http.Request, outcome string) {
	rec, err := g.store.WaitForCompletion(r.Context(), g.key, g.hash)
	if err == nil {
		observability.IncrementIdempotencyEvent(outcome)
		respondFromRecord(w, rec)
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	g.logger.Warn("idempotency wait failed", zap.Error(err), zap.String("key", g.key))
	problem.WriteCode(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), "IDEMPOTENCY_IN_PROGRESS", "a request with this Idempotency-Key is still being processed")
}

// settle stores the handler's response, or releases the key on a server error.
func (g guard) settle(r *http.Request, rec *bodyRecorder) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if rec.status >= http.StatusInternalServerError {
		if err := g.store.Release(r.Context(), g.key, g.hash); err != nil {
			g.logger.Warn("idempotency release failed", zap.Error(err), zap.String("key", g.key))
		}
		observability.IncrementIdempotencyEvent("released")
		return
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if _, err := g.store.Finalize(r.Context(), g.key, g.hash, rec.status, rec.body.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", g.key))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

const maxKeyLength = 128

func scopedKey(accountID, key string) string {
	if accountID == "" {
		return key
	}
	return accountID + ":" + key
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"), body...))
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func respondFromRecord(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
