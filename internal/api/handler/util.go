package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/economy-ledger/internal/api/middleware"
	"github.com/ayo6706/economy-ledger/internal/api/problem"
	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// requestActor returns the authenticated account id and whether it holds the admin role.
func requestActor(r *http.Request) (string, bool, error) {
	accountID := middleware.UserIDFromContext(r.Context())
	if accountID == "" {
		return "", false, errors.New("missing user in auth context")
	}
	return accountID, middleware.UserRoleFromContext(r.Context()) == domain.RoleAdmin, nil
}

func queryInt(r *http.Request, name string, def, min int) (int, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, true
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < min {
		return 0, false
	}
	return parsed, true
}

// mapDBError covers Postgres failures that escape the service layer. A check
// violation here means the balance CHECK caught what the engine should have.
func mapDBError(err error) (errorMapping, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return errorMapping{}, false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return errorMapping{nil, http.StatusConflict, "db/unique-violation", "CONFLICT"}, true
	case "23514": // check_violation
		return errorMapping{nil, http.StatusUnprocessableEntity, "db/check-violation", "INSUFFICIENT_BALANCE"}, true
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return errorMapping{nil, http.StatusServiceUnavailable, "db/retryable", "CONCURRENCY_EXHAUSTED"}, true
	default:
		return errorMapping{}, false
	}
}
