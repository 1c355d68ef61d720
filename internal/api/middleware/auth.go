package middleware

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/ayo6706/economy-ledger/internal/api/problem"
	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	traceContextKey     contextKey = "trace_id"
)

// Principal is the caller identity taken from a verified bearer token.
// Tokens are issued elsewhere; this service only verifies them.
type Principal struct {
	AccountID string
	Role      string
}

var (
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
)

type ledgerClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func unauthorized(w http.ResponseWriter, r *http.Request, slug, detail string) {
	problem.WriteCode(w, r, http.StatusUnauthorized, problem.Type("auth/"+slug), "UNAUTHORIZED", detail)
}

// AuthMiddleware verifies the HS256 bearer token and stores the Principal.
// Tokens without a role are treated as plain users.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(jwtSecret) == 0 {
			problem.WriteCode(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), "INTERNAL", "auth is not configured")
			return
		}
		raw, ok := bearerToken(r)
		if !ok {
			unauthorized(w, r, "missing-token", "bearer token required")
			return
		}

		claims := &ledgerClaims{}
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if jwtIssuer != "" {
			opts = append(opts, jwt.WithIssuer(jwtIssuer))
		}
		if jwtAudience != "" {
			opts = append(opts, jwt.WithAudience(jwtAudience))
		}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return jwtSecret, nil
		}, opts...)
		if err != nil || !token.Valid {
			unauthorized(w, r, "invalid-token", "invalid token")
			return
		}

		p, ok := principalFromClaims(claims)
		if !ok {
			unauthorized(w, r, "invalid-token-claims", "invalid token claims")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, p)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func principalFromClaims(c *ledgerClaims) (Principal, bool) {
	if c.UserID == "" {
		return Principal{}, false
	}
	if c.Subject != "" && c.Subject != c.UserID {
		return Principal{}, false
	}
	role := c.Role
	if role == "" {
		role = domain.RoleUser
	}
	switch role {
	case domain.RoleUser, domain.RoleAdmin, domain.RoleService:
	default:
		return Principal{}, false
	}
	return Principal{AccountID: c.UserID, Role: role}, true
}

// RequireRole admits principals holding any of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !slices.Contains(roles, p.Role) {
				problem.WriteCode(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// UserIDFromContext returns the authenticated account id, or "".
func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.AccountID
}

func UserRoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
