package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

// ServiceKeyHeader carries the shared key used by schedulers and trusted backends
const ServiceKeyHeader = "X-Service-Key"

type ctxKey int

const callerKey ctxKey = iota

// Caller identifies who made a request. A service caller acts for any user.
type Caller struct {
	Service bool
	UserID  string
}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom returns the authenticated caller stored on the request context
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}

// Authenticator checks service keys against a bcrypt hash and verifies user tokens
type Authenticator struct {
	serviceKeyHash []byte
	jwtSecret      []byte
	jwtIssuer      string
}

// NewAuthenticator creates an authenticator from config. An empty hash or
// secret disables that credential kind.
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	return &Authenticator{
		serviceKeyHash: []byte(cfg.ServiceKeyHash),
		jwtSecret:      []byte(cfg.JWTSecret),
		jwtIssuer:      cfg.JWTIssuer,
	}
}

// ServiceKeyValid reports whether key matches the configured hash
func (a *Authenticator) ServiceKeyValid(key string) bool {
	if len(a.serviceKeyHash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.serviceKeyHash, []byte(key)) == nil
}

// Subject verifies an HS256 token and returns its sub claim
func (a *Authenticator) Subject(raw string) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", fmt.Errorf("%w: user tokens are not accepted", domain.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.jwtIssuer))
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return sub, nil
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireServiceKey only lets trusted backends through
func (h *Handler) requireServiceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.auth.ServiceKeyValid(r.Header.Get(ServiceKeyHeader)) {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), Caller{Service: true})))
	})
}

// requireCaller accepts either the service key or a user token
func (h *Handler) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auth.ServiceKeyValid(r.Header.Get(ServiceKeyHeader)) {
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), Caller{Service: true})))
			return
		}

		token := bearerToken(r)
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}
		sub, err := h.auth.Subject(token)
		if err != nil {
			h.logger.Debug("rejected user token", "error", err)
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), Caller{UserID: sub})))
	})
}
