package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"anchorledger/crypto"
	"anchorledger/observability/logging"
)

// AuthConfig configures the admin bearer-token check. Tokens are HS256 JWTs
// whose subject is the caller address handed to the ledger's owner check.
type AuthConfig struct {
	HMACSecret []byte
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "anchord.caller"

// Authenticator verifies admin bearer tokens.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
}

// NewAuthenticator returns nil when no secret is configured, which disables
// the admin routes.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if len(cfg.HMACSecret) == 0 {
		return nil
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{cfg: cfg, logger: logger}
}

// Middleware rejects requests without a valid token and stores the caller
// address on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			writeJSONError(w, http.StatusNotFound, "NotFound", "admin api disabled")
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeJSONError(w, http.StatusUnauthorized, "Unauthenticated", "missing bearer token")
			return
		}
		caller, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.Warn("admin token rejected",
				logging.MaskField("authorization", tokenString),
				slog.String("error", err.Error()),
			)
			writeJSONError(w, http.StatusUnauthorized, "Unauthenticated", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseToken(tokenString string) (common.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.cfg.HMACSecret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, err
	}
	if !token.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	addr, err := crypto.ParseAddress(claims.Subject)
	if err != nil {
		return common.Address{}, errors.New("subject is not an address")
	}
	return addr.Address, nil
}

// IssueAdminToken mints a token for caller. anchorctl and tests use it.
func IssueAdminToken(secret []byte, caller common.Address, issuer, audience string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func callerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	return caller, ok
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
