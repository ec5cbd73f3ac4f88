// Package middleware provides the HTTP middleware for the XP engine: admin
// JWT auth, the cron shared-secret check for the trigger surface, and
// per-caller rate limiting.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scholarxp/xp-engine/internal/app/domain/automation"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/internal/httputil"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	roleKey     contextKey = "role"
)

// RoleAdmin is the claim value required by admin-only routes.
const RoleAdmin = "admin"

// failedSecretLimit is how many bad shared-secret attempts a caller gets
// per counter window before being locked out.
const failedSecretLimit = 10

// Claims is the JWT payload issued to operators.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates admin JWTs and the cron shared secret.
type Auth struct {
	jwtSecret  []byte
	cronSecret string
	counters   storage.RateLimitStore
	log        *logger.Logger
}

// NewAuth creates the auth middleware.
func NewAuth(jwtSecret []byte, cronSecret string, counters storage.RateLimitStore, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Auth{jwtSecret: jwtSecret, cronSecret: cronSecret, counters: counters, log: log}
}

// RequireAdmin admits only requests carrying a valid JWT with the admin
// role.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parseToken(r)
		if err != nil {
			a.log.WithError(err).WithField("path", r.URL.Path).Warn("token rejected")
			httputil.WriteError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		if claims.Role != RoleAdmin {
			httputil.WriteError(w, http.StatusForbidden, "admin role required")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, claims.UserID)
		ctx = context.WithValue(ctx, roleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTrigger admits the trigger surface: either an admin JWT or the
// cron shared secret as a bearer token. Failed secret attempts are counted
// per caller and locked out past the limit, so the secret cannot be brute
// forced from the outside.
func (a *Auth) RequireTrigger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if a.cronSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.cronSecret)) == 1 {
			ctx := context.WithValue(r.Context(), identityKey, automation.TriggeredByCron)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if claims, err := a.parseTokenString(token); err == nil && claims.Role == RoleAdmin {
			ctx := context.WithValue(r.Context(), identityKey, claims.UserID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if a.recordFailedSecret(r) {
			httputil.WriteError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	})
}

// recordFailedSecret bumps the caller's failure counter and reports whether
// the caller is past the lockout limit. Counter errors fail open: a storage
// outage must not take the trigger surface down with it.
func (a *Auth) recordFailedSecret(r *http.Request) bool {
	if a.counters == nil {
		return false
	}
	window := time.Now().UTC().Truncate(time.Hour)
	key := fmt.Sprintf("trigger-auth:%s", clientIP(r))
	count, err := a.counters.IncrementCounter(r.Context(), key, window)
	if err != nil {
		a.log.WithError(err).Warn("failed-attempt counter unavailable")
		return false
	}
	return count > failedSecretLimit
}

func (a *Auth) parseToken(r *http.Request) (*Claims, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, fmt.Errorf("missing bearer token")
	}
	return a.parseTokenString(token)
}

func (a *Auth) parseTokenString(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

// Identity returns the authenticated caller id from the context, "cron"
// for shared-secret calls.
func Identity(ctx context.Context) string {
	if v, ok := ctx.Value(identityKey).(string); ok {
		return v
	}
	return ""
}

// Role returns the authenticated caller's role, empty for cron calls.
func Role(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey).(string); ok {
		return v
	}
	return ""
}
