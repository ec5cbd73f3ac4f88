package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/scholarxp/xp-engine/internal/app/storage/memory"
)

const testSecret = "test-jwt-secret"

func signToken(t *testing.T, role string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "user-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func okHandler(identity *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity != nil {
			*identity = Identity(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuth([]byte(testSecret), "cron-secret", nil, nil)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired token", "Bearer " + signToken(t, RoleAdmin, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"member role", "Bearer " + signToken(t, "member", time.Now().Add(time.Hour)), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, RoleAdmin, time.Now().Add(time.Hour)), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users/1/adjust", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			auth.RequireAdmin(okHandler(nil)).ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireTriggerAcceptsCronSecret(t *testing.T) {
	auth := NewAuth([]byte(testSecret), "cron-secret", memory.New(), nil)

	var identity string
	req := httptest.NewRequest(http.MethodPost, "/system/weekly", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	auth.RequireTrigger(okHandler(&identity)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cron", identity)
}

func TestRequireTriggerAcceptsAdminJWT(t *testing.T) {
	auth := NewAuth([]byte(testSecret), "cron-secret", memory.New(), nil)

	var identity string
	req := httptest.NewRequest(http.MethodPost, "/system/weekly", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, RoleAdmin, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	auth.RequireTrigger(okHandler(&identity)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", identity)
}

func TestRequireTriggerLocksOutAfterRepeatedFailures(t *testing.T) {
	auth := NewAuth([]byte(testSecret), "cron-secret", memory.New(), nil)
	handler := auth.RequireTrigger(okHandler(nil))

	fire := func() int {
		req := httptest.NewRequest(http.MethodPost, "/system/weekly", nil)
		req.RemoteAddr = "10.0.0.9:4242"
		req.Header.Set("Authorization", "Bearer wrong-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < failedSecretLimit; i++ {
		require.Equal(t, http.StatusUnauthorized, fire(), "attempt %d", i+1)
	}
	require.Equal(t, http.StatusTooManyRequests, fire())

	// Other callers are unaffected.
	req := httptest.NewRequest(http.MethodPost, "/system/weekly", nil)
	req.RemoteAddr = "10.0.0.10:4242"
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2, nil)
	handler := limiter.Handler(okHandler(nil))

	fire := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/leaderboard/current", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, fire("10.1.1.1:1000"))
	require.Equal(t, http.StatusOK, fire("10.1.1.1:1000"))
	require.Equal(t, http.StatusTooManyRequests, fire("10.1.1.1:1000"))

	// Distinct callers get their own bucket.
	require.Equal(t, http.StatusOK, fire("10.1.1.2:1000"))
}
