package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/scholarxp/xp-engine/internal/app"
	"github.com/scholarxp/xp-engine/internal/config"
	"github.com/scholarxp/xp-engine/internal/middleware"
)

const (
	testJWTSecret  = "jwt-secret"
	testCronSecret = "cron-secret"
)

func newTestServer(t *testing.T) (http.Handler, *app.Application) {
	t.Helper()
	cfg := config.Config{
		ReviewQuorum:      3,
		StreakBaseBonus:   10,
		StreakBonusCap:    100,
		PenaltyAmount:     25,
		ActivityThreshold: 1,
		JobDeadline:       time.Minute,
		CacheTTL:          time.Minute,
	}
	application, err := app.New(cfg, app.Stores{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	auth := middleware.NewAuth([]byte(testJWTSecret), testCronSecret, application.Stores.RateLimits, nil)
	limiter := middleware.NewRateLimiter(1000, 1000, nil)
	return NewHandler(application, auth, limiter, nil), application
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &middleware.Claims{
		UserID: "admin-1",
		Role:   middleware.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, h http.Handler, method, path, authz string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/users", "", map[string]string{"handle": "alice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct{ ID string }
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, h, http.MethodGet, "/users/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/users/unknown", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing user status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/users", "", map[string]string{"handle": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank handle status = %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/users", "", map[string]string{"handle": "bob"})
	var created struct{ ID string }
	json.Unmarshal(rec.Body.Bytes(), &created)

	adjust := map[string]interface{}{"amount": 50, "reason": "bonus"}
	rec = doJSON(t, h, http.MethodPost, "/users/"+created.ID+"/adjust", "", adjust)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated adjust status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/users/"+created.ID+"/adjust", "Bearer "+adminToken(t), adjust)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin adjust status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/users/"+created.ID+"/ledger", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger status = %d", rec.Code)
	}
	var entries []struct{ Amount int64 }
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 50 {
		t.Fatalf("unexpected ledger: %+v", entries)
	}
}

func TestSubmissionTransitionOverHTTP(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/users", "", map[string]string{"handle": "carol"})
	var u struct{ ID string }
	json.Unmarshal(rec.Body.Bytes(), &u)

	rec = doJSON(t, h, http.MethodPost, "/submissions", "", map[string]string{"user_id": u.ID, "title": "essay"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create submission status = %d: %s", rec.Code, rec.Body.String())
	}
	var sub struct{ ID string }
	json.Unmarshal(rec.Body.Bytes(), &sub)

	rec = doJSON(t, h, http.MethodPatch, "/submissions/"+sub.ID+"/status", "",
		map[string]interface{}{"status": "ai-reviewed", "ai_xp": 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition status = %d: %s", rec.Code, rec.Body.String())
	}

	// Backwards moves surface as conflicts.
	rec = doJSON(t, h, http.MethodPatch, "/submissions/"+sub.ID+"/status", "",
		map[string]interface{}{"status": "pending"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("backwards transition status = %d", rec.Code)
	}
}

func TestSystemTrigger(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/system/weekly", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated trigger status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/system/weekly", "Bearer "+testCronSecret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cron trigger status = %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Action  string `json:"action"`
		Status  string `json:"status"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Action != "weekly" || result.Status != "success" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Summary == "" {
		t.Fatal("trigger response carries no summary")
	}

	rec = doJSON(t, h, http.MethodPost, "/system/finalize", "Bearer "+testCronSecret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize trigger status = %d: %s", rec.Code, rec.Body.String())
	}
	var finalize struct {
		Action   string `json:"action"`
		Finalize struct {
			SubmissionsFinalized int `json:"submissions_finalized"`
		} `json:"finalize"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &finalize); err != nil {
		t.Fatalf("decode finalize result: %v", err)
	}
	if finalize.Action != "finalize" {
		t.Fatalf("unexpected finalize result: %+v", finalize)
	}

	rec = doJSON(t, h, http.MethodPost, "/system/reindex", "Bearer "+testCronSecret, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown action status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/system/weekly/history", "Bearer "+adminToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
}

func TestOverdueAssignmentsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/assignments/overdue", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated overdue status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/assignments/overdue", "Bearer "+adminToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overdue status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLeaderboardEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users", "", map[string]string{"handle": "dee"})

	rec := doJSON(t, h, http.MethodGet, "/leaderboard/current", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/leaderboard/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad week status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/leaderboard/99", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot status = %d", rec.Code)
	}
}
