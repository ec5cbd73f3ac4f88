// Package httpapi exposes the REST surface of the XP engine.
package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/scholarxp/xp-engine/internal/app"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/services/dispatch"
	"github.com/scholarxp/xp-engine/internal/app/services/reviews"
	"github.com/scholarxp/xp-engine/internal/app/services/submissions"
	"github.com/scholarxp/xp-engine/internal/app/services/users"
	"github.com/scholarxp/xp-engine/internal/httputil"
	"github.com/scholarxp/xp-engine/internal/middleware"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the router exposing the REST API. auth guards the
// admin routes and the trigger surface; limiter applies to everything but
// health and metrics.
func NewHandler(application *app.Application, auth *middleware.Auth, limiter *middleware.RateLimiter, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(limiter.Handler)

	api.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	api.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/ledger", h.userLedger).Methods(http.MethodGet)
	api.Handle("/users/{id}/deactivate", auth.RequireAdmin(http.HandlerFunc(h.deactivateUser))).Methods(http.MethodPost)
	api.Handle("/users/{id}/adjust", auth.RequireAdmin(http.HandlerFunc(h.adjustUser))).Methods(http.MethodPost)

	api.HandleFunc("/submissions", h.createSubmission).Methods(http.MethodPost)
	api.HandleFunc("/submissions", h.listSubmissions).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}", h.getSubmission).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/reviews", h.listReviews).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/status", h.transitionSubmission).Methods(http.MethodPatch)
	api.Handle("/submissions/{id}/override", auth.RequireAdmin(http.HandlerFunc(h.overrideSubmission))).Methods(http.MethodPost)

	api.HandleFunc("/reviews", h.submitReview).Methods(http.MethodPost)
	api.Handle("/assignments", auth.RequireAdmin(http.HandlerFunc(h.createAssignment))).Methods(http.MethodPost)
	api.Handle("/assignments/overdue", auth.RequireAdmin(http.HandlerFunc(h.overdueAssignments))).Methods(http.MethodGet)
	api.Handle("/assignments/{id}/reassign", auth.RequireAdmin(http.HandlerFunc(h.reassignAssignment))).Methods(http.MethodPost)

	api.HandleFunc("/leaderboard/current", h.currentStandings).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard/{week}", h.weekSnapshot).Methods(http.MethodGet)

	api.Handle("/system/{action}", auth.RequireTrigger(http.HandlerFunc(h.runSystem))).Methods(http.MethodPost)
	api.Handle("/system/{action}/history", auth.RequireAdmin(http.HandlerFunc(h.systemHistory))).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Handle string `json:"handle"`
		Role   string `json:"role"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.app.Users.Create(r.Context(), payload.Handle, user.Role(payload.Role))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := h.app.Users.List(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) userLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Users.Ledger(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Deactivate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) adjustUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.app.Users.Adjust(r.Context(), mux.Vars(r)["id"], payload.Amount, payload.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"user_id"`
		Title  string `json:"title"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.app.Submissions.Create(r.Context(), payload.UserID, payload.Title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	list, err := h.app.Submissions.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Reviews.ListReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.app.Submissions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *handler) transitionSubmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
		AIXP   *int64 `json:"ai_xp"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.app.Submissions.Transition(r.Context(), mux.Vars(r)["id"], submission.Status(payload.Status), payload.AIXP)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *handler) overrideSubmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FinalXP int64 `json:"final_xp"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.app.Submissions.AdminOverride(r.Context(), mux.Vars(r)["id"], payload.FinalXP)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *handler) submitReview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SubmissionID string `json:"submission_id"`
		ReviewerID   string `json:"reviewer_id"`
		Score        int64  `json:"score"`
		Comments     string `json:"comments"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	rev, err := h.app.Reviews.SubmitReview(r.Context(), payload.SubmissionID, payload.ReviewerID, payload.Score, payload.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rev)
}

func (h *handler) createAssignment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SubmissionID string    `json:"submission_id"`
		ReviewerID   string    `json:"reviewer_id"`
		Deadline     time.Time `json:"deadline"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.app.Reviews.Assign(r.Context(), payload.SubmissionID, payload.ReviewerID, payload.Deadline)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *handler) overdueAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Reviews.ListOverdue(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) reassignAssignment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ReviewerID string `json:"reviewer_id"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.app.Reviews.Reassign(r.Context(), mux.Vars(r)["id"], payload.ReviewerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) currentStandings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	standings, err := h.app.Standings.Current(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, standings)
}

func (h *handler) weekSnapshot(w http.ResponseWriter, r *http.Request) {
	weekNumber, err := strconv.Atoi(mux.Vars(r)["week"])
	if err != nil || weekNumber < 1 {
		httputil.WriteError(w, http.StatusBadRequest, "week must be a positive integer")
		return
	}
	snap, err := h.app.Standings.Snapshot(r.Context(), weekNumber)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *handler) runSystem(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	identity := middleware.Identity(r.Context())
	result, err := h.app.Dispatch.Run(r.Context(), action, identity)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnknownAction) {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		// The result carries the partial outcome and status; surface it
		// alongside the 500 so operators see how far the run got.
		httputil.WriteJSON(w, http.StatusInternalServerError, result)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *handler) systemHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Dispatch.History(r.Context(), mux.Vars(r)["action"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// writeError maps service errors onto HTTP statuses.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, users.ErrValidation),
		errors.Is(err, submissions.ErrValidation),
		errors.Is(err, reviews.ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, submissions.ErrInvalidTransition):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.log.WithError(err).Error("request failed")
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found")
}
