package api

import (
	"context"
	"net/http"

	"github.com/okian/toprank/internal/domain/leaderboard"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/pkg/logger"
)

// UserDependencies defines the interface for per-user reads.
type UserDependencies interface {
	UserRankings(ctx context.Context, userID string) (map[string]leaderboard.UserProblemRanking, error)
	UserStats(ctx context.Context, userID string) (leaderboard.UserStats, error)
	UserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error)
	UserProblemSubmissions(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error)
}

// problemSubmissionsQuery holds the parsed query of a problem-scoped history.
type problemSubmissionsQuery struct {
	UserID string `validate:"required,max=128"`
	Limit  int    `validate:"gte=0"`
}

// UserHandler handles per-user requests.
type UserHandler struct {
	deps   UserDependencies
	logger logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(deps UserDependencies, l logger.Logger) *UserHandler {
	return &UserHandler{deps: deps, logger: l}
}

// HandleRankings handles GET /users/{userID}/rankings.
func (h *UserHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.UserRankings(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.user_rankings", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleStats handles GET /users/{userID}/stats.
func (h *UserHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.UserStats(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.user_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleSubmissions handles GET /users/{userID}/submissions?limit=N.
func (h *UserHandler) HandleSubmissions(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_submissions"
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	subs, err := h.deps.UserSubmissions(r.Context(), r.PathValue("userID"), limit)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponses(subs))
}

// HandleProblemSubmissions handles GET /problems/{problemID}/submissions?userId=U&limit=N.
func (h *UserHandler) HandleProblemSubmissions(w http.ResponseWriter, r *http.Request) {
	const op = "api.problem_submissions"
	q := problemSubmissionsQuery{UserID: r.URL.Query().Get("userId")}
	var err error
	if q.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	if err := validateStruct(q); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	subs, err := h.deps.UserProblemSubmissions(r.Context(), q.UserID, r.PathValue("problemID"), q.Limit)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponses(subs))
}

func newSubmissionResponses(subs []model.Submission) []submissionResponse {
	out := make([]submissionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, newSubmissionResponse(s))
	}
	return out
}
