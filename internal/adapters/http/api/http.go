// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	service "github.com/okian/toprank/internal/app"
	"github.com/okian/toprank/internal/domain/dedupe"
	"github.com/okian/toprank/internal/domain/fitness"
	"github.com/okian/toprank/internal/domain/leaderboard"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/internal/domain/ranking"
	"github.com/okian/toprank/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmissionDependencies
	ProblemDependencies
	LeaderboardDependencies
	ContestDependencies
	UserDependencies
	AdminDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submissionHandler  *SubmissionHandler
	problemHandler     *ProblemHandler
	leaderboardHandler *LeaderboardHandler
	contestHandler     *ContestHandler
	userHandler        *UserHandler
	adminHandler       *AdminHandler
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	submitRate  float64
	submitBurst int
	idemKeys    int
	logger      logger.Logger
}

// WithSubmitRateLimit limits submissions per user to perSecond with the
// given burst. A non-positive rate disables limiting.
func WithSubmitRateLimit(perSecond float64, burst int) Option {
	return func(o *serverOptions) {
		o.submitRate = perSecond
		o.submitBurst = burst
	}
}

// WithIdempotencyKeys sets how many Idempotency-Key values are remembered.
// A non-positive value remembers every key.
func WithIdempotencyKeys(n int) Option {
	return func(o *serverOptions) {
		o.idemKeys = n
	}
}

// WithLogger sets the logger used for unexpected handler failures.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{logger: logger.Discard(), idemKeys: defaultIdempotencyKeys}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		submissionHandler:  NewSubmissionHandler(deps, newSubmitLimiter(o.submitRate, o.submitBurst),
			dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(o.idemKeys)), o.logger),
		problemHandler:     NewProblemHandler(deps, o.logger),
		leaderboardHandler: NewLeaderboardHandler(deps, o.logger),
		contestHandler:     NewContestHandler(deps, o.logger),
		userHandler:        NewUserHandler(deps, o.logger),
		adminHandler:       NewAdminHandler(deps, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /problems/{problemID}/submit", MetricsMiddleware(s.submissionHandler.HandleSubmit, "submit"))
	mux.HandleFunc("GET /problems", MetricsMiddleware(s.problemHandler.HandleList, "problems"))
	mux.HandleFunc("GET /problems/{problemID}", MetricsMiddleware(s.problemHandler.HandleGet, "problem"))
	mux.HandleFunc("GET /problems/{problemID}/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleDimension, "leaderboard"))
	mux.HandleFunc("GET /problems/{problemID}/leaderboard/all", MetricsMiddleware(s.leaderboardHandler.HandleAllDimensions, "leaderboard_all"))
	mux.HandleFunc("GET /problems/{problemID}/submissions", MetricsMiddleware(s.userHandler.HandleProblemSubmissions, "problem_submissions"))

	mux.HandleFunc("GET /contests", MetricsMiddleware(s.contestHandler.HandleList, "contests"))
	mux.HandleFunc("GET /contests/{contestID}", MetricsMiddleware(s.contestHandler.HandleGet, "contest"))
	mux.HandleFunc("GET /contests/{contestID}/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleContest, "contest_leaderboard"))
	mux.HandleFunc("POST /contests/{contestID}/participate", MetricsMiddleware(s.contestHandler.HandleParticipate, "participate"))

	mux.HandleFunc("GET /users/{userID}/rankings", MetricsMiddleware(s.userHandler.HandleRankings, "user_rankings"))
	mux.HandleFunc("GET /users/{userID}/stats", MetricsMiddleware(s.userHandler.HandleStats, "user_stats"))
	mux.HandleFunc("GET /users/{userID}/submissions", MetricsMiddleware(s.userHandler.HandleSubmissions, "user_submissions"))

	mux.HandleFunc("POST /admin/rankings/rebuild", MetricsMiddleware(s.adminHandler.HandleRebuild, "rebuild"))
}

// problemResponse is the read shape of a problem.
type problemResponse struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Kind                 string         `json:"kind"`
	Dimensions           []int          `json:"dimensions"`
	Lower                float64        `json:"lowerBound"`
	Upper                float64        `json:"upperBound"`
	Status               string         `json:"status"`
	Category             string         `json:"category,omitempty"`
	Level                string         `json:"level,omitempty"`
	Owner                string         `json:"owner,omitempty"`
	DimensionSubmissions map[string]int `json:"dimensionSubmissions"`
	TotalSubmissions     int            `json:"totalSubmissions"`
}

func newProblemResponse(p model.Problem) problemResponse {
	counts := make(map[string]int, len(p.Dimensions))
	for _, d := range p.Dimensions {
		counts[leaderboard.DimensionKey(d)] = p.DimensionSubmissions[d]
	}
	return problemResponse{
		ID:                   p.ID,
		Name:                 p.Name,
		Kind:                 p.Kind.String(),
		Dimensions:           p.Dimensions,
		Lower:                p.Lower,
		Upper:                p.Upper,
		Status:               string(p.Status),
		Category:             p.Category,
		Level:                p.Level,
		Owner:                p.Owner,
		DimensionSubmissions: counts,
		TotalSubmissions:     p.TotalSubmissions,
	}
}

// submissionResponse is the read shape of a stored submission.
type submissionResponse struct {
	ID           string     `json:"id"`
	ProblemID    string     `json:"problemId"`
	Dimension    int        `json:"dimension"`
	Score        *float64   `json:"score,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	EvaluatedAt  *time.Time `json:"evaluatedAt,omitempty"`
}

func newSubmissionResponse(s model.Submission) submissionResponse {
	return submissionResponse{
		ID:           s.ID,
		ProblemID:    s.ProblemID,
		Dimension:    s.Dimension,
		Score:        s.Score,
		Status:       string(s.Status),
		ErrorMessage: s.ErrorMessage,
		SubmittedAt:  s.SubmittedAt,
		EvaluatedAt:  s.EvaluatedAt,
	}
}

type rebuildResponse struct {
	Status string                `json:"status"`
	Report ranking.RebuildReport `json:"report"`
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps service errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidSolution), errors.Is(err, service.ErrInvalidSubmission):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrDimensionMismatch):
		return http.StatusBadRequest, "dimension_mismatch"
	case errors.Is(err, fitness.ErrOutOfBounds):
		return http.StatusBadRequest, "out_of_bounds"
	case errors.Is(err, service.ErrUnsupportedDimension):
		return http.StatusBadRequest, "unsupported_dimension"
	case errors.Is(err, service.ErrProblemNotFound),
		errors.Is(err, service.ErrContestNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidEventCode):
		return http.StatusForbidden, "invalid_event_code"
	case errors.Is(err, service.ErrAlreadyParticipating):
		return http.StatusConflict, "already_participating"
	case errors.Is(err, service.ErrProblemInactive):
		return http.StatusConflict, "problem_inactive"
	case errors.Is(err, ErrDuplicateSubmission):
		return http.StatusConflict, "duplicate_submission"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError translates err with statusFor. Internal errors are
// logged and reported without detail.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		}
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}
