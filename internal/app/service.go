// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/toprank/internal/adapters/repository"
	"github.com/okian/toprank/internal/domain/fitness"
	"github.com/okian/toprank/internal/domain/leaderboard"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/internal/domain/ranking"
	"github.com/okian/toprank/pkg/logger"
	"github.com/okian/toprank/pkg/metrics"
)

// Submission outcomes recorded in metrics.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// SubmitRequest is one solution attempt.
type SubmitRequest struct {
	UserID    string
	ProblemID string
	Dimension int
	Solution  []float64
}

// SubmitResult is returned for an accepted submission.
type SubmitResult struct {
	SubmissionID string  `json:"submissionId"`
	Score        float64 `json:"score"`
}

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	evaluator *fitness.Evaluator
	engine    *ranking.Engine
	projector *leaderboard.Projector

	// Configuration
	problems            []model.Problem
	users               []model.User
	contests            []model.Contest
	maxLeaderboardLimit int
	crossDimensionLimit int
	refreshAllOverall   bool
	rebuildConcurrency  int
	now                 func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the persistence backend. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithProblems sets the problem catalog seeded on Start.
func WithProblems(problems ...model.Problem) Option {
	return func(s *Service) {
		s.problems = append(s.problems, problems...)
	}
}

// WithUsers sets user profiles seeded on Start.
func WithUsers(users ...model.User) Option {
	return func(s *Service) {
		s.users = append(s.users, users...)
	}
}

// WithContests sets contests seeded on Start.
func WithContests(contests ...model.Contest) Option {
	return func(s *Service) {
		s.contests = append(s.contests, contests...)
	}
}

// WithMaxLeaderboardLimit caps the rows returned by a dimension leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithCrossDimensionLimit sets the rows per board of the cross-dimension view.
func WithCrossDimensionLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.crossDimensionLimit = n
		}
	}
}

// WithRefreshAllOverall controls the overall-rank refresh policy.
func WithRefreshAllOverall(all bool) Option {
	return func(s *Service) { s.refreshAllOverall = all }
}

// WithRebuildConcurrency bounds concurrent problems during a rebuild.
func WithRebuildConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rebuildConcurrency = n
		}
	}
}

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// DefaultProblems returns the classic benchmark catalog as active problems
// over dimensions 20, 50 and 100.
func DefaultProblems() []model.Problem {
	catalog := fitness.DefaultCatalog()
	out := make([]model.Problem, 0, len(catalog))
	for _, b := range catalog {
		out = append(out, model.Problem{
			ID:         b.ProblemID,
			Name:       b.Kind.String(),
			Kind:       b.Kind,
			Dimensions: []int{20, 50, 100},
			Lower:      b.Lower,
			Upper:      b.Upper,
			Status:     model.ProblemActive,
			Category:   "continuous",
		})
	}
	return out
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		maxLeaderboardLimit: 100,
		crossDimensionLimit: 10,
		refreshAllOverall:   true,
		rebuildConcurrency:  4,
		now:                 time.Now,
		logger:              nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start seeds the catalog and wires the evaluator, engine and projector.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting ranking service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	evaluator, err := fitness.NewEvaluator()
	if err != nil {
		return err
	}
	s.evaluator = evaluator
	if err := s.seed(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	s.engine = ranking.NewEngine(s.store,
		ranking.WithLogger(s.logger.Named("ranking")),
		ranking.WithRefreshAllOverall(s.refreshAllOverall),
		ranking.WithRebuildConcurrency(s.rebuildConcurrency),
	)
	s.projector = leaderboard.NewProjector(s.store)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("problems", s.evaluator.Len()),
		logger.Bool("refreshAllOverall", s.refreshAllOverall),
		logger.Int("maxLeaderboardLimit", s.maxLeaderboardLimit),
	)

	return nil
}

// seed registers configured problems, users and contests. Stored problems
// keep their counters and, while active, their fitness definition; every
// stored problem gets an evaluator benchmark.
func (s *Service) seed(ctx context.Context) error {
	for _, p := range s.problems {
		if err := s.store.PutProblem(ctx, p); err != nil {
			return err
		}
	}
	for _, u := range s.users {
		if err := s.store.PutUser(ctx, u); err != nil {
			return err
		}
	}
	for _, c := range s.contests {
		if err := s.store.PutContest(ctx, c); err != nil {
			return err
		}
	}

	problems, err := s.store.Problems(ctx)
	if err != nil {
		return err
	}
	for _, p := range problems {
		if err := s.evaluator.Register(p.Benchmark()); err != nil {
			return err
		}
	}
	metrics.UpdateProblemsRegistered(len(problems))
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping ranking service...")
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "ranking service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Submit validates, scores and stores a solution, then updates rankings.
// Rejected solutions are never stored and trigger no recompute.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := s.ready(); err != nil {
		return SubmitResult{}, err
	}
	dim := strconv.Itoa(req.Dimension)

	problem, err := s.admit(ctx, req)
	if err != nil {
		metrics.RecordSubmission(req.ProblemID, dim, outcomeRejected)
		s.logger.Debug(ctx, "submission rejected",
			logger.String("user", req.UserID),
			logger.String("problem", req.ProblemID),
			logger.Int("dimension", req.Dimension),
			logger.Error(err),
		)
		return SubmitResult{}, err
	}

	if err := s.ensureUser(ctx, req.UserID); err != nil {
		return SubmitResult{}, err
	}

	sub := model.Submission{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		ProblemID:   problem.ID,
		Dimension:   req.Dimension,
		Solution:    req.Solution,
		Status:      model.SubmissionPending,
		SubmittedAt: s.now(),
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return SubmitResult{}, fmt.Errorf("store submission: %w", err)
	}

	start := time.Now()
	score, evalErr := s.evaluator.Evaluate(problem.ID, req.Solution)
	metrics.RecordEvaluationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if evalErr != nil {
		metrics.RecordSubmission(problem.ID, dim, outcomeError)
		if err := s.store.AttachEvaluation(ctx, sub.ID, repository.Evaluation{
			Status:       model.SubmissionError,
			ErrorMessage: evalErr.Error(),
			EvaluatedAt:  s.now(),
		}); err != nil {
			s.logger.Error(ctx, "failed to mark submission as errored", logger.String("submission", sub.ID), logger.Error(err))
		}
		return SubmitResult{}, fmt.Errorf("evaluate submission: %w", evalErr)
	}

	if err := s.store.AttachEvaluation(ctx, sub.ID, repository.Evaluation{
		Status:      model.SubmissionEvaluated,
		Score:       &score,
		EvaluatedAt: s.now(),
	}); err != nil {
		return SubmitResult{}, fmt.Errorf("store evaluation: %w", err)
	}
	if err := s.store.IncrementSubmissionCount(ctx, problem.ID, req.Dimension); err != nil {
		s.logger.Warn(ctx, "failed to bump submission counter", logger.String("problem", problem.ID), logger.Error(err))
	}

	if err := s.engine.OnSubmission(ctx, problem.ID, req.Dimension, req.UserID); err != nil {
		s.logger.Error(ctx, "ranking update failed",
			logger.String("submission", sub.ID),
			logger.String("problem", problem.ID),
			logger.Int("dimension", req.Dimension),
			logger.Error(err),
		)
		return SubmitResult{}, fmt.Errorf("update rankings: %w", err)
	}

	metrics.RecordSubmission(problem.ID, dim, outcomeAccepted)
	s.logger.Info(ctx, "submission accepted",
		logger.String("submission", sub.ID),
		logger.String("user", req.UserID),
		logger.String("problem", problem.ID),
		logger.Int("dimension", req.Dimension),
		logger.Float64("score", score),
	)
	return SubmitResult{SubmissionID: sub.ID, Score: score}, nil
}

// admit runs every check that must pass before anything is stored.
func (s *Service) admit(ctx context.Context, req SubmitRequest) (model.Problem, error) {
	if req.UserID == "" {
		return model.Problem{}, fmt.Errorf("%w: user id is required", ErrInvalidSubmission)
	}
	problem, err := s.lookupProblem(ctx, req.ProblemID)
	if err != nil {
		return model.Problem{}, err
	}
	if problem.Status != model.ProblemActive {
		return model.Problem{}, fmt.Errorf("%w: %s is %s", ErrProblemInactive, problem.ID, problem.Status)
	}
	if !problem.SupportsDimension(req.Dimension) {
		return model.Problem{}, fmt.Errorf("%w: %d not in %v", ErrUnsupportedDimension, req.Dimension, problem.Dimensions)
	}
	if len(req.Solution) != req.Dimension {
		return model.Problem{}, fmt.Errorf("%w: expected %d values, got %d", ErrDimensionMismatch, req.Dimension, len(req.Solution))
	}
	if err := s.evaluator.Validate(problem.ID, req.Solution); err != nil {
		return model.Problem{}, err
	}
	return problem, nil
}

func (s *Service) ensureUser(ctx context.Context, userID string) error {
	_, err := s.store.User(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := s.store.PutUser(ctx, model.User{ID: userID, Name: userID}); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

func (s *Service) lookupProblem(ctx context.Context, id string) (model.Problem, error) {
	p, err := s.store.Problem(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Problem{}, fmt.Errorf("%w: %s", ErrProblemNotFound, id)
	}
	return p, err
}

// Problem returns one problem with its counters.
func (s *Service) Problem(ctx context.Context, id string) (model.Problem, error) {
	if err := s.ready(); err != nil {
		return model.Problem{}, err
	}
	return s.lookupProblem(ctx, id)
}

// Problems lists every problem ordered by id.
func (s *Service) Problems(ctx context.Context) ([]model.Problem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Problems(ctx)
}

func clampLimit(limit, ceiling int) int {
	if limit < 1 || limit > ceiling {
		return ceiling
	}
	return limit
}

// Leaderboard returns the ranked rows of one (problem, dimension). A zero
// dimension selects the problem's default dimension.
func (s *Service) Leaderboard(ctx context.Context, problemID string, dimension, limit int) ([]leaderboard.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	problem, err := s.lookupProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if dimension == 0 {
		dimension = problem.DefaultDimension()
	}
	if !problem.SupportsDimension(dimension) {
		return nil, fmt.Errorf("%w: %d not in %v", ErrUnsupportedDimension, dimension, problem.Dimensions)
	}
	return s.projector.Dimension(ctx, problemID, dimension, clampLimit(limit, s.maxLeaderboardLimit))
}

// CrossDimensionLeaderboard returns the top rows of every supported dimension.
func (s *Service) CrossDimensionLeaderboard(ctx context.Context, problemID string) (map[string][]leaderboard.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	boards, err := s.projector.CrossDimension(ctx, problemID, s.crossDimensionLimit)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProblemNotFound, problemID)
	}
	return boards, err
}

// ContestLeaderboard ranks the participants of a contest.
func (s *Service) ContestLeaderboard(ctx context.Context, contestID string) ([]leaderboard.ContestEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.projector.Contest(ctx, contestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContestNotFound, contestID)
	}
	return rows, err
}

// Contests lists every contest ordered by id.
func (s *Service) Contests(ctx context.Context) ([]model.Contest, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Contests(ctx)
}

// Contest returns one contest with its problems.
func (s *Service) Contest(ctx context.Context, contestID string) (leaderboard.ContestDetail, error) {
	if err := s.ready(); err != nil {
		return leaderboard.ContestDetail{}, err
	}
	detail, err := s.projector.ContestDetail(ctx, contestID)
	if errors.Is(err, repository.ErrNotFound) {
		return leaderboard.ContestDetail{}, fmt.Errorf("%w: %s", ErrContestNotFound, contestID)
	}
	return detail, err
}

// JoinContest adds userID to the contest when eventCode matches.
func (s *Service) JoinContest(ctx context.Context, contestID, userID, eventCode string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidSubmission)
	}
	c, err := s.store.Contest(ctx, contestID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrContestNotFound, contestID)
	}
	if err != nil {
		return err
	}
	if c.EventCode != "" && c.EventCode != eventCode {
		return ErrInvalidEventCode
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	err = s.store.AddParticipant(ctx, contestID, userID)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return fmt.Errorf("%w: %s", ErrAlreadyParticipating, contestID)
	}
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "user joined contest", logger.String("contest", contestID), logger.String("user", userID))
	return nil
}

// UserRankings returns a user's ranking summary keyed by problem id.
func (s *Service) UserRankings(ctx context.Context, userID string) (map[string]leaderboard.UserProblemRanking, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.knownUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.projector.UserSummary(ctx, userID)
}

// UserStats returns a user's submission total and overall rank spread.
func (s *Service) UserStats(ctx context.Context, userID string) (leaderboard.UserStats, error) {
	if err := s.ready(); err != nil {
		return leaderboard.UserStats{}, err
	}
	if err := s.knownUser(ctx, userID); err != nil {
		return leaderboard.UserStats{}, err
	}
	return s.projector.UserStats(ctx, userID)
}

// UserSubmissions returns a user's submissions newest first.
func (s *Service) UserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.knownUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.UserSubmissions(ctx, userID, clampLimit(limit, s.maxLeaderboardLimit))
}

// UserProblemSubmissions returns a user's submissions to one problem
// newest first.
func (s *Service) UserProblemSubmissions(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidSubmission)
	}
	if _, err := s.lookupProblem(ctx, problemID); err != nil {
		return nil, err
	}
	if err := s.knownUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.UserProblemSubmissions(ctx, userID, problemID, clampLimit(limit, s.maxLeaderboardLimit))
}

func (s *Service) knownUser(ctx context.Context, userID string) error {
	_, err := s.store.User(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return err
}

// RebuildRankings recomputes every ranking from the submission history.
func (s *Service) RebuildRankings(ctx context.Context) (ranking.RebuildReport, error) {
	if err := s.ready(); err != nil {
		return ranking.RebuildReport{}, err
	}
	return s.engine.RebuildAll(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"refreshAllOverall":   s.refreshAllOverall,
		"maxLeaderboardLimit": s.maxLeaderboardLimit,
	}

	if s.started {
		if n, err := s.store.CountSubmissions(ctx); err == nil {
			stats["totalSubmissions"] = n
		}
		if n, err := s.store.CountUsers(ctx); err == nil {
			stats["totalUsers"] = n
		}
		if problems, err := s.store.Problems(ctx); err == nil {
			active := 0
			for _, p := range problems {
				if p.Status == model.ProblemActive {
					active++
				}
			}
			stats["totalProblems"] = len(problems)
			stats["activeProblems"] = active
			metrics.UpdateProblemsRegistered(len(problems))
		}
	}

	return stats
}
