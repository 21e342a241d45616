// Package repository defines the persistence interfaces for submissions,
// rankings and the problem catalog, plus an in-memory implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/toprank/internal/domain/model"
)

// Evaluation is the result attached to a pending submission.
type Evaluation struct {
	Status       model.SubmissionStatus
	Score        *float64
	ErrorMessage string
	EvaluatedAt  time.Time
}

// Submissions is the append-only submission history.
type Submissions interface {
	// InsertSubmission stores a new pending submission.
	InsertSubmission(ctx context.Context, s model.Submission) error
	// AttachEvaluation records the evaluation result of submission id.
	// Returns ErrNotFound if the submission is unknown.
	AttachEvaluation(ctx context.Context, id string, ev Evaluation) error
	// EvaluatedSubmissions returns evaluated submissions for the key
	// ordered by score ascending, earliest first among equal scores.
	EvaluatedSubmissions(ctx context.Context, problemID string, dimension int) ([]model.Submission, error)
	// UserSubmissions returns a user's submissions newest first.
	// A limit below one returns ErrInvalidLimit.
	UserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error)
	// UserProblemSubmissions is UserSubmissions restricted to one problem.
	UserProblemSubmissions(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error)
	// CountUserSubmissions returns the number of submissions of a user.
	CountUserSubmissions(ctx context.Context, userID string) (int, error)
	// CountSubmissions returns the total number of stored submissions.
	CountSubmissions(ctx context.Context) (int, error)
}

// Rankings is the derived ranking cache keyed by (user, problem, dimension).
type Rankings interface {
	// ReplaceDimensionRanks atomically swaps the full rank set for the key.
	// Users absent from ranks lose their rank at that key.
	ReplaceDimensionRanks(ctx context.Context, problemID string, dimension int, ranks []model.DimensionRank) error
	// SetOverallRanks stores overall ranks for the given users of a problem.
	SetOverallRanks(ctx context.Context, problemID string, ranks map[string]int) error
	// ProblemRankings returns every ranking record of a problem.
	ProblemRankings(ctx context.Context, problemID string) ([]model.RankingRecord, error)
	// UserRankings returns every ranking record of a user.
	UserRankings(ctx context.Context, userID string) ([]model.RankingRecord, error)
}

// Catalog holds problems, users and contests.
type Catalog interface {
	PutProblem(ctx context.Context, p model.Problem) error
	// Problem returns ErrNotFound for an unknown id.
	Problem(ctx context.Context, id string) (model.Problem, error)
	// Problems returns every problem ordered by id.
	Problems(ctx context.Context) ([]model.Problem, error)
	// IncrementSubmissionCount bumps the denormalized counters of a problem.
	IncrementSubmissionCount(ctx context.Context, problemID string, dimension int) error

	PutUser(ctx context.Context, u model.User) error
	// User returns ErrNotFound for an unknown id.
	User(ctx context.Context, id string) (model.User, error)
	CountUsers(ctx context.Context) (int, error)

	PutContest(ctx context.Context, c model.Contest) error
	// Contest returns ErrNotFound for an unknown id.
	Contest(ctx context.Context, id string) (model.Contest, error)
	// Contests returns every contest ordered by id.
	Contests(ctx context.Context) ([]model.Contest, error)
	// AddParticipant appends userID to the contest. Returns
	// ErrAlreadyExists if the user already participates.
	AddParticipant(ctx context.Context, contestID, userID string) error
}

// Store is the full persistence collaborator used by the service.
type Store interface {
	Submissions
	Rankings
	Catalog

	// Close releases any resources held by the store.
	Close() error
}
