// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/toprank/internal/domain/fitness"
)

// ProblemStatus is the lifecycle state of a problem.
type ProblemStatus string

// Problem lifecycle states.
const (
	ProblemActive   ProblemStatus = "active"
	ProblemPending  ProblemStatus = "pending"
	ProblemInactive ProblemStatus = "inactive"
)

// SubmissionStatus tracks evaluation progress of a submission.
type SubmissionStatus string

// Submission states.
const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionEvaluated SubmissionStatus = "evaluated"
	SubmissionError     SubmissionStatus = "error"
)

// Problem is a benchmark users compete on.
type Problem struct {
	ID         string
	Name       string
	Kind       fitness.Kind
	Dimensions []int
	Lower      float64
	Upper      float64
	Status     ProblemStatus
	Category   string
	Level      string
	Owner      string

	// Denormalized submission counters, display only.
	DimensionSubmissions map[int]int
	TotalSubmissions     int
}

// SupportsDimension reports whether d is one of the problem's dimensions.
func (p Problem) SupportsDimension(d int) bool {
	for _, v := range p.Dimensions {
		if v == d {
			return true
		}
	}
	return false
}

// DefaultDimension is D20 when offered, else the first dimension, else 0.
func (p Problem) DefaultDimension() int {
	switch {
	case p.SupportsDimension(20):
		return 20
	case len(p.Dimensions) > 0:
		return p.Dimensions[0]
	default:
		return 0
	}
}

// Benchmark returns the fitness definition of the problem.
func (p Problem) Benchmark() fitness.Benchmark {
	return fitness.Benchmark{ProblemID: p.ID, Kind: p.Kind, Lower: p.Lower, Upper: p.Upper}
}

// SameFitness reports whether o scores solutions exactly as p does.
func (p Problem) SameFitness(o Problem) bool {
	return p.Kind == o.Kind && p.Lower == o.Lower && p.Upper == o.Upper
}

// Submission is one append-only solution attempt.
type Submission struct {
	ID           string
	UserID       string
	ProblemID    string
	Dimension    int
	Solution     []float64
	Score        *float64
	Status       SubmissionStatus
	ErrorMessage string
	SubmittedAt  time.Time
	EvaluatedAt  *time.Time
}

// Rankable reports whether the submission participates in ranking.
func (s Submission) Rankable() bool {
	return s.Status == SubmissionEvaluated && s.Score != nil
}

// User is a competitor profile.
type User struct {
	ID          string
	Name        string
	Email       string
	Institution string
	Country     string
}

// Contest groups problems and participants under one leaderboard.
type Contest struct {
	ID           string
	Name         string
	ProblemIDs   []string
	Participants []string
	EventCode    string
	Status       string
}

// HasParticipant reports whether userID already joined the contest.
func (c Contest) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// DimensionRank is one user's materialized rank at a (problem, dimension) key.
type DimensionRank struct {
	UserID    string
	Rank      int
	BestScore float64
}

// RankingRecord is the per (user, problem) ranking cache. It is derived
// from the submission history and can always be rebuilt from it.
type RankingRecord struct {
	UserID         string
	ProblemID      string
	DimensionRanks map[int]int
	BestScores     map[int]float64
	OverallRank    *int
	UpdatedAt      time.Time
}
