// Package loadtest drives a running service with concurrent submissions and
// checks the resulting leaderboard against locally tracked best scores.
package loadtest

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL        string        // Base URL of the service
	ProblemID      string        // Problem to submit against
	Dimension      int           // Dimension of every solution vector
	NumUsers       int           // Distinct users submitting
	NumSubmissions int           // Total submissions spread across users
	Workers        int           // Concurrent HTTP workers
	TopN           int           // Leaderboard rows to fetch and verify
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // Optional JSON dump of generated submissions
	Seed           uint64        // Vector generator seed; zero picks one from the clock
}

// Submission is one generated request body.
type Submission struct {
	UserID    string    `json:"userId"`
	Dimension int       `json:"dimension"`
	Solution  []float64 `json:"solution"`
}

// SubmitResult mirrors the submit response.
type SubmitResult struct {
	SubmissionID string  `json:"submissionId"`
	Score        float64 `json:"score"`
}

// Entry mirrors one leaderboard row.
type Entry struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"userId"`
	Score  float64 `json:"score"`
}

// Problem mirrors the fields of a problem the generator needs.
type Problem struct {
	ID         string  `json:"id"`
	Dimensions []int   `json:"dimensions"`
	Lower      float64 `json:"lowerBound"`
	Upper      float64 `json:"upperBound"`
	Status     string  `json:"status"`
}

// UserProblemRanking mirrors the per-problem part of a user's rankings.
type UserProblemRanking struct {
	DimensionRanks map[int]int `json:"dimensionRanks"`
	OverallRank    *int        `json:"overallRank"`
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Accepted    int
	RateLimited int
	Rejected    int
	Failed      int
	Verified    int
	StartTime   time.Time
	Duration    time.Duration
}
