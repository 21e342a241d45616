// Package leaderboard builds read-only leaderboard views from current
// store state. Every view is recomputed on request.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/toprank/internal/adapters/repository"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/internal/domain/ranking"
	"github.com/okian/toprank/pkg/metrics"
)

// Store is the read side the projector needs.
type Store interface {
	EvaluatedSubmissions(ctx context.Context, problemID string, dimension int) ([]model.Submission, error)
	ProblemRankings(ctx context.Context, problemID string) ([]model.RankingRecord, error)
	UserRankings(ctx context.Context, userID string) ([]model.RankingRecord, error)
	Problem(ctx context.Context, id string) (model.Problem, error)
	User(ctx context.Context, id string) (model.User, error)
	Contest(ctx context.Context, id string) (model.Contest, error)
	CountUserSubmissions(ctx context.Context, userID string) (int, error)
}

// Entry is one row of a per-dimension leaderboard.
type Entry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Score       float64   `json:"score"`
	Institution string    `json:"institution"`
	Country     string    `json:"country"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ContestEntry is one row of a contest leaderboard.
type ContestEntry struct {
	Rank           int     `json:"rank"`
	UserID         string  `json:"userId"`
	UserName       string  `json:"userName"`
	Score          float64 `json:"score"`
	Institution    string  `json:"institution"`
	Country        string  `json:"country"`
	TotalScore     float64 `json:"totalScore"`
	ProblemsSolved int     `json:"problemsSolved"`
}

// UserProblemRanking is a user's ranking summary on one problem.
type UserProblemRanking struct {
	ProblemID         string          `json:"problemId"`
	DimensionRanks    map[int]int     `json:"dimensionRanks"`
	BestScores        map[int]float64 `json:"bestScores"`
	OverallRank       *int            `json:"overallRank,omitempty"`
	DimensionTotals   map[int]int     `json:"dimensionTotals"`
	TotalParticipants int             `json:"totalParticipants"`
}

// ContestDetail is a contest with the catalog entries of its problems.
// Problems missing from the catalog are left out.
type ContestDetail struct {
	Contest  model.Contest
	Problems []model.Problem
}

// RankShare is a user's overall rank on one problem.
type RankShare struct {
	ProblemID         string `json:"problemId"`
	Rank              int    `json:"rank"`
	TotalParticipants int    `json:"totalParticipants"`
}

// UserStats summarises a user's activity across problems.
type UserStats struct {
	UserID            string      `json:"userId"`
	TotalSubmissions  int         `json:"totalSubmissions"`
	ProblemsAttempted int         `json:"problemsAttempted"`
	RankDistribution  []RankShare `json:"rankDistribution"`
}

// Projector answers leaderboard queries.
type Projector struct {
	store Store
}

// NewProjector constructs a Projector over store.
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// DimensionKey formats the cross-dimension map key, e.g. "D20".
func DimensionKey(dimension int) string {
	return "D" + strconv.Itoa(dimension)
}

// Dimension returns the leaderboard for (problemID, dimension). A limit
// below one returns every ranked user.
func (p *Projector) Dimension(ctx context.Context, problemID string, dimension, limit int) ([]Entry, error) {
	defer observe("dimension", time.Now())
	return p.dimension(ctx, problemID, dimension, limit)
}

func (p *Projector) dimension(ctx context.Context, problemID string, dimension, limit int) ([]Entry, error) {
	subs, err := p.store.EvaluatedSubmissions(ctx, problemID, dimension)
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s/D%d: %w", problemID, dimension, err)
	}
	st := ranking.Standings(subs)
	if limit > 0 && len(st) > limit {
		st = st[:limit]
	}

	users := newUserCache(p.store)
	out := make([]Entry, 0, len(st))
	for _, s := range st {
		u, err := users.get(ctx, s.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{
			Rank:        s.Rank,
			UserID:      s.UserID,
			UserName:    displayName(u),
			Score:       s.Score,
			Institution: u.Institution,
			Country:     u.Country,
			SubmittedAt: s.SubmittedAt,
		})
	}
	return out, nil
}

// CrossDimension returns one top-limit board per supported dimension of
// the problem keyed by DimensionKey.
func (p *Projector) CrossDimension(ctx context.Context, problemID string, limit int) (map[string][]Entry, error) {
	defer observe("cross_dimension", time.Now())
	prob, err := p.store.Problem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Entry, len(prob.Dimensions))
	for _, d := range prob.Dimensions {
		rows, err := p.dimension(ctx, problemID, d, limit)
		if err != nil {
			return nil, err
		}
		out[DimensionKey(d)] = rows
	}
	return out, nil
}

// Contest ranks the contest participants by the sum over contest problems
// of the mean of their per-dimension best scores. Problems a participant
// has not attempted add nothing to either the total or the solved count.
func (p *Projector) Contest(ctx context.Context, contestID string) ([]ContestEntry, error) {
	defer observe("contest", time.Now())
	c, err := p.store.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	// problem -> user -> best scores
	best := make(map[string]map[string][]float64, len(c.ProblemIDs))
	for _, pid := range c.ProblemIDs {
		recs, err := p.store.ProblemRankings(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("contest %s problem %s: %w", contestID, pid, err)
		}
		byUser := make(map[string][]float64, len(recs))
		for _, r := range recs {
			if len(r.BestScores) == 0 {
				continue
			}
			byUser[r.UserID] = sortedScores(r.BestScores)
		}
		best[pid] = byUser
	}

	out := make([]ContestEntry, 0, len(c.Participants))
	for _, uid := range c.Participants {
		u, err := p.store.User(ctx, uid)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("contest %s participant %s: %w", contestID, uid, err)
		}
		e := ContestEntry{
			UserID:      uid,
			UserName:    displayName(u),
			Institution: u.Institution,
			Country:     u.Country,
		}
		for _, pid := range c.ProblemIDs {
			scores, ok := best[pid][uid]
			if !ok {
				continue
			}
			e.TotalScore += stat.Mean(scores, nil)
			e.ProblemsSolved++
		}
		e.Score = e.TotalScore
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalScore < out[j].TotalScore })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// UserSummary returns a user's ranking summary keyed by problem id. Totals
// count users holding a rank at each of the user's own keys and users
// holding an overall rank.
func (p *Projector) UserSummary(ctx context.Context, userID string) (map[string]UserProblemRanking, error) {
	defer observe("user_summary", time.Now())
	return p.userSummary(ctx, userID)
}

func (p *Projector) userSummary(ctx context.Context, userID string) (map[string]UserProblemRanking, error) {
	recs, err := p.store.UserRankings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user rankings %s: %w", userID, err)
	}
	out := make(map[string]UserProblemRanking, len(recs))
	for _, r := range recs {
		all, err := p.store.ProblemRankings(ctx, r.ProblemID)
		if err != nil {
			return nil, fmt.Errorf("user rankings %s problem %s: %w", userID, r.ProblemID, err)
		}
		sum := UserProblemRanking{
			ProblemID:       r.ProblemID,
			DimensionRanks:  r.DimensionRanks,
			BestScores:      r.BestScores,
			OverallRank:     r.OverallRank,
			DimensionTotals: make(map[int]int, len(r.DimensionRanks)),
		}
		for _, other := range all {
			for d := range other.DimensionRanks {
				if _, ok := r.DimensionRanks[d]; ok {
					sum.DimensionTotals[d]++
				}
			}
			if other.OverallRank != nil {
				sum.TotalParticipants++
			}
		}
		out[r.ProblemID] = sum
	}
	return out, nil
}

// UserStats counts a user's submissions and lists their overall rank on
// every problem where they hold one. Problems attempted are those with a
// ranking record.
func (p *Projector) UserStats(ctx context.Context, userID string) (UserStats, error) {
	defer observe("user_stats", time.Now())
	total, err := p.store.CountUserSubmissions(ctx, userID)
	if err != nil {
		return UserStats{}, fmt.Errorf("user stats %s: %w", userID, err)
	}
	summary, err := p.userSummary(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	out := UserStats{
		UserID:            userID,
		TotalSubmissions:  total,
		ProblemsAttempted: len(summary),
		RankDistribution:  make([]RankShare, 0, len(summary)),
	}
	for id, r := range summary {
		if r.OverallRank == nil || r.TotalParticipants == 0 {
			continue
		}
		out.RankDistribution = append(out.RankDistribution, RankShare{
			ProblemID:         id,
			Rank:              *r.OverallRank,
			TotalParticipants: r.TotalParticipants,
		})
	}
	sort.Slice(out.RankDistribution, func(i, j int) bool {
		return out.RankDistribution[i].ProblemID < out.RankDistribution[j].ProblemID
	})
	return out, nil
}

// ContestDetail returns the contest with its problems in contest order.
func (p *Projector) ContestDetail(ctx context.Context, contestID string) (ContestDetail, error) {
	defer observe("contest_detail", time.Now())
	c, err := p.store.Contest(ctx, contestID)
	if err != nil {
		return ContestDetail{}, err
	}
	out := ContestDetail{Contest: c, Problems: make([]model.Problem, 0, len(c.ProblemIDs))}
	for _, id := range c.ProblemIDs {
		prob, err := p.store.Problem(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return ContestDetail{}, fmt.Errorf("contest %s problem %s: %w", contestID, id, err)
		}
		out.Problems = append(out.Problems, prob)
	}
	return out, nil
}

func sortedScores(m map[int]float64) []float64 {
	dims := make([]int, 0, len(m))
	for d := range m {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	out := make([]float64, len(dims))
	for i, d := range dims {
		out[i] = m[d]
	}
	return out
}

func displayName(u model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

func observe(view string, start time.Time) {
	metrics.RecordLeaderboardRequest(view, float64(time.Since(start).Microseconds())/1000)
}

// userCache memoises profile lookups for one request. Unknown users get a
// bare profile carrying only their id.
type userCache struct {
	store Store
	seen  map[string]model.User
}

func newUserCache(store Store) *userCache {
	return &userCache{store: store, seen: make(map[string]model.User)}
}

func (c *userCache) get(ctx context.Context, id string) (model.User, error) {
	if u, ok := c.seen[id]; ok {
		return u, nil
	}
	u, err := c.store.User(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		u = model.User{ID: id}
	case err != nil:
		return model.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	c.seen[id] = u
	return u, nil
}
