// Package ranking derives per-dimension and overall ranks from the
// submission history and keeps the ranking cache in sync with it.
package ranking

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/toprank/internal/domain/model"
)

// Standing is one user's position at a (problem, dimension) key.
type Standing struct {
	Rank         int
	UserID       string
	Score        float64
	SubmissionID string
	SubmittedAt  time.Time
}

// Standings reduces submissions to each user's best score and ranks the
// users by it. Only evaluated submissions with a score count. Equal best
// scores of one user resolve to the earliest submission; users with equal
// best scores are ordered by that submission's time, then by user id.
// Ranks run 1..N with no gaps and no shared ranks.
func Standings(subs []model.Submission) []Standing {
	best := make(map[string]int)
	out := make([]Standing, 0)
	for _, s := range subs {
		if !s.Rankable() {
			continue
		}
		cand := Standing{
			UserID:       s.UserID,
			Score:        *s.Score,
			SubmissionID: s.ID,
			SubmittedAt:  s.SubmittedAt,
		}
		i, ok := best[s.UserID]
		if !ok {
			best[s.UserID] = len(out)
			out = append(out, cand)
			continue
		}
		cur := out[i]
		if cand.Score < cur.Score || (cand.Score == cur.Score && cand.SubmittedAt.Before(cur.SubmittedAt)) {
			out[i] = cand
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.UserID < b.UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// DimensionRanks converts standings into the rows stored in the ranking cache.
func DimensionRanks(st []Standing) []model.DimensionRank {
	out := make([]model.DimensionRank, len(st))
	for i, s := range st {
		out[i] = model.DimensionRank{UserID: s.UserID, Rank: s.Rank, BestScore: s.Score}
	}
	return out
}

// OverallStanding is a user's overall position on a problem.
type OverallStanding struct {
	Rank     int
	UserID   string
	MeanRank float64
}

// Overall orders users with at least one dimension rank by the mean of
// their dimension ranks. Equal means keep user id order.
func Overall(records []model.RankingRecord) []OverallStanding {
	out := make([]OverallStanding, 0, len(records))
	for _, r := range records {
		if len(r.DimensionRanks) == 0 {
			continue
		}
		ranks := make([]float64, 0, len(r.DimensionRanks))
		for _, rank := range r.DimensionRanks {
			ranks = append(ranks, float64(rank))
		}
		out = append(out, OverallStanding{UserID: r.UserID, MeanRank: stat.Mean(ranks, nil)})
	}

	// No product rule orders equal means; user id keeps the order stable
	// across stores until one is decided.
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanRank < out[j].MeanRank })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
