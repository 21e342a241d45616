package loadtest

import (
	"context"
	"fmt"
	"sort"
)

// verify compares the served leaderboard with the best scores observed by
// this run. Users outside this run may share the board, so only relative
// order among our users and per-user rank agreement are checked.
func verify(ctx context.Context, c *client, cfg *Config, best map[string]float64, stats *Stats) error {
	rows, err := c.leaderboard(ctx, cfg.ProblemID, cfg.Dimension, cfg.TopN)
	if err != nil {
		return fmt.Errorf("fetch leaderboard: %w", err)
	}
	if err := checkOrdering(rows); err != nil {
		return err
	}

	ours := make([]Entry, 0, len(rows))
	for _, r := range rows {
		if score, ok := best[r.UserID]; ok {
			if r.Score != score {
				return fmt.Errorf("user %s: leaderboard score %g, best accepted %g", r.UserID, r.Score, score)
			}
			ours = append(ours, r)
		}
	}

	for _, r := range ours {
		summary, err := c.userRankings(ctx, r.UserID)
		if err != nil {
			return fmt.Errorf("fetch rankings of %s: %w", r.UserID, err)
		}
		got := summary[cfg.ProblemID].DimensionRanks[cfg.Dimension]
		if got != r.Rank {
			return fmt.Errorf("user %s: leaderboard rank %d, user rank %d", r.UserID, r.Rank, got)
		}
		stats.Verified++
	}

	// The best of our users must be the first of our users on the board.
	if len(ours) > 0 {
		top := expectedOrder(best)[0]
		if ours[0].UserID != top {
			if best[ours[0].UserID] != best[top] {
				return fmt.Errorf("top user %s, expected %s", ours[0].UserID, top)
			}
		}
	}
	return nil
}

// checkOrdering requires ranks 1..n and non-decreasing scores.
func checkOrdering(rows []Entry) error {
	for i, r := range rows {
		if r.Rank != i+1 {
			return fmt.Errorf("row %d has rank %d", i, r.Rank)
		}
		if i > 0 && r.Score < rows[i-1].Score {
			return fmt.Errorf("row %d score %g is better than row %d score %g", i, r.Score, i-1, rows[i-1].Score)
		}
	}
	return nil
}

// expectedOrder sorts users by best score, then id.
func expectedOrder(best map[string]float64) []string {
	users := make([]string, 0, len(best))
	for u := range best {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if best[users[i]] != best[users[j]] {
			return best[users[i]] < best[users[j]]
		}
		return users[i] < users[j]
	})
	return users
}
