package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/toprank/pkg/logger"
)

// File permission constants.
const (
	outputFilePermission = 0o600
)

// Run executes the complete load test: health check, generation,
// concurrent submission and verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.NumUsers < 1 || cfg.NumSubmissions < cfg.NumUsers {
		return nil, fmt.Errorf("need at least one user and one submission per user, got %d users and %d submissions", cfg.NumUsers, cfg.NumSubmissions)
	}
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("problem", cfg.ProblemID),
		logger.Int("dimension", cfg.Dimension),
		logger.Int("users", cfg.NumUsers),
		logger.Int("submissions", cfg.NumSubmissions),
		logger.Int("workers", cfg.Workers),
	)

	if err := c.health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	problem, err := c.problem(ctx, cfg.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("fetch problem: %w", err)
	}
	if !slices.Contains(problem.Dimensions, cfg.Dimension) {
		return nil, fmt.Errorf("problem %s does not offer dimension %d (offers %v)", problem.ID, cfg.Dimension, problem.Dimensions)
	}

	subs := generate(cfg, problem)
	stats.Generated = len(subs)
	if cfg.OutputFile != "" {
		if err := saveSubmissions(cfg.OutputFile, subs); err != nil {
			log.Warn(ctx, "failed to save submissions", logger.Error(err))
		}
	}

	best := submitAll(ctx, c, cfg, subs, stats)
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("rateLimited", stats.RateLimited),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
	)
	if stats.Accepted == 0 {
		return stats, errors.New("no submission was accepted")
	}

	if err := verify(ctx, c, cfg, best, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("accepted", stats.Accepted),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", float64(stats.Accepted+stats.Rejected+stats.RateLimited)/stats.Duration.Seconds()),
	)
	return stats, nil
}

// submitAll posts every submission with a bounded worker group and returns
// each user's best accepted score.
func submitAll(ctx context.Context, c *client, cfg *Config, subs []Submission, stats *Stats) map[string]float64 {
	var (
		mu   sync.Mutex
		best = make(map[string]float64)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, s := range subs {
		g.Go(func() error {
			res, err := c.submit(gctx, cfg.ProblemID, s)
			mu.Lock()
			defer mu.Unlock()
			var se *statusError
			switch {
			case err == nil:
				stats.Accepted++
				if prev, ok := best[s.UserID]; !ok || res.Score < prev {
					best[s.UserID] = res.Score
				}
			case errors.As(err, &se) && se.Status == http.StatusTooManyRequests:
				stats.RateLimited++
			case errors.As(err, &se) && se.Status < http.StatusInternalServerError:
				stats.Rejected++
			default:
				stats.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return best
}

func saveSubmissions(path string, subs []Submission) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal submissions: %w", err)
	}
	if err := os.WriteFile(path, data, outputFilePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
