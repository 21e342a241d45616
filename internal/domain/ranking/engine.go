package ranking

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/pkg/logger"
	"github.com/okian/toprank/pkg/metrics"
)

// Store is the persistence the engine reads from and writes to.
type Store interface {
	EvaluatedSubmissions(ctx context.Context, problemID string, dimension int) ([]model.Submission, error)
	ReplaceDimensionRanks(ctx context.Context, problemID string, dimension int, ranks []model.DimensionRank) error
	SetOverallRanks(ctx context.Context, problemID string, ranks map[string]int) error
	ProblemRankings(ctx context.Context, problemID string) ([]model.RankingRecord, error)
	Problems(ctx context.Context) ([]model.Problem, error)
}

// Engine recomputes ranks after submissions and on demand.
type Engine struct {
	store              Store
	log                logger.Logger
	refreshAllOverall  bool
	rebuildConcurrency int

	dimLocks     *keyedMutex
	problemLocks *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRefreshAllOverall controls whether a submission refreshes the
// overall rank of every participant of the problem or only the submitter.
func WithRefreshAllOverall(all bool) Option {
	return func(e *Engine) { e.refreshAllOverall = all }
}

// WithRebuildConcurrency bounds how many problems RebuildAll processes at once.
func WithRebuildConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rebuildConcurrency = n
		}
	}
}

// NewEngine constructs an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:              store,
		log:                logger.Discard(),
		refreshAllOverall:  true,
		rebuildConcurrency: 4,
		dimLocks:           newKeyedMutex(),
		problemLocks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func dimKey(problemID string, dimension int) string {
	return problemID + "/" + strconv.Itoa(dimension)
}

// RecomputeDimension ranks every user with an evaluated submission at the
// key and atomically replaces the stored rank set. A key without data
// yields an empty result and an empty stored set.
func (e *Engine) RecomputeDimension(ctx context.Context, problemID string, dimension int) ([]Standing, error) {
	start := time.Now()
	unlock := e.dimLocks.Lock(dimKey(problemID, dimension))
	defer unlock()

	subs, err := e.store.EvaluatedSubmissions(ctx, problemID, dimension)
	if err != nil {
		metrics.RecordRecomputeFailure("dimension")
		return nil, fmt.Errorf("recompute %s/D%d: %w", problemID, dimension, err)
	}
	st := Standings(subs)
	if err := e.store.ReplaceDimensionRanks(ctx, problemID, dimension, DimensionRanks(st)); err != nil {
		metrics.RecordRecomputeFailure("dimension")
		return nil, fmt.Errorf("recompute %s/D%d: %w", problemID, dimension, err)
	}

	metrics.UpdateRankedUsers(problemID, strconv.Itoa(dimension), len(st))
	metrics.RecordRecomputeLatency("dimension", float64(time.Since(start).Microseconds())/1000)
	e.log.Debug(ctx, "dimension ranks recomputed",
		logger.String("problem", problemID),
		logger.Int("dimension", dimension),
		logger.Int("users", len(st)),
	)
	return st, nil
}

// RecomputeOverall computes userID's overall rank on problemID and stores
// it. ok is false when the user has no dimension rank on the problem.
func (e *Engine) RecomputeOverall(ctx context.Context, problemID, userID string) (rank int, ok bool, err error) {
	start := time.Now()
	unlock := e.problemLocks.Lock(problemID)
	defer unlock()

	order, err := e.overall(ctx, problemID)
	if err != nil {
		return 0, false, err
	}
	for _, o := range order {
		if o.UserID != userID {
			continue
		}
		if err := e.store.SetOverallRanks(ctx, problemID, map[string]int{userID: o.Rank}); err != nil {
			metrics.RecordRecomputeFailure("overall")
			return 0, false, fmt.Errorf("overall rank %s/%s: %w", problemID, userID, err)
		}
		metrics.RecordRecomputeLatency("overall", float64(time.Since(start).Microseconds())/1000)
		return o.Rank, true, nil
	}
	return 0, false, nil
}

// RefreshOverall recomputes and stores the overall rank of every user
// ranked on problemID.
func (e *Engine) RefreshOverall(ctx context.Context, problemID string) ([]OverallStanding, error) {
	start := time.Now()
	unlock := e.problemLocks.Lock(problemID)
	defer unlock()

	order, err := e.overall(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return order, nil
	}
	ranks := make(map[string]int, len(order))
	for _, o := range order {
		ranks[o.UserID] = o.Rank
	}
	if err := e.store.SetOverallRanks(ctx, problemID, ranks); err != nil {
		metrics.RecordRecomputeFailure("overall")
		return nil, fmt.Errorf("refresh overall %s: %w", problemID, err)
	}
	metrics.RecordRecomputeLatency("overall", float64(time.Since(start).Microseconds())/1000)
	return order, nil
}

func (e *Engine) overall(ctx context.Context, problemID string) ([]OverallStanding, error) {
	records, err := e.store.ProblemRankings(ctx, problemID)
	if err != nil {
		metrics.RecordRecomputeFailure("overall")
		return nil, fmt.Errorf("overall ranks %s: %w", problemID, err)
	}
	return Overall(records), nil
}

// OnSubmission applies the trigger policy after a submission at
// (problemID, dimension) by userID was evaluated.
func (e *Engine) OnSubmission(ctx context.Context, problemID string, dimension int, userID string) error {
	if _, err := e.RecomputeDimension(ctx, problemID, dimension); err != nil {
		return err
	}
	if e.refreshAllOverall {
		_, err := e.RefreshOverall(ctx, problemID)
		return err
	}
	_, _, err := e.RecomputeOverall(ctx, problemID, userID)
	return err
}

// RebuildReport summarises a RebuildAll run.
type RebuildReport struct {
	Problems   int           `json:"problems"`
	Dimensions int           `json:"dimensions"`
	Duration   time.Duration `json:"durationNs"`
}

// RebuildAll recomputes every supported dimension of every active problem
// and then refreshes overall ranks. Problems are processed concurrently.
func (e *Engine) RebuildAll(ctx context.Context) (RebuildReport, error) {
	start := time.Now()
	problems, err := e.store.Problems(ctx)
	if err != nil {
		return RebuildReport{}, fmt.Errorf("rebuild: list problems: %w", err)
	}

	var nProblems, nDims atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.rebuildConcurrency)
	for _, p := range problems {
		if p.Status != model.ProblemActive {
			continue
		}
		g.Go(func() error {
			for _, d := range p.Dimensions {
				if _, err := e.RecomputeDimension(gctx, p.ID, d); err != nil {
					return err
				}
				nDims.Add(1)
			}
			if _, err := e.RefreshOverall(gctx, p.ID); err != nil {
				return err
			}
			nProblems.Add(1)
			return nil
		})
	}
	err = g.Wait()

	report := RebuildReport{
		Problems:   int(nProblems.Load()),
		Dimensions: int(nDims.Load()),
		Duration:   time.Since(start),
	}
	metrics.RecordRebuildDuration(float64(report.Duration.Milliseconds()))
	if err != nil {
		e.log.Error(ctx, "ranking rebuild failed", logger.Error(err), logger.Int("problems", report.Problems))
		return report, fmt.Errorf("rebuild: %w", err)
	}
	e.log.Info(ctx, "ranking rebuild finished",
		logger.Int("problems", report.Problems),
		logger.Int("dimensions", report.Dimensions),
		logger.Duration("took", report.Duration),
	)
	return report, nil
}
