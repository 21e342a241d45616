package fitness

import (
	"fmt"
	"math"
	"sync"
)

// Benchmark binds a problem id to a kind and its search domain.
type Benchmark struct {
	ProblemID string
	Kind      Kind
	Lower     float64
	Upper     float64
}

// DefaultCatalog returns the seven classic problems under their historical ids.
func DefaultCatalog() []Benchmark {
	ids := map[Kind]string{
		KindAckley:     "302",
		KindRastrigin:  "301",
		KindSchwefel:   "300",
		KindRosenbrock: "299",
		KindSphere:     "298",
		KindGriewank:   "297",
		KindLevy:       "296",
	}
	out := make([]Benchmark, 0, len(ids))
	for _, k := range Kinds() {
		lo, hi := k.DefaultBounds()
		out = append(out, Benchmark{ProblemID: ids[k], Kind: k, Lower: lo, Upper: hi})
	}
	return out
}

// Evaluator scores and validates solution vectors by problem id.
// It is safe for concurrent use.
type Evaluator struct {
	mu         sync.RWMutex
	benchmarks map[string]Benchmark
}

// NewEvaluator registers every benchmark, rejecting invalid kinds or bounds.
func NewEvaluator(benchmarks ...Benchmark) (*Evaluator, error) {
	e := &Evaluator{benchmarks: make(map[string]Benchmark, len(benchmarks))}
	for _, b := range benchmarks {
		if err := e.Register(b); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register adds or replaces the benchmark for b.ProblemID.
func (e *Evaluator) Register(b Benchmark) error {
	if b.ProblemID == "" {
		return fmt.Errorf("register benchmark: empty problem id")
	}
	if !b.Kind.Valid() {
		return fmt.Errorf("register benchmark %s: %w", b.ProblemID, ErrUnknownKind)
	}
	if !(b.Lower < b.Upper) {
		return fmt.Errorf("register benchmark %s: lower bound %g must be below upper bound %g", b.ProblemID, b.Lower, b.Upper)
	}
	e.mu.Lock()
	e.benchmarks[b.ProblemID] = b
	e.mu.Unlock()
	return nil
}

// Benchmark returns the registered definition for problemID.
func (e *Evaluator) Benchmark(problemID string) (Benchmark, error) {
	e.mu.RLock()
	b, ok := e.benchmarks[problemID]
	e.mu.RUnlock()
	if !ok {
		return Benchmark{}, fmt.Errorf("%w: %s", ErrUnknownProblem, problemID)
	}
	return b, nil
}

// Evaluate returns the fitness of x for problemID. The caller is
// responsible for checking len(x) against the declared dimension.
func (e *Evaluator) Evaluate(problemID string, x []float64) (float64, error) {
	b, err := e.Benchmark(problemID)
	if err != nil {
		return 0, err
	}
	if len(x) == 0 {
		return 0, ErrEmptySolution
	}
	return b.Kind.Func()(x), nil
}

// Validate checks every component of x lies within the closed domain of
// problemID. NaN and infinities are always out of bounds.
func (e *Evaluator) Validate(problemID string, x []float64) error {
	b, err := e.Benchmark(problemID)
	if err != nil {
		return err
	}
	for i, v := range x {
		if math.IsNaN(v) || v < b.Lower || v > b.Upper {
			return &OutOfBoundsError{Index: i, Value: v, Lower: b.Lower, Upper: b.Upper}
		}
	}
	return nil
}

// Len returns the number of registered benchmarks.
func (e *Evaluator) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.benchmarks)
}
