package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/pkg/metrics"
)

const driverMemory = "memory"

type dimKey struct {
	problemID string
	dimension int
}

type storedSubmission struct {
	sub model.Submission
	seq uint64
}

// MemoryStore keeps all state in process memory. Evaluated submissions
// are indexed per (problem, dimension) in a treap so the sorted query
// is an in-order walk. Every method is safe for concurrent use.
type MemoryStore struct {
	mu  sync.RWMutex
	rng *rand.Rand
	now func() time.Time
	seq uint64

	submissions map[string]*storedSubmission
	byUser      map[string][]string
	index       map[dimKey]*scoreIndex

	// problem -> dimension -> user -> rank
	ranks map[string]map[int]map[string]model.DimensionRank
	// problem -> user -> overall rank
	overall map[string]map[string]int
	// problem -> user -> last ranking update
	updated map[string]map[string]time.Time

	problems map[string]model.Problem
	users    map[string]model.User
	contests map[string]model.Contest
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:         time.Now,
		submissions: make(map[string]*storedSubmission),
		byUser:      make(map[string][]string),
		index:       make(map[dimKey]*scoreIndex),
		ranks:       make(map[string]map[int]map[string]model.DimensionRank),
		overall:     make(map[string]map[string]int),
		updated:     make(map[string]map[string]time.Time),
		problems:    make(map[string]model.Problem),
		users:       make(map[string]model.User),
		contests:    make(map[string]model.Contest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(driverMemory, op, float64(time.Since(start).Microseconds())/1000)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// InsertSubmission implements Submissions.InsertSubmission.
func (s *MemoryStore) InsertSubmission(ctx context.Context, sub model.Submission) error {
	defer observe("insert_submission", time.Now())
	if sub.ID == "" {
		return fmt.Errorf("insert submission: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; ok {
		return fmt.Errorf("insert submission %s: %w", sub.ID, ErrAlreadyExists)
	}
	s.seq++
	stored := &storedSubmission{sub: cloneSubmission(sub), seq: s.seq}
	s.submissions[sub.ID] = stored
	s.byUser[sub.UserID] = append(s.byUser[sub.UserID], sub.ID)
	if stored.sub.Rankable() {
		s.indexFor(sub.ProblemID, sub.Dimension).add(sub.ID, *stored.sub.Score, stored.seq)
	}
	return nil
}

// AttachEvaluation implements Submissions.AttachEvaluation.
func (s *MemoryStore) AttachEvaluation(ctx context.Context, id string, ev Evaluation) error {
	defer observe("attach_evaluation", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.submissions[id]
	if !ok {
		return fmt.Errorf("attach evaluation %s: %w", id, ErrNotFound)
	}
	idx := s.indexFor(stored.sub.ProblemID, stored.sub.Dimension)
	if stored.sub.Rankable() {
		idx.remove(*stored.sub.Score, stored.seq)
	}

	stored.sub.Status = ev.Status
	stored.sub.Score = nil
	if ev.Score != nil {
		v := *ev.Score
		stored.sub.Score = &v
	}
	stored.sub.ErrorMessage = ev.ErrorMessage
	at := ev.EvaluatedAt
	stored.sub.EvaluatedAt = &at

	if stored.sub.Rankable() {
		idx.add(id, *stored.sub.Score, stored.seq)
	}
	return nil
}

// EvaluatedSubmissions implements Submissions.EvaluatedSubmissions.
func (s *MemoryStore) EvaluatedSubmissions(ctx context.Context, problemID string, dimension int) ([]model.Submission, error) {
	defer observe("evaluated_submissions", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[dimKey{problemID, dimension}]
	if !ok {
		return nil, nil
	}
	ids := idx.ordered()
	out := make([]model.Submission, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneSubmission(s.submissions[id].sub))
	}
	return out, nil
}

// UserSubmissions implements Submissions.UserSubmissions.
func (s *MemoryStore) UserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error) {
	defer observe("user_submissions", time.Now())
	return s.userSubmissions(userID, "", limit)
}

// UserProblemSubmissions implements Submissions.UserProblemSubmissions.
func (s *MemoryStore) UserProblemSubmissions(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	defer observe("user_problem_submissions", time.Now())
	return s.userSubmissions(userID, problemID, limit)
}

// userSubmissions walks a user's history newest first. An empty problemID
// matches every problem.
func (s *MemoryStore) userSubmissions(userID, problemID string, limit int) ([]model.Submission, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]model.Submission, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		sub := s.submissions[ids[i]].sub
		if problemID != "" && sub.ProblemID != problemID {
			continue
		}
		out = append(out, cloneSubmission(sub))
	}
	return out, nil
}

// CountUserSubmissions implements Submissions.CountUserSubmissions.
func (s *MemoryStore) CountUserSubmissions(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser[userID]), nil
}

// CountSubmissions implements Submissions.CountSubmissions.
func (s *MemoryStore) CountSubmissions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions), nil
}

// ReplaceDimensionRanks implements Rankings.ReplaceDimensionRanks. The new
// set is built before the lock is taken and swapped in one assignment.
func (s *MemoryStore) ReplaceDimensionRanks(ctx context.Context, problemID string, dimension int, ranks []model.DimensionRank) error {
	defer observe("replace_dimension_ranks", time.Now())

	next := make(map[string]model.DimensionRank, len(ranks))
	for _, r := range ranks {
		if r.UserID == "" || r.Rank < 1 {
			return fmt.Errorf("replace ranks %s/D%d: invalid rank %+v", problemID, dimension, r)
		}
		next[r.UserID] = r
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	byDim, ok := s.ranks[problemID]
	if !ok {
		byDim = make(map[int]map[string]model.DimensionRank)
		s.ranks[problemID] = byDim
	}
	touched := make(map[string]struct{}, len(next)+len(byDim[dimension]))
	for u := range byDim[dimension] {
		touched[u] = struct{}{}
	}
	for u := range next {
		touched[u] = struct{}{}
	}
	byDim[dimension] = next
	s.touch(problemID, touched, now)
	return nil
}

// SetOverallRanks implements Rankings.SetOverallRanks.
func (s *MemoryStore) SetOverallRanks(ctx context.Context, problemID string, ranks map[string]int) error {
	defer observe("set_overall_ranks", time.Now())
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.overall[problemID]
	if !ok {
		byUser = make(map[string]int, len(ranks))
		s.overall[problemID] = byUser
	}
	touched := make(map[string]struct{}, len(ranks))
	for u, r := range ranks {
		byUser[u] = r
		touched[u] = struct{}{}
	}
	s.touch(problemID, touched, now)
	return nil
}

// ProblemRankings implements Rankings.ProblemRankings.
func (s *MemoryStore) ProblemRankings(ctx context.Context, problemID string) ([]model.RankingRecord, error) {
	defer observe("problem_rankings", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]struct{})
	for _, byUser := range s.ranks[problemID] {
		for u := range byUser {
			users[u] = struct{}{}
		}
	}
	out := make([]model.RankingRecord, 0, len(users))
	for u := range users {
		out = append(out, s.record(u, problemID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// UserRankings implements Rankings.UserRankings.
func (s *MemoryStore) UserRankings(ctx context.Context, userID string) ([]model.RankingRecord, error) {
	defer observe("user_rankings", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RankingRecord
	for problemID, byDim := range s.ranks {
		for _, byUser := range byDim {
			if _, ok := byUser[userID]; ok {
				out = append(out, s.record(userID, problemID))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProblemID < out[j].ProblemID })
	return out, nil
}

// record assembles the ranking record of (userID, problemID). Caller holds the lock.
func (s *MemoryStore) record(userID, problemID string) model.RankingRecord {
	rec := model.RankingRecord{
		UserID:         userID,
		ProblemID:      problemID,
		DimensionRanks: make(map[int]int),
		BestScores:     make(map[int]float64),
		UpdatedAt:      s.updated[problemID][userID],
	}
	for dim, byUser := range s.ranks[problemID] {
		if r, ok := byUser[userID]; ok {
			rec.DimensionRanks[dim] = r.Rank
			rec.BestScores[dim] = r.BestScore
		}
	}
	if len(rec.DimensionRanks) > 0 {
		if r, ok := s.overall[problemID][userID]; ok {
			rank := r
			rec.OverallRank = &rank
		}
	}
	return rec
}

func (s *MemoryStore) touch(problemID string, users map[string]struct{}, at time.Time) {
	byUser, ok := s.updated[problemID]
	if !ok {
		byUser = make(map[string]time.Time, len(users))
		s.updated[problemID] = byUser
	}
	for u := range users {
		byUser[u] = at
	}
}

func (s *MemoryStore) indexFor(problemID string, dimension int) *scoreIndex {
	k := dimKey{problemID, dimension}
	idx, ok := s.index[k]
	if !ok {
		idx = &scoreIndex{rng: s.rng}
		s.index[k] = idx
	}
	return idx
}

// PutProblem implements Catalog.PutProblem.
// Counters of a stored problem are kept.
func (s *MemoryStore) PutProblem(ctx context.Context, p model.Problem) error {
	if p.ID == "" {
		return fmt.Errorf("put problem: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneProblem(p)
	if cur, ok := s.problems[p.ID]; ok {
		if cur.Status == model.ProblemActive && !cur.SameFitness(p) {
			return fmt.Errorf("put problem %s: %w", p.ID, ErrFitnessImmutable)
		}
		stored := cloneProblem(cur)
		next.DimensionSubmissions = stored.DimensionSubmissions
		next.TotalSubmissions = stored.TotalSubmissions
	}
	s.problems[p.ID] = next
	return nil
}

// Problem implements Catalog.Problem.
func (s *MemoryStore) Problem(ctx context.Context, id string) (model.Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.problems[id]
	if !ok {
		return model.Problem{}, fmt.Errorf("problem %s: %w", id, ErrNotFound)
	}
	return cloneProblem(p), nil
}

// Problems implements Catalog.Problems.
func (s *MemoryStore) Problems(ctx context.Context) ([]model.Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Problem, 0, len(s.problems))
	for _, p := range s.problems {
		out = append(out, cloneProblem(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IncrementSubmissionCount implements Catalog.IncrementSubmissionCount.
func (s *MemoryStore) IncrementSubmissionCount(ctx context.Context, problemID string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.problems[problemID]
	if !ok {
		return fmt.Errorf("increment counter %s: %w", problemID, ErrNotFound)
	}
	if p.DimensionSubmissions == nil {
		p.DimensionSubmissions = make(map[int]int)
	}
	p.DimensionSubmissions[dimension]++
	p.TotalSubmissions++
	s.problems[problemID] = p
	return nil
}

// PutUser implements Catalog.PutUser.
func (s *MemoryStore) PutUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		return fmt.Errorf("put user: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// User implements Catalog.User.
func (s *MemoryStore) User(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// CountUsers implements Catalog.CountUsers.
func (s *MemoryStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// PutContest implements Catalog.PutContest.
func (s *MemoryStore) PutContest(ctx context.Context, c model.Contest) error {
	if c.ID == "" {
		return fmt.Errorf("put contest: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[c.ID] = cloneContest(c)
	return nil
}

// Contest implements Catalog.Contest.
func (s *MemoryStore) Contest(ctx context.Context, id string) (model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contests[id]
	if !ok {
		return model.Contest{}, fmt.Errorf("contest %s: %w", id, ErrNotFound)
	}
	return cloneContest(c), nil
}

// Contests implements Catalog.Contests.
func (s *MemoryStore) Contests(ctx context.Context) ([]model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		out = append(out, cloneContest(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddParticipant implements Catalog.AddParticipant.
func (s *MemoryStore) AddParticipant(ctx context.Context, contestID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return fmt.Errorf("contest %s: %w", contestID, ErrNotFound)
	}
	if c.HasParticipant(userID) {
		return fmt.Errorf("contest %s participant %s: %w", contestID, userID, ErrAlreadyExists)
	}
	c.Participants = append(slices.Clone(c.Participants), userID)
	s.contests[contestID] = c
	return nil
}

func cloneSubmission(s model.Submission) model.Submission {
	s.Solution = slices.Clone(s.Solution)
	if s.Score != nil {
		v := *s.Score
		s.Score = &v
	}
	if s.EvaluatedAt != nil {
		t := *s.EvaluatedAt
		s.EvaluatedAt = &t
	}
	return s
}

func cloneProblem(p model.Problem) model.Problem {
	p.Dimensions = slices.Clone(p.Dimensions)
	if p.DimensionSubmissions != nil {
		counts := make(map[int]int, len(p.DimensionSubmissions))
		for k, v := range p.DimensionSubmissions {
			counts[k] = v
		}
		p.DimensionSubmissions = counts
	}
	return p
}

func cloneContest(c model.Contest) model.Contest {
	c.ProblemIDs = slices.Clone(c.ProblemIDs)
	c.Participants = slices.Clone(c.Participants)
	return c
}
