package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/okian/toprank/internal/domain/fitness"
	"github.com/okian/toprank/internal/domain/model"
)

func ptr(v float64) *float64 { return &v }

func evaluated(id, user, problem string, dim int, score float64, at time.Time) model.Submission {
	return model.Submission{
		ID:          id,
		UserID:      user,
		ProblemID:   problem,
		Dimension:   dim,
		Solution:    make([]float64, dim),
		Score:       ptr(score),
		Status:      model.SubmissionEvaluated,
		SubmittedAt: at,
	}
}

func TestScoreIndex_InOrder(t *testing.T) {
	idx := &scoreIndex{rng: rand.New(rand.NewPCG(1, 2))}
	scores := []float64{5, 1, 3, 1, 4, 2}
	for i, sc := range scores {
		idx.add(fmt.Sprintf("s%d", i), sc, uint64(i+1))
	}
	if idx.len() != len(scores) {
		t.Fatalf("expected %d nodes, got %d", len(scores), idx.len())
	}

	got := idx.ordered()
	want := []string{"s1", "s3", "s5", "s2", "s4", "s0"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s (full %v)", i, want[i], got[i], got)
		}
	}

	idx.remove(1, 2)
	got = idx.ordered()
	if got[0] != "s3" || idx.len() != len(scores)-1 {
		t.Errorf("expected s3 first after removal, got %v", got)
	}
}

func TestScoreIndex_LargeRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	idx := &scoreIndex{rng: rng}
	scores := make(map[string]float64)
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("s%d", i)
		sc := float64(rng.IntN(100))
		scores[id] = sc
		idx.add(id, sc, uint64(i))
	}
	got := idx.ordered()
	for i := 1; i < len(got); i++ {
		if scores[got[i-1]] > scores[got[i]] {
			t.Fatalf("order violated at %d: %v > %v", i, scores[got[i-1]], scores[got[i]])
		}
	}
}

func TestMemoryStore_EvaluatedSubmissionsOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithPrioritySeed(42))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	subs := []model.Submission{
		evaluated("a", "alice", "298", 20, 3.5, base),
		evaluated("b", "bob", "298", 20, 1.0, base.Add(time.Second)),
		evaluated("c", "carol", "298", 20, 1.0, base.Add(2*time.Second)),
		evaluated("d", "dave", "298", 50, 0.1, base.Add(3*time.Second)),
	}
	for _, s := range subs {
		if err := store.InsertSubmission(ctx, s); err != nil {
			t.Fatalf("insert %s: %v", s.ID, err)
		}
	}

	got, err := store.EvaluatedSubmissions(ctx, "298", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 submissions for D20, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
		t.Errorf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}

	empty, err := store.EvaluatedSubmissions(ctx, "301", 20)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty result for unknown key, got %v %v", empty, err)
	}
}

func TestMemoryStore_PendingThenEvaluated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	pending := model.Submission{ID: "p1", UserID: "u", ProblemID: "298", Dimension: 2, Solution: []float64{0, 0}, Status: model.SubmissionPending}
	if err := store.InsertSubmission(ctx, pending); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got, _ := store.EvaluatedSubmissions(ctx, "298", 2); len(got) != 0 {
		t.Fatalf("pending submission must not be ranked, got %d", len(got))
	}

	at := time.Now()
	if err := store.AttachEvaluation(ctx, "p1", Evaluation{Status: model.SubmissionEvaluated, Score: ptr(0), EvaluatedAt: at}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got, _ := store.EvaluatedSubmissions(ctx, "298", 2)
	if len(got) != 1 || *got[0].Score != 0 || got[0].EvaluatedAt == nil {
		t.Fatalf("expected one evaluated submission, got %+v", got)
	}

	err := store.AttachEvaluation(ctx, "missing", Evaluation{Status: model.SubmissionError})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.InsertSubmission(ctx, pending); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on duplicate id, got %v", err)
	}
}

func TestMemoryStore_ErroredSubmissionNotRanked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := model.Submission{ID: "e1", UserID: "u", ProblemID: "298", Dimension: 2, Status: model.SubmissionPending}
	_ = store.InsertSubmission(ctx, s)
	_ = store.AttachEvaluation(ctx, "e1", Evaluation{Status: model.SubmissionError, ErrorMessage: "boom", EvaluatedAt: time.Now()})

	if got, _ := store.EvaluatedSubmissions(ctx, "298", 2); len(got) != 0 {
		t.Errorf("errored submission must not be returned, got %d", len(got))
	}
	hist, _ := store.UserSubmissions(ctx, "u", 10)
	if len(hist) != 1 || hist[0].ErrorMessage != "boom" {
		t.Errorf("expected errored submission in history, got %+v", hist)
	}
}

func TestMemoryStore_UserSubmissions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = store.InsertSubmission(ctx, evaluated(fmt.Sprintf("s%d", i), "u1", "298", 20, float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	got, err := store.UserSubmissions(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].ID != "s4" || got[2].ID != "s2" {
		t.Errorf("expected newest first, got %v", got)
	}

	if _, err := store.UserSubmissions(ctx, "u1", 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if n, _ := store.CountSubmissions(ctx); n != 5 {
		t.Errorf("expected 5 submissions, got %d", n)
	}
}

func TestMemoryStore_UserProblemSubmissions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	for i, problem := range []string{"298", "299", "298", "298"} {
		_ = store.InsertSubmission(ctx, evaluated(fmt.Sprintf("s%d", i), "u1", problem, 20, float64(i), base.Add(time.Duration(i)*time.Second)))
	}
	_ = store.InsertSubmission(ctx, evaluated("other", "u2", "298", 20, 1, base))

	got, err := store.UserProblemSubmissions(ctx, "u1", "298", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s3" || got[1].ID != "s2" {
		t.Errorf("expected s3 then s2, got %v", got)
	}
	if got, _ := store.UserProblemSubmissions(ctx, "u1", "299", 10); len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("expected only s1, got %v", got)
	}
	if got, _ := store.UserProblemSubmissions(ctx, "u1", "300", 10); len(got) != 0 {
		t.Errorf("expected no submissions, got %v", got)
	}
	if _, err := store.UserProblemSubmissions(ctx, "u1", "298", 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}

	if n, _ := store.CountUserSubmissions(ctx, "u1"); n != 4 {
		t.Errorf("expected 4 submissions for u1, got %d", n)
	}
	if n, _ := store.CountUserSubmissions(ctx, "ghost"); n != 0 {
		t.Errorf("expected 0 submissions for ghost, got %d", n)
	}
}

func TestMemoryStore_ReplaceDimensionRanks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := []model.DimensionRank{{UserID: "a", Rank: 1, BestScore: 0.5}, {UserID: "b", Rank: 2, BestScore: 0.7}}
	if err := store.ReplaceDimensionRanks(ctx, "298", 20, first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.ReplaceDimensionRanks(ctx, "298", 50, []model.DimensionRank{{UserID: "a", Rank: 1, BestScore: 2}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.SetOverallRanks(ctx, "298", map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("overall: %v", err)
	}

	recs, _ := store.ProblemRankings(ctx, "298")
	if len(recs) != 2 || recs[0].UserID != "a" {
		t.Fatalf("expected records for a and b, got %+v", recs)
	}
	if recs[0].DimensionRanks[20] != 1 || recs[0].DimensionRanks[50] != 1 || recs[0].BestScores[50] != 2 {
		t.Errorf("unexpected record for a: %+v", recs[0])
	}
	if recs[1].OverallRank == nil || *recs[1].OverallRank != 2 {
		t.Errorf("expected overall rank 2 for b, got %v", recs[1].OverallRank)
	}

	// swap order at D20; b now leads.
	second := []model.DimensionRank{{UserID: "b", Rank: 1, BestScore: 0.1}, {UserID: "a", Rank: 2, BestScore: 0.5}}
	if err := store.ReplaceDimensionRanks(ctx, "298", 20, second); err != nil {
		t.Fatalf("replace: %v", err)
	}
	user, _ := store.UserRankings(ctx, "b")
	if len(user) != 1 || user[0].DimensionRanks[20] != 1 || user[0].BestScores[20] != 0.1 {
		t.Errorf("unexpected record for b: %+v", user)
	}

	// a rejected replace leaves the prior set untouched.
	bad := []model.DimensionRank{{UserID: "c", Rank: 1}, {UserID: "", Rank: 2}}
	if err := store.ReplaceDimensionRanks(ctx, "298", 20, bad); err == nil {
		t.Fatal("expected invalid rank error")
	}
	recs, _ = store.ProblemRankings(ctx, "298")
	if len(recs) != 2 {
		t.Errorf("expected prior ranks preserved, got %+v", recs)
	}
}

func TestMemoryStore_Catalog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := model.Problem{ID: "298", Name: "Sphere", Dimensions: []int{20, 50}, Status: model.ProblemActive}
	if err := store.PutProblem(ctx, p); err != nil {
		t.Fatalf("put problem: %v", err)
	}
	if err := store.IncrementSubmissionCount(ctx, "298", 20); err != nil {
		t.Fatalf("increment: %v", err)
	}
	_ = store.IncrementSubmissionCount(ctx, "298", 20)
	got, err := store.Problem(ctx, "298")
	if err != nil {
		t.Fatalf("problem: %v", err)
	}
	if got.DimensionSubmissions[20] != 2 || got.TotalSubmissions != 2 {
		t.Errorf("unexpected counters %+v", got)
	}
	if _, err := store.Problem(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.IncrementSubmissionCount(ctx, "1", 20); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// returned values are copies.
	got.Dimensions[0] = 999
	again, _ := store.Problem(ctx, "298")
	if again.Dimensions[0] != 20 {
		t.Error("store leaked internal slice")
	}

	_ = store.PutUser(ctx, model.User{ID: "u1", Name: "Ada"})
	if u, err := store.User(ctx, "u1"); err != nil || u.Name != "Ada" {
		t.Errorf("unexpected user %+v %v", u, err)
	}
	if n, _ := store.CountUsers(ctx); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}

	_ = store.PutContest(ctx, model.Contest{ID: "c1", ProblemIDs: []string{"298"}})
	if err := store.AddParticipant(ctx, "c1", "u1"); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := store.AddParticipant(ctx, "c1", "u1"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if err := store.AddParticipant(ctx, "nope", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	c, _ := store.Contest(ctx, "c1")
	if len(c.Participants) != 1 {
		t.Errorf("expected 1 participant, got %v", c.Participants)
	}

	_ = store.PutContest(ctx, model.Contest{ID: "a0", ProblemIDs: []string{"299"}})
	contests, err := store.Contests(ctx)
	if err != nil {
		t.Fatalf("contests: %v", err)
	}
	if len(contests) != 2 || contests[0].ID != "a0" || contests[1].ID != "c1" {
		t.Errorf("expected contests ordered by id, got %v", contests)
	}
	if len(contests[1].Participants) != 1 {
		t.Errorf("expected listed contest to carry its participant, got %v", contests[1].Participants)
	}
}

func TestMemoryStore_PutProblemKeepsActiveFitness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := model.Problem{ID: "298", Kind: fitness.KindSphere, Dimensions: []int{20}, Lower: -5.12, Upper: 5.12, Status: model.ProblemPending}
	if err := store.PutProblem(ctx, p); err != nil {
		t.Fatalf("put problem: %v", err)
	}

	// pending problems may still be redefined.
	p.Upper = 6
	p.Status = model.ProblemActive
	if err := store.PutProblem(ctx, p); err != nil {
		t.Fatalf("redefine pending problem: %v", err)
	}
	_ = store.IncrementSubmissionCount(ctx, "298", 20)

	changed := p
	changed.Kind = fitness.KindRastrigin
	if err := store.PutProblem(ctx, changed); !errors.Is(err, ErrFitnessImmutable) {
		t.Errorf("expected ErrFitnessImmutable for kind change, got %v", err)
	}
	changed = p
	changed.Lower = -1
	if err := store.PutProblem(ctx, changed); !errors.Is(err, ErrFitnessImmutable) {
		t.Errorf("expected ErrFitnessImmutable for bounds change, got %v", err)
	}

	p.Name = "renamed"
	if err := store.PutProblem(ctx, p); err != nil {
		t.Fatalf("metadata update: %v", err)
	}
	got, _ := store.Problem(ctx, "298")
	if got.Kind != fitness.KindSphere || got.Upper != 6 || got.Name != "renamed" {
		t.Errorf("unexpected problem %+v", got)
	}
	if got.TotalSubmissions != 1 || got.DimensionSubmissions[20] != 1 {
		t.Errorf("counters lost on update: %+v", got)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("g%d-%d", g, i)
				_ = store.InsertSubmission(ctx, evaluated(id, fmt.Sprintf("u%d", g), "298", 20, float64(i), time.Now()))
				_, _ = store.EvaluatedSubmissions(ctx, "298", 20)
			}
		}(g)
	}
	wg.Wait()

	got, _ := store.EvaluatedSubmissions(ctx, "298", 20)
	if len(got) != 800 {
		t.Fatalf("expected 800 submissions, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if *got[i-1].Score > *got[i].Score {
			t.Fatalf("order violated at %d", i)
		}
	}
}

func BenchmarkMemoryStore_InsertEvaluated(b *testing.B) {
	ctx := context.Background()
	store := NewMemoryStore(WithPrioritySeed(1))
	rng := rand.New(rand.NewPCG(3, 4))
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.InsertSubmission(ctx, evaluated(fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i%1000), "298", 20, rng.Float64(), now))
	}
}
