package leaderboard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/toprank/internal/adapters/repository"
	"github.com/okian/toprank/internal/domain/leaderboard"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/internal/domain/ranking"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *repository.MemoryStore
	engine *ranking.Engine
	proj   *leaderboard.Projector
	n      int
}

func newFixture() *fixture {
	store := repository.NewMemoryStore()
	f := &fixture{
		ctx:    context.Background(),
		store:  store,
		engine: ranking.NewEngine(store),
		proj:   leaderboard.NewProjector(store),
	}
	for _, p := range []model.Problem{
		{ID: "298", Name: "Sphere", Dimensions: []int{20, 50}, Status: model.ProblemActive},
		{ID: "297", Name: "Griewank", Dimensions: []int{20}, Status: model.ProblemActive},
	} {
		So(store.PutProblem(f.ctx, p), ShouldBeNil)
	}
	for _, u := range []model.User{
		{ID: "alice", Name: "Alice", Institution: "MIT", Country: "US"},
		{ID: "bob", Name: "Bob", Institution: "ETH", Country: "CH"},
		{ID: "carol", Name: "Carol", Country: "BR"},
	} {
		So(store.PutUser(f.ctx, u), ShouldBeNil)
	}
	return f
}

func (f *fixture) submit(user, problem string, dim int, score float64) {
	f.n++
	v := score
	s := model.Submission{
		ID:          user + "-" + problem + "-" + time.Duration(f.n).String(),
		UserID:      user,
		ProblemID:   problem,
		Dimension:   dim,
		Score:       &v,
		Status:      model.SubmissionEvaluated,
		SubmittedAt: t0.Add(time.Duration(f.n) * time.Second),
	}
	So(f.store.InsertSubmission(f.ctx, s), ShouldBeNil)
	So(f.engine.OnSubmission(f.ctx, problem, dim, user), ShouldBeNil)
}

func TestProjector_Dimension(t *testing.T) {
	Convey("Given three users on Sphere D20", t, func() {
		f := newFixture()
		f.submit("alice", "298", 20, 3.0)
		f.submit("bob", "298", 20, 1.0)
		f.submit("carol", "298", 20, 2.0)
		f.submit("alice", "298", 20, 0.5)
		f.submit("ghost", "298", 20, 9.0)

		Convey("When reading the full board", func() {
			rows, err := f.proj.Dimension(f.ctx, "298", 20, 0)
			So(err, ShouldBeNil)

			Convey("Then rows follow the ranking order with profiles", func() {
				So(len(rows), ShouldEqual, 4)
				So(rows[0].UserID, ShouldEqual, "alice")
				So(rows[0].Score, ShouldEqual, 0.5)
				So(rows[0].Institution, ShouldEqual, "MIT")
				So(rows[1].UserName, ShouldEqual, "Bob")
				So(rows[2].Country, ShouldEqual, "BR")
			})

			Convey("Then an unknown user keeps their id as name", func() {
				So(rows[3].UserName, ShouldEqual, "ghost")
				So(rows[3].Rank, ShouldEqual, 4)
			})

			Convey("Then rows agree with the stored ranks", func() {
				recs, _ := f.store.ProblemRankings(f.ctx, "298")
				stored := map[string]int{}
				for _, r := range recs {
					stored[r.UserID] = r.DimensionRanks[20]
				}
				for _, row := range rows {
					So(row.Rank, ShouldEqual, stored[row.UserID])
				}
			})
		})

		Convey("When a limit is applied", func() {
			rows, err := f.proj.Dimension(f.ctx, "298", 20, 2)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[1].UserID, ShouldEqual, "bob")
		})

		Convey("When the key has no submissions", func() {
			rows, err := f.proj.Dimension(f.ctx, "298", 50, 10)
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})
	})
}

func TestProjector_CrossDimension(t *testing.T) {
	Convey("Given submissions on two dimensions", t, func() {
		f := newFixture()
		f.submit("alice", "298", 20, 1.0)
		f.submit("bob", "298", 50, 2.0)

		boards, err := f.proj.CrossDimension(f.ctx, "298", 10)

		Convey("Then one board per supported dimension is keyed D<n>", func() {
			So(err, ShouldBeNil)
			So(len(boards), ShouldEqual, 2)
			So(boards["D20"][0].UserID, ShouldEqual, "alice")
			So(boards["D50"][0].UserID, ShouldEqual, "bob")
		})

		Convey("Then an unknown problem is not found", func() {
			_, err := f.proj.CrossDimension(f.ctx, "1", 10)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestProjector_Contest(t *testing.T) {
	Convey("Given a contest over two problems", t, func() {
		f := newFixture()
		So(f.store.PutContest(f.ctx, model.Contest{
			ID:           "spring",
			ProblemIDs:   []string{"298", "297"},
			Participants: []string{"alice", "bob", "ghost"},
		}), ShouldBeNil)

		// alice attempts both problems, bob only one with a worse score.
		f.submit("alice", "298", 20, 2.0)
		f.submit("alice", "298", 50, 4.0)
		f.submit("alice", "297", 20, 1.0)
		f.submit("bob", "298", 20, 3.0)

		rows, err := f.proj.Contest(f.ctx, "spring")
		So(err, ShouldBeNil)

		Convey("Then unattempted problems contribute zero to the total", func() {
			So(len(rows), ShouldEqual, 2)
			So(rows[0].UserID, ShouldEqual, "bob")
			So(rows[0].TotalScore, ShouldEqual, 3.0)
			So(rows[0].ProblemsSolved, ShouldEqual, 1)
			So(rows[0].Rank, ShouldEqual, 1)
		})

		Convey("Then per-problem scores are the mean over dimensions", func() {
			So(rows[1].UserID, ShouldEqual, "alice")
			So(rows[1].TotalScore, ShouldAlmostEqual, 3.0+1.0, 1e-12)
			So(rows[1].ProblemsSolved, ShouldEqual, 2)
			So(rows[1].Rank, ShouldEqual, 2)
		})

		Convey("Then an unknown contest is not found", func() {
			_, err := f.proj.Contest(f.ctx, "winter")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestProjector_UserSummary(t *testing.T) {
	Convey("Given users ranked on several keys", t, func() {
		f := newFixture()
		f.submit("alice", "298", 20, 1.0)
		f.submit("bob", "298", 20, 2.0)
		f.submit("bob", "298", 50, 1.0)

		sum, err := f.proj.UserSummary(f.ctx, "bob")
		So(err, ShouldBeNil)

		Convey("Then totals count users per key and overall", func() {
			r := sum["298"]
			So(r.DimensionRanks, ShouldResemble, map[int]int{20: 2, 50: 1})
			So(r.BestScores[50], ShouldEqual, 1.0)
			So(r.DimensionTotals, ShouldResemble, map[int]int{20: 2, 50: 1})
			So(r.TotalParticipants, ShouldEqual, 2)
			So(r.OverallRank, ShouldNotBeNil)
		})

		Convey("Then totals cover only the keys the user is ranked at", func() {
			alice, err := f.proj.UserSummary(f.ctx, "alice")
			So(err, ShouldBeNil)
			So(alice["298"].DimensionTotals, ShouldResemble, map[int]int{20: 2})
		})

		Convey("Then a user without rankings gets an empty summary", func() {
			empty, err := f.proj.UserSummary(f.ctx, "carol")
			So(err, ShouldBeNil)
			So(empty, ShouldBeEmpty)
		})
	})
}

func TestProjector_UserStats(t *testing.T) {
	Convey("Given alice on two problems and bob on one", t, func() {
		f := newFixture()
		f.submit("alice", "298", 20, 1.0)
		f.submit("alice", "298", 20, 3.0)
		f.submit("alice", "297", 20, 1.0)
		f.submit("bob", "298", 20, 2.0)

		Convey("Then alice's stats count every submission and spread her overall ranks", func() {
			stats, err := f.proj.UserStats(f.ctx, "alice")
			So(err, ShouldBeNil)
			So(stats.UserID, ShouldEqual, "alice")
			So(stats.TotalSubmissions, ShouldEqual, 3)
			So(stats.ProblemsAttempted, ShouldEqual, 2)
			So(stats.RankDistribution, ShouldResemble, []leaderboard.RankShare{
				{ProblemID: "297", Rank: 1, TotalParticipants: 1},
				{ProblemID: "298", Rank: 1, TotalParticipants: 2},
			})
		})

		Convey("Then bob trails on the shared problem", func() {
			stats, err := f.proj.UserStats(f.ctx, "bob")
			So(err, ShouldBeNil)
			So(stats.TotalSubmissions, ShouldEqual, 1)
			So(stats.RankDistribution, ShouldResemble, []leaderboard.RankShare{
				{ProblemID: "298", Rank: 2, TotalParticipants: 2},
			})
		})

		Convey("Then a user without submissions has empty stats", func() {
			stats, err := f.proj.UserStats(f.ctx, "carol")
			So(err, ShouldBeNil)
			So(stats.TotalSubmissions, ShouldEqual, 0)
			So(stats.ProblemsAttempted, ShouldEqual, 0)
			So(stats.RankDistribution, ShouldBeEmpty)
		})
	})
}

func TestProjector_ContestDetail(t *testing.T) {
	Convey("Given a contest naming a problem that is not in the catalog", t, func() {
		f := newFixture()
		So(f.store.PutContest(f.ctx, model.Contest{
			ID:         "spring",
			Name:       "Spring",
			ProblemIDs: []string{"297", "gone", "298"},
		}), ShouldBeNil)

		Convey("Then the detail lists known problems in contest order", func() {
			d, err := f.proj.ContestDetail(f.ctx, "spring")
			So(err, ShouldBeNil)
			So(d.Contest.Name, ShouldEqual, "Spring")
			So(len(d.Problems), ShouldEqual, 2)
			So(d.Problems[0].ID, ShouldEqual, "297")
			So(d.Problems[1].ID, ShouldEqual, "298")
		})

		Convey("Then an unknown contest is not found", func() {
			_, err := f.proj.ContestDetail(f.ctx, "winter")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
