package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/toprank/internal/adapters/repository/sqlstore"
	service "github.com/okian/toprank/internal/app"
	"github.com/okian/toprank/internal/domain/model"
)

func TestServiceIntegration_Contest(t *testing.T) {
	Convey("Given a contest over Sphere and Griewank", t, func() {
		ctx := context.Background()
		svc := started(
			service.WithUsers(
				model.User{ID: "alice", Name: "Alice", Institution: "MIT", Country: "US"},
				model.User{ID: "bob", Name: "Bob", Institution: "ETH", Country: "CH"},
			),
			service.WithContests(model.Contest{ID: "spring", Name: "Spring Cup", ProblemIDs: []string{"298", "297"}, EventCode: "go2025"}),
		)
		defer svc.Stop()

		Convey("When joining with a wrong event code", func() {
			err := svc.JoinContest(ctx, "spring", "alice", "nope")
			So(errors.Is(err, service.ErrInvalidEventCode), ShouldBeTrue)
		})

		Convey("When joining an unknown contest", func() {
			err := svc.JoinContest(ctx, "winter", "alice", "go2025")
			So(errors.Is(err, service.ErrContestNotFound), ShouldBeTrue)
			_, err = svc.ContestLeaderboard(ctx, "winter")
			So(errors.Is(err, service.ErrContestNotFound), ShouldBeTrue)
		})

		Convey("When both users join and submit", func() {
			So(svc.JoinContest(ctx, "spring", "alice", "go2025"), ShouldBeNil)
			So(svc.JoinContest(ctx, "spring", "bob", "go2025"), ShouldBeNil)

			_, err := svc.Submit(ctx, service.SubmitRequest{UserID: "alice", ProblemID: "298", Dimension: 20, Solution: fill(20, 0.5)})
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, service.SubmitRequest{UserID: "alice", ProblemID: "297", Dimension: 20, Solution: fill(20, 0)})
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, service.SubmitRequest{UserID: "bob", ProblemID: "298", Dimension: 20, Solution: fill(20, 1)})
			So(err, ShouldBeNil)

			Convey("Then joining twice is rejected", func() {
				err := svc.JoinContest(ctx, "spring", "bob", "go2025")
				So(errors.Is(err, service.ErrAlreadyParticipating), ShouldBeTrue)
			})

			Convey("Then totals sum per-problem means", func() {
				rows, err := svc.ContestLeaderboard(ctx, "spring")
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				// alice: 20*0.25 = 5 on Sphere, 0 on Griewank; bob: 20.
				So(rows[0].UserID, ShouldEqual, "alice")
				So(rows[0].TotalScore, ShouldAlmostEqual, 5.0, 1e-9)
				So(rows[0].ProblemsSolved, ShouldEqual, 2)
				So(rows[1].UserID, ShouldEqual, "bob")
				So(rows[1].ProblemsSolved, ShouldEqual, 1)
				So(rows[1].Institution, ShouldEqual, "ETH")
			})

			Convey("Then the cross-dimension view keys every dimension", func() {
				boards, err := svc.CrossDimensionLeaderboard(ctx, "298")
				So(err, ShouldBeNil)
				So(len(boards), ShouldEqual, 3)
				So(len(boards["D20"]), ShouldEqual, 2)
				So(boards["D50"], ShouldBeEmpty)
			})

			Convey("Then the history lists newest first", func() {
				subs, err := svc.UserSubmissions(ctx, "alice", 10)
				So(err, ShouldBeNil)
				So(len(subs), ShouldEqual, 2)
				So(subs[0].ProblemID, ShouldEqual, "297")
			})
		})
	})
}

func TestServiceIntegration_ConcurrentSubmissions(t *testing.T) {
	Convey("Given many users submitting concurrently", t, func() {
		ctx := context.Background()
		svc := started()
		defer svc.Stop()

		var wg sync.WaitGroup
		for u := 0; u < 10; u++ {
			wg.Add(1)
			go func(u int) {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					_, _ = svc.Submit(ctx, service.SubmitRequest{
						UserID:    fmt.Sprintf("user-%d", u),
						ProblemID: "298",
						Dimension: 20,
						Solution:  fill(20, float64(u+i)/10),
					})
				}
			}(u)
		}
		wg.Wait()

		Convey("Then ranks are a permutation of 1..N consistent with scores", func() {
			rows, err := svc.Leaderboard(ctx, "298", 20, 0)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 10)
			for i, r := range rows {
				So(r.Rank, ShouldEqual, i+1)
				if i > 0 {
					So(rows[i-1].Score, ShouldBeLessThanOrEqualTo, r.Score)
				}
				sum, err := svc.UserRankings(ctx, r.UserID)
				So(err, ShouldBeNil)
				So(sum["298"].DimensionRanks[20], ShouldEqual, r.Rank)
				So(*sum["298"].OverallRank, ShouldEqual, r.Rank)
			}
		})
	})
}

func TestServiceIntegration_SQLiteRebuild(t *testing.T) {
	Convey("Given a service backed by sqlite", t, func() {
		ctx := context.Background()
		dsn := filepath.Join(t.TempDir(), "rank.db")
		store, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
		So(err, ShouldBeNil)
		svc := started(service.WithStore(store))
		defer svc.Stop()

		_, err = svc.Submit(ctx, service.SubmitRequest{UserID: "a", ProblemID: "301", Dimension: 20, Solution: fill(20, 0)})
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, service.SubmitRequest{UserID: "b", ProblemID: "301", Dimension: 20, Solution: fill(20, 1)})
		So(err, ShouldBeNil)

		Convey("When rankings are rebuilt from history", func() {
			before, err := svc.Leaderboard(ctx, "301", 20, 0)
			So(err, ShouldBeNil)
			report, err := svc.RebuildRankings(ctx)
			So(err, ShouldBeNil)

			Convey("Then every active problem is processed and ranks are unchanged", func() {
				So(report.Problems, ShouldEqual, 7)
				So(report.Dimensions, ShouldEqual, 21)
				after, err := svc.Leaderboard(ctx, "301", 20, 0)
				So(err, ShouldBeNil)
				So(len(after), ShouldEqual, len(before))
				for i := range after {
					So(after[i].UserID, ShouldEqual, before[i].UserID)
					So(after[i].Rank, ShouldEqual, before[i].Rank)
				}
				sum, err := svc.UserRankings(ctx, "b")
				So(err, ShouldBeNil)
				So(sum["301"].DimensionRanks[20], ShouldEqual, 2)
			})
		})
	})
}
