package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/toprank/internal/adapters/http/api"
	service "github.com/okian/toprank/internal/app"
	"github.com/okian/toprank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func newBackend(opts ...api.Option) (*httptest.Server, *service.Service) {
	svc := service.New(
		service.WithLogger(logger.Discard()),
		service.WithProblems(service.DefaultProblems()...),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, svc, opts...).Register(mux)
	return httptest.NewServer(mux), svc
}

func TestGenerate(t *testing.T) {
	Convey("Given a problem with bounds", t, func() {
		cfg := &Config{NumUsers: 3, NumSubmissions: 9, Dimension: 5, Seed: 7}
		p := Problem{ID: "298", Lower: -5.12, Upper: 5.12}

		subs := generate(cfg, p)

		Convey("Then every vector has the dimension and stays in bounds", func() {
			So(len(subs), ShouldEqual, 9)
			for _, s := range subs {
				So(len(s.Solution), ShouldEqual, 5)
				for _, v := range s.Solution {
					So(v, ShouldBeBetweenOrEqual, p.Lower, p.Upper)
				}
			}
		})

		Convey("Then users are spread round-robin", func() {
			So(subs[0].UserID, ShouldEqual, subs[3].UserID)
			So(subs[0].UserID, ShouldNotEqual, subs[1].UserID)
		})
	})
}

func TestCheckOrdering(t *testing.T) {
	Convey("Given leaderboard rows", t, func() {
		So(checkOrdering([]Entry{{Rank: 1, Score: 1}, {Rank: 2, Score: 1}, {Rank: 3, Score: 4}}), ShouldBeNil)
		So(checkOrdering([]Entry{{Rank: 1, Score: 2}, {Rank: 2, Score: 1}}), ShouldNotBeNil)
		So(checkOrdering([]Entry{{Rank: 2, Score: 1}}), ShouldNotBeNil)
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service without rate limits", t, func() {
		srv, svc := newBackend()
		defer srv.Close()
		defer svc.Stop()

		stats, err := Run(context.Background(), &Config{
			BaseURL:        srv.URL,
			ProblemID:      "298",
			Dimension:      20,
			NumUsers:       8,
			NumSubmissions: 40,
			Workers:        4,
			TopN:           100,
			Timeout:        5 * time.Second,
			Seed:           42,
		})

		Convey("Then every submission is accepted and every user verified", func() {
			So(err, ShouldBeNil)
			So(stats.Accepted, ShouldEqual, 40)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Verified, ShouldEqual, 8)
		})
	})

	Convey("Given a dimension the problem does not offer", t, func() {
		srv, svc := newBackend()
		defer srv.Close()
		defer svc.Stop()

		_, err := Run(context.Background(), &Config{
			BaseURL: srv.URL, ProblemID: "298", Dimension: 7,
			NumUsers: 1, NumSubmissions: 1, Workers: 1, TopN: 10, Timeout: time.Second,
		})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "dimension 7")
	})

	Convey("Given a tight rate limit", t, func() {
		srv, svc := newBackend(api.WithSubmitRateLimit(0.001, 1))
		defer srv.Close()
		defer svc.Stop()

		stats, err := Run(context.Background(), &Config{
			BaseURL: srv.URL, ProblemID: "297", Dimension: 20,
			NumUsers: 2, NumSubmissions: 6, Workers: 2, TopN: 10, Timeout: 5 * time.Second, Seed: 1,
		})

		Convey("Then extra submissions are counted as rate limited", func() {
			So(err, ShouldBeNil)
			So(stats.Accepted, ShouldEqual, 2)
			So(stats.RateLimited, ShouldEqual, 4)
		})
	})
}
