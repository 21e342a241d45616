package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/toprank/internal/config"
	"github.com/okian/toprank/pkg/logger"
	"github.com/okian/toprank/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When opening the default store", func() {
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store, convey.ShouldNotBeNil)
			convey.So(store.Close(), convey.ShouldBeNil)
		})

		convey.Convey("When opening a sqlite store", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.StoreDSN = filepath.Join(t.TempDir(), "toprank.db")
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store.Close(), convey.ShouldBeNil)
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.StoreDriver = "mongo"
			_, err := openStore(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When wiring the full mux", func() {
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			svc, err := newService(cfg, store, logger.Discard())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			mux := newMux(ctx, cfg, svc, logger.Discard())

			convey.Convey("Then the default catalog and docs are served", func() {
				for _, path := range []string{"/problems/298", "/openapi.yaml", "/api-docs", "/healthz", "/metrics"} {
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then submissions flow through the configured limiter", func() {
				body := `{"userId":"u","dimension":20,"solution":"` + strings.TrimSuffix(strings.Repeat("0,", 20), ",") + `"}`
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/problems/298/submit", strings.NewReader(body)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
			})
		})

		convey.Convey("When the configured catalog is used", func() {
			cfg.Problems = []config.ProblemConfig{{ID: "42", Kind: "levy", Dimensions: []int{2}}}
			svc, err := newService(cfg, nil, logger.Discard())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			problems, err := svc.Problems(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(problems), convey.ShouldEqual, 1)
			convey.So(problems[0].ID, convey.ShouldEqual, "42")
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.ShutdownTimeout = time.Second

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				convey.So(run(ctx, cfg, logger.Discard()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the store cannot be opened", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.StoreDSN = filepath.Join(t.TempDir(), "missing", "dir", "toprank.db")
			err := run(context.Background(), cfg, logger.Discard())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("Then the system metrics updater stops with its context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(metrics.GetRegistry(), convey.ShouldNotBeNil)
		})
	})
}
