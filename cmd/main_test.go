package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/readfeed/internal/config"
	"github.com/okian/readfeed/pkg/logger"
)

func TestNewService(t *testing.T) {
	convey.Convey("Given configuration loaded from the environment", t, func() {
		_ = os.Setenv("READFEED_ADDR", ":8080")
		_ = os.Setenv("READFEED_WORKER_COUNT", "2")
		_ = os.Setenv("READFEED_CLASSIFY_POLICY", "reading_status")
		defer func() {
			_ = os.Unsetenv("READFEED_ADDR")
			_ = os.Unsetenv("READFEED_WORKER_COUNT")
			_ = os.Unsetenv("READFEED_CLASSIFY_POLICY")
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the service is built from it", func() {
			svc, err := newService(cfg, logger.Nop())

			convey.Convey("Then the options are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				stats := svc.GetStats()
				convey.So(stats["workerCount"], convey.ShouldEqual, 2)
				convey.So(stats["policy"], convey.ShouldEqual, "reading_status")
				convey.So(stats["relays"], convey.ShouldEqual, len(config.DefaultRelays))
			})
		})

		convey.Convey("When the policy is unknown", func() {
			cfg.ClassifyPolicy = "everything"
			_, err := newService(cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewHTTPServer(t *testing.T) {
	convey.Convey("Given a started service behind the HTTP server", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		svc, err := newService(cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := newHTTPServer(ctx, cfg, svc)

		convey.Convey("Then the write timeout outlasts a whole feed pass", func() {
			convey.So(srv.Addr, convey.ShouldEqual, cfg.Addr)
			convey.So(srv.WriteTimeout, convey.ShouldBeGreaterThan, cfg.FeedTimeout)
		})

		convey.Convey("Then api and docs routes are served", func() {
			for _, path := range []string{"/stats", "/healthz", "/openapi.yaml", "/api-docs"} {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then invalid feed requests are rejected before any relay is contacted", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed?scope=friends", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		svc, err := newService(config.New(ctx), logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then they return when the context ends", func() {
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then single updates do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
