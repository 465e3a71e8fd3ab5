package config_test

import (
	"context"
	"errors"
	"math"
	"runtime"
	"testing"

	"github.com/okian/duel/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBDriver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.DBSlowQueryMS, convey.ShouldEqual, 200)
			convey.So(cfg.KFactor, convey.ShouldEqual, 32)
			convey.So(cfg.BaselineRating, convey.ShouldEqual, 1500)
			convey.So(cfg.SampleSize, convey.ShouldEqual, 32)
			convey.So(cfg.RetryBudget, convey.ShouldEqual, 8)
			convey.So(cfg.CoverageWindow, convey.ShouldEqual, 1)
			convey.So(cfg.FallbackPolicy, convey.ShouldEqual, "repeat")
			convey.So(cfg.CoverageTarget, convey.ShouldEqual, 5)
			convey.So(cfg.NotifyQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.NotifyWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.LibraryGroupID, convey.ShouldEqual, "all")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		cases := []struct {
			name   string
			mutate func(*config.Config)
			key    string
		}{
			{"blank addr", func(c *config.Config) { c.Addr = " " }, "addr"},
			{"unknown driver", func(c *config.Config) { c.DBDriver = "postgres" }, "db_driver"},
			{"blank dsn", func(c *config.Config) { c.DBDSN = "" }, "db_dsn"},
			{"negative slow query threshold", func(c *config.Config) { c.DBSlowQueryMS = -1 }, "db_slow_query_ms"},
			{"zero k-factor", func(c *config.Config) { c.KFactor = 0 }, "k_factor"},
			{"infinite baseline", func(c *config.Config) { c.BaselineRating = math.Inf(1) }, "baseline_rating"},
			{"zero sample size", func(c *config.Config) { c.SampleSize = 0 }, "sample_size"},
			{"zero retry budget", func(c *config.Config) { c.RetryBudget = 0 }, "retry_budget"},
			{"negative window", func(c *config.Config) { c.CoverageWindow = -1 }, "coverage_window"},
			{"unknown policy", func(c *config.Config) { c.FallbackPolicy = "shrug" }, "fallback_policy"},
			{"zero coverage target", func(c *config.Config) { c.CoverageTarget = 0 }, "coverage_target"},
			{"zero workers", func(c *config.Config) { c.NotifyWorkers = 0 }, "notify_workers"},
			{"unknown log level", func(c *config.Config) { c.LogLevel = "loud" }, "log_level"},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
			{"blank library id", func(c *config.Config) { c.LibraryGroupID = "" }, "library_group_id"},
		}

		for _, tc := range cases {
			convey.Convey("When the config has a "+tc.name, func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation names the key", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.key)
				})
			})
		}

		convey.Convey("When several settings are wrong", func() {
			cfg.SampleSize = 0
			cfg.RetryBudget = 0
			err := cfg.Validate()

			convey.Convey("Then all of them are reported", func() {
				convey.So(err.Error(), convey.ShouldContainSubstring, "sample_size")
				convey.So(err.Error(), convey.ShouldContainSubstring, "retry_budget")
			})
		})
	})
}
