package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/duel/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"DUEL_CONFIG",
	"DUEL_ADDR",
	"DUEL_DB_DRIVER",
	"DUEL_DB_DSN",
	"DUEL_K_FACTOR",
	"DUEL_FALLBACK_POLICY",
	"DUEL_NOTIFY_WORKERS",
	"DUEL_SAMPLE_SIZE",
	"DUEL_LOG_FORMAT",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duel.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DBDSN, convey.ShouldEqual, "duel.db")
				convey.So(cfg.FallbackPolicy, convey.ShouldEqual, "repeat")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("DUEL_ADDR", ":8080")
			_ = os.Setenv("DUEL_DB_DSN", "/var/lib/duel/duel.db")
			_ = os.Setenv("DUEL_K_FACTOR", "24")
			_ = os.Setenv("DUEL_FALLBACK_POLICY", "widen")
			_ = os.Setenv("DUEL_NOTIFY_WORKERS", "3")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DBDSN, convey.ShouldEqual, "/var/lib/duel/duel.db")
				convey.So(cfg.KFactor, convey.ShouldEqual, 24)
				convey.So(cfg.FallbackPolicy, convey.ShouldEqual, "widen")
				convey.So(cfg.NotifyWorkers, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := createTempConfigFile(t, `
addr: ":9090"
db_driver: mysql
db_dsn: "duel:secret@tcp(db:3306)/duel?parseTime=true"
sample_size: 16
coverage_target: 7
`)
			_ = os.Setenv("DUEL_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DBDriver, convey.ShouldEqual, "mysql")
				convey.So(cfg.SampleSize, convey.ShouldEqual, 16)
				convey.So(cfg.CoverageTarget, convey.ShouldEqual, 7)
				convey.So(cfg.RetryBudget, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := createTempConfigFile(t, `
addr: ":9090"
sample_size: 16
log_format: json
`)
			_ = os.Setenv("DUEL_CONFIG", path)
			_ = os.Setenv("DUEL_ADDR", ":8080")
			_ = os.Setenv("DUEL_SAMPLE_SIZE", "64")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.SampleSize, convey.ShouldEqual, 64)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("DUEL_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("DUEL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a loaded value is invalid", func() {
			_ = os.Setenv("DUEL_FALLBACK_POLICY", "sometimes")

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
