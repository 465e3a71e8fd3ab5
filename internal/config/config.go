// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver selects the store: sqlite or mysql.
	DBDriver string `koanf:"db_driver"`

	// DBDSN is the driver-specific data source name. For sqlite it is a file
	// path; pragmas are added when missing.
	DBDSN string `koanf:"db_dsn"`

	// DBMaxOpenConns caps the connection pool. Zero keeps the driver default.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`

	// DBSlowQueryMS logs queries slower than this many milliseconds. Zero
	// disables slow-query logging.
	DBSlowQueryMS int `koanf:"db_slow_query_ms"`

	// KFactor scales rating changes per comparison.
	KFactor float64 `koanf:"k_factor"`

	// BaselineRating is the rating of an item on first appearance.
	BaselineRating float64 `koanf:"baseline_rating"`

	// SampleSize bounds the partner candidates considered per anchor.
	SampleSize int `koanf:"sample_size"`

	// RetryBudget bounds the anchors one selection may try.
	RetryBudget int `koanf:"retry_budget"`

	// CoverageWindow widens the under-covered tier above the minimum count.
	CoverageWindow int `koanf:"coverage_window"`

	// FallbackPolicy is what selection does without a fresh pair:
	// repeat, exhaust or widen.
	FallbackPolicy string `koanf:"fallback_policy"`

	// CoverageTarget is the per-item comparison count progress aims for.
	CoverageTarget int `koanf:"coverage_target"`

	// NotifyQueueSize bounds the change notification queue.
	NotifyQueueSize int `koanf:"notify_queue_size"`

	// NotifyWorkers sets the number of notification workers.
	NotifyWorkers int `koanf:"notify_workers"`

	// DedupeSize sets the size of the idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxListLimit caps ?limit on list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	// LibraryGroupID and LibraryGroupName identify the protected group that
	// holds the whole library. It is created at startup.
	LibraryGroupID   string `koanf:"library_group_id"`
	LibraryGroupName string `koanf:"library_group_name"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		DBDriver:         "sqlite",
		DBDSN:            "duel.db",
		DBSlowQueryMS:    200,
		KFactor:          32,
		BaselineRating:   1500,
		SampleSize:       32,
		RetryBudget:      8,
		CoverageWindow:   1,
		FallbackPolicy:   "repeat",
		CoverageTarget:   5,
		NotifyQueueSize:  10_000,
		NotifyWorkers:    runtime.NumCPU(),
		DedupeSize:       100_000,
		MaxListLimit:     500,
		LibraryGroupID:   "all",
		LibraryGroupName: "All",
	}
}
