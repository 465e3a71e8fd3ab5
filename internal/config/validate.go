package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate reports every invalid setting. Each error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...)))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		bad("log_level", "unknown level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		bad("log_format", "unknown format %q", c.LogFormat)
	}
	if strings.TrimSpace(c.Addr) == "" {
		bad("addr", "must not be empty")
	}
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		bad("db_driver", "unknown driver %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		bad("db_dsn", "must not be empty")
	}
	if c.DBMaxOpenConns < 0 {
		bad("db_max_open_conns", "must not be negative")
	}
	if c.DBSlowQueryMS < 0 {
		bad("db_slow_query_ms", "must not be negative")
	}
	if c.KFactor <= 0 || math.IsInf(c.KFactor, 0) || math.IsNaN(c.KFactor) {
		bad("k_factor", "must be a positive number")
	}
	if math.IsInf(c.BaselineRating, 0) || math.IsNaN(c.BaselineRating) {
		bad("baseline_rating", "must be finite")
	}
	if c.SampleSize < 1 {
		bad("sample_size", "must be at least 1")
	}
	if c.RetryBudget < 1 {
		bad("retry_budget", "must be at least 1")
	}
	if c.CoverageWindow < 0 {
		bad("coverage_window", "must not be negative")
	}
	switch strings.ToLower(c.FallbackPolicy) {
	case "repeat", "exhaust", "widen":
	default:
		bad("fallback_policy", "unknown policy %q", c.FallbackPolicy)
	}
	if c.CoverageTarget < 1 {
		bad("coverage_target", "must be at least 1")
	}
	if c.NotifyQueueSize < 1 {
		bad("notify_queue_size", "must be at least 1")
	}
	if c.NotifyWorkers < 1 {
		bad("notify_workers", "must be at least 1")
	}
	if c.DedupeSize < 0 {
		bad("dedupe_size", "must not be negative")
	}
	if c.MaxListLimit < 1 {
		bad("max_list_limit", "must be at least 1")
	}
	if strings.TrimSpace(c.LibraryGroupID) == "" {
		bad("library_group_id", "must not be empty")
	}
	if strings.TrimSpace(c.LibraryGroupName) == "" {
		bad("library_group_name", "must not be empty")
	}
	return errors.Join(errs...)
}
