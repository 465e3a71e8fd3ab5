package repository

import (
	"time"

	"github.com/okian/duel/internal/domain/rating"
	"github.com/okian/duel/pkg/logger"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithDriver selects the database driver.
func WithDriver(driver string) Option {
	return func(s *Store) {
		if driver != "" {
			s.driver = driver
		}
	}
}

// WithDSN sets the data source name. For SQLite this is a file path, with
// or without query parameters.
func WithDSN(dsn string) Option {
	return func(s *Store) {
		if dsn != "" {
			s.dsn = dsn
		}
	}
}

// WithMaxOpenConns bounds the connection pool. Zero keeps the driver default.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithRater sets the rating update applied by Record.
func WithRater(r rating.Rater) Option {
	return func(s *Store) {
		if r != nil {
			s.rater = r
		}
	}
}

// WithLogger routes store and query logs to l.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSlowThreshold sets the duration after which a query is logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.slowThreshold = d
		}
	}
}
