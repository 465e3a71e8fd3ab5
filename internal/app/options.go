package service

import (
	"time"

	"github.com/okian/duel/internal/adapters/mq/worker"
	"github.com/okian/duel/internal/domain/pairing"
	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDatabase selects the store driver and DSN.
func WithDatabase(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.driver = driver
		}
		if dsn != "" {
			s.dsn = dsn
		}
	}
}

// WithMaxOpenConns caps the store connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithSlowQueryThreshold sets the duration after which a store query is
// logged as slow. Zero disables slow-query logging.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.slowQuery = d
		}
	}
}

// WithKFactor sets the rating K-factor.
func WithKFactor(k float64) Option {
	return func(s *Service) {
		if k > 0 {
			s.kFactor = k
		}
	}
}

// WithBaselineRating sets the rating given to items on first appearance.
func WithBaselineRating(r float64) Option {
	return func(s *Service) {
		s.baseline = r
	}
}

// WithSampleSize sets how many partner candidates are considered per anchor.
func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sampleSize = n
		}
	}
}

// WithRetryBudget sets how many anchors a selection may try.
func WithRetryBudget(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retryBudget = n
		}
	}
}

// WithCoverageWindow sets how far above the least-compared count an item may
// be and still count as under-covered.
func WithCoverageWindow(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.coverageWindow = n
		}
	}
}

// WithFallbackPolicy sets what selection does when no fresh pair is found.
func WithFallbackPolicy(p pairing.Policy) Option {
	return func(s *Service) {
		if p.Valid() {
			s.fallback = p
		}
	}
}

// WithCoverageTarget sets the per-item comparison target used by progress.
func WithCoverageTarget(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.coverageTarget = n
		}
	}
}

// WithQueueSize sets the capacity of the change notification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithDedupeSize sets the size of the idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSink sets where change notifications are delivered.
func WithSink(sink worker.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithNotifier replaces the queue-backed notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
			s.customNotifier = true
		}
	}
}

// WithSeed makes pair selection deterministic.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = &seed
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
