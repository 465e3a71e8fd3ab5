package pairing

import (
	"math/rand"
	"time"
)

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithSampleSize bounds how many partner candidates are considered per anchor.
func WithSampleSize(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.sampleSize = n
		}
	}
}

// WithRetryBudget bounds how many anchors are tried before falling back.
func WithRetryBudget(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.retryBudget = n
		}
	}
}

// WithCoverageWindow sets how far above the least-compared tier partners
// may sit.
func WithCoverageWindow(n int) Option {
	return func(s *Selector) {
		if n >= 0 {
			s.coverageWindow = n
		}
	}
}

// WithFallback sets the policy used when every tried anchor is exhausted.
func WithFallback(p Policy) Option {
	return func(s *Selector) {
		if p.Valid() {
			s.fallback = p
		}
	}
}

// WithBaseline sets the rating assumed for items that were never compared.
func WithBaseline(baseline float64) Option {
	return func(s *Selector) {
		s.baseline = baseline
	}
}

// WithSeed makes selection reproducible.
func WithSeed(seed int64) Option {
	return func(s *Selector) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // selection randomness, not security
	}
}

func defaultRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // selection randomness, not security
}
