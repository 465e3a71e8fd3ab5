// Package progress derives ranking progress for a pool from persisted
// counts only. Nothing is cached between calls, so any client sees the same
// answer, including right after a restart.
package progress

import (
	"context"

	"github.com/okian/duel/internal/domain/model"
)

// DefaultCoverageTarget is the per-item comparison count that marks an item
// as fully covered.
const DefaultCoverageTarget = 5

// Option applies a configuration option to the Oracle.
type Option func(*Oracle)

// WithCoverageTarget sets the comparisons an item needs to count as covered.
func WithCoverageTarget(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.target = n
		}
	}
}

// Counter is the read side of the store used for progress.
type Counter interface {
	// CountComparisons returns the number of ledger rows in the group.
	CountComparisons(ctx context.Context, groupID string) (int64, error)
	// CountCoverage returns how many of items have a rating entry and how
	// many of those reached target comparisons.
	CountCoverage(ctx context.Context, groupID string, items []string, target int) (withAny, covered int, err error)
}

// Oracle computes progress.
type Oracle struct {
	counter Counter
	target  int
}

// NewOracle creates an oracle over counter with configuration options.
func NewOracle(counter Counter, opts ...Option) *Oracle {
	o := &Oracle{counter: counter, target: DefaultCoverageTarget}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CoverageTarget returns the configured target.
func (o *Oracle) CoverageTarget() int { return o.target }

// Progress returns progress of the pool within the group. The comparison
// count covers the whole group while item counts cover only the pool.
func (o *Oracle) Progress(ctx context.Context, groupID string, pool []string) (model.Progress, error) {
	items := model.NormalizePool(pool)
	p := model.Progress{
		GroupID:        groupID,
		PoolSize:       len(items),
		CoverageTarget: o.target,
	}

	n, err := o.counter.CountComparisons(ctx, groupID)
	if err != nil {
		return model.Progress{}, err
	}
	p.ComparisonsRecorded = n

	if len(items) == 0 {
		return p, nil
	}
	withAny, covered, err := o.counter.CountCoverage(ctx, groupID, items, o.target)
	if err != nil {
		return model.Progress{}, err
	}
	p.ItemsWithAnyComparison = withAny
	p.ItemsFullyCovered = covered
	p.EstimatedCompletion = float64(covered) / float64(len(items))
	return p, nil
}
