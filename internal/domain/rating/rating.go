// Package rating implements the pairwise rating update applied to every
// recorded comparison.
package rating

import (
	"math"
	"time"

	"github.com/okian/duel/internal/domain/model"
)

// Default rating constants.
const (
	DefaultKFactor = 32.0
	// logisticScale is the rating gap at which the stronger side is expected
	// to win ten times as often.
	logisticScale = 400.0
)

// Option applies a configuration option to the Elo rater.
type Option func(*Elo)

// WithKFactor sets the maximum rating movement of one comparison.
func WithKFactor(k float64) Option {
	return func(e *Elo) {
		if k > 0 {
			e.k = k
		}
	}
}

// WithBaseline sets the rating assigned to items on first appearance.
func WithBaseline(baseline float64) Option {
	return func(e *Elo) {
		if !math.IsNaN(baseline) && !math.IsInf(baseline, 0) {
			e.baseline = baseline
		}
	}
}

// Rater applies the outcome of one comparison to two rating entries.
type Rater interface {
	// Baseline is the starting rating of an unseen item.
	Baseline() float64
	// Apply updates winner and loser in place.
	Apply(winner, loser *model.RatingEntry, now time.Time)
}

// Elo is the logistic rating update with a fixed step size.
type Elo struct {
	k        float64
	baseline float64
}

// NewElo creates an Elo rater with configuration options.
func NewElo(opts ...Option) *Elo {
	e := &Elo{
		k:        DefaultKFactor,
		baseline: model.DefaultBaselineRating,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KFactor returns the configured step size.
func (e *Elo) KFactor() float64 { return e.k }

// Baseline returns the configured starting rating.
func (e *Elo) Baseline() float64 { return e.baseline }

// Expected returns the probability that a side rated ra beats a side rated rb.
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/logisticScale))
}

// Delta returns the points the winner gains and the loser gives up.
func (e *Elo) Delta(winnerRating, loserRating float64) float64 {
	return e.k * (1 - Expected(winnerRating, loserRating))
}

// Apply moves both ratings toward the observed outcome and bumps counters.
// The loser loses K*E(loser), which equals K*(1-E(winner)), so the pair's
// combined rating is unchanged.
func (e *Elo) Apply(winner, loser *model.RatingEntry, now time.Time) {
	gain := e.Delta(winner.Rating, loser.Rating)
	winner.Rating += gain
	loser.Rating -= gain

	winner.Comparisons++
	winner.Wins++
	loser.Comparisons++
	loser.Losses++

	winner.UpdatedAt = now
	loser.UpdatedAt = now
}
