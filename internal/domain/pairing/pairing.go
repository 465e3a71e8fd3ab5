// Package pairing chooses the next two items to present for comparison.
//
// Selection is coverage-first: anchors come from the least-compared items,
// partners are a bounded random sample from a window just above that tier,
// ordered by rating proximity. Pairs already in the ledger are skipped with a
// bounded number of anchor retries, so a call costs one stats read plus at
// most RetryBudget ledger lookups regardless of pool size.
package pairing

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/okian/duel/internal/domain/model"
)

// Default selection parameters.
const (
	DefaultSampleSize     = 32
	DefaultRetryBudget    = 8
	DefaultCoverageWindow = 1
)

// Policy decides what happens when the retry budget runs out.
type Policy string

// Fallback policies.
const (
	// PolicyRepeat returns the closest-rated pair of the first anchor,
	// flagged as a repeat.
	PolicyRepeat Policy = "repeat"
	// PolicyExhaust reports NoMorePairs.
	PolicyExhaust Policy = "exhaust"
	// PolicyWiden runs one more round over the whole pool, then repeats.
	PolicyWiden Policy = "widen"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyRepeat, PolicyExhaust, PolicyWiden:
		return true
	}
	return false
}

// ParsePolicy converts a config value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown fallback policy: %q", s)
	}
	return p, nil
}

// Reader is the read side of the rating store and ledger used by selection.
type Reader interface {
	// Entries returns the rating entries that exist for items in the group.
	// Items never compared are absent from the map.
	Entries(ctx context.Context, groupID string, items []string) (map[string]model.RatingEntry, error)
	// ComparedWith returns the subset of partners already compared with
	// anchor in the group.
	ComparedWith(ctx context.Context, groupID, anchor string, partners []string) (map[string]bool, error)
}

// Trace describes the work done by one selection.
type Trace struct {
	Anchors int // anchors tried
	Lookups int // ledger lookups issued
	Widened bool
}

// Selector picks pairs. It holds no per-group state and is safe for
// concurrent use.
type Selector struct {
	reader         Reader
	sampleSize     int
	retryBudget    int
	coverageWindow int
	fallback       Policy
	baseline       float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector over reader with configuration options.
func NewSelector(reader Reader, opts ...Option) *Selector {
	s := &Selector{
		reader:         reader,
		sampleSize:     DefaultSampleSize,
		retryBudget:    DefaultRetryBudget,
		coverageWindow: DefaultCoverageWindow,
		fallback:       PolicyRepeat,
		baseline:       model.DefaultBaselineRating,
		rng:            defaultRand(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured fallback policy.
func (s *Selector) Policy() Policy { return s.fallback }

type candidate struct {
	id          string
	rating      float64
	comparisons int
}

// Select returns the next pair for the pool.
func (s *Selector) Select(ctx context.Context, groupID string, pool []string) (model.Selection, error) {
	sel, _, err := s.SelectTraced(ctx, groupID, pool)
	return sel, err
}

// SelectTraced is Select that also reports how much work was done.
func (s *Selector) SelectTraced(ctx context.Context, groupID string, pool []string) (model.Selection, Trace, error) {
	var tr Trace
	items := model.NormalizePool(pool)
	if len(items) < 2 {
		return model.Selection{NoMorePairs: true}, tr, nil
	}

	entries, err := s.reader.Entries(ctx, groupID, items)
	if err != nil {
		return model.Selection{}, tr, err
	}

	all := make([]candidate, len(items))
	minCmp := math.MaxInt
	for i, id := range items {
		c := candidate{id: id, rating: s.baseline}
		if e, ok := entries[id]; ok {
			c.rating = e.Rating
			c.comparisons = e.Comparisons
		}
		all[i] = c
		if c.comparisons < minCmp {
			minCmp = c.comparisons
		}
	}

	var tier, upper, rest []candidate
	for _, c := range all {
		switch {
		case c.comparisons == minCmp:
			tier = append(tier, c)
		case c.comparisons <= minCmp+s.coverageWindow:
			upper = append(upper, c)
		default:
			rest = append(rest, c)
		}
	}
	window := make([]candidate, 0, len(tier)+len(upper))
	window = append(window, tier...)
	window = append(window, upper...)

	// Anchors: the lowest tier first, then the rest of the window, then the
	// remainder of the pool, each group shuffled.
	anchors := make([]candidate, 0, len(all))
	anchors = append(anchors, s.shuffled(tier)...)
	anchors = append(anchors, s.shuffled(upper)...)
	anchors = append(anchors, s.shuffled(rest)...)
	if len(anchors) > s.retryBudget {
		anchors = anchors[:s.retryBudget]
	}

	sel, first, err := s.round(ctx, groupID, anchors, window, all, &tr)
	if err != nil || !sel.NoMorePairs {
		return sel, tr, err
	}

	switch s.fallback {
	case PolicyExhaust:
		return model.Selection{NoMorePairs: true}, tr, nil
	case PolicyWiden:
		tr.Widened = true
		wide := s.shuffled(all)
		if len(wide) > s.retryBudget {
			wide = wide[:s.retryBudget]
		}
		sel, wfirst, err := s.round(ctx, groupID, wide, all, all, &tr)
		if err != nil || !sel.NoMorePairs {
			return sel, tr, err
		}
		if first == nil {
			first = wfirst
		}
	}

	if first == nil {
		return model.Selection{NoMorePairs: true}, tr, nil
	}
	return *first, tr, nil
}

// round tries each anchor once. It returns a fresh pair when one exists and
// otherwise NoMorePairs together with the closest pair of the first anchor.
func (s *Selector) round(
	ctx context.Context,
	groupID string,
	anchors, window, all []candidate,
	tr *Trace,
) (model.Selection, *model.Selection, error) {
	var first *model.Selection
	for _, anchor := range anchors {
		if err := ctx.Err(); err != nil {
			return model.Selection{}, nil, fmt.Errorf("select pair: %w", err)
		}
		partners := s.partners(anchor, window)
		if len(partners) == 0 {
			partners = s.partners(anchor, all)
		}
		if len(partners) == 0 {
			continue
		}
		tr.Anchors++

		ids := make([]string, len(partners))
		for i, p := range partners {
			ids[i] = p.id
		}
		seen, err := s.reader.ComparedWith(ctx, groupID, anchor.id, ids)
		tr.Lookups++
		if err != nil {
			return model.Selection{}, nil, err
		}

		if first == nil {
			rep := s.orient(anchor.id, partners[0].id)
			rep.Repeat = true
			first = &rep
		}
		for _, p := range partners {
			if !seen[p.id] {
				return s.orient(anchor.id, p.id), first, nil
			}
		}
	}
	return model.Selection{NoMorePairs: true}, first, nil
}

// partners samples up to sampleSize candidates other than anchor and orders
// them by rating distance with random tie-breaks.
func (s *Selector) partners(anchor candidate, from []candidate) []candidate {
	pool := make([]candidate, 0, len(from))
	for _, c := range from {
		if c.id != anchor.id {
			pool = append(pool, c)
		}
	}

	s.mu.Lock()
	n := min(s.sampleSize, len(pool))
	for i := 0; i < n; i++ {
		j := i + s.rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	pool = pool[:n]
	ties := make(map[string]int64, n)
	for _, c := range pool {
		ties[c.id] = s.rng.Int63()
	}
	s.mu.Unlock()

	sort.Slice(pool, func(i, j int) bool {
		di := math.Abs(pool[i].rating - anchor.rating)
		dj := math.Abs(pool[j].rating - anchor.rating)
		if di != dj {
			return di < dj
		}
		return ties[pool[i].id] < ties[pool[j].id]
	})
	return pool
}

func (s *Selector) shuffled(in []candidate) []candidate {
	out := make([]candidate, len(in))
	copy(out, in)
	s.mu.Lock()
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()
	return out
}

// orient randomizes which side each item is shown on.
func (s *Selector) orient(a, b string) model.Selection {
	s.mu.Lock()
	swap := s.rng.Intn(2) == 1
	s.mu.Unlock()
	if swap {
		a, b = b, a
	}
	return model.Selection{ItemA: a, ItemB: b}
}
