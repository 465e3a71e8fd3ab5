// Package model contains domain models passed between layers.
package model

import "time"

// DefaultBaselineRating is the rating every item starts from in a group.
const DefaultBaselineRating = 1500.0

// MaxIDLength is the longest group or item id the store can key on.
const MaxIDLength = 191

// Group is a named collection of items ranked against each other.
type Group struct {
	ID        string
	Name      string
	IsLibrary bool // the whole-library group; never deletable
	CreatedAt time.Time
}

// RatingEntry is the rating state of one item inside one group.
// Comparisons always equals Wins + Losses.
type RatingEntry struct {
	GroupID     string
	ItemID      string
	Rating      float64
	Comparisons int
	Wins        int
	Losses      int
	UpdatedAt   time.Time
}

// NewRatingEntry returns the state of an item that was never compared.
func NewRatingEntry(groupID, itemID string, baseline float64) RatingEntry {
	return RatingEntry{GroupID: groupID, ItemID: itemID, Rating: baseline}
}

// ComparisonRecord is one immutable ledger row. ItemA < ItemB always holds.
type ComparisonRecord struct {
	ID        int64
	GroupID   string
	ItemA     string
	ItemB     string
	Winner    string
	CreatedAt time.Time
}

// CanonicalPair orders two item ids so the lower id comes first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// UpdatedRatings is the result of recording one comparison.
type UpdatedRatings struct {
	Winner     RatingEntry
	Loser      RatingEntry
	Comparison ComparisonRecord
}

// RecordResult is a recorded comparison plus, when requested, the pair to
// present next.
type RecordResult struct {
	UpdatedRatings
	Next *Selection
}

// Selection is the pair to present next. When NoMorePairs is set the pair
// fields are empty. Repeat marks a pair that was compared before.
type Selection struct {
	ItemA       string
	ItemB       string
	Repeat      bool
	NoMorePairs bool
}

// Progress summarizes how far ranking of a pool has come.
// EstimatedCompletion is an approximate signal: the share of pool items that
// reached CoverageTarget comparisons. It does not imply a settled order.
type Progress struct {
	GroupID                string
	ComparisonsRecorded    int64
	ItemsWithAnyComparison int
	ItemsFullyCovered      int
	PoolSize               int
	CoverageTarget         int
	EstimatedCompletion    float64
}

// Change announces that items in a group were re-rated.
type Change struct {
	ID      string
	GroupID string
	Items   []string
	At      time.Time
}

// StandingEntry is a rating entry with its 1-based position in the group.
type StandingEntry struct {
	Rank int
	RatingEntry
}

// NormalizePool drops blank and duplicate ids, keeping first occurrences in
// order.
func NormalizePool(pool []string) []string {
	out := make([]string, 0, len(pool))
	seen := make(map[string]struct{}, len(pool))
	for _, id := range pool {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
