// Package types contains the JSON shapes exchanged over HTTP.
package types

import (
	"time"

	"github.com/okian/duel/internal/domain/model"
)

// Entry is one rated item, optionally with its position in the group.
type Entry struct {
	Rank        int       `json:"rank,omitempty"`
	ItemID      string    `json:"item_id"`
	Rating      float64   `json:"rating"`
	Comparisons int       `json:"comparisons"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Group is a ranking group.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Library   bool      `json:"library"`
	CreatedAt time.Time `json:"created_at"`
}

// Pair is the next pair to present.
type Pair struct {
	ItemA       string `json:"item_a,omitempty"`
	ItemB       string `json:"item_b,omitempty"`
	Repeat      bool   `json:"repeat"`
	NoMorePairs bool   `json:"no_more_pairs"`
}

// Comparison is one ledger row.
type Comparison struct {
	ID        int64     `json:"id"`
	ItemA     string    `json:"item_a"`
	ItemB     string    `json:"item_b"`
	Winner    string    `json:"winner"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorded is the response to a submitted comparison.
type Recorded struct {
	Winner     Entry      `json:"winner"`
	Loser      Entry      `json:"loser"`
	Comparison Comparison `json:"comparison"`
	Next       *Pair      `json:"next,omitempty"`
}

// Progress reports how far ranking of a pool has come.
type Progress struct {
	GroupID                string  `json:"group_id"`
	ComparisonsRecorded    int64   `json:"comparisons_recorded"`
	ItemsWithAnyComparison int     `json:"items_with_any_comparison"`
	ItemsFullyCovered      int     `json:"items_fully_covered"`
	PoolSize               int     `json:"pool_size"`
	CoverageTarget         int     `json:"coverage_target"`
	EstimatedCompletion    float64 `json:"estimated_completion"`
}

// CreateGroupRequest is the body of POST /groups.
type CreateGroupRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Library bool   `json:"library,omitempty"`
}

// PoolRequest carries the caller's current pool.
type PoolRequest struct {
	Pool []string `json:"pool"`
}

// ComparisonRequest is the body of POST /groups/{id}/comparisons. When Pool
// is present the response carries the next pair.
type ComparisonRequest struct {
	ItemA  string   `json:"item_a"`
	ItemB  string   `json:"item_b"`
	Winner string   `json:"winner"`
	Pool   []string `json:"pool,omitempty"`
}

// FromEntry converts a rating entry.
func FromEntry(e model.RatingEntry) Entry {
	return Entry{
		ItemID:      e.ItemID,
		Rating:      e.Rating,
		Comparisons: e.Comparisons,
		Wins:        e.Wins,
		Losses:      e.Losses,
		UpdatedAt:   e.UpdatedAt,
	}
}

// FromStanding converts a ranked entry.
func FromStanding(s model.StandingEntry) Entry {
	e := FromEntry(s.RatingEntry)
	e.Rank = s.Rank
	return e
}

// FromStandings converts a ranked list.
func FromStandings(in []model.StandingEntry) []Entry {
	out := make([]Entry, len(in))
	for i, s := range in {
		out[i] = FromStanding(s)
	}
	return out
}

// FromGroup converts a group.
func FromGroup(g model.Group) Group {
	return Group{ID: g.ID, Name: g.Name, Library: g.IsLibrary, CreatedAt: g.CreatedAt}
}

// FromGroups converts a group list.
func FromGroups(in []model.Group) []Group {
	out := make([]Group, len(in))
	for i, g := range in {
		out[i] = FromGroup(g)
	}
	return out
}

// FromSelection converts a selection.
func FromSelection(s model.Selection) Pair {
	return Pair{ItemA: s.ItemA, ItemB: s.ItemB, Repeat: s.Repeat, NoMorePairs: s.NoMorePairs}
}

// FromComparison converts a ledger row.
func FromComparison(c model.ComparisonRecord) Comparison {
	return Comparison{ID: c.ID, ItemA: c.ItemA, ItemB: c.ItemB, Winner: c.Winner, CreatedAt: c.CreatedAt}
}

// FromComparisons converts ledger rows.
func FromComparisons(in []model.ComparisonRecord) []Comparison {
	out := make([]Comparison, len(in))
	for i, c := range in {
		out[i] = FromComparison(c)
	}
	return out
}

// FromRecordResult converts a record outcome.
func FromRecordResult(r model.RecordResult) Recorded {
	out := Recorded{
		Winner:     FromEntry(r.Winner),
		Loser:      FromEntry(r.Loser),
		Comparison: FromComparison(r.Comparison),
	}
	if r.Next != nil {
		next := FromSelection(*r.Next)
		out.Next = &next
	}
	return out
}

// FromProgress converts a progress report.
func FromProgress(p model.Progress) Progress {
	return Progress{
		GroupID:                p.GroupID,
		ComparisonsRecorded:    p.ComparisonsRecorded,
		ItemsWithAnyComparison: p.ItemsWithAnyComparison,
		ItemsFullyCovered:      p.ItemsFullyCovered,
		PoolSize:               p.PoolSize,
		CoverageTarget:         p.CoverageTarget,
		EstimatedCompletion:    p.EstimatedCompletion,
	}
}
