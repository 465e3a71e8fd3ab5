package repository

import (
	"time"

	"github.com/okian/duel/internal/domain/model"
)

// Table names.
const (
	tableGroups      = "ranking_groups"
	tableRatings     = "rating_entries"
	tableComparisons = "comparison_records"
)

// groupRow is a registered group. Ids are sized so composite indexes stay
// within the MySQL key length limit under utf8mb4.
type groupRow struct {
	ID        string    `gorm:"primaryKey;size:191"`
	Name      string    `gorm:"size:255;not null"`
	IsLibrary bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (groupRow) TableName() string { return tableGroups }

func (r groupRow) toModel() model.Group {
	return model.Group{ID: r.ID, Name: r.Name, IsLibrary: r.IsLibrary, CreatedAt: r.CreatedAt}
}

// ratingRow holds the rating state of one item in one group.
type ratingRow struct {
	GroupID     string    `gorm:"primaryKey;size:191;index:idx_rating_group_comparisons,priority:1;index:idx_rating_group_rating,priority:1"`
	ItemID      string    `gorm:"primaryKey;size:191"`
	Rating      float64   `gorm:"not null;index:idx_rating_group_rating,priority:2"`
	Comparisons int       `gorm:"not null;default:0;index:idx_rating_group_comparisons,priority:2"`
	Wins        int       `gorm:"not null;default:0"`
	Losses      int       `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (ratingRow) TableName() string { return tableRatings }

func (r ratingRow) toModel() model.RatingEntry {
	return model.RatingEntry{
		GroupID:     r.GroupID,
		ItemID:      r.ItemID,
		Rating:      r.Rating,
		Comparisons: r.Comparisons,
		Wins:        r.Wins,
		Losses:      r.Losses,
		UpdatedAt:   r.UpdatedAt,
	}
}

// comparisonRow is one ledger entry. ItemA < ItemB; the id gives commit order.
type comparisonRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	GroupID   string    `gorm:"size:191;not null;index:idx_cmp_pair,priority:1;index:idx_cmp_group_b,priority:1"`
	ItemA     string    `gorm:"size:191;not null;index:idx_cmp_pair,priority:2"`
	ItemB     string    `gorm:"size:191;not null;index:idx_cmp_pair,priority:3;index:idx_cmp_group_b,priority:2"`
	Winner    string    `gorm:"size:191;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (comparisonRow) TableName() string { return tableComparisons }

func (r comparisonRow) toModel() model.ComparisonRecord {
	return model.ComparisonRecord{
		ID:        r.ID,
		GroupID:   r.GroupID,
		ItemA:     r.ItemA,
		ItemB:     r.ItemB,
		Winner:    r.Winner,
		CreatedAt: r.CreatedAt,
	}
}
