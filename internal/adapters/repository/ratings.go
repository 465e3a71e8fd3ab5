package repository

import (
	"context"
	"errors"

	"github.com/okian/duel/internal/domain/model"
	"gorm.io/gorm"
)

// Entries returns the rating entries that exist for items in the group.
// Items never compared in the group are absent from the result.
func (s *Store) Entries(ctx context.Context, groupID string, items []string) (map[string]model.RatingEntry, error) {
	out := make(map[string]model.RatingEntry, len(items))
	for _, chunk := range chunks(items) {
		var rows []ratingRow
		err := s.db.WithContext(ctx).
			Where("group_id = ? AND item_id IN ?", groupID, chunk).
			Find(&rows).Error
		if err != nil {
			return nil, storeErr("load entries", err)
		}
		for _, r := range rows {
			out[r.ItemID] = r.toModel()
		}
	}
	return out, nil
}

type coverageCounts struct {
	WithAny int
	Covered int
}

// CountCoverage returns how many of items have a rating entry in the group
// and how many of those have at least target comparisons.
func (s *Store) CountCoverage(ctx context.Context, groupID string, items []string, target int) (int, int, error) {
	var withAny, covered int
	for _, chunk := range chunks(items) {
		var c coverageCounts
		err := s.db.WithContext(ctx).Model(&ratingRow{}).
			Select("COUNT(*) AS with_any, COALESCE(SUM(CASE WHEN comparisons >= ? THEN 1 ELSE 0 END), 0) AS covered", target).
			Where("group_id = ? AND item_id IN ?", groupID, chunk).
			Scan(&c).Error
		if err != nil {
			return 0, 0, storeErr("count coverage", err)
		}
		withAny += c.WithAny
		covered += c.Covered
	}
	return withAny, covered, nil
}

// Standings returns entries ordered by rating, highest first. Equal ratings
// are ordered by item id so ranks are stable.
func (s *Store) Standings(ctx context.Context, groupID string, limit, offset int) ([]model.StandingEntry, error) {
	var rows []ratingRow
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("rating DESC").Order("item_id ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("standings", err)
	}
	out := make([]model.StandingEntry, len(rows))
	for i, r := range rows {
		out[i] = model.StandingEntry{Rank: offset + i + 1, RatingEntry: r.toModel()}
	}
	return out, nil
}

// Rank returns one item's entry and its position in the standings.
func (s *Store) Rank(ctx context.Context, groupID, itemID string) (model.StandingEntry, error) {
	var row ratingRow
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND item_id = ?", groupID, itemID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StandingEntry{}, model.ErrNotFound
	}
	if err != nil {
		return model.StandingEntry{}, storeErr("rank", err)
	}

	var ahead int64
	err = s.db.WithContext(ctx).Model(&ratingRow{}).
		Where("group_id = ? AND (rating > ? OR (rating = ? AND item_id < ?))", groupID, row.Rating, row.Rating, row.ItemID).
		Count(&ahead).Error
	if err != nil {
		return model.StandingEntry{}, storeErr("rank", err)
	}
	return model.StandingEntry{Rank: int(ahead) + 1, RatingEntry: row.toModel()}, nil
}

// CountEntries returns the number of rated items in the group.
func (s *Store) CountEntries(ctx context.Context, groupID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ratingRow{}).Where("group_id = ?", groupID).Count(&n).Error
	if err != nil {
		return 0, storeErr("count entries", err)
	}
	return n, nil
}
