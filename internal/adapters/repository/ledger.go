package repository

import (
	"context"
	"strings"

	"github.com/okian/duel/internal/domain/model"
)

// ComparedWith returns the partners already compared with anchor in the
// group. Partners above anchor are matched through idx_cmp_pair, those below
// through idx_cmp_group_b, in one query.
func (s *Store) ComparedWith(ctx context.Context, groupID, anchor string, partners []string) (map[string]bool, error) {
	var higher, lower []string
	for _, p := range partners {
		switch {
		case p > anchor:
			higher = append(higher, p)
		case p < anchor:
			lower = append(lower, p)
		}
	}

	var conds []string
	var args []any
	if len(higher) > 0 {
		conds = append(conds, "(item_a = ? AND item_b IN ?)")
		args = append(args, anchor, higher)
	}
	if len(lower) > 0 {
		conds = append(conds, "(item_b = ? AND item_a IN ?)")
		args = append(args, anchor, lower)
	}
	seen := make(map[string]bool)
	if len(conds) == 0 {
		return seen, nil
	}

	var rows []comparisonRow
	err := s.db.WithContext(ctx).
		Select("item_a", "item_b").
		Where("group_id = ?", groupID).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Distinct().
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("compared with", err)
	}
	for _, r := range rows {
		if r.ItemA == anchor {
			seen[r.ItemB] = true
		} else {
			seen[r.ItemA] = true
		}
	}
	return seen, nil
}

// CountComparisons returns the number of ledger rows in the group.
func (s *Store) CountComparisons(ctx context.Context, groupID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&comparisonRow{}).Where("group_id = ?", groupID).Count(&n).Error
	if err != nil {
		return 0, storeErr("count comparisons", err)
	}
	return n, nil
}

// History returns the most recent ledger rows of the group, newest first.
// When beforeID is positive only rows with a smaller id are returned.
func (s *Store) History(ctx context.Context, groupID string, beforeID int64, limit int) ([]model.ComparisonRecord, error) {
	q := s.db.WithContext(ctx).Where("group_id = ?", groupID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var rows []comparisonRow
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, storeErr("history", err)
	}
	out := make([]model.ComparisonRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
