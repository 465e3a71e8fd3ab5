package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"gorm.io/gorm"
)

// CreateGroup registers a new group.
func (s *Store) CreateGroup(ctx context.Context, g model.Group) (model.Group, error) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	row := groupRow{ID: g.ID, Name: g.Name, IsLibrary: g.IsLibrary, CreatedAt: g.CreatedAt}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.Group{}, model.ErrGroupExists
	}
	if err != nil {
		return model.Group{}, storeErr("create group", err)
	}
	return row.toModel(), nil
}

// GetGroup returns a registered group.
func (s *Store) GetGroup(ctx context.Context, id string) (model.Group, error) {
	var row groupRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Group{}, model.ErrUnknownGroup
	}
	if err != nil {
		return model.Group{}, storeErr("get group", err)
	}
	return row.toModel(), nil
}

// ListGroups returns every registered group ordered by id.
func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	var rows []groupRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, storeErr("list groups", err)
	}
	out := make([]model.Group, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// EnsureLibraryGroup creates the library group if missing and marks an
// existing group with that id as the library.
func (s *Store) EnsureLibraryGroup(ctx context.Context, id, name string) (model.Group, error) {
	var row groupRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(groupRow{ID: id}).
			Attrs(groupRow{Name: name, CreatedAt: time.Now().UTC()}).
			FirstOrCreate(&row).Error
		if err != nil {
			return err
		}
		if !row.IsLibrary {
			row.IsLibrary = true
			return tx.Model(&row).Update("is_library", true).Error
		}
		return nil
	})
	if err != nil {
		return model.Group{}, storeErr("ensure library group", err)
	}
	return row.toModel(), nil
}

// DeleteGroup removes a group. The library group is never removed. A group
// with rating entries is only removed when force is set, in which case its
// entries and ledger rows go in the same transaction.
func (s *Store) DeleteGroup(ctx context.Context, id string, force bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row groupRow
		err := tx.Where("id = ?", id).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrUnknownGroup
		}
		if err != nil {
			return err
		}
		if row.IsLibrary {
			return model.ErrProtectedGroup
		}

		var n int64
		if err := tx.Model(&ratingRow{}).Where("group_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 && !force {
			return model.ErrGroupHasRatings
		}

		if err := tx.Where("group_id = ?", id).Delete(&comparisonRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&ratingRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&row).Error
	})
	return storeErr("delete group", err)
}
