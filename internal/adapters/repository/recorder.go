package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ValidateComparison checks the shape of a submitted outcome.
func ValidateComparison(itemA, itemB, winner string) error {
	switch {
	case itemA == "" || itemB == "":
		return fmt.Errorf("%w: item ids must not be empty", model.ErrInvalidComparison)
	case len(itemA) > model.MaxIDLength || len(itemB) > model.MaxIDLength:
		return fmt.Errorf("%w: item ids must be at most %d bytes", model.ErrInvalidComparison, model.MaxIDLength)
	case itemA == itemB:
		return fmt.Errorf("%w: an item cannot be compared with itself", model.ErrInvalidComparison)
	case winner != itemA && winner != itemB:
		return fmt.Errorf("%w: winner %q was not presented", model.ErrInvalidComparison, winner)
	}
	return nil
}

// Record applies one outcome in a single transaction: both rating rows are
// created at baseline if absent, locked in canonical order, updated, and one
// ledger row is appended. Nothing is written unless all steps succeed.
func (s *Store) Record(ctx context.Context, groupID, itemA, itemB, winner string) (model.UpdatedRatings, error) {
	if err := ValidateComparison(itemA, itemB, winner); err != nil {
		return model.UpdatedRatings{}, err
	}
	loser := itemA
	if winner == itemA {
		loser = itemB
	}
	lo, hi := model.CanonicalPair(itemA, itemB)

	var out model.UpdatedRatings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g groupRow
		err := tx.Select("id").Where("id = ?", groupID).Take(&g).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrUnknownGroup
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		seed := []ratingRow{
			{GroupID: groupID, ItemID: lo, Rating: s.rater.Baseline(), UpdatedAt: now},
			{GroupID: groupID, ItemID: hi, Rating: s.rater.Baseline(), UpdatedAt: now},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var rows []ratingRow
		err = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Where("group_id = ? AND item_id IN ?", groupID, []string{lo, hi}).
			Order("item_id").
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) != 2 {
			return errShortRead
		}

		byID := map[string]model.RatingEntry{rows[0].ItemID: rows[0].toModel(), rows[1].ItemID: rows[1].toModel()}
		w, l := byID[winner], byID[loser]
		s.rater.Apply(&w, &l, now)

		for _, e := range []model.RatingEntry{w, l} {
			err := tx.Model(&ratingRow{}).
				Where("group_id = ? AND item_id = ?", groupID, e.ItemID).
				Updates(map[string]any{
					"rating":      e.Rating,
					"comparisons": e.Comparisons,
					"wins":        e.Wins,
					"losses":      e.Losses,
					"updated_at":  e.UpdatedAt,
				}).Error
			if err != nil {
				return err
			}
		}

		rec := comparisonRow{GroupID: groupID, ItemA: lo, ItemB: hi, Winner: winner, CreatedAt: now}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}

		out = model.UpdatedRatings{Winner: w, Loser: l, Comparison: rec.toModel()}
		return nil
	})
	if err != nil {
		return model.UpdatedRatings{}, storeErr("record comparison", err)
	}

	s.log.Debug(ctx, "comparison recorded",
		logger.String("group_id", groupID),
		logger.Int64("comparison_id", out.Comparison.ID),
		logger.String("winner", winner),
		logger.Float64("winner_rating", out.Winner.Rating),
		logger.Float64("loser_rating", out.Loser.Rating))
	return out, nil
}
