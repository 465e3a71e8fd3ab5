package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/metrics"
	"gorm.io/gorm"
)

// errShortRead is returned when a row written in the same transaction cannot
// be read back.
var errShortRead = errors.New("rating rows missing after insert")

// storeErr classifies a driver error. Domain errors pass through unchanged;
// everything else becomes a retryable ErrStoreUnavailable that still wraps
// the cause.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domainErr := range []error{
		model.ErrInvalidComparison,
		model.ErrUnknownGroup,
		model.ErrNotFound,
		model.ErrProtectedGroup,
		model.ErrGroupHasRatings,
		model.ErrGroupExists,
		model.ErrInvalidGroup,
	} {
		if errors.Is(err, domainErr) {
			return err
		}
	}
	kind := "driver"
	switch {
	case errors.Is(err, context.Canceled):
		kind = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	case errors.Is(err, gorm.ErrRecordNotFound):
		kind = "not_found"
	}
	metrics.RecordErrorByComponent("repository", kind)
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, err)
}
