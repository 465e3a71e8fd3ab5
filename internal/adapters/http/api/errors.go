package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/duel/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInFlight   = errors.New("request with this idempotency key is still in flight")
)

// retryAfterSeconds is advertised when the store is unavailable.
const retryAfterSeconds = "1"

// Wrap prefixes err with the operation that failed.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind marks err with kind and the operation that failed.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns kind attributed to op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// classify maps an error to its HTTP status and response code.
func classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrInvalidComparison):
		return http.StatusBadRequest, "invalid_comparison"
	case errors.Is(err, model.ErrInvalidGroup):
		return http.StatusBadRequest, "invalid_group"
	case errors.Is(err, model.ErrUnknownGroup):
		return http.StatusNotFound, "unknown_group"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrProtectedGroup):
		return http.StatusConflict, "protected_group"
	case errors.Is(err, model.ErrGroupHasRatings):
		return http.StatusConflict, "group_has_ratings"
	case errors.Is(err, model.ErrGroupExists):
		return http.StatusConflict, "group_exists"
	case errors.Is(err, ErrInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
