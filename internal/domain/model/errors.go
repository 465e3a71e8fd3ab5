package model

import "errors"

// Domain errors shared by the ranking core and its adapters.
var (
	// ErrInvalidComparison is returned when a submitted outcome is malformed:
	// blank ids, identical items, or a winner that was not presented.
	ErrInvalidComparison = errors.New("invalid comparison")
	// ErrUnknownGroup is returned when the group id is not registered.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrStoreUnavailable marks a failed persistence call. It is retryable
	// and always wraps the underlying driver error.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned when a requested rating entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrProtectedGroup is returned when deleting the library group.
	ErrProtectedGroup = errors.New("group is protected")
	// ErrGroupHasRatings is returned when deleting a group that still has
	// ranking data without force.
	ErrGroupHasRatings = errors.New("group has ranking data")
	// ErrGroupExists is returned when creating a group whose id is taken.
	ErrGroupExists = errors.New("group already exists")
	// ErrInvalidGroup is returned when a group id or name is blank or too long.
	ErrInvalidGroup = errors.New("invalid group")
)
