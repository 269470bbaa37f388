package domain

import "errors"

var (
	// ErrNoIdentifierFound is returned when no group identifier can be extracted from an observation
	ErrNoIdentifierFound = errors.New("no group identifier found")

	// ErrDuplicateVersion is returned when a history entry already exists for the same group and version
	ErrDuplicateVersion = errors.New("duplicate content version")

	// ErrVersionConflict is returned when the latest record changed between read and write
	ErrVersionConflict = errors.New("latest record version conflict")

	// ErrStorageUnavailable is returned when the storage backend cannot be reached or fails
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrGroupNotFound is returned when a group is not found
	ErrGroupNotFound = errors.New("group not found")
)
