package store

import "errors"

var (
	// ErrNotFound is returned when a record doesn't exist or is hidden by the
	// requested visibility.
	ErrNotFound = errors.New("canopy: record not found")

	// ErrParentNotFound is returned when a record's owner doesn't exist or is tombstoned.
	ErrParentNotFound = errors.New("canopy: owner record not found")

	// ErrAlreadyExists is returned when inserting a record with an existing ID.
	ErrAlreadyExists = errors.New("canopy: record already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("canopy: record was modified concurrently")

	// ErrDuplicateValue is returned when a unique constraint is violated at commit.
	ErrDuplicateValue = errors.New("canopy: duplicate value for unique field")

	// ErrDirectDeletionForbidden is returned by every physical delete of a
	// tombstonable record. Use the cascade delete path instead.
	ErrDirectDeletionForbidden = errors.New("canopy: direct deletion is forbidden, use soft delete")

	// ErrTransactionTooLarge is returned when a commit exceeds the backend's
	// per-transaction item limit. Nothing is written.
	ErrTransactionTooLarge = errors.New("canopy: transaction exceeds item limit")

	// ErrTxDone is returned when using a committed or rolled back transaction.
	ErrTxDone = errors.New("canopy: transaction already finished")

	// ErrUnscopedQuery is returned when a filter names no tenant or owner and
	// the backend cannot serve it without a full scan.
	ErrUnscopedQuery = errors.New("canopy: query requires an organization or parent scope")
)
