package domain

import "errors"

// Failure taxonomy shared across the store and platform adapters. Callers
// classify with errors.Is; every sweep catches these at the scope of one
// entity, channel, or guild and never lets them unwind further.
var (
	// ErrStoreUnavailable is returned after connection acquisition has been
	// retried and given up. Fatal to the single operation, not the process.
	ErrStoreUnavailable = errors.New("datastore unavailable")

	// ErrConstraintViolation marks a primary/foreign key or shape mismatch
	// on an insert-or-update write. These indicate a caller bug and are not
	// retried.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrRemoteAccessDenied means the platform refused a history read or a
	// channel move. The unit of work is skipped.
	ErrRemoteAccessDenied = errors.New("remote access denied")

	// ErrRemoteTransport covers rate-limit and network failures from the
	// platform.
	ErrRemoteTransport = errors.New("remote transport failure")

	// ErrEndOfHistory is the HistoryIterator drain sentinel.
	ErrEndOfHistory = errors.New("end of history")
)
