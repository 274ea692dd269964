package sync

import "errors"

// ErrConstraint classifies remote uniqueness or foreign-key violations
// (duplicate key, no matching conflict target). These signal a structural
// conflict that blind retry cannot fix: the phase aborts immediately and the
// error is surfaced for out-of-band reconciliation.
var ErrConstraint = errors.New("remote constraint violation")

// ErrNotFound marks a record that does not exist in the queried store.
var ErrNotFound = errors.New("record not found")

// retryable reports whether a phase error is worth another attempt.
func retryable(err error) bool {
	return !errors.Is(err, ErrConstraint)
}
