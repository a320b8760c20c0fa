package session

import (
	"errors"
	"strconv"
)

// Sentinel errors for session store operations, matching the error
// taxonomy in spec §7.
var (
	// ErrLockTimeout is returned when the lock acquisition budget is
	// exhausted (spec §4.1 lock protocol).
	ErrLockTimeout = errors.New("session: lock acquisition timed out")

	// ErrNotFound is returned when an entry id does not exist in the
	// store's index.
	ErrNotFound = errors.New("session: entry not found")

	// ErrEmptyStore is returned by operations that require at least one
	// entry when the store has none.
	ErrEmptyStore = errors.New("session: store is empty")
)

// ValidationError is fatal to load/import (spec §7 ValidationError). It
// never embeds raw file bytes, only a stable reason and location.
type ValidationError struct {
	Reason string
	Line   int
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return "session: validation failed at line " + strconv.Itoa(e.Line) + ": " + e.Reason
	}
	return "session: validation failed: " + e.Reason
}
