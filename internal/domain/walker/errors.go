package walker

import "errors"

var (
	// ErrCursorStorage wraps cursor persistence failures.
	ErrCursorStorage = errors.New("cursor storage failed")
	// ErrNoUnit is returned by Advance and SkipSeason without a unit in flight.
	ErrNoUnit = errors.New("no unit in flight")
	// ErrInvalidRange rejects an empty or inverted season range.
	ErrInvalidRange = errors.New("invalid season range")
	// ErrNilStore is returned by New without a CursorStore.
	ErrNilStore = errors.New("cursor store is nil")
)
