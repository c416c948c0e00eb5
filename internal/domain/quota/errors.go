package quota

import "errors"

var (
	// ErrStorage wraps failures of the quota Store.
	ErrStorage = errors.New("quota storage failed")
	// ErrInvalidAmount rejects non-positive request counts and limits.
	ErrInvalidAmount = errors.New("invalid quota amount")
	// ErrNilStore is returned by New without a Store.
	ErrNilStore = errors.New("quota store is nil")
)
