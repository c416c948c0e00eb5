package dedupe

import "errors"

var (
	// ErrOrphanStat rejects player statistics whose match is not stored.
	ErrOrphanStat = errors.New("player stat references unknown match")
	// ErrPersistenceWrite wraps storage failures.
	ErrPersistenceWrite = errors.New("persistence write failed")
	// ErrNilStore is returned by New without a Store.
	ErrNilStore = errors.New("dedupe store is nil")
)
