package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrClosed       = errors.New("store closed")
)
