package db

import "errors"

var (
	// ErrConflict reports transient contention (serialization failure, busy database,
	// lost conditional update). The whole transaction may be retried.
	ErrConflict = errors.New("transaction conflict")

	// ErrNotFound reports a missing row
	ErrNotFound = errors.New("not found")
)
