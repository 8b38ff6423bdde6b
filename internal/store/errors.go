package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates a create collided with an existing record.
	ErrAlreadyExists = errors.New("record already exists")

	// errWrongState aborts a conditional transition inside a transaction.
	errWrongState = errors.New("record not in expected state")
)
