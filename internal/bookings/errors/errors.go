package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	// ErrStatusMismatch is returned by conditional writes when the stored
	// status is not one of the expected ones.
	ErrStatusMismatch = errors.New("booking status changed concurrently")

	ErrDuplicateID = errors.New("booking with this ID already exists")
)
