package errors

import "errors"

var (
	ErrNotFound = errors.New("slot hold not found")

	ErrNotOwner = errors.New("slot hold belongs to another user")

	// ErrHoldConflict is returned with the conflicting hold when another
	// user holds an overlapping window.
	ErrHoldConflict = errors.New("window is held by another user")
)
