package errors

import "errors"

var (
	ErrNotFound = errors.New("facility not found")

	ErrDuplicateName = errors.New("facility with this name already exists")
)
