package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned when a write is attempted with invalid data
	ErrInvalidInput = errors.New("invalid input")
)
