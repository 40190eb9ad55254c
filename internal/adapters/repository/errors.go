package repository

import "errors"

// Sentinel kinds for drink log errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)
