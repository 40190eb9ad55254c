package bac

import "errors"

// Sentinel error kinds for the engine. Callers match them with errors.Is.
var (
	ErrInvalidProfile    = errors.New("invalid profile")
	ErrInvalidDrinkEvent = errors.New("invalid drink event")
	ErrInvalidParams     = errors.New("invalid engine params")
)
