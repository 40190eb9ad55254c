package scenario

import "errors"

// Sentinel kinds for scenario handling.
var (
	ErrLoadScenario    = errors.New("load scenario")
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrReplay          = errors.New("replay failed")
	ErrMismatch        = errors.New("service disagrees with local evaluation")
)
