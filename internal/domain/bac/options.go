package bac

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithParams replaces the default tuning. Params are not checked here: an
// engine built with invalid params fails every evaluation with
// ErrInvalidParams, and Engine.Validate reports it up front.
func WithParams(p Params) Option {
	return func(e *Engine) {
		e.params = p
	}
}

// WithCadence sets the default sampling interval for Series.
func WithCadence(step time.Duration) Option {
	return func(e *Engine) {
		if step > 0 {
			e.cadence = step
		}
	}
}
