// Package model contains domain models passed between layers.
package model

import "time"

// DrinkEvent is one logged drink. WithFood and Rapid are optional modifiers;
// nil means the drinker did not say.
type DrinkEvent struct {
	ID          string    // unique id for idempotency
	VolumeML    float64   // consumed volume in millilitres
	StrengthPct float64   // alcohol by volume, 0-100
	ConsumedAt  time.Time // consumption timestamp
	WithFood    *bool     // consumed with food (slower absorption)
	Rapid       *bool     // consumed quickly (short fixed absorption)
}

// Bool returns a pointer to v, for filling optional modifiers.
func Bool(v bool) *bool { return &v }

// HasFood reports whether the drink was explicitly consumed with food.
func (d DrinkEvent) HasFood() bool { return d.WithFood != nil && *d.WithFood }

// IsRapid reports whether the drink was explicitly consumed rapidly.
func (d DrinkEvent) IsRapid() bool { return d.Rapid != nil && *d.Rapid }

// Clone returns a copy that shares no modifier pointers with d.
func (d DrinkEvent) Clone() DrinkEvent {
	if d.WithFood != nil {
		d.WithFood = Bool(*d.WithFood)
	}
	if d.Rapid != nil {
		d.Rapid = Bool(*d.Rapid)
	}
	return d
}
