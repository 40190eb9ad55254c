package bac

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/promille/internal/domain/model"
)

// Category is a drink class inferred from its strength.
type Category int

// Drink categories.
const (
	Beer Category = iota
	Wine
	Spirits
)

func (c Category) String() string {
	switch c {
	case Beer:
		return "beer"
	case Wine:
		return "wine"
	case Spirits:
		return "spirits"
	default:
		return "unknown"
	}
}

// Dose is a normalized drink: how much ethanol and how fast it enters the blood.
type Dose struct {
	EthanolGrams float64
	Absorption   time.Duration
	ConsumedAt   time.Time
	Category     Category
}

// Completed returns the instant absorption finishes.
func (d Dose) Completed() time.Time { return d.ConsumedAt.Add(d.Absorption) }

// Category infers the drink class from alcohol by volume.
func (p Params) Category(strengthPct float64) Category {
	switch {
	case strengthPct < p.BeerMaxStrength:
		return Beer
	case strengthPct <= p.WineMaxStrength:
		return Wine
	default:
		return Spirits
	}
}

func (p Params) baseAbsorption(c Category) time.Duration {
	switch c {
	case Beer:
		return p.BeerAbsorption
	case Wine:
		return p.WineAbsorption
	default:
		return p.SpiritsAbsorption
	}
}

// Normalize converts a drink into ethanol mass and absorption duration.
// Impossible entries fail instead of being clamped.
func (p Params) Normalize(ev model.DrinkEvent) (Dose, error) {
	if ev.VolumeML < 0 || math.IsNaN(ev.VolumeML) || math.IsInf(ev.VolumeML, 0) {
		return Dose{}, fmt.Errorf("%w: drink %q has volume %v", ErrInvalidDrinkEvent, ev.ID, ev.VolumeML)
	}
	if ev.StrengthPct < 0 || ev.StrengthPct > maxStrength || math.IsNaN(ev.StrengthPct) {
		return Dose{}, fmt.Errorf("%w: drink %q has strength %v%%", ErrInvalidDrinkEvent, ev.ID, ev.StrengthPct)
	}

	cat := p.Category(ev.StrengthPct)
	absorption := p.baseAbsorption(cat)
	switch {
	case ev.IsRapid():
		absorption = p.RapidAbsorption
	case ev.HasFood():
		absorption = time.Duration(float64(absorption) * p.FoodMultiplier)
	}

	return Dose{
		EthanolGrams: ev.VolumeML * ev.StrengthPct / 100 * p.EthanolDensity,
		Absorption:   absorption,
		ConsumedAt:   ev.ConsumedAt,
		Category:     cat,
	}, nil
}
