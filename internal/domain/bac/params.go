// Package bac estimates blood alcohol concentration (promille) from a log of
// drink events using a two-phase absorption/elimination curve per drink.
//
// The package is pure: every call recomputes from its arguments, reads no
// clock and keeps no state, so it is safe for concurrent use.
package bac

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/promille/internal/domain/model"
)

// Default physiological tuning.
const (
	defaultEliminationRate       = 0.15  // promille per hour
	defaultEthanolDensity        = 0.789 // g/ml
	defaultAbsorptionElimination = 0.10  // share of the elimination rate applied while absorbing
	defaultBeerMaxStrength       = 8.0
	defaultWineMaxStrength       = 20.0
	defaultFoodMultiplier        = 2.0
	defaultLogisticSteepness     = 8.0
	defaultLegalLimit            = 0.5

	defaultBeerAbsorption    = 20 * time.Minute
	defaultWineAbsorption    = 15 * time.Minute
	defaultSpiritsAbsorption = 15 * time.Minute
	defaultRapidAbsorption   = 5 * time.Minute

	maxStrength = 100.0
)

// Params holds every tunable constant of the model. Pass a modified copy of
// DefaultParams to swap the physiological tuning.
type Params struct {
	// EliminationRatePerHour is the constant elimination slope in promille per hour.
	EliminationRatePerHour float64
	// EthanolDensity converts millilitres of pure ethanol to grams.
	EthanolDensity float64
	// AbsorptionElimination scales the elimination rate applied during absorption.
	AbsorptionElimination float64
	// DistributionConstants maps sex to Widmark's r.
	DistributionConstants map[model.Sex]float64

	// Strength below BeerMaxStrength is beer, up to WineMaxStrength (inclusive) wine,
	// anything stronger spirits.
	BeerMaxStrength float64
	WineMaxStrength float64

	BeerAbsorption    time.Duration
	WineAbsorption    time.Duration
	SpiritsAbsorption time.Duration
	// RapidAbsorption replaces category and food handling for rapidly consumed drinks.
	RapidAbsorption time.Duration
	// FoodMultiplier stretches absorption for drinks consumed with food.
	FoodMultiplier float64
	// LogisticSteepness is divided by the absorption duration to get the curve slope.
	LogisticSteepness float64

	// LegalLimit is the over-the-limit threshold in promille.
	LegalLimit float64
	// Bands classifies a concentration; see Classify.
	Bands []Band
}

// DefaultParams returns the canonical tuning.
func DefaultParams() Params {
	return Params{
		EliminationRatePerHour: defaultEliminationRate,
		EthanolDensity:         defaultEthanolDensity,
		AbsorptionElimination:  defaultAbsorptionElimination,
		DistributionConstants: map[model.Sex]float64{
			model.SexMale:   0.68,
			model.SexFemale: 0.55,
			model.SexOther:  0.615,
		},
		BeerMaxStrength:   defaultBeerMaxStrength,
		WineMaxStrength:   defaultWineMaxStrength,
		BeerAbsorption:    defaultBeerAbsorption,
		WineAbsorption:    defaultWineAbsorption,
		SpiritsAbsorption: defaultSpiritsAbsorption,
		RapidAbsorption:   defaultRapidAbsorption,
		FoodMultiplier:    defaultFoodMultiplier,
		LogisticSteepness: defaultLogisticSteepness,
		LegalLimit:        defaultLegalLimit,
		Bands:             DefaultBands(),
	}
}

// Validate checks that the params describe a usable model.
func (p Params) Validate() error {
	switch {
	case !(p.EliminationRatePerHour > 0):
		return fmt.Errorf("%w: elimination rate must be positive", ErrInvalidParams)
	case !(p.EthanolDensity > 0):
		return fmt.Errorf("%w: ethanol density must be positive", ErrInvalidParams)
	case p.AbsorptionElimination < 0:
		return fmt.Errorf("%w: absorption elimination must not be negative", ErrInvalidParams)
	case !(p.BeerMaxStrength > 0) || p.WineMaxStrength < p.BeerMaxStrength || p.WineMaxStrength > maxStrength:
		return fmt.Errorf("%w: category thresholds must satisfy 0 < beer <= wine <= 100", ErrInvalidParams)
	case p.BeerAbsorption <= 0 || p.WineAbsorption <= 0 || p.SpiritsAbsorption <= 0 || p.RapidAbsorption <= 0:
		return fmt.Errorf("%w: absorption durations must be positive", ErrInvalidParams)
	case !(p.FoodMultiplier > 0):
		return fmt.Errorf("%w: food multiplier must be positive", ErrInvalidParams)
	case !(p.LogisticSteepness > 0):
		return fmt.Errorf("%w: logistic steepness must be positive", ErrInvalidParams)
	case p.LegalLimit < 0:
		return fmt.Errorf("%w: legal limit must not be negative", ErrInvalidParams)
	case len(p.DistributionConstants) == 0:
		return fmt.Errorf("%w: no distribution constants", ErrInvalidParams)
	}
	for sex, r := range p.DistributionConstants {
		if !(r > 0) {
			return fmt.Errorf("%w: distribution constant for %q must be positive", ErrInvalidParams, sex)
		}
	}
	return validateBands(p.Bands)
}

// distribution returns Widmark's r for a validated profile.
func (p Params) distribution(prof model.Profile) (float64, error) {
	if !(prof.WeightKg > 0) || math.IsInf(prof.WeightKg, 0) {
		return 0, fmt.Errorf("%w: weight must be positive, got %v", ErrInvalidProfile, prof.WeightKg)
	}
	r, ok := p.DistributionConstants[prof.Sex]
	if !ok {
		return 0, fmt.Errorf("%w: no distribution constant for sex %q", ErrInvalidProfile, prof.Sex)
	}
	return r, nil
}

// ValidateProfile rejects profiles the engine cannot evaluate.
func (p Params) ValidateProfile(prof model.Profile) error {
	_, err := p.distribution(prof)
	return err
}
