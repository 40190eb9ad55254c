package bac

import (
	"math"
	"time"

	"github.com/okian/promille/internal/domain/model"
)

const roundingScale = 1e4

// Peak returns the promille a dose reaches for a profile once fully absorbed,
// before any elimination.
func (p Params) Peak(d Dose, prof model.Profile) (float64, error) {
	r, err := p.distribution(prof)
	if err != nil {
		return 0, err
	}
	return d.EthanolGrams / (prof.WeightKg * 1000 * r) * 1000, nil
}

// Contribution returns one dose's unrounded concentration at a query time,
// given its peak from Peak. Doses consumed after at contribute nothing.
func (p Params) Contribution(d Dose, peak float64, at time.Time) float64 {
	return p.contribution(peak, d.Absorption.Minutes(), at.Sub(d.ConsumedAt).Minutes())
}

func (p Params) contribution(peak, duration, elapsed float64) float64 {
	if elapsed < 0 {
		return 0
	}
	if elapsed <= duration {
		return p.absorbing(peak, duration, elapsed)
	}
	return p.eliminating(peak, duration, elapsed)
}

// absorbing is the logistic uptake phase, less the in-absorption elimination.
func (p Params) absorbing(peak, duration, elapsed float64) float64 {
	k := p.LogisticSteepness / duration
	absorbed := clamp01(1 / (1 + math.Exp(-k*(elapsed-duration/2))))
	correction := p.AbsorptionElimination * p.EliminationRatePerHour * elapsed / 60
	return math.Max(0, peak*absorbed-correction)
}

// eliminating is the linear decline once the dose is fully absorbed.
func (p Params) eliminating(peak, duration, elapsed float64) float64 {
	return math.Max(0, peak-p.EliminationRatePerHour*(elapsed-duration)/60)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round rounds a final total to four decimals.
func round(v float64) float64 {
	return math.Round(v*roundingScale) / roundingScale
}
