package bac

import (
	"fmt"
	"math"
	"time"
)

// Level is a qualitative reading of a concentration.
type Level string

// Levels from sober to life-threatening.
const (
	LevelSober               Level = "sober"
	LevelMinimal             Level = "minimal"
	LevelMild                Level = "mild"
	LevelReducedCoordination Level = "reduced-coordination"
	LevelClearlyImpaired     Level = "clearly-impaired"
	LevelHeavilyImpaired     Level = "heavily-impaired"
	LevelLifeThreatening     Level = "life-threatening"
)

// Band maps concentrations up to and including Upper to a Level.
type Band struct {
	Upper float64
	Level Level
}

// DefaultBands returns the standard classification table.
func DefaultBands() []Band {
	return []Band{
		{Upper: 0, Level: LevelSober},
		{Upper: 0.3, Level: LevelMinimal},
		{Upper: 0.5, Level: LevelMild},
		{Upper: 0.8, Level: LevelReducedCoordination},
		{Upper: 1.5, Level: LevelClearlyImpaired},
		{Upper: 3.0, Level: LevelHeavilyImpaired},
		{Upper: math.Inf(1), Level: LevelLifeThreatening},
	}
}

func validateBands(bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%w: no classification bands", ErrInvalidParams)
	}
	for i := 1; i < len(bands); i++ {
		if !(bands[i].Upper > bands[i-1].Upper) {
			return fmt.Errorf("%w: band %q must have a higher bound than %q", ErrInvalidParams, bands[i].Level, bands[i-1].Level)
		}
	}
	if !math.IsInf(bands[len(bands)-1].Upper, 1) {
		return fmt.Errorf("%w: last band must be unbounded", ErrInvalidParams)
	}
	return nil
}

// Classify returns the level of the first band whose upper bound covers v.
func (p Params) Classify(v float64) Level {
	for _, b := range p.Bands {
		if v <= b.Upper {
			return b.Level
		}
	}
	return p.Bands[len(p.Bands)-1].Level
}

// OverLegalLimit reports whether v exceeds the configured legal limit.
func (p Params) OverLegalLimit(v float64) bool {
	return v > p.LegalLimit
}

// TimeToSober estimates how long elimination needs to bring current to zero.
func (p Params) TimeToSober(current float64) time.Duration {
	if current <= 0 {
		return 0
	}
	return time.Duration(current / p.EliminationRatePerHour * float64(time.Hour))
}
