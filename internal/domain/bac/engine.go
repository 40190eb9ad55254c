package bac

import (
	"time"

	"github.com/okian/promille/internal/domain/model"
)

// defaultCadence resolves the shortest (rapid) absorption window.
const defaultCadence = 5 * time.Minute

// Engine evaluates profiles and drink logs with a fixed Params and cadence.
// It holds no mutable state.
type Engine struct {
	params  Params
	cadence time.Duration
}

// Summary is a person's derived metrics at one instant.
type Summary struct {
	At          time.Time
	Current     float64
	Peak        model.Sample
	TimeToPeak  time.Duration
	TimeToSober time.Duration
	Level       Level
	OverLimit   bool
}

// NewEngine creates an engine with DefaultParams and a five-minute cadence.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		params:  DefaultParams(),
		cadence: defaultCadence,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Params returns the engine tuning.
func (e *Engine) Params() Params { return e.params }

// Validate reports whether the engine tuning is usable.
func (e *Engine) Validate() error { return e.params.Validate() }

// Cadence returns the default sampling interval.
func (e *Engine) Cadence() time.Duration { return e.cadence }

// Prepare builds a reusable timeline for batch queries on one person.
func (e *Engine) Prepare(prof model.Profile, events []model.DrinkEvent) (*Timeline, error) {
	return NewTimeline(e.params, prof, events)
}

// Concentration returns the promille at one instant.
func (e *Engine) Concentration(prof model.Profile, events []model.DrinkEvent, at time.Time) (float64, error) {
	t, err := e.Prepare(prof, events)
	if err != nil {
		return 0, err
	}
	return t.At(at), nil
}

// Series samples the curve over [from, to] at the engine cadence.
func (e *Engine) Series(prof model.Profile, events []model.DrinkEvent, from, to time.Time) ([]model.Sample, error) {
	t, err := e.Prepare(prof, events)
	if err != nil {
		return nil, err
	}
	return t.Series(from, to, e.cadence), nil
}

// Summarize computes current value, peak since the first drink, time to
// peak, time to sober and classification at now.
func (e *Engine) Summarize(prof model.Profile, events []model.DrinkEvent, now time.Time) (Summary, error) {
	t, err := e.Prepare(prof, events)
	if err != nil {
		return Summary{}, err
	}
	return e.summarize(t, now), nil
}

// SummarizeTimeline is Summarize for an already prepared timeline.
func (e *Engine) SummarizeTimeline(t *Timeline, now time.Time) Summary {
	return e.summarize(t, now)
}

func (e *Engine) summarize(t *Timeline, now time.Time) Summary {
	current := t.At(now)
	s := Summary{
		At:          now,
		Current:     current,
		Peak:        model.Sample{At: now},
		TimeToPeak:  t.TimeToPeak(now),
		TimeToSober: e.params.TimeToSober(current),
		Level:       e.params.Classify(current),
		OverLimit:   e.params.OverLegalLimit(current),
	}
	if first, ok := t.First(); ok && !first.After(now) {
		s.Peak = t.Peak(first, now)
	}
	return s
}
