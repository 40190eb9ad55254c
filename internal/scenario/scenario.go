// Package scenario loads drinking-session scenarios from YAML, evaluates them
// offline with the concentration engine and can replay them against a running
// service to check that both agree.
package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/promille/internal/domain/model"
)

const (
	defaultHours       = 8
	defaultStepMinutes = 10
)

// Scenario is a session with its people and what they drank, in minutes from Start.
type Scenario struct {
	Name        string   `koanf:"name"`
	Start       string   `koanf:"start"`
	Hours       float64  `koanf:"hours"`
	StepMinutes float64  `koanf:"step_minutes"`
	AtMinutes   float64  `koanf:"at_minutes"`
	People      []Person `koanf:"people"`

	start time.Time
}

// Person is one participant of a scenario.
type Person struct {
	ID       string  `koanf:"id"`
	Name     string  `koanf:"name"`
	WeightKg float64 `koanf:"weight_kg"`
	Sex      string  `koanf:"sex"`
	Drinks   []Drink `koanf:"drinks"`
}

// Drink is one logged drink, Minute minutes after the scenario start.
type Drink struct {
	Minute      float64 `koanf:"minute"`
	VolumeML    float64 `koanf:"volume_ml"`
	StrengthPct float64 `koanf:"strength_pct"`
	WithFood    *bool   `koanf:"with_food"`
	Rapid       *bool   `koanf:"rapid"`
}

// Load reads a YAML scenario from path. Timestamps must be quoted RFC3339 strings.
func Load(path string) (*Scenario, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadScenario, path, err)
	}
	sc := &Scenario{Hours: defaultHours, StepMinutes: defaultStepMinutes}
	if err := k.UnmarshalWithConf("", sc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadScenario, path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the scenario shape and resolves its start time. Drink
// contents are left to the engine.
func (s *Scenario) Validate() error {
	switch {
	case !(s.Hours > 0):
		return fmt.Errorf("%w: hours must be positive", ErrInvalidScenario)
	case !(s.StepMinutes > 0):
		return fmt.Errorf("%w: step_minutes must be positive", ErrInvalidScenario)
	case s.AtMinutes < 0 || s.AtMinutes > s.Hours*60:
		return fmt.Errorf("%w: at_minutes must lie inside the session", ErrInvalidScenario)
	case len(s.People) == 0:
		return fmt.Errorf("%w: no people", ErrInvalidScenario)
	}

	s.start = time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	if strings.TrimSpace(s.Start) != "" {
		t, err := time.Parse(time.RFC3339, s.Start)
		if err != nil {
			return fmt.Errorf("%w: start must be RFC3339: %w", ErrInvalidScenario, err)
		}
		s.start = t
	}

	seen := make(map[string]bool, len(s.People))
	for i, p := range s.People {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: person %d has no id", ErrInvalidScenario, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate person %q", ErrInvalidScenario, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// StartTime returns the session start.
func (s *Scenario) StartTime() time.Time { return s.start }

// EndTime returns the session end.
func (s *Scenario) EndTime() time.Time { return s.at(s.Hours * 60) }

// At returns the instant summaries and the leaderboard are taken at. Zero
// at_minutes means the session end.
func (s *Scenario) At() time.Time {
	if s.AtMinutes == 0 {
		return s.EndTime()
	}
	return s.at(s.AtMinutes)
}

// Step returns the curve sampling step.
func (s *Scenario) Step() time.Duration {
	return time.Duration(s.StepMinutes * float64(time.Minute))
}

func (s *Scenario) at(minutes float64) time.Time {
	return s.start.Add(time.Duration(minutes * float64(time.Minute)))
}

// Profile returns the person's engine profile.
func (p Person) Profile() model.Profile {
	return model.Profile{WeightKg: p.WeightKg, Sex: model.Sex(strings.ToLower(strings.TrimSpace(p.Sex)))}
}

// Events converts a person's drinks to engine events with stable ids.
func (s *Scenario) Events(p Person) []model.DrinkEvent {
	out := make([]model.DrinkEvent, 0, len(p.Drinks))
	for i, d := range p.Drinks {
		out = append(out, model.DrinkEvent{
			ID:          fmt.Sprintf("%s-%d", p.ID, i+1),
			VolumeML:    d.VolumeML,
			StrengthPct: d.StrengthPct,
			ConsumedAt:  s.at(d.Minute),
			WithFood:    d.WithFood,
			Rapid:       d.Rapid,
		})
	}
	return out
}
