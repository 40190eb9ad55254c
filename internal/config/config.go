// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading and validation functions accept context.Context first.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/model"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the drink log backend: memory or postgres.
	Store string `koanf:"store"`
	// DatabaseURL is the pgx connection string used by the postgres store.
	DatabaseURL string `koanf:"database_url"`

	// EventQueueSize bounds the drink ingestion queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the drink id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// RefreshIntervalMS is the live leaderboard push cadence.
	RefreshIntervalMS int `koanf:"refresh_interval_ms"`
	// CohortParallelism caps concurrent per-person evaluations for a leaderboard.
	CohortParallelism int `koanf:"cohort_parallelism"`

	RateLimitRPS   float64  `koanf:"rate_limit_rps"`
	RateLimitBurst int      `koanf:"rate_limit_burst"`
	CORSOrigins    []string `koanf:"cors_origins"`

	// Engine tuning.
	EliminationRatePerHour   float64            `koanf:"elimination_rate_per_hour"`
	EthanolDensity           float64            `koanf:"ethanol_density"`
	AbsorptionElimination    float64            `koanf:"absorption_elimination"`
	RapidAbsorptionMinutes   float64            `koanf:"rapid_absorption_minutes"`
	BeerMaxStrength          float64            `koanf:"beer_max_strength"`
	WineMaxStrength          float64            `koanf:"wine_max_strength"`
	BeerAbsorptionMinutes    float64            `koanf:"beer_absorption_minutes"`
	WineAbsorptionMinutes    float64            `koanf:"wine_absorption_minutes"`
	SpiritsAbsorptionMinutes float64            `koanf:"spirits_absorption_minutes"`
	FoodMultiplier           float64            `koanf:"food_multiplier"`
	DistributionConstants    map[string]float64 `koanf:"distribution_constants"`
	LegalLimit               float64            `koanf:"legal_limit"`
	SampleCadenceMinutes     float64            `koanf:"sample_cadence_minutes"`
}

// New creates a Config populated with defaults.
func New() *Config {
	p := bac.DefaultParams()
	dist := make(map[string]float64, len(p.DistributionConstants))
	for sex, r := range p.DistributionConstants {
		dist[string(sex)] = r
	}
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		Store:             StoreMemory,
		EventQueueSize:    10_000,
		WorkerCount:       runtime.NumCPU() * 2,
		DedupeSize:        50_000,
		RefreshIntervalMS: 5_000,
		CohortParallelism: runtime.NumCPU(),
		RateLimitRPS:      50,
		RateLimitBurst:    100,
		CORSOrigins:       []string{"*"},

		EliminationRatePerHour:   p.EliminationRatePerHour,
		EthanolDensity:           p.EthanolDensity,
		AbsorptionElimination:    p.AbsorptionElimination,
		RapidAbsorptionMinutes:   p.RapidAbsorption.Minutes(),
		BeerMaxStrength:          p.BeerMaxStrength,
		WineMaxStrength:          p.WineMaxStrength,
		BeerAbsorptionMinutes:    p.BeerAbsorption.Minutes(),
		WineAbsorptionMinutes:    p.WineAbsorption.Minutes(),
		SpiritsAbsorptionMinutes: p.SpiritsAbsorption.Minutes(),
		FoodMultiplier:           p.FoodMultiplier,
		DistributionConstants:    dist,
		LegalLimit:               p.LegalLimit,
		SampleCadenceMinutes:     5,
	}
}

// RefreshInterval returns the live push cadence.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// SampleCadence returns the default curve step.
func (c *Config) SampleCadence() time.Duration {
	return minutes(c.SampleCadenceMinutes)
}

// EngineParams translates the tuning keys into validated engine params.
func (c *Config) EngineParams() (bac.Params, error) {
	p := bac.DefaultParams()
	p.EliminationRatePerHour = c.EliminationRatePerHour
	p.EthanolDensity = c.EthanolDensity
	p.AbsorptionElimination = c.AbsorptionElimination
	p.RapidAbsorption = minutes(c.RapidAbsorptionMinutes)
	p.BeerMaxStrength = c.BeerMaxStrength
	p.WineMaxStrength = c.WineMaxStrength
	p.BeerAbsorption = minutes(c.BeerAbsorptionMinutes)
	p.WineAbsorption = minutes(c.WineAbsorptionMinutes)
	p.SpiritsAbsorption = minutes(c.SpiritsAbsorptionMinutes)
	p.FoodMultiplier = c.FoodMultiplier
	p.LegalLimit = c.LegalLimit
	p.DistributionConstants = make(map[model.Sex]float64, len(c.DistributionConstants))
	for sex, r := range c.DistributionConstants {
		p.DistributionConstants[model.Sex(sex)] = r
	}
	if err := p.Validate(); err != nil {
		return bac.Params{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return p, nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
