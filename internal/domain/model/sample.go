package model

import "time"

// Sample is one point of a concentration curve, in promille.
type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Reading is one person's concentration at a shared instant.
type Reading struct {
	PersonID string
	Value    float64
}

// Snapshot holds the readings of a cohort at one instant. Order matters:
// ranking keeps it for equal values.
type Snapshot struct {
	At       time.Time
	Readings []Reading
}
