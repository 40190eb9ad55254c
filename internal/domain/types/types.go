// Package types contains common types used across the application
package types

import "time"

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int     `json:"rank"`
	PersonID string  `json:"person_id"`
	Name     string  `json:"name,omitempty"`
	Value    float64 `json:"promille"`
}

// Leaderboard is a ranked cohort of one session at one instant.
type Leaderboard struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Entries   []Entry   `json:"entries"`
}
