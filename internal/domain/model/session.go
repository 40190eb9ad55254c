package model

import "time"

// Session is a time-boxed gathering whose participants are ranked together.
type Session struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Active reports whether t falls inside the session window.
func (s Session) Active(t time.Time) bool {
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

// Clamp pins t into [StartsAt, EndsAt]. Finished sessions are always viewed
// at their end time.
func (s Session) Clamp(t time.Time) time.Time {
	if t.Before(s.StartsAt) {
		return s.StartsAt
	}
	if t.After(s.EndsAt) {
		return s.EndsAt
	}
	return t
}

// Participant is a person taking part in a session.
type Participant struct {
	PersonID string    `json:"person_id"`
	Name     string    `json:"name"`
	Profile  Profile   `json:"profile"`
	JoinedAt time.Time `json:"joined_at"`
}
