// Package repository persists sessions, participants and their drink logs.
package repository

import (
	"context"
	"time"

	"github.com/okian/promille/internal/domain/model"
)

// Member is a participant together with a snapshot of their drink log.
type Member struct {
	Participant model.Participant
	Drinks      []model.DrinkEvent
}

// Store provides read/write access to the drink log.
//
// Read methods return copies; callers may keep and mutate them.
type Store interface {
	// CreateSession stores a new session. Returns ErrConflict if the id is taken.
	CreateSession(ctx context.Context, s model.Session) error
	// Session returns a session or ErrNotFound.
	Session(ctx context.Context, sessionID string) (model.Session, error)
	// ActiveSessions returns the sessions whose window contains at.
	ActiveSessions(ctx context.Context, at time.Time) ([]model.Session, error)

	// Join adds a participant. Returns ErrNotFound for an unknown session and
	// ErrConflict if the person already joined.
	Join(ctx context.Context, sessionID string, p model.Participant) error
	// Participant returns one participant or ErrNotFound.
	Participant(ctx context.Context, sessionID, personID string) (model.Participant, error)
	// Participants returns the participants in join order.
	Participants(ctx context.Context, sessionID string) ([]model.Participant, error)

	// AppendDrink adds a drink to a participant's log. Returns ErrNotFound for
	// an unknown participant and ErrConflict for a reused drink id.
	AppendDrink(ctx context.Context, sessionID, personID string, ev model.DrinkEvent) error
	// DeleteDrink removes a drink. Returns ErrNotFound if it is not logged.
	DeleteDrink(ctx context.Context, sessionID, personID, drinkID string) error
	// Drinks returns a participant's drinks ordered by consumption time.
	Drinks(ctx context.Context, sessionID, personID string) ([]model.DrinkEvent, error)
	// Cohort returns every participant of a session with their drinks.
	Cohort(ctx context.Context, sessionID string) ([]Member, error)

	// Close releases background resources.
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
