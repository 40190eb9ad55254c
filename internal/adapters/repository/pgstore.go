package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/promille/internal/domain/model"
)

// Postgres error codes mapped onto store kinds.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	person_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	weight_kg  DOUBLE PRECISION NOT NULL,
	sex        TEXT NOT NULL,
	joined_at  TIMESTAMPTZ NOT NULL,
	seq        BIGSERIAL,
	PRIMARY KEY (session_id, person_id)
);
CREATE TABLE IF NOT EXISTS drinks (
	session_id   TEXT NOT NULL,
	person_id    TEXT NOT NULL,
	drink_id     TEXT NOT NULL,
	volume_ml    DOUBLE PRECISION NOT NULL,
	strength_pct DOUBLE PRECISION NOT NULL,
	consumed_at  TIMESTAMPTZ NOT NULL,
	with_food    BOOLEAN,
	rapid        BOOLEAN,
	seq          BIGSERIAL,
	PRIMARY KEY (session_id, person_id, drink_id),
	FOREIGN KEY (session_id, person_id) REFERENCES participants(session_id, person_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS drinks_timeline_idx ON drinks (session_id, person_id, consumed_at, seq);
`

// PostgresStore keeps the drink log in PostgreSQL through a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// mapError turns driver errors into store kinds.
func mapError(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CreateSession implements Store.
func (s *PostgresStore) CreateSession(ctx context.Context, sess model.Session) error {
	defer observeUpdate(time.Now())

	_, err := s.db.Exec(ctx,
		`INSERT INTO sessions (id, name, starts_at, ends_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.Name, sess.StartsAt, sess.EndsAt)
	return mapError(fmt.Sprintf("session %q", sess.ID), err)
}

// Session implements Store.
func (s *PostgresStore) Session(ctx context.Context, sessionID string) (model.Session, error) {
	defer observeQuery(time.Now())

	sess := model.Session{ID: sessionID}
	err := s.db.QueryRow(ctx,
		`SELECT name, starts_at, ends_at FROM sessions WHERE id = $1`, sessionID).
		Scan(&sess.Name, &sess.StartsAt, &sess.EndsAt)
	if err != nil {
		return model.Session{}, mapError(fmt.Sprintf("session %q", sessionID), err)
	}
	return sess, nil
}

// ActiveSessions implements Store.
func (s *PostgresStore) ActiveSessions(ctx context.Context, at time.Time) ([]model.Session, error) {
	defer observeQuery(time.Now())

	rows, err := s.db.Query(ctx,
		`SELECT id, name, starts_at, ends_at FROM sessions
		 WHERE starts_at <= $1 AND ends_at > $1 ORDER BY id`, at)
	if err != nil {
		return nil, mapError("active sessions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Session, error) {
		var sess model.Session
		err := row.Scan(&sess.ID, &sess.Name, &sess.StartsAt, &sess.EndsAt)
		return sess, err
	})
	return out, mapError("active sessions", err)
}

// Join implements Store.
func (s *PostgresStore) Join(ctx context.Context, sessionID string, p model.Participant) error {
	defer observeUpdate(time.Now())

	_, err := s.db.Exec(ctx,
		`INSERT INTO participants (session_id, person_id, name, weight_kg, sex, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionID, p.PersonID, p.Name, p.Profile.WeightKg, string(p.Profile.Sex), p.JoinedAt)
	return mapError(fmt.Sprintf("participant %q", p.PersonID), err)
}

func scanParticipant(row pgx.Row) (model.Participant, error) {
	var (
		p   model.Participant
		sex string
	)
	err := row.Scan(&p.PersonID, &p.Name, &p.Profile.WeightKg, &sex, &p.JoinedAt)
	p.Profile.Sex = model.Sex(sex)
	return p, err
}

// Participant implements Store.
func (s *PostgresStore) Participant(ctx context.Context, sessionID, personID string) (model.Participant, error) {
	defer observeQuery(time.Now())

	p, err := scanParticipant(s.db.QueryRow(ctx,
		`SELECT person_id, name, weight_kg, sex, joined_at FROM participants
		 WHERE session_id = $1 AND person_id = $2`, sessionID, personID))
	if err != nil {
		return model.Participant{}, mapError(fmt.Sprintf("participant %q", personID), err)
	}
	return p, nil
}

// Participants implements Store.
func (s *PostgresStore) Participants(ctx context.Context, sessionID string) ([]model.Participant, error) {
	defer observeQuery(time.Now())

	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT person_id, name, weight_kg, sex, joined_at FROM participants
		 WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, mapError("participants", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Participant, error) {
		return scanParticipant(row)
	})
	return out, mapError("participants", err)
}

// AppendDrink implements Store.
func (s *PostgresStore) AppendDrink(ctx context.Context, sessionID, personID string, ev model.DrinkEvent) error {
	defer observeUpdate(time.Now())

	_, err := s.db.Exec(ctx,
		`INSERT INTO drinks (session_id, person_id, drink_id, volume_ml, strength_pct, consumed_at, with_food, rapid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sessionID, personID, ev.ID, ev.VolumeML, ev.StrengthPct, ev.ConsumedAt, ev.WithFood, ev.Rapid)
	return mapError(fmt.Sprintf("drink %q", ev.ID), err)
}

// DeleteDrink implements Store.
func (s *PostgresStore) DeleteDrink(ctx context.Context, sessionID, personID, drinkID string) error {
	defer observeUpdate(time.Now())

	tag, err := s.db.Exec(ctx,
		`DELETE FROM drinks WHERE session_id = $1 AND person_id = $2 AND drink_id = $3`,
		sessionID, personID, drinkID)
	if err != nil {
		return mapError(fmt.Sprintf("drink %q", drinkID), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("drink %q: %w", drinkID, ErrNotFound)
	}
	return nil
}

func scanDrink(row pgx.Row, ev *model.DrinkEvent) error {
	return row.Scan(&ev.ID, &ev.VolumeML, &ev.StrengthPct, &ev.ConsumedAt, &ev.WithFood, &ev.Rapid)
}

// Drinks implements Store.
func (s *PostgresStore) Drinks(ctx context.Context, sessionID, personID string) ([]model.DrinkEvent, error) {
	defer observeQuery(time.Now())

	if _, err := s.Participant(ctx, sessionID, personID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT drink_id, volume_ml, strength_pct, consumed_at, with_food, rapid FROM drinks
		 WHERE session_id = $1 AND person_id = $2 ORDER BY consumed_at, seq`, sessionID, personID)
	if err != nil {
		return nil, mapError("drinks", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DrinkEvent, error) {
		var ev model.DrinkEvent
		err := scanDrink(row, &ev)
		return ev, err
	})
	return out, mapError("drinks", err)
}

// Cohort implements Store with one query for participants and one for drinks.
func (s *PostgresStore) Cohort(ctx context.Context, sessionID string) ([]Member, error) {
	participants, err := s.Participants(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	defer observeQuery(time.Now())
	members := make([]Member, len(participants))
	index := make(map[string]int, len(participants))
	for i, p := range participants {
		members[i].Participant = p
		index[p.PersonID] = i
	}

	rows, err := s.db.Query(ctx,
		`SELECT person_id, drink_id, volume_ml, strength_pct, consumed_at, with_food, rapid FROM drinks
		 WHERE session_id = $1 ORDER BY person_id, consumed_at, seq`, sessionID)
	if err != nil {
		return nil, mapError("cohort", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			personID string
			ev       model.DrinkEvent
		)
		if err := rows.Scan(&personID, &ev.ID, &ev.VolumeML, &ev.StrengthPct, &ev.ConsumedAt, &ev.WithFood, &ev.Rapid); err != nil {
			return nil, mapError("cohort", err)
		}
		if i, ok := index[personID]; ok {
			members[i].Drinks = append(members[i].Drinks, ev)
		}
	}
	return members, mapError("cohort", rows.Err())
}
