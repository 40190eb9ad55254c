package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/promille/internal/domain/model"
)

// SessionDependencies defines the session operations the handler needs.
type SessionDependencies interface {
	CreateSession(ctx context.Context, name string, startsAt, endsAt time.Time) (model.Session, error)
	Session(ctx context.Context, sessionID string) (model.Session, error)
	Join(ctx context.Context, sessionID, personID, name string, prof model.Profile) (model.Participant, error)
	Participants(ctx context.Context, sessionID string) ([]model.Participant, error)
}

// SessionsHandler handles session and participant requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// sessionRequest is the body of POST /sessions.
type sessionRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

func (req sessionRequest) parse() (time.Time, time.Time, error) {
	if strings.TrimSpace(req.StartsAt) == "" || strings.TrimSpace(req.EndsAt) == "" {
		return time.Time{}, time.Time{}, errors.New("missing starts_at or ends_at")
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid starts_at; must be RFC3339")
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid ends_at; must be RFC3339")
	}
	return startsAt, endsAt, nil
}

// joinRequest is the body of POST /sessions/{sessionID}/participants.
type joinRequest struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	WeightKg float64 `json:"weight_kg"`
	Sex      string  `json:"sex"`
}

func (req joinRequest) profile() model.Profile {
	return model.Profile{
		WeightKg: req.WeightKg,
		Sex:      model.Sex(strings.ToLower(strings.TrimSpace(req.Sex))),
	}
}

// HandleCreate handles POST /sessions requests.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	startsAt, endsAt, err := req.parse()
	if err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.deps.CreateSession(r.Context(), req.Name, startsAt, endsAt)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /sessions/{sessionID} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	sess, err := h.deps.Session(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleJoin handles POST /sessions/{sessionID}/participants requests.
func (h *SessionsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.join"
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.Join(r.Context(), mux.Vars(r)["sessionID"], strings.TrimSpace(req.PersonID), req.Name, req.profile())
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleParticipants handles GET /sessions/{sessionID}/participants requests.
func (h *SessionsHandler) HandleParticipants(w http.ResponseWriter, r *http.Request) {
	const op = "api.participants"
	ps, err := h.deps.Participants(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if ps == nil {
		ps = []model.Participant{}
	}
	writeJSON(w, http.StatusOK, ps)
}
