// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/types"
	"github.com/okian/promille/pkg/logger"
)

const defaultMaxLeaderboardLimit = 1000

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateSession(ctx context.Context, name string, startsAt, endsAt time.Time) (model.Session, error)
	Session(ctx context.Context, sessionID string) (model.Session, error)
	Join(ctx context.Context, sessionID, personID, name string, prof model.Profile) (model.Participant, error)
	Participants(ctx context.Context, sessionID string) ([]model.Participant, error)

	// LogDrink queues a drink; the bool reports an already accepted drink id.
	LogDrink(ctx context.Context, sessionID, personID string, ev model.DrinkEvent) (model.DrinkEvent, bool, error)
	DeleteDrink(ctx context.Context, sessionID, personID, drinkID string) error

	// Read operations evaluate the concentration model.
	Summary(ctx context.Context, sessionID, personID string, at time.Time) (bac.Summary, error)
	Curve(ctx context.Context, sessionID, personID string, from, to time.Time, step time.Duration) ([]model.Sample, error)
	PeakInWindow(ctx context.Context, sessionID, personID string, from, to time.Time) (model.Sample, error)
	Leaderboard(ctx context.Context, sessionID string, at time.Time) (types.Leaderboard, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	deps  Dependencies
	stats StatsProvider
	hub   *Hub

	corsOrigins []string
	limiter     *rateLimiter
	maxLimit    int
	logger      logger.Logger

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	drinksHandler      *DrinksHandler
	readingsHandler    *ReadingsHandler
	leaderboardHandler *LeaderboardHandler
	liveHandler        *LiveHandler

	extraRoutes []func(*mux.Router)
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:        deps,
		stats:       statsProvider,
		corsOrigins: []string{"*"},
		maxLimit:    defaultMaxLeaderboardLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	if s.hub == nil {
		s.hub = NewHub()
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.sessionsHandler = NewSessionsHandler(deps)
	s.drinksHandler = NewDrinksHandler(deps)
	s.readingsHandler = NewReadingsHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.liveHandler = NewLiveHandler(deps, s.hub)
	return s
}

// Hub returns the live leaderboard hub the server pushes through.
func (s *Server) Hub() *Hub { return s.hub }

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	sessions := r.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", MetricsMiddleware(s.limit(s.sessionsHandler.HandleCreate), "create_session")).Methods(http.MethodPost)
	sessions.HandleFunc("/{sessionID}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session")).Methods(http.MethodGet)
	sessions.HandleFunc("/{sessionID}/participants", MetricsMiddleware(s.limit(s.sessionsHandler.HandleJoin), "join")).Methods(http.MethodPost)
	sessions.HandleFunc("/{sessionID}/participants", MetricsMiddleware(s.sessionsHandler.HandleParticipants, "participants")).Methods(http.MethodGet)
	sessions.HandleFunc("/{sessionID}/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard")).Methods(http.MethodGet)
	sessions.HandleFunc("/{sessionID}/live", MetricsMiddleware(s.liveHandler.HandleLive, "live")).Methods(http.MethodGet)

	person := sessions.PathPrefix("/{sessionID}/participants/{personID}").Subrouter()
	person.HandleFunc("/drinks", MetricsMiddleware(s.limit(s.drinksHandler.HandleLog), "log_drink")).Methods(http.MethodPost)
	person.HandleFunc("/drinks/{drinkID}", MetricsMiddleware(s.limit(s.drinksHandler.HandleDelete), "delete_drink")).Methods(http.MethodDelete)
	person.HandleFunc("/bac", MetricsMiddleware(s.readingsHandler.HandleSummary, "bac")).Methods(http.MethodGet)
	person.HandleFunc("/curve", MetricsMiddleware(s.readingsHandler.HandleCurve, "curve")).Methods(http.MethodGet)
	person.HandleFunc("/peak", MetricsMiddleware(s.readingsHandler.HandlePeak, "peak")).Methods(http.MethodGet)
	person.HandleFunc("/rank", MetricsMiddleware(s.leaderboardHandler.HandleGetRank, "rank")).Methods(http.MethodGet)

	r.NotFoundHandler = MetricsMiddleware(notFound, "not_found")
}

// Handler returns the routed API wrapped in panic recovery and CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	for _, extra := range s.extraRoutes {
		extra(r)
	}
	s.Register(r)

	var h http.Handler = r
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(s.corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With"}),
		handlers.ExposedHeaders([]string{"Content-Length"}),
	)(h)
	return h
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return s.limiter.middleware(next)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", NewKind("api.route", ErrNotFound))
}

// recoveryLogger sends recovered panics to the structured logger.
type recoveryLogger struct {
	logger logger.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error(context.Background(), "recovered from panic", logger.Any("panic", v))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	DrinkID   string `json:"drink_id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status its kind maps to.
func fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryTime parses an optional RFC3339 query parameter; absent means zero.
func queryTime(r *http.Request, op, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, WrapKind(op, ErrBadRequest, fmt.Errorf("%s must be RFC3339: %w", key, err))
	}
	return t, nil
}
