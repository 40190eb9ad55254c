// Package service composes the drink log, the ingestion pipeline and the
// concentration engine behind the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	eventqueue "github.com/okian/promille/internal/adapters/mq/queue"
	workerpool "github.com/okian/promille/internal/adapters/mq/worker"
	repository "github.com/okian/promille/internal/adapters/repository"
	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/dedupe"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/ranking"
	"github.com/okian/promille/internal/domain/types"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// Curve request bounds.
const (
	MinCurveStep    = time.Second
	MaxCurveSamples = 10_000
)

// Service implements the API dependencies for drinking sessions.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	ownsStore  bool
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool
	engine     *bac.Engine

	workerCount       int
	queueSize         int
	dedupeSize        int
	cohortParallelism int
	now               func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		engine:            bac.NewEngine(),
		workerCount:       runtime.NumCPU() * 2,
		queueSize:         10_000,
		dedupeSize:        50_000,
		cohortParallelism: runtime.NumCPU(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the pipeline components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting promille service...")

	if err := s.engine.Validate(); err != nil {
		return err
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store,
		workerpool.WithFailureHandler(s.onAppendFailure))
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "promille service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("cohortParallelism", s.cohortParallelism),
	)
	return nil
}

// Stop drains the ingestion queue and releases the store if the service created it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping promille service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.started = false
	s.logger.Info(ctx, "promille service stopped")
	return errors.Join(errs...)
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Engine returns the concentration engine.
func (s *Service) Engine() *bac.Engine { return s.engine }

func dedupeKey(sessionID, personID, drinkID string) string {
	return sessionID + "/" + personID + "/" + drinkID
}

// onAppendFailure lets a client retry a drink the workers could not store.
func (s *Service) onAppendFailure(ctx context.Context, e workerpool.Event, err error) {
	if errors.Is(err, repository.ErrConflict) {
		return
	}
	s.deduper.Unrecord(ctx, dedupeKey(e.SessionID, e.PersonID, e.Drink.ID))
}

// CreateSession stores a new session window.
func (s *Service) CreateSession(ctx context.Context, name string, startsAt, endsAt time.Time) (model.Session, error) {
	if err := s.ready(); err != nil {
		return model.Session{}, err
	}
	if startsAt.IsZero() || !endsAt.After(startsAt) {
		return model.Session{}, fmt.Errorf("%w: must end after it starts", ErrInvalidSession)
	}
	sess := model.Session{
		ID:       uuid.New().String(),
		Name:     strings.TrimSpace(name),
		StartsAt: startsAt,
		EndsAt:   endsAt,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	s.logger.Info(ctx, "session created", logger.String("session", sess.ID), logger.String("name", sess.Name))
	return sess, nil
}

// Session returns one session.
func (s *Service) Session(ctx context.Context, sessionID string) (model.Session, error) {
	if err := s.ready(); err != nil {
		return model.Session{}, err
	}
	return s.store.Session(ctx, sessionID)
}

// ActiveSessions returns the sessions running at at.
func (s *Service) ActiveSessions(ctx context.Context, at time.Time) ([]model.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ActiveSessions(ctx, at)
}

// Join adds a participant after validating the profile. An empty personID
// gets a generated one.
func (s *Service) Join(ctx context.Context, sessionID, personID, name string, prof model.Profile) (model.Participant, error) {
	if err := s.ready(); err != nil {
		return model.Participant{}, err
	}
	if err := s.engine.Params().ValidateProfile(prof); err != nil {
		metrics.RecordInvalidInput("profile")
		return model.Participant{}, err
	}
	if personID == "" {
		personID = uuid.New().String()
	}
	p := model.Participant{
		PersonID: personID,
		Name:     strings.TrimSpace(name),
		Profile:  prof,
		JoinedAt: s.now(),
	}
	if err := s.store.Join(ctx, sessionID, p); err != nil {
		return model.Participant{}, err
	}
	return p, nil
}

// Participants lists a session's participants in join order.
func (s *Service) Participants(ctx context.Context, sessionID string) ([]model.Participant, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Participants(ctx, sessionID)
}

// LogDrink validates a drink and queues it for the participant's log. A
// drink id already accepted is reported as duplicate and not queued again.
// Missing ids and timestamps are filled in.
func (s *Service) LogDrink(ctx context.Context, sessionID, personID string, ev model.DrinkEvent) (model.DrinkEvent, bool, error) {
	if err := s.ready(); err != nil {
		return ev, false, err
	}
	if _, err := s.store.Participant(ctx, sessionID, personID); err != nil {
		return ev, false, err
	}
	if ev.ConsumedAt.IsZero() {
		ev.ConsumedAt = s.now()
	}
	if _, err := s.engine.Params().Normalize(ev); err != nil {
		metrics.RecordInvalidInput("drink")
		return ev, false, err
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	key := dedupeKey(sessionID, personID, ev.ID)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordDrinkDuplicate()
		s.logger.Debug(ctx, "duplicate drink", logger.String("drink", ev.ID))
		return ev, true, nil
	}

	err := s.eventQueue.Enqueue(ctx, model.DrinkLogged{
		SessionID:  sessionID,
		PersonID:   personID,
		Drink:      ev,
		ReceivedAt: s.now(),
	})
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		if errors.Is(err, eventqueue.ErrFull) {
			return ev, false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return ev, false, err
	}
	return ev, false, nil
}

// DeleteDrink removes a drink from a participant's log.
func (s *Service) DeleteDrink(ctx context.Context, sessionID, personID, drinkID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.DeleteDrink(ctx, sessionID, personID, drinkID); err != nil {
		return err
	}
	s.deduper.Unrecord(ctx, dedupeKey(sessionID, personID, drinkID))
	metrics.RecordDrinkDeleted()
	return nil
}

// person loads everything needed to evaluate one participant.
func (s *Service) person(ctx context.Context, sessionID, personID string) (model.Session, *bac.Timeline, error) {
	if err := s.ready(); err != nil {
		return model.Session{}, nil, err
	}
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return model.Session{}, nil, err
	}
	p, err := s.store.Participant(ctx, sessionID, personID)
	if err != nil {
		return model.Session{}, nil, err
	}
	drinks, err := s.store.Drinks(ctx, sessionID, personID)
	if err != nil {
		return model.Session{}, nil, err
	}
	t, err := s.engine.Prepare(p.Profile, drinks)
	if err != nil {
		return model.Session{}, nil, err
	}
	return sess, t, nil
}

// viewTime returns at, or now pinned into the session window when at is zero.
func (s *Service) viewTime(sess model.Session, at time.Time) time.Time {
	if !at.IsZero() {
		return at
	}
	return sess.Clamp(s.now())
}

// window fills a zero from with the session start and a zero to with the view time.
func (s *Service) window(sess model.Session, from, to time.Time) (time.Time, time.Time) {
	if from.IsZero() {
		from = sess.StartsAt
	}
	if to.IsZero() {
		to = s.viewTime(sess, time.Time{})
	}
	return from, to
}

func observe(kind string, start time.Time) {
	metrics.RecordEvaluation(kind, float64(time.Since(start).Microseconds())/1000)
}

// Concentration returns a participant's promille at at.
func (s *Service) Concentration(ctx context.Context, sessionID, personID string, at time.Time) (model.Sample, error) {
	defer observe("concentration", time.Now())

	sess, t, err := s.person(ctx, sessionID, personID)
	if err != nil {
		return model.Sample{}, err
	}
	at = s.viewTime(sess, at)
	return model.Sample{At: at, Value: t.At(at)}, nil
}

// Summary returns a participant's derived metrics at at.
func (s *Service) Summary(ctx context.Context, sessionID, personID string, at time.Time) (bac.Summary, error) {
	defer observe("summary", time.Now())

	sess, t, err := s.person(ctx, sessionID, personID)
	if err != nil {
		return bac.Summary{}, err
	}
	return s.engine.SummarizeTimeline(t, s.viewTime(sess, at)), nil
}

// Curve samples a participant's concentration over [from, to]. Zero bounds
// default to the session start and the current view time; a zero step uses
// the engine cadence. Steps below MinCurveStep and windows needing more than
// MaxCurveSamples samples are rejected.
func (s *Service) Curve(ctx context.Context, sessionID, personID string, from, to time.Time, step time.Duration) ([]model.Sample, error) {
	defer observe("series", time.Now())

	if step < 0 {
		return nil, fmt.Errorf("%w: step must not be negative", ErrInvalidRequest)
	}
	if step > 0 && step < MinCurveStep {
		return nil, fmt.Errorf("%w: step %s is below %s", ErrInvalidRequest, step, MinCurveStep)
	}
	sess, t, err := s.person(ctx, sessionID, personID)
	if err != nil {
		return nil, err
	}
	from, to = s.window(sess, from, to)
	if step == 0 {
		step = s.engine.Cadence()
	}
	if n := bac.SampleCount(from, to, step); n > MaxCurveSamples {
		return nil, fmt.Errorf("%w: window needs %d samples, limit is %d", ErrInvalidRequest, n, MaxCurveSamples)
	}
	samples := t.Series(from, to, step)
	metrics.RecordSamplesGenerated(len(samples))
	return samples, nil
}

// PeakInWindow returns the highest concentration inside [from, to], with the
// same defaults as Curve.
func (s *Service) PeakInWindow(ctx context.Context, sessionID, personID string, from, to time.Time) (model.Sample, error) {
	defer observe("peak", time.Now())

	sess, t, err := s.person(ctx, sessionID, personID)
	if err != nil {
		return model.Sample{}, err
	}
	from, to = s.window(sess, from, to)
	if to.Before(from) {
		return model.Sample{}, fmt.Errorf("%w: window ends before it starts", ErrInvalidRequest)
	}
	return t.Peak(from, to), nil
}

// Leaderboard ranks every participant of a session by concentration at at.
func (s *Service) Leaderboard(ctx context.Context, sessionID string, at time.Time) (types.Leaderboard, error) {
	defer observe("leaderboard", time.Now())

	if err := s.ready(); err != nil {
		return types.Leaderboard{}, err
	}
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return types.Leaderboard{}, err
	}
	at = s.viewTime(sess, at)

	cohort, err := s.store.Cohort(ctx, sessionID)
	if err != nil {
		return types.Leaderboard{}, err
	}

	readings := make([]model.Reading, len(cohort))
	names := make(map[string]string, len(cohort))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cohortParallelism)
	for i, m := range cohort {
		names[m.Participant.PersonID] = m.Participant.Name
		g.Go(func() error {
			v, err := s.engine.Concentration(m.Participant.Profile, m.Drinks, at)
			if err != nil {
				return fmt.Errorf("participant %q: %w", m.Participant.PersonID, err)
			}
			readings[i] = model.Reading{PersonID: m.Participant.PersonID, Value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Leaderboard{}, err
	}

	entries := ranking.Rank(model.Snapshot{At: at, Readings: readings})
	for i := range entries {
		entries[i].Name = names[entries[i].PersonID]
	}
	return types.Leaderboard{SessionID: sessionID, At: at, Entries: entries}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"dedupeSize":        s.dedupeSize,
		"cohortParallelism": s.cohortParallelism,
	}
	if !s.started {
		return stats
	}

	queueLen := s.eventQueue.Len()
	stats["queueLength"] = queueLen
	stats["dedupeEntries"] = s.deduper.Size()
	stats["drinksAppended"] = s.workerPool.Processed()
	if active, err := s.store.ActiveSessions(ctx, s.now()); err == nil {
		stats["activeSessions"] = len(active)
		metrics.UpdateActiveSessions(len(active))
	}
	metrics.UpdateQueueSize(queueLen)
	return stats
}
