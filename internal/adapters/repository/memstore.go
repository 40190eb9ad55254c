package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/metrics"
)

type memberState struct {
	participant model.Participant
	drinks      []model.DrinkEvent // ordered by ConsumedAt, ties in append order
}

type sessionState struct {
	session model.Session
	order   []string // person ids in join order
	members map[string]*memberState
}

// MemoryStore is an in-process Store guarded by a single RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions:              make(map[string]*sessionState),
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func observeUpdate(start time.Time) {
	metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeQuery(start time.Time) {
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// CreateSession implements Store.
func (s *MemoryStore) CreateSession(_ context.Context, sess model.Session) error {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %q: %w", sess.ID, ErrConflict)
	}
	s.sessions[sess.ID] = &sessionState{session: sess, members: make(map[string]*memberState)}
	return nil
}

// Session implements Store.
func (s *MemoryStore) Session(_ context.Context, sessionID string) (model.Session, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	return st.session, nil
}

// ActiveSessions implements Store. Sessions are ordered by id.
func (s *MemoryStore) ActiveSessions(_ context.Context, at time.Time) ([]model.Session, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	out := make([]model.Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		if st.session.Active(at) {
			out = append(out, st.session)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Join implements Store.
func (s *MemoryStore) Join(_ context.Context, sessionID string, p model.Participant) error {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	if _, ok := st.members[p.PersonID]; ok {
		return fmt.Errorf("participant %q: %w", p.PersonID, ErrConflict)
	}
	st.members[p.PersonID] = &memberState{participant: p}
	st.order = append(st.order, p.PersonID)
	return nil
}

// member must be called with s.mu held.
func (s *MemoryStore) member(sessionID, personID string) (*memberState, error) {
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	m, ok := st.members[personID]
	if !ok {
		return nil, fmt.Errorf("participant %q: %w", personID, ErrNotFound)
	}
	return m, nil
}

// Participant implements Store.
func (s *MemoryStore) Participant(_ context.Context, sessionID, personID string) (model.Participant, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.member(sessionID, personID)
	if err != nil {
		return model.Participant{}, err
	}
	return m.participant, nil
}

// Participants implements Store.
func (s *MemoryStore) Participants(_ context.Context, sessionID string) ([]model.Participant, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	out := make([]model.Participant, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.members[id].participant)
	}
	return out, nil
}

// AppendDrink implements Store.
func (s *MemoryStore) AppendDrink(_ context.Context, sessionID, personID string, ev model.DrinkEvent) error {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.member(sessionID, personID)
	if err != nil {
		return err
	}
	for _, d := range m.drinks {
		if d.ID == ev.ID {
			return fmt.Errorf("drink %q: %w", ev.ID, ErrConflict)
		}
	}
	// first index consumed strictly after ev keeps ties in append order
	i := sort.Search(len(m.drinks), func(i int) bool { return m.drinks[i].ConsumedAt.After(ev.ConsumedAt) })
	m.drinks = append(m.drinks, model.DrinkEvent{})
	copy(m.drinks[i+1:], m.drinks[i:])
	m.drinks[i] = ev.Clone()
	return nil
}

// DeleteDrink implements Store.
func (s *MemoryStore) DeleteDrink(_ context.Context, sessionID, personID, drinkID string) error {
	defer observeUpdate(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.member(sessionID, personID)
	if err != nil {
		return err
	}
	for i, d := range m.drinks {
		if d.ID == drinkID {
			m.drinks = append(m.drinks[:i], m.drinks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("drink %q: %w", drinkID, ErrNotFound)
}

// Drinks implements Store.
func (s *MemoryStore) Drinks(_ context.Context, sessionID, personID string) ([]model.DrinkEvent, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.member(sessionID, personID)
	if err != nil {
		return nil, err
	}
	return cloneDrinks(m.drinks), nil
}

// Cohort implements Store.
func (s *MemoryStore) Cohort(_ context.Context, sessionID string) ([]Member, error) {
	defer observeQuery(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	out := make([]Member, 0, len(st.order))
	for _, id := range st.order {
		m := st.members[id]
		out = append(out, Member{Participant: m.participant, Drinks: cloneDrinks(m.drinks)})
	}
	return out, nil
}

func cloneDrinks(in []model.DrinkEvent) []model.DrinkEvent {
	out := make([]model.DrinkEvent, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}

// startMetricsUpdater periodically publishes store gauges.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	now := s.now()
	active, participants := 0, 0

	s.mu.RLock()
	for _, st := range s.sessions {
		participants += len(st.order)
		if st.session.Active(now) {
			active++
		}
	}
	s.mu.RUnlock()

	metrics.UpdateActiveSessions(active)
	metrics.UpdateParticipants(participants)
}
