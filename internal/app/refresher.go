package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/types"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

const defaultRefreshInterval = 5 * time.Second

// Publisher delivers live leaderboards to subscribers.
type Publisher interface {
	// HasSubscribers reports whether anyone listens to sessionID.
	HasSubscribers(sessionID string) bool
	// Publish sends a leaderboard to the subscribers of its session.
	Publish(board types.Leaderboard)
}

// LeaderboardSource is what the refresher reads from; Service implements it.
type LeaderboardSource interface {
	ActiveSessions(ctx context.Context, at time.Time) ([]model.Session, error)
	Leaderboard(ctx context.Context, sessionID string, at time.Time) (types.Leaderboard, error)
}

// Refresher periodically recomputes the leaderboard of every active session
// that has subscribers and publishes it.
type Refresher struct {
	source   LeaderboardSource
	pub      Publisher
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	logger logger.Logger
}

// RefresherOption applies a configuration option to the Refresher.
type RefresherOption func(*Refresher)

// WithRefreshInterval sets the push cadence.
func WithRefreshInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRefresherClock overrides the time source.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRefresher creates a stopped refresher.
func NewRefresher(source LeaderboardSource, pub Publisher, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:   source,
		pub:      pub,
		interval: defaultRefreshInterval,
		now:      time.Now,
		logger:   logger.Get().Named("refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the ticker loop. Calling Start on a running refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})

	stop := r.stopChan
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				r.RefreshOnce(ctx)
			}
		}
	}()
	r.logger.Info(ctx, "leaderboard refresher started", logger.Duration("interval", r.interval))
}

// Stop ends the loop and waits for an in-flight refresh.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
}

// RefreshOnce publishes one round and returns the number of leaderboards sent.
func (r *Refresher) RefreshOnce(ctx context.Context) int {
	now := r.now()
	sessions, err := r.source.ActiveSessions(ctx, now)
	if err != nil {
		r.logger.Error(ctx, "listing active sessions", logger.Error(err))
		metrics.RecordErrorByComponent("refresher", "store_error")
		return 0
	}
	metrics.UpdateActiveSessions(len(sessions))

	sent := 0
	for _, sess := range sessions {
		if !r.pub.HasSubscribers(sess.ID) {
			continue
		}
		board, err := r.source.Leaderboard(ctx, sess.ID, now)
		if err != nil {
			r.logger.Warn(ctx, "leaderboard refresh failed",
				logger.String("session", sess.ID), logger.Error(err))
			metrics.RecordErrorByComponent("refresher", "leaderboard_error")
			continue
		}
		r.pub.Publish(board)
		metrics.RecordLeaderboardRefresh()
		sent++
	}
	return sent
}
