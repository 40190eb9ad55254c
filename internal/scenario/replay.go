package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/promille/pkg/logger"
)

const (
	defaultReplayTimeout = 30 * time.Second
	defaultSettle        = 5 * time.Second
	defaultPollInterval  = 50 * time.Millisecond
	defaultTolerance     = 1e-4
	defaultReplayWorkers = 4
)

// Comparison pairs the local and the service reading for one person.
type Comparison struct {
	PersonID string
	Local    float64
	Remote   float64
}

// Agrees reports whether both readings match within tol.
func (c Comparison) Agrees(tol float64) bool {
	return math.Abs(c.Local-c.Remote) <= tol
}

// Replayer submits scenarios to a running service over its HTTP API.
type Replayer struct {
	baseURL   string
	client    *http.Client
	tolerance float64
	settle    time.Duration
	poll      time.Duration
	workers   int
	logger    logger.Logger
}

// ReplayOption applies a configuration option to the Replayer.
type ReplayOption func(*Replayer)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) ReplayOption {
	return func(r *Replayer) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTolerance sets the accepted difference between readings.
func WithTolerance(tol float64) ReplayOption {
	return func(r *Replayer) {
		if tol >= 0 {
			r.tolerance = tol
		}
	}
}

// WithSettleTimeout bounds how long to wait for queued drinks to show up.
func WithSettleTimeout(d time.Duration) ReplayOption {
	return func(r *Replayer) {
		if d > 0 {
			r.settle = d
		}
	}
}

// WithWorkers sets how many people are submitted concurrently.
func WithWorkers(n int) ReplayOption {
	return func(r *Replayer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewReplayer creates a replayer for the service at baseURL.
func NewReplayer(baseURL string, opts ...ReplayOption) *Replayer {
	r := &Replayer{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: defaultReplayTimeout},
		tolerance: defaultTolerance,
		settle:    defaultSettle,
		poll:      defaultPollInterval,
		workers:   defaultReplayWorkers,
		logger:    logger.Get().Named("replay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type sessionBody struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type joinBody struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	WeightKg float64 `json:"weight_kg"`
	Sex      string  `json:"sex"`
}

type drinkBody struct {
	ID          string  `json:"id"`
	VolumeML    float64 `json:"volume_ml"`
	StrengthPct float64 `json:"strength_pct"`
	ConsumedAt  string  `json:"consumed_at"`
	WithFood    *bool   `json:"with_food,omitempty"`
	Rapid       *bool   `json:"rapid,omitempty"`
}

type bacBody struct {
	Promille float64 `json:"promille"`
}

type boardBody struct {
	Entries []struct {
		Rank     int     `json:"rank"`
		PersonID string  `json:"person_id"`
		Value    float64 `json:"promille"`
	} `json:"entries"`
}

// Replay creates a session for sc, logs every drink and compares the service's
// readings at sc.At with the local report. A disagreement returns the
// comparisons together with ErrMismatch.
func (r *Replayer) Replay(ctx context.Context, sc *Scenario, local *Report) ([]Comparison, error) {
	var sess struct {
		ID string `json:"id"`
	}
	err := r.do(ctx, http.MethodPost, "/sessions", sessionBody{
		Name:     sc.Name,
		StartsAt: sc.StartTime().Format(time.RFC3339),
		EndsAt:   sc.EndTime().Format(time.RFC3339),
	}, &sess, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	r.logger.Info(ctx, "session created", logger.String("session", sess.ID))
	base := "/sessions/" + url.PathEscape(sess.ID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, p := range sc.People {
		g.Go(func() error {
			return r.submitPerson(gctx, base, sc, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	at := url.QueryEscape(local.At.Format(time.RFC3339))
	comps := make([]Comparison, 0, len(local.People))
	mismatched := 0
	for _, p := range local.People {
		c, err := r.settleReading(ctx, base+"/participants/"+url.PathEscape(p.PersonID)+"/bac?at="+at, p.PersonID, p.Summary.Current)
		if err != nil {
			return nil, err
		}
		if !c.Agrees(r.tolerance) {
			mismatched++
		}
		comps = append(comps, c)
	}
	if mismatched > 0 {
		return comps, fmt.Errorf("%w: %d of %d people differ", ErrMismatch, mismatched, len(comps))
	}

	var board boardBody
	if err := r.do(ctx, http.MethodGet, base+"/leaderboard?at="+at, nil, &board, http.StatusOK); err != nil {
		return comps, err
	}
	if len(board.Entries) != len(local.Board) {
		return comps, fmt.Errorf("%w: leaderboard has %d entries, expected %d", ErrMismatch, len(board.Entries), len(local.Board))
	}
	// Equal readings may rank in either order, so positions are compared by value.
	for i, e := range board.Entries {
		if math.Abs(e.Value-local.Board[i].Value) > r.tolerance {
			return comps, fmt.Errorf("%w: rank %d reads %.4f (%s), expected %.4f", ErrMismatch, e.Rank, e.Value, e.PersonID, local.Board[i].Value)
		}
	}
	return comps, nil
}

func (r *Replayer) submitPerson(ctx context.Context, base string, sc *Scenario, p Person) error {
	err := r.do(ctx, http.MethodPost, base+"/participants", joinBody{
		PersonID: p.ID,
		Name:     p.Name,
		WeightKg: p.WeightKg,
		Sex:      p.Sex,
	}, nil, http.StatusCreated)
	if err != nil {
		return err
	}
	for _, ev := range sc.Events(p) {
		err := r.do(ctx, http.MethodPost, base+"/participants/"+url.PathEscape(p.ID)+"/drinks", drinkBody{
			ID:          ev.ID,
			VolumeML:    ev.VolumeML,
			StrengthPct: ev.StrengthPct,
			ConsumedAt:  ev.ConsumedAt.Format(time.RFC3339),
			WithFood:    ev.WithFood,
			Rapid:       ev.Rapid,
		}, nil, http.StatusAccepted, http.StatusOK)
		if err != nil {
			return err
		}
	}
	return nil
}

// settleReading polls until the service agrees or the settle time runs out;
// drinks are stored asynchronously.
func (r *Replayer) settleReading(ctx context.Context, path, personID string, want float64) (Comparison, error) {
	deadline := time.Now().Add(r.settle)
	c := Comparison{PersonID: personID, Local: want}
	for {
		var got bacBody
		if err := r.do(ctx, http.MethodGet, path, nil, &got, http.StatusOK); err != nil {
			return c, err
		}
		c.Remote = got.Promille
		if c.Agrees(r.tolerance) || time.Now().After(deadline) {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return c, ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

func (r *Replayer) do(ctx context.Context, method, path string, body, out any, accept ...int) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode %s %s: %w", ErrReplay, method, path, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrReplay, method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrReplay, method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", ErrReplay, method, path, err)
	}

	ok := false
	for _, code := range accept {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrReplay, method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode %s %s: %w", ErrReplay, method, path, err)
		}
	}
	return nil
}
