package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/model"
)

// ReadingDependencies defines the concentration queries the handler needs.
type ReadingDependencies interface {
	Summary(ctx context.Context, sessionID, personID string, at time.Time) (bac.Summary, error)
	Curve(ctx context.Context, sessionID, personID string, from, to time.Time, step time.Duration) ([]model.Sample, error)
	PeakInWindow(ctx context.Context, sessionID, personID string, from, to time.Time) (model.Sample, error)
}

// ReadingsHandler serves per-person concentration readings.
type ReadingsHandler struct {
	deps ReadingDependencies
}

// NewReadingsHandler creates a new readings handler.
func NewReadingsHandler(deps ReadingDependencies) *ReadingsHandler {
	return &ReadingsHandler{deps: deps}
}

type summaryResponse struct {
	PersonID           string       `json:"person_id"`
	At                 time.Time    `json:"at"`
	Promille           float64      `json:"promille"`
	Peak               model.Sample `json:"peak"`
	TimeToPeakSeconds  float64      `json:"time_to_peak_seconds"`
	TimeToSoberSeconds float64      `json:"time_to_sober_seconds"`
	Level              bac.Level    `json:"level"`
	OverLimit          bool         `json:"over_limit"`
}

type curveResponse struct {
	PersonID    string         `json:"person_id"`
	StepSeconds float64        `json:"step_seconds,omitempty"`
	Samples     []model.Sample `json:"samples"`
}

type peakResponse struct {
	PersonID string       `json:"person_id"`
	Peak     model.Sample `json:"peak"`
}

// HandleSummary handles GET .../bac?at= requests.
func (h *ReadingsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.bac"
	at, err := queryTime(r, op, "at")
	if err != nil {
		fail(w, err)
		return
	}
	vars := mux.Vars(r)
	sum, err := h.deps.Summary(r.Context(), vars["sessionID"], vars["personID"], at)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		PersonID:           vars["personID"],
		At:                 sum.At,
		Promille:           sum.Current,
		Peak:               sum.Peak,
		TimeToPeakSeconds:  sum.TimeToPeak.Seconds(),
		TimeToSoberSeconds: sum.TimeToSober.Seconds(),
		Level:              sum.Level,
		OverLimit:          sum.OverLimit,
	})
}

// HandleCurve handles GET .../curve?from=&to=&step= requests. step is a Go
// duration such as 5m.
func (h *ReadingsHandler) HandleCurve(w http.ResponseWriter, r *http.Request) {
	const op = "api.curve"
	from, to, err := queryWindow(r, op)
	if err != nil {
		fail(w, err)
		return
	}
	var step time.Duration
	if raw := strings.TrimSpace(r.URL.Query().Get("step")); raw != "" {
		step, err = time.ParseDuration(raw)
		if err != nil {
			fail(w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid step: %w", err)))
			return
		}
	}

	vars := mux.Vars(r)
	samples, err := h.deps.Curve(r.Context(), vars["sessionID"], vars["personID"], from, to, step)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	writeJSON(w, http.StatusOK, curveResponse{
		PersonID:    vars["personID"],
		StepSeconds: step.Seconds(),
		Samples:     samples,
	})
}

// HandlePeak handles GET .../peak?from=&to= requests.
func (h *ReadingsHandler) HandlePeak(w http.ResponseWriter, r *http.Request) {
	const op = "api.peak"
	from, to, err := queryWindow(r, op)
	if err != nil {
		fail(w, err)
		return
	}
	vars := mux.Vars(r)
	peak, err := h.deps.PeakInWindow(r.Context(), vars["sessionID"], vars["personID"], from, to)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, peakResponse{PersonID: vars["personID"], Peak: peak})
}

func queryWindow(r *http.Request, op string) (time.Time, time.Time, error) {
	from, err := queryTime(r, op, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryTime(r, op, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
