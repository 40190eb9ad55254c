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

// DrinkDependencies defines the drink log operations the handler needs.
type DrinkDependencies interface {
	LogDrink(ctx context.Context, sessionID, personID string, ev model.DrinkEvent) (model.DrinkEvent, bool, error)
	DeleteDrink(ctx context.Context, sessionID, personID, drinkID string) error
}

// DrinksHandler handles drink requests.
type DrinksHandler struct {
	deps DrinkDependencies
}

// NewDrinksHandler creates a new drinks handler.
func NewDrinksHandler(deps DrinkDependencies) *DrinksHandler {
	return &DrinksHandler{deps: deps}
}

// drinkRequest is the body of POST .../drinks. Unset consumed_at means now.
type drinkRequest struct {
	ID          string   `json:"id"`
	VolumeML    *float64 `json:"volume_ml"`
	StrengthPct *float64 `json:"strength_pct"`
	ConsumedAt  string   `json:"consumed_at"`
	WithFood    *bool    `json:"with_food"`
	Rapid       *bool    `json:"rapid"`
}

func (req drinkRequest) event() (model.DrinkEvent, error) {
	switch {
	case req.VolumeML == nil:
		return model.DrinkEvent{}, errors.New("missing volume_ml")
	case req.StrengthPct == nil:
		return model.DrinkEvent{}, errors.New("missing strength_pct")
	}
	ev := model.DrinkEvent{
		ID:          strings.TrimSpace(req.ID),
		VolumeML:    *req.VolumeML,
		StrengthPct: *req.StrengthPct,
		WithFood:    req.WithFood,
		Rapid:       req.Rapid,
	}
	if strings.TrimSpace(req.ConsumedAt) != "" {
		ts, err := time.Parse(time.RFC3339, req.ConsumedAt)
		if err != nil {
			return model.DrinkEvent{}, errors.New("invalid consumed_at; must be RFC3339")
		}
		ev.ConsumedAt = ts
	}
	return ev, nil
}

// HandleLog handles POST /sessions/{sessionID}/participants/{personID}/drinks requests.
func (h *DrinksHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.log_drink"
	var req drinkRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.event()
	if err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	vars := mux.Vars(r)
	logged, dup, err := h.deps.LogDrink(r.Context(), vars["sessionID"], vars["personID"], ev)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, DrinkID: logged.ID})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", DrinkID: logged.ID})
}

// HandleDelete handles DELETE .../drinks/{drinkID} requests.
func (h *DrinksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_drink"
	vars := mux.Vars(r)
	if err := h.deps.DeleteDrink(r.Context(), vars["sessionID"], vars["personID"], vars["drinkID"]); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
