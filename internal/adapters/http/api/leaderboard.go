package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/promille/internal/domain/ranking"
	"github.com/okian/promille/internal/domain/types"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, sessionID string, at time.Time) (types.Leaderboard, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /sessions/{sessionID}/leaderboard?at=&limit= requests.
// Without limit the whole cohort is returned.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	at, err := queryTime(r, op, "at")
	if err != nil {
		fail(w, err)
		return
	}
	n := 0
	if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
	}

	board, err := h.deps.Leaderboard(r.Context(), mux.Vars(r)["sessionID"], at)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if n > 0 {
		board.Entries = ranking.Top(board.Entries, n)
	}
	if board.Entries == nil {
		board.Entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleGetRank handles GET /sessions/{sessionID}/participants/{personID}/rank?at= requests.
func (h *LeaderboardHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	at, err := queryTime(r, op, "at")
	if err != nil {
		fail(w, err)
		return
	}
	vars := mux.Vars(r)
	board, err := h.deps.Leaderboard(r.Context(), vars["sessionID"], at)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	entry, ok := ranking.Find(board.Entries, vars["personID"])
	if !ok {
		fail(w, NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
