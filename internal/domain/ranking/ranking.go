// Package ranking orders a cohort snapshot into a leaderboard.
package ranking

import (
	"sort"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/types"
)

// Rank orders readings by value, highest first, and assigns 1-based ranks.
// Equal values keep their snapshot order, so the same snapshot always yields
// the same leaderboard. The snapshot is not modified.
func Rank(s model.Snapshot) []types.Entry {
	entries := make([]types.Entry, len(s.Readings))
	for i, r := range s.Readings {
		entries[i] = types.Entry{PersonID: r.PersonID, Value: r.Value}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Top returns at most n entries of a ranked leaderboard.
func Top(entries []types.Entry, n int) []types.Entry {
	if n < 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

// Find returns the entry for personID.
func Find(entries []types.Entry, personID string) (types.Entry, bool) {
	for _, e := range entries {
		if e.PersonID == personID {
			return e, true
		}
	}
	return types.Entry{}, false
}
