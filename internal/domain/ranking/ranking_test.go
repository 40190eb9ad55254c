package ranking_test

import (
	"testing"
	"time"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func snapshot(readings ...model.Reading) model.Snapshot {
	return model.Snapshot{At: time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC), Readings: readings}
}

func TestRank(t *testing.T) {
	Convey("Given a snapshot with a tie at the top", t, func() {
		s := snapshot(
			model.Reading{PersonID: "personA", Value: 0.9},
			model.Reading{PersonID: "personB", Value: 0.9},
			model.Reading{PersonID: "personC", Value: 0.3},
		)

		Convey("When ranking it", func() {
			entries := ranking.Rank(s)

			Convey("Then ties keep input order and ranks are consecutive", func() {
				So(len(entries), ShouldEqual, 3)
				So(entries[0].PersonID, ShouldEqual, "personA")
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[1].PersonID, ShouldEqual, "personB")
				So(entries[1].Rank, ShouldEqual, 2)
				So(entries[2].PersonID, ShouldEqual, "personC")
				So(entries[2].Rank, ShouldEqual, 3)
			})

			Convey("Then ranking again gives the same leaderboard", func() {
				So(ranking.Rank(s), ShouldResemble, entries)
			})
		})
	})

	Convey("Given an unordered snapshot", t, func() {
		s := snapshot(
			model.Reading{PersonID: "low", Value: 0.1},
			model.Reading{PersonID: "high", Value: 1.4},
			model.Reading{PersonID: "zero", Value: 0},
			model.Reading{PersonID: "mid", Value: 0.6},
			model.Reading{PersonID: "zero2", Value: 0},
		)

		Convey("When ranking it", func() {
			entries := ranking.Rank(s)

			Convey("Then values are strictly descending where they differ", func() {
				want := []string{"high", "mid", "low", "zero", "zero2"}
				for i, id := range want {
					So(entries[i].PersonID, ShouldEqual, id)
					So(entries[i].Rank, ShouldEqual, i+1)
				}
				for i := 1; i < len(entries); i++ {
					So(entries[i-1].Value, ShouldBeGreaterThanOrEqualTo, entries[i].Value)
				}
			})

			Convey("Then the snapshot itself is untouched", func() {
				So(s.Readings[0].PersonID, ShouldEqual, "low")
			})

			Convey("Then Top and Find slice the leaderboard", func() {
				So(len(ranking.Top(entries, 2)), ShouldEqual, 2)
				So(len(ranking.Top(entries, 10)), ShouldEqual, 5)
				e, ok := ranking.Find(entries, "mid")
				So(ok, ShouldBeTrue)
				So(e.Rank, ShouldEqual, 2)
				_, ok = ranking.Find(entries, "nobody")
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given an empty snapshot", t, func() {
		Convey("Then the leaderboard is empty", func() {
			So(ranking.Rank(snapshot()), ShouldBeEmpty)
		})
	})
}
