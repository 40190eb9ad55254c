package model_test

import (
	"testing"
	"time"

	model "github.com/okian/promille/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDrinkModifiers(t *testing.T) {
	convey.Convey("Given a drink event", t, func() {
		ev := model.DrinkEvent{VolumeML: 330, StrengthPct: 5}

		convey.Convey("When modifiers are unset", func() {
			convey.So(ev.HasFood(), convey.ShouldBeFalse)
			convey.So(ev.IsRapid(), convey.ShouldBeFalse)
		})

		convey.Convey("When modifiers are explicitly false", func() {
			ev.WithFood = model.Bool(false)
			ev.Rapid = model.Bool(false)
			convey.So(ev.HasFood(), convey.ShouldBeFalse)
			convey.So(ev.IsRapid(), convey.ShouldBeFalse)
		})

		convey.Convey("When modifiers are true", func() {
			ev.WithFood = model.Bool(true)
			ev.Rapid = model.Bool(true)
			convey.So(ev.HasFood(), convey.ShouldBeTrue)
			convey.So(ev.IsRapid(), convey.ShouldBeTrue)
		})
	})
}

func TestSessionWindow(t *testing.T) {
	convey.Convey("Given a three hour session", t, func() {
		start := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
		s := model.Session{ID: "s1", StartsAt: start, EndsAt: start.Add(3 * time.Hour)}

		convey.Convey("Then activity is half-open", func() {
			convey.So(s.Active(start), convey.ShouldBeTrue)
			convey.So(s.Active(start.Add(-time.Second)), convey.ShouldBeFalse)
			convey.So(s.Active(s.EndsAt), convey.ShouldBeFalse)
		})

		convey.Convey("Then query times are clamped into the window", func() {
			convey.So(s.Clamp(start.Add(-time.Hour)), convey.ShouldEqual, start)
			convey.So(s.Clamp(start.Add(5*time.Hour)), convey.ShouldEqual, s.EndsAt)
			mid := start.Add(90 * time.Minute)
			convey.So(s.Clamp(mid), convey.ShouldEqual, mid)
		})
	})
}
