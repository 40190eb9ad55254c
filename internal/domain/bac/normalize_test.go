package bac_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Given default params", t, func() {
		p := bac.DefaultParams()

		Convey("When classifying by strength", func() {
			Convey("Then the thresholds split beer, wine and spirits", func() {
				So(p.Category(0), ShouldEqual, bac.Beer)
				So(p.Category(7.99), ShouldEqual, bac.Beer)
				So(p.Category(8), ShouldEqual, bac.Wine)
				So(p.Category(20), ShouldEqual, bac.Wine)
				So(p.Category(20.01), ShouldEqual, bac.Spirits)
				So(bac.Spirits.String(), ShouldEqual, "spirits")
			})
		})

		Convey("When normalizing a shot of vodka", func() {
			d, err := p.Normalize(model.DrinkEvent{VolumeML: 40, StrengthPct: 40, ConsumedAt: t0})

			Convey("Then ethanol mass follows volume, strength and density", func() {
				So(err, ShouldBeNil)
				So(d.EthanolGrams, ShouldAlmostEqual, 12.624, 1e-9)
				So(d.Category, ShouldEqual, bac.Spirits)
				So(d.Absorption, ShouldEqual, 15*time.Minute)
				So(d.Completed(), ShouldEqual, t0.Add(15*time.Minute))
			})
		})

		Convey("When modifiers are set", func() {
			base := model.DrinkEvent{VolumeML: 330, StrengthPct: 5, ConsumedAt: t0}

			Convey("Then food doubles the category duration", func() {
				ev := base
				ev.WithFood = model.Bool(true)
				d, err := p.Normalize(ev)
				So(err, ShouldBeNil)
				So(d.Absorption, ShouldEqual, 40*time.Minute)
			})

			Convey("Then an explicit false modifier changes nothing", func() {
				ev := base
				ev.WithFood = model.Bool(false)
				ev.Rapid = model.Bool(false)
				d, err := p.Normalize(ev)
				So(err, ShouldBeNil)
				So(d.Absorption, ShouldEqual, 20*time.Minute)
			})

			Convey("Then rapid consumption overrides both category and food", func() {
				ev := base
				ev.WithFood = model.Bool(true)
				ev.Rapid = model.Bool(true)
				d, err := p.Normalize(ev)
				So(err, ShouldBeNil)
				So(d.Absorption, ShouldEqual, 5*time.Minute)
			})

			Convey("Then wine keeps its own baseline", func() {
				d, err := p.Normalize(model.DrinkEvent{VolumeML: 150, StrengthPct: 12, ConsumedAt: t0})
				So(err, ShouldBeNil)
				So(d.Absorption, ShouldEqual, 15*time.Minute)
			})
		})
	})
}

func TestParamsValidate(t *testing.T) {
	Convey("Given params", t, func() {
		Convey("Then the defaults are valid", func() {
			So(bac.DefaultParams().Validate(), ShouldBeNil)
		})

		Convey("When the elimination rate is zero", func() {
			p := bac.DefaultParams()
			p.EliminationRatePerHour = 0

			Convey("Then validation fails and the engine refuses to evaluate", func() {
				So(errors.Is(p.Validate(), bac.ErrInvalidParams), ShouldBeTrue)
				e := bac.NewEngine(bac.WithParams(p))
				So(errors.Is(e.Validate(), bac.ErrInvalidParams), ShouldBeTrue)

				_, err := e.Concentration(male80(), []model.DrinkEvent{beer(t0)}, minutes(20))
				So(errors.Is(err, bac.ErrInvalidParams), ShouldBeTrue)
				_, err = e.Summarize(male80(), nil, minutes(20))
				So(errors.Is(err, bac.ErrInvalidParams), ShouldBeTrue)
			})
		})

		Convey("When bands are not ascending", func() {
			p := bac.DefaultParams()
			p.Bands = []bac.Band{{Upper: 1, Level: bac.LevelMild}, {Upper: 0.5, Level: bac.LevelSober}}
			So(errors.Is(p.Validate(), bac.ErrInvalidParams), ShouldBeTrue)
		})

		Convey("When a distribution constant is not positive", func() {
			p := bac.DefaultParams()
			p.DistributionConstants = map[model.Sex]float64{model.SexMale: 0}
			So(errors.Is(p.Validate(), bac.ErrInvalidParams), ShouldBeTrue)
		})

		Convey("When a slower elimination is injected", func() {
			p := bac.DefaultParams()
			p.EliminationRatePerHour = 0.1
			slow := bac.NewEngine(bac.WithParams(p))
			fast := bac.NewEngine()
			events := []model.DrinkEvent{beer(t0)}

			Convey("Then the same drink lasts longer", func() {
				a, err := slow.Concentration(male80(), events, minutes(120))
				So(err, ShouldBeNil)
				b, err := fast.Concentration(male80(), events, minutes(120))
				So(err, ShouldBeNil)
				So(a, ShouldBeGreaterThan, b)
			})
		})
	})
}
