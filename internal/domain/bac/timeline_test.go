package bac_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSeries(t *testing.T) {
	Convey("Given a timeline with one beer", t, func() {
		tl, err := bac.NewTimeline(bac.DefaultParams(), male80(), []model.DrinkEvent{beer(t0)})
		So(err, ShouldBeNil)

		Convey("When the window is a multiple of the step", func() {
			s := tl.Series(t0, minutes(20), 5*time.Minute)

			Convey("Then the end is sampled once", func() {
				So(len(s), ShouldEqual, 5)
				So(s[len(s)-1].At, ShouldEqual, minutes(20))
			})
		})

		Convey("When the window is not a multiple of the step", func() {
			s := tl.Series(t0, minutes(22), 5*time.Minute)

			Convey("Then the last sample lands exactly on the end", func() {
				So(len(s), ShouldEqual, 6)
				So(s[4].At, ShouldEqual, minutes(20))
				So(s[5].At, ShouldEqual, minutes(22))
				So(s[5].Value, ShouldEqual, tl.At(minutes(22)))
			})

			Convey("Then samples are time ordered", func() {
				for i := 1; i < len(s); i++ {
					So(s[i].At.After(s[i-1].At), ShouldBeTrue)
				}
			})
		})

		Convey("When the window holds more samples than are reserved up front", func() {
			s := tl.Series(t0, t0.Add(9999*time.Second), time.Second)

			Convey("Then every sample is still produced", func() {
				So(len(s), ShouldEqual, 10000)
				So(int64(len(s)), ShouldEqual, bac.SampleCount(t0, t0.Add(9999*time.Second), time.Second))
			})
		})

		Convey("When counting samples ahead of a request", func() {
			So(bac.SampleCount(t0, minutes(20), 5*time.Minute), ShouldEqual, int64(5))
			So(bac.SampleCount(t0, minutes(22), 5*time.Minute), ShouldEqual, int64(6))
			So(bac.SampleCount(t0, t0.AddDate(100, 0, 0), time.Nanosecond), ShouldBeGreaterThan, int64(1e18))
			So(bac.SampleCount(minutes(30), minutes(10), time.Minute), ShouldEqual, int64(0))
			So(bac.SampleCount(t0, minutes(10), 0), ShouldEqual, int64(0))
		})

		Convey("When the end is not after the start", func() {
			Convey("Then the series is empty", func() {
				So(tl.Series(minutes(30), minutes(30), 5*time.Minute), ShouldBeEmpty)
				So(tl.Series(minutes(30), minutes(10), 5*time.Minute), ShouldBeEmpty)
			})
		})
	})
}

func TestDerivedMetrics(t *testing.T) {
	Convey("Given a timeline with one beer", t, func() {
		params := bac.DefaultParams()
		tl, err := bac.NewTimeline(params, male80(), []model.DrinkEvent{beer(t0)})
		So(err, ShouldBeNil)

		Convey("When locating the peak by resampling", func() {
			peak, ok := bac.PeakOf(tl.Series(t0, minutes(180), 5*time.Minute))

			Convey("Then it is found at absorption completion", func() {
				So(ok, ShouldBeTrue)
				So(peak.At, ShouldEqual, minutes(20))
				So(peak.Value, ShouldEqual, 0.3155)
			})
		})

		Convey("When locating the peak analytically", func() {
			peak := tl.Peak(t0, minutes(180))

			Convey("Then it is the fully absorbed value at completion", func() {
				So(peak.At, ShouldEqual, minutes(20))
				So(peak.Value, ShouldEqual, 0.3263)
				So(peak.Value, ShouldEqual, tl.At(minutes(20).Add(time.Nanosecond)))
			})

			Convey("Then no fine resample exceeds it", func() {
				for _, step := range []time.Duration{time.Minute, 7 * time.Second} {
					sampled, ok := bac.PeakOf(tl.Series(t0, minutes(180), step))
					So(ok, ShouldBeTrue)
					So(peak.Value, ShouldBeGreaterThanOrEqualTo, sampled.Value)
				}
			})

			Convey("Then a window starting at completion still sees the absorbed value", func() {
				late := tl.Peak(minutes(20), minutes(60))
				So(late.At, ShouldEqual, minutes(20))
				So(late.Value, ShouldEqual, 0.3263)
			})

			Convey("Then a window before completion peaks at its end", func() {
				early := tl.Peak(t0, minutes(10))
				So(early.At, ShouldEqual, minutes(10))
				So(early.Value, ShouldEqual, tl.At(minutes(10)))
			})
		})

		Convey("When the series is empty", func() {
			_, ok := bac.PeakOf(nil)
			So(ok, ShouldBeFalse)
		})

		Convey("When asking for time to peak", func() {
			Convey("Then it counts down while absorbing", func() {
				So(tl.TimeToPeak(minutes(5)), ShouldEqual, 15*time.Minute)
			})
			Convey("Then it is zero once absorbed", func() {
				So(tl.TimeToPeak(minutes(20)), ShouldEqual, 0)
				So(tl.TimeToPeak(minutes(90)), ShouldEqual, 0)
			})
			Convey("Then drinks not yet consumed are ignored", func() {
				So(tl.TimeToPeak(minutes(-5)), ShouldEqual, 0)
			})
		})

		Convey("When asking for time to sober", func() {
			So(params.TimeToSober(0.3), ShouldEqual, 2*time.Hour)
			So(params.TimeToSober(0), ShouldEqual, 0)
			So(params.TimeToSober(-0.1), ShouldEqual, 0)
		})

		Convey("When classifying", func() {
			cases := map[float64]bac.Level{
				0:    bac.LevelSober,
				0.2:  bac.LevelMinimal,
				0.3:  bac.LevelMinimal,
				0.31: bac.LevelMild,
				0.5:  bac.LevelMild,
				0.7:  bac.LevelReducedCoordination,
				1.2:  bac.LevelClearlyImpaired,
				2.5:  bac.LevelHeavilyImpaired,
				4:    bac.LevelLifeThreatening,
			}
			for v, want := range cases {
				So(params.Classify(v), ShouldEqual, want)
			}
			So(params.Classify(math.Inf(1)), ShouldEqual, bac.LevelLifeThreatening)
		})

		Convey("When checking the legal limit", func() {
			So(params.OverLegalLimit(0.5), ShouldBeFalse)
			So(params.OverLegalLimit(0.5001), ShouldBeTrue)
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given two beers", t, func() {
		engine := bac.NewEngine()
		events := []model.DrinkEvent{beer(t0), beer(minutes(30))}

		Convey("When summarizing during the second absorption", func() {
			s, err := engine.Summarize(male80(), events, minutes(40))

			Convey("Then every metric is filled in", func() {
				So(err, ShouldBeNil)
				So(s.Current, ShouldBeGreaterThan, 0)
				So(s.TimeToPeak, ShouldEqual, 10*time.Minute)
				So(s.TimeToSober, ShouldBeGreaterThan, 0)
				So(s.Peak.Value, ShouldBeGreaterThanOrEqualTo, s.Current)
				So(s.Level, ShouldEqual, engine.Params().Classify(s.Current))
				So(s.OverLimit, ShouldEqual, s.Current > 0.5)
			})
		})

		Convey("When summarizing before anything was drunk", func() {
			s, err := engine.Summarize(male80(), events, minutes(-10))

			Convey("Then the person is sober", func() {
				So(err, ShouldBeNil)
				So(s.Current, ShouldEqual, 0)
				So(s.Level, ShouldEqual, bac.LevelSober)
				So(s.Peak.Value, ShouldEqual, 0)
			})
		})
	})
}
