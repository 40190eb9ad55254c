package bac

import (
	"math"
	"sort"
	"time"

	"github.com/okian/promille/internal/domain/model"
)

// prepared is a dose with its profile-specific constants resolved.
type prepared struct {
	Dose
	peak     float64
	duration float64 // absorption in minutes
}

// Timeline is one person's validated doses sorted by consumption time. It is
// built once and queried for any number of instants; it is immutable.
type Timeline struct {
	params Params
	doses  []prepared
}

// NewTimeline validates profile and events and prepares them for querying.
// A single invalid event fails the whole timeline.
func NewTimeline(params Params, prof model.Profile, events []model.DrinkEvent) (*Timeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := params.ValidateProfile(prof); err != nil {
		return nil, err
	}
	doses := make([]prepared, 0, len(events))
	for _, ev := range events {
		d, err := params.Normalize(ev)
		if err != nil {
			return nil, err
		}
		peak, err := params.Peak(d, prof)
		if err != nil {
			return nil, err
		}
		doses = append(doses, prepared{Dose: d, peak: peak, duration: d.Absorption.Minutes()})
	}
	sort.SliceStable(doses, func(i, j int) bool {
		return doses[i].ConsumedAt.Before(doses[j].ConsumedAt)
	})
	return &Timeline{params: params, doses: doses}, nil
}

// Len returns the number of doses.
func (t *Timeline) Len() int { return len(t.doses) }

// consumed returns the doses consumed at or before at.
func (t *Timeline) consumed(at time.Time) []prepared {
	n := sort.Search(len(t.doses), func(i int) bool {
		return t.doses[i].ConsumedAt.After(at)
	})
	return t.doses[:n]
}

// At returns the total concentration at an instant, rounded to four decimals.
func (t *Timeline) At(at time.Time) float64 {
	var total float64
	for _, d := range t.consumed(at) {
		total += t.params.contribution(d.peak, d.duration, at.Sub(d.ConsumedAt).Minutes())
	}
	return round(math.Max(0, total))
}

// Series samples the curve from from to to every step. The last sample is
// always exactly at to. It is empty when the window is empty or there are no
// doses; an empty series means "no data yet", not a zero curve. Callers bound
// the number of samples; see SampleCount.
func (t *Timeline) Series(from, to time.Time, step time.Duration) []model.Sample {
	if !to.After(from) || len(t.doses) == 0 || step <= 0 {
		return nil
	}
	out := make([]model.Sample, 0, min(SampleCount(from, to, step), maxPrealloc))
	for at := from; at.Before(to); at = at.Add(step) {
		out = append(out, model.Sample{At: at, Value: t.At(at)})
	}
	return append(out, model.Sample{At: to, Value: t.At(to)})
}

// maxPrealloc caps the capacity Series reserves up front.
const maxPrealloc = 4096

// SampleCount returns how many samples Series produces for a window and step,
// or zero when it produces none.
func SampleCount(from, to time.Time, step time.Duration) int64 {
	if !to.After(from) || step <= 0 {
		return 0
	}
	n := int64(to.Sub(from) / step)
	if to.Sub(from)%step != 0 {
		n++
	}
	return n + 1
}

// settledAt is the limit of the curve just after at. A dose whose absorption
// completes exactly at at counts as fully absorbed there.
func (t *Timeline) settledAt(at time.Time) float64 {
	var total float64
	for _, d := range t.consumed(at) {
		elapsed := at.Sub(d.ConsumedAt).Minutes()
		if elapsed >= d.duration {
			total += t.params.eliminating(d.peak, d.duration, elapsed)
		} else {
			total += t.params.contribution(d.peak, d.duration, elapsed)
		}
	}
	return round(math.Max(0, total))
}

// Peak returns the highest value in [from, to] with its earliest time. The
// curve steps up as each dose finishes absorbing, so every completion instant
// inside the window is scored by the value reached just after it, next to the
// window bounds.
func (t *Timeline) Peak(from, to time.Time) model.Sample {
	if to.Before(from) {
		to = from
	}
	candidates := []model.Sample{{At: from, Value: t.At(from)}}
	for _, d := range t.doses {
		if c := d.Completed(); !c.Before(from) && c.Before(to) {
			candidates = append(candidates, model.Sample{At: c, Value: t.settledAt(c)})
		}
	}
	candidates = append(candidates, model.Sample{At: to, Value: t.At(to)})
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].At.Before(candidates[j].At) })

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Value > best.Value {
			best = c
		}
	}
	return best
}

// TimeToPeak returns how long until the last still-absorbing drink consumed by
// now finishes absorbing; zero when every drink is fully absorbed.
func (t *Timeline) TimeToPeak(now time.Time) time.Duration {
	var latest time.Time
	for _, d := range t.consumed(now) {
		if c := d.Completed(); c.After(now) && c.After(latest) {
			latest = c
		}
	}
	if latest.IsZero() {
		return 0
	}
	return latest.Sub(now)
}

// First returns the earliest consumption time, or false without doses.
func (t *Timeline) First() (time.Time, bool) {
	if len(t.doses) == 0 {
		return time.Time{}, false
	}
	return t.doses[0].ConsumedAt, true
}

// PeakOf returns the highest sample and its first occurrence. ok is false for
// an empty series.
func PeakOf(samples []model.Sample) (peak model.Sample, ok bool) {
	for i, s := range samples {
		if i == 0 || s.Value > peak.Value {
			peak = s
		}
	}
	return peak, len(samples) > 0
}
