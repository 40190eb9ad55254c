package scenario

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/ranking"
	"github.com/okian/promille/internal/domain/types"
)

// PersonReport is the offline evaluation of one person.
type PersonReport struct {
	PersonID string
	Name     string
	Summary  bac.Summary
	Curve    []model.Sample
}

// Report is the offline evaluation of a whole scenario.
type Report struct {
	Name   string
	At     time.Time
	People []PersonReport
	Board  []types.Entry
}

// Evaluate runs every person of sc through engine.
func Evaluate(engine *bac.Engine, sc *Scenario) (*Report, error) {
	at := sc.At()
	rep := &Report{Name: sc.Name, At: at, People: make([]PersonReport, 0, len(sc.People))}
	readings := make([]model.Reading, 0, len(sc.People))

	for _, p := range sc.People {
		t, err := engine.Prepare(p.Profile(), sc.Events(p))
		if err != nil {
			return nil, fmt.Errorf("person %s: %w", p.ID, err)
		}
		sum := engine.SummarizeTimeline(t, at)
		rep.People = append(rep.People, PersonReport{
			PersonID: p.ID,
			Name:     p.Name,
			Summary:  sum,
			Curve:    t.Series(sc.StartTime(), sc.EndTime(), sc.Step()),
		})
		readings = append(readings, model.Reading{PersonID: p.ID, Value: sum.Current})
	}
	rep.Board = ranking.Rank(model.Snapshot{At: at, Readings: readings})
	return rep, nil
}

// Person returns the report for personID.
func (r *Report) Person(personID string) (PersonReport, bool) {
	for _, p := range r.People {
		if p.PersonID == personID {
			return p, true
		}
	}
	return PersonReport{}, false
}

// Write prints the summaries, the leaderboard and the curves as aligned tables.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "scenario %q at %s\n\n", r.Name, r.At.Format(time.RFC3339))
	fmt.Fprintln(tw, "PERSON\tPROMILLE\tPEAK\tPEAK AT\tTO PEAK\tTO SOBER\tLEVEL\tOVER LIMIT")
	for _, p := range r.People {
		s := p.Summary
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%s\t%s\t%s\t%s\t%t\n",
			p.PersonID, s.Current, s.Peak.Value, s.Peak.At.Format("15:04"),
			s.TimeToPeak.Round(time.Minute), s.TimeToSober.Round(time.Minute), s.Level, s.OverLimit)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RANK\tPERSON\tNAME\tPROMILLE")
	names := make(map[string]string, len(r.People))
	for _, p := range r.People {
		names[p.PersonID] = p.Name
	}
	for _, e := range r.Board {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\n", e.Rank, e.PersonID, names[e.PersonID], e.Value)
	}

	fmt.Fprintln(tw)
	fmt.Fprint(tw, "TIME")
	axis := 0
	for _, p := range r.People {
		fmt.Fprintf(tw, "\t%s", p.PersonID)
		axis = max(axis, len(p.Curve))
	}
	fmt.Fprintln(tw)
	for i := 0; i < axis; i++ {
		var at time.Time
		for _, p := range r.People {
			if i < len(p.Curve) {
				at = p.Curve[i].At
				break
			}
		}
		fmt.Fprint(tw, at.Format("15:04"))
		for _, p := range r.People {
			if i < len(p.Curve) {
				fmt.Fprintf(tw, "\t%.4f", p.Curve[i].Value)
			} else {
				fmt.Fprint(tw, "\t-")
			}
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
