package scenario_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/promille/internal/adapters/http/api"
	service "github.com/okian/promille/internal/app"
	"github.com/okian/promille/internal/domain/bac"
	"github.com/okian/promille/internal/scenario"
	"github.com/okian/promille/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const fridayYAML = `
name: friday
start: "2024-06-01T20:00:00Z"
hours: 4
step_minutes: 10
at_minutes: 20
people:
  - id: bob
    name: Bob
    weight_kg: 80
    sex: male
    drinks:
      - minute: 0
        volume_ml: 500
        strength_pct: 5
  - id: cat
    name: Cat
    weight_kg: 60
    sex: Female
    drinks:
      - minute: 90
        volume_ml: 40
        strength_pct: 40
        rapid: true
  - id: dan
    weight_kg: 90
    sex: male
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a scenario file", t, func() {
		sc, err := scenario.Load(writeScenario(t, fridayYAML))
		So(err, ShouldBeNil)

		Convey("Then the session window is resolved", func() {
			start := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
			So(sc.Name, ShouldEqual, "friday")
			So(sc.StartTime(), ShouldEqual, start)
			So(sc.EndTime(), ShouldEqual, start.Add(4*time.Hour))
			So(sc.At(), ShouldEqual, start.Add(20*time.Minute))
			So(sc.Step(), ShouldEqual, 10*time.Minute)
		})

		Convey("Then people and drinks are decoded", func() {
			So(sc.People, ShouldHaveLength, 3)
			So(string(sc.People[1].Profile().Sex), ShouldEqual, "female")

			events := sc.Events(sc.People[1])
			So(events, ShouldHaveLength, 1)
			So(events[0].ID, ShouldEqual, "cat-1")
			So(events[0].ConsumedAt, ShouldEqual, sc.StartTime().Add(90*time.Minute))
			So(events[0].IsRapid(), ShouldBeTrue)
			So(events[0].WithFood, ShouldBeNil)
			So(sc.Events(sc.People[2]), ShouldBeEmpty)
		})
	})

	Convey("Given broken scenarios", t, func() {
		_, err := scenario.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		So(errors.Is(err, scenario.ErrLoadScenario), ShouldBeTrue)

		bad := []string{
			"name: empty\n",
			"start: \"tonight\"\npeople:\n  - id: a\n",
			"people:\n  - id: a\n  - id: a\n",
			"people:\n  - name: nobody\n",
			"hours: 1\nat_minutes: 90\npeople:\n  - id: a\n",
		}
		for _, content := range bad {
			_, err := scenario.Load(writeScenario(t, content))
			So(errors.Is(err, scenario.ErrInvalidScenario), ShouldBeTrue)
		}
	})
}

func TestEvaluate(t *testing.T) {
	Convey("Given the friday scenario", t, func() {
		sc, err := scenario.Load(writeScenario(t, fridayYAML))
		So(err, ShouldBeNil)

		rep, err := scenario.Evaluate(bac.NewEngine(), sc)
		So(err, ShouldBeNil)

		Convey("Then summaries are taken at at_minutes", func() {
			bob, ok := rep.Person("bob")
			So(ok, ShouldBeTrue)
			So(bob.Summary.Current, ShouldEqual, 0.3155)
			So(bob.Summary.Level, ShouldEqual, bac.LevelMild)

			cat, _ := rep.Person("cat")
			So(cat.Summary.Current, ShouldEqual, 0.0)
			So(cat.Curve, ShouldHaveLength, 25)

			dan, _ := rep.Person("dan")
			So(dan.Curve, ShouldBeNil)

			_, ok = rep.Person("eve")
			So(ok, ShouldBeFalse)
		})

		Convey("Then the leaderboard ranks the readings", func() {
			So(rep.Board, ShouldHaveLength, 3)
			So(rep.Board[0].PersonID, ShouldEqual, "bob")
			So(rep.Board[0].Rank, ShouldEqual, 1)
			So(rep.Board[2].Rank, ShouldEqual, 3)
		})

		Convey("Then the report renders as tables", func() {
			var buf bytes.Buffer
			So(rep.Write(&buf), ShouldBeNil)
			out := buf.String()
			So(out, ShouldContainSubstring, `scenario "friday"`)
			So(out, ShouldContainSubstring, "RANK")
			So(out, ShouldContainSubstring, "0.3155")
			So(out, ShouldContainSubstring, "20:20")
		})
	})

	Convey("Given a person with an impossible profile", t, func() {
		sc, err := scenario.Load(writeScenario(t, "people:\n  - id: a\n    weight_kg: 0\n    sex: male\n"))
		So(err, ShouldBeNil)
		_, err = scenario.Evaluate(bac.NewEngine(), sc)
		So(errors.Is(err, bac.ErrInvalidProfile), ShouldBeTrue)
	})
}

func TestReplay(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(64))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		srv := httptest.NewServer(api.NewServer(svc, svc).Handler())
		defer srv.Close()

		sc, err := scenario.Load(writeScenario(t, fridayYAML))
		So(err, ShouldBeNil)
		rep, err := scenario.Evaluate(bac.NewEngine(), sc)
		So(err, ShouldBeNil)

		Convey("Then replaying the scenario matches the offline evaluation", func() {
			comps, err := scenario.NewReplayer(srv.URL, scenario.WithSettleTimeout(2*time.Second)).Replay(ctx, sc, rep)
			So(err, ShouldBeNil)
			So(comps, ShouldHaveLength, 3)
			for _, c := range comps {
				So(c.Agrees(1e-4), ShouldBeTrue)
			}
		})

		Convey("Then a diverging local model is reported", func() {
			params := bac.DefaultParams()
			params.EliminationRatePerHour = 0.3
			sc.AtMinutes = 120
			other, err := scenario.Evaluate(bac.NewEngine(bac.WithParams(params)), sc)
			So(err, ShouldBeNil)

			_, err = scenario.NewReplayer(srv.URL, scenario.WithSettleTimeout(200*time.Millisecond)).Replay(ctx, sc, other)
			So(errors.Is(err, scenario.ErrMismatch), ShouldBeTrue)
		})

		Convey("Then an unreachable service is a replay error", func() {
			_, err := scenario.NewReplayer("http://127.0.0.1:1").Replay(ctx, sc, rep)
			So(errors.Is(err, scenario.ErrReplay), ShouldBeTrue)
		})
	})
}
