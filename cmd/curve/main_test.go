package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/promille/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestRun(t *testing.T) {
	convey.Convey("Given a scenario on disk", t, func() {
		t.Setenv("PROMILLE_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
		path := filepath.Join(t.TempDir(), "night.yaml")
		content := "name: night\nstart: \"2024-06-01T20:00:00Z\"\nhours: 2\nat_minutes: 20\npeople:\n  - id: bob\n    weight_kg: 80\n    sex: male\n    drinks:\n      - minute: 0\n        volume_ml: 500\n        strength_pct: 5\n"
		convey.So(os.WriteFile(path, []byte(content), 0o600), convey.ShouldBeNil)

		convey.Convey("Then the offline report is printed", func() {
			var buf bytes.Buffer
			convey.So(run(context.Background(), path, "", &buf), convey.ShouldBeNil)
			convey.So(buf.String(), convey.ShouldContainSubstring, "0.3155")
			convey.So(buf.String(), convey.ShouldContainSubstring, "mild")
		})

		convey.Convey("Then a missing scenario fails", func() {
			var buf bytes.Buffer
			err := run(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), "", &buf)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then invalid engine tuning fails before evaluating", func() {
			t.Setenv("PROMILLE_ELIMINATION_RATE_PER_HOUR", "-1")
			var buf bytes.Buffer
			convey.So(run(context.Background(), path, "", &buf), convey.ShouldNotBeNil)
			convey.So(buf.Len(), convey.ShouldEqual, 0)
		})
	})
}
