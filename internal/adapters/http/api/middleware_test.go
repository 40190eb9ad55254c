package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	repository "github.com/okian/promille/internal/adapters/repository"
	service "github.com/okian/promille/internal/app"
	"github.com/okian/promille/internal/domain/bac"
)

func TestRateLimiterSweep(t *testing.T) {
	convey.Convey("Given a limiter with a controllable clock", t, func() {
		now := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
		l := newRateLimiter(1, 1)
		l.now = func() time.Time { return now }
		l.lastSweep = now

		convey.So(l.get("a").Allow(), convey.ShouldBeTrue)
		convey.So(l.get("a").Allow(), convey.ShouldBeFalse)
		l.get("b")
		convey.So(l.size(), convey.ShouldEqual, 2)

		convey.Convey("When clients stay idle past the ttl", func() {
			now = now.Add(visitorIdleTTL + visitorSweepInterval + time.Second)
			l.get("c")
			convey.So(l.size(), convey.ShouldEqual, 1)
		})

		convey.Convey("When a client keeps coming back it survives sweeps", func() {
			now = now.Add(2 * time.Minute)
			l.get("a")
			now = now.Add(2 * time.Minute)
			l.get("c")
			convey.So(l.size(), convey.ShouldEqual, 2)
		})
	})
}

func TestClientIP(t *testing.T) {
	convey.Convey("Given requests from different hops", t, func() {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "198.51.100.4:5555"
		convey.So(clientIP(r), convey.ShouldEqual, "198.51.100.4")

		r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
		convey.So(clientIP(r), convey.ShouldEqual, "203.0.113.9")

		r = httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "pipe"
		convey.So(clientIP(r), convey.ShouldEqual, "pipe")
	})
}

func TestErrorKinds(t *testing.T) {
	convey.Convey("Given wrapped API errors", t, func() {
		cause := errors.New("unexpected EOF")
		err := WrapKind("api.join", ErrBadRequest, cause)

		convey.So(errors.Is(err, ErrBadRequest), convey.ShouldBeTrue)
		convey.So(errors.Is(err, cause), convey.ShouldBeTrue)
		convey.So(err.Error(), convey.ShouldEqual, "api.join: bad request: unexpected EOF")
		convey.So(NewKind("api.rank", ErrNotFound).Error(), convey.ShouldEqual, "api.rank: not found")
		convey.So(Wrap("api.x", nil), convey.ShouldBeNil)

		status, code := classify(Wrap("api.get_session", fmt.Errorf("loading: %w", repository.ErrNotFound)))
		convey.So(status, convey.ShouldEqual, http.StatusNotFound)
		convey.So(code, convey.ShouldEqual, "not_found")

		status, _ = classify(Wrap("api.create_session", service.ErrInvalidSession))
		convey.So(status, convey.ShouldEqual, http.StatusBadRequest)

		status, code = classify(fmt.Errorf("%w: weight", bac.ErrInvalidProfile))
		convey.So(status, convey.ShouldEqual, http.StatusUnprocessableEntity)
		convey.So(code, convey.ShouldEqual, "invalid_profile")
	})
}
