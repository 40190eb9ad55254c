package api

import (
	"github.com/gorilla/mux"

	"github.com/okian/promille/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithRateLimit limits write requests per client. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = newRateLimiter(rps, burst)
		}
	}
}

// WithHub shares a live leaderboard hub with the server.
func WithHub(h *Hub) Option {
	return func(s *Server) {
		if h != nil {
			s.hub = h
		}
	}
}

// WithMaxLeaderboardLimit caps the limit query parameter.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRoutes mounts additional routes, such as the API docs, next to the API.
func WithRoutes(register ...func(*mux.Router)) Option {
	return func(s *Server) {
		for _, fn := range register {
			if fn != nil {
				s.extraRoutes = append(s.extraRoutes, fn)
			}
		}
	}
}
