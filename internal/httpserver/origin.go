package httpserver

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/parley/parley/internal/origin"
)

// originGate rejects browser requests from disallowed origins before they
// reach any handler. CORS headers only instruct the browser; the gate is the
// server-side enforcement, and without it the WebSocket endpoint would
// accept cross-origin upgrades (browsers never preflight those).
func (s *Server) originGate() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Origin"))
			if header == "" {
				// Non-browser clients don't send Origin.
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := origin.Permitted(header, r.Host, s.cfg.AllowedOrigins); !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware negotiates CORS for browser clients running the frontend on
// a separate origin. The allow decision delegates to the same policy as the
// gate, so the two can never disagree.
func (s *Server) corsMiddleware() Middleware {
	c := cors.New(cors.Options{
		AllowOriginRequestFunc: func(r *http.Request, o string) bool {
			_, ok := origin.Permitted(o, r.Host, s.cfg.AllowedOrigins)
			return ok
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
