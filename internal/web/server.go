// Package web provides the HTTP control surface for the relayd daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/security"
	"github.com/picorelay/relayd/internal/status"
)

// sessionCookie is the name of the session token cookie.
const sessionCookie = "relay_session"

// csrfHeader carries the per-session CSRF token on state-changing requests.
const csrfHeader = "X-CSRF-Token"

// Config holds the listener and gating settings for the server.
type Config struct {
	Addr            string
	MaxConnections  int
	RequestTimeout  time.Duration
	MaxRequestBytes int64
	// OpenStatus allows unauthenticated reads of /api/status and /api/stats.
	OpenStatus      bool
	SessionLifetime time.Duration
}

// Server gates relay operations behind the security manager.
type Server struct {
	httpServer *http.Server
	cfg        Config
	controller *relay.Controller
	security   *security.Manager
	tracker    *status.Tracker

	// onTransition is called for every user-driven relay transition so
	// the daemon can publish and persist it. May be nil.
	onTransition func(relay.Transition)

	now func() time.Time
}

// New creates a Server wiring the relay controller behind the security
// manager. now is injectable for tests.
func New(cfg Config, ctrl *relay.Controller, sec *security.Manager, tracker *status.Tracker, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:        cfg,
		controller: ctrl,
		security:   sec,
		tracker:    tracker,
		now:        now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/relay/set", s.handleRelaySet).Methods(http.MethodPost)
	r.HandleFunc("/api/relay/toggle", s.handleRelayToggle).Methods(http.MethodPost)

	// The middleware wraps the router itself, not the routes: mux skips
	// router middleware for unmatched paths and method mismatches, and
	// the rate limit has to count those requests too.
	root := s.securityHeadersMiddleware(s.rateLimitMiddleware(r))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      root,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  2 * cfg.RequestTimeout,
	}
	return s
}

// SetTransitionHook registers the callback invoked after each
// user-driven transition. Must be called before serving.
func (s *Server) SetTransitionHook(fn func(relay.Transition)) {
	s.onTransition = fn
}

// ListenAndServe starts listening with the configured concurrent
// connection cap. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tracker.IncRequests()
		if err := s.security.CheckRateLimit(clientIP(r), s.now()); err != nil {
			w.Header().Set("Retry-After", "60")
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the requesting address, preferring proxy headers so
// a reverse proxy in front of the device does not collapse all clients
// into one identity.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
