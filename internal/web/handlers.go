package web

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/security"
	"github.com/picorelay/relayd/internal/status"
)

// loginRequest is the POST /api/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse returns the CSRF token for the new session. The session
// token itself travels only in the HttpOnly cookie.
type loginResponse struct {
	CSRFToken string `json:"csrf_token"`
	ExpiresAt string `json:"expires_at"`
}

// relayRequest is the POST /api/relay/set body. State accepts a JSON
// bool or the boolean-like command vocabulary ("on", "off", "1", ...).
type relayRequest struct {
	State any `json:"state"`
}

// rawCommand normalizes the state field to a string for sanitation.
func (r relayRequest) rawCommand() string {
	switch v := r.State.(type) {
	case bool:
		if v {
			return "on"
		}
		return "off"
	case string:
		return v
	default:
		return ""
	}
}

// relayResponse reports the relay state after a control operation and
// carries the rotated CSRF token for the next request.
type relayResponse struct {
	State     string `json:"state"`
	Changed   bool   `json:"changed"`
	CSRFToken string `json:"csrf_token"`
}

// statsResponse is the GET /api/stats body.
type statsResponse struct {
	Cycles         int64  `json:"cycles"`
	RuntimeSeconds int64  `json:"runtime_seconds"`
	PowerOnCount   int64  `json:"power_on_count"`
	AverageSeconds int64  `json:"average_session_seconds"`
	LastOn         string `json:"last_on,omitempty"`
	LastOff        string `json:"last_off,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRead(w, r) {
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRead(w, r) {
		return
	}

	st := s.controller.Status(s.now())
	resp := statsResponse{
		Cycles:         st.Counters.Cycles,
		RuntimeSeconds: int64(st.RuntimeWithSession / time.Second),
		PowerOnCount:   st.Counters.PowerOnCount,
		AverageSeconds: int64(st.AverageSession / time.Second),
	}
	if !st.Counters.LastOn.IsZero() {
		resp.LastOn = st.Counters.LastOn.UTC().Format(time.RFC3339)
	}
	if !st.Counters.LastOff.IsZero() {
		resp.LastOff = st.Counters.LastOff.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// authorizeRead gates status endpoints behind a session unless the
// configuration opens them.
func (s *Server) authorizeRead(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.OpenStatus {
		return true
	}
	if _, err := s.validateSession(r); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ip := clientIP(r)
	sess, csrf, err := s.security.Authenticate(req.Username, req.Password, ip, s.now())
	if err != nil {
		log.Printf("web: login rejected for %s: %v", ip, err)
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionLifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		CSRFToken: csrf,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil {
		s.security.Logout(cookie.Value)
	}
	// Clear the cookie either way.
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleRelaySet(w http.ResponseWriter, r *http.Request) {
	csrf, err := s.authorizeWrite(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// From here on the CSRF token is consumed, so error replies carry
	// the replacement.
	var req relayRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeErrorWithToken(w, err, csrf)
		return
	}

	command, err := security.Sanitize(security.FieldRelayCommand, req.rawCommand())
	if err != nil {
		log.Printf("web: rejected relay command from %s: %v", clientIP(r), err)
		writeErrorWithToken(w, err, csrf)
		return
	}

	s.applyCommand(w, r, command, csrf)
}

func (s *Server) handleRelayToggle(w http.ResponseWriter, r *http.Request) {
	csrf, err := s.authorizeWrite(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.applyCommand(w, r, "toggle", csrf)
}

// applyCommand runs the sanitized command against the controller and
// reports the resulting state.
func (s *Server) applyCommand(w http.ResponseWriter, r *http.Request, command, csrf string) {
	now := s.now()

	var tr *relay.Transition
	var err error
	switch command {
	case "on":
		tr, err = s.controller.Set(relay.StateOn, relay.ReasonUser, now)
	case "off":
		tr, err = s.controller.Set(relay.StateOff, relay.ReasonUser, now)
	case "toggle":
		tr, err = s.controller.Toggle(relay.ReasonUser, now)
	}
	if err != nil {
		log.Printf("web: relay %s from %s failed: %v", command, clientIP(r), err)
		writeErrorWithToken(w, err, csrf)
		return
	}

	if tr != nil {
		log.Printf("web: relay %s -> %s (%s) by %s", tr.From, tr.To, command, clientIP(r))
		if s.onTransition != nil {
			s.onTransition(*tr)
		}
	}

	writeJSON(w, http.StatusOK, relayResponse{
		State:     string(s.controller.Status(now).State),
		Changed:   tr != nil,
		CSRFToken: csrf,
	})
}

// validateSession resolves the session cookie against the manager and
// returns the session token.
func (s *Server) validateSession(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", security.ErrSessionExpired
	}
	if err := s.security.ValidateSession(cookie.Value, clientIP(r), s.now()); err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// authorizeWrite enforces session plus CSRF for state-changing requests
// and returns the rotated CSRF token for the response.
func (s *Server) authorizeWrite(r *http.Request) (string, error) {
	token, err := s.validateSession(r)
	if err != nil {
		return "", err
	}
	return s.security.ValidateCSRF(token, r.Header.Get(csrfHeader), s.now())
}

// decodeBody parses a JSON body under the configured size cap.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
