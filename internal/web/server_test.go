package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/picorelay/relayd/internal/gpio"
	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/security"
	"github.com/picorelay/relayd/internal/status"
)

var errDriverBroken = errors.New("driver broken")

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type testEnv struct {
	server *Server
	driver *gpio.FakeDriver
	clock  *testClock
}

func newTestEnv(t *testing.T, mutate func(*Config, *security.Config)) *testEnv {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	driver := gpio.NewFakeDriver()

	ctrl, err := relay.New(driver, relay.Timers{
		SafetyTimeout:     300 * time.Second,
		MaxOnTime:         86400 * time.Second,
		MinSwitchInterval: time.Second,
	}, relay.Counters{}, clock.t)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	secCfg := security.Config{
		Username:         "admin",
		PasswordHash:     hash,
		SessionLifetime:  30 * time.Minute,
		CSRFLifetime:     time.Hour,
		MaxSessions:      4,
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		RateLimit:        100,
		RateWindow:       time.Minute,
		MaxClients:       8,
	}

	webCfg := Config{
		Addr:            ":0",
		MaxConnections:  5,
		RequestTimeout:  10 * time.Second,
		MaxRequestBytes: 512,
		OpenStatus:      true,
		SessionLifetime: 30 * time.Minute,
	}
	if mutate != nil {
		mutate(&webCfg, &secCfg)
	}

	mgr, err := security.NewManager(secCfg)
	if err != nil {
		t.Fatalf("security.NewManager: %v", err)
	}

	tracker := status.NewTracker(clock.t, status.Config{
		DeviceName: "test-relay",
		Pin:        18,
		ActiveLow:  true,
	})
	tracker.Update(ctrl.Status(clock.t), 0)

	return &testEnv{
		server: New(webCfg, ctrl, mgr, tracker, clock.now),
		driver: driver,
		clock:  clock,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, prep func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "10.0.0.1:5555"
	if prep != nil {
		prep(req)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// login authenticates and returns the session cookie plus CSRF token.
func (e *testEnv) login(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/login", `{"username":"admin","password":"secret123"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("login response: %v", err)
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c, resp.CSRFToken
		}
	}
	t.Fatal("login did not set session cookie")
	return nil, ""
}

func authed(cookie *http.Cookie, csrf string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(cookie)
		if csrf != "" {
			r.Header.Set(csrfHeader, csrf)
		}
	}
}

func TestStatusOpenWhenConfigured(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"state"`) {
		t.Errorf("status body missing relay state: %s", rec.Body.String())
	}
}

func TestStatusRequiresSessionWhenClosed(t *testing.T) {
	e := newTestEnv(t, func(w *Config, _ *security.Config) { w.OpenStatus = false })

	rec := e.do(t, http.MethodGet, "/api/status", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status: got %d, want 401", rec.Code)
	}

	cookie, _ := e.login(t)
	rec = e.do(t, http.MethodGet, "/api/status", "", authed(cookie, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status: got %d", rec.Code)
	}
}

func TestLoginSetsHttpOnlyCookie(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)

	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Error("session cookie must be SameSite=Strict")
	}
	if csrf == "" {
		t.Error("login must return a CSRF token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/login", `{"username":"admin","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("error body leaks detail: %s", rec.Body.String())
	}
}

func TestRelaySetRequiresSession(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
	if e.driver.Level {
		t.Error("relay must not switch without a session")
	}
}

func TestRelaySetRequiresCSRF(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, _ := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, "forged"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", rec.Code)
	}
	if e.driver.Level {
		t.Error("relay must not switch on CSRF failure")
	}
}

func TestRelaySetTurnsOn(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, csrf))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp relayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.State != "ON" || !resp.Changed {
		t.Errorf("response: %+v", resp)
	}
	if resp.CSRFToken == "" || resp.CSRFToken == csrf {
		t.Error("response must carry a rotated CSRF token")
	}
	if !e.driver.Level {
		t.Error("driver should be ON")
	}
}

func TestCSRFTokenIsSingleUse(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	if rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, csrf)); rec.Code != http.StatusOK {
		t.Fatalf("first use: got %d", rec.Code)
	}

	e.clock.advance(2 * time.Second)
	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"off"}`, authed(cookie, csrf))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("replayed token: got %d, want 403", rec.Code)
	}
	if !e.driver.Level {
		t.Error("replay must not switch the relay")
	}
}

func TestRelaySetRejectsUnknownCommand(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"explode"}`, authed(cookie, csrf))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "explode") {
		t.Errorf("error body echoes input: %s", rec.Body.String())
	}
}

func TestRelaySetAcceptsBooleanVocabulary(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"true"}`, authed(cookie, csrf))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rec.Code, rec.Body.String())
	}
	if !e.driver.Level {
		t.Error("\"true\" should switch the relay on")
	}
}

func TestRelayToggle(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	rec := e.do(t, http.MethodPost, "/api/relay/toggle", "", authed(cookie, csrf))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rec.Code, rec.Body.String())
	}
	if !e.driver.Level {
		t.Error("toggle from OFF should be ON")
	}
}

func TestRapidSwitchMapsToConflict(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, csrf))
	if rec.Code != http.StatusOK {
		t.Fatalf("first switch: got %d", rec.Code)
	}
	var resp relayResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	// No clock advance: second switch inside the min interval.
	rec = e.do(t, http.MethodPost, "/api/relay/set", `{"state":"off"}`, authed(cookie, resp.CSRFToken))
	if rec.Code != http.StatusConflict {
		t.Fatalf("rapid switch: got %d, want 409", rec.Code)
	}
}

func TestHardwareFaultMapsTo500(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	e.driver.WriteError = errDriverBroken
	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, csrf))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rec.Code)
	}
}

func TestRateLimitMapsTo429(t *testing.T) {
	e := newTestEnv(t, func(_ *Config, s *security.Config) { s.RateLimit = 3 })

	for i := 0; i < 3; i++ {
		if rec := e.do(t, http.MethodGet, "/api/status", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i+1, rec.Code)
		}
	}
	rec := e.do(t, http.MethodGet, "/api/status", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
}

func TestUnmatchedPathRateLimited(t *testing.T) {
	e := newTestEnv(t, func(_ *Config, s *security.Config) { s.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		if rec := e.do(t, http.MethodGet, "/nonexistent", "", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: got %d, want 404", i+1, rec.Code)
		}
	}
	rec := e.do(t, http.MethodGet, "/nonexistent", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unknown path must count toward the limit: got %d, want 429", rec.Code)
	}
}

func TestWrongMethodRateLimited(t *testing.T) {
	e := newTestEnv(t, func(_ *Config, s *security.Config) { s.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		if rec := e.do(t, http.MethodGet, "/api/relay/set", "", nil); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("request %d: got %d, want 405", i+1, rec.Code)
		}
	}
	rec := e.do(t, http.MethodGet, "/api/relay/set", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("wrong method must count toward the limit: got %d, want 429", rec.Code)
	}
}

func TestRejectedBodyCarriesRotatedCSRF(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"explode"}`, authed(cookie, csrf))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.CSRFToken == "" || resp.CSRFToken == csrf {
		t.Fatal("rejected body must carry the rotated CSRF token")
	}

	// The replacement token is usable.
	rec = e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, resp.CSRFToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("follow-up with rotated token: got %d, body %s", rec.Code, rec.Body.String())
	}
	if !e.driver.Level {
		t.Error("driver should be ON")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	e := newTestEnv(t, func(w *Config, _ *security.Config) { w.MaxRequestBytes = 64 })
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	body := `{"state":"` + strings.Repeat("x", 200) + `"}`
	rec := e.do(t, http.MethodPost, "/api/relay/set", body, authed(cookie, csrf))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d, want 413", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.CSRFToken == "" {
		t.Error("413 after CSRF validation must carry the rotated token")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/relay/set", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got %d, want 405", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)

	if rec := e.do(t, http.MethodPost, "/api/logout", "", authed(cookie, "")); rec.Code != http.StatusOK {
		t.Fatalf("logout: got %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, csrf))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("after logout: got %d, want 401", rec.Code)
	}
}

func TestSessionOwnerPinnedToIP(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, func(r *http.Request) {
		authed(cookie, csrf)(r)
		r.RemoteAddr = "10.9.9.9:4444"
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("hijacked session: got %d, want 401", rec.Code)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/status", "", nil)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}

	// Unmatched paths get the headers too.
	rec = e.do(t, http.MethodGet, "/nonexistent", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("404 missing security headers: X-Content-Type-Options = %q", got)
	}
}

func TestIndexPageRenders(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "test-relay") {
		t.Error("page missing device name")
	}
	if !strings.Contains(body, "OFF") {
		t.Error("page missing relay state")
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie, csrf := e.login(t)
	e.clock.advance(2 * time.Second)

	e.do(t, http.MethodPost, "/api/relay/set", `{"state":"on"}`, authed(cookie, csrf))
	e.clock.advance(10 * time.Second)

	rec := e.do(t, http.MethodGet, "/api/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}

	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.PowerOnCount != 1 {
		t.Errorf("power on count: got %d, want 1", resp.PowerOnCount)
	}
	if resp.RuntimeSeconds != 10 {
		t.Errorf("runtime should include open session: got %d, want 10", resp.RuntimeSeconds)
	}
}
