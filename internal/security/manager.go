package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the security limits. Immutable after boot.
type Config struct {
	Username     string
	PasswordHash []byte // bcrypt hash

	SessionLifetime time.Duration
	CSRFLifetime    time.Duration
	MaxSessions     int

	MaxLoginAttempts int
	LockoutDuration  time.Duration

	RateLimit  int // requests per window per identity
	RateWindow time.Duration

	// MaxClients bounds the rate-limit and login-attempt tables.
	MaxClients int
}

// Session is an authenticated browser session bound to a client IP.
// The embedded CSRF token is single-use: it rotates on every successful
// validation.
type Session struct {
	Token     string
	OwnerIP   string
	CreatedAt time.Time
	LastSeen  time.Time
	ExpiresAt time.Time

	csrf        string
	csrfExpires time.Time
}

type loginAttempt struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// Manager owns all security state. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	limits   map[string]*rateWindow
	attempts map[string]*loginAttempt
}

// NewManager creates a Manager with empty tables.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Username == "" || len(cfg.PasswordHash) == 0 {
		return nil, fmt.Errorf("security: credentials not configured")
	}
	if cfg.MaxSessions <= 0 || cfg.MaxClients <= 0 {
		return nil, fmt.Errorf("security: table capacities must be positive")
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session, cfg.MaxSessions),
		limits:   make(map[string]*rateWindow, cfg.MaxClients),
		attempts: make(map[string]*loginAttempt, cfg.MaxClients),
	}, nil
}

// HashPassword hashes a configured plaintext password once at boot.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Authenticate checks credentials for the client identity. On success it
// creates a session (evicting the oldest-expiring one if the table is
// full) and returns it together with a fresh CSRF token.
func (m *Manager) Authenticate(username, password, ip string, now time.Time) (Session, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.attempts[ip]; ok && now.Before(a.lockedUntil) {
		return Session{}, "", ErrLockedOut
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.cfg.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword(m.cfg.PasswordHash, []byte(password)) == nil
	if !userOK || !passOK {
		m.recordFailure(ip, now)
		return Session{}, "", ErrInvalidCredentials
	}

	delete(m.attempts, ip)

	s := &Session{
		Token:       uuid.New().String(),
		OwnerIP:     ip,
		CreatedAt:   now,
		LastSeen:    now,
		ExpiresAt:   now.Add(m.cfg.SessionLifetime),
		csrf:        newCSRFToken(),
		csrfExpires: now.Add(m.cfg.CSRFLifetime),
	}

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestSession()
	}
	m.sessions[s.Token] = s

	return *s, s.csrf, nil
}

// ValidateSession checks the token and refreshes its expiry. An unknown
// or expired token fails with ErrSessionExpired; a token presented from
// a different IP fails with ErrOwnerMismatch and is not refreshed.
func (m *Manager) ValidateSession(token, ip string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrSessionExpired
	}
	if now.After(s.ExpiresAt) {
		delete(m.sessions, token)
		return ErrSessionExpired
	}
	if s.OwnerIP != ip {
		return ErrOwnerMismatch
	}

	s.LastSeen = now
	s.ExpiresAt = now.Add(m.cfg.SessionLifetime)
	return nil
}

// ValidateCSRF consumes the session's CSRF token. On success the token
// rotates and the replacement is returned; presenting a consumed, stale
// or wrong token fails with ErrCSRFMismatch.
func (m *Manager) ValidateCSRF(sessionToken, supplied string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionToken]
	if !ok || now.After(s.ExpiresAt) {
		return "", ErrSessionExpired
	}
	if supplied == "" || now.After(s.csrfExpires) {
		return "", ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.csrf)) != 1 {
		return "", ErrCSRFMismatch
	}

	s.csrf = newCSRFToken()
	s.csrfExpires = now.Add(m.cfg.CSRFLifetime)
	return s.csrf, nil
}

// Logout destroys the session. Reports whether it existed.
func (m *Manager) Logout(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[token]; !ok {
		return false
	}
	delete(m.sessions, token)
	return true
}

// Sweep evicts expired sessions, rate-limit windows and stale login
// attempt records. Called periodically from the run loop; returns the
// number of entries removed for logging.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, token)
			removed++
		}
	}
	for id, w := range m.limits {
		if now.Sub(w.windowStart) >= m.cfg.RateWindow {
			delete(m.limits, id)
			removed++
		}
	}
	for id, a := range m.attempts {
		if now.After(a.lockedUntil) && now.Sub(a.lastFailure) >= m.cfg.LockoutDuration {
			delete(m.attempts, id)
			removed++
		}
	}
	return removed
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// recordFailure counts a failed login and locks the identity once the
// limit is reached. Caller holds the lock.
func (m *Manager) recordFailure(ip string, now time.Time) {
	a, ok := m.attempts[ip]
	if !ok {
		if len(m.attempts) >= m.cfg.MaxClients {
			m.evictOldestAttempt()
		}
		a = &loginAttempt{}
		m.attempts[ip] = a
	}

	a.failures++
	a.lastFailure = now
	if a.failures >= m.cfg.MaxLoginAttempts {
		a.lockedUntil = now.Add(m.cfg.LockoutDuration)
	}
}

// evictOldestSession removes the session with the earliest expiry.
// Caller holds the lock.
func (m *Manager) evictOldestSession() {
	var oldest string
	var oldestAt time.Time
	for token, s := range m.sessions {
		if oldest == "" || s.ExpiresAt.Before(oldestAt) {
			oldest = token
			oldestAt = s.ExpiresAt
		}
	}
	if oldest != "" {
		delete(m.sessions, oldest)
	}
}

// evictOldestAttempt removes the record with the earliest last failure.
// Caller holds the lock.
func (m *Manager) evictOldestAttempt() {
	var oldest string
	var oldestAt time.Time
	for id, a := range m.attempts {
		if oldest == "" || a.lastFailure.Before(oldestAt) {
			oldest = id
			oldestAt = a.lastFailure
		}
	}
	if oldest != "" {
		delete(m.attempts, oldest)
	}
}

// newCSRFToken returns 32 hex characters of CSPRNG output.
func newCSRFToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("security: csrf token: %v", err))
	}
	return hex.EncodeToString(buf)
}
