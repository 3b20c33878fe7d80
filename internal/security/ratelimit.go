package security

import "time"

// rateWindow is a fixed-window request counter for one client identity.
// Fixed (not sliding) windows were chosen deliberately: see the design
// notes. Lockout counters are kept separate in loginAttempt.
type rateWindow struct {
	windowStart time.Time
	count       int
}

// CheckRateLimit counts the request against the identity's current
// window and fails with ErrRateLimited beyond the ceiling. Rejected
// requests still count, so sustained abuse keeps the window saturated.
func (m *Manager) CheckRateLimit(identity string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.limits[identity]
	if !ok {
		if len(m.limits) >= m.cfg.MaxClients {
			m.evictOldestWindow(now)
		}
		w = &rateWindow{windowStart: now}
		m.limits[identity] = w
	}

	if now.Sub(w.windowStart) >= m.cfg.RateWindow {
		w.windowStart = now
		w.count = 0
	}

	w.count++
	if w.count > m.cfg.RateLimit {
		return ErrRateLimited
	}
	return nil
}

// evictOldestWindow prefers an expired window, falling back to the one
// with the earliest start. Caller holds the lock.
func (m *Manager) evictOldestWindow(now time.Time) {
	var oldest string
	var oldestAt time.Time
	for id, w := range m.limits {
		if now.Sub(w.windowStart) >= m.cfg.RateWindow {
			delete(m.limits, id)
			return
		}
		if oldest == "" || w.windowStart.Before(oldestAt) {
			oldest = id
			oldestAt = w.windowStart
		}
	}
	if oldest != "" {
		delete(m.limits, oldest)
	}
}
