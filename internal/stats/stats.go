// Package stats persists relay lifetime counters so cycle counts and
// runtime survive restarts.
package stats

import "github.com/picorelay/relayd/internal/relay"

// Store loads and saves the relay counters.
type Store interface {
	Load() (relay.Counters, error)
	Save(relay.Counters) error
	Close() error
}
