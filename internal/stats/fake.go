package stats

import "github.com/picorelay/relayd/internal/relay"

// FakeStore is an in-memory Store for tests.
type FakeStore struct {
	Counters  relay.Counters
	LoadError error
	SaveError error
	Saves     int
	Closed    bool
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (f *FakeStore) Load() (relay.Counters, error) {
	if f.LoadError != nil {
		return relay.Counters{}, f.LoadError
	}
	return f.Counters, nil
}

func (f *FakeStore) Save(c relay.Counters) error {
	if f.SaveError != nil {
		return f.SaveError
	}
	f.Counters = c
	f.Saves++
	return nil
}

func (f *FakeStore) Close() error {
	f.Closed = true
	return nil
}
