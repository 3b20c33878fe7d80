package stats

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/picorelay/relayd/internal/relay"
)

func openTestStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadFirstBootReturnsZeroCounters(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "stats.db"))

	c, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Cycles != 0 || c.Runtime != 0 || c.PowerOnCount != 0 {
		t.Errorf("first boot counters should be zero, got %+v", c)
	}
	if !c.LastOn.IsZero() || !c.LastOff.IsZero() {
		t.Error("first boot timestamps should be zero")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	s := openTestStore(t, path)

	want := relay.Counters{
		Cycles:       42,
		Runtime:      90 * time.Minute,
		PowerOnCount: 43,
		LastOn:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		LastOff:      time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC),
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cycles != want.Cycles || got.Runtime != want.Runtime || got.PowerOnCount != want.PowerOnCount {
		t.Errorf("counters: got %+v, want %+v", got, want)
	}
	if !got.LastOn.Equal(want.LastOn) || !got.LastOff.Equal(want.LastOff) {
		t.Errorf("timestamps: got %v/%v, want %v/%v", got.LastOn, got.LastOff, want.LastOn, want.LastOff)
	}
}

func TestSaveOverwritesSingleRow(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "stats.db"))

	for i := int64(1); i <= 3; i++ {
		if err := s.Save(relay.Counters{Cycles: i}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cycles != 3 {
		t.Errorf("cycles: got %d, want 3 (latest save wins)", got.Cycles)
	}
}

func TestCountersSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Save(relay.Counters{Cycles: 7, Runtime: time.Hour, PowerOnCount: 8}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := openTestStore(t, path)
	got, err := s2.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if got.Cycles != 7 || got.Runtime != time.Hour || got.PowerOnCount != 8 {
		t.Errorf("counters after reopen: got %+v", got)
	}
}
