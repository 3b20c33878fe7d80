package stats

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/picorelay/relayd/internal/relay"
)

// counters is a single-row table; id is always 1 so Save is an upsert.
const schema = `
CREATE TABLE IF NOT EXISTS counters (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	cycles INTEGER NOT NULL DEFAULT 0,
	runtime_sec INTEGER NOT NULL DEFAULT 0,
	power_on_count INTEGER NOT NULL DEFAULT 0,
	last_on TEXT,
	last_off TEXT,
	updated_at TEXT NOT NULL
);
`

// SQLiteStore keeps the counters in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the counters database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	// One writer only; the daemon is the sole user of this file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init stats schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the persisted counters, or zero counters on first boot.
func (s *SQLiteStore) Load() (relay.Counters, error) {
	var c relay.Counters
	var runtimeSec int64
	var lastOn, lastOff sql.NullString

	row := s.db.QueryRow(`SELECT cycles, runtime_sec, power_on_count, last_on, last_off FROM counters WHERE id = 1`)
	err := row.Scan(&c.Cycles, &runtimeSec, &c.PowerOnCount, &lastOn, &lastOff)
	if err == sql.ErrNoRows {
		return relay.Counters{}, nil
	}
	if err != nil {
		return relay.Counters{}, fmt.Errorf("load counters: %w", err)
	}

	c.Runtime = time.Duration(runtimeSec) * time.Second
	if c.LastOn, err = parseNullTime(lastOn); err != nil {
		return relay.Counters{}, fmt.Errorf("load counters: %w", err)
	}
	if c.LastOff, err = parseNullTime(lastOff); err != nil {
		return relay.Counters{}, fmt.Errorf("load counters: %w", err)
	}
	return c, nil
}

// Save upserts the counters row.
func (s *SQLiteStore) Save(c relay.Counters) error {
	_, err := s.db.Exec(`
		INSERT INTO counters (id, cycles, runtime_sec, power_on_count, last_on, last_off, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cycles = excluded.cycles,
			runtime_sec = excluded.runtime_sec,
			power_on_count = excluded.power_on_count,
			last_on = excluded.last_on,
			last_off = excluded.last_off,
			updated_at = excluded.updated_at`,
		c.Cycles,
		int64(c.Runtime/time.Second),
		c.PowerOnCount,
		formatNullTime(c.LastOn),
		formatNullTime(c.LastOff),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save counters: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseNullTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v.String)
}

func formatNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
