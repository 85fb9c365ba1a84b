package usage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// Persister is the optional Stats persistence backend with two
// implementations: a deterministic JSON blob (NewJSONPersister) and a
// pure-Go sqlite table (NewSQLitePersister). cmd/routerd constructs only
// the JSON one, from the configured persist path.
type Persister struct {
	jsonPath string
	db       *sql.DB
}

// NewJSONPersister persists snapshots to a single JSON file at path.
func NewJSONPersister(path string) *Persister {
	return &Persister{jsonPath: path}
}

// NewSQLitePersister persists snapshots into a sqlite table at path,
// using modernc.org/sqlite's pure-Go driver (no cgo toolchain required).
func NewSQLitePersister(path string) (*Persister, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS stats_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("usage: create table: %w", err)
	}
	return &Persister{db: db}, nil
}

// Save writes the full snapshot, overwriting any prior save.
func (p *Persister) Save(snap map[string]any) error {
	if p == nil {
		return nil
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if p.db != nil {
		_, err := p.db.Exec(`INSERT INTO stats_snapshot(id, payload) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, string(data))
		return err
	}
	return os.WriteFile(p.jsonPath, data, 0o644)
}

// Load reads a previously saved snapshot, returning (nil, nil) if none
// exists yet.
func (p *Persister) Load() (map[string]json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	var data []byte
	if p.db != nil {
		row := p.db.QueryRow(`SELECT payload FROM stats_snapshot WHERE id = 1`)
		var payload string
		if err := row.Scan(&payload); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, err
		}
		data = []byte(payload)
	} else {
		raw, err := os.ReadFile(p.jsonPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		data = raw
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// maybePersist dumps the table whenever a persister is configured.
// Persistence failures are swallowed, not surfaced: stats and budget
// recording must never propagate a storage error to the caller.
func (s *Stats) maybePersist() {
	if s.persist == nil {
		return
	}
	snap := s.Snapshot()
	boxed := make(map[string]any, len(snap))
	for k, v := range snap {
		boxed[k] = v
	}
	_ = s.persist.Save(boxed) // intentionally ignored: see comment above
}
