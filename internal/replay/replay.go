// Package replay implements the CAPTURE_PROCESS_REPLAY debug flag
// (spec.md §6): every kernel's (sink key, var_vals, ast) triple is
// persisted to a local sqlite cache at process exit, mirroring
// tinygrad's diskcache_put/atexit replay capture.
//
// Grounded on the teacher's internal/database package, which opens a
// driver via the database/sql blank-import pattern and issues plain SQL
// through *sql.DB -- this package follows the same shape with
// mattn/go-sqlite3 instead of a network driver, since the cache is a
// local, single-process artifact (spec.md §5: "no external I/O except
// the optional debug-capture write").
package replay

import (
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Entry is one captured kernel: its cache key, the variable bindings in
// effect when it was lowered, and a pretty-printed dump of its AST --
// enough to diff a replayed run against a prior one without needing to
// re-run the scheduler's interner (spec.md §6, CAPTURE_PROCESS_REPLAY).
type Entry struct {
	RunID   string
	Key     string
	VarVals map[string]int
	AST     string
}

// Cache is a process-lifetime buffer of captured entries, flushed to a
// sqlite file on Close. The zero value is not usable; call Open.
type Cache struct {
	mu      sync.Mutex
	db      *sql.DB
	runID   string
	entries []Entry
}

// Open creates (or reuses) the sqlite file at path and prepares its
// schema. Call Close (typically deferred, or registered against
// os/signal + normal exit by the caller) to flush captured entries.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "replay: open %s", path)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS process_replay (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		var_vals TEXT NOT NULL,
		ast TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "replay: create schema")
	}
	return &Cache{db: db, runID: uuid.New().String()}, nil
}

// RunID is the uuid tagging every entry captured by this Cache instance,
// used to namespace replay lookups across separate Create invocations
// (the original relies on Python object identity for this; this port
// uses an explicit run id instead, per DESIGN.md's domain-stack wiring).
func (c *Cache) RunID() string { return c.runID }

// Put buffers one kernel's replay entry. Safe for concurrent use, though
// the scheduler itself is single-threaded (spec.md §5) -- the lock only
// guards against a caller capturing from a concurrent debug/viz path.
func (c *Cache) Put(key string, varVals map[string]int, astDump string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{RunID: c.runID, Key: key, VarVals: varVals, AST: astDump})
}

// Flush writes every buffered entry to the sqlite file in one
// transaction. Idempotent: entries already flushed are not re-buffered.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "replay: begin tx")
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO process_replay(run_id, key, var_vals, ast) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "replay: prepare insert")
	}
	defer stmt.Close()
	for _, e := range c.entries {
		vv, err := json.Marshal(e.VarVals)
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, "replay: marshal var_vals")
		}
		if _, err := stmt.Exec(e.RunID, e.Key, string(vv), e.AST); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "replay: insert %s", e.Key)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "replay: commit")
	}
	c.entries = c.entries[:0]
	return nil
}

// Close flushes any pending entries and releases the underlying sqlite
// handle. Errors from the flush are returned; the handle is closed
// regardless.
func (c *Cache) Close() error {
	flushErr := c.Flush()
	if err := c.db.Close(); err != nil {
		return errors.Wrap(err, "replay: close db")
	}
	return flushErr
}

// Get returns a previously captured entry for key under runID, for
// replay-based testing (compare a fresh schedule's AST dump against a
// prior capture).
func (c *Cache) Get(runID, key string) (Entry, bool, error) {
	row := c.db.QueryRow(`SELECT var_vals, ast FROM process_replay WHERE run_id = ? AND key = ?`, runID, key)
	var vv, ast string
	if err := row.Scan(&vv, &ast); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, errors.Wrapf(err, "replay: get %s/%s", runID, key)
	}
	var varVals map[string]int
	if err := json.Unmarshal([]byte(vv), &varVals); err != nil {
		return Entry{}, false, errors.Wrap(err, "replay: unmarshal var_vals")
	}
	return Entry{RunID: runID, Key: key, VarVals: varVals, AST: ast}, true, nil
}
