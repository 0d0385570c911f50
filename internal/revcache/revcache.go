// Package revcache caches fetched work item revision histories in a
// local SQLite database.
//
// Staleness analysis over a large backlog fetches one revision history
// per item; re-running the analysis minutes later would repeat every
// fetch for histories that almost never change. The cache sits in front
// of the live RevisionSource and serves entries younger than a
// configured max age. It is a cache, not a store of record — deleting
// the database file is always safe.
package revcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/staleness"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// DefaultMaxAge is how long a cached history is served before the live
// source is consulted again.
const DefaultMaxAge = 15 * time.Minute

// Config holds cache settings.
type Config struct {
	// DataDir is where the cache database lives.
	DataDir string

	// MaxAge bounds how stale a served history may be. Zero means
	// DefaultMaxAge.
	MaxAge time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".enhanced-ado-mcp"),
		MaxAge:  DefaultMaxAge,
	}
}

// Cache is the SQLite-backed revision history cache.
type Cache struct {
	db     *sql.DB
	maxAge time.Duration
}

// New opens (or creates) the cache database and runs migrations.
func New(cfg Config) (*Cache, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("revcache: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "revcache.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("revcache: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("revcache: pragma %q: %w", p, err)
		}
	}

	c := &Cache{db: db, maxAge: cfg.MaxAge}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("revcache: migration: %w", err)
	}
	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS revision_histories (
			item_id    INTEGER PRIMARY KEY,
			fetched_at TEXT    NOT NULL,
			payload    TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rev_fetched ON revision_histories(fetched_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// cachePayload is the JSON shape stored in the payload column.
type cachePayload struct {
	CreatedDate time.Time            `json:"createdDate"`
	Revisions   []staleness.Revision `json:"revisions"`
}

// Get returns a cached history younger than maxAge. The bool reports a
// hit; a decode failure is treated as a miss and the row dropped.
func (c *Cache) Get(itemID int) (staleness.History, bool) {
	var fetchedAt, payload string
	err := c.db.QueryRow(
		`SELECT fetched_at, payload FROM revision_histories WHERE item_id = ?`, itemID,
	).Scan(&fetchedAt, &payload)
	if err != nil {
		return staleness.History{}, false
	}

	at, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil || timeNow().Sub(at) > c.maxAge {
		return staleness.History{}, false
	}

	var p cachePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		_, _ = c.db.Exec(`DELETE FROM revision_histories WHERE item_id = ?`, itemID)
		return staleness.History{}, false
	}
	return staleness.History{CreatedDate: p.CreatedDate, Revisions: p.Revisions}, true
}

// Put stores a freshly fetched history, replacing any prior row.
func (c *Cache) Put(itemID int, hist staleness.History) error {
	data, err := json.Marshal(cachePayload{
		CreatedDate: hist.CreatedDate,
		Revisions:   hist.Revisions,
	})
	if err != nil {
		return fmt.Errorf("revcache: encode history for item %d: %w", itemID, err)
	}
	_, err = c.db.Exec(
		`INSERT INTO revision_histories (item_id, fetched_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET fetched_at = excluded.fetched_at, payload = excluded.payload`,
		itemID, timeNow().UTC().Format(time.RFC3339), string(data),
	)
	return err
}

// PruneExpired deletes rows older than maxAge, returning the count.
func (c *Cache) PruneExpired() (int, error) {
	cutoff := timeNow().Add(-c.maxAge).UTC().Format(time.RFC3339)
	res, err := c.db.Exec(`DELETE FROM revision_histories WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CachingSource wraps a live staleness.HistorySource with the cache.
// A nil *Cache passes straight through, so callers can wire the wrap
// unconditionally and degrade gracefully when the cache failed to open.
type CachingSource struct {
	cache *Cache
	live  staleness.HistorySource
}

// NewCachingSource wraps live with cache. cache may be nil.
func NewCachingSource(cache *Cache, live staleness.HistorySource) *CachingSource {
	return &CachingSource{cache: cache, live: live}
}

// History serves from cache when possible, falling back to the live
// source and populating the cache on the way back. Cache write failures
// are non-fatal — the fetched history is still returned.
func (s *CachingSource) History(ctx context.Context, itemID int) (staleness.History, error) {
	if s.cache != nil {
		if hist, ok := s.cache.Get(itemID); ok {
			return hist, nil
		}
	}
	hist, err := s.live.History(ctx, itemID)
	if err != nil {
		return staleness.History{}, err
	}
	if s.cache != nil {
		if err := s.cache.Put(itemID, hist); err != nil {
			log.Printf("WARNING: revcache: caching history for item %d: %v", itemID, err)
		}
	}
	return hist, nil
}
