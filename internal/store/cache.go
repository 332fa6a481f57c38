package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"aichat-backend/internal/models"
)

// SnapshotVersion is bumped whenever the persisted shape changes. A snapshot
// written under an older version is rejected on load rather than migrated.
const SnapshotVersion = 2

var ErrStaleSnapshot = errors.New("persisted snapshot has an incompatible version")

// Snapshot is the durable form of a store's state. Messages ride along inside
// their chatrooms.
type Snapshot struct {
	Version   int               `json:"version"`
	User      *models.User      `json:"user,omitempty"`
	Chatrooms []models.Chatroom `json:"chatrooms"`
	CurrentID string            `json:"currentId,omitempty"`
	Typing    bool              `json:"typing"`
}

// Cache persists snapshots in a local sqlite file, one row per namespace.
// It is shared between stores; the namespace keeps accounts apart.
type Cache struct {
	db *sql.DB
}

func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS snapshots (
		ns TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Save(ns string, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO snapshots (ns, payload, updated_at) VALUES (?, ?, strftime('%s','now'))
		 ON CONFLICT(ns) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		ns, payload,
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot stored under ns, or nil when none exists.
func (c *Cache) Load(ns string) (*Snapshot, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM snapshots WHERE ns = ?`, ns).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, ErrStaleSnapshot
	}
	return &snap, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
