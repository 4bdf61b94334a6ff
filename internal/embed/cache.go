package embed

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const cacheSchema = `
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS embeddings (
    id        TEXT PRIMARY KEY,
    type      TEXT NOT NULL,
    conv_id   TEXT NOT NULL,
    item_id   TEXT NOT NULL,
    embedding BLOB NOT NULL
);
`

// Entry is one cached embedding.
type Entry struct {
	ID             string
	Type           string
	ConversationID string
	ItemID         string
	Vector         []float32
}

// Cache persists embeddings of one provider so they are computed once.
type Cache struct {
	db *sql.DB
}

func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// All returns every cached entry keyed by id.
func (c *Cache) All() (map[string]Entry, error) {
	rows, err := c.db.Query("SELECT id, type, conv_id, item_id, embedding FROM embeddings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.ConversationID, &e.ItemID, &raw); err != nil {
			return nil, err
		}
		e.Vector = decodeVector(raw)
		if len(e.Vector) == 0 {
			continue
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

func (c *Cache) Put(e Entry) error {
	_, err := c.db.Exec(
		"REPLACE INTO embeddings (id, type, conv_id, item_id, embedding) VALUES (?, ?, ?, ?, ?)",
		e.ID, e.Type, e.ConversationID, e.ItemID, encodeVector(e.Vector),
	)
	return err
}

// vectors are stored as little-endian float32
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
