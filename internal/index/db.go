// Package index keeps a SQLite full-text index of loaded conversations for
// the terminal commands.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS conversations (
    conv_key    TEXT PRIMARY KEY,
    provider    TEXT NOT NULL,
    conv_id     TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT '',
    open_url    TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS messages (
    conv_key   TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    message_id TEXT NOT NULL,
    ts         TEXT NOT NULL DEFAULT '',
    role       TEXT NOT NULL,
    kind       TEXT NOT NULL DEFAULT 'text',
    text       TEXT NOT NULL,
    PRIMARY KEY (conv_key, seq)
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    text,
    content=messages,
    content_rowid=rowid,
    tokenize='unicode61'
);

-- triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text) VALUES('delete', old.rowid, old.text);
    INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
`

// TimeLayout is how timestamps are stored; it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05Z"

type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db}
	d.migrateSchemaVersion()
	return d, nil
}

// schemaVersion should be bumped whenever message row extraction changes
// to force a full re-index.
const schemaVersion = "1"

func (d *DB) migrateSchemaVersion() {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err != nil || ver != schemaVersion {
		d.db.Exec("UPDATE conversations SET fingerprint = ''")
		d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

// Fingerprint returns the stored fingerprint of convKey, or "" when the
// conversation is not indexed.
func (d *DB) Fingerprint(convKey string) (string, error) {
	var fp string
	err := d.db.QueryRow(
		"SELECT fingerprint FROM conversations WHERE conv_key = ?",
		convKey,
	).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return fp, err
}

func (d *DB) AllConversationKeys() (map[string]struct{}, error) {
	rows, err := d.db.Query("SELECT conv_key FROM conversations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func (d *DB) DeleteConversation(convKey string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conv_key = ?", convKey); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE conv_key = ?", convKey); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) ConversationCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&n)
	return n, err
}

func (d *DB) MessageCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// FTSCount is the number of rows in the full-text table.
func (d *DB) FTSCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM messages_fts").Scan(&n)
	return n, err
}

type ConversationRow struct {
	ConvKey   string
	Provider  string
	ConvID    string
	Title     string
	CreatedAt string
	UpdatedAt string
	OpenURL   string
}

func (d *DB) GetConversationByKey(convKey string) (*ConversationRow, error) {
	var c ConversationRow
	err := d.db.QueryRow(
		"SELECT conv_key, provider, conv_id, title, created_at, updated_at, open_url FROM conversations WHERE conv_key = ?",
		convKey,
	).Scan(&c.ConvKey, &c.Provider, &c.ConvID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.OpenURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type MessageRow struct {
	ConvKey   string
	Seq       int
	MessageID string
	Ts        string
	Role      string
	Kind      string
	Text      string
}

const messageColumns = "conv_key, seq, message_id, ts, role, kind, text"

func scanMessage(rows *sql.Rows) (MessageRow, error) {
	var m MessageRow
	err := rows.Scan(&m.ConvKey, &m.Seq, &m.MessageID, &m.Ts, &m.Role, &m.Kind, &m.Text)
	return m, err
}

func (d *DB) GetMessages(convKey string) ([]MessageRow, error) {
	rows, err := d.db.Query(
		"SELECT "+messageColumns+" FROM messages WHERE conv_key = ? ORDER BY seq",
		convKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMessagesWindow returns the rows within context of the hit row.
// startPos is the number of rows before the returned window and totalCount
// the number of rows in the conversation. A negative hitSeq returns all rows.
func (d *DB) GetMessagesWindow(convKey string, hitSeq, context int) (msgs []MessageRow, hitIdx int, startPos int, totalCount int, err error) {
	err = d.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conv_key = ?", convKey,
	).Scan(&totalCount)
	if err != nil {
		return nil, -1, 0, 0, err
	}

	// 0-based position of the hit row
	hitPos := -1
	if hitSeq >= 0 {
		err = d.db.QueryRow(`
			SELECT pos FROM (
				SELECT seq, ROW_NUMBER() OVER (ORDER BY seq) - 1 AS pos
				FROM messages WHERE conv_key = ?
			) WHERE seq = ?`,
			convKey, hitSeq,
		).Scan(&hitPos)
		if err == sql.ErrNoRows {
			hitPos = -1
			err = nil
		} else if err != nil {
			return nil, -1, 0, 0, err
		}
	}

	startPos = 0
	limit := totalCount
	if hitPos >= 0 {
		startPos = hitPos - context
		if startPos < 0 {
			startPos = 0
		}
		endPos := hitPos + context + 1
		if endPos > totalCount {
			endPos = totalCount
		}
		limit = endPos - startPos
	}

	rows, err := d.db.Query(
		"SELECT "+messageColumns+" FROM messages WHERE conv_key = ? ORDER BY seq LIMIT ? OFFSET ?",
		convKey, limit, startPos,
	)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	defer rows.Close()

	localHitIdx := -1
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, -1, 0, 0, err
		}
		if m.Seq == hitSeq {
			localHitIdx = len(msgs)
		}
		msgs = append(msgs, m)
	}
	return msgs, localHitIdx, startPos, totalCount, rows.Err()
}
