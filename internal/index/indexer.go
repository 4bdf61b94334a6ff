package index

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

type Stats struct {
	Scanned int
	Updated int
	Skipped int
	Pruned  int
	Errors  int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d pruned=%d errors=%d",
		s.Scanned, s.Updated, s.Skipped, s.Pruned, s.Errors)
}

// Row kinds stored in the messages table.
const (
	KindText     = "text"
	KindThinking = "thinking"
	KindTool     = "tool"
)

// Row is one indexed piece of a message.
type Row struct {
	MessageID string
	Role      string
	Kind      string
	Text      string
	Ts        string
}

// Rows splits the messages of c into rows, one per message and kind, in
// message order. Messages without text produce no rows.
func Rows(c model.Conversation) []Row {
	var rows []Row
	for _, m := range c.Messages {
		var order []string
		parts := make(map[string][]string)
		for _, b := range m.VisibleBlocks(model.ShowAll) {
			text := strings.TrimSpace(b.Text)
			if text == "" {
				continue
			}
			kind := KindText
			switch {
			case model.IsThinking(b.Type):
				kind = KindThinking
			case model.IsTool(b.Type) || m.Role == "tool":
				kind = KindTool
			}
			if _, ok := parts[kind]; !ok {
				order = append(order, kind)
			}
			parts[kind] = append(parts[kind], text)
		}
		for _, kind := range order {
			rows = append(rows, Row{
				MessageID: m.ID,
				Role:      m.Role,
				Kind:      kind,
				Text:      strings.Join(parts[kind], "\n\n"),
				Ts:        m.Created.UTC().Format(TimeLayout),
			})
		}
	}
	return rows
}

// Fingerprint changes whenever c gains messages, is retitled or updated.
func Fingerprint(c model.Conversation) string {
	last := ""
	if n := len(c.Messages); n > 0 {
		last = c.Messages[n-1].ID
	}
	return fmt.Sprintf("%d|%d|%s|%s", c.Updated.UnixNano(), len(c.Messages), last, c.Title)
}

// IndexAll brings db in line with convs: changed conversations are
// rewritten, unchanged ones skipped and missing ones pruned.
func IndexAll(db *DB, convs []model.Conversation, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats Stats
	stats.Scanned = len(convs)

	// track which conversations we see, for pruning
	seenKeys := make(map[string]struct{})

	for _, c := range convs {
		key := c.Key().String()
		seenKeys[key] = struct{}{}

		fp := Fingerprint(c)
		stored, err := db.Fingerprint(key)
		if err != nil {
			stats.Errors++
			logger.Warn("read fingerprint", "conversation", key, "err", err)
			continue
		}
		if stored == fp {
			stats.Skipped++
			continue
		}

		if err := indexConversation(db, c, fp); err != nil {
			stats.Errors++
			logger.Warn("index conversation", "conversation", key, "err", err)
			continue
		}
		stats.Updated++
	}

	pruned, err := pruneConversations(db, seenKeys)
	if err != nil {
		return stats, fmt.Errorf("prune: %w", err)
	}
	stats.Pruned = pruned

	logger.Debug("indexed conversations", "stats", stats.String())
	return stats, nil
}

func indexConversation(db *DB, c model.Conversation, fp string) error {
	key := c.Key().String()
	if err := db.DeleteConversation(key); err != nil {
		return err
	}

	tx, err := db.Raw().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO conversations (conv_key, provider, conv_id, title, created_at, updated_at, open_url, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key,
		string(c.Provider),
		c.ID,
		c.TitleOrDefault(),
		c.Created.UTC().Format(TimeLayout),
		c.Updated.UTC().Format(TimeLayout),
		c.OpenURL(),
		fp,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (conv_key, seq, message_id, ts, role, kind, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for seq, r := range Rows(c) {
		if _, err := stmt.Exec(key, seq, r.MessageID, r.Ts, r.Role, r.Kind, r.Text); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func pruneConversations(db *DB, seenKeys map[string]struct{}) (int, error) {
	allKeys, err := db.AllConversationKeys()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for key := range allKeys {
		if _, ok := seenKeys[key]; !ok {
			if err := db.DeleteConversation(key); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
