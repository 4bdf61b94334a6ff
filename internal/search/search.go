// Package search queries the full-text index.
package search

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/Zuo-Peng/chat-history/internal/index"
)

type Result struct {
	ConvKey   string
	Seq       int
	UpdatedAt string
	Provider  string
	Title     string
	Snippet   string
	Role      string
	Kind      string
	Rank      float64
}

type Options struct {
	Query    string
	Provider string // "" = all, "chatgpt", "claude", "gemini"
	Role     string // "" = all, "user", "assistant"
	Since    string // "" = no filter, e.g. "2024-01-01"
	Limit    int
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// ftsQuery quotes every term so punctuation in user input is not read as
// FTS5 syntax. Terms stay ANDed.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	lower := strings.ToLower(text)
	qLower := strings.ToLower(query)
	idx := strings.Index(lower, qLower)
	if idx < 0 || len(lower) != len(text) {
		// no match, return head
		if len([]rune(text)) > contextChars*2 {
			return string([]rune(text)[:contextChars*2]) + "..."
		}
		return text
	}
	runes := []rune(text)
	qRunes := []rune(query)
	runePos := len([]rune(text[:idx]))
	start := runePos - contextChars
	if start < 0 {
		start = 0
	}
	end := runePos + len(qRunes) + contextChars
	if end > len(runes) {
		end = len(runes)
	}
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	// wrap the matched part with markers
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

func head(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func Search(db *index.DB, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, nil
	}

	// Fetch more results before dedup so we still have enough after
	origLimit := opts.Limit
	opts.Limit = origLimit * 3

	var results []Result
	var err error
	if containsCJK(opts.Query) {
		results, err = searchLike(db, opts)
	} else {
		results, err = searchFTS(db, opts)
	}
	if err != nil {
		return nil, err
	}

	// keep only the best-ranked result per conversation
	seen := make(map[string]bool)
	var deduped []Result
	for _, r := range results {
		if seen[r.ConvKey] {
			continue
		}
		seen[r.ConvKey] = true
		deduped = append(deduped, r)
		if len(deduped) >= origLimit {
			break
		}
	}
	return deduped, nil
}

// filters returns the provider/role/since conditions shared by all queries.
func filters(opts Options) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if opts.Provider != "" {
		conditions = append(conditions, "c.provider = ?")
		args = append(args, opts.Provider)
	}
	if opts.Role != "" {
		conditions = append(conditions, "m.role = ?")
		args = append(args, opts.Role)
	}
	if opts.Since != "" {
		conditions = append(conditions, "c.updated_at >= ?")
		args = append(args, opts.Since)
	}
	return conditions, args
}

func searchFTS(db *index.DB, opts Options) ([]Result, error) {
	conditions := []string{"messages_fts MATCH ?"}
	args := []interface{}{ftsQuery(opts.Query)}
	more, moreArgs := filters(opts)
	conditions = append(conditions, more...)
	args = append(args, moreArgs...)

	query := fmt.Sprintf(`
		SELECT
			m.conv_key,
			m.seq,
			c.updated_at,
			c.provider,
			c.title,
			snippet(messages_fts, 0, '>>>','<<<', '...', 40) as snip,
			m.role,
			m.kind,
			bm25(messages_fts, 1.0) as rank
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.rowid
		JOIN conversations c ON m.conv_key = c.conv_key
		WHERE %s
		ORDER BY rank
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func searchLike(db *index.DB, opts Options) ([]Result, error) {
	// LIKE match for CJK substring search
	conditions := []string{"m.text LIKE ?"}
	args := []interface{}{"%" + opts.Query + "%"}
	more, moreArgs := filters(opts)
	conditions = append(conditions, more...)
	args = append(args, moreArgs...)

	query := fmt.Sprintf(`
		SELECT
			m.conv_key,
			m.seq,
			c.updated_at,
			c.provider,
			c.title,
			m.text,
			m.role,
			m.kind
		FROM messages m
		JOIN conversations c ON m.conv_key = c.conv_key
		WHERE %s
		ORDER BY c.updated_at DESC
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var fullText string
		if err := rows.Scan(
			&r.ConvKey, &r.Seq, &r.UpdatedAt,
			&r.Provider, &r.Title,
			&fullText, &r.Role, &r.Kind,
		); err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(fullText, opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListAll returns every indexed conversation, newest first. A non-empty
// Query filters by title. The snippet is the head of the first user row.
func ListAll(db *index.DB, opts Options) ([]Result, error) {
	conditions := []string{"1 = 1"}
	var args []interface{}
	if opts.Provider != "" {
		conditions = append(conditions, "c.provider = ?")
		args = append(args, opts.Provider)
	}
	if opts.Since != "" {
		conditions = append(conditions, "c.updated_at >= ?")
		args = append(args, opts.Since)
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		conditions = append(conditions, "c.title LIKE ?")
		args = append(args, "%"+q+"%")
	}

	query := fmt.Sprintf(`
		SELECT
			c.conv_key,
			COALESCE((SELECT m.seq FROM messages m WHERE m.conv_key = c.conv_key AND m.role = 'user' ORDER BY m.seq LIMIT 1), -1),
			c.updated_at,
			c.provider,
			c.title,
			COALESCE((SELECT m.text FROM messages m WHERE m.conv_key = c.conv_key AND m.role = 'user' ORDER BY m.seq LIMIT 1), '')
		FROM conversations c
		WHERE %s
		ORDER BY c.updated_at DESC
	`, strings.Join(conditions, " AND "))
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var text string
		if err := rows.Scan(&r.ConvKey, &r.Seq, &r.UpdatedAt, &r.Provider, &r.Title, &text); err != nil {
			return nil, err
		}
		r.Role = "user"
		r.Kind = index.KindText
		r.Snippet = head(strings.Join(strings.Fields(text), " "), 80)
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.ConvKey, &r.Seq, &r.UpdatedAt,
			&r.Provider, &r.Title,
			&r.Snippet, &r.Role, &r.Kind, &r.Rank,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
