// Package scan locates provider exports on disk and unpacks them.
package scan

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

const (
	exportFileName = "conversations.json"
	maxCandidates  = 12
)

var (
	ErrNoConversations = errors.New("no conversations.json found")
	ErrUnknownFormat   = errors.New("unrecognized export format")
)

// FileInfo is a candidate export source: a zip, a JSON file or a directory.
type FileInfo struct {
	Path     string
	Provider model.Provider
	Mtime    int64
	Size     int64
	IsDir    bool
}

// Kind is the short label shown for a candidate.
func (f FileInfo) Kind() string {
	if f.IsDir {
		return "folder"
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Path)), "."); ext != "" {
		return ext
	}
	return "file"
}

func nameTokens(p model.Provider) []string {
	switch p {
	case model.ChatGPT:
		return []string{"chatgpt", "openai", "gpt"}
	case model.Claude:
		return []string{"claude", "anthropic"}
	case model.Gemini:
		return []string{"gemini", "aistudio", "ai-studio", "takeout"}
	}
	return []string{strings.ToLower(string(p))}
}

func nameMatches(name string, p model.Provider) bool {
	lowered := strings.ToLower(name)
	for _, tok := range nameTokens(p) {
		if strings.Contains(lowered, tok) {
			return true
		}
	}
	return false
}

// isClaudeDefaultZip matches the names claude.ai gives its exports,
// e.g. data-2025-01-01-12-00-00-batch-0000.zip.
func isClaudeDefaultZip(name string) bool {
	lowered := strings.ToLower(name)
	return strings.HasSuffix(lowered, ".zip") && strings.HasPrefix(lowered, "data-") && strings.Contains(lowered, "-batch-")
}

// Candidates lists entries of dir that look like exports of p, newest first.
func Candidates(dir string, p model.Provider) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := e.Info()
		if err != nil {
			continue // vanished or unreadable
		}
		matches := nameMatches(name, p)
		lowered := strings.ToLower(name)
		ext := strings.ToLower(filepath.Ext(name))

		keep := false
		switch {
		case info.IsDir():
			keep = matches || fileExists(filepath.Join(path, exportFileName))
		case ext == ".zip":
			keep = matches || (p == model.Claude && isClaudeDefaultZip(lowered))
		case lowered == exportFileName:
			keep = true
		case ext == ".json":
			keep = matches
		}
		if keep {
			files = append(files, fileInfo(path, p, info))
		}
	}
	return newest(files), nil
}

// DownloadCandidates lists zip archives in ~/Downloads that look like exports of p.
func DownloadCandidates(p model.Provider) ([]FileInfo, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, "Downloads")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	token := strings.ToLower(string(p))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if filepath.Ext(name) != ".zip" {
			continue
		}
		if !strings.Contains(name, token) && !(p == model.Claude && isClaudeDefaultZip(name)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo(filepath.Join(dir, e.Name()), p, info))
	}
	return newest(files), nil
}

func fileInfo(path string, p model.Provider, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:     path,
		Provider: p,
		Mtime:    info.ModTime().Unix(),
		Size:     info.Size(),
		IsDir:    info.IsDir(),
	}
}

func newest(files []FileInfo) []FileInfo {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Mtime > files[j].Mtime
	})
	if len(files) > maxCandidates {
		files = files[:maxCandidates]
	}
	return files
}

// FindConversationsJSON returns the shallowest conversations.json under
// root, preferring shorter paths at equal depth.
func FindConversationsJSON(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		if filepath.Base(root) == exportFileName {
			return root, nil
		}
		return "", fmt.Errorf("%s: %w", root, ErrNoConversations)
	}

	var found []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if !info.IsDir() && info.Name() == exportFileName {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%s: %w", root, ErrNoConversations)
	}

	depth := func(p string) int {
		rel, _ := filepath.Rel(root, p)
		return len(strings.Split(rel, string(filepath.Separator)))
	}
	sort.SliceStable(found, func(i, j int) bool {
		di, dj := depth(found[i]), depth(found[j])
		if di != dj {
			return di < dj
		}
		return len(found[i]) < len(found[j])
	})
	return found[0], nil
}

// ExtractZip unpacks an export archive into dataDir/<provider>, replacing
// any previous extraction, and returns the conversations.json inside it.
func ExtractZip(zipPath string, p model.Provider, dataDir string) (string, error) {
	dest := filepath.Join(dataDir, string(p))
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clear %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractFile(f, dest); err != nil {
			return "", err
		}
	}
	return FindConversationsJSON(dest)
}

func extractFile(f *zip.File, dest string) error {
	target := filepath.Join(dest, f.Name)
	// reject entries escaping dest via ".."
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return fmt.Errorf("zip entry %q escapes destination", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// DetectProvider guesses the provider from the first conversation of an export.
func DetectProvider(first gjson.Result) (model.Provider, bool) {
	has := func(k string) bool { return first.Get(k).Exists() }
	switch {
	case has("mapping") && has("current_node"):
		return model.ChatGPT, true
	case has("uuid") && has("chat_messages"):
		return model.Claude, true
	case has("chunkedPrompt"):
		return model.Gemini, true
	}
	return "", false
}

// Summary describes a validated export file.
type Summary struct {
	Provider      model.Provider
	Conversations int
	First, Last   time.Time
}

// DateRange formats the covered dates as "YYYY-MM-DD – YYYY-MM-DD".
func (s Summary) DateRange() string {
	if s.First.IsZero() || s.Last.IsZero() {
		return "date range unavailable"
	}
	return s.First.Format("2006-01-02") + " – " + s.Last.Format("2006-01-02")
}

// Summarize checks that path holds a non-empty array of conversations in a
// recognized format and counts them.
func Summarize(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return Summary{}, fmt.Errorf("decode %s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)
	items := root.Array()
	if !root.IsArray() || len(items) == 0 {
		return Summary{}, fmt.Errorf("%s: expected a non-empty JSON array", path)
	}
	if !items[0].IsObject() {
		return Summary{}, fmt.Errorf("%s: expected first array item to be an object", path)
	}
	p, ok := DetectProvider(items[0])
	if !ok {
		return Summary{}, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	s := Summary{Provider: p}
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		s.Conversations++
		ts, ok := createdAt(item, p)
		if !ok {
			continue
		}
		if s.First.IsZero() || ts.Before(s.First) {
			s.First = ts
		}
		if ts.After(s.Last) {
			s.Last = ts
		}
	}
	return s, nil
}

func createdAt(item gjson.Result, p model.Provider) (time.Time, bool) {
	if p == model.Claude {
		v := item.Get("created_at")
		if v.Type != gjson.String {
			return time.Time{}, false
		}
		t, err := time.Parse(time.RFC3339Nano, v.Str)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	v := item.Get("create_time")
	if v.Type != gjson.Number && v.Type != gjson.String {
		return time.Time{}, false
	}
	f := v.Float()
	if f == 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(f), 0).UTC(), true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Prepare turns a user-chosen source (zip, directory or JSON file) into a
// validated conversations.json path. Zips are extracted under dataDir.
func Prepare(source string, p model.Provider, dataDir string) (string, Summary, error) {
	resolved, err := filepath.Abs(source)
	if err != nil {
		return "", Summary{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", Summary{}, fmt.Errorf("path not found: %s", resolved)
	}

	path := resolved
	switch {
	case !info.IsDir() && strings.EqualFold(filepath.Ext(resolved), ".zip"):
		if path, err = ExtractZip(resolved, p, dataDir); err != nil {
			return "", Summary{}, err
		}
	case info.IsDir():
		if path, err = FindConversationsJSON(resolved); err != nil {
			return "", Summary{}, err
		}
	}

	summary, err := Summarize(path)
	if err != nil {
		return "", Summary{}, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, summary, nil
}
