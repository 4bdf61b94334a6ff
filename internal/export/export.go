// Package export writes conversations as markdown files.
package export

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

// FileName is "<local created date>-<first 12 hex of sha1(id)>.md".
func FileName(c model.Conversation) string {
	sum := sha1.Sum([]byte(c.ID))
	return c.Created.Local().Format("2006-01-02") + "-" + hex.EncodeToString(sum[:])[:12] + ".md"
}

// Markdown renders c with a metadata header and one section per message
// that has visible text.
func Markdown(c model.Conversation, vis model.Visibility) string {
	lines := []string{
		"# " + c.TitleOrDefault(),
		"",
		fmt.Sprintf("- Provider: `%s`", c.Provider),
		fmt.Sprintf("- Conversation ID: `%s`", c.ID),
		fmt.Sprintf("- Created: `%s`", c.CreatedLocal()),
		"- Open URL: " + c.OpenURL(),
		"",
	}
	for _, m := range c.Messages {
		text := messageText(m, vis)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("## %s - %s\n\n%s", m.CreatedLocal(), m.Role, text))
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func messageText(m model.Message, vis model.Visibility) string {
	var parts []string
	for _, b := range m.VisibleBlocks(vis) {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if b.Type == "text" || b.Type == "code" {
			parts = append(parts, text)
			continue
		}
		parts = append(parts, fmt.Sprintf("**[%s]**\n\n%s", b.Type, text))
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// WriteConversation writes c under dir/<provider>/ and returns the path.
func WriteConversation(c model.Conversation, dir string, vis model.Visibility) (string, error) {
	providerDir := filepath.Join(dir, string(c.Provider))
	if err := os.MkdirAll(providerDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", providerDir, err)
	}
	path := filepath.Join(providerDir, FileName(c))
	if err := os.WriteFile(path, []byte(Markdown(c, vis)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Clean removes earlier .md and .txt output from dir and then any empty
// directories left behind. A non-empty provider limits removal to files
// under dir/<provider> or named "<provider>--*".
func Clean(dir string, provider model.Provider) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	providerDir := filepath.Join(dir, string(provider))

	removed := 0
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		if provider != "" {
			inProviderDir := strings.HasPrefix(path, providerDir+string(filepath.Separator))
			if !inProviderDir && !strings.HasPrefix(d.Name(), string(provider)+"--") {
				return nil
			}
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	// deepest first so parents empty out
	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
	return removed, nil
}
