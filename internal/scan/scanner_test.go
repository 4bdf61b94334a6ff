package scan

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

func touch(t *testing.T, path, body string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Add(-age)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

func TestCandidates(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "chatgpt-export.zip"), "", 3*time.Hour)
	touch(t, filepath.Join(dir, "openai.json"), "[]", time.Hour)
	touch(t, filepath.Join(dir, "conversations.json"), "[]", 2*time.Hour)
	touch(t, filepath.Join(dir, "data-2025-01-01-batch-0000.zip"), "", time.Hour)
	touch(t, filepath.Join(dir, "notes.txt"), "", time.Hour)
	touch(t, filepath.Join(dir, ".gpt-hidden.zip"), "", time.Hour)
	touch(t, filepath.Join(dir, "unpacked", "conversations.json"), "[]", time.Hour)

	got, err := Candidates(dir, model.ChatGPT)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range got {
		names[filepath.Base(f.Path)] = true
	}
	for _, want := range []string{"chatgpt-export.zip", "openai.json", "conversations.json", "unpacked"} {
		if !names[want] {
			t.Errorf("missing candidate %s in %v", want, names)
		}
	}
	for _, bad := range []string{"data-2025-01-01-batch-0000.zip", "notes.txt", ".gpt-hidden.zip"} {
		if names[bad] {
			t.Errorf("unexpected candidate %s", bad)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Mtime > got[i-1].Mtime {
			t.Errorf("candidates not newest first: %v", got)
		}
	}

	claude, err := Candidates(dir, model.Claude)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	found := false
	for _, f := range claude {
		if filepath.Base(f.Path) == "data-2025-01-01-batch-0000.zip" {
			found = true
			if f.Kind() != "zip" {
				t.Errorf("kind = %q", f.Kind())
			}
		}
	}
	if !found {
		t.Error("claude default zip name not matched")
	}

	missing, err := Candidates(filepath.Join(dir, "nope"), model.Claude)
	if err != nil || missing != nil {
		t.Errorf("missing dir = %v, %v", missing, err)
	}
}

func TestCandidatesCapped(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		touch(t, filepath.Join(dir, "claude-"+string(rune('a'+i))+".zip"), "", time.Duration(i)*time.Minute)
	}
	got, err := Candidates(dir, model.Claude)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxCandidates {
		t.Fatalf("got %d candidates", len(got))
	}
	if filepath.Base(got[0].Path) != "claude-a.zip" {
		t.Errorf("newest = %s", got[0].Path)
	}
}

func TestDownloadCandidates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	touch(t, filepath.Join(home, "Downloads", "gemini-takeout.zip"), "", time.Hour)
	touch(t, filepath.Join(home, "Downloads", "gemini.json"), "", time.Hour)

	got, err := DownloadCandidates(model.Gemini)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || filepath.Base(got[0].Path) != "gemini-takeout.zip" {
		t.Errorf("got %v", got)
	}
}

func TestFindConversationsJSON(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "b", "conversations.json"), "[]", 0)
	touch(t, filepath.Join(root, "zzzz", "conversations.json"), "[]", 0)
	touch(t, filepath.Join(root, "y", "conversations.json"), "[]", 0)

	got, err := FindConversationsJSON(root)
	if err != nil {
		t.Fatalf("FindConversationsJSON: %v", err)
	}
	if want := filepath.Join(root, "y", "conversations.json"); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	if _, err := FindConversationsJSON(t.TempDir()); !errors.Is(err, ErrNoConversations) {
		t.Errorf("empty dir err = %v", err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

const claudeExport = `[
	{"uuid": "c1", "chat_messages": [], "created_at": "2025-03-02T10:00:00Z"},
	{"uuid": "c2", "chat_messages": [], "created_at": "2024-12-31T23:00:00Z"},
	"junk"
]`

func TestExtractZipAndPrepare(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "claude.zip")
	writeZip(t, zipPath, map[string]string{
		"export/conversations.json": claudeExport,
		"export/users.json":         "[]",
	})
	dataDir := filepath.Join(dir, "data")
	stale := filepath.Join(dataDir, "claude", "stale.txt")
	touch(t, stale, "old", 0)

	path, summary, err := Prepare(zipPath, model.Claude, dataDir)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if want := filepath.Join(dataDir, "claude", "export", "conversations.json"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("previous extraction not removed")
	}
	if summary.Provider != model.Claude || summary.Conversations != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if got := summary.DateRange(); got != "2024-12-31 – 2025-03-02" {
		t.Errorf("DateRange = %q", got)
	}
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{"../escape.json": "[]"})
	if _, err := ExtractZip(zipPath, model.ChatGPT, filepath.Join(dir, "data")); err == nil {
		t.Fatal("expected error for escaping entry")
	}
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()

	chatgpt := filepath.Join(dir, "chatgpt.json")
	touch(t, chatgpt, `[{"mapping": {}, "current_node": null, "create_time": 1700000000.5}]`, 0)
	s, err := Summarize(chatgpt)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Provider != model.ChatGPT || s.Conversations != 1 || s.First.Format("2006-01-02") != "2023-11-14" {
		t.Errorf("summary = %+v", s)
	}

	for name, body := range map[string]string{
		"empty.json":   `[]`,
		"object.json":  `{"a": 1}`,
		"first.json":   `[1, {"uuid": "x"}]`,
		"unknown.json": `[{"hello": "world"}]`,
	} {
		path := filepath.Join(dir, name)
		touch(t, path, body, 0)
		if _, err := Summarize(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	unknown := filepath.Join(dir, "unknown.json")
	if _, err := Summarize(unknown); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown err = %v", err)
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		json string
		want model.Provider
		ok   bool
	}{
		{`{"mapping": {}, "current_node": "x"}`, model.ChatGPT, true},
		{`{"uuid": "u", "chat_messages": []}`, model.Claude, true},
		{`{"chunkedPrompt": {"chunks": []}}`, model.Gemini, true},
		{`{"mapping": {}}`, "", false},
	}
	for _, tt := range tests {
		got, ok := DetectProvider(gjson.Parse(tt.json))
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectProvider(%s) = %q, %v", tt.json, got, ok)
		}
	}
}
