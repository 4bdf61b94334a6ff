package search

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/index"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

func text(s string) []model.ContentBlock {
	return []model.ContentBlock{{Type: "text", Text: s}}
}

func testDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	early := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	convs := []model.Conversation{
		{ID: "c1", Provider: model.ChatGPT, Title: "Sourdough", Created: early, Updated: early, Messages: []model.Message{
			{ID: "m1", Role: "user", Created: early, Content: text("My sourdough starter smells odd")},
			{ID: "m2", Role: "assistant", Created: early, Content: text("A sourdough starter needs feeding.")},
		}},
		{ID: "c2", Provider: model.Gemini, Title: "Travel", Created: late, Updated: late, Messages: []model.Message{
			{ID: "m3", Role: "user", Created: late, Content: text("Bake sourdough while traveling? 你好世界")},
		}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := index.IndexAll(db, convs, logger); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	return db
}

func TestSearch(t *testing.T) {
	db := testDB(t)

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"dedup per conversation", Options{Query: "sourdough"}, []string{"chatgpt:c1", "gemini:c2"}},
		{"provider", Options{Query: "sourdough", Provider: "gemini"}, []string{"gemini:c2"}},
		{"role", Options{Query: "feeding", Role: "user"}, nil},
		{"since", Options{Query: "sourdough", Since: "2024-02-01"}, []string{"gemini:c2"}},
		{"punctuation", Options{Query: "traveling?"}, []string{"gemini:c2"}},
		{"cjk", Options{Query: "世界"}, []string{"gemini:c2"}},
		{"empty", Options{Query: "  "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Search(db, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			var got []string
			for _, r := range results {
				got = append(got, r.ConvKey)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") && !sameSet(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]bool)
	for _, s := range a {
		m[s] = true
	}
	for _, s := range b {
		if !m[s] {
			return false
		}
	}
	return true
}

func TestSearchSnippets(t *testing.T) {
	db := testDB(t)
	results, err := Search(db, Options{Query: "世界"})
	if err != nil || len(results) != 1 {
		t.Fatalf("Search = %v, %v", results, err)
	}
	if !strings.Contains(results[0].Snippet, ">>>世界<<<") {
		t.Errorf("snippet = %q", results[0].Snippet)
	}

	results, _ = Search(db, Options{Query: "feeding"})
	if len(results) != 1 || !strings.Contains(results[0].Snippet, ">>>feeding<<<") || results[0].Seq != 1 {
		t.Errorf("results = %+v", results)
	}
}

func TestListAll(t *testing.T) {
	db := testDB(t)

	results, err := ListAll(db, Options{})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(results) != 2 || results[0].ConvKey != "gemini:c2" || results[1].ConvKey != "chatgpt:c1" {
		t.Fatalf("results = %+v", results)
	}
	if results[1].Snippet != "My sourdough starter smells odd" || results[1].Seq != 0 {
		t.Errorf("snippet = %q seq = %d", results[1].Snippet, results[1].Seq)
	}

	results, _ = ListAll(db, Options{Query: "sour"})
	if len(results) != 1 || results[0].Title != "Sourdough" {
		t.Errorf("title filter = %+v", results)
	}
	results, _ = ListAll(db, Options{Provider: "chatgpt", Limit: 5})
	if len(results) != 1 {
		t.Errorf("provider filter = %+v", results)
	}
}

func TestMakeSnippet(t *testing.T) {
	got := makeSnippet("the quick brown fox", "QUICK", 4)
	if got != "the >>>quick<<< bro..." {
		t.Errorf("makeSnippet = %q", got)
	}
	if got := makeSnippet("abcdef", "zz", 2); got != "abcd..." {
		t.Errorf("no match = %q", got)
	}
}
