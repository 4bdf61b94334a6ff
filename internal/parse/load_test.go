package parse

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

func quietOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
}

func TestLoadMissingProviderIsOmitted(t *testing.T) {
	paths := Paths{
		ChatGPT: "testdata/chatgpt_sample.json",
		Claude:  "testdata/claude_sample.json",
		Gemini:  filepath.Join(t.TempDir(), "missing.json"),
	}
	res, err := Load(context.Background(), paths, quietOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("failed = %v", res.Failed)
	}
	if res.Counts[model.ChatGPT] != 3 || res.Counts[model.Claude] != 1 || res.Counts[model.Gemini] != 0 {
		t.Errorf("counts = %v", res.Counts)
	}

	providers := make(map[model.Provider]bool)
	for i, c := range res.Conversations {
		providers[c.Provider] = true
		if i > 0 && c.Created.After(res.Conversations[i-1].Created) {
			t.Errorf("conversation %d is newer than its predecessor", i)
		}
	}
	if len(providers) != 2 || !providers[model.ChatGPT] || !providers[model.Claude] {
		t.Errorf("providers = %v", providers)
	}
}

func TestLoadMalformedFileDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	bad := writeExport(t, `{"not": "a list"}`)
	paths := Paths{
		ChatGPT: bad,
		Gemini:  "testdata/gemini_sample.json",
	}
	res, err := Load(context.Background(), paths, Options{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !errors.Is(res.Failed[model.ChatGPT], ErrNotArray) {
		t.Errorf("chatgpt failure = %v", res.Failed[model.ChatGPT])
	}
	if len(res.Conversations) != 2 {
		t.Errorf("got %d conversations", len(res.Conversations))
	}
	if !strings.Contains(buf.String(), "failed to load export") {
		t.Errorf("log = %q", buf.String())
	}
	if !strings.Contains(buf.String(), "loaded conversations") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestLoadNoPaths(t *testing.T) {
	res, err := Load(context.Background(), Paths{}, quietOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Conversations) != 0 || len(res.Failed) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestLoadSameIDAcrossProviders(t *testing.T) {
	chatgpt := writeExport(t, `[{"id": "abc", "title": "from chatgpt", "create_time": 1700000000, "mapping": {}}]`)
	claude := writeExport(t, `[{"uuid": "abc", "name": "from claude", "created_at": "2024-01-01T00:00:00Z", "chat_messages": []}]`)

	res, err := Load(context.Background(), Paths{ChatGPT: chatgpt, Claude: claude}, quietOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	byKey := make(map[model.Key]model.Conversation)
	for _, c := range res.Conversations {
		byKey[c.Key()] = c
	}
	if len(byKey) != 2 {
		t.Fatalf("keys = %v", byKey)
	}
	if byKey[model.Key{Provider: model.ChatGPT, ID: "abc"}].Title != "from chatgpt" {
		t.Error("chatgpt conversation lost")
	}
	if byKey[model.Key{Provider: model.Claude, ID: "abc"}].Title != "from claude" {
		t.Error("claude conversation lost")
	}
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, Paths{ChatGPT: "testdata/chatgpt_sample.json"}, quietOptions())
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
