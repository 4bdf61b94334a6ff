package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/embed"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

const t0 = 1704067200 // 2024-01-01T00:00:00Z

const chatgptExport = `[{
  "id": "abc", "title": "Go tips", "create_time": 1704067200, "update_time": 1704074460,
  "current_node": "n3",
  "mapping": {
    "n1": {"id": "n1", "parent": null, "message": {"id": "u1", "author": {"role": "user"}, "create_time": 1704067200,
      "content": {"content_type": "text", "parts": ["How to write golang tests?"]}, "metadata": {}}},
    "n2": {"id": "n2", "parent": "n1", "message": {"id": "a1", "author": {"role": "assistant"}, "create_time": 1704067260,
      "content": {"content_type": "multimodal_text", "parts": [
        "Use the testing package.",
        {"content_type": "image_asset_pointer", "asset_pointer": "file-service://file-img-1", "width": 10, "height": 20}
      ]}, "metadata": {"model_slug": "gpt-4o"}}},
    "n3": {"id": "n3", "parent": "n2", "message": {"id": "u2", "author": {"role": "user"}, "create_time": 1704074460,
      "content": {"content_type": "text", "parts": ["Thanks **a lot**"]}, "metadata": {}}}
  }
}]`

const claudeExport = `[{
  "uuid": "abc", "name": "Rust notes",
  "created_at": "2024-01-01T05:00:00Z", "updated_at": "2024-01-01T05:00:30Z",
  "chat_messages": [
    {"uuid": "h1", "sender": "human", "created_at": "2024-01-01T05:00:00Z", "content": [{"type": "text", "text": "golang vs rust?"}]},
    {"uuid": "r1", "sender": "assistant", "created_at": "2024-01-01T05:00:30Z", "content": [{"type": "text", "text": "Both are fine."}]}
  ]
}]`

type memFavorites map[model.Key]bool

func (m memFavorites) Keys() (map[model.Key]bool, error) { return m, nil }

func (m memFavorites) Toggle(k model.Key) (bool, error) {
	m[k] = !m[k]
	return m[k], nil
}

type wordTokenizer struct{}

func (wordTokenizer) Count(_, text string) int { return len(strings.Fields(text)) }

type fakeIndex struct {
	built []model.Provider
	hits  []embed.Hit
	err   error
	calls int
}

func (f *fakeIndex) Build(_ context.Context, p model.Provider, _ []model.Conversation) error {
	f.built = append(f.built, p)
	return nil
}

func (f *fakeIndex) Query(context.Context, string, int) ([]embed.Hit, error) {
	f.calls++
	return f.hits, f.err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:     dir,
		ChatGPTPath: filepath.Join(dir, "chatgpt", "conversations.json"),
		ClaudePath:  filepath.Join(dir, "claude", "conversations.json"),
	}
	writeFile(t, cfg.ChatGPTPath, chatgptExport)
	writeFile(t, cfg.ClaudePath, claudeExport)
	writeFile(t, filepath.Join(dir, "chatgpt", "file-img-1-full.png"), "png")
	return cfg
}

var testNow = time.Unix(1704074460+3*3600, 0)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Now = func() time.Time { return testNow }
	s := New(testConfig(t), opts)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestSameIDAcrossProviders(t *testing.T) {
	s := newTestService(t, Options{})

	if n := len(s.Conversations()); n != 2 {
		t.Fatalf("got %d conversations", n)
	}
	gpt, err := s.Messages(model.ChatGPT, "abc")
	if err != nil {
		t.Fatalf("Messages(chatgpt): %v", err)
	}
	cl, err := s.Messages(model.Claude, "abc")
	if err != nil {
		t.Fatalf("Messages(claude): %v", err)
	}
	if gpt.Provider != model.ChatGPT || cl.Provider != model.Claude {
		t.Errorf("providers = %s, %s", gpt.Provider, cl.Provider)
	}
	if cl.Messages[0].Text != "golang vs rust?" || cl.OpenURL != "https://claude.ai/chat/abc" {
		t.Errorf("claude view = %+v", cl)
	}
	if _, err := s.Messages(model.Gemini, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("gemini err = %v", err)
	}
}

func TestMessagesInsertsGapMarker(t *testing.T) {
	s := newTestService(t, Options{})

	view, err := s.Messages(model.ChatGPT, "abc")
	if err != nil {
		t.Fatal(err)
	}
	var roles []string
	for _, m := range view.Messages {
		roles = append(roles, m.Role)
	}
	if got := strings.Join(roles, ","); got != "user,assistant,internal,user" {
		t.Fatalf("roles = %s", got)
	}
	gap := view.Messages[2]
	if gap.Text != "2 hours passed" || gap.Blocks == nil || len(gap.Blocks) != 0 || gap.Created != "" {
		t.Errorf("gap marker = %+v", gap)
	}
	if view.Messages[0].Created != time.Unix(t0, 0).Local().Format(model.DisplayLayout) {
		t.Errorf("created = %q", view.Messages[0].Created)
	}
}

func TestAssetsResolvedOnLoad(t *testing.T) {
	s := newTestService(t, Options{})

	view, _ := s.Messages(model.ChatGPT, "abc")
	var asset model.Asset
	for _, b := range view.Messages[1].Blocks {
		if a, ok := b.Asset(); ok {
			asset = a
		}
	}
	if !asset.IsResolved || asset.AssetID == nil {
		t.Fatalf("asset = %+v", asset)
	}
	r, err := s.Asset(model.ChatGPT, *asset.AssetID)
	if err != nil {
		t.Fatalf("Asset: %v", err)
	}
	if filepath.Base(r.Path) != "file-img-1-full.png" || r.MediaType != "image/png" {
		t.Errorf("resolved = %+v", r)
	}
	if _, err := s.Asset(model.ChatGPT, "not-found"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing asset err = %v", err)
	}
}

func TestListConversationsAndFavorites(t *testing.T) {
	favs := memFavorites{}
	s := newTestService(t, Options{Favorites: favs})

	on, err := s.ToggleFavorite(model.Claude, "abc")
	if err != nil || !on {
		t.Fatalf("ToggleFavorite = %v, %v", on, err)
	}
	if _, err := s.ToggleFavorite(model.Claude, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("toggle unknown err = %v", err)
	}

	items := s.ListConversations()
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	// newest first
	if items[0].Provider != model.Claude || !items[0].IsFavorite || items[1].IsFavorite {
		t.Errorf("items = %+v", items)
	}
	if items[1].TotalLength != "2h 1m" || items[0].TotalLength != "30s" {
		t.Errorf("total lengths = %q, %q", items[1].TotalLength, items[0].TotalLength)
	}
	if items[1].OpenURL != "https://chat.openai.com/c/abc" || items[1].Title != "Go tips" {
		t.Errorf("chatgpt item = %+v", items[1])
	}
}

func TestActivity(t *testing.T) {
	s := newTestService(t, Options{})

	a := s.Activity()
	if len(a.Providers) != 2 || a.Providers[0] != model.ChatGPT || a.Providers[1] != model.Claude {
		t.Errorf("providers = %v", a.Providers)
	}
	if a.ProviderTotals[model.ChatGPT] != 3 || a.ProviderTotals[model.Claude] != 2 {
		t.Errorf("totals = %v", a.ProviderTotals)
	}
	sum := 0
	for _, d := range a.Days {
		sum += d.Total
	}
	if sum != 5 {
		t.Errorf("day totals sum to %d", sum)
	}

	day := dayOf(time.Unix(t0, 0))
	want := 0
	c, _ := s.Conversation(model.ChatGPT, "abc")
	for _, m := range c.Messages {
		if dayOf(m.Created) == day {
			want++
		}
	}
	d := s.ActivityDay(day, model.ChatGPT)
	if d.TotalMessages != want || len(d.Conversations) != 1 || d.Conversations[0].ID != "abc" {
		t.Errorf("day detail = %+v", d)
	}
	if d.Provider == nil || *d.Provider != model.ChatGPT {
		t.Errorf("provider = %v", d.Provider)
	}
	if empty := s.ActivityDay("1999-01-01", ""); empty.TotalMessages != 0 || empty.Provider != nil || empty.Conversations == nil {
		t.Errorf("empty day = %+v", empty)
	}
}

func TestStatistics(t *testing.T) {
	s := newTestService(t, Options{})

	st := s.Statistics()
	if st.Summary.Conversations != "2" || st.Summary.Messages != "5" {
		t.Errorf("summary = %+v", st.Summary)
	}
	if st.Summary.Providers != "chatgpt: 1, claude: 1" {
		t.Errorf("providers = %q", st.Summary.Providers)
	}
	if st.Summary.BackupAge != "3 hours" {
		t.Errorf("backup age = %q", st.Summary.BackupAge)
	}
	if st.Summary.FirstMessage != dayOf(time.Unix(t0, 0)) {
		t.Errorf("first = %q", st.Summary.FirstMessage)
	}
	if got := st.ByProvider[model.Claude]; got.Messages != "2" || got.Providers != "" {
		t.Errorf("claude stats = %+v", got)
	}

	empty := New(&config.Config{}, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Statistics()
	if empty.Summary.BackupAge != notAvailable || empty.Summary.Providers != notAvailable {
		t.Errorf("empty stats = %+v", empty.Summary)
	}
}

func TestTokenStatistics(t *testing.T) {
	s := newTestService(t, Options{Tokenizer: wordTokenizer{}})

	rows := s.TokenStatistics()
	want := []TokenRow{
		{Provider: model.ChatGPT, Model: "unknown", InputTokens: 8, OutputTokens: 0, TotalTokens: 8},
		{Provider: model.ChatGPT, Model: "gpt-4o", InputTokens: 0, OutputTokens: 5, TotalTokens: 5},
		{Provider: model.Claude, Model: "unknown", InputTokens: 3, OutputTokens: 3, TotalTokens: 6},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestStrictSearch(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	res := s.Search(ctx, "golang", 0)
	if len(res) != 2 {
		t.Fatalf("results = %+v", res)
	}
	if res[0].Provider != model.Claude || res[0].Type != "message" || res[0].Role != "user" {
		t.Errorf("first = %+v", res[0])
	}

	res = s.Search(ctx, "rust", 10)
	if len(res) != 2 || res[0].Type != "conversation" || res[0].Role != "user" || res[0].Title != "Rust notes" {
		t.Errorf("title match = %+v", res)
	}

	res = s.Search(ctx, `"a lot"`, 10)
	if len(res) != 1 {
		t.Fatalf("exact results = %+v", res)
	}
	if !strings.Contains(res[0].Text, "<strong>a lot</strong>") {
		t.Errorf("text = %q", res[0].Text)
	}
	if res[0].InternalURL != "/?conv_id=abc&provider=chatgpt" {
		t.Errorf("internal url = %q", res[0].InternalURL)
	}

	if res := s.Search(ctx, "golang", 1); len(res) != 1 {
		t.Errorf("limit ignored: %d results", len(res))
	}
	if res := s.Search(ctx, "   ", 10); res == nil || len(res) != 0 {
		t.Errorf("blank query = %v", res)
	}
}

func TestSemanticSearch(t *testing.T) {
	idx := &fakeIndex{hits: []embed.Hit{
		{Provider: model.ChatGPT, Type: embed.TypeMessage, ConversationID: "abc", ItemID: "u2", Score: 0.9},
		{Provider: model.ChatGPT, Type: embed.TypeMessage, ConversationID: "abc", ItemID: "u2", Score: 0.8},
		{Provider: model.Claude, Type: embed.TypeConversation, ConversationID: "abc", ItemID: "abc", Score: 0.7},
		{Provider: model.Claude, Type: embed.TypeMessage, ConversationID: "gone", ItemID: "x", Score: 0.6},
	}}
	s := newTestService(t, Options{Embedder: idx})
	ctx := context.Background()

	if len(idx.built) != 2 {
		t.Errorf("built = %v", idx.built)
	}

	res := s.Search(ctx, "thanks", 10)
	if len(res) != 2 {
		t.Fatalf("results = %+v", res)
	}
	if res[0].Provider != model.ChatGPT || res[0].Type != "message" || !strings.Contains(res[0].Text, "Thanks") {
		t.Errorf("first = %+v", res[0])
	}
	if res[1].Provider != model.Claude || res[1].Type != "conversation" {
		t.Errorf("second = %+v", res[1])
	}

	// quoted queries never reach the index
	calls := idx.calls
	s.Search(ctx, `"golang"`, 10)
	if idx.calls != calls {
		t.Error("exact query used the semantic index")
	}

	idx.err = errors.New("api down")
	res = s.Search(ctx, "golang", 10)
	if len(res) != 2 || res[0].Type != "message" {
		t.Errorf("fallback results = %+v", res)
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	s := newTestService(t, Options{})
	before := s.Conversations()

	writeFile(t, s.cfg.ClaudePath, `[]`)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(s.Conversations()) != 1 {
		t.Errorf("after reload: %d conversations", len(s.Conversations()))
	}
	if len(before) != 2 {
		t.Errorf("previous snapshot changed: %d", len(before))
	}
}
