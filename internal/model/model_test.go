package model

import (
	"testing"
	"time"
)

type wordCounter struct{}

func (wordCounter) Count(_, text string) int { return len(text) }

func sampleMessage() Message {
	return Message{
		ID:       "m1",
		Provider: ChatGPT,
		Role:     "assistant",
		Created:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Content: []ContentBlock{
			{Type: "text", Text: "  hello  "},
			{Type: "thinking", Text: "pondering"},
			{Type: "tool_use", Text: "ls -la"},
			{Type: "image_asset_pointer", Text: "[Image]"},
			{Type: "system_error", Text: "boom"},
			{Type: "text", Text: "   "},
		},
	}
}

func TestMessageTextVisibility(t *testing.T) {
	m := sampleMessage()

	tests := []struct {
		name string
		vis  Visibility
		want string
	}{
		{"all", ShowAll, "hello\n\npondering\n\nls -la\n\n[Image]\n\nboom"},
		{"no thinking", Visibility{IncludeSystem: true, IncludeTool: true, IncludeAttachments: true}, "hello\n\nls -la\n\n[Image]\n\nboom"},
		{"no tool", Visibility{IncludeSystem: true, IncludeThinking: true, IncludeAttachments: true}, "hello\n\npondering\n\n[Image]\n\nboom"},
		{"no attachments", Visibility{IncludeSystem: true, IncludeTool: true, IncludeThinking: true}, "hello\n\npondering\n\nls -la\n\nboom"},
		{"no system blocks", Visibility{IncludeTool: true, IncludeThinking: true, IncludeAttachments: true}, "hello\n\npondering\n\nls -la\n\n[Image]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Text(tt.vis); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoleSuppressionBeforeBlocks(t *testing.T) {
	sys := Message{Role: "system", Content: []ContentBlock{{Type: "text", Text: "be nice"}}}
	if got := sys.VisibleBlocks(Visibility{IncludeTool: true}); len(got) != 0 {
		t.Fatalf("system message visible with IncludeSystem=false: %v", got)
	}

	tool := Message{Role: "tool", Content: []ContentBlock{{Type: "text", Text: "output"}}}
	if got := tool.Text(Visibility{IncludeSystem: true}); got != "" {
		t.Fatalf("tool message text = %q, want empty", got)
	}
	if got := tool.Text(ShowAll); got != "output" {
		t.Fatalf("tool message text = %q", got)
	}
}

func TestTextIsStable(t *testing.T) {
	m := sampleMessage()
	if m.Text(ShowAll) != m.Text(ShowAll) {
		t.Fatal("Text() not stable")
	}
}

func TestCountTokens(t *testing.T) {
	m := Message{Content: []ContentBlock{{Type: "text", Text: "abcd"}}}
	if got := m.CountTokens(wordCounter{}); got != 4 {
		t.Fatalf("CountTokens = %d", got)
	}
	empty := Message{}
	if got := empty.CountTokens(wordCounter{}); got != 0 {
		t.Fatalf("CountTokens(empty) = %d", got)
	}
	if got := m.CountTokens(nil); got != 0 {
		t.Fatalf("CountTokens(nil) = %d", got)
	}
}

func TestConversationDerived(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := Conversation{ID: "abc", Provider: Claude, Created: start}
	if c.TitleOrDefault() != UntitledTitle {
		t.Errorf("TitleOrDefault = %q", c.TitleOrDefault())
	}
	if c.TotalLength() != 0 {
		t.Errorf("TotalLength(empty) = %v", c.TotalLength())
	}

	c.Messages = []Message{
		{Created: start.Add(-time.Hour)},
		{Created: start.Add(90 * time.Second)},
		{Created: start.Add(30 * time.Second)},
	}
	if got := c.TotalLength(); got != 90*time.Second {
		t.Errorf("TotalLength = %v", got)
	}

	urls := map[Provider]string{
		Claude:  "https://claude.ai/chat/abc",
		Gemini:  "https://aistudio.google.com/",
		ChatGPT: "https://chat.openai.com/c/abc",
	}
	for p, want := range urls {
		c.Provider = p
		if got := c.OpenURL(); got != want {
			t.Errorf("OpenURL(%s) = %q, want %q", p, got, want)
		}
	}
}

func TestTighten(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := Conversation{Created: start, Updated: start.Add(time.Minute)}
	c.Tighten([]Message{{Created: start.Add(-time.Minute)}, {Created: start.Add(time.Hour)}})
	if !c.Created.Equal(start.Add(-time.Minute)) || !c.Updated.Equal(start.Add(time.Hour)) {
		t.Fatalf("Tighten = %v .. %v", c.Created, c.Updated)
	}

	unordered := Conversation{Created: start, Updated: start}
	unordered.Tighten([]Message{{Created: start.Add(time.Hour)}, {Created: start}, {Created: start.Add(-time.Hour)}, {Created: start.Add(time.Minute)}})
	if !unordered.Created.Equal(start.Add(-time.Hour)) || !unordered.Updated.Equal(start.Add(time.Hour)) {
		t.Fatalf("Tighten unordered = %v .. %v", unordered.Created, unordered.Updated)
	}

	empty := Conversation{Created: start, Updated: start}
	empty.Tighten(nil)
	if !empty.Created.Equal(start) || !empty.Updated.Equal(start) {
		t.Fatal("Tighten changed empty conversation")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := Conversation{Messages: []Message{{Content: []ContentBlock{{Type: "text", Text: "x", Data: map[string]any{"k": 1}}}}}}
	cp := c.Clone()
	cp.Messages[0].Content[0].Data["k"] = 2
	cp.Messages[0].Content[0].Text = "y"
	if c.Messages[0].Content[0].Data["k"] != 1 || c.Messages[0].Content[0].Text != "x" {
		t.Fatal("Clone shares state with original")
	}
}

func TestParseProvider(t *testing.T) {
	if p, ok := ParseProvider(" ChatGPT "); !ok || p != ChatGPT {
		t.Fatalf("ParseProvider = %v, %v", p, ok)
	}
	if _, ok := ParseProvider("bard"); ok {
		t.Fatal("ParseProvider accepted unknown provider")
	}
}

func TestTiktokenCounterOffline(t *testing.T) {
	c := NewTiktokenCounter()
	for _, name := range []string{"", "not-a-model"} {
		if got := c.Count(name, "hello world"); got != 2 {
			t.Errorf("Count(%q) = %d, want 2", name, got)
		}
	}
	if got := c.Count("", ""); got != 0 {
		t.Errorf("Count(empty) = %d", got)
	}
}
