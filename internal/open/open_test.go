package open

import (
	"strings"
	"testing"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/export"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

func TestLineOf(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	c := model.Conversation{
		ID: "c1", Provider: model.ChatGPT, Title: "Lines", Created: at,
		Messages: []model.Message{
			{ID: "a", Role: "user", Created: at, Content: []model.ContentBlock{{Type: "text", Text: "first\nsecond"}}},
			{ID: "hidden", Role: "system", Created: at, Content: []model.ContentBlock{{Type: "text", Text: "sys"}}},
			{ID: "b", Role: "user", Created: at, Content: []model.ContentBlock{{Type: "text", Text: "again"}}},
		},
	}
	vis := model.Visibility{}
	lines := strings.Split(export.Markdown(c, vis), "\n")

	tests := []struct {
		id   string
		want string
	}{
		{"a", "first"},
		{"b", "again"},
	}
	for _, tt := range tests {
		n := LineOf(c, vis, tt.id)
		if n < 1 || n+1 >= len(lines) {
			t.Fatalf("LineOf(%s) = %d", tt.id, n)
		}
		if !strings.HasPrefix(lines[n-1], "## ") || lines[n+1] != tt.want {
			t.Errorf("LineOf(%s) = %d, header %q body %q", tt.id, n, lines[n-1], lines[n+1])
		}
	}
	if n := LineOf(c, vis, "b"); n == LineOf(c, vis, "a") {
		t.Error("same header resolved to the same line")
	}
	for _, id := range []string{"", "hidden", "missing"} {
		if n := LineOf(c, vis, id); n != 1 {
			t.Errorf("LineOf(%q) = %d, want 1", id, n)
		}
	}
}
