package parse

import (
	"strings"
	"testing"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

func blockOfType(t *testing.T, m model.Message, blockType string) model.ContentBlock {
	t.Helper()
	for _, b := range m.Content {
		if b.Type == blockType {
			return b
		}
	}
	t.Fatalf("message %s has no %s block", m.ID, blockType)
	return model.ContentBlock{}
}

func TestClaudeBlocksAndAttachments(t *testing.T) {
	convs, err := ParseClaude("testdata/claude_sample.json", Options{})
	if err != nil {
		t.Fatalf("ParseClaude: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations", len(convs))
	}
	conv := convs[0]

	// messages are re-sorted by timestamp and the uuid-less one is dropped
	if got := strings.Join(messageIDs(conv), ","); got != "claude-msg-1,claude-msg-2" {
		t.Fatalf("message ids = %s", got)
	}
	if conv.Messages[0].Role != "user" {
		t.Errorf("human sender mapped to %q", conv.Messages[0].Role)
	}

	assistant := conv.Messages[1]
	if assistant.Role != "assistant" {
		t.Fatalf("role = %q", assistant.Role)
	}
	var types []string
	for _, b := range assistant.Content {
		types = append(types, b.Type)
	}
	if got := strings.Join(types, ","); got != "thinking,tool_use,tool_result,text,attachment,file" {
		t.Fatalf("block types = %s", got)
	}

	if b := blockOfType(t, assistant, "tool_use"); b.Text != "notes" {
		t.Errorf("tool_use text = %q", b.Text)
	}
	if b := blockOfType(t, assistant, "tool_result"); b.Text != "found notes" {
		t.Errorf("tool_result text = %q", b.Text)
	}
	if b := blockOfType(t, assistant, "tool_result"); b.Data["tool_use_id"] != "tool-1" {
		t.Errorf("tool_result data = %v", b.Data)
	}

	att := blockOfType(t, assistant, "attachment")
	if att.Text != "sample notes" {
		t.Errorf("attachment text = %q", att.Text)
	}
	if att.Data["file_name"] != "notes.txt" || att.Data["file_type"] != "text/plain" {
		t.Errorf("attachment data = %v", att.Data)
	}
	if att.Data["has_extracted_content"] != true {
		t.Errorf("has_extracted_content = %v", att.Data["has_extracted_content"])
	}
	if att.Data["attachment_label"] != "notes.txt (text/plain)" {
		t.Errorf("attachment_label = %v", att.Data["attachment_label"])
	}

	file := blockOfType(t, assistant, "file")
	if file.Data["file_name"] != "draft.md" || file.Text != "[File] draft.md" {
		t.Errorf("file block = %q %v", file.Text, file.Data)
	}

	if got := assistant.Text(model.ShowAll); strings.Contains(got, "ignored because blocks exist") {
		t.Error("top-level text used although content blocks exist")
	}
}

func TestClaudeFallbackNames(t *testing.T) {
	path := writeExport(t, `[{
		"uuid": "claude-conv-fallbacks",
		"name": "Fallback names",
		"created_at": "2025-01-01T00:00:00.000000Z",
		"updated_at": "2025-01-01T00:01:00.000000Z",
		"chat_messages": [{
			"uuid": "claude-msg-fallbacks",
			"sender": "assistant",
			"created_at": "2025-01-01T00:00:30.000000Z",
			"content": [{"type": "text", "text": "ok"}],
			"attachments": [
				{"file_name": "", "file_size": 10, "file_type": "txt", "extracted_content": "Attachment body"},
				{"file_name": "empty.pdf"}
			],
			"files": [{"file_name": ""}]
		}]
	}]`)

	convs, err := ParseClaude(path, Options{})
	if err != nil {
		t.Fatalf("ParseClaude: %v", err)
	}
	msg := convs[0].Messages[0]

	var attachments []model.ContentBlock
	for _, b := range msg.Content {
		if b.Type == "attachment" {
			attachments = append(attachments, b)
		}
	}
	if len(attachments) != 2 {
		t.Fatalf("got %d attachments", len(attachments))
	}
	if attachments[0].Data["file_name"] != "attachment-1" {
		t.Errorf("fallback name = %v", attachments[0].Data["file_name"])
	}
	if attachments[0].Data["file_size"] != int64(10) {
		t.Errorf("file_size = %#v", attachments[0].Data["file_size"])
	}
	if attachments[1].Text != "[Attachment] empty.pdf (unknown)" {
		t.Errorf("placeholder = %q", attachments[1].Text)
	}
	if attachments[1].Data["has_extracted_content"] != false {
		t.Errorf("has_extracted_content = %v", attachments[1].Data["has_extracted_content"])
	}

	file := blockOfType(t, msg, "file")
	if file.Data["file_name"] != "file-1" || file.Text != "[File] file-1" {
		t.Errorf("file block = %q %v", file.Text, file.Data)
	}
}

func TestClaudeTimestampsAndTopLevelText(t *testing.T) {
	path := writeExport(t, `[{
		"uuid": "c1",
		"name": "",
		"created_at": "2025-03-01T12:00:00+02:00",
		"chat_messages": [
			{"uuid": "m1", "sender": "human", "created_at": "2025-03-01T09:59:00", "text": "plain text only", "content": []},
			{"uuid": "m2", "sender": "assistant", "created_at": "2025-03-01T10:30:00Z", "content": [{"type": "voice_note", "title": "Memo"}]},
			{"uuid": "m3", "sender": "assistant", "created_at": "2025-03-01T10:31:00Z", "content": [{"type": "image"}]},
			{"uuid": "m4", "sender": "assistant", "created_at": "2025-03-01T10:32:00Z", "content": []}
		]
	}]`)

	convs, err := ParseClaude(path, Options{})
	if err != nil {
		t.Fatalf("ParseClaude: %v", err)
	}
	c := convs[0]
	if c.Title != model.UntitledTitle {
		t.Errorf("title = %q", c.Title)
	}
	if got := strings.Join(messageIDs(c), ","); got != "m1,m2,m3" {
		t.Fatalf("message ids = %s", got)
	}

	// naive timestamps are UTC; the envelope offset is honored
	if want := time.Date(2025, 3, 1, 9, 59, 0, 0, time.UTC); !c.Messages[0].Created.Equal(want) {
		t.Errorf("naive created = %v", c.Messages[0].Created)
	}
	if want := time.Date(2025, 3, 1, 9, 59, 0, 0, time.UTC); !c.Created.Equal(want) {
		t.Errorf("conversation created = %v, want tightened to %v", c.Created, want)
	}
	if want := time.Date(2025, 3, 1, 10, 31, 0, 0, time.UTC); !c.Updated.Equal(want) {
		t.Errorf("conversation updated = %v", c.Updated)
	}

	if got := c.Messages[0].Text(model.ShowAll); got != "plain text only" {
		t.Errorf("top-level text fallback = %q", got)
	}
	if got := c.Messages[1].Content[0].Text; got != "Memo" {
		t.Errorf("voice note = %q", got)
	}
	if got := c.Messages[2].Content[0].Text; got != "[Image]" {
		t.Errorf("placeholder = %q", got)
	}
}
