package parse

import (
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

// ParseClaude parses a Claude conversations.json export: a flat list of
// conversations, each with an ordered chat_messages array.
func ParseClaude(path string, opts Options) ([]model.Conversation, error) {
	raw, err := readArray(path)
	if err != nil {
		return nil, err
	}

	var convs []model.Conversation
	for _, rc := range raw {
		if !rc.IsObject() {
			continue
		}
		id := firstTruthyString(rc, "uuid")
		if id == "" {
			continue
		}

		created := isoOr(field(rc, "created_at"), opts.now())
		conv := model.Conversation{
			ID:       id,
			Provider: model.Claude,
			Title:    firstTruthyString(rc, "name"),
			Created:  created,
			Updated:  isoOr(field(rc, "updated_at"), created),
		}
		if conv.Title == "" {
			conv.Title = model.UntitledTitle
		}

		for _, rm := range field(rc, "chat_messages").Array() {
			if !rm.IsObject() {
				continue
			}
			if msg, ok := parseClaudeMessage(rm, created); ok {
				conv.Messages = append(conv.Messages, msg)
			}
		}

		// array order is not guaranteed to be chronological
		sort.SliceStable(conv.Messages, func(i, j int) bool {
			return conv.Messages[i].Created.Before(conv.Messages[j].Created)
		})
		conv.Tighten(conv.Messages)
		convs = append(convs, conv)
	}
	return convs, nil
}

func parseClaudeMessage(rm gjson.Result, convCreated time.Time) (model.Message, bool) {
	id := firstTruthyString(rm, "uuid")
	if id == "" {
		return model.Message{}, false
	}

	sender := firstTruthyString(rm, "sender")
	if sender == "" {
		sender = "unknown"
	}
	role := sender
	if sender == "human" {
		role = "user"
	}
	created := isoOr(field(rm, "created_at"), convCreated)
	updated := isoOr(field(rm, "updated_at"), created)

	var blocks []model.ContentBlock
	for _, b := range field(rm, "content").Array() {
		if b.IsObject() {
			blocks = append(blocks, parseClaudeBlock(b))
		}
	}

	// top-level text duplicates the blocks; use it only when they are absent
	if len(blocks) == 0 {
		if s := extractText(field(rm, "text")); s != "" {
			blocks = append(blocks, textBlock("text", s, nil))
		}
	}

	for i, a := range field(rm, "attachments").Array() {
		if a.IsObject() {
			blocks = append(blocks, claudeAttachmentBlock(a, i))
		}
	}
	for i, f := range field(rm, "files").Array() {
		if f.IsObject() {
			blocks = append(blocks, claudeFileBlock(f, i))
		}
	}

	if len(blocks) == 0 {
		return model.Message{}, false
	}
	return model.Message{
		ID:       id,
		Provider: model.Claude,
		Role:     role,
		Created:  created,
		Updated:  &updated,
		Content:  blocks,
	}, true
}

func parseClaudeBlock(b gjson.Result) model.ContentBlock {
	blockType := firstTruthyString(b, "type")
	if blockType == "" {
		blockType = "unknown"
	}

	var text string
	switch blockType {
	case "text":
		text = extractText(field(b, "text"))
	case "thinking":
		text = extractText(field(b, "thinking"))
	case "tool_use":
		text = firstText(b, "message", "input")
	case "tool_result":
		text = firstText(b, "message", "content", "display_content")
	case "voice_note":
		text = firstText(b, "text", "title")
	default:
		text = extractText(b)
	}
	if text == "" {
		text = placeholder(blockType)
	}
	return textBlock(blockType, text, lightweightMetadata(b))
}

func claudeAttachmentBlock(a gjson.Result, index int) model.ContentBlock {
	name := str(field(a, "file_name"))
	if name == "" {
		name = fmt.Sprintf("attachment-%d", index+1)
	}
	fileType := str(field(a, "file_type"))
	if fileType == "" {
		fileType = "unknown"
	}
	extracted := str(field(a, "extracted_content"))

	data := lightweightMetadata(a)
	data["file_name"] = name
	data["file_type"] = fileType
	data["attachment_index"] = index
	if size := intOrNil(field(a, "file_size")); size != nil {
		data["file_size"] = *size
	}

	label := fmt.Sprintf("%s (%s)", name, fileType)
	if extracted != "" {
		data["has_extracted_content"] = true
		data["attachment_label"] = label
		data["extracted_content_length"] = len([]rune(extracted))
		return textBlock("attachment", extracted, data)
	}
	data["has_extracted_content"] = false
	return textBlock("attachment", "[Attachment] "+label, data)
}

func claudeFileBlock(f gjson.Result, index int) model.ContentBlock {
	name := str(field(f, "file_name"))
	if name == "" {
		name = fmt.Sprintf("file-%d", index+1)
	}
	data := lightweightMetadata(f)
	data["file_name"] = name
	data["file_index"] = index
	return textBlock("file", "[File] "+name, data)
}
