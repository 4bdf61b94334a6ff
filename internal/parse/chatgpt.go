package parse

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

var chatgptAssetKinds = map[string]string{
	"image_asset_pointer":                      "image",
	"audio_asset_pointer":                      "audio",
	"real_time_user_audio_video_asset_pointer": "audio",
}

// ParseChatGPT parses a ChatGPT conversations.json export. Each conversation
// is a tree of nodes; only the branch ending at current_node is kept.
func ParseChatGPT(path string, opts Options) ([]model.Conversation, error) {
	raw, err := readArray(path)
	if err != nil {
		return nil, err
	}

	var convs []model.Conversation
	for _, rc := range raw {
		if !rc.IsObject() {
			continue
		}
		if conv, ok := parseChatGPTConversation(rc, opts); ok {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

func parseChatGPTConversation(rc gjson.Result, opts Options) (model.Conversation, bool) {
	id := firstTruthyString(rc, "id", "conversation_id")
	if id == "" {
		return model.Conversation{}, false
	}

	created := unixOr(field(rc, "create_time"), opts.now())
	conv := model.Conversation{
		ID:       id,
		Provider: model.ChatGPT,
		Title:    firstTruthyString(rc, "title"),
		Created:  created,
		Updated:  unixOr(field(rc, "update_time"), created),
	}
	if conv.Title == "" {
		conv.Title = model.UntitledTitle
	}
	defaultModel := scalarString(field(rc, "default_model_slug"))

	nodes := make(map[string]gjson.Result)
	var order []string
	field(rc, "mapping").ForEach(func(k, v gjson.Result) bool {
		if _, dup := nodes[k.Str]; !dup {
			order = append(order, k.Str)
		}
		nodes[k.Str] = v
		return true
	})

	for _, nodeID := range activeBranch(nodes, order, field(rc, "current_node")) {
		rm := field(nodes[nodeID], "message")
		if !rm.IsObject() {
			continue
		}
		msg, ok := parseChatGPTMessage(rm, nodeID, created, defaultModel)
		if !ok {
			continue
		}
		conv.Messages = append(conv.Messages, msg)
	}

	conv.Tighten(conv.Messages)
	return conv, true
}

func parseChatGPTMessage(rm gjson.Result, nodeID string, convCreated time.Time, defaultModel string) (model.Message, bool) {
	metadata := field(rm, "metadata")
	if metadata.IsObject() && truthy(field(metadata, "is_visually_hidden_from_conversation")) {
		return model.Message{}, false
	}

	id := firstTruthyString(rm, "id")
	if id == "" {
		id = nodeID
	}
	role := scalarString(field(field(rm, "author"), "role"))
	if role == "" {
		role = "unknown"
	}
	created := unixOr(field(rm, "create_time"), convCreated)
	updated := unixOr(field(rm, "update_time"), created)

	modelName := scalarString(field(metadata, "model_slug"))
	if modelName == "" {
		modelName = defaultModel
	}

	blocks := parseChatGPTContent(field(rm, "content"), metadata)
	if len(blocks) == 0 {
		return model.Message{}, false
	}
	return model.Message{
		ID:       id,
		Provider: model.ChatGPT,
		Role:     role,
		Created:  created,
		Updated:  &updated,
		Model:    modelName,
		Content:  blocks,
	}, true
}

// activeBranch walks parent pointers from current back to the root. When
// current is absent it orders every node carrying a message by create_time,
// breaking ties by node id.
func activeBranch(nodes map[string]gjson.Result, order []string, current gjson.Result) []string {
	if len(nodes) == 0 {
		return nil
	}

	if cur := scalarString(current); cur != "" {
		if _, ok := nodes[cur]; ok {
			var path []string
			seen := make(map[string]bool)
			for cursor := cur; cursor != "" && !seen[cursor]; {
				node, ok := nodes[cursor]
				if !ok {
					break
				}
				seen[cursor] = true
				path = append(path, cursor)
				cursor = scalarString(field(node, "parent"))
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
	}

	type timedNode struct {
		ts float64
		id string
	}
	var sortable []timedNode
	for _, id := range order {
		msg := field(nodes[id], "message")
		if !msg.IsObject() {
			continue
		}
		ct := field(msg, "create_time")
		if ct.Type != gjson.Number {
			continue
		}
		sortable = append(sortable, timedNode{ct.Num, id})
	}
	sort.SliceStable(sortable, func(i, j int) bool {
		if sortable[i].ts != sortable[j].ts {
			return sortable[i].ts < sortable[j].ts
		}
		return sortable[i].id < sortable[j].id
	})
	out := make([]string, len(sortable))
	for i, n := range sortable {
		out[i] = n.id
	}
	return out
}

func parseChatGPTContent(content, metadata gjson.Result) []model.ContentBlock {
	if !content.IsObject() {
		return nil
	}
	contentType := scalarString(field(content, "content_type"))
	if contentType == "" {
		contentType = "unknown"
	}

	var blocks []model.ContentBlock
	switch contentType {
	case "thoughts":
		if s := extractText(field(content, "thoughts")); s != "" {
			blocks = append(blocks, textBlock("thoughts", s, nil))
		}
	case "reasoning_recap":
		if s := extractText(field(content, "content")); s != "" {
			blocks = append(blocks, textBlock("reasoning_recap", s, nil))
		}
	case "tether_browsing_display":
		if s := firstText(content, "summary", "result"); s != "" {
			blocks = append(blocks, textBlock("tether_browsing_display", s, nil))
		}
	default:
		if s := extractText(field(content, "text")); s != "" {
			blocks = append(blocks, textBlock(contentType, s, lightweightMetadata(content)))
		}
		for _, part := range field(content, "parts").Array() {
			blocks = append(blocks, parseChatGPTPart(contentType, part)...)
		}
	}

	// code cells keep their source in the message metadata
	if contentType == "code" && len(blocks) == 0 {
		if s := firstText(metadata, "finished_text", "initial_text"); s != "" {
			blocks = append(blocks, textBlock("code", s, lightweightMetadata(metadata, content)))
		}
	}

	if len(blocks) == 0 {
		fallback := extractText(content)
		if fallback == "" && contentType == "text" {
			return nil
		}
		if fallback != "" && strings.EqualFold(strings.TrimSpace(fallback), strings.TrimSpace(contentType)) {
			if contentType == "text" {
				return nil
			}
			fallback = ""
		}
		if fallback == "" {
			fallback = placeholder(contentType)
		}
		blocks = append(blocks, textBlock(contentType, fallback, lightweightMetadata(content)))
	}

	return dedupeBlocks(blocks, metadata)
}

func parseChatGPTPart(contentType string, part gjson.Result) []model.ContentBlock {
	if part.Type == gjson.String {
		if s := strings.TrimSpace(part.Str); s != "" {
			return []model.ContentBlock{textBlock(contentType, s, nil)}
		}
		return nil
	}
	if !part.IsObject() {
		return nil
	}

	partType := "object"
	if ct := field(part, "content_type"); ct.Exists() {
		partType = scalarString(ct)
	}
	text := firstText(part, "text", "message", "title")
	asset, isAsset := chatgptAsset(partType, part)
	if text == "" {
		text = assetPlaceholder(partType)
	}

	data := lightweightMetadata(part)
	if isAsset {
		data["asset"] = asset
	}
	return []model.ContentBlock{textBlock(partType, text, data)}
}

func assetPlaceholder(partType string) string {
	switch chatgptAssetKinds[partType] {
	case "image":
		return "[Image]"
	case "audio":
		return "[Audio]"
	}
	return placeholder(partType)
}

func chatgptAsset(partType string, part gjson.Result) (model.Asset, bool) {
	kind, ok := chatgptAssetKinds[partType]
	if !ok {
		return model.Asset{}, false
	}
	var pointer *string
	for _, k := range []string{"asset_pointer", "audio_asset_pointer", "video_container_asset_pointer", "id"} {
		if p := strOrNil(field(part, k)); p != nil {
			pointer = p
			break
		}
	}
	var duration *float64
	for _, k := range []string{"duration_seconds", "duration_sec", "duration"} {
		if d := floatOrNil(field(part, k)); d != nil {
			duration = d
			break
		}
	}
	return model.Asset{
		Kind:          kind,
		SourcePointer: pointer,
		MimeType:      strOrNil(field(part, "mime_type")),
		SizeBytes:     intOrNil(field(part, "size_bytes")),
		Width:         intOrNil(field(part, "width")),
		Height:        intOrNil(field(part, "height")),
		Format:        strOrNil(field(part, "format")),
		Duration:      duration,
	}, true
}

// dedupeBlocks rewrites citations and drops blocks that render to the same
// type, whitespace-normalized text and asset pointer as an earlier one.
func dedupeBlocks(blocks []model.ContentBlock, metadata gjson.Result) []model.ContentBlock {
	var out []model.ContentBlock
	seen := make(map[string]bool)
	for _, b := range blocks {
		rendered := strings.TrimSpace(applyContentReferences(b.Text, metadata))
		if rendered == "" {
			continue
		}
		key := dedupeKey(b, rendered)
		if seen[key] {
			continue
		}
		seen[key] = true
		b.Text = rendered
		out = append(out, b)
	}
	return out
}

func dedupeKey(b model.ContentBlock, rendered string) string {
	parts := []string{b.Type, strings.Join(strings.Fields(rendered), " ")}
	if a, ok := b.Asset(); ok && a.SourcePointer != nil && *a.SourcePointer != "" {
		parts = append(parts, *a.SourcePointer)
	} else if p, ok := b.Data["asset_pointer"].(string); ok && strings.TrimSpace(p) != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, "\x00")
}

// firstTruthyString returns the first truthy key of obj, stringified and trimmed.
func firstTruthyString(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := field(obj, k); truthy(v) {
			return strings.TrimSpace(scalarString(v))
		}
	}
	return ""
}
