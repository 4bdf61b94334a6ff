package parse

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

// Known keys per level of an AI Studio export. Anything else is schema drift.
var (
	geminiConversationKeys = keySet(
		"id", "title", "create_time", "update_time",
		"chunkedPrompt", "runSettings", "systemInstruction", "imagenPrompt",
	)
	geminiChunkedPromptKeys = keySet("chunks", "pendingInputs")
	geminiChunkKeys         = keySet(
		"text", "parts", "role", "tokenCount", "finishReason",
		"isEdited", "branchParent", "branchChildren",
		"grounding", "thoughtSignatures", "thinkingBudget",
		"inlineImage", "inlineAudio", "driveDocument", "driveVideo",
		"driveAudio", "driveImage",
		"inlineData", "isGeneratedUsingApiKey", "isThought",
	)
	geminiPartKeys        = keySet("text", "thought", "thoughtSignature", "inlineData")
	geminiRunSettingsKeys = keySet(
		"model", "temperature", "topP", "topK", "maxOutputTokens",
		"safetySettings", "responseMimeType",
		"responseModalities", "thinkingConfig",
		"enableCodeExecution", "enableSearchAsATool",
		"enableBrowseAsATool", "enableAutoFunctionResponse",
		"outputResolution", "googleSearch", "thinkingLevel",
		"thinkingBudget", "assetCount", "aspectRatio",
	)
)

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// ParseGemini parses a Google AI Studio export merged into one JSON array.
// Chunks carry no timestamps, so chunk i is placed i seconds after the
// conversation start.
func ParseGemini(path string, opts Options) ([]model.Conversation, error) {
	report := NewReport(string(model.Gemini))
	defer report.Log(opts.logger())

	raw, err := readArray(path)
	if err != nil {
		report.RecordWarning(err.Error())
		return nil, err
	}

	var convs []model.Conversation
	for _, rc := range raw {
		if !rc.IsObject() {
			continue
		}
		if conv, ok := parseGeminiConversation(rc, report, opts); ok {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

func parseGeminiConversation(rc gjson.Result, report *Report, opts Options) (model.Conversation, bool) {
	id := firstTruthyString(rc, "id")
	if id == "" {
		return model.Conversation{}, false
	}

	created := unixOr(field(rc, "create_time"), opts.now())
	conv := model.Conversation{
		ID:       id,
		Provider: model.Gemini,
		Title:    firstTruthyString(rc, "title"),
		Created:  created,
		Updated:  unixOr(field(rc, "update_time"), created),
	}
	if conv.Title == "" {
		conv.Title = model.UntitledTitle
	}

	runSettings := field(rc, "runSettings")
	modelName := geminiModel(runSettings)

	report.CheckKeys(rc, geminiConversationKeys, LevelConversation)
	if runSettings.IsObject() {
		report.CheckKeys(runSettings, geminiRunSettingsKeys, LevelRunSettings)
	}

	var chunks []gjson.Result
	if cp := field(rc, "chunkedPrompt"); cp.IsObject() {
		report.CheckKeys(cp, geminiChunkedPromptKeys, LevelChunkedPrompt)
		chunks = field(cp, "chunks").Array()
	} else {
		chunks = field(rc, "chunks").Array()
	}

	// image generation requests have no chat content
	if len(chunks) == 0 && has(rc, "imagenPrompt") {
		return model.Conversation{}, false
	}

	if sys := geminiSystemText(field(rc, "systemInstruction")); sys != "" {
		conv.Messages = append(conv.Messages, model.Message{
			ID:       id + "-system",
			Provider: model.Gemini,
			Role:     "system",
			Created:  created,
			Model:    modelName,
			Content:  []model.ContentBlock{textBlock("text", sys, nil)},
		})
	}

	var chat []model.Message
	for i, chunk := range chunks {
		if !chunk.IsObject() {
			continue
		}
		isUser := false
		switch str(field(chunk, "role")) {
		case "user":
			isUser = true
		case "model":
		default:
			isUser = truthy(field(chunk, "isUser"))
		}

		blocks := parseGeminiChunk(chunk, report)
		if len(blocks) == 0 {
			continue
		}
		msg := model.Message{
			ID:       fmt.Sprintf("%s-%d", id, i),
			Provider: model.Gemini,
			Role:     "assistant",
			Created:  created.Add(time.Duration(i) * time.Second),
			Model:    modelName,
			Content:  blocks,
		}
		if isUser {
			msg.Role = "user"
			msg.Model = ""
		}
		chat = append(chat, msg)
	}
	conv.Messages = append(conv.Messages, chat...)

	conv.Tighten(chat)
	return conv, true
}

func geminiModel(runSettings gjson.Result) string {
	return strings.TrimPrefix(str(field(runSettings, "model")), "models/")
}

func geminiSystemText(si gjson.Result) string {
	if si.Type == gjson.String {
		return strings.TrimSpace(si.Str)
	}
	if !si.IsObject() {
		return ""
	}
	var texts []string
	for _, p := range field(si, "parts").Array() {
		if s := str(field(p, "text")); s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}

// fragmentMerger coalesces consecutive streaming fragments of one kind.
type fragmentMerger struct {
	blocks   []model.ContentBlock
	text     []string
	thoughts []string
}

func (f *fragmentMerger) flushText() {
	if len(f.text) == 0 {
		return
	}
	f.blocks = append(f.blocks, textBlock("text", strings.TrimSpace(joinFragments(f.text)), nil))
	f.text = nil
}

func (f *fragmentMerger) flushThoughts() {
	if len(f.thoughts) == 0 {
		return
	}
	f.blocks = append(f.blocks, textBlock("thinking", strings.Join(f.thoughts, "\n\n"), nil))
	f.thoughts = nil
}

func (f *fragmentMerger) flushAll() {
	f.flushThoughts()
	f.flushText()
}

// joinFragments concatenates streamed fragments. A space is added only where
// a letter meets an upper-case letter across the boundary; a lower-case
// continuation is the rest of a split word.
func joinFragments(frags []string) string {
	var b strings.Builder
	b.WriteString(frags[0])
	for _, frag := range frags[1:] {
		if b.Len() > 0 && frag != "" {
			last, _ := utf8.DecodeLastRuneInString(b.String())
			first, _ := utf8.DecodeRuneInString(frag)
			if unicode.IsLetter(last) && unicode.IsUpper(first) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(frag)
	}
	return b.String()
}

func parseGeminiChunk(chunk gjson.Result, report *Report) []model.ContentBlock {
	var m fragmentMerger

	if parts := field(chunk, "parts"); parts.IsArray() {
		for _, part := range parts.Array() {
			if !part.IsObject() {
				continue
			}
			report.CheckKeys(part, geminiPartKeys, LevelPart)

			if text := str(field(part, "text")); text != "" {
				if truthy(field(part, "thought")) {
					m.flushText()
					m.thoughts = append(m.thoughts, strings.TrimSpace(text))
				} else {
					m.flushThoughts()
					m.text = append(m.text, text)
				}
			}

			if inline := field(part, "inlineData"); inline.IsObject() {
				m.flushAll()
				if b, ok := geminiInlineData(inline, "part_inlineData"); ok {
					m.blocks = append(m.blocks, b)
				}
			}
		}
		m.flushAll()
	}
	blocks := m.blocks

	if len(blocks) == 0 {
		if s := str(field(chunk, "text")); s != "" {
			blocks = append(blocks, textBlock("text", strings.TrimSpace(s), nil))
		}
	}

	if img := field(chunk, "inlineImage"); img.IsObject() {
		blocks = append(blocks, geminiMediaBlock(img, "inline_image", "[Generated Image]", "image/png", "inlineImage"))
	}
	if audio := field(chunk, "inlineAudio"); audio.IsObject() {
		blocks = append(blocks, geminiMediaBlock(audio, "inline_audio", "[Audio Input]", "audio/wav", "inlineAudio"))
	}
	if inline := field(chunk, "inlineData"); inline.IsObject() {
		if b, ok := geminiInlineData(inline, "chunk_inlineData"); ok {
			blocks = append(blocks, b)
		}
	}
	if img := field(chunk, "driveImage"); img.IsObject() {
		blocks = append(blocks, textBlock("drive_document", "[Drive Image]", map[string]any{
			"id": str(field(img, "id")), "kind": "image",
		}))
	}
	if audio := field(chunk, "driveAudio"); audio.IsObject() {
		blocks = append(blocks, textBlock("drive_document", "[Drive Audio]", map[string]any{
			"id": str(field(audio, "id")), "kind": "audio",
		}))
	}
	if doc := field(chunk, "driveDocument"); doc.IsObject() {
		name := str(field(doc, "name"))
		if name == "" {
			name = "[Drive Document]"
		}
		blocks = append(blocks, textBlock("drive_document", "[Drive Document] "+name, scalarFields(doc)))
	}
	if video := field(chunk, "driveVideo"); video.IsObject() {
		name := str(field(video, "name"))
		if name == "" {
			name = "[Drive Video]"
		}
		blocks = append(blocks, textBlock("drive_video", "[Drive Video] "+name, scalarFields(video)))
	}
	if g := field(chunk, "grounding"); g.IsObject() {
		if b, ok := geminiGrounding(g); ok {
			blocks = append(blocks, b)
		}
	}

	report.CheckKeys(chunk, geminiChunkKeys, LevelChunk)
	return blocks
}

func dataURI(mime, payload string) any {
	if payload == "" {
		return nil
	}
	return "data:" + mime + ";base64," + payload
}

func geminiMediaBlock(obj gjson.Result, blockType, text, defaultMime, source string) model.ContentBlock {
	mime := str(field(obj, "mimeType"))
	if mime == "" {
		mime = defaultMime
	}
	return textBlock(blockType, text, map[string]any{
		"mime_type": mime,
		"data_uri":  dataURI(mime, str(field(obj, "data"))),
		"source":    source,
	})
}

// geminiInlineData builds an inline image or audio block. Other mime types
// are not rendered.
func geminiInlineData(obj gjson.Result, source string) (model.ContentBlock, bool) {
	mime := str(field(obj, "mimeType"))
	data := map[string]any{
		"mime_type": mime,
		"data_uri":  dataURI(mime, str(field(obj, "data"))),
		"source":    source,
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return textBlock("inline_image", "[Inline Image]", data), true
	case strings.HasPrefix(mime, "audio/"):
		return textBlock("inline_audio", "[Inline Audio]", data), true
	}
	return model.ContentBlock{}, false
}

func geminiGrounding(g gjson.Result) (model.ContentBlock, bool) {
	var lines []string
	cite := func(src gjson.Result) {
		if !src.IsObject() {
			return
		}
		uri := str(field(src, "uri"))
		if uri == "" {
			return
		}
		title := str(field(src, "title"))
		if title == "" {
			title = uri
		}
		prefix := ""
		if fn := field(src, "footnoteNumber"); fn.Exists() && fn.Type != gjson.Null {
			prefix = "[" + scalarString(fn) + "] "
		}
		lines = append(lines, prefix+"["+title+"]("+uri+")")
	}
	for _, seg := range field(g, "corroborationSegments").Array() {
		cite(seg)
	}
	for _, src := range field(g, "groundingSources").Array() {
		cite(src)
	}
	for _, q := range field(g, "webSearchQueries").Array() {
		if s := str(q); s != "" {
			lines = append(lines, "Search: "+strings.TrimSpace(s))
		}
	}
	if len(lines) == 0 {
		return model.ContentBlock{}, false
	}
	return textBlock("grounding", strings.Join(lines, "\n"), nil), true
}

func scalarFields(obj gjson.Result) map[string]any {
	out := make(map[string]any)
	obj.ForEach(func(k, v gjson.Result) bool {
		switch v.Type {
		case gjson.String:
			out[k.Str] = v.Str
		case gjson.Number:
			out[k.Str] = jsonNumber(v)
		case gjson.True:
			out[k.Str] = true
		case gjson.False:
			out[k.Str] = false
		}
		return true
	})
	return out
}
