package model

import (
	"strings"
	"time"
)

type Provider string

const (
	ChatGPT Provider = "chatgpt"
	Claude  Provider = "claude"
	Gemini  Provider = "gemini"
)

// Providers returns the supported providers in load order.
func Providers() []Provider {
	return []Provider{ChatGPT, Claude, Gemini}
}

// ParseProvider returns the provider named by s, or false if s is not supported.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ChatGPT:
		return ChatGPT, true
	case Claude:
		return Claude, true
	case Gemini:
		return Gemini, true
	}
	return "", false
}

// Key identifies a conversation or message across providers. Ids are only
// unique within a provider.
type Key struct {
	Provider Provider
	ID       string
}

func (k Key) String() string {
	return string(k.Provider) + ":" + k.ID
}

const (
	UntitledTitle = "[Untitled]"
	DisplayLayout = "2006-01-02 15:04:05"
)

type ContentBlock struct {
	Type string         `json:"type"`
	Text string         `json:"text"`
	Data map[string]any `json:"data"`
}

// Asset returns the asset descriptor attached to the block, if any.
func (b ContentBlock) Asset() (Asset, bool) {
	if b.Data == nil {
		return Asset{}, false
	}
	a, ok := b.Data["asset"].(Asset)
	return a, ok
}

// Clone returns a copy of the block with its own Data map.
func (b ContentBlock) Clone() ContentBlock {
	out := b
	if b.Data != nil {
		out.Data = make(map[string]any, len(b.Data))
		for k, v := range b.Data {
			out.Data[k] = v
		}
	}
	return out
}

// Asset describes a media file referenced by a block. Unresolved assets
// have IsResolved false and a nil AssetURL.
type Asset struct {
	AssetID       *string  `json:"asset_id"`
	Kind          string   `json:"kind"`
	SourcePointer *string  `json:"source_pointer"`
	MimeType      *string  `json:"mime_type"`
	SizeBytes     *int64   `json:"size_bytes"`
	Width         *int64   `json:"width"`
	Height        *int64   `json:"height"`
	Format        *string  `json:"format"`
	Duration      *float64 `json:"duration"`
	IsResolved    bool     `json:"is_resolved"`
	AssetURL      *string  `json:"asset_url"`
}

type Message struct {
	ID       string
	Provider Provider
	Role     string
	Created  time.Time
	Updated  *time.Time
	Model    string
	Content  []ContentBlock
}

func (m Message) Key() Key {
	return Key{Provider: m.Provider, ID: m.ID}
}

// VisibleBlocks applies role-level suppression before block-level suppression.
func (m Message) VisibleBlocks(v Visibility) []ContentBlock {
	if !v.IncludeSystem && m.Role == "system" {
		return nil
	}
	var out []ContentBlock
	for _, b := range m.Content {
		if !v.IncludeThinking && IsThinking(b.Type) {
			continue
		}
		if !v.IncludeTool && (IsTool(b.Type) || m.Role == "tool") {
			continue
		}
		if !v.IncludeAttachments && IsAttachment(b.Type) {
			continue
		}
		if !v.IncludeSystem && IsSystem(b.Type) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Text joins the trimmed, non-empty visible block texts with a blank line.
func (m Message) Text(v Visibility) string {
	var parts []string
	for _, b := range m.VisibleBlocks(v) {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// CountTokens returns the token count of the fully visible message text.
func (m Message) CountTokens(tk Tokenizer) int {
	text := m.Text(ShowAll)
	if text == "" || tk == nil {
		return 0
	}
	return tk.Count(m.Model, text)
}

func (m Message) CreatedLocal() string {
	return m.Created.Local().Format(DisplayLayout)
}

func (m Message) Clone() Message {
	out := m
	out.Content = make([]ContentBlock, len(m.Content))
	for i, b := range m.Content {
		out.Content[i] = b.Clone()
	}
	return out
}

type Conversation struct {
	ID       string
	Provider Provider
	Title    string
	Created  time.Time
	Updated  time.Time
	Messages []Message
}

func (c Conversation) Key() Key {
	return Key{Provider: c.Provider, ID: c.ID}
}

func (c Conversation) TitleOrDefault() string {
	if strings.TrimSpace(c.Title) == "" {
		return UntitledTitle
	}
	return c.Title
}

func (c Conversation) CreatedLocal() string {
	return c.Created.Local().Format(DisplayLayout)
}

// TotalLength is the span from the conversation start to its latest message.
func (c Conversation) TotalLength() time.Duration {
	if len(c.Messages) == 0 {
		return 0
	}
	end := c.Messages[0].Created
	for _, m := range c.Messages[1:] {
		if m.Created.After(end) {
			end = m.Created
		}
	}
	if d := end.Sub(c.Created); d > 0 {
		return d
	}
	return 0
}

func (c Conversation) OpenURL() string {
	switch c.Provider {
	case Claude:
		return "https://claude.ai/chat/" + c.ID
	case Gemini:
		return "https://aistudio.google.com/"
	default:
		return "https://chat.openai.com/c/" + c.ID
	}
}

// Tighten widens Created/Updated to cover every message in msgs.
func (c *Conversation) Tighten(msgs []Message) {
	for _, m := range msgs {
		if m.Created.Before(c.Created) {
			c.Created = m.Created
		}
		if m.Created.After(c.Updated) {
			c.Updated = m.Created
		}
	}
}

func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}
