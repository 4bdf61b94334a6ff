// Package parse turns provider chat exports into canonical conversations.
//
// Each provider parser reads one JSON export whose top level must be an
// array. Malformed entries inside the array are skipped; only an unreadable
// file or a non-array top level fails the parse.
package parse

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

type Options struct {
	Logger *slog.Logger
	// Now supplies the timestamp used when an envelope has none.
	Now func() time.Time
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// ParserFunc parses one export file.
type ParserFunc func(path string, opts Options) ([]model.Conversation, error)

// ParserFor returns the parser for provider p.
func ParserFor(p model.Provider) (ParserFunc, error) {
	switch p {
	case model.ChatGPT:
		return ParseChatGPT, nil
	case model.Claude:
		return ParseClaude, nil
	case model.Gemini:
		return ParseGemini, nil
	}
	return nil, fmt.Errorf("unknown provider: %s", p)
}

func textBlock(blockType, text string, data map[string]any) model.ContentBlock {
	if data == nil {
		data = map[string]any{}
	}
	return model.ContentBlock{Type: blockType, Text: text, Data: data}
}
