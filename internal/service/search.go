package service

import (
	"bytes"
	"context"
	"html"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/Zuo-Peng/chat-history/internal/embed"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

const DefaultSearchLimit = 20

type SearchResult struct {
	Type        string         `json:"type"`
	Provider    model.Provider `json:"provider"`
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	Role        string         `json:"role"`
	Created     string         `json:"created"`
	InternalURL string         `json:"internal_url"`
	OpenURL     string         `json:"open_url"`
}

// Search answers a query. A query wrapped in double quotes only matches
// exact substrings; anything else tries the semantic index first and falls
// back to substring matching when it fails or finds nothing.
func (s *Service) Search(ctx context.Context, query string, limit int) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	exact := false
	if len(query) > 1 && strings.HasPrefix(query, `"`) && strings.HasSuffix(query, `"`) {
		exact = true
		query = strings.TrimSpace(query[1 : len(query)-1])
	}

	snap := s.current()
	if !exact && snap.semantic && s.opts.Embedder != nil {
		results, err := s.semanticSearch(ctx, snap, query, limit)
		if err != nil {
			s.log.Warn("semantic search failed, falling back to strict search", "err", err)
		} else if len(results) > 0 {
			return results
		}
	}
	return s.strictSearch(snap, strings.ToLower(query), limit)
}

func (s *Service) strictSearch(snap *snapshot, query string, limit int) []SearchResult {
	results := []SearchResult{}
	if query == "" {
		return results
	}
	for _, c := range snap.conversations {
		if strings.Contains(strings.ToLower(c.TitleOrDefault()), query) {
			results = append(results, conversationResult(c))
		}
		for _, m := range c.Messages {
			if strings.Contains(strings.ToLower(m.Text(model.ShowAll)), query) {
				results = append(results, searchResult(embed.TypeMessage, c, &m))
			}
			if len(results) >= limit {
				return results[:limit]
			}
		}
		if len(results) >= limit {
			return results[:limit]
		}
	}
	return results
}

func (s *Service) semanticSearch(ctx context.Context, snap *snapshot, query string, limit int) ([]SearchResult, error) {
	hits, err := s.opts.Embedder.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	type seenKey struct {
		p           model.Provider
		typ, itemID string
	}
	seen := make(map[seenKey]bool)
	var results []SearchResult
	for _, h := range hits {
		k := seenKey{h.Provider, h.Type, h.ItemID}
		if seen[k] {
			continue
		}
		seen[k] = true

		ci, ok := snap.byKey[model.Key{Provider: h.Provider, ID: h.ConversationID}]
		if !ok {
			continue
		}
		c := snap.conversations[ci]
		if h.Type == embed.TypeConversation {
			results = append(results, conversationResult(c))
		} else {
			ref, ok := snap.messages[model.Key{Provider: h.Provider, ID: h.ItemID}]
			if !ok {
				continue
			}
			m := snap.conversations[ref.conv].Messages[ref.msg]
			results = append(results, searchResult(embed.TypeMessage, c, &m))
		}
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// conversationResult previews a title match with its first message.
func conversationResult(c model.Conversation) SearchResult {
	var preview *model.Message
	if len(c.Messages) > 0 {
		preview = &c.Messages[0]
	}
	return searchResult(embed.TypeConversation, c, preview)
}

func searchResult(typ string, c model.Conversation, m *model.Message) SearchResult {
	text, created, role := c.TitleOrDefault(), c.CreatedLocal(), "conversation"
	if m != nil {
		text, created, role = m.Text(model.ShowAll), m.CreatedLocal(), m.Role
	}
	q := url.Values{}
	q.Set("provider", string(c.Provider))
	q.Set("conv_id", c.ID)
	return SearchResult{
		Type:        typ,
		Provider:    c.Provider,
		ID:          c.ID,
		Title:       c.TitleOrDefault(),
		Text:        renderMarkdown(text),
		Role:        role,
		Created:     created,
		InternalURL: "/?" + q.Encode(),
		OpenURL:     c.OpenURL(),
	}
}

var markdown = goldmark.New()

// renderMarkdown converts message text to HTML; raw HTML in the source is
// not passed through.
func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return buf.String()
}
