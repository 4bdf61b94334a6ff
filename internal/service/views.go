package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

const gapThreshold = time.Hour

type ConversationItem struct {
	Group       string         `json:"group"`
	ID          string         `json:"id"`
	Provider    model.Provider `json:"provider"`
	Title       string         `json:"title"`
	Created     string         `json:"created"`
	TotalLength string         `json:"total_length"`
	IsFavorite  bool           `json:"is_favorite"`
	OpenURL     string         `json:"open_url"`
}

// ListConversations returns the sidebar entries, newest first.
func (s *Service) ListConversations() []ConversationItem {
	snap := s.current()
	favs := s.favorites()
	now := s.opts.Now()

	items := make([]ConversationItem, 0, len(snap.conversations))
	for _, c := range snap.conversations {
		items = append(items, ConversationItem{
			Group:       TimeGroup(c.Created, now),
			ID:          c.ID,
			Provider:    c.Provider,
			Title:       c.TitleOrDefault(),
			Created:     c.CreatedLocal(),
			TotalLength: ShortDuration(c.TotalLength()),
			IsFavorite:  favs[c.Key()],
			OpenURL:     c.OpenURL(),
		})
	}
	return items
}

type MessageItem struct {
	Text    string               `json:"text"`
	Blocks  []model.ContentBlock `json:"blocks"`
	Role    string               `json:"role"`
	Created string               `json:"created,omitempty"`
}

type MessagesView struct {
	ConversationID string         `json:"conversation_id"`
	Provider       model.Provider `json:"provider"`
	OpenURL        string         `json:"open_url"`
	Messages       []MessageItem  `json:"messages"`
}

// Messages returns a conversation's messages in time order, with an
// "internal" marker before any message that follows the previous one by an
// hour or more.
func (s *Service) Messages(p model.Provider, id string) (MessagesView, error) {
	c, ok := s.Conversation(p, id)
	if !ok {
		return MessagesView{}, fmt.Errorf("conversation %s:%s: %w", p, id, ErrNotFound)
	}

	msgs := make([]model.Message, len(c.Messages))
	copy(msgs, c.Messages)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Created.Before(msgs[j].Created) })

	items := make([]MessageItem, 0, len(msgs))
	for i, m := range msgs {
		if i > 0 {
			if gap := m.Created.Sub(msgs[i-1].Created); gap >= gapThreshold {
				items = append(items, MessageItem{
					Text:   HumanDuration(gap) + " passed",
					Role:   "internal",
					Blocks: []model.ContentBlock{},
				})
			}
		}
		items = append(items, MessageItem{
			Text:    m.Text(model.ShowAll),
			Blocks:  trimmedBlocks(m),
			Role:    m.Role,
			Created: m.CreatedLocal(),
		})
	}
	return MessagesView{
		ConversationID: c.ID,
		Provider:       c.Provider,
		OpenURL:        c.OpenURL(),
		Messages:       items,
	}, nil
}

func trimmedBlocks(m model.Message) []model.ContentBlock {
	out := []model.ContentBlock{}
	for _, b := range m.Content {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		out = append(out, model.ContentBlock{Type: b.Type, Text: text, Data: b.Data})
	}
	return out
}

type DayActivity struct {
	Total     int                    `json:"total"`
	Providers map[model.Provider]int `json:"providers"`
}

type Activity struct {
	Providers      []model.Provider        `json:"providers"`
	ProviderTotals map[model.Provider]int  `json:"provider_totals"`
	Days           map[string]*DayActivity `json:"days"`
}

func dayOf(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// Activity counts messages per local day and provider.
func (s *Service) Activity() Activity {
	a := Activity{
		ProviderTotals: map[model.Provider]int{},
		Days:           map[string]*DayActivity{},
	}
	for _, c := range s.current().conversations {
		for _, m := range c.Messages {
			day := dayOf(m.Created)
			entry, ok := a.Days[day]
			if !ok {
				entry = &DayActivity{Providers: map[model.Provider]int{}}
				a.Days[day] = entry
			}
			entry.Total++
			entry.Providers[c.Provider]++
			a.ProviderTotals[c.Provider]++
		}
	}
	a.Providers = sortedProviders(a.ProviderTotals)
	return a
}

type DayConversation struct {
	Provider     model.Provider `json:"provider"`
	ID           string         `json:"id"`
	MessageCount int            `json:"message_count"`
}

type DayDetail struct {
	Date          string            `json:"date"`
	Provider      *model.Provider   `json:"provider"`
	Conversations []DayConversation `json:"conversations"`
	TotalMessages int               `json:"total_messages"`
}

// ActivityDay lists the conversations with messages on day (YYYY-MM-DD),
// optionally restricted to one provider.
func (s *Service) ActivityDay(day string, provider model.Provider) DayDetail {
	d := DayDetail{Date: day, Conversations: []DayConversation{}}
	if provider != "" {
		d.Provider = &provider
	}
	for _, c := range s.current().conversations {
		if provider != "" && c.Provider != provider {
			continue
		}
		n := 0
		for _, m := range c.Messages {
			if dayOf(m.Created) == day {
				n++
			}
		}
		if n == 0 {
			continue
		}
		d.Conversations = append(d.Conversations, DayConversation{Provider: c.Provider, ID: c.ID, MessageCount: n})
		d.TotalMessages += n
	}
	return d
}

const notAvailable = "N/A"

// StatsBlock keeps the field order of the statistics panel.
type StatsBlock struct {
	Conversations string `json:"Conversations"`
	Messages      string `json:"Messages"`
	BackupAge     string `json:"Chat backup age"`
	LastMessage   string `json:"Last chat message"`
	FirstMessage  string `json:"First chat message"`
	Providers     string `json:"Providers,omitempty"`
}

type Statistics struct {
	Summary    StatsBlock                    `json:"summary"`
	ByProvider map[model.Provider]StatsBlock `json:"by_provider"`
}

func (s *Service) statsFor(convs []model.Conversation) StatsBlock {
	var first, last time.Time
	n := 0
	for _, c := range convs {
		for _, m := range c.Messages {
			if n == 0 || m.Created.Before(first) {
				first = m.Created
			}
			if n == 0 || m.Created.After(last) {
				last = m.Created
			}
			n++
		}
	}
	b := StatsBlock{
		Conversations: fmt.Sprint(len(convs)),
		Messages:      fmt.Sprint(n),
		BackupAge:     notAvailable,
		LastMessage:   notAvailable,
		FirstMessage:  notAvailable,
	}
	if n == 0 {
		return b
	}
	b.BackupAge = HumanDuration(s.opts.Now().Sub(last))
	b.LastMessage = dayOf(last)
	b.FirstMessage = dayOf(first)
	return b
}

func (s *Service) Statistics() Statistics {
	convs := s.current().conversations
	groups := make(map[model.Provider][]model.Conversation)
	counts := make(map[model.Provider]int)
	for _, c := range convs {
		groups[c.Provider] = append(groups[c.Provider], c)
		counts[c.Provider]++
	}

	st := Statistics{Summary: s.statsFor(convs), ByProvider: map[model.Provider]StatsBlock{}}
	st.Summary.Providers = notAvailable
	var parts []string
	for _, p := range sortedProviders(counts) {
		parts = append(parts, fmt.Sprintf("%s: %d", p, counts[p]))
		st.ByProvider[p] = s.statsFor(groups[p])
	}
	if len(parts) > 0 {
		st.Summary.Providers = strings.Join(parts, ", ")
	}
	return st
}

type TokenRow struct {
	Provider     model.Provider `json:"provider"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	TotalTokens  int            `json:"total_tokens"`
}

// TokenStatistics sums tokens per provider and model. User messages count
// as input, everything else as output.
func (s *Service) TokenStatistics() []TokenRow {
	tk := s.opts.Tokenizer
	if tk == nil {
		return []TokenRow{}
	}
	type key struct {
		p     model.Provider
		model string
	}
	acc := make(map[key]*TokenRow)
	for _, c := range s.current().conversations {
		for _, m := range c.Messages {
			n := m.CountTokens(tk)
			if n == 0 {
				continue
			}
			name := m.Model
			if name == "" {
				name = "unknown"
			}
			k := key{c.Provider, name}
			row, ok := acc[k]
			if !ok {
				row = &TokenRow{Provider: c.Provider, Model: name}
				acc[k] = row
			}
			if m.Role == "user" {
				row.InputTokens += n
			} else {
				row.OutputTokens += n
			}
			row.TotalTokens += n
		}
	}

	rows := make([]TokenRow, 0, len(acc))
	for _, r := range acc {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.TotalTokens != b.TotalTokens {
			return a.TotalTokens > b.TotalTokens
		}
		return a.Model < b.Model
	})
	return rows
}
