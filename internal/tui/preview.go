package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/chat-history/internal/index"
	"github.com/Zuo-Peng/chat-history/internal/render"
	"github.com/Zuo-Peng/chat-history/internal/search"
)

// previewRenderedMsg is sent when an async preview render completes.
type previewRenderedMsg struct {
	convKey string
	seq     int
	content string
	hitLine int
	err     error
}

type previewRequest struct {
	result     search.Result
	query      string
	width      int
	showSystem bool
}

// loadPreviewCmd renders the summary and the conversation off the UI loop.
func loadPreviewCmd(db *index.DB, req previewRequest) tea.Cmd {
	r := req.result
	return func() tea.Msg {
		out := previewRenderedMsg{convKey: r.ConvKey, seq: r.Seq, hitLine: -1}

		conv, err := db.GetConversationByKey(r.ConvKey)
		if err != nil {
			out.err = err
			return out
		}
		if conv == nil {
			out.err = fmt.Errorf("conversation not found: %s", r.ConvKey)
			return out
		}
		rows, err := db.GetMessages(r.ConvKey)
		if err != nil {
			out.err = err
			return out
		}
		body, hitLine, err := render.RenderConversation(db, r.ConvKey, render.Options{
			HitSeq:     r.Seq,
			Context:    -1,
			Width:      req.width,
			ShowSystem: req.showSystem,
			Query:      req.query,
		})
		if err != nil {
			out.err = err
			return out
		}

		summary := conversationSummary(*conv, rows, r.Seq)
		out.content = strings.Join(summary, "\n") + "\n" + body
		if hitLine >= 0 {
			out.hitLine = hitLine + len(summary)
		}
		return out
	}
}

// conversationSummary is the header shown above the transcript. Rows are
// per message and kind, so messages are counted by distinct id.
func conversationSummary(conv index.ConversationRow, rows []index.MessageRow, hitSeq int) []string {
	var messages []string
	seen := make(map[string]bool)
	kinds := make(map[string]int)
	hitMessage := 0
	for _, row := range rows {
		if !seen[row.MessageID] {
			seen[row.MessageID] = true
			messages = append(messages, row.MessageID)
		}
		kinds[row.Kind]++
		if row.Seq == hitSeq {
			hitMessage = len(messages)
		}
	}

	counts := fmt.Sprintf("%d messages", len(messages))
	var extra []string
	for _, k := range []string{index.KindThinking, index.KindTool} {
		if kinds[k] > 0 {
			extra = append(extra, fmt.Sprintf("%d %s", kinds[k], k))
		}
	}
	if len(extra) > 0 {
		counts += " (" + strings.Join(extra, ", ") + ")"
	}

	span := shortDate(conv.CreatedAt)
	if end := shortDate(conv.UpdatedAt); end != span {
		span += " .. " + end
	}

	label := func(name, value string) string {
		return styleSummaryLabel.Render(name+" ") + styleSummaryValue.Render(value)
	}
	lines := []string{
		label("provider", conv.Provider) + "  " + label("size", counts) + "  " + label("span", span),
	}
	if hitMessage > 0 {
		lines = append(lines, label("match", fmt.Sprintf("message %d of %d", hitMessage, len(messages))))
	}
	if conv.OpenURL != "" {
		lines = append(lines, styleSummaryLabel.Render("link ")+conv.OpenURL)
	}
	return append(lines, "")
}

func shortDate(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}

// newViewport creates a new viewport model with the given dimensions.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = stylePanel
	return vp
}
