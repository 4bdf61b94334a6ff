package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/chat-history/internal/search"
)

// linesPerItem is the number of terminal lines each result occupies.
const linesPerItem = 2

func (m model) renderList(width, height int) string {
	if len(m.results) == 0 {
		msg := "No conversations"
		if m.query != "" {
			msg = "No matches for " + m.query
		}
		return styleDim.Width(width).Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(msg)
	}

	lines := make([]string, 0, height)
	for i := m.listOffset; i < len(m.results) && len(lines)+linesPerItem <= height; i++ {
		lines = append(lines, formatResultLine(m.results[i], width, i == m.cursor)...)
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

// formatResultLine renders a result as a heading line (provider, day and
// title) and a detail line (what matched and its snippet).
func formatResultLine(r search.Result, width int, selected bool) []string {
	marker := "  "
	if selected {
		marker = styleSelected.Render("> ")
	}
	day := shortDay(r.UpdatedAt)
	title := fitWidth(oneLine(r.Title), width-len(marker)-8-len(day)-2)
	heading := marker + providerLabel(r.Provider) + " " + day + " " + title

	snippet := strings.NewReplacer(">>>", "", "<<<", "").Replace(oneLine(r.Snippet))
	detail := "  " + kindBadge(r.Role, r.Kind) + styleDim.Render(fitWidth(snippet, width-8))

	return []string{heading, detail}
}

// shortDay turns an index timestamp into MM-DD.
func shortDay(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[5:10]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fitWidth(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > w {
		return runewidth.Truncate(s, w, "")
	}
	return s
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visible := listHeight / linesPerItem
	if visible < 1 {
		visible = 1
	}
	switch {
	case m.cursor < m.listOffset:
		m.listOffset = m.cursor
	case m.cursor >= m.listOffset+visible:
		m.listOffset = m.cursor - visible + 1
	}
}
