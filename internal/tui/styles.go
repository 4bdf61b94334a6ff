package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/chat-history/internal/index"
	chat "github.com/Zuo-Peng/chat-history/internal/model"
)

var (
	colorBlue   = lipgloss.Color("12")
	colorGreen  = lipgloss.Color("10")
	colorYellow = lipgloss.Color("11")
	colorOrange = lipgloss.Color("208")
	colorPurple = lipgloss.Color("141")
	colorDim    = lipgloss.Color("240")
	colorBorder = lipgloss.Color("238")

	styleInput = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)

	styleSelected = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	styleDim      = lipgloss.NewStyle().Foreground(colorDim)
	styleProvider = lipgloss.NewStyle().Width(8)
	styleBadge    = lipgloss.NewStyle().Width(6).Bold(true)

	styleSummaryLabel = lipgloss.NewStyle().Foreground(colorDim)
	styleSummaryValue = lipgloss.NewStyle().Bold(true)

	stylePanel        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder)
	stylePreviewPanel = stylePanel.BorderForeground(colorBlue)

	styleStatusBar = lipgloss.NewStyle().Foreground(colorDim).Padding(0, 1)
)

var providerColors = map[chat.Provider]lipgloss.Color{
	chat.ChatGPT: colorGreen,
	chat.Claude:  colorOrange,
	chat.Gemini:  colorBlue,
}

func providerLabel(p string) string {
	s := styleProvider
	if c, ok := providerColors[chat.Provider(p)]; ok {
		s = s.Foreground(c)
	}
	return s.Render(p)
}

// kindBadge labels a result row by the kind of text that matched.
func kindBadge(role, kind string) string {
	switch {
	case kind == index.KindThinking:
		return styleBadge.Foreground(colorPurple).Render("THINK")
	case kind == index.KindTool:
		return styleBadge.Foreground(colorYellow).Render("TOOL")
	case role == "user":
		return styleBadge.Foreground(colorGreen).Render("USER")
	case role == "assistant":
		return styleBadge.Foreground(colorBlue).Render("ASST")
	default:
		return styleBadge.Foreground(colorDim).Render("SYS")
	}
}
