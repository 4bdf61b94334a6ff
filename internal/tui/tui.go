// Package tui is the interactive terminal browser for indexed conversations.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/chat-history/internal/index"
	chat "github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/search"
)

const debounceDelay = 200 * time.Millisecond

type tuiMode int

const (
	modeSearch tuiMode = iota
	modeList
)

type searchResultMsg struct {
	query   string
	results []search.Result
	err     error
}

type debounceTickMsg struct {
	query string
}

type model struct {
	db         *index.DB
	searchOpts search.Options
	showSystem bool
	mode       tuiMode
	query      string
	results    []search.Result
	cursor     int
	listOffset int
	input      textinput.Model
	preview    viewport.Model
	previewKey string // convKey:seq of the rendered preview
	width      int
	height     int
	ready      bool
	quitting   bool
	chosen     *search.Result
}

func newModel(db *index.DB, mode tuiMode, query string, opts search.Options) model {
	ti := textinput.New()
	ti.Placeholder = "Search conversations..."
	if mode == modeList {
		ti.Placeholder = "Filter titles, or type to search..."
	}
	ti.Prompt = "> "
	ti.PromptStyle = styleInput
	ti.TextStyle = styleInput
	ti.CharLimit = 256
	ti.SetValue(query)
	ti.Focus()

	return model{
		db:         db,
		searchOpts: opts,
		mode:       mode,
		query:      query,
		input:      ti,
		preview:    viewport.New(0, 0),
	}
}

// Run opens the search browser. Choosing a result copies the conversation's
// provider link to the clipboard.
func Run(db *index.DB, query string, opts search.Options) error {
	return runProgram(newModel(db, modeSearch, query, opts))
}

// RunList opens the browser on every conversation, newest first.
func RunList(db *index.DB, opts search.Options) error {
	return runProgram(newModel(db, modeList, "", opts))
}

func runProgram(m model) error {
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if fm := final.(model); fm.chosen != nil {
		return copyOpenURL(m.db, fm.chosen.ConvKey)
	}
	return nil
}

// copyOpenURL copies the provider link of the conversation to clipboard,
// printing it instead when no clipboard is available.
func copyOpenURL(db *index.DB, convKey string) error {
	conv, err := db.GetConversationByKey(convKey)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("conversation not found: %s", convKey)
	}
	if err := clipboard.WriteAll(conv.OpenURL); err != nil {
		fmt.Println(conv.OpenURL)
		return nil
	}
	fmt.Printf("Copied link to %q: %s\n", conv.Title, conv.OpenURL)
	return nil
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.mode == modeList || m.query != "" {
		cmds = append(cmds, m.refresh())
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height, m.ready = msg.Width, msg.Height, true
		m.preview = newViewport(m.previewWidth(), m.panelHeight())
		m.previewKey = ""
		return m, m.loadCurrentPreview()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case debounceTickMsg:
		if msg.query != m.query {
			return m, nil
		}
		return m, m.refresh()

	case searchResultMsg:
		if msg.query != m.query {
			return m, nil
		}
		m.cursor, m.listOffset, m.previewKey = 0, 0, ""
		if msg.err != nil {
			m.results = nil
			m.preview.SetContent("Error: " + msg.err.Error())
			return m, nil
		}
		m.results = msg.results
		if len(m.results) == 0 {
			m.preview.SetContent("")
			return m, nil
		}
		return m, m.loadCurrentPreview()

	case previewRenderedMsg:
		return m.applyPreview(msg), nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Enter):
		if r, ok := m.current(); ok {
			m.chosen = &r
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case key.Matches(msg, keys.Up):
		return m.moveCursor(m.cursor - 1)

	case key.Matches(msg, keys.Down):
		return m.moveCursor(m.cursor + 1)

	case key.Matches(msg, keys.PreviewUp):
		m.preview.LineUp(m.panelHeight() / 2)
		return m, nil

	case key.Matches(msg, keys.PreviewDn):
		m.preview.LineDown(m.panelHeight() / 2)
		return m, nil

	case key.Matches(msg, keys.PageUp):
		m.preview.LineUp(m.panelHeight())
		return m, nil

	case key.Matches(msg, keys.PageDown):
		m.preview.LineDown(m.panelHeight())
		return m, nil

	case key.Matches(msg, keys.Provider):
		m.searchOpts.Provider = nextProvider(m.searchOpts.Provider)
		return m, m.refresh()

	case key.Matches(msg, keys.Role):
		m.searchOpts.Role = nextRole(m.searchOpts.Role)
		return m, m.refresh()

	case key.Matches(msg, keys.System):
		m.showSystem = !m.showSystem
		m.previewKey = ""
		return m, m.loadCurrentPreview()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if q := m.input.Value(); q != m.query {
		m.query = q
		return m, tea.Batch(cmd, m.scheduleDebouncedSearch(q))
	}
	return m, cmd
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !m.ready || len(m.results) == 0 {
		return m, nil
	}
	region, idx := m.hitTest(msg.X, msg.Y)
	wheel := msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown

	switch {
	case region == regionList && msg.Button == tea.MouseButtonWheelUp:
		if m.listOffset > 0 {
			m.listOffset--
		}
	case region == regionList && msg.Button == tea.MouseButtonWheelDown:
		if maxOffset := len(m.results) - m.panelHeight()/linesPerItem; m.listOffset < maxOffset {
			m.listOffset++
		}
	case region == regionList && msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		if idx != m.cursor {
			return m.moveCursor(idx)
		}
	case region == regionPreview && wheel:
		var cmd tea.Cmd
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) moveCursor(to int) (tea.Model, tea.Cmd) {
	if to < 0 || to >= len(m.results) || to == m.cursor {
		return m, nil
	}
	m.cursor = to
	m.adjustListScroll(m.panelHeight())
	return m, m.loadCurrentPreview()
}

func (m model) applyPreview(msg previewRenderedMsg) model {
	k := previewCacheKey(msg.convKey, msg.seq)
	if r, ok := m.current(); !ok || previewCacheKey(r.ConvKey, r.Seq) != k {
		return m
	}
	if msg.err != nil {
		m.preview.SetContent("Preview error: " + msg.err.Error())
	} else {
		m.preview.SetContent(msg.content)
		if msg.hitLine > 0 {
			m.preview.SetYOffset(msg.hitLine)
		} else {
			m.preview.GotoTop()
		}
	}
	m.previewKey = k
	return m
}

func (m model) current() (search.Result, bool) {
	if m.cursor < 0 || m.cursor >= len(m.results) {
		return search.Result{}, false
	}
	return m.results[m.cursor], true
}

func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}
	panelH := m.panelHeight()

	list := stylePanel.Width(m.listWidth()).Height(panelH).Render(m.renderList(m.listWidth(), panelH))

	m.preview.Width = m.previewWidth()
	m.preview.Height = panelH
	preview := stylePreviewPanel.Width(m.previewWidth()).Height(panelH).Render(m.preview.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.input.View(),
		lipgloss.JoinHorizontal(lipgloss.Top, list, preview),
		styleStatusBar.Render(statusLine(m.results, m.searchOpts, m.showSystem)),
	)
}

// The list takes 40% of the width and the preview 60%, each minus borders.
func (m model) listWidth() int {
	return panelWidth(m.width, 40, 40)
}

func (m model) previewWidth() int {
	return panelWidth(m.width, 60, 60)
}

func panelWidth(total, percent, fallback int) int {
	if total <= 0 {
		return fallback
	}
	if w := total*percent/100 - 4; w >= 20 {
		return w
	}
	return 20
}

// panelHeight leaves room for the input row, the status bar and borders.
func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	if h := m.height - 6; h >= 5 {
		return h
	}
	return 5
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	top := 2 // input row and top border
	if y < top || y >= top+m.panelHeight() {
		return regionNone, -1
	}
	lw := m.listWidth()
	switch {
	case x >= 1 && x <= lw:
		return regionList, m.listOffset + (y-top)/linesPerItem
	case x > lw+2:
		return regionPreview, -1
	}
	return regionNone, -1
}

// nextProvider cycles the provider filter: all, then each provider in order.
func nextProvider(current string) string {
	providers := chat.Providers()
	for i, p := range providers {
		if string(p) == current {
			if i+1 < len(providers) {
				return string(providers[i+1])
			}
			return ""
		}
	}
	return string(providers[0])
}

func nextRole(current string) string {
	switch current {
	case "":
		return "user"
	case "user":
		return "assistant"
	default:
		return ""
	}
}

// statusLine summarizes the results per provider, the active filters and
// the key bindings.
func statusLine(results []search.Result, opts search.Options, showSystem bool) string {
	perProvider := make(map[string]int)
	for _, r := range results {
		perProvider[r.Provider]++
	}
	counts := fmt.Sprintf("%d conversations", len(results))
	var split []string
	for _, p := range chat.Providers() {
		if n := perProvider[string(p)]; n > 0 {
			split = append(split, fmt.Sprintf("%s %d", p, n))
		}
	}
	if len(split) > 1 {
		counts += " (" + strings.Join(split, ", ") + ")"
	}

	orAll := func(s, all string) string {
		if s == "" {
			return all
		}
		return s
	}
	system := "hidden"
	if showSystem {
		system = "shown"
	}
	parts := []string{
		counts,
		"provider: " + orAll(opts.Provider, "all"),
		"role: " + orAll(opts.Role, "any"),
		"system: " + system,
	}
	for _, b := range statusKeys {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " | ")
}

// refresh reruns the current query with the current filters.
func (m model) refresh() tea.Cmd {
	if m.mode == modeList {
		return m.doListAll(m.query)
	}
	return m.doSearch(m.query)
}

func (m model) doSearch(query string) tea.Cmd {
	db, opts := m.db, m.searchOpts
	opts.Query = query
	return func() tea.Msg {
		if query == "" {
			return searchResultMsg{query: query}
		}
		results, err := search.Search(db, opts)
		return searchResultMsg{query: query, results: results, err: err}
	}
}

// doListAll lists conversations by title, switching to full-text search
// once the filter has input.
func (m model) doListAll(filter string) tea.Cmd {
	db, opts := m.db, m.searchOpts
	opts.Query = filter
	return func() tea.Msg {
		var results []search.Result
		var err error
		if filter == "" {
			results, err = search.ListAll(db, opts)
		} else {
			results, err = search.Search(db, opts)
		}
		return searchResultMsg{query: filter, results: results, err: err}
	}
}

func (m model) scheduleDebouncedSearch(query string) tea.Cmd {
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceTickMsg{query: query}
	})
}

func (m model) loadCurrentPreview() tea.Cmd {
	r, ok := m.current()
	if !ok || previewCacheKey(r.ConvKey, r.Seq) == m.previewKey {
		return nil
	}
	return loadPreviewCmd(m.db, previewRequest{
		result:     r,
		query:      m.query,
		width:      m.previewWidth(),
		showSystem: m.showSystem,
	})
}

func previewCacheKey(convKey string, seq int) string {
	return fmt.Sprintf("%s:%d", convKey, seq)
}
