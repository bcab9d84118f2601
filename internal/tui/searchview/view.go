// Package searchview is the stage log search pane: a query line and the
// matches grouped under their stage.
package searchview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cli/go-gh/v2/pkg/text"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/search"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

// Summary counts the matches and the stages they were found in.
func Summary(res *model.SearchResults) string {
	matches := "matches"
	if res.TotalCount == 1 {
		matches = "match"
	}
	return fmt.Sprintf("%d %s in %s", res.TotalCount, matches, text.Pluralize(len(res.StageCounts), "stage"))
}

type Mode int

const (
	ModeInput Mode = iota
	ModeResults
)

type Model struct {
	input    textinput.Model
	viewport viewport.Model
	results  *model.SearchResults
	// lineOf maps a match index to its line in the rendered results.
	lineOf  []int
	mode    Mode
	cursor  int
	width   int
	loading bool
	err     error
	active  bool
	ready   bool
}

func New() Model {
	ti := textinput.New()
	ti.Prompt = "search: "
	ti.Placeholder = "text, /regex, stage:build text"
	ti.CharLimit = 256
	return Model{input: ti}
}

func (m *Model) Activate() {
	m.active = true
	m.mode = ModeInput
	m.err = nil
	m.input.Focus()
}

func (m *Model) Deactivate() {
	m.active = false
	m.loading = false
	m.input.Blur()
}

func (m Model) IsActive() bool    { return m.active }
func (m Model) IsInputMode() bool { return m.mode == ModeInput }
func (m Model) Query() string     { return strings.TrimSpace(m.input.Value()) }

func (m Model) SearchQuery() model.SearchQuery {
	return search.ParseQuery(m.input.Value())
}

func (m Model) SelectedMatch() *model.SearchResult {
	if m.results == nil || m.cursor >= len(m.results.Matches) {
		return nil
	}
	return &m.results.Matches[m.cursor]
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - len(m.input.Prompt) - 4
		h := max(msg.Height-3, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.refresh()
		return m, nil

	case ui.SearchDoneMsg:
		m.loading = false
		m.err = msg.Err
		if msg.Err == nil {
			m.results = msg.Results
			m.cursor = 0
			m.mode = ModeResults
			m.input.Blur()
			m.refresh()
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeInput {
			return m.updateInput(msg)
		}
		return m.updateResults(msg), nil
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		// The caller runs the search and answers with SearchDoneMsg.
		if m.Query() != "" {
			m.loading = true
			m.err = nil
		}
		return m, nil
	case tea.KeyEsc:
		if m.results != nil {
			m.mode = ModeResults
			m.input.Blur()
			return m, nil
		}
		m.Deactivate()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateResults(msg tea.KeyMsg) Model {
	n := 0
	if m.results != nil {
		n = len(m.results.Matches)
	}
	switch {
	case key.Matches(msg, ui.Keys.Down):
		m.moveCursor(1, n)
	case key.Matches(msg, ui.Keys.Up):
		m.moveCursor(-1, n)
	case key.Matches(msg, ui.Keys.PageDown):
		m.moveCursor(m.viewport.Height, n)
	case key.Matches(msg, ui.Keys.PageUp):
		m.moveCursor(-m.viewport.Height, n)
	case msg.String() == "/":
		m.mode = ModeInput
		m.input.Focus()
	case key.Matches(msg, ui.Keys.Back):
		m.Deactivate()
	}
	return m
}

func (m *Model) moveCursor(delta, n int) {
	if n == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.refresh()
}

// refresh re-renders the results and scrolls the cursor into view.
func (m *Model) refresh() {
	if !m.ready || m.results == nil {
		return
	}
	m.viewport.SetContent(m.renderResults())
	if m.cursor >= len(m.lineOf) {
		return
	}
	line := m.lineOf[m.cursor]
	switch {
	case line < m.viewport.YOffset:
		m.viewport.SetYOffset(line)
	case line >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	}
}

func (m *Model) renderResults() string {
	m.lineOf = m.lineOf[:0]
	res := m.results
	if res.TotalCount == 0 {
		return ui.StyleMuted.Render("  No matches")
	}

	stageStyle := lipgloss.NewStyle().Bold(true).Foreground(ui.ColorInfo)
	var lines []string
	lines = append(lines, "  "+Summary(res))

	stage := ""
	for i, match := range res.Matches {
		if match.Stage != stage {
			stage = match.Stage
			lines = append(lines, "", stageStyle.Render(fmt.Sprintf("  %s (%d)", stage, res.StageCounts[stage])))
		}
		row := fmt.Sprintf("%5d  %s", match.Line, match.Content)
		if m.width > 4 {
			row = text.Truncate(m.width-4, row)
		}
		if i == m.cursor {
			row = ui.StyleMatch.Render("> " + row)
		} else {
			row = "  " + row
		}
		m.lineOf = append(m.lineOf, len(lines))
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}

func (m Model) View() string {
	if !m.active {
		return ""
	}
	var b strings.Builder
	b.WriteString("  " + m.input.View() + "\n\n")
	switch {
	case m.loading:
		b.WriteString("  Searching...")
	case m.err != nil:
		b.WriteString(ui.StyleFailure.Render(fmt.Sprintf("  Invalid pattern: %v", m.err)))
	case m.ready && m.results != nil:
		b.WriteString(m.viewport.View())
	}
	return b.String()
}
