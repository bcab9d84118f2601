// Package logview shows a pipeline's log grouped by stage. It follows new
// lines while the pipeline runs and can search within the log.
package logview

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/search"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

var (
	styleStage   = lipgloss.NewStyle().Bold(true)
	styleGutter  = ui.StyleMuted
	styleHit     = lipgloss.NewStyle().Background(ui.ColorBorder)
	styleCurrent = lipgloss.NewStyle().Background(lipgloss.Color("#92400E")).Bold(true)
	styleLive    = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorSuccess)
)

type Model struct {
	viewport viewport.Model
	ready    bool

	title   string
	logs    *model.StageLog
	status  map[string]string // stage -> status reported by the pipeline
	loading bool
	tailing bool
	err     error

	// lines holds one rendered row per viewport line; starts maps each
	// stage to the row of its header.
	lines  []string
	starts map[string]int

	prompt    textinput.Model
	prompting bool
	engine    *search.Engine
	query     model.SearchQuery
	hits      []int // rows of the current query's matches
	hit       int
	jumpLine  int // row highlighted by GotoRecord, -1 for none
}

func New() Model {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "text or /regex"
	ti.CharLimit = 256
	return Model{prompt: ti, engine: search.New(), jumpLine: -1}
}

// SetLogs shows a copy of logs from the top and clears any search.
func (m *Model) SetLogs(title string, logs *model.StageLog) {
	m.title = title
	m.logs = logs.Clone()
	m.loading = false
	m.err = nil
	m.query = model.SearchQuery{}
	m.hits, m.hit, m.jumpLine = nil, 0, -1
	m.render()
	if m.ready {
		m.viewport.SetContent(m.content())
		m.viewport.GotoTop()
	}
}

// SetStageStatus shows stage status icons in the stage headers.
func (m *Model) SetStageStatus(status map[string]string) {
	m.status = status
	m.refresh()
}

// Append adds a live record. The view keeps following the tail when it was
// scrolled to the bottom.
func (m *Model) Append(rec model.LogRecord) {
	if m.logs == nil {
		m.logs = model.NewStageLog()
	}
	m.logs.Append(rec)
	m.refresh()
}

func (m *Model) SetLoading(title string) {
	m.title = title
	m.loading = true
	m.err = nil
}

func (m *Model) SetError(err error) {
	m.loading = false
	m.err = err
}

func (m *Model) SetTailing(tailing bool) { m.tailing = tailing }

func (m Model) Logs() *model.StageLog { return m.logs }
func (m Model) Title() string         { return m.title }
func (m Model) IsTailing() bool       { return m.tailing }
func (m Model) IsSearching() bool     { return m.prompting }

// GotoRecord scrolls to a 1-based line within stage and highlights it.
func (m *Model) GotoRecord(stage string, line int) {
	start, ok := m.starts[stage]
	if !ok || line < 1 || line > len(m.logs.Records(stage)) {
		return
	}
	m.jumpLine = start + line
	m.viewport.SetContent(m.content())
	m.viewport.SetYOffset(m.jumpLine)
}

func (m *Model) render() {
	m.lines = make([]string, 0, len(m.lines))
	m.starts = make(map[string]int)
	for _, stage := range m.logs.Stages() {
		m.starts[stage] = len(m.lines)
		header := stage
		if st, ok := m.status[stage]; ok {
			header = ui.StageIcon(st) + " " + stage
		}
		m.lines = append(m.lines, styleStage.Render("--- "+header+" ---"))
		for i, rec := range m.logs.Records(stage) {
			m.lines = append(m.lines, styleGutter.Render(fmt.Sprintf("%5d ", i+1))+rec.Line)
		}
	}
}

// refresh re-renders keeping the scroll position, or the tail when
// following.
func (m *Model) refresh() {
	m.render()
	if !m.ready {
		return
	}
	follow := m.tailing && m.viewport.AtBottom()
	offset := m.viewport.YOffset
	if m.query.Pattern != "" {
		m.findHits()
	}
	m.viewport.SetContent(m.content())
	if follow {
		m.viewport.GotoBottom()
	} else {
		m.viewport.SetYOffset(offset)
	}
}

// findHits maps the matches of the current query to rows.
func (m *Model) findHits() {
	m.hits = nil
	res := m.engine.Search(m.logs, m.query)
	for _, match := range res.Matches {
		m.hits = append(m.hits, m.starts[match.Stage]+match.Line)
	}
	if m.hit >= len(m.hits) {
		m.hit = 0
	}
}

func (m Model) content() string {
	if len(m.hits) == 0 && m.jumpLine < 0 {
		return strings.Join(m.lines, "\n")
	}
	current := m.jumpLine
	if len(m.hits) > 0 {
		current = m.hits[m.hit]
	}
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	for _, row := range m.hits {
		out[row] = styleHit.Render(m.lines[row])
	}
	if current >= 0 && current < len(out) {
		out[current] = styleCurrent.Render(m.lines[current])
	}
	return strings.Join(out, "\n")
}

func (m *Model) showHit(delta int) {
	if len(m.hits) == 0 {
		return
	}
	m.hit = (m.hit + delta + len(m.hits)) % len(m.hits)
	m.viewport.SetContent(m.content())
	m.viewport.SetYOffset(m.hits[m.hit])
}

// jumpStage scrolls to the next (dir > 0) or previous stage header.
func (m *Model) jumpStage(dir int) {
	rows := make([]int, 0, len(m.starts))
	for _, row := range m.starts {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	top := m.viewport.YOffset
	if dir > 0 {
		if i := sort.SearchInts(rows, top+1); i < len(rows) {
			m.viewport.SetYOffset(rows[i])
		}
		return
	}
	if i := sort.SearchInts(rows, top); i > 0 {
		m.viewport.SetYOffset(rows[i-1])
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := msg.Height - 1
		if m.prompting {
			h--
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.viewport.SetContent(m.content())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		return m, nil

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "/":
			m.prompting = true
			m.jumpLine = -1
			m.prompt.SetValue("")
			m.prompt.Focus()
			return m, textinput.Blink
		case "n":
			m.showHit(1)
			return m, nil
		case "N":
			m.showHit(-1)
			return m, nil
		case "]":
			m.jumpStage(1)
			return m, nil
		case "[":
			m.jumpStage(-1)
			return m, nil
		case "g":
			m.viewport.GotoTop()
			return m, nil
		case "G":
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updatePrompt(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.prompting = false
		m.prompt.Blur()
		q := search.ParseQuery(m.prompt.Value())
		if q.Pattern == "" || search.Validate(q) != nil {
			return m, nil
		}
		m.query, m.hit = q, 0
		m.findHits()
		m.showHit(0)
		if len(m.hits) == 0 {
			m.viewport.SetContent(m.content())
		}
		return m, nil
	case tea.KeyEsc:
		m.prompting = false
		m.prompt.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	switch {
	case m.loading:
		return "\n  Loading logs..."
	case m.err != nil:
		return ui.StyleFailure.Render(fmt.Sprintf("\n  Error: %v", m.err))
	case len(m.lines) == 0 && m.tailing:
		return fmt.Sprintf("\n  %s\n\n  Waiting for log output...", m.title)
	case len(m.lines) == 0:
		return "\n  No log output"
	}

	header := " " + m.title
	if m.tailing {
		header += styleLive.Render(" [LIVE]")
	}
	header += fmt.Sprintf("  %3.f%%", m.viewport.ScrollPercent()*100)
	switch {
	case len(m.hits) > 0:
		header += fmt.Sprintf("  [%d/%d matches]", m.hit+1, len(m.hits))
	case m.query.Pattern != "":
		header += "  [no matches]"
	}

	parts := []string{lipgloss.NewStyle().Bold(true).Render(header)}
	if m.prompting {
		parts = append(parts, "  "+m.prompt.View())
	}
	parts = append(parts, m.viewport.View())
	return strings.Join(parts, "\n")
}
