package details

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cli/go-gh/v2/pkg/text"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

// stageOrder lists stages with the agent's before and after hooks first and
// last and the rest alphabetically.
func stageOrder(status map[string]string) []string {
	var names []string
	for name := range status {
		if name != "before" && name != "after" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := status["before"]; ok {
		names = append([]string{"before"}, names...)
	}
	if _, ok := status["after"]; ok {
		names = append(names, "after")
	}
	return names
}

// Model shows one pipeline of the pipelines list in a side pane.
type Model struct {
	pipeline *model.Pipeline
	job      string
	viewport viewport.Model
	width    int
	height   int
	ready    bool
	now      func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// SetPipeline shows p. A nil pipeline clears the pane.
func (m *Model) SetPipeline(jobName string, p *model.Pipeline) {
	m.job = jobName
	if p == nil {
		m.pipeline = nil
	} else {
		cp := *p
		m.pipeline = &cp
	}
	if m.ready {
		m.viewport.SetContent(m.renderPipeline())
	}
}

func (m Model) Pipeline() *model.Pipeline {
	return m.pipeline
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-1)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 1
		}
		m.viewport.SetContent(m.renderPipeline())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) renderPipeline() string {
	p := m.pipeline
	if p == nil {
		return ""
	}

	bold := lipgloss.NewStyle().Bold(true)
	muted := ui.StyleMuted
	row := func(label, value string) string {
		return fmt.Sprintf("  %s %s\n", muted.Render(fmt.Sprintf("%-10s", label)), value)
	}

	now := m.now()
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(row("Status", ui.StatusIcon(p.Status)+" "+ui.StatusStyle(p.Status).Render(string(p.Status))))
	b.WriteString(row("Branch", ui.StyleInfo.Render(p.Branch)))
	if !p.RegisterDate.IsZero() {
		b.WriteString(row("Registered", text.RelativeTimeAgo(now, p.RegisterDate.Time)))
	}
	if !p.StartDate.IsZero() {
		b.WriteString(row("Started", p.StartDate.Local().Format("2006-01-02 15:04:05")))
	}
	if !p.EndDate.IsZero() {
		b.WriteString(row("Finished", p.EndDate.Local().Format("2006-01-02 15:04:05")))
	}
	if d := p.Duration(); d > 0 {
		dur := d.Truncate(time.Second).String()
		if p.EndDate.IsZero() {
			dur += "..."
		}
		b.WriteString(row("Duration", dur))
	}
	b.WriteString(row("ID", muted.Render(p.ID)))

	stages := stageOrder(p.StageStatus)
	if len(stages) == 0 {
		return b.String()
	}
	b.WriteString("\n  " + bold.Render("Stages") + "\n\n")
	for _, name := range stages {
		status := p.StageStatus[name]
		b.WriteString(fmt.Sprintf("  %s %s  %s\n", ui.StageIcon(status), name, muted.Render(strings.ToLower(status))))
	}
	return b.String()
}

func (m Model) View() string {
	if m.pipeline == nil {
		return "\n  Select a pipeline"
	}
	header := fmt.Sprintf(" #%d", m.pipeline.Number)
	if m.job != "" {
		header += " | " + m.job
	}
	return lipgloss.NewStyle().Bold(true).Render(header) + "\n" + m.viewport.View()
}
