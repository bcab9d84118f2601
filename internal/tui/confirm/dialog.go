package confirm

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rusty-ci/rusty-tui/internal/ui"
)

type ResultMsg struct {
	Confirmed bool
	Action    string
	Data      interface{}
	Value     string // text entered in an input dialog
}

type Model struct {
	Title    string
	Message  string
	Action   string
	Data     interface{}
	active   bool
	selected bool // true = confirm selected

	input    textinput.Model
	hasInput bool
}

// New creates a yes/no dialog.
func New(title, message, action string, data interface{}) Model {
	return Model{
		Title:   title,
		Message: message,
		Action:  action,
		Data:    data,
		active:  true,
	}
}

// NewInput creates a dialog asking for one line of text, prefilled with
// value. Enter confirms unless the text is empty.
func NewInput(title, message, value, action string, data interface{}) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 40
	ti.SetValue(value)
	ti.CursorEnd()
	ti.Focus()
	m := New(title, message, action, data)
	m.input = ti
	m.hasInput = true
	return m
}

func (m Model) IsActive() bool { return m.active }

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) result(confirmed bool) tea.Cmd {
	res := ResultMsg{Confirmed: confirmed, Action: m.Action, Data: m.Data}
	if m.hasInput {
		res.Value = m.input.Value()
	}
	return func() tea.Msg { return res }
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.active {
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.hasInput {
		switch keyMsg.String() {
		case "enter":
			if m.input.Value() == "" {
				return m, nil
			}
			m.active = false
			return m, m.result(true)
		case "esc":
			m.active = false
			return m, m.result(false)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case "y", "Y":
		m.active = false
		return m, m.result(true)
	case "n", "N", "esc":
		m.active = false
		return m, m.result(false)
	case "enter":
		m.active = false
		return m, m.result(m.selected)
	case "tab", "left", "right", "h", "l":
		m.selected = !m.selected
	}
	return m, nil
}

func (m Model) View() string {
	if !m.active {
		return ""
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ui.ColorWarning).
		Padding(1, 2).
		Width(50)

	title := lipgloss.NewStyle().Bold(true).
		Foreground(ui.ColorWarning).
		Render(m.Title)

	if m.hasInput {
		content := fmt.Sprintf("%s\n\n%s\n\n%s\n\nenter to confirm, esc to cancel",
			title, m.Message, m.input.View())
		return style.Render(content)
	}

	yesStyle := lipgloss.NewStyle().Padding(0, 1)
	noStyle := lipgloss.NewStyle().Padding(0, 1)

	if m.selected {
		yesStyle = yesStyle.Bold(true).Background(ui.ColorSuccess).Foreground(lipgloss.Color("#F9FAFB"))
		noStyle = noStyle.Foreground(ui.ColorMuted)
	} else {
		yesStyle = yesStyle.Foreground(ui.ColorMuted)
		noStyle = noStyle.Bold(true).Background(ui.ColorFailure).Foreground(lipgloss.Color("#F9FAFB"))
	}

	content := fmt.Sprintf("%s\n\n%s\n\n%s  %s\n\ny/n to confirm, esc to cancel",
		title, m.Message,
		yesStyle.Render("Yes"), noStyle.Render("No"))

	return style.Render(content)
}
