// Package pagedlist renders a pager.Engine collection as a bubbles list.
// Scrolling to the last visible page loads the next server page, and the
// filter key edits the server-side filter.
package pagedlist

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rusty-ci/rusty-tui/internal/pager"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

const fetchTimeout = 30 * time.Second

// ResultMsg carries a finished fetch back to the list that issued it.
type ResultMsg[T any] struct {
	List   string
	Result pager.Result[T]
}

// Renderer draws one entry. It must return exactly Options.Height lines.
type Renderer[T any] func(item T, width int) string

type Options[T any] struct {
	// Height is the number of lines per entry; defaults to 1.
	Height int
	// Key identifies entries for multi-selection. Selection is disabled
	// when nil.
	Key func(T) string
	// Filterable enables the server-side filter prompt.
	Filterable  bool
	Placeholder string
	// Empty is shown when the collection has no entries.
	Empty string
}

// --- Delegate ---

type entry[T any] struct {
	value    T
	selected bool
}

func (e entry[T]) FilterValue() string { return "" }

type delegate[T any] struct {
	render Renderer[T]
	height int
}

func (d delegate[T]) Height() int                             { return d.height }
func (d delegate[T]) Spacing() int                            { return 0 }
func (d delegate[T]) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d delegate[T]) Render(w io.Writer, m list.Model, index int, item list.Item) {
	e, ok := item.(entry[T])
	if !ok {
		return
	}
	mark := " "
	if e.selected {
		mark = ui.StyleWarning.Render("●")
	}
	out := mark + d.render(e.value, m.Width()-1)
	if index == m.Index() {
		out = lipgloss.NewStyle().Background(ui.ColorHighlight).Width(m.Width()).Render(out)
	}
	fmt.Fprint(w, out)
}

// --- Model ---

type Model[T any] struct {
	engine *pager.Engine[T]
	opts   Options[T]
	list   list.Model
	input  textinput.Model

	scope    string
	filter   string
	editing  bool
	narrow   func([]T) []T
	selected map[string]bool

	loading bool
	err     error
	width   int
	height  int
}

func New[T any](engine *pager.Engine[T], render Renderer[T], opts Options[T]) Model[T] {
	if opts.Height <= 0 {
		opts.Height = 1
	}
	l := list.New(nil, delegate[T]{render: render, height: opts.Height}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	ti := textinput.New()
	ti.Placeholder = opts.Placeholder
	ti.CharLimit = 128
	ti.Prompt = "Filter: "

	return Model[T]{
		engine:   engine,
		opts:     opts,
		list:     l,
		input:    ti,
		selected: make(map[string]bool),
	}
}

func (m Model[T]) Name() string { return m.engine.Name() }

// Load requests the first page for the current scope and filter, or
// reloads when they are already loaded.
func (m *Model[T]) Load() tea.Cmd {
	if req, ok := m.engine.SetFilterOrScope(m.filter, m.scope); ok {
		m.loading = true
		return m.fetch(req)
	}
	return m.Reload()
}

func (m *Model[T]) Reload() tea.Cmd {
	m.loading = true
	return m.fetch(m.engine.Reload())
}

// SetScope switches to another parent entity. The filter is cleared.
func (m *Model[T]) SetScope(scope string) tea.Cmd {
	m.scope = scope
	m.filter = ""
	m.input.SetValue("")
	m.err = nil
	m.clearSelection()
	req, ok := m.engine.SetFilterOrScope(m.filter, m.scope)
	if !ok {
		return nil
	}
	m.loading = true
	return m.fetch(req)
}

func (m *Model[T]) SetFilter(filter string) tea.Cmd {
	m.filter = filter
	m.err = nil
	req, ok := m.engine.SetFilterOrScope(m.filter, m.scope)
	if !ok {
		return nil
	}
	m.loading = true
	return m.fetch(req)
}

func (m Model[T]) Scope() string  { return m.scope }
func (m Model[T]) Filter() string { return m.filter }

// SetNarrow installs a client-side filter applied to the loaded entries.
// Pass nil to show everything.
func (m *Model[T]) SetNarrow(fn func([]T) []T) {
	m.narrow = fn
	m.sync(false)
}

func (m Model[T]) fetch(req pager.Request) tea.Cmd {
	eng := m.engine
	name := eng.Name()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return ResultMsg[T]{List: name, Result: eng.Execute(ctx, req)}
	}
}

// Upsert replaces a loaded entry in place. It reports whether the entry
// was present.
func (m *Model[T]) Upsert(item T) bool {
	if !m.engine.Upsert(item) {
		return false
	}
	m.sync(false)
	return true
}

// Prepend inserts a new entry at the top of the list.
func (m *Model[T]) Prepend(item T) {
	m.engine.Prepend(item)
	m.sync(false)
}

func (m Model[T]) Selected() *T {
	if e, ok := m.list.SelectedItem().(entry[T]); ok {
		return &e.value
	}
	return nil
}

// SelectedKeys returns the keys of all multi-selected entries.
func (m Model[T]) SelectedKeys() []string {
	var keys []string
	for k := range m.selected {
		keys = append(keys, k)
	}
	return keys
}

func (m Model[T]) SelectionCount() int {
	return len(m.selected)
}

func (m *Model[T]) ClearSelection() {
	m.clearSelection()
	m.sync(false)
}

func (m *Model[T]) clearSelection() {
	for k := range m.selected {
		delete(m.selected, k)
	}
}

func (m Model[T]) State() pager.State { return m.engine.State() }

func (m Model[T]) IsEditing() bool { return m.editing }

// Err returns the error of the last applied fetch, if it failed.
func (m Model[T]) Err() error { return m.err }

func (m Model[T]) Len() int { return len(m.list.Items()) }

func (m Model[T]) Init() tea.Cmd { return nil }

func (m Model[T]) Update(msg tea.Msg) (Model[T], tea.Cmd) {
	switch msg := msg.(type) {
	case ResultMsg[T]:
		if msg.List != m.engine.Name() {
			return m, nil
		}
		applied, err := m.engine.Apply(msg.Result)
		if err != nil {
			m.loading = false
			m.err = err
			return m, nil
		}
		if !applied {
			return m, nil
		}
		m.loading = false
		m.err = nil
		if msg.Result.Replace {
			m.clearSelection()
		}
		m.sync(msg.Result.Replace)
		return m, m.maybeLoadMore()

	case tea.KeyMsg:
		if m.editing {
			switch msg.String() {
			case "enter":
				m.editing = false
				m.input.Blur()
				return m, m.SetFilter(m.input.Value())
			case "esc":
				m.editing = false
				m.input.Blur()
				m.input.SetValue(m.filter)
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch {
		case m.opts.Filterable && key.Matches(msg, ui.Keys.Filter):
			m.editing = true
			m.input.SetValue(m.filter)
			m.input.CursorEnd()
			m.input.Focus()
			m.resize()
			return m, textinput.Blink
		case m.opts.Key != nil && key.Matches(msg, ui.Keys.Select):
			if e, ok := m.list.SelectedItem().(entry[T]); ok {
				k := m.opts.Key(e.value)
				if m.selected[k] {
					delete(m.selected, k)
				} else {
					m.selected[k] = true
				}
				m.sync(false)
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, tea.Batch(cmd, m.maybeLoadMore())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, m.maybeLoadMore()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// maybeLoadMore asks the engine for the next page once the last loaded
// entries are on screen.
func (m *Model[T]) maybeLoadMore() tea.Cmd {
	if m.height == 0 {
		return nil
	}
	perPage := m.list.Paginator.PerPage
	first := m.list.Paginator.Page * perPage
	req, ok := m.engine.LoadMoreIfNearEnd(first, perPage, len(m.list.Items()))
	if !ok {
		return nil
	}
	m.loading = true
	return m.fetch(req)
}

func (m *Model[T]) sync(resetCursor bool) {
	values := m.engine.Entries()
	if m.narrow != nil {
		values = m.narrow(values)
	}
	items := make([]list.Item, len(values))
	for i, v := range values {
		e := entry[T]{value: v}
		if m.opts.Key != nil {
			e.selected = m.selected[m.opts.Key(v)]
		}
		items[i] = e
	}
	idx := m.list.Index()
	m.list.SetItems(items)
	switch {
	case resetCursor || len(items) == 0:
		m.list.Select(0)
	case idx >= len(items):
		m.list.Select(len(items) - 1)
	default:
		m.list.Select(idx)
	}
}

func (m *Model[T]) resize() {
	h := m.height - 1
	if m.editing || m.filter != "" {
		h--
	}
	if h < 1 {
		h = 1
	}
	m.input.Width = m.width - 10
	m.list.SetSize(m.width, h)
}

func (m Model[T]) View() string {
	var top string
	switch {
	case m.editing:
		top = "  " + m.input.View() + "\n"
	case m.filter != "":
		top = ui.StyleInfo.Render("  filter: "+m.filter) + "\n"
	}

	st := m.engine.State()
	switch {
	case m.err != nil && !st.Loaded:
		return top + fmt.Sprintf("\n  Error: %v\n\n  Press r to retry.", m.err)
	case !st.Loaded:
		return top + "\n  Loading..."
	case len(m.list.Items()) == 0:
		empty := m.opts.Empty
		if empty == "" {
			empty = "Nothing here yet."
		}
		return top + "\n  " + empty
	}

	return top + m.list.View() + "\n" + m.footer(st)
}

func (m Model[T]) footer(st pager.State) string {
	text := fmt.Sprintf("  %d of %d", len(m.list.Items()), st.Total)
	if n := len(m.selected); n > 0 {
		text += fmt.Sprintf("  |  %d selected", n)
	}
	if m.loading {
		text += "  |  loading..."
	}
	if m.err != nil {
		return ui.StyleMuted.Render(text) + "  " + ui.StyleFailure.Render(m.err.Error())
	}
	return ui.StyleMuted.Render(text)
}
