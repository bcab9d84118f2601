// Package cacheview browses the finished pipeline logs kept on disk.
package cacheview

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cli/go-gh/v2/pkg/text"

	"github.com/rusty-ci/rusty-tui/internal/cache"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

type sortMode struct {
	name    string
	compare func(a, b cache.Entry) int
}

// Sort modes, cycled with s. Each puts the largest or newest first.
var sortModes = []sortMode{
	{"last read", func(a, b cache.Entry) int { return b.LastAccessed.Compare(a.LastAccessed) }},
	{"cached", func(a, b cache.Entry) int { return b.StoredAt.Compare(a.StoredAt) }},
	{"size", func(a, b cache.Entry) int { return cmp.Compare(b.Size, a.Size) }},
}

type item struct {
	cache.Entry
	now time.Time
}

func (it item) Title() string {
	label := it.PipelineID
	if it.Number > 0 {
		label = fmt.Sprintf("#%d  %s", it.Number, it.PipelineID)
	}
	return fmt.Sprintf("%s %s  %s", ui.StatusIcon(it.Status), label, ui.StyleWarning.Render(ui.FormatSize(it.Size)))
}

func (it item) Description() string {
	var parts []string
	if it.Branch != "" {
		parts = append(parts, ui.StyleInfo.Render(it.Branch))
	}
	if it.Lines > 0 {
		parts = append(parts, text.Pluralize(it.Lines, "line"))
	}
	if !it.StoredAt.IsZero() {
		parts = append(parts, "cached "+text.RelativeTimeAgo(it.now, it.StoredAt))
	}
	if !it.LastAccessed.IsZero() {
		parts = append(parts, "read "+text.RelativeTimeAgo(it.now, it.LastAccessed))
	}
	return ui.StyleMuted.Render(strings.Join(parts, " | "))
}

func (it item) FilterValue() string {
	return strings.Join([]string{it.PipelineID, it.JobID, it.Branch, string(it.Status)}, " ")
}

// Model lists cache entries in a filterable bubbles list.
type Model struct {
	list      list.Model
	entries   []cache.Entry
	sort      int
	totalSize int64
	loading   bool
	err       error
	now       func() time.Time
}

func New() Model {
	d := list.NewDefaultDelegate()
	d.SetHeight(2)
	d.SetSpacing(0)

	l := list.New(nil, d, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.KeyMap.Filter = ui.Keys.Filter
	l.DisableQuitKeybindings()
	return Model{list: l, loading: true, now: time.Now}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) IsFiltering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) SelectedEntry() *cache.Entry {
	it, ok := m.list.SelectedItem().(item)
	if !ok {
		return nil
	}
	return &it.Entry
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ui.CacheEntriesLoadedMsg:
		m.loading = false
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.entries = slices.Clone(msg.Entries)
		m.totalSize = msg.TotalSize
		return m, m.resort()

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, ui.Keys.Status) && !m.IsFiltering() {
			m.sort = (m.sort + 1) % len(sortModes)
			return m, m.resort()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) resort() tea.Cmd {
	slices.SortStableFunc(m.entries, sortModes[m.sort].compare)
	now := m.now()
	items := make([]list.Item, len(m.entries))
	for i, e := range m.entries {
		items[i] = item{Entry: e, now: now}
	}
	return m.list.SetItems(items)
}

func (m Model) View() string {
	switch {
	case m.loading:
		return "\n  Reading log cache..."
	case m.err != nil:
		return ui.StyleFailure.Render(fmt.Sprintf("\n  Error: %v", m.err)) + "\n\n  Press r to retry."
	case len(m.entries) == 0:
		return "\n  No cached logs.\n\n  Logs of finished pipelines are cached when opened.\n  Press r to refresh."
	}
	header := fmt.Sprintf("  %s, %s | Sort: %s | s: sort  d: delete  x: clear all",
		text.Pluralize(len(m.entries), "pipeline"), ui.FormatSize(m.totalSize), sortModes[m.sort].name)
	return ui.StyleMuted.Render(header) + "\n" + m.list.View()
}
