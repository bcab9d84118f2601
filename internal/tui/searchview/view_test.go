package searchview

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

func typed(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestSearchQueryParsing(t *testing.T) {
	tests := []struct {
		input string
		want  model.SearchQuery
	}{
		{"error", model.SearchQuery{Pattern: "error"}},
		{"Error", model.SearchQuery{Pattern: "Error", CaseSensitive: true}},
		{"/err(or)?", model.SearchQuery{Pattern: "err(or)?", IsRegex: true}},
		{"/", model.SearchQuery{Pattern: "/"}},
		{"stage:build /link(er)?", model.SearchQuery{Pattern: "link(er)?", IsRegex: true, StageFilter: "build"}},
		{"  stage:test  Timeout ", model.SearchQuery{Pattern: "Timeout", CaseSensitive: true, StageFilter: "test"}},
	}
	for _, tt := range tests {
		m := New()
		m.Activate()
		m = typed(m, tt.input)
		if got := m.SearchQuery(); got != tt.want {
			t.Errorf("SearchQuery(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestResultsGroupedByStage(t *testing.T) {
	m := New()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m.Activate()
	m = typed(m, "fail")

	results := &model.SearchResults{
		Matches: []model.SearchResult{
			{Stage: "build", Line: 3, Content: "test failed"},
			{Stage: "build", Line: 9, Content: "1 failure"},
			{Stage: "after", Line: 1, Content: "upload failed"},
		},
		StageCounts: map[string]int{"build": 2, "after": 1},
		TotalCount:  3,
	}
	m, _ = m.Update(ui.SearchDoneMsg{Results: results})
	if m.IsInputMode() {
		t.Fatal("results should switch to results mode")
	}

	view := m.View()
	if !strings.Contains(view, "3 matches in 2 stages") {
		t.Errorf("summary missing, got:\n%s", view)
	}
	if strings.Index(view, "build (2)") > strings.Index(view, "after (1)") {
		t.Error("stages should follow match order")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	got := m.SelectedMatch()
	if got == nil || got.Stage != "after" || got.Line != 1 {
		t.Fatalf("SelectedMatch() = %+v", got)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if got := m.SelectedMatch(); got.Stage != "after" {
		t.Errorf("cursor should stop at the last match, got %+v", got)
	}
}

func TestCursorScrollsIntoView(t *testing.T) {
	m := New()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 8})
	m.Activate()

	results := &model.SearchResults{StageCounts: map[string]int{"build": 30}, TotalCount: 30}
	for i := 1; i <= 30; i++ {
		results.Matches = append(results.Matches, model.SearchResult{Stage: "build", Line: i, Content: fmt.Sprintf("line %d", i)})
	}
	m, _ = m.Update(ui.SearchDoneMsg{Results: results})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyPgDown})

	sel := m.SelectedMatch()
	if sel == nil || sel.Line != 11 {
		t.Fatalf("two pages of 5 rows should land on line 11, got %+v", sel)
	}
	if !strings.Contains(m.View(), "line 11") {
		t.Errorf("selected match should be visible:\n%s", m.View())
	}
}

func TestEscReturnsToResults(t *testing.T) {
	m := New()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m.Activate()
	m, _ = m.Update(ui.SearchDoneMsg{Results: &model.SearchResults{}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	if !m.IsInputMode() {
		t.Fatal("/ should edit the query")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.IsInputMode() || !m.IsActive() {
		t.Error("esc with results should go back to them")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.IsActive() {
		t.Error("esc in results should close the pane")
	}
}

func TestInvalidPatternShown(t *testing.T) {
	m := New()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m.Activate()
	m, _ = m.Update(ui.SearchDoneMsg{Err: errors.New("missing closing )")})
	if !strings.Contains(m.View(), "Invalid pattern") {
		t.Errorf("expected error in view, got:\n%s", m.View())
	}
}
