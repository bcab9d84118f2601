package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/rusty-ci/rusty-tui/internal/subscription"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

var (
	headerBg  = lipgloss.NewStyle().Background(lipgloss.Color("#1F2937"))
	statusBg  = lipgloss.NewStyle().Background(lipgloss.Color("#111827"))
	titleText = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F9FAFB"))
)

// bar lays left and right out on a single row of the given width.
func bar(bg lipgloss.Style, left, right string, width int) string {
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return bg.Width(width).Render(left + lipgloss.NewStyle().Width(gap).Render("") + right)
}

// RenderHeader shows the query endpoint and, while a subscription is open,
// its connection state.
func RenderHeader(endpoint string, state subscription.State, live bool, width int) string {
	conn := ui.StyleMuted.Render("idle ")
	if live {
		conn = ui.ConnectionStyle(state).Render(fmt.Sprintf("● %s ", state))
	}
	return bar(headerBg, titleText.Render(" rusty-tui | "+endpoint), conn, width)
}

// RenderStatusBar puts the last status on the left, in the failure color when
// failed is set, and key hints on the right.
func RenderStatusBar(status string, failed bool, hints string, width int) string {
	color := ui.ColorMuted
	if failed {
		color = ui.ColorFailure
	}
	left := lipgloss.NewStyle().Foreground(color).Render("  " + status)
	return bar(statusBg, left, ui.StyleMuted.Render(hints+" "), width)
}
