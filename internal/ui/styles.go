package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/subscription"
)

var (
	ColorPrimary   = lipgloss.Color("#B7410E")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorFailure   = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorInfo      = lipgloss.Color("#3B82F6")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorBorder    = lipgloss.Color("#374151")
	ColorHighlight = lipgloss.Color("#1F2937")

	StylePane = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StylePaneFocused = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary)

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleFailure = lipgloss.NewStyle().Foreground(ColorFailure)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleMatch = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FCD34D")).
			Background(lipgloss.Color("#78350F"))
)

func StatusStyle(status model.PipelineStatus) lipgloss.Style {
	switch status {
	case model.PipelineSuccess:
		return StyleSuccess
	case model.PipelineFailure:
		return StyleFailure
	case model.PipelineUnstable:
		return StyleWarning
	case model.PipelineDefined:
		return StyleMuted
	default:
		return StyleInfo
	}
}

func StatusIcon(status model.PipelineStatus) string {
	switch status {
	case model.PipelineSuccess:
		return StyleSuccess.Render("V")
	case model.PipelineFailure:
		return StyleFailure.Render("X")
	case model.PipelineUnstable:
		return StyleWarning.Render("!")
	case model.PipelineInProgress:
		return StyleInfo.Render("*")
	case model.PipelineAssigned:
		return StyleInfo.Render("o")
	case model.PipelineDefined:
		return StyleMuted.Render("o")
	default:
		return StyleMuted.Render("?")
	}
}

// StageIcon renders the per-stage status strings reported in stageStatus.
func StageIcon(status string) string {
	return StatusIcon(model.ParsePipelineStatus(status))
}

// ConnectionStyle colors a subscription state for the header.
func ConnectionStyle(state subscription.State) lipgloss.Style {
	switch state {
	case subscription.Subscribed:
		return StyleSuccess
	case subscription.Connecting, subscription.AwaitingAck:
		return StyleWarning
	case subscription.Disconnected:
		return StyleFailure
	default:
		return StyleMuted
	}
}
