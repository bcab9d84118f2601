package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cli/go-gh/v2/pkg/text"

	"github.com/rusty-ci/rusty-tui/internal/activity"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

// Row renderers for the paged lists. Each returns exactly as many lines as
// the list's Options.Height.

func fit(s string, width int) string {
	if width < 1 {
		return ""
	}
	return text.Truncate(width, s)
}

func renderGroup(g model.Group, width int) string {
	name := g.Name
	if g.IsDefault() {
		name = ui.StyleMuted.Render(name + " (no group)")
	}
	return fit(" "+name, width)
}

func describeLast(last *model.LastPipeline, now time.Time) string {
	if last == nil {
		return ui.StyleMuted.Render("no pipelines")
	}
	s := fmt.Sprintf("%s #%d", ui.StatusIcon(last.Status), last.Number)
	if last.JobName != "" {
		s += " " + last.JobName
	}
	if !last.RegisterDate.IsZero() {
		s += "  " + ui.StyleMuted.Render(text.RelativeTimeAgo(now, last.RegisterDate.Time))
	}
	return s
}

func renderProject(p model.Project, width int) string {
	title := " " + lipgloss.NewStyle().Bold(true).Render(p.Name)
	return fit(title, width) + "\n" + fit("   "+describeLast(p.LastPipeline, time.Now()), width)
}

func renderJob(j model.Job, width int) string {
	title := " " + lipgloss.NewStyle().Bold(true).Render(j.Name)
	if j.Description != "" {
		title += "  " + ui.StyleMuted.Render(j.Description)
	}
	last := activity.Last([]model.Job{j})
	if last != nil {
		last.JobName = ""
	}
	return fit(title, width) + "\n" + fit("   "+describeLast(last, time.Now()), width)
}

func renderPipeline(p model.Pipeline, width int) string {
	parts := []string{
		fmt.Sprintf(" %s #%-4d", ui.StatusIcon(p.Status), p.Number),
		ui.StyleInfo.Render(p.Branch),
	}
	if !p.RegisterDate.IsZero() {
		parts = append(parts, ui.StyleMuted.Render(text.RelativeTimeAgo(time.Now(), p.RegisterDate.Time)))
	}
	if d := p.Duration(); d > 0 {
		parts = append(parts, ui.StyleMuted.Render(d.Truncate(time.Second).String()))
	}
	return fit(strings.Join(parts, "  "), width)
}

func groupKey(g model.Group) string       { return g.ID }
func projectKey(p model.Project) string   { return p.ID }
func jobKey(j model.Job) string           { return j.ID }
func pipelineKey(p model.Pipeline) string { return p.ID }
