package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/cli/go-gh/v2/pkg/text"
	"github.com/spf13/cobra"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/ops"
	"github.com/rusty-ci/rusty-tui/internal/search"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

func newLogsCmd(configPath *string) *cobra.Command {
	var (
		pipelineID string
		query      model.SearchQuery
	)
	cmd := &cobra.Command{
		Use:   "logs --pipeline ID",
		Short: "Print the logs of a pipeline grouped by stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pipelineID == "" {
				return fmt.Errorf("--pipeline is required")
			}
			if query.Pattern != "" {
				if err := search.Validate(query); err != nil {
					return err
				}
			}
			rt, err := setup(cmd, *configPath, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.client.GetPipeline(cmd.Context(), rt.cred, pipelineID)
			if err != nil {
				return fmt.Errorf("get pipeline %s: %w", pipelineID, err)
			}
			loader := ops.LogLoader{Fetcher: rt.client, Cache: rt.logCache, Logger: rt.log}
			logs, fromCache, err := loader.Load(cmd.Context(), rt.cred, *p)
			if err != nil {
				return fmt.Errorf("load logs of pipeline %s: %w", pipelineID, err)
			}
			rt.log.Debug().Str("pipeline", p.ID).Bool("cached", fromCache).Int("lines", logs.Len()).Msg("logs loaded")
			fmt.Fprintln(cmd.ErrOrStderr(), describePipeline(cmd.Context(), rt, p))

			out := cmd.OutOrStdout()
			if query.Pattern != "" {
				return printMatches(out, search.New().Search(logs, query))
			}
			return printStages(out, logs, query.StageFilter, term.FromEnv().IsColorEnabled())
		},
	}
	f := cmd.Flags()
	f.StringVar(&pipelineID, "pipeline", "", "pipeline id")
	f.StringVar(&query.Pattern, "grep", "", "only print lines matching this pattern")
	f.BoolVar(&query.IsRegex, "regex", false, "treat --grep as a regular expression")
	f.BoolVar(&query.CaseSensitive, "case-sensitive", false, "match --grep case-sensitively")
	f.StringVar(&query.StageFilter, "stage", "", "only print this stage")
	return cmd
}

// describePipeline names the pipeline's project and job. Lookup failures
// only shorten the description.
func describePipeline(ctx context.Context, rt *services, p *model.Pipeline) string {
	desc := fmt.Sprintf("#%d %s on %s", p.Number, p.Status, p.Branch)
	job, err := rt.client.GetJob(ctx, rt.cred, p.JobID)
	if err != nil {
		rt.log.Debug().Err(err).Str("job", p.JobID).Msg("job lookup failed")
		return desc
	}
	desc = job.Name + " " + desc
	project, err := rt.client.GetProject(ctx, rt.cred, job.ProjectID)
	if err != nil {
		rt.log.Debug().Err(err).Str("project", job.ProjectID).Msg("project lookup failed")
		return desc
	}
	return project.Name + " / " + desc
}

func printStages(w io.Writer, logs *model.StageLog, stage string, color bool) error {
	for _, name := range logs.Stages() {
		if stage != "" && !strings.EqualFold(name, stage) {
			continue
		}
		title := fmt.Sprintf("== %s (%s) ==", name, text.Pluralize(len(logs.Records(name)), "line"))
		if color {
			title = ui.StyleInfo.Render(title)
		}
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
		for _, rec := range logs.Records(name) {
			if _, err := fmt.Fprintln(w, rec.Line); err != nil {
				return err
			}
		}
	}
	return nil
}

func printMatches(w io.Writer, res *model.SearchResults) error {
	for _, m := range res.Matches {
		if _, err := fmt.Fprintf(w, "%s:%d:%s\n", m.Stage, m.Line, m.Content); err != nil {
			return err
		}
	}
	if res.TotalCount == 0 {
		return fmt.Errorf("no lines match %q", res.Query.Pattern)
	}
	return nil
}
