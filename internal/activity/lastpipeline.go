// Package activity derives the most recent pipeline of each project from
// its job and pipeline tree.
package activity

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

// DefaultEnrichLimit caps concurrent job fetches in Enrich.
const DefaultEnrichLimit = 4

type candidate struct {
	jobName  string
	pipeline model.Pipeline
}

// DeriveLastPipelines returns copies of projects with LastPipeline set to the
// newest pipeline by register date across all of a project's jobs. Ties keep
// the (job, pipeline) order in which they were listed. Projects without any
// pipeline get a nil LastPipeline. The input is not modified.
func DeriveLastPipelines(projects []model.Project) []model.Project {
	out := make([]model.Project, len(projects))
	for i, p := range projects {
		out[i] = p
		out[i].LastPipeline = lastPipeline(p.Jobs)
	}
	return out
}

// Last returns the newest pipeline across jobs, or nil when none has run.
func Last(jobs []model.Job) *model.LastPipeline {
	return lastPipeline(jobs)
}

func lastPipeline(jobs []model.Job) *model.LastPipeline {
	var all []candidate
	for _, job := range jobs {
		for _, p := range job.Pipelines {
			all = append(all, candidate{jobName: job.Name, pipeline: p})
		}
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].pipeline.RegisterDate.After(all[j].pipeline.RegisterDate)
	})
	first := all[0]
	return &model.LastPipeline{
		ID:           first.pipeline.ID,
		Number:       first.pipeline.Number,
		Status:       first.pipeline.Status,
		RegisterDate: first.pipeline.RegisterDate,
		JobName:      first.jobName,
	}
}

// JobLoader fetches the jobs, with their pipelines, of one project.
type JobLoader func(ctx context.Context, projectID string) ([]model.Job, error)

// Enrich loads the jobs of every project concurrently, at most limit at a
// time, and derives each project's last pipeline. The first failing load
// cancels the rest and is returned.
func Enrich(ctx context.Context, projects []model.Project, load JobLoader, limit int) ([]model.Project, error) {
	if limit <= 0 {
		limit = DefaultEnrichLimit
	}
	withJobs := make([]model.Project, len(projects))
	copy(withJobs, projects)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range withJobs {
		g.Go(func() error {
			jobs, err := load(gctx, withJobs[i].ID)
			if err != nil {
				return fmt.Errorf("load jobs of project %s: %w", withJobs[i].ID, err)
			}
			withJobs[i].Jobs = jobs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return DeriveLastPipelines(withJobs), nil
}
