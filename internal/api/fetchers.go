package api

import (
	"context"

	"github.com/rusty-ci/rusty-tui/internal/activity"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

// The fetchers below bind a credential and map engine queries onto API
// calls. Scope and filter mean, per collection:
//
//	groups     -           -
//	projects   group id    name
//	jobs       project id  name
//	pipelines  job id      branch

func (c *Client) GroupsFetcher(cred model.Credential) pager.Fetcher[model.Group] {
	return func(ctx context.Context, q pager.Query) (model.Page[model.Group], error) {
		return c.ListGroups(ctx, cred, q.Page)
	}
}

// ProjectsFetcher loads projects and, when withActivity is set, each
// project's last pipeline.
func (c *Client) ProjectsFetcher(cred model.Credential, withActivity bool) pager.Fetcher[model.Project] {
	return func(ctx context.Context, q pager.Query) (model.Page[model.Project], error) {
		page, err := c.ListProjects(ctx, cred, ProjectsQuery{GroupID: q.Scope, Name: q.Filter, Page: q.Page})
		if err != nil || !withActivity {
			return page, err
		}
		load := func(ctx context.Context, projectID string) ([]model.Job, error) {
			return c.AllJobs(ctx, cred, projectID)
		}
		page.Entries, err = activity.Enrich(ctx, page.Entries, load, activity.DefaultEnrichLimit)
		if err != nil {
			return model.Page[model.Project]{}, err
		}
		return page, nil
	}
}

func (c *Client) JobsFetcher(cred model.Credential) pager.Fetcher[model.Job] {
	return func(ctx context.Context, q pager.Query) (model.Page[model.Job], error) {
		return c.ListJobs(ctx, cred, JobsQuery{ProjectID: q.Scope, Name: q.Filter, Page: q.Page})
	}
}

func (c *Client) PipelinesFetcher(cred model.Credential) pager.Fetcher[model.Pipeline] {
	return func(ctx context.Context, q pager.Query) (model.Page[model.Pipeline], error) {
		return c.ListPipelines(ctx, cred, PipelinesQuery{JobID: q.Scope, Branch: q.Filter, Page: q.Page})
	}
}
