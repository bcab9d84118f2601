package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

type JobsQuery struct {
	ProjectID string
	Name      string
	Page      int
}

func (c *Client) ListJobs(ctx context.Context, cred model.Credential, q JobsQuery) (model.Page[model.Job], error) {
	f := filter{}.equals("project_id", q.ProjectID).contains("name", q.Name)
	opts := searchOptions{page: q.Page, size: JobsPageSize, sortMode: ascending, sortField: "name"}
	args := fmt.Sprintf("filter: %s, options: %s", f, opts)
	fields := "id name description projectId pipelines { id number status stageStatus registerDate }"

	data, err := c.do(ctx, cred, "fetch project jobs", pagedQuery("jobs", args, fields))
	if err != nil {
		return model.Page[model.Job]{}, err
	}
	var out model.Page[model.Job]
	if err := pager.DecodeAt(data, &out, "jobs", "get"); err != nil {
		return model.Page[model.Job]{}, err
	}
	return out.Normalize(), nil
}

// AllJobs walks every page of a project's jobs.
func (c *Client) AllJobs(ctx context.Context, cred model.Credential, projectID string) ([]model.Job, error) {
	var all []model.Job
	for page := 1; ; page++ {
		p, err := c.ListJobs(ctx, cred, JobsQuery{ProjectID: projectID, Page: page})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Entries...)
		if p.Exhausted() || len(p.Entries) == 0 {
			return all, nil
		}
	}
}

// GetJob looks a job up by id. Results are cached for the client's job
// cache TTL.
func (c *Client) GetJob(ctx context.Context, cred model.Credential, id string) (*model.Job, error) {
	if item := c.jobs.Get(id); item != nil {
		job := item.Value()
		return &job, nil
	}

	data, err := c.do(ctx, cred, "fetch job", getByIDQuery("jobs", id, "id name description template projectId"))
	if err != nil {
		return nil, err
	}
	var job model.Job
	if err := pager.DecodeAt(data, &job, "jobs", "getById"); err != nil {
		var de *pager.DecodeError
		if errors.As(err, &de) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	c.jobs.Set(id, job, ttlcache.DefaultTTL)
	return &job, nil
}
