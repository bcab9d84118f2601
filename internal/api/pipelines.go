package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

type PipelinesQuery struct {
	JobID  string
	Branch string
	Page   int
}

// ListPipelines returns a job's pipelines, newest first.
func (c *Client) ListPipelines(ctx context.Context, cred model.Credential, q PipelinesQuery) (model.Page[model.Pipeline], error) {
	f := filter{}.equals("job_id", q.JobID).contains("branch", q.Branch)
	opts := searchOptions{page: q.Page, size: PipelinesPageSize, sortMode: descending, sortField: "number"}
	args := fmt.Sprintf("filter: %s, options: %s", f, opts)

	data, err := c.do(ctx, cred, "fetch job pipelines", pagedQuery("pipelines", args, pipelineFields))
	if err != nil {
		return model.Page[model.Pipeline]{}, err
	}
	var out model.Page[model.Pipeline]
	if err := pager.DecodeAt(data, &out, "pipelines", "get"); err != nil {
		return model.Page[model.Pipeline]{}, err
	}
	return out.Normalize(), nil
}

func (c *Client) GetPipeline(ctx context.Context, cred model.Credential, id string) (*model.Pipeline, error) {
	data, err := c.do(ctx, cred, "fetch pipeline", getByIDQuery("pipelines", id, pipelineFields))
	if err != nil {
		return nil, err
	}
	var p model.Pipeline
	if err := pager.DecodeAt(data, &p, "pipelines", "getById"); err != nil {
		var de *pager.DecodeError
		if errors.As(err, &de) {
			return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// GetPipelineLogs returns the raw log lines stored for a pipeline, in the
// order the agent emitted them. A pipeline without logs yields no lines.
func (c *Client) GetPipelineLogs(ctx context.Context, cred model.Credential, id string) ([]string, error) {
	data, err := c.do(ctx, cred, "fetch pipeline logs", getByIDQuery("pipelineLogs", id, "id entries"))
	if err != nil {
		return nil, err
	}
	var logs struct {
		Entries []string `json:"entries"`
	}
	if err := pager.DecodeAt(data, &logs, "pipelineLogs", "getById"); err != nil {
		var de *pager.DecodeError
		if errors.As(err, &de) {
			return nil, nil
		}
		return nil, err
	}
	return logs.Entries, nil
}

// RegisterPipeline queues a new pipeline run of a job on branch and returns
// its id.
func (c *Client) RegisterPipeline(ctx context.Context, cred model.Credential, jobID, branch string) (string, error) {
	mutation := fmt.Sprintf(`mutation {
	pipelines {
		register(pipeline: { jobId: %s, branch: %s })
	}
}`, gqlString(jobID), gqlString(branch))

	data, err := c.do(ctx, cred, "register pipeline", mutation)
	if err != nil {
		return "", err
	}
	var id string
	if err := pager.DecodeAt(data, &id, "pipelines", "register"); err != nil {
		return "", err
	}
	return id, nil
}
