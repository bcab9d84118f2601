package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

type ProjectsQuery struct {
	GroupID string // empty selects projects outside any group
	Name    string
	Page    int
}

func (q ProjectsQuery) filter() filter {
	var f filter
	if q.GroupID == "" {
		f = f.isNull("group_id")
	} else {
		f = f.equals("group_id", q.GroupID)
	}
	return f.contains("name", q.Name)
}

func (c *Client) ListProjects(ctx context.Context, cred model.Credential, q ProjectsQuery) (model.Page[model.Project], error) {
	opts := searchOptions{page: q.Page, size: ProjectsPageSize, sortMode: ascending, sortField: "name"}
	args := fmt.Sprintf("filter: %s, options: %s", q.filter(), opts)
	data, err := c.do(ctx, cred, "fetch projects", pagedQuery("projects", args, "id name url"))
	if err != nil {
		return model.Page[model.Project]{}, err
	}
	var out model.Page[model.Project]
	if err := pager.DecodeAt(data, &out, "projects", "get"); err != nil {
		return model.Page[model.Project]{}, err
	}
	return out.Normalize(), nil
}

func (c *Client) GetProject(ctx context.Context, cred model.Credential, id string) (*model.Project, error) {
	data, err := c.do(ctx, cred, "fetch project", getByIDQuery("projects", id, "id name url"))
	if err != nil {
		return nil, err
	}
	var p model.Project
	if err := pager.DecodeAt(data, &p, "projects", "getById"); err != nil {
		var de *pager.DecodeError
		if errors.As(err, &de) {
			return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}
