package api

import (
	"context"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

// ListGroups fetches one page of project groups. Page 1 starts with
// model.DefaultGroup, which is not counted in Total.
func (c *Client) ListGroups(ctx context.Context, cred model.Credential, page int) (model.Page[model.Group], error) {
	opts := searchOptions{page: page, size: GroupsPageSize}
	data, err := c.do(ctx, cred, "fetch groups", pagedQuery("projectGroups", "options: "+opts.String(), "id name"))
	if err != nil {
		return model.Page[model.Group]{}, err
	}

	var out model.Page[model.Group]
	if err := pager.DecodeAt(data, &out, "projectGroups", "get"); err != nil {
		return model.Page[model.Group]{}, err
	}
	if out.Number < 1 {
		out.Number = page
	}
	out = out.Normalize()
	if page <= 1 {
		out.Entries = append([]model.Group{model.DefaultGroup}, out.Entries...)
	}
	return out, nil
}
