package api

import (
	"fmt"
	"strings"
)

// Page sizes used by the web client for each collection.
const (
	GroupsPageSize    = 50
	ProjectsPageSize  = 30
	JobsPageSize      = 50
	PipelinesPageSize = 20
)

const pipelineFields = `id number status stageStatus branch registerDate startDate endDate jobId`

type sortMode string

const (
	ascending  sortMode = "ASCENDING"
	descending sortMode = "DESCENDING"
)

type searchOptions struct {
	page      int
	size      int
	sortMode  sortMode
	sortField string
}

func (o searchOptions) String() string {
	page := o.page
	if page < 1 {
		page = 1
	}
	s := fmt.Sprintf("{ pageNumber: %d, pageSize: %d", page, o.size)
	if o.sortField != "" {
		s += fmt.Sprintf(", sortMode: %s, sortField: %s", o.sortMode, gqlString(o.sortField))
	}
	return s + " }"
}

// filter builds a search filter object. Empty values are left out.
type filter []string

func (f filter) equals(field, value string) filter {
	return append(f, fmt.Sprintf("%s: { equals: %s }", field, gqlString(value)))
}

func (f filter) isNull(field string) filter {
	return append(f, field+": null")
}

func (f filter) contains(field, value string) filter {
	if value == "" {
		return f
	}
	return append(f, fmt.Sprintf("%s: { contains: %s }", field, gqlString(value)))
}

func (f filter) String() string {
	return "{ " + strings.Join(f, ", ") + " }"
}

func pagedQuery(collection, args, fields string) string {
	return fmt.Sprintf(`query {
	%s {
		get(%s) {
			total
			page
			pageSize
			entries { %s }
		}
	}
}`, collection, args, fields)
}

func getByIDQuery(collection, id, fields string) string {
	return fmt.Sprintf(`query {
	%s {
		getById(id: %s) { %s }
	}
}`, collection, gqlString(id), fields)
}
