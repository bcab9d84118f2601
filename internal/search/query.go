package search

import (
	"strings"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

const stagePrefix = "stage:"

// ParseQuery turns a typed query line into a search. An optional leading
// "stage:NAME" token limits the search to one stage, a leading slash on the
// rest marks a regular expression, and any uppercase letter makes the
// search case-sensitive.
func ParseQuery(line string) model.SearchQuery {
	var q model.SearchQuery
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, stagePrefix) {
		stage, rest, _ := strings.Cut(line[len(stagePrefix):], " ")
		q.StageFilter = stage
		line = strings.TrimSpace(rest)
	}
	if len(line) > 1 && line[0] == '/' {
		q.IsRegex = true
		line = line[1:]
	}
	q.Pattern = line
	q.CaseSensitive = strings.ToLower(line) != line
	return q
}
