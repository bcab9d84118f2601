// Package search finds lines in stage-grouped pipeline logs.
package search

import (
	"errors"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

// matcherCacheSize bounds the compiled patterns kept between searches. The
// log view re-runs the same query on every appended line while tailing.
const matcherCacheSize = 32

var ErrEmptyPattern = errors.New("empty search pattern")

type matcher func(line string) bool

// matcherKey leaves out the stage filter, which does not affect compilation.
type matcherKey struct {
	pattern       string
	regex         bool
	caseSensitive bool
}

// Engine searches logs. It keeps recently compiled patterns and is safe for
// concurrent use.
type Engine struct {
	matchers *lru.Cache[matcherKey, matcher]
}

func New() *Engine {
	c, err := lru.New[matcherKey, matcher](matcherCacheSize)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Engine{matchers: c}
}

// Search scans logs stage by stage in first-seen order. Line numbers are
// 1-based within their stage. Terminal escape sequences are ignored when
// matching. An invalid query yields no matches; see Validate.
func (e *Engine) Search(logs *model.StageLog, query model.SearchQuery) *model.SearchResults {
	results := &model.SearchResults{
		Query:       query,
		StageCounts: make(map[string]int),
	}
	match, err := e.matcher(query)
	if err != nil {
		return results
	}

	for _, stage := range logs.Stages() {
		if query.StageFilter != "" && !strings.EqualFold(stage, query.StageFilter) {
			continue
		}
		for i, rec := range logs.Records(stage) {
			if !match(ansi.Strip(rec.Line)) {
				continue
			}
			results.Matches = append(results.Matches, model.SearchResult{Stage: stage, Line: i + 1, Content: rec.Line})
			results.StageCounts[stage]++
			results.TotalCount++
		}
	}
	return results
}

func (e *Engine) matcher(query model.SearchQuery) (matcher, error) {
	k := matcherKey{pattern: query.Pattern, regex: query.IsRegex, caseSensitive: query.CaseSensitive}
	if m, ok := e.matchers.Get(k); ok {
		return m, nil
	}
	m, err := compile(k)
	if err != nil {
		return nil, err
	}
	e.matchers.Add(k, m)
	return m, nil
}

// Validate reports why query cannot be searched for, if it cannot.
func Validate(query model.SearchQuery) error {
	_, err := compile(matcherKey{pattern: query.Pattern, regex: query.IsRegex, caseSensitive: query.CaseSensitive})
	return err
}

func compile(k matcherKey) (matcher, error) {
	if k.pattern == "" {
		return nil, ErrEmptyPattern
	}
	if k.regex {
		expr := k.pattern
		if !k.caseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}
	if k.caseSensitive {
		return func(line string) bool { return strings.Contains(line, k.pattern) }, nil
	}
	lower := strings.ToLower(k.pattern)
	return func(line string) bool { return strings.Contains(strings.ToLower(line), lower) }, nil
}
