package ops

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rusty-ci/rusty-tui/internal/cache"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/stagelog"
)

// LogFetcher loads the raw log lines of a pipeline.
type LogFetcher interface {
	GetPipelineLogs(ctx context.Context, cred model.Credential, id string) ([]string, error)
}

type LogLoader struct {
	Fetcher LogFetcher
	Cache   *cache.LogCache // optional
	Logger  zerolog.Logger
}

// Load returns the stage-grouped logs of p. Finished pipelines are served
// from and written to the cache when one is configured. FromCache reports
// where the lines came from.
func (l LogLoader) Load(ctx context.Context, cred model.Credential, p model.Pipeline) (logs *model.StageLog, fromCache bool, err error) {
	var lines []string
	if l.Cache != nil && p.Status.Finished() && l.Cache.Has(p.ID) {
		lines, err = l.Cache.Load(p.ID)
		if err == nil {
			fromCache = true
		} else {
			l.Logger.Warn().Err(err).Str("pipeline", p.ID).Msg("cached logs unreadable, refetching")
		}
	}

	if !fromCache {
		lines, err = l.Fetcher.GetPipelineLogs(ctx, cred, p.ID)
		if err != nil {
			return nil, false, err
		}
	}

	logs, err = stagelog.Aggregate(lines)
	if err != nil {
		return nil, fromCache, err
	}

	if !fromCache && l.Cache != nil && p.Status.Finished() {
		if err := l.Cache.Store(p, lines); err != nil {
			l.Logger.Warn().Err(err).Str("pipeline", p.ID).Msg("cache pipeline logs")
		}
	}
	return logs, fromCache, nil
}
