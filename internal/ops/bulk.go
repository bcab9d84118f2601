package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

type PipelineFilter struct {
	Status    model.PipelineStatus
	Branch    string
	OlderThan time.Duration
	Running   bool // only pipelines that are assigned or in progress
}

func (f PipelineFilter) IsZero() bool {
	return f == PipelineFilter{}
}

// FilterPipelines keeps the pipelines matching every set field, in order.
func FilterPipelines(pipelines []model.Pipeline, filter PipelineFilter) []model.Pipeline {
	var matched []model.Pipeline
	now := time.Now()

	for _, p := range pipelines {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Branch != "" && !strings.EqualFold(p.Branch, filter.Branch) {
			continue
		}
		if filter.Running && !p.Status.Running() {
			continue
		}
		if filter.OlderThan > 0 && now.Sub(p.RegisterDate.Time) < filter.OlderThan {
			continue
		}
		matched = append(matched, p)
	}
	return matched
}

// Registrar queues pipeline runs.
type Registrar interface {
	RegisterPipeline(ctx context.Context, cred model.Credential, jobID, branch string) (string, error)
}

type TriggerResult struct {
	Registered map[string]string // job id -> pipeline id
	Failed     int
	Errors     []error
}

// DefaultTriggerRate bounds how fast TriggerPipelines registers runs.
var DefaultTriggerRate = rate.Every(200 * time.Millisecond)

// TriggerPipelines registers a run on branch for each job, at most limit
// per second with bursts of one. It stops early only when ctx is done.
func TriggerPipelines(ctx context.Context, reg Registrar, cred model.Credential, jobIDs []string, branch string, limit rate.Limit, onProgress func(completed, total int)) (*TriggerResult, error) {
	if limit <= 0 {
		limit = DefaultTriggerRate
	}
	limiter := rate.NewLimiter(limit, 1)
	result := &TriggerResult{Registered: make(map[string]string)}
	total := len(jobIDs)

	for i, jobID := range jobIDs {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		id, err := reg.RegisterPipeline(ctx, cred, jobID, branch)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("job %s: %w", jobID, err))
		} else {
			result.Registered[jobID] = id
		}

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return result, nil
}
