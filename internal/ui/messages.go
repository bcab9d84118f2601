package ui

import (
	"github.com/rusty-ci/rusty-tui/internal/cache"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/subscription"
)

// Live subscription messages. Handle identifies the subscription the
// message came from so that messages of a closed handle can be ignored.
type PipelineEventMsg struct {
	Handle *subscription.Handle
	Event  model.PipelineEvent
}

type SubscriptionStateMsg struct {
	Handle *subscription.Handle
	State  subscription.State
}

type LogsLoadedMsg struct {
	PipelineID string
	Logs       *model.StageLog
	FromCache  bool
	Err        error
}

type PipelineLoadedMsg struct {
	Pipeline *model.Pipeline
	Err      error
}

type SearchDoneMsg struct {
	Results *model.SearchResults
	Err     error
}

// Action result messages
type PipelineRegisteredMsg struct {
	JobID      string
	PipelineID string
	Err        error
}

type TriggerProgressMsg struct {
	Completed int
	Total     int
}

type TriggerDoneMsg struct {
	Result *TriggerSummary
	Err    error
}

type TriggerSummary struct {
	Registered int
	Failed     int
}

type BrowseDoneMsg struct {
	URL string
	Err error
}

// Log cache management messages
type CacheEntriesLoadedMsg struct {
	Entries   []cache.Entry
	TotalSize int64
	Err       error
}

type CacheEntryDeletedMsg struct {
	PipelineID string
	Err        error
}

type StatusMsg struct {
	Text string
}

type ErrorMsg struct {
	Err error
}
