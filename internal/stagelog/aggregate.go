// Package stagelog turns the raw JSON lines an agent emits into logs grouped
// by pipeline stage.
package stagelog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

// Stage names the agent uses for the hooks around user-defined stages.
const (
	agentBefore = "rusty-before"
	agentAfter  = "rusty-after"
)

var ErrMissingStage = errors.New("record has no stage")

// RecordError reports the first line that could not be decoded.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("log record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// NormalizeStage maps agent hook stages to their display names.
func NormalizeStage(stage string) string {
	switch stage {
	case agentBefore:
		return "before"
	case agentAfter:
		return "after"
	}
	return stage
}

type rawRecord struct {
	Stage *string `json:"stage"`
	Line  string  `json:"line"`
}

// ParseRecord decodes a single log line. The stage is normalized.
func ParseRecord(line string) (model.LogRecord, error) {
	var raw rawRecord
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return model.LogRecord{}, err
	}
	if raw.Stage == nil {
		return model.LogRecord{}, ErrMissingStage
	}
	return model.LogRecord{Stage: NormalizeStage(*raw.Stage), Line: raw.Line}, nil
}

// Aggregate groups lines by stage in first-seen order, keeping the relative
// order of lines within a stage. A single undecodable line fails the whole
// call; no partial result is returned.
func Aggregate(lines []string) (*model.StageLog, error) {
	out := model.NewStageLog()
	for i, line := range lines {
		rec, err := ParseRecord(line)
		if err != nil {
			return nil, &RecordError{Index: i, Err: err}
		}
		out.Append(rec)
	}
	return out, nil
}
