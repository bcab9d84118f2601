package model

import "fmt"

// Credential is the bearer token presented to the query API and in the
// subscription handshake.
type Credential string

func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "<redacted>"
}

type PipelineEventKind int

const (
	PipelineInserted PipelineEventKind = iota
	PipelineUpdated
	PipelineLogAppended
)

func (k PipelineEventKind) String() string {
	switch k {
	case PipelineInserted:
		return "inserted"
	case PipelineUpdated:
		return "updated"
	case PipelineLogAppended:
		return "log"
	}
	return fmt.Sprintf("PipelineEventKind(%d)", int(k))
}

// PipelineEvent is a decoded subscription push. Pipeline is set for
// inserted and updated events, Log for appended log lines.
type PipelineEvent struct {
	Kind     PipelineEventKind `json:"kind"`
	Pipeline *Pipeline         `json:"pipeline,omitempty"`
	Log      *LogRecord        `json:"log,omitempty"`
}
