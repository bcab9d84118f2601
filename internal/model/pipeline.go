package model

import (
	"strings"
	"time"
)

type PipelineStatus string

const (
	PipelineDefined    PipelineStatus = "DEFINED"
	PipelineAssigned   PipelineStatus = "ASSIGNED"
	PipelineInProgress PipelineStatus = "IN_PROGRESS"
	PipelineSuccess    PipelineStatus = "SUCCESS"
	PipelineFailure    PipelineStatus = "FAILURE"
	PipelineUnstable   PipelineStatus = "UNSTABLE"
)

// ParsePipelineStatus accepts the GraphQL enum form as well as the
// CamelCase form used in agent payloads ("InProgress").
func ParsePipelineStatus(s string) PipelineStatus {
	normalized := strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch normalized {
	case "DEFINED":
		return PipelineDefined
	case "ASSIGNED":
		return PipelineAssigned
	case "INPROGRESS":
		return PipelineInProgress
	case "SUCCESS":
		return PipelineSuccess
	case "FAILURE":
		return PipelineFailure
	case "UNSTABLE":
		return PipelineUnstable
	}
	return PipelineStatus(s)
}

func (s *PipelineStatus) UnmarshalText(b []byte) error {
	*s = ParsePipelineStatus(string(b))
	return nil
}

// Finished reports whether no further updates are expected for a pipeline
// in this status.
func (s PipelineStatus) Finished() bool {
	switch s {
	case PipelineSuccess, PipelineFailure, PipelineUnstable:
		return true
	}
	return false
}

func (s PipelineStatus) Running() bool {
	return s == PipelineAssigned || s == PipelineInProgress
}

type Pipeline struct {
	ID           string            `json:"id"`
	Number       int               `json:"number"`
	Status       PipelineStatus    `json:"status"`
	StageStatus  map[string]string `json:"stageStatus,omitempty"`
	Branch       string            `json:"branch"`
	RegisterDate Timestamp         `json:"registerDate"`
	StartDate    Timestamp         `json:"startDate,omitempty"`
	EndDate      Timestamp         `json:"endDate,omitempty"`
	JobID        string            `json:"jobId"`
}

func (p Pipeline) Duration() time.Duration {
	if p.StartDate.IsZero() {
		return 0
	}
	if p.EndDate.IsZero() {
		return time.Since(p.StartDate.Time)
	}
	return p.EndDate.Sub(p.StartDate.Time)
}

// LastPipeline is the most recently registered pipeline across all jobs of
// a project, tagged with the name of the job it belongs to.
type LastPipeline struct {
	ID           string         `json:"id"`
	Number       int            `json:"number"`
	Status       PipelineStatus `json:"status"`
	RegisterDate Timestamp      `json:"registerDate"`
	JobName      string         `json:"jobName"`
}
