package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/stagelog"
)

// SubProtocol is the websocket subprotocol negotiated with the server.
const SubProtocol = "graphql-ws"

// Message types of the graphql-ws protocol.
const (
	typeConnectionInit  = "connection_init"
	typeConnectionAck   = "connection_ack"
	typeConnectionError = "connection_error"
	typeKeepAlive       = "ka"
	typeStart           = "start"
	typeStop            = "stop"
	typeData            = "data"
	typeError           = "error"
	typeComplete        = "complete"
)

// Selections understood by the server's pipeline subscription.
const (
	SelectPipelines = `pipelineInserted { id number status stageStatus branch registerDate startDate endDate jobId }
	pipelineUpdated { id number status stageStatus branch registerDate startDate endDate jobId }`
	SelectLogs = `pipelineLogs`
)

// Subscription describes what a handle subscribes to. The correlation id is
// generated per connection attempt and is not part of it.
type Subscription struct {
	Credential model.Credential
	ScopeID    string // job id sent in the handshake
	Selection  string
}

type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type initPayload struct {
	Auth  string    `json:"auth"`
	Extra initExtra `json:"extra"`
}

type initExtra struct {
	JobID string `json:"jobId"`
}

type startPayload struct {
	Query string `json:"query"`
}

func encodeInit(sub Subscription) ([]byte, error) {
	payload, err := json.Marshal(initPayload{
		Auth:  string(sub.Credential),
		Extra: initExtra{JobID: sub.ScopeID},
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Type: typeConnectionInit, Payload: payload})
}

func encodeStart(id string, sub Subscription) ([]byte, error) {
	payload, err := json.Marshal(startPayload{
		Query: "subscription { " + strings.TrimSpace(sub.Selection) + " }",
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{ID: id, Type: typeStart, Payload: payload})
}

func encodeStop(id string) ([]byte, error) {
	return json.Marshal(frame{ID: id, Type: typeStop})
}

func decodeFrame(raw []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return frame{}, err
	}
	if f.Type == "" {
		return frame{}, errors.New("frame has no type")
	}
	return f, nil
}

var errNoKnownField = errors.New("data frame carries no known field")

type dataPayload struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// decodeEvents extracts the pipeline events of a data frame payload, in the
// order inserted, updated, log.
func decodeEvents(payload json.RawMessage) ([]model.PipelineEvent, error) {
	var p dataPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode data payload: %w", err)
	}
	if len(p.Errors) > 0 {
		msgs := make([]string, 0, len(p.Errors))
		for _, e := range p.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("server error: %s", strings.Join(msgs, "; "))
	}

	var events []model.PipelineEvent
	for _, field := range []struct {
		name string
		kind model.PipelineEventKind
	}{
		{"pipelineInserted", model.PipelineInserted},
		{"pipelineUpdated", model.PipelineUpdated},
	} {
		raw, ok := p.Data[field.name]
		if !ok || isNull(raw) {
			continue
		}
		var pl model.Pipeline
		if err := json.Unmarshal(raw, &pl); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field.name, err)
		}
		events = append(events, model.PipelineEvent{Kind: field.kind, Pipeline: &pl})
	}

	if raw, ok := p.Data["pipelineLogs"]; ok && !isNull(raw) {
		rec, err := decodeLogField(raw)
		if err != nil {
			return nil, fmt.Errorf("decode pipelineLogs: %w", err)
		}
		events = append(events, model.PipelineEvent{Kind: model.PipelineLogAppended, Log: &rec})
	}

	if len(events) == 0 {
		return nil, errNoKnownField
	}
	return events, nil
}

// decodeLogField accepts the log record either as a JSON-encoded string,
// which is what the server sends, or as an object.
func decodeLogField(raw json.RawMessage) (model.LogRecord, error) {
	var line string
	if err := json.Unmarshal(raw, &line); err != nil {
		line = string(raw)
	}
	return stagelog.ParseRecord(line)
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
