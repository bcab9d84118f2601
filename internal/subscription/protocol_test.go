package subscription

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

func TestDecodeEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kinds   []model.PipelineEventKind
	}{
		{
			name:    "inserted",
			payload: `{"data":{"pipelineInserted":{"id":"a","status":"DEFINED"}}}`,
			kinds:   []model.PipelineEventKind{model.PipelineInserted},
		},
		{
			name:    "updated with null siblings",
			payload: `{"data":{"pipelineInserted":null,"pipelineUpdated":{"id":"a"},"pipelineLogs":null}}`,
			kinds:   []model.PipelineEventKind{model.PipelineUpdated},
		},
		{
			name:    "log as string",
			payload: `{"data":{"pipelineLogs":"{\"stage\":\"test\",\"line\":\"ok\"}"}}`,
			kinds:   []model.PipelineEventKind{model.PipelineLogAppended},
		},
		{
			name:    "log as object",
			payload: `{"data":{"pipelineLogs":{"stage":"test","line":"ok"}}}`,
			kinds:   []model.PipelineEventKind{model.PipelineLogAppended},
		},
		{
			name:    "all three",
			payload: `{"data":{"pipelineLogs":"{\"stage\":\"s\",\"line\":\"l\"}","pipelineUpdated":{"id":"b"},"pipelineInserted":{"id":"a"}}}`,
			kinds:   []model.PipelineEventKind{model.PipelineInserted, model.PipelineUpdated, model.PipelineLogAppended},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := decodeEvents(json.RawMessage(tt.payload))
			require.NoError(t, err)
			var kinds []model.PipelineEventKind
			for _, ev := range events {
				kinds = append(kinds, ev.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestDecodeEventsRejects(t *testing.T) {
	_, err := decodeEvents(json.RawMessage(`{"data":{"somethingElse":{}}}`))
	assert.True(t, errors.Is(err, errNoKnownField))

	_, err = decodeEvents(json.RawMessage(`{"data":{"pipelineInserted":{"number":"seven"}}}`))
	assert.Error(t, err)

	_, err = decodeEvents(json.RawMessage(`{"errors":[{"message":"forbidden"}]}`))
	assert.ErrorContains(t, err, "forbidden")

	_, err = decodeEvents(json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestDecodeFrameRequiresType(t *testing.T) {
	_, err := decodeFrame([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	f, err := decodeFrame([]byte(`{"type":"ka"}`))
	require.NoError(t, err)
	assert.Equal(t, "ka", f.Type)
}

func TestEncodeInit(t *testing.T) {
	msg, err := encodeInit(Subscription{Credential: "tok", ScopeID: "job"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_init","payload":{"auth":"tok","extra":{"jobId":"job"}}}`, string(msg))

	msg, err = encodeStop("abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","type":"stop"}`, string(msg))
}
