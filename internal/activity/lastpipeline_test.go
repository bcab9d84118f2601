package activity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

func at(day int) model.Timestamp {
	return model.Timestamp{Time: time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)}
}

func TestDeriveLastPipelinesPicksNewest(t *testing.T) {
	projects := []model.Project{{
		ID: "p1",
		Jobs: []model.Job{
			{Name: "build", Pipelines: []model.Pipeline{{ID: "a", Number: 1, RegisterDate: at(1)}}},
			{Name: "deploy", Pipelines: []model.Pipeline{
				{ID: "b", Number: 4, Status: model.PipelineSuccess, RegisterDate: at(3)},
				{ID: "c", Number: 3, RegisterDate: at(2)},
			}},
		},
	}}

	got := DeriveLastPipelines(projects)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].LastPipeline)
	assert.Equal(t, model.LastPipeline{
		ID:           "b",
		Number:       4,
		Status:       model.PipelineSuccess,
		RegisterDate: at(3),
		JobName:      "deploy",
	}, *got[0].LastPipeline)
	assert.Nil(t, projects[0].LastPipeline, "input must not be modified")
}

func TestDeriveLastPipelinesTieKeepsListingOrder(t *testing.T) {
	projects := []model.Project{{
		Jobs: []model.Job{
			{Name: "first", Pipelines: []model.Pipeline{{ID: "x", RegisterDate: at(5)}}},
			{Name: "second", Pipelines: []model.Pipeline{{ID: "y", RegisterDate: at(5)}}},
		},
	}}
	got := DeriveLastPipelines(projects)
	assert.Equal(t, "x", got[0].LastPipeline.ID)
	assert.Equal(t, "first", got[0].LastPipeline.JobName)
}

func TestDeriveLastPipelinesEmpty(t *testing.T) {
	projects := []model.Project{
		{ID: "none"},
		{ID: "jobs-only", Jobs: []model.Job{{Name: "idle"}}},
	}
	got := DeriveLastPipelines(projects)
	assert.Nil(t, got[0].LastPipeline)
	assert.Nil(t, got[1].LastPipeline)
}

func TestEnrich(t *testing.T) {
	projects := []model.Project{{ID: "p1"}, {ID: "p2"}}
	var calls atomic.Int32
	load := func(_ context.Context, id string) ([]model.Job, error) {
		calls.Add(1)
		return []model.Job{{Name: "job-" + id, Pipelines: []model.Pipeline{{ID: id + "-run", RegisterDate: at(1)}}}}, nil
	}

	got, err := Enrich(context.Background(), projects, load, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "p1-run", got[0].LastPipeline.ID)
	assert.Equal(t, "job-p2", got[1].LastPipeline.JobName)
	assert.Nil(t, projects[0].Jobs)
}

func TestEnrichPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	load := func(_ context.Context, id string) ([]model.Job, error) {
		if id == "bad" {
			return nil, boom
		}
		return nil, nil
	}
	_, err := Enrich(context.Background(), []model.Project{{ID: "ok"}, {ID: "bad"}}, load, 0)
	assert.ErrorIs(t, err, boom)
}
