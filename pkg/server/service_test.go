package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/pipeline"
	"github.com/mikeboe/deep-research/pkg/research"
)

func intPtr(i int) *int { return &i }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateJobRequest
		want    pipeline.Request
		wantErr bool
	}{
		{
			name: "defaults",
			req:  CreateJobRequest{Query: " EV market "},
			want: pipeline.Request{Query: "EV market", Breadth: 4, Depth: 2, Mode: pipeline.ModeReport},
		},
		{
			name: "explicit zero depth",
			req:  CreateJobRequest{Query: "q", Breadth: 2, Depth: intPtr(0), Mode: "answer"},
			want: pipeline.Request{Query: "q", Breadth: 2, Depth: 0, Mode: pipeline.ModeAnswer},
		},
		{name: "empty query", req: CreateJobRequest{Query: "  "}, wantErr: true},
		{name: "negative breadth", req: CreateJobRequest{Query: "q", Breadth: -1}, wantErr: true},
		{name: "negative depth", req: CreateJobRequest{Query: "q", Depth: intPtr(-1)}, wantErr: true},
		{name: "unknown mode", req: CreateJobRequest{Query: "q", Mode: "poem"}, wantErr: true},
	}

	s := newTestService(newMemoryStore(), succeedingRun, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.normalize(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateJobCompletes(t *testing.T) {
	store := newMemoryStore()
	indexer := &recordingIndexer{}
	s := newTestService(store, succeedingRun, indexer)

	job, err := s.CreateJob(context.Background(), CreateJobRequest{Query: "EV market", Breadth: 2, Depth: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	s.Wait()

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []string{"L1"}, got.Learnings)
	assert.Equal(t, []string{"https://a"}, got.VisitedURLs)
	require.NotNil(t, got.Report)
	assert.Equal(t, "# Report", *got.Report)
	require.NotNil(t, got.Progress)
	assert.LessOrEqual(t, got.Progress.CompletedQueries, got.Progress.TotalQueries)

	assert.Equal(t, job.ID, indexer.jobID)
	assert.Equal(t, "EV market", indexer.query)
	assert.Equal(t, []string{"L1"}, indexer.learnings)

	logs, err := s.GetJobLogs(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Research job completed", logs[len(logs)-1].Message)
}

func TestCreateJobFails(t *testing.T) {
	store := newMemoryStore()
	indexer := &recordingIndexer{}
	s := newTestService(store, failingRun, indexer)

	job, err := s.CreateJob(context.Background(), CreateJobRequest{Query: "q"})
	require.NoError(t, err)
	s.Wait()

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "engine exploded")
	assert.Nil(t, indexer.learnings)
}

func TestCreateJobStoresDegradedReport(t *testing.T) {
	store := newMemoryStore()
	s := newTestService(store, func(context.Context, pipeline.Request, research.ProgressFunc) (pipeline.Output, error) {
		return pipeline.Output{
			Result:   research.ResearchResult{VisitedURLs: []string{"https://a"}},
			Report:   research.DegradedReport("q", []string{"https://a"}, assert.AnError),
			Degraded: true,
		}, nil
	}, nil)

	job, err := s.CreateJob(context.Background(), CreateJobRequest{Query: "q"})
	require.NoError(t, err)
	s.Wait()

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Contains(t, *got.Report, "https://a")
}

func TestCreateJobRejectsInvalid(t *testing.T) {
	store := newMemoryStore()
	s := newTestService(store, succeedingRun, nil)

	_, err := s.CreateJob(context.Background(), CreateJobRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	jobs, _ := store.ListJobs(context.Background())
	assert.Empty(t, jobs)
}
