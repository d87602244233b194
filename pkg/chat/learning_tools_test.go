package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

func (f fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, f.err
}

type fakeIndex struct {
	matches   []vectorstore.LearningMatch
	learnings []vectorstore.Learning
	gotJob    *uuid.UUID
	gotTopK   int
}

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ []float32, topK int, jobID *uuid.UUID) ([]vectorstore.LearningMatch, error) {
	f.gotTopK, f.gotJob = topK, jobID
	return f.matches, nil
}

func (f *fakeIndex) LearningsByJob(_ context.Context, jobID uuid.UUID) ([]vectorstore.Learning, error) {
	f.gotJob = &jobID
	return f.learnings, nil
}

func TestSearchLearnings(t *testing.T) {
	jobID := uuid.New()
	index := &fakeIndex{matches: []vectorstore.LearningMatch{
		{Learning: vectorstore.Learning{Query: "EV market", Content: "BYD sold 3M EVs in 2023"}, Score: 0.91},
	}}
	tools := NewLearningToolset(index, fakeEmbedder{})

	resp, err := tools.SearchLearnings(context.Background(), SearchLearningsArgs{Query: "BYD", JobID: jobID.String()})
	require.NoError(t, err)
	assert.Equal(t, "[Research]: EV market\n[Learning]: BYD sold 3M EVs in 2023\n[Score]: 0.910", resp.Results)
	assert.Equal(t, 5, index.gotTopK)
	require.NotNil(t, index.gotJob)
	assert.Equal(t, jobID, *index.gotJob)
}

func TestSearchLearningsErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     SearchLearningsArgs
		embedErr error
	}{
		{"empty query", SearchLearningsArgs{Query: " "}, nil},
		{"bad job id", SearchLearningsArgs{Query: "q", JobID: "nope"}, nil},
		{"embedding failure", SearchLearningsArgs{Query: "q"}, errors.New("quota")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := NewLearningToolset(&fakeIndex{}, fakeEmbedder{err: tt.embedErr})
			_, err := tools.SearchLearnings(context.Background(), tt.args)
			assert.Error(t, err)
		})
	}
}

func TestFindLearningsByJob(t *testing.T) {
	index := &fakeIndex{learnings: []vectorstore.Learning{{Content: "first"}, {Content: "second"}}}
	tools := NewLearningToolset(index, fakeEmbedder{})

	resp, err := tools.FindLearningsByJob(context.Background(), FindJobArgs{JobID: uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, "- first\n- second", resp.Content)

	_, err = tools.FindLearningsByJob(context.Background(), FindJobArgs{JobID: "x"})
	assert.Error(t, err)
}

func TestWithJobContext(t *testing.T) {
	assert.Equal(t, "hi", withJobContext(nil, "hi"))

	id := uuid.MustParse("7b0c7c1e-6f0e-4c8e-9d8a-2f1f0f6a5b11")
	assert.Equal(t, "[Research job ID: 7b0c7c1e-6f0e-4c8e-9d8a-2f1f0f6a5b11]\nhi", withJobContext(&id, "hi"))
}
