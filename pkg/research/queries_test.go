package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateQueries(t *testing.T) {
	tests := []struct {
		name     string
		response string
		n        int
		want     []SubQuery
	}{
		{
			name:     "caps at n",
			response: `{"queries":[{"query":"a","researchGoal":"ga"},{"query":"b","researchGoal":"gb"},{"query":"c","researchGoal":"gc"}]}`,
			n:        2,
			want:     []SubQuery{{Query: "a", ResearchGoal: "ga"}, {Query: "b", ResearchGoal: "gb"}},
		},
		{
			name:     "drops duplicates and blanks",
			response: `{"queries":[{"query":" a ","researchGoal":"ga"},{"query":"a","researchGoal":"again"},{"query":"","researchGoal":"g"},{"query":"b","researchGoal":""},{"query":"c","researchGoal":"gc"}]}`,
			n:        5,
			want:     []SubQuery{{Query: "a", ResearchGoal: "ga"}, {Query: "c", ResearchGoal: "gc"}},
		},
		{
			name:     "unparseable output",
			response: `{"queries": "oops"`,
			n:        3,
			want:     nil,
		},
		{
			name:     "empty list",
			response: `{"queries":[]}`,
			n:        3,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{responses: []string{tt.response}}
			g := NewQueryGenerator(model, LLMOptions{Logger: discardLogger()})

			got, err := g.GenerateQueries(context.Background(), "topic", nil, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateQueriesModelFailure(t *testing.T) {
	model := &fakeModel{err: errors.New("quota exceeded")}
	g := NewQueryGenerator(model, LLMOptions{Logger: discardLogger()})

	_, err := g.GenerateQueries(context.Background(), "topic", nil, 2)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateQueriesPrompt(t *testing.T) {
	model := &fakeModel{responses: []string{`{"queries":[{"query":"a","researchGoal":"g"}]}`}}
	g := NewQueryGenerator(model, LLMOptions{Logger: discardLogger()})

	_, err := g.GenerateQueries(context.Background(), "solid state batteries", []string{"Toyota plans 2027 launch"}, 3)
	require.NoError(t, err)

	prompt := model.humanPrompt(0)
	assert.Contains(t, prompt, "<prompt>solid state batteries</prompt>")
	assert.Contains(t, prompt, "at most 3 queries")
	assert.Contains(t, prompt, "Toyota plans 2027 launch")
}

func TestGenerateQueriesZero(t *testing.T) {
	model := &fakeModel{}
	g := NewQueryGenerator(model, LLMOptions{Logger: discardLogger()})

	got, err := g.GenerateQueries(context.Background(), "topic", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, model.calls())
}
