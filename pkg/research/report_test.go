package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

func testWriter(model *fakeModel) *Writer {
	return NewWriter(model, LLMOptions{Logger: discardLogger()}, splitter.NewTrimmer(splitter.Approximate{}), 0)
}

func TestWriteReport(t *testing.T) {
	model := &fakeModel{responses: []string{`{"reportMarkdown":"# Report\n\nBody"}`}}
	w := testWriter(model)

	report, err := w.WriteReport(context.Background(), "T", []string{"L1", "L2"}, []string{"https://a", "https://b"})
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nBody\n\n## Sources\n\n- https://a\n- https://b", report)

	prompt := model.humanPrompt(0)
	assert.Contains(t, prompt, "<learning>\nL1\n</learning>")
	assert.Contains(t, prompt, "<prompt>T</prompt>")
}

func TestWriteReportEmptyOutput(t *testing.T) {
	w := testWriter(&fakeModel{responses: []string{`{"reportMarkdown":"  "}`}})
	_, err := w.WriteReport(context.Background(), "T", nil, nil)
	assert.Error(t, err)
}

func TestWriteAnswer(t *testing.T) {
	w := testWriter(&fakeModel{responses: []string{"```json\n{\"exactAnswer\":\" 42 \"}\n```"}})
	answer, err := w.WriteAnswer(context.Background(), "What is the answer?", []string{"It is 42"})
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
}

func TestWriteReportTrimsLearnings(t *testing.T) {
	model := &fakeModel{responses: []string{`{"reportMarkdown":"r"}`}}
	w := NewWriter(model, LLMOptions{Logger: discardLogger()}, splitter.NewTrimmer(splitter.Approximate{}), 200)

	learnings := make([]string, 100)
	for i := range learnings {
		learnings[i] = strings.Repeat("fact ", 20)
	}
	_, err := w.WriteReport(context.Background(), "T", learnings, nil)
	require.NoError(t, err)
	assert.Less(t, strings.Count(model.humanPrompt(0), "<learning>"), 100)
}

func TestDegradedReport(t *testing.T) {
	got := DegradedReport("T", []string{"https://a"}, errors.New("quota"))
	assert.Contains(t, got, "# Research: T")
	assert.Contains(t, got, "quota")
	assert.True(t, strings.HasSuffix(got, "## Sources\n\n- https://a"))
}
