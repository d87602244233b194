package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

// DefaultReportTokens caps the learnings block sent for synthesis.
const DefaultReportTokens = 150_000

// Writer synthesises the final report or answer from learnings.
type Writer struct {
	client    llmClient
	trimmer   *splitter.Trimmer
	maxTokens int
}

func NewWriter(llm llms.Model, opts LLMOptions, trimmer *splitter.Trimmer, maxTokens int) *Writer {
	if trimmer == nil {
		trimmer = splitter.NewTrimmer(nil)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultReportTokens
	}
	return &Writer{client: newLLMClient(llm, opts), trimmer: trimmer, maxTokens: maxTokens}
}

const reportSchema = `{
  "type": "object",
  "properties": {
    "reportMarkdown": {"type": "string", "description": "Final report on the topic in Markdown"}
  },
  "required": ["reportMarkdown"]
}`

const answerSchema = `{
  "type": "object",
  "properties": {
    "exactAnswer": {"type": "string", "description": "The final answer, short and concise, with no other text"}
  },
  "required": ["exactAnswer"]
}`

// WriteReport returns a detailed Markdown report followed by the list of
// visited URLs.
func (w *Writer) WriteReport(ctx context.Context, query string, learnings, visitedURLs []string) (string, error) {
	w.client.opts.Logger.Info("Compiling final report", "learnings", len(learnings))

	prompt := fmt.Sprintf(`Given the following prompt from the user, write a final report on the topic using the learnings from research. Make it as detailed as possible, aim for 3 or more pages, and include ALL the learnings from research:

<prompt>%s</prompt>

Here are all the learnings from previous research:

<learnings>
%s
</learnings>`, query, w.learningsBlock(learnings))

	type reportResponse struct {
		ReportMarkdown string `json:"reportMarkdown"`
	}
	resp, err := generateObject(ctx, w.client, prompt, reportSchema, func(r *reportResponse) error {
		if strings.TrimSpace(r.ReportMarkdown) == "" {
			return fmt.Errorf("%w: empty report", errInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	report := resp.ReportMarkdown + "\n\n" + sourcesSection(visitedURLs)
	w.client.opts.Logger.Info("Final report generated", "length", len(report))
	return report, nil
}

// WriteAnswer returns a short answer that follows any format the query asks
// for.
func (w *Writer) WriteAnswer(ctx context.Context, query string, learnings []string) (string, error) {
	prompt := fmt.Sprintf(`Given the following prompt from the user, write a final answer on the topic using the learnings from research. Follow the format specified in the prompt. Do not yap or babble or include any other text than the answer besides the format specified in the prompt. Keep the answer as concise as possible - usually it should be just a few words or maximum a sentence.

<prompt>%s</prompt>

Here are all the learnings from research on the topic that you can use to help answer the prompt:

<learnings>
%s
</learnings>`, query, w.learningsBlock(learnings))

	type answerResponse struct {
		ExactAnswer string `json:"exactAnswer"`
	}
	resp, err := generateObject(ctx, w.client, prompt, answerSchema, func(r *answerResponse) error {
		if strings.TrimSpace(r.ExactAnswer) == "" {
			return fmt.Errorf("%w: empty answer", errInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to write answer: %w", err)
	}
	return strings.TrimSpace(resp.ExactAnswer), nil
}

func (w *Writer) learningsBlock(learnings []string) string {
	parts := make([]string, len(learnings))
	for i, l := range learnings {
		parts[i] = "<learning>\n" + l + "\n</learning>"
	}
	return w.trimmer.Trim(strings.Join(parts, "\n"), w.maxTokens)
}

func sourcesSection(urls []string) string {
	var sb strings.Builder
	sb.WriteString("## Sources\n\n")
	for _, u := range urls {
		sb.WriteString("- ")
		sb.WriteString(u)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// DegradedReport stands in for a report whose synthesis failed. It keeps the
// visited URLs so the research is not lost.
func DegradedReport(query string, visitedURLs []string, cause error) string {
	return fmt.Sprintf("# Research: %s\n\nThe final report could not be generated (%v).\n\n%s",
		query, cause, sourcesSection(visitedURLs))
}
