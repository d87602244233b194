package research

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

type generateFunc func(ctx context.Context, topic string, learnings []string, n int) ([]SubQuery, error)

// fakeQueries records every call it receives.
type fakeQueries struct {
	mu    sync.Mutex
	fn    generateFunc
	calls []generateCall
}

type generateCall struct {
	topic     string
	learnings []string
	n         int
}

func (f *fakeQueries) GenerateQueries(ctx context.Context, topic string, learnings []string, n int) ([]SubQuery, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{topic: topic, learnings: learnings, n: n})
	f.mu.Unlock()
	return f.fn(ctx, topic, learnings, n)
}

func (f *fakeQueries) recorded() []generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generateCall(nil), f.calls...)
}

type fakeSearcher struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, query string) ([]Document, error)
	calls []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	return f.fn(ctx, query)
}

func (f *fakeSearcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type extractFunc func(ctx context.Context, query string, docs []Document, maxLearnings, maxFollowUps int) (Extraction, error)

func (f extractFunc) ExtractLearnings(ctx context.Context, query string, docs []Document, maxLearnings, maxFollowUps int) (Extraction, error) {
	return f(ctx, query, docs, maxLearnings, maxFollowUps)
}

// fakeModel replays canned completions in order and repeats the last one.
type fakeModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   [][]llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, messages)
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := min(len(m.prompts)-1, len(m.responses)-1)
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[idx]}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// humanPrompt returns the text of the last human message sent in call i.
func (m *fakeModel) humanPrompt(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.prompts[i]
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, p := range msgs[j].Parts {
			if t, ok := p.(llms.TextContent); ok {
				return t.Text
			}
		}
	}
	return ""
}

func staticQueries(qs ...SubQuery) generateFunc {
	return func(context.Context, string, []string, int) ([]SubQuery, error) {
		return qs, nil
	}
}

func newTestEngine(q QueryGenerator, s Searcher, x LearningExtractor, concurrency int) *Engine {
	e := NewEngine(q, s, x, concurrency)
	e.Logger = discardLogger()
	return e
}
