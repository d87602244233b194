// Package pipeline assembles the research engine and report writer from
// configuration and runs a complete research request.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

type Mode string

const (
	ModeReport Mode = "report"
	ModeAnswer Mode = "answer"
)

// ParseMode accepts "report", "answer" or empty (report).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeReport:
		return ModeReport, nil
	case ModeAnswer:
		return ModeAnswer, nil
	default:
		return "", fmt.Errorf("unknown mode %q: want report or answer", s)
	}
}

type Request struct {
	Query   string
	Breadth int
	Depth   int
	Mode    Mode
}

// Output is the outcome of a request. Report is always set: in answer mode
// it holds the answer, and when synthesis fails it is a degraded report
// listing the visited sources.
type Output struct {
	Result   research.ResearchResult
	Report   string
	Answer   string
	Degraded bool
}

type Options struct {
	Language       string
	MaxAttempts    int
	Concurrency    int
	ExtractTimeout time.Duration
	// ContentTokens caps the combined document content per extraction.
	ContentTokens int
	Trimmer       *splitter.Trimmer
}

// Pipeline is cheap to copy; WithLogger derives a per-request copy.
type Pipeline struct {
	model    llms.Model
	searcher research.Searcher
	opts     Options
	Logger   *slog.Logger
}

func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	model, err := clients.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	searcher, err := tools.NewSearcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create searcher: %w", err)
	}
	return NewWithComponents(model, searcher, Options{
		Language:       cfg.Language,
		MaxAttempts:    cfg.LLMMaxAttempts,
		Concurrency:    cfg.ConcurrencyLimit,
		ExtractTimeout: cfg.ExtractTimeout,
		ContentTokens:  cfg.ContextSize,
	}), nil
}

func NewWithComponents(model llms.Model, searcher research.Searcher, opts Options) *Pipeline {
	if opts.Trimmer == nil {
		opts.Trimmer = splitter.NewTrimmer(nil)
	}
	return &Pipeline{model: model, searcher: searcher, opts: opts, Logger: slog.Default()}
}

// WithLogger returns a copy of p that logs to l.
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	cp := *p
	cp.Logger = l
	return &cp
}

func (p *Pipeline) llmOptions() research.LLMOptions {
	return research.LLMOptions{
		Language:    p.opts.Language,
		MaxAttempts: p.opts.MaxAttempts,
		Logger:      p.Logger,
	}
}

// Engine builds a research engine with its own scheduler.
func (p *Pipeline) Engine() *research.Engine {
	engine := research.NewEngine(
		research.NewQueryGenerator(p.model, p.llmOptions()),
		p.searcher,
		research.NewLearningExtractor(p.model, research.ExtractorOptions{
			LLMOptions:  p.llmOptions(),
			TotalTokens: p.opts.ContentTokens,
			Timeout:     p.opts.ExtractTimeout,
			Trimmer:     p.opts.Trimmer,
		}),
		p.opts.Concurrency,
	)
	engine.Logger = p.Logger
	return engine
}

func (p *Pipeline) Writer() *research.Writer {
	return research.NewWriter(p.model, p.llmOptions(), p.opts.Trimmer, 0)
}

func (p *Pipeline) Feedback() *research.Feedback {
	return research.NewFeedback(p.model, p.llmOptions())
}

// Run researches req.Query and synthesises the report or answer. Only an
// invalid request is an error; a failed synthesis degrades the output.
func (p *Pipeline) Run(ctx context.Context, req Request, onProgress research.ProgressFunc) (Output, error) {
	result, err := p.Engine().Run(ctx, req.Query, req.Breadth, req.Depth, onProgress)
	if err != nil {
		return Output{}, err
	}

	out := Output{Result: result}
	writer := p.Writer()

	switch req.Mode {
	case ModeAnswer:
		answer, err := writer.WriteAnswer(ctx, req.Query, result.Learnings)
		if err != nil {
			p.Logger.Error("Failed to write answer", "error", err)
			out.Report, out.Degraded = research.DegradedReport(req.Query, result.VisitedURLs, err), true
			return out, nil
		}
		out.Answer, out.Report = answer, answer
	default:
		report, err := writer.WriteReport(ctx, req.Query, result.Learnings, result.VisitedURLs)
		if err != nil {
			p.Logger.Error("Failed to write report", "error", err)
			out.Report, out.Degraded = research.DegradedReport(req.Query, result.VisitedURLs, err), true
			return out, nil
		}
		out.Report = report
	}
	return out, nil
}
