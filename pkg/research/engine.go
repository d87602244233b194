package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultMaxLearnings is the number of learnings requested per SERP.
const DefaultMaxLearnings = 3

// Engine runs recursive research: each node expands its query into
// sub-queries, researches them in parallel branches and, while depth
// remains, recurses on each branch's follow-up directions.
type Engine struct {
	Queries   QueryGenerator
	Searcher  Searcher
	Extractor LearningExtractor
	// Scheduler is shared by every node of a run.
	Scheduler    *Scheduler
	MaxLearnings int
	Logger       *slog.Logger
}

// NewEngine returns an engine whose branches share one scheduler of the
// given concurrency.
func NewEngine(queries QueryGenerator, searcher Searcher, extractor LearningExtractor, concurrency int) *Engine {
	return &Engine{
		Queries:      queries,
		Searcher:     searcher,
		Extractor:    extractor,
		Scheduler:    NewScheduler(concurrency),
		MaxLearnings: DefaultMaxLearnings,
		Logger:       slog.Default(),
	}
}

// Run validates the request and researches query. The only errors are
// ErrInvalidTask; research failures shrink the result instead.
func (e *Engine) Run(ctx context.Context, query string, breadth, depth int, onProgress ProgressFunc) (ResearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return ResearchResult{}, fmt.Errorf("%w: query is empty", ErrInvalidTask)
	}
	if breadth < 1 {
		return ResearchResult{}, fmt.Errorf("%w: breadth must be at least 1, got %d", ErrInvalidTask, breadth)
	}
	if depth < 0 {
		return ResearchResult{}, fmt.Errorf("%w: depth must not be negative, got %d", ErrInvalidTask, depth)
	}

	e.logger().Info("Starting research", "query", query, "breadth", breadth, "depth", depth)
	result := e.Research(ctx, ResearchTask{Query: query, Breadth: breadth, Depth: depth}, onProgress)
	e.logger().Info("Research complete", "learnings", len(result.Learnings), "urls", len(result.VisitedURLs))
	return result, nil
}

// Research researches one node and returns the union of its branches'
// results. It never fails: a branch that errors contributes nothing.
func (e *Engine) Research(ctx context.Context, task ResearchTask, onProgress ProgressFunc) ResearchResult {
	progress := newNodeProgress(task, onProgress)

	queries, err := e.generate(ctx, task)
	if err != nil {
		e.logger().Error("Error generating queries", "query", task.Query, "error", err)
		queries = nil
	}
	if len(queries) > task.Breadth {
		queries = queries[:task.Breadth]
	}
	progress.start(queries)

	results := make([]ResearchResult, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.branch(ctx, task, q, progress, onProgress)
		}()
	}
	wg.Wait()

	learnings := newOrderedSet()
	urls := newOrderedSet()
	for _, r := range results {
		learnings.add(r.Learnings...)
		urls.add(r.VisitedURLs...)
	}
	return ResearchResult{Learnings: learnings.slice(), VisitedURLs: urls.slice()}
}

// generate asks for the node's sub-queries under a scheduler slot. A panic
// in the generator is reported as ErrGeneration.
func (e *Engine) generate(ctx context.Context, task ResearchTask) (queries []SubQuery, err error) {
	defer func() {
		if r := recover(); r != nil {
			queries, err = nil, fmt.Errorf("%w: panic: %v", ErrGeneration, r)
		}
	}()
	err = e.Scheduler.Run(ctx, func(ctx context.Context) error {
		var genErr error
		queries, genErr = e.Queries.GenerateQueries(ctx, task.Query, task.Learnings, task.Breadth)
		return genErr
	})
	return queries, err
}

// branch researches one sub-query. Its own search and extraction run under
// a scheduler slot; the slot is released before recursing.
func (e *Engine) branch(ctx context.Context, task ResearchTask, q SubQuery, progress *nodeProgress, onProgress ProgressFunc) (result ResearchResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("Error running query", "query", q.Query, "error", fmt.Sprint(r))
			result = ResearchResult{}
		}
	}()

	childBreadth := nextBreadth(task.Breadth)
	childDepth := task.Depth - 1

	var (
		docs       []Document
		extraction Extraction
	)
	err := e.Scheduler.Run(ctx, func(ctx context.Context) error {
		var err error
		docs, err = e.Searcher.Search(ctx, q.Query)
		if err != nil {
			return err
		}
		extraction, err = e.Extractor.ExtractLearnings(ctx, q.Query, docs, e.maxLearnings(), childBreadth)
		return err
	})
	if err != nil {
		if IsTimeout(err) {
			e.logger().Warn("Timeout error running query", "query", q.Query, "error", err)
		} else {
			e.logger().Error("Error running query", "query", q.Query, "error", err)
		}
		return ResearchResult{}
	}

	learnings := union(task.Learnings, extraction.Learnings)
	urls := union(task.VisitedURLs, documentURLs(docs))

	if childDepth > 0 {
		e.logger().Info("Researching deeper", "breadth", childBreadth, "depth", childDepth)
		progress.completeQuery(q.Query, childDepth, childBreadth)
		return e.Research(ctx, ResearchTask{
			Query:       nextQuery(q, extraction.FollowUpQuestions),
			Breadth:     childBreadth,
			Depth:       childDepth,
			Learnings:   learnings,
			VisitedURLs: urls,
		}, onProgress)
	}

	progress.completeQuery(q.Query, 0, childBreadth)
	return ResearchResult{Learnings: learnings, VisitedURLs: urls}
}

func (e *Engine) maxLearnings() int {
	if e.MaxLearnings > 0 {
		return e.MaxLearnings
	}
	return DefaultMaxLearnings
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// nextBreadth halves breadth, rounding up, never below 1.
func nextBreadth(breadth int) int {
	return max(1, (breadth+1)/2)
}

// nextQuery builds the topic of a child node from its parent's goal and the
// follow-up questions found for it.
func nextQuery(q SubQuery, followUps []string) string {
	var sb strings.Builder
	sb.WriteString("Previous research goal: ")
	sb.WriteString(q.ResearchGoal)
	sb.WriteString("\nFollow-up research directions: ")
	for _, f := range followUps {
		sb.WriteString("\n")
		sb.WriteString(f)
	}
	return strings.TrimSpace(sb.String())
}
