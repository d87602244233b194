package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/pipeline"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// ErrInvalidRequest marks a job request rejected before it is stored.
var ErrInvalidRequest = errors.New("invalid request")

// Runner executes one research request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, onProgress research.ProgressFunc) (pipeline.Output, error)
}

// Indexer makes a finished job's learnings searchable.
type Indexer interface {
	IndexLearnings(ctx context.Context, jobID uuid.UUID, query string, learnings []string) error
}

type Service struct {
	Store Store
	// NewRunner returns a runner that logs to logger.
	NewRunner func(logger *slog.Logger) Runner
	// Indexer is optional.
	Indexer Indexer
	// Console receives job logs alongside the database.
	Console slog.Handler

	DefaultBreadth int
	DefaultDepth   int

	wg sync.WaitGroup
}

func NewService(store Store, p *pipeline.Pipeline, indexer Indexer, defaultBreadth, defaultDepth int) *Service {
	return &Service{
		Store: store,
		NewRunner: func(logger *slog.Logger) Runner {
			return p.WithLogger(logger)
		},
		Indexer:        indexer,
		Console:        slog.Default().Handler(),
		DefaultBreadth: defaultBreadth,
		DefaultDepth:   defaultDepth,
	}
}

type CreateJobRequest struct {
	Query   string `json:"query"`
	Breadth int    `json:"breadth"`
	// Depth is a pointer so that an explicit 0 is kept.
	Depth *int   `json:"depth"`
	Mode  string `json:"mode"`
}

// normalize applies defaults and validates the request.
func (s *Service) normalize(req CreateJobRequest) (pipeline.Request, error) {
	out := pipeline.Request{Query: strings.TrimSpace(req.Query), Breadth: req.Breadth, Depth: s.DefaultDepth}
	if out.Query == "" {
		return out, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if out.Breadth == 0 {
		out.Breadth = s.DefaultBreadth
	}
	if out.Breadth < 1 {
		return out, fmt.Errorf("%w: breadth must be at least 1", ErrInvalidRequest)
	}
	if req.Depth != nil {
		out.Depth = *req.Depth
	}
	if out.Depth < 0 {
		return out, fmt.Errorf("%w: depth must not be negative", ErrInvalidRequest)
	}
	mode, err := pipeline.ParseMode(req.Mode)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	out.Mode = mode
	return out, nil
}

// CreateJob stores a job and starts researching it in the background.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	r, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	job, err := s.Store.CreateJob(ctx, r.Query, r.Breadth, r.Depth, string(r.Mode))
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(job.ID, r)
	}()

	return job, nil
}

// Wait blocks until every started job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.Store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	return s.Store.ListJobs(ctx)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	return s.Store.GetJobLogs(ctx, id)
}

func (s *Service) runWorker(jobID uuid.UUID, req pipeline.Request) {
	ctx := context.Background()
	logger := slog.New(NewDBLogHandler(s.Store, jobID, s.Console)).With("job_id", jobID.String())

	if err := s.Store.SetStatus(ctx, jobID, StatusRunning); err != nil {
		logger.Error("Failed to mark job running", "error", err)
	}

	// Progress is persisted off the research goroutines; snapshots that
	// arrive while a write is in flight may be dropped.
	onProgress, stop := research.NonBlocking(func(p research.ResearchProgress) {
		if err := s.Store.SaveProgress(ctx, jobID, p); err != nil {
			logger.Error("Failed to save progress", "error", err)
		}
	}, 16)

	out, err := s.NewRunner(logger).Run(ctx, req, onProgress)
	stop()
	if err != nil {
		s.failJob(ctx, logger, jobID, fmt.Sprintf("Research failed: %v", err))
		return
	}
	if out.Degraded {
		logger.Warn("Report synthesis failed, storing degraded report")
	}

	if err := s.Store.CompleteJob(ctx, jobID, out.Result, out.Report); err != nil {
		logger.Error("Failed to save final report to DB", "error", err)
		return
	}
	logger.Info("Research job completed", "learnings", len(out.Result.Learnings), "urls", len(out.Result.VisitedURLs))

	if s.Indexer != nil && len(out.Result.Learnings) > 0 {
		if err := s.Indexer.IndexLearnings(ctx, jobID, req.Query, out.Result.Learnings); err != nil {
			logger.Error("Failed to index learnings", "error", err)
		}
	}
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	if err := s.Store.FailJob(ctx, jobID, reason); err != nil {
		logger.Error("Failed to mark job failed", "error", err)
	}
}

// LearningIndexer embeds learnings and stores them in the learning index.
type LearningIndexer struct {
	Store    *vectorstore.LearningStore
	Embedder embeddings.Embedder
}

func (ix *LearningIndexer) IndexLearnings(ctx context.Context, jobID uuid.UUID, query string, learnings []string) error {
	vectors, err := ix.Embedder.EmbedTexts(ctx, learnings)
	if err != nil {
		return fmt.Errorf("failed to embed learnings: %w", err)
	}
	return ix.Store.AddLearnings(ctx, jobID, query, learnings, vectors)
}
