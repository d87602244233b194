package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/pipeline"
	"github.com/mikeboe/deep-research/pkg/research"
)

// memoryStore is an in-memory Store.
type memoryStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*Job
	logs     map[uuid.UUID][]LogEntry
	progress map[uuid.UUID][]research.ResearchProgress
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:     make(map[uuid.UUID]*Job),
		logs:     make(map[uuid.UUID][]LogEntry),
		progress: make(map[uuid.UUID][]research.ResearchProgress),
	}
}

func (m *memoryStore) CreateJob(_ context.Context, query string, breadth, depth int, mode string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job := &Job{ID: uuid.New(), Query: query, Breadth: breadth, Depth: depth, Mode: mode, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	m.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (m *memoryStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryStore) ListJobs(context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memoryStore) GetJobLogs(_ context.Context, id uuid.UUID) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.logs[id]...), nil
}

func (m *memoryStore) InsertLog(_ context.Context, id uuid.UUID, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[id] = append(m.logs[id], entry)
	return nil
}

func (m *memoryStore) update(id uuid.UUID, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}

func (m *memoryStore) SetStatus(_ context.Context, id uuid.UUID, status JobStatus) error {
	return m.update(id, func(j *Job) { j.Status = status })
}

func (m *memoryStore) SaveProgress(_ context.Context, id uuid.UUID, p research.ResearchProgress) error {
	m.mu.Lock()
	m.progress[id] = append(m.progress[id], p)
	m.mu.Unlock()
	return m.update(id, func(j *Job) { j.Progress = &p })
}

func (m *memoryStore) CompleteJob(_ context.Context, id uuid.UUID, result research.ResearchResult, report string) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Learnings = result.Learnings
		j.VisitedURLs = result.VisitedURLs
		j.Report = &report
	})
}

func (m *memoryStore) FailJob(_ context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = &reason
	})
}

type runFunc func(ctx context.Context, req pipeline.Request, onProgress research.ProgressFunc) (pipeline.Output, error)

func (f runFunc) Run(ctx context.Context, req pipeline.Request, onProgress research.ProgressFunc) (pipeline.Output, error) {
	return f(ctx, req, onProgress)
}

type recordingIndexer struct {
	mu        sync.Mutex
	jobID     uuid.UUID
	query     string
	learnings []string
}

func (r *recordingIndexer) IndexLearnings(_ context.Context, jobID uuid.UUID, query string, learnings []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobID, r.query, r.learnings = jobID, query, learnings
	return nil
}

func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func newTestService(store Store, run runFunc, indexer Indexer) *Service {
	return &Service{
		Store:          store,
		NewRunner:      func(*slog.Logger) Runner { return run },
		Indexer:        indexer,
		Console:        discardHandler(),
		DefaultBreadth: 4,
		DefaultDepth:   2,
	}
}

func succeedingRun(ctx context.Context, req pipeline.Request, onProgress research.ProgressFunc) (pipeline.Output, error) {
	onProgress(research.ResearchProgress{TotalDepth: req.Depth, TotalBreadth: req.Breadth, TotalQueries: 1})
	onProgress(research.ResearchProgress{TotalDepth: req.Depth, TotalBreadth: req.Breadth, TotalQueries: 1, CompletedQueries: 1})
	return pipeline.Output{
		Result: research.ResearchResult{Learnings: []string{"L1"}, VisitedURLs: []string{"https://a"}},
		Report: "# Report",
	}, nil
}

func failingRun(context.Context, pipeline.Request, research.ProgressFunc) (pipeline.Output, error) {
	return pipeline.Output{}, errors.New("engine exploded")
}
