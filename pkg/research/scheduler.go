package research

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of branches allowed to run at once.
const DefaultConcurrency = 2

// Scheduler caps the number of branch tasks running at once across a whole
// research tree. A slot is held only while a branch does its own searching
// and extraction; it is released before the branch recurses, so children are
// fresh admissions and a waiting parent never holds capacity its children
// need.
type Scheduler struct {
	sem   *semaphore.Weighted
	limit int
}

// NewScheduler returns a scheduler with limit slots, DefaultConcurrency if
// limit is not positive.
func NewScheduler(limit int) *Scheduler {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	return &Scheduler{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Limit returns the scheduler capacity.
func (s *Scheduler) Limit() int {
	return s.limit
}

// Run waits for a free slot, runs fn and releases the slot. It returns
// ctx.Err() without running fn if ctx ends while waiting.
func (s *Scheduler) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn(ctx)
}
