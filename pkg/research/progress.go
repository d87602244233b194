package research

import (
	"sync"
)

// ResearchProgress is the live state of one node of the research tree.
type ResearchProgress struct {
	CurrentDepth     int    `json:"currentDepth"`
	TotalDepth       int    `json:"totalDepth"`
	CurrentBreadth   int    `json:"currentBreadth"`
	TotalBreadth     int    `json:"totalBreadth"`
	CurrentQuery     string `json:"currentQuery,omitempty"`
	TotalQueries     int    `json:"totalQueries"`
	CompletedQueries int    `json:"completedQueries"`
}

// ProgressFunc observes progress snapshots. It is called synchronously from
// branch goroutines, possibly concurrently, and must return promptly; wrap
// slow observers with NonBlocking.
type ProgressFunc func(ResearchProgress)

// nodeProgress is the progress record owned by a single orchestrator node.
// Its concurrent branches update it last-write-wins per field.
type nodeProgress struct {
	mu       sync.Mutex
	state    ResearchProgress
	observer ProgressFunc
}

func newNodeProgress(task ResearchTask, observer ProgressFunc) *nodeProgress {
	return &nodeProgress{
		state: ResearchProgress{
			CurrentDepth:   task.Depth,
			TotalDepth:     task.Depth,
			CurrentBreadth: task.Breadth,
			TotalBreadth:   task.Breadth,
		},
		observer: observer,
	}
}

// update applies a partial change and pushes the resulting snapshot.
func (p *nodeProgress) update(change func(*ResearchProgress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	change(&p.state)
	if p.state.CompletedQueries > p.state.TotalQueries {
		p.state.CompletedQueries = p.state.TotalQueries
	}
	if p.observer != nil {
		p.observer(p.state)
	}
}

func (p *nodeProgress) start(queries []SubQuery) {
	p.update(func(s *ResearchProgress) {
		s.TotalQueries = len(queries)
		if len(queries) > 0 {
			s.CurrentQuery = queries[0].Query
		}
	})
}

// completeQuery records a finished sub-query and the depth/breadth its branch
// continues at.
func (p *nodeProgress) completeQuery(query string, depth, breadth int) {
	p.update(func(s *ResearchProgress) {
		s.CompletedQueries++
		s.CurrentQuery = query
		s.CurrentDepth = depth
		if depth > 0 {
			s.CurrentBreadth = breadth
		}
	})
}

func (p *nodeProgress) snapshot() ResearchProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NonBlocking delivers snapshots to sink from a separate goroutine. When
// sink falls behind, older queued snapshots are dropped rather than stalling
// research; the most recent one is always delivered.
// The returned stop function flushes what is queued and ends delivery;
// snapshots reported after stop are discarded.
func NonBlocking(sink ProgressFunc, buffer int) (ProgressFunc, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ResearchProgress, buffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for p := range ch {
			sink(p)
		}
	}()

	var (
		mu     sync.Mutex
		closed bool
	)

	report := func(p ResearchProgress) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- p:
		default:
			// Full: replace the oldest queued snapshot so the sink
			// always ends on the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}

	stop := func() {
		mu.Lock()
		if !closed {
			closed = true
			close(ch)
		}
		mu.Unlock()
		<-done
	}

	return report, stop
}
