package research

// ResearchTask is one node of the research tree.
type ResearchTask struct {
	// Query is the topic searched at this node. Below the root it is a
	// composite of the parent's research goal and its follow-up directions.
	Query string
	// Breadth is the number of sibling sub-queries generated at this node.
	Breadth int
	// Depth is the remaining recursion budget; 0 is terminal.
	Depth int
	// Learnings accumulated by ancestors, used to steer query generation.
	Learnings []string
	// VisitedURLs accumulated by ancestors. They are carried into the
	// result only; searches are not filtered against them.
	VisitedURLs []string
}

// SubQuery is a generated search query with the goal it serves.
type SubQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// Document is one search hit. Any field may be empty.
type Document struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// Extraction is what the learning extractor returns for one SERP.
type Extraction struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// ResearchResult holds deduplicated learnings and URLs, in first-seen order.
type ResearchResult struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// orderedSet is a string set that remembers insertion order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) slice() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// union merges slices into one deduplicated slice, keeping first-seen order.
func union(parts ...[]string) []string {
	s := newOrderedSet()
	for _, p := range parts {
		s.add(p...)
	}
	return s.slice()
}
