package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// LearningIndex is the read side of the learning store.
type LearningIndex interface {
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, jobID *uuid.UUID) ([]vectorstore.LearningMatch, error)
	LearningsByJob(ctx context.Context, jobID uuid.UUID) ([]vectorstore.Learning, error)
}

// LearningToolset exposes the learning index to the chat agent and the MCP
// endpoint.
type LearningToolset struct {
	Index    LearningIndex
	Embedder embeddings.Embedder
}

func NewLearningToolset(index LearningIndex, embedder embeddings.Embedder) *LearningToolset {
	return &LearningToolset{Index: index, Embedder: embedder}
}

func (t *LearningToolset) Name() string {
	return "learning_tools"
}

func (t *LearningToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchLearningsArgs, SearchLearningsResp](
		functiontool.Config{
			Name:        "search_learnings",
			Description: "Semantic search over learnings collected by past research jobs.",
		},
		t.searchLearningsTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	byJobTool, err := functiontool.New[FindJobArgs, FindJobResp](
		functiontool.Config{
			Name:        "find_learnings_by_job",
			Description: "List every learning collected by one research job.",
		},
		t.findLearningsByJobTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_learnings_by_job tool: %w", err)
	}

	return []tool.Tool{searchTool, byJobTool}, nil
}

type SearchLearningsArgs struct {
	Query string `json:"query" description:"The search query"`
	TopK  int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
	JobID string `json:"jobId,omitempty" description:"Optional research job ID to search within"`
}

type SearchLearningsResp struct {
	Results string `json:"results"`
}

func (t *LearningToolset) searchLearningsTool(ctx tool.Context, args SearchLearningsArgs) (SearchLearningsResp, error) {
	return t.SearchLearnings(ctx, args)
}

func (t *LearningToolset) SearchLearnings(ctx context.Context, args SearchLearningsArgs) (SearchLearningsResp, error) {
	if strings.TrimSpace(args.Query) == "" {
		return SearchLearningsResp{}, fmt.Errorf("query is required")
	}
	if args.TopK <= 0 {
		args.TopK = 5
	}
	jobID, err := optionalJobID(args.JobID)
	if err != nil {
		return SearchLearningsResp{}, err
	}

	slog.Info("Search learnings", "query", args.Query, "topK", args.TopK, "job_id", args.JobID)

	queryEmbedding, err := t.Embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchLearningsResp{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	matches, err := t.Index.SimilaritySearch(ctx, queryEmbedding, args.TopK, jobID)
	if err != nil {
		return SearchLearningsResp{}, fmt.Errorf("failed to search: %w", err)
	}

	formatted := make([]string, 0, len(matches))
	for _, m := range matches {
		formatted = append(formatted, fmt.Sprintf("[Research]: %s\n[Learning]: %s\n[Score]: %.3f", m.Query, m.Content, m.Score))
	}
	return SearchLearningsResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type FindJobArgs struct {
	JobID string `json:"jobId" description:"The research job ID"`
}

type FindJobResp struct {
	Content string `json:"content"`
}

func (t *LearningToolset) findLearningsByJobTool(ctx tool.Context, args FindJobArgs) (FindJobResp, error) {
	return t.FindLearningsByJob(ctx, args)
}

func (t *LearningToolset) FindLearningsByJob(ctx context.Context, args FindJobArgs) (FindJobResp, error) {
	jobID, err := uuid.Parse(strings.TrimSpace(args.JobID))
	if err != nil {
		return FindJobResp{}, fmt.Errorf("invalid job id: %w", err)
	}

	learnings, err := t.Index.LearningsByJob(ctx, jobID)
	if err != nil {
		return FindJobResp{}, fmt.Errorf("failed to find learnings: %w", err)
	}

	lines := make([]string, 0, len(learnings))
	for _, l := range learnings {
		lines = append(lines, "- "+l.Content)
	}
	return FindJobResp{Content: strings.Join(lines, "\n")}, nil
}

func optionalJobID(s string) (*uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid job id: %w", err)
	}
	return &id, nil
}
