package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Learning is one indexed learning of a research job.
type Learning struct {
	ID      string    `json:"id"`
	JobID   uuid.UUID `json:"job_id"`
	Query   string    `json:"query"`
	Content string    `json:"content"`
}

// LearningMatch is a similarity search hit.
type LearningMatch struct {
	Learning
	Score float64 `json:"score"`
}

// LearningStore indexes research learnings in a pgvector table.
type LearningStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// isValidTableName reports whether name is safe to interpolate as a table
// name: a lowercase letter or underscore, then at most 62 word characters.
func isValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// ValidateTableName returns an error if name cannot be used as a table.
func ValidateTableName(name string) error {
	if !isValidTableName(name) {
		return fmt.Errorf("invalid table name %q: must contain only alphanumeric characters and underscores, start with a lowercase letter or underscore, and be 1-63 characters long", name)
	}
	return nil
}

func NewLearningStore(pool *pgxpool.Pool, tableName string) (*LearningStore, error) {
	if err := ValidateTableName(tableName); err != nil {
		return nil, err
	}
	return &LearningStore{pool: pool, tableName: tableName}, nil
}

func (s *LearningStore) table() string {
	return pgx.Identifier{s.tableName}.Sanitize()
}

// AddLearnings stores learnings with their embeddings. vectors must be
// index-aligned with learnings. Learnings already stored for the job are
// skipped.
func (s *LearningStore) AddLearnings(ctx context.Context, jobID uuid.UUID, query string, learnings []string, vectors [][]float32) error {
	if len(learnings) != len(vectors) {
		return fmt.Errorf("got %d learnings but %d vectors", len(learnings), len(vectors))
	}
	if len(learnings) == 0 {
		return nil
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (job_id, query, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, content) DO NOTHING
	`, s.table())

	batch := &pgx.Batch{}
	for i, l := range learnings {
		batch.Queue(insert, jobID, query, l, pgvector.NewVector(vectors[i]))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range learnings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert learning: %w", err)
		}
	}
	return nil
}

// similarityQuery orders by cosine distance, optionally within one job.
func similarityQuery(table string, byJob bool) string {
	where := ""
	limit := "$2"
	if byJob {
		where = "WHERE job_id = $2"
		limit = "$3"
	}
	return fmt.Sprintf(`
		SELECT id, job_id, query, content, 1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT %s
	`, table, where, limit)
}

// SimilaritySearch returns the topK learnings closest to queryEmbedding. A
// nil jobID searches across all jobs.
func (s *LearningStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, jobID *uuid.UUID) ([]LearningMatch, error) {
	embedding := pgvector.NewVector(queryEmbedding)
	args := []any{embedding, topK}
	if jobID != nil {
		args = []any{embedding, *jobID, topK}
	}

	rows, err := s.pool.Query(ctx, similarityQuery(s.table(), jobID != nil), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []LearningMatch
	for rows.Next() {
		var m LearningMatch
		if err := rows.Scan(&m.ID, &m.JobID, &m.Query, &m.Content, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// LearningsByJob returns every learning indexed for a job in insertion order.
func (s *LearningStore) LearningsByJob(ctx context.Context, jobID uuid.UUID) ([]Learning, error) {
	query := fmt.Sprintf(`
		SELECT id, job_id, query, content
		FROM %s
		WHERE job_id = $1
		ORDER BY created_at ASC
	`, s.table())

	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var learnings []Learning
	for rows.Next() {
		var l Learning
		if err := rows.Scan(&l.ID, &l.JobID, &l.Query, &l.Content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		learnings = append(learnings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return learnings, nil
}
