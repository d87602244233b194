package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

type Job struct {
	ID          uuid.UUID                  `json:"id"`
	Query       string                     `json:"query"`
	Breadth     int                        `json:"breadth"`
	Depth       int                        `json:"depth"`
	Mode        string                     `json:"mode"`
	Status      JobStatus                  `json:"status"`
	Progress    *research.ResearchProgress `json:"progress,omitempty"`
	Learnings   []string                   `json:"learnings,omitempty"`
	VisitedURLs []string                   `json:"visited_urls,omitempty"`
	Report      *string                    `json:"report,omitempty"`
	Error       *string                    `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Store persists jobs and their logs.
type Store interface {
	CreateJob(ctx context.Context, query string, breadth, depth int, mode string) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
	InsertLog(ctx context.Context, id uuid.UUID, entry LogEntry) error
	SetStatus(ctx context.Context, id uuid.UUID, status JobStatus) error
	SaveProgress(ctx context.Context, id uuid.UUID, progress research.ResearchProgress) error
	CompleteJob(ctx context.Context, id uuid.UUID, result research.ResearchResult, report string) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
}

// PostgresStore keeps jobs in the research_jobs and research_logs tables.
type PostgresStore struct {
	DB *database.PostgresDB
}

func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{DB: db}
}

const jobColumns = `id, query, breadth, depth, mode, status, progress, learnings, visited_urls, report, error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job                             Job
		progress, learnings, visitedURL []byte
	)
	err := row.Scan(&job.ID, &job.Query, &job.Breadth, &job.Depth, &job.Mode, &job.Status,
		&progress, &learnings, &visitedURL, &job.Report, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(progress) > 0 {
		job.Progress = &research.ResearchProgress{}
		if err := json.Unmarshal(progress, job.Progress); err != nil {
			return nil, fmt.Errorf("failed to decode progress: %w", err)
		}
	}
	if len(learnings) > 0 {
		if err := json.Unmarshal(learnings, &job.Learnings); err != nil {
			return nil, fmt.Errorf("failed to decode learnings: %w", err)
		}
	}
	if len(visitedURL) > 0 {
		if err := json.Unmarshal(visitedURL, &job.VisitedURLs); err != nil {
			return nil, fmt.Errorf("failed to decode visited urls: %w", err)
		}
	}
	return &job, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, query string, breadth, depth int, mode string) (*Job, error) {
	row := s.DB.Pool.QueryRow(ctx, `
		INSERT INTO research_jobs (id, query, breadth, depth, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+jobColumns,
		uuid.New(), query, breadth, depth, mode, StatusPending)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(s.DB.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) InsertLog(ctx context.Context, id uuid.UUID, entry LogEntry) error {
	_, err := s.DB.Pool.Exec(ctx, `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, id, entry.Timestamp, entry.Level, entry.Message, []byte(entry.Metadata))
	return err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status JobStatus) error {
	_, err := s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	return err
}

func (s *PostgresStore) SaveProgress(ctx context.Context, id uuid.UUID, progress research.ResearchProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	_, err = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET progress = $2, updated_at = NOW() WHERE id = $1", id, data)
	return err
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, result research.ResearchResult, report string) error {
	learnings, err := json.Marshal(result.Learnings)
	if err != nil {
		return err
	}
	urls, err := json.Marshal(result.VisitedURLs)
	if err != nil {
		return err
	}
	_, err = s.DB.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = $2, learnings = $3, visited_urls = $4, report = $5, updated_at = NOW()
		WHERE id = $1
	`, id, StatusCompleted, learnings, urls, report)
	return err
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.DB.Pool.Exec(ctx,
		"UPDATE research_jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1",
		id, StatusFailed, reason)
	return err
}
