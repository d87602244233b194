package database

import (
	"context"
	"fmt"
)

// InitSchema creates the job, log, chat and learning tables. Table names
// other than learningsTable are fixed; learningsTable must already be
// validated by the caller.
func (db *PostgresDB) InitSchema(ctx context.Context, learningsTable string, dimension int) error {
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	statements := []struct {
		name  string
		query string
	}{
		{"research_jobs", `
			CREATE TABLE IF NOT EXISTS research_jobs (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				query TEXT NOT NULL,
				breadth INT NOT NULL,
				depth INT NOT NULL,
				mode TEXT NOT NULL DEFAULT 'report',
				status TEXT NOT NULL DEFAULT 'pending',
				progress JSONB,
				learnings JSONB,
				visited_urls JSONB,
				report TEXT,
				error TEXT,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"research_logs", `
			CREATE TABLE IF NOT EXISTS research_logs (
				id SERIAL PRIMARY KEY,
				job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
				timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				metadata JSONB
			)`},
		{"index on research_logs", "CREATE INDEX IF NOT EXISTS idx_research_logs_job_id ON research_logs(job_id)"},
		{"index on research_jobs", "CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC)"},
		{"conversations", `
			CREATE TABLE IF NOT EXISTS conversations (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				job_id UUID REFERENCES research_jobs(id) ON DELETE SET NULL,
				title TEXT NOT NULL DEFAULT 'New Conversation',
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"index on messages", "CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)"},
		{"index on conversations", "CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)"},
	}

	for _, st := range statements {
		if _, err := db.Pool.Exec(ctx, st.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.name, err)
		}
	}

	return db.CreateLearningsTable(ctx, learningsTable, dimension)
}
