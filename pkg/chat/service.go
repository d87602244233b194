package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
)

const (
	appName   = "deep-research"
	agentName = "research_analyst"
	chatUser  = "user"
)

type Service struct {
	config *config.Config
	DB     *database.PostgresDB
	Client *genai.Client
	Agent  agent.Agent
}

// Conversation is a chat thread, optionally about one research job.
type Conversation struct {
	ID        uuid.UUID  `json:"id"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// StreamEvent represents a single event in the chat stream
type StreamEvent struct {
	Type    string      `json:"type"` // "content", "tool_call", "tool_result", "error", "done"
	Payload interface{} `json:"payload"`
}

const instruction = `You are a research analyst answering follow-up questions about completed deep research.
Use the tools to ground every answer in stored learnings: call search_learnings first, and find_learnings_by_job when the user asks about everything a job found.
When the conversation names a research job ID, pass it as jobId.
Group the answer by research question, as a bulleted list of supporting learnings. Say plainly when the learnings do not cover the question.`

func NewService(ctx context.Context, db *database.PostgresDB, cfg *config.Config, tools *LearningToolset) (*Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	modelClient, err := gemini.NewModel(ctx, cfg.ChatModel, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	analyst, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       modelClient,
		Description: "Answers questions from the learnings of past research jobs.",
		Instruction: instruction,
		Toolsets: []tool.Toolset{
			tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &Service{
		config: cfg,
		DB:     db,
		Client: client,
		Agent:  analyst,
	}, nil
}

// CreateConversation starts a conversation. A non-nil jobID scopes it to
// that research job.
func (s *Service) CreateConversation(ctx context.Context, jobID *uuid.UUID) (*Conversation, error) {
	id := uuid.New()
	query := `INSERT INTO conversations (id, job_id) VALUES ($1, $2) RETURNING id, job_id, title, created_at, updated_at`

	conv := &Conversation{}
	err := s.DB.Pool.QueryRow(ctx, query, id, jobID).Scan(&conv.ID, &conv.JobID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) getConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv := &Conversation{}
	err := s.DB.Pool.QueryRow(ctx,
		`SELECT id, job_id, title, created_at, updated_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.JobID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	query := `SELECT id, job_id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.JobID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, nil
}

func (s *Service) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := s.DB.Pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (iter.Seq2[StreamEvent, error], error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	if err := s.saveMessage(ctx, conversationID, "user", content); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	// Sessions live only for one turn; history is replayed from the DB.
	sessions := session.InMemoryService()
	sessionID := conversationID.String()
	created, err := sessions.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    chatUser,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	for _, msg := range history {
		sessions.AppendEvent(ctx, created.Session, historyEvent(msg))
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          s.Agent,
		SessionService: sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	prompt := genai.NewContentFromText(withJobContext(conv.JobID, content), genai.RoleUser)

	return func(yield func(StreamEvent, error) bool) {
		logger := slog.With("conversation_id", conversationID)
		logger.Info("Starting agent run")

		var reply strings.Builder
		events := r.Run(ctx, chatUser, sessionID, prompt, agent.RunConfig{StreamingMode: agent.StreamingModeSSE})
		for event, err := range events {
			if err != nil {
				logger.Error("Agent runner error", "error", err)
				yield(StreamEvent{Type: "error", Payload: err.Error()}, err)
				return
			}
			if event.LLMResponse.Content == nil {
				continue
			}
			for _, part := range event.LLMResponse.Content.Parts {
				reply.WriteString(part.Text)
				for _, se := range partEvents(part) {
					if !yield(se, nil) {
						return
					}
				}
			}
		}
		logger.Info("Agent run completed", "reply_len", reply.Len())

		if err := s.saveMessage(ctx, conversationID, "model", reply.String()); err != nil {
			logger.Error("Failed to save model message", "error", err)
		}
		yield(StreamEvent{Type: "done", Payload: "done"}, nil)

		if len(history) == 0 {
			go s.generateTitle(conversationID, content, reply.String())
		}
	}, nil
}

// historyEvent turns a stored message into a session event so the agent
// sees the earlier turns.
func historyEvent(msg Message) *session.Event {
	evt := session.NewEvent(uuid.NewString())
	role, author := genai.RoleUser, chatUser
	if msg.Role == "model" {
		role, author = genai.RoleModel, agentName
	}
	evt.Author = author
	evt.LLMResponse = model.LLMResponse{Content: genai.NewContentFromText(msg.Content, genai.Role(role))}
	return evt
}

// partEvents maps one streamed content part to client events.
func partEvents(part *genai.Part) []StreamEvent {
	var out []StreamEvent
	if part.Text != "" {
		out = append(out, StreamEvent{Type: "content", Payload: part.Text})
	}
	if part.FunctionCall != nil {
		slog.Info("Agent tool call", "tool", part.FunctionCall.Name)
		out = append(out, StreamEvent{Type: "tool_call", Payload: part.FunctionCall})
	}
	if part.FunctionResponse != nil {
		slog.Info("Agent tool result", "tool", part.FunctionResponse.Name)
		out = append(out, StreamEvent{Type: "tool_result", Payload: part.FunctionResponse})
	}
	return out
}

// saveMessage stores a message and bumps the conversation.
func (s *Service) saveMessage(ctx context.Context, conversationID uuid.UUID, role, content string) error {
	_, err := s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, $3, $4)`,
		uuid.New(), conversationID, role, content)
	if err != nil {
		return err
	}
	_, err = s.DB.Pool.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)
	return err
}

var titleSchema = &genai.Schema{
	Type:       genai.TypeObject,
	Properties: map[string]*genai.Schema{"title": {Type: genai.TypeString}},
	Required:   []string{"title"},
}

func (s *Service) generateTitle(convID uuid.UUID, userMsg, modelMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Generate a short, concise title (max 5 words) for this research chat:\nUser: %s\nModel: %s", userMsg, modelMsg)
	resp, err := s.Client.Models.GenerateContent(ctx, s.config.ChatModel, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   titleSchema,
	})
	if err != nil {
		slog.Error("Failed to generate conversation title", "error", err)
		return
	}

	title, err := parseTitle(responseText(resp))
	if err != nil {
		slog.Error("Failed to parse conversation title", "error", err)
		return
	}
	if title == "" {
		return
	}
	if _, err := s.DB.Pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, convID, title); err != nil {
		slog.Error("Failed to update conversation title", "error", err)
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func parseTitle(raw string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("invalid title response %q: %w", raw, err)
	}
	return strings.TrimSpace(out.Title), nil
}

// withJobContext tells the agent which research job the conversation is
// about.
func withJobContext(jobID *uuid.UUID, content string) string {
	if jobID == nil {
		return content
	}
	return fmt.Sprintf("[Research job ID: %s]\n%s", jobID, content)
}
