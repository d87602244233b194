package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/chat"
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

type mcpSessions struct {
	mu       sync.RWMutex
	sessions map[string]*MCPSession
}

func (s *mcpSessions) create() string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string]*MCPSession)
	}
	s.sessions[id] = &MCPSession{ID: id, Created: time.Now().Unix()}
	return id
}

func (s *mcpSessions) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeBadSession     = -32000
)

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			Error:   &MCPError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}

	if req.Method == "initialize" {
		if sessionID == "" || !h.sessions.exists(sessionID) {
			sessionID = h.sessions.create()
		}
		c.Header("Mcp-Session-Id", sessionID)

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo": map[string]any{
					"name":    "deep-research-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]any{
					"tools": map[string]any{},
				},
			},
		})
		return
	}

	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &MCPError{Code: codeBadSession, Message: "Bad Request: No valid session ID provided"},
		})
		return
	}
	if !h.sessions.exists(sessionID) {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &MCPError{Code: codeBadSession, Message: "Invalid session ID"},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.sendJSON(c, req.ID, map[string]any{"tools": mcpTools})
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		h.sendJSON(c, req.ID, map[string]any{})
	default:
		h.sendError(c, req.ID, codeMethodNotFound, "Method not found")
	}
}

func schema(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

var mcpTools = []map[string]any{
	{
		"name":        "deep_research",
		"description": "Start a recursive deep research job on a topic. Returns the job ID; poll get_research for the result.",
		"inputSchema": schema([]string{"query"}, map[string]any{
			"query":   prop("string", "The research topic or question."),
			"breadth": prop("number", "Sub-queries per level (default 4)."),
			"depth":   prop("number", "Recursion depth (default 2)."),
			"mode":    prop("string", "report (default) or answer."),
		}),
	},
	{
		"name":        "get_research",
		"description": "Get the status, progress and report of a research job.",
		"inputSchema": schema([]string{"jobId"}, map[string]any{
			"jobId": prop("string", "The research job ID."),
		}),
	},
	{
		"name":        "search_learnings",
		"description": "Semantic search over learnings collected by past research jobs.",
		"inputSchema": schema([]string{"query"}, map[string]any{
			"query": prop("string", "The search query."),
			"topK":  prop("number", "The number of results to return (default 5)."),
			"jobId": prop("string", "Optional research job ID to search within."),
		}),
	},
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, codeInvalidParams, "Invalid params")
		return
	}

	ctx := c.Request.Context()
	switch params.Name {
	case "deep_research":
		var args CreateJobRequest
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
		job, err := h.Service.CreateJob(ctx, args)
		if err != nil {
			h.sendToolError(c, req.ID, err)
			return
		}
		h.sendText(c, req.ID, fmt.Sprintf("Started research job %s (breadth %d, depth %d, mode %s).", job.ID, job.Breadth, job.Depth, job.Mode))

	case "get_research":
		var args struct {
			JobID string `json:"jobId"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
		id, err := uuid.Parse(args.JobID)
		if err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "Invalid job ID")
			return
		}
		job, err := h.Service.GetJob(ctx, id)
		if err != nil {
			h.sendToolError(c, req.ID, err)
			return
		}
		h.sendText(c, req.ID, describeJob(job))

	case "search_learnings":
		if h.Tools == nil {
			h.sendError(c, req.ID, codeInternalError, "learning index is not configured")
			return
		}
		var args chat.SearchLearningsArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
		resp, err := h.Tools.SearchLearnings(ctx, args)
		if err != nil {
			h.sendError(c, req.ID, codeInternalError, err.Error())
			return
		}
		h.sendText(c, req.ID, resp.Results)

	default:
		h.sendError(c, req.ID, codeMethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

// describeJob renders a job for a tool result.
func describeJob(job *Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s: %s\nQuery: %s\n", job.ID, job.Status, job.Query)
	if p := job.Progress; p != nil && job.Status == StatusRunning {
		fmt.Fprintf(&sb, "Progress: depth %d/%d, breadth %d/%d, queries %d/%d\n",
			p.CurrentDepth, p.TotalDepth, p.CurrentBreadth, p.TotalBreadth, p.CompletedQueries, p.TotalQueries)
	}
	if job.Error != nil {
		fmt.Fprintf(&sb, "Error: %s\n", *job.Error)
	}
	if job.Report != nil {
		sb.WriteString("\n")
		sb.WriteString(*job.Report)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) sendToolError(c *gin.Context, id any, err error) {
	code := codeInternalError
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrJobNotFound) {
		code = codeInvalidParams
	}
	h.sendError(c, id, code, err.Error())
}

func (h *Handler) sendError(c *gin.Context, id any, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: msg},
	})
}

func (h *Handler) sendJSON(c *gin.Context, id any, result any) {
	c.JSON(http.StatusOK, MCPResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *Handler) sendText(c *gin.Context, id any, text string) {
	h.sendJSON(c, id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	})
}
