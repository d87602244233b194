package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// Firecrawl searches the web and scrapes each hit to markdown in one call.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	// Timeout is forwarded to Firecrawl as its scrape budget.
	Timeout time.Duration
	client  *http.Client
}

func NewFirecrawl(apiKey, baseURL string, client *http.Client) *Firecrawl {
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Firecrawl{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: research.DefaultSearchTimeout,
		client:  client,
	}
}

type firecrawlRequest struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	Timeout       int64  `json:"timeout"`
	ScrapeOptions struct {
		Formats []string `json:"formats"`
	} `json:"scrapeOptions"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
}

func (f *Firecrawl) Search(ctx context.Context, query string, limit int) ([]research.Document, error) {
	// Self-hosted instances may run without a key.
	if strings.TrimSpace(f.APIKey) == "" && f.BaseURL == DefaultFirecrawlURL {
		return nil, errors.New("firecrawl: API key is missing")
	}

	body := firecrawlRequest{Query: query, Limit: limit, Timeout: f.Timeout.Milliseconds()}
	body.ScrapeOptions.Formats = []string{"markdown"}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firecrawl: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("firecrawl http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out firecrawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("firecrawl: decode response: %w", err)
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("firecrawl: %s", out.Error)
	}

	docs := make([]research.Document, 0, len(out.Data))
	for _, d := range out.Data {
		markdown := d.Markdown
		if markdown == "" {
			markdown = d.Description
		}
		docs = append(docs, research.Document{URL: d.URL, Title: d.Title, Markdown: markdown})
	}
	return docs, nil
}
