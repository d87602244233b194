package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const DefaultTavilyURL = "https://api.tavily.com"

// Tavily calls the Tavily search API, asking for the raw page content so
// results can feed learning extraction directly.
type Tavily struct {
	APIKey  string
	BaseURL string
	// Depth is Tavily's search_depth (basic or advanced).
	Depth  string
	client *http.Client
	// maxBackoff caps the wait between retries on 429.
	maxBackoff time.Duration
}

func NewTavily(apiKey, depth string, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Tavily{
		APIKey:     apiKey,
		BaseURL:    DefaultTavilyURL,
		Depth:      depth,
		client:     client,
		maxBackoff: 30 * time.Second,
	}
}

func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]research.Document, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":               query,
		"api_key":             t.APIKey,
		"search_depth":        t.Depth,
		"max_results":         limit,
		"include_raw_content": true,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := min(time.Second, t.maxBackoff)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.BaseURL, "/")+"/search", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tavily: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		// Back off on 429, doubling the delay up to maxBackoff.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, t.maxBackoff)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Content    string `json:"content"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	docs := make([]research.Document, 0, len(response.Results))
	for _, r := range response.Results {
		markdown := r.RawContent
		if markdown == "" {
			markdown = r.Content
		}
		docs = append(docs, research.Document{URL: r.URL, Title: r.Title, Markdown: markdown})
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, nil
}
