package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"
)

const DefaultMistralURL = "https://api.mistral.ai"

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// PDFScraper converts PDFs to markdown with the Mistral OCR API. Concurrent
// requests for the same URL share one OCR call.
type PDFScraper struct {
	APIKey  string
	BaseURL string
	Model   string
	client  *http.Client
	group   singleflight.Group
}

func NewPDFScraper(apiKey string, client *http.Client) *PDFScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &PDFScraper{
		APIKey:  apiKey,
		BaseURL: DefaultMistralURL,
		Model:   "mistral-ocr-latest",
		client:  client,
	}
}

// ScrapePDF extracts the contents of a PDF file as markdown.
func (s *PDFScraper) ScrapePDF(ctx context.Context, url string) (string, error) {
	if s.APIKey == "" {
		return "", errors.New("MISTRAL_API_KEY is not set")
	}
	url = strings.Replace(url, "http://", "https://", 1)

	v, err, shared := s.group.Do(url, func() (any, error) {
		return s.scrape(ctx, url)
	})
	if shared {
		slog.Debug("Shared PDF scrape", "url", url)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *PDFScraper) scrape(ctx context.Context, url string) (string, error) {
	slog.Info("PDF scraper called", "url", url)

	jsonBody, err := json.Marshal(map[string]any{
		"model": s.Model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
		"include_image_base64": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.BaseURL, "/")+"/v1/ocr", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var ocrResponse OcrResponse
	if err := json.Unmarshal(body, &ocrResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var sb strings.Builder
	for _, page := range ocrResponse.Pages {
		fmt.Fprintf(&sb, "- Page %d -\n", page.Index)
		sb.WriteString(page.Markdown)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
