package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

const DefaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches arXiv papers. With a Scraper set, each hit's PDF is read in
// full; otherwise the abstract stands in for the paper.
type Arxiv struct {
	BaseURL string
	Scraper *PDFScraper
	client  *http.Client
}

func NewArxiv(scraper *PDFScraper, client *http.Client) *Arxiv {
	if client == nil {
		client = http.DefaultClient
	}
	return &Arxiv{BaseURL: DefaultArxivURL, Scraper: scraper, client: client}
}

func (a *Arxiv) Search(ctx context.Context, query string, limit int) ([]research.Document, error) {
	if limit <= 0 {
		limit = research.DefaultSearchLimit
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(limit))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	docs := make([]research.Document, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		docs = append(docs, a.document(ctx, entry))
	}
	return docs, nil
}

func (a *Arxiv) document(ctx context.Context, entry ArxivEntry) research.Document {
	title := strings.Join(strings.Fields(entry.Title), " ")
	pageURL, pdfURL := strings.TrimSpace(entry.ID), ""
	for _, link := range entry.Link {
		switch {
		case link.Type == "application/pdf":
			pdfURL = link.Href
		case link.Rel == "alternate" && link.Href != "":
			pageURL = link.Href
		}
	}

	markdown := fmt.Sprintf("# %s\n\nPublished: %s\n\n%s", title, entry.Published, strings.TrimSpace(entry.Summary))
	if a.Scraper != nil && pdfURL != "" {
		text, err := a.Scraper.ScrapePDF(ctx, pdfURL)
		if err != nil {
			slog.Warn("Falling back to abstract", "url", pdfURL, "error", err)
		} else if text != "" {
			markdown = fmt.Sprintf("# %s\n\n%s", title, text)
		}
	}
	return research.Document{URL: pageURL, Title: title, Markdown: markdown}
}
