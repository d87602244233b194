package research

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Searcher fetches documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// SearchProvider is a concrete web search backend.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

const (
	DefaultSearchLimit   = 5
	DefaultSearchTimeout = 15 * time.Second
)

// SearchAdapter queries Primary and, when it finds nothing, Secondary once
// with the same arguments.
type SearchAdapter struct {
	Primary   SearchProvider
	Secondary SearchProvider
	Limit     int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewSearchAdapter falls back to the default limit and timeout for
// non-positive values. secondary may be nil.
func NewSearchAdapter(primary, secondary SearchProvider, limit int, timeout time.Duration) *SearchAdapter {
	if limit < 1 {
		limit = DefaultSearchLimit
	}
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &SearchAdapter{
		Primary:   primary,
		Secondary: secondary,
		Limit:     limit,
		Timeout:   timeout,
		Logger:    slog.Default(),
	}
}

// Search returns normalised documents. Errors wrap ErrSearch; a provider
// exceeding Timeout yields ErrSearchTimeout.
func (s *SearchAdapter) Search(ctx context.Context, query string) ([]Document, error) {
	docs, err := s.call(ctx, s.Primary, query)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 || s.Secondary == nil {
		return docs, nil
	}

	s.logger().Info("Primary search returned no documents, using fallback", "query", query)
	return s.call(ctx, s.Secondary, query)
}

func (s *SearchAdapter) call(ctx context.Context, provider SearchProvider, query string) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	docs, err := provider.Search(ctx, query, s.Limit)
	if err != nil {
		return nil, classify(err, ErrSearch, ErrSearchTimeout)
	}
	return normalizeDocuments(docs, s.Limit), nil
}

func (s *SearchAdapter) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// normalizeDocuments trims fields and drops documents that carry neither a
// URL nor content.
func normalizeDocuments(docs []Document, limit int) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		d.URL = strings.TrimSpace(d.URL)
		d.Title = strings.TrimSpace(d.Title)
		if d.URL == "" && strings.TrimSpace(d.Markdown) == "" {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// documentURLs returns the non-empty URLs of docs.
func documentURLs(docs []Document) []string {
	urls := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	return urls
}
