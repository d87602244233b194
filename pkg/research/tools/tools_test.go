package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

func TestFirecrawlSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var body firecrawlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "golang generics", body.Query)
		assert.Equal(t, 3, body.Limit)
		assert.Equal(t, []string{"markdown"}, body.ScrapeOptions.Formats)

		w.Write([]byte(`{"success":true,"data":[
			{"url":"https://go.dev/blog","title":"Go Blog","markdown":"# Generics"},
			{"url":"https://example.com","title":"Example","description":"only a snippet"}
		]}`))
	}))
	defer srv.Close()

	f := NewFirecrawl("fc-key", srv.URL, srv.Client())
	docs, err := f.Search(context.Background(), "golang generics", 3)
	require.NoError(t, err)
	assert.Equal(t, []research.Document{
		{URL: "https://go.dev/blog", Title: "Go Blog", Markdown: "# Generics"},
		{URL: "https://example.com", Title: "Example", Markdown: "only a snippet"},
	}, docs)
}

func TestFirecrawlHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payment required", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := NewFirecrawl("k", srv.URL, srv.Client()).Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestFirecrawlMissingKey(t *testing.T) {
	_, err := NewFirecrawl("", "", nil).Search(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "API key is missing")
}

func TestTavilySearch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["include_raw_content"])
		assert.EqualValues(t, 2, body["max_results"])

		w.Write([]byte(`{"results":[
			{"title":"A","url":"https://a","content":"snippet a","raw_content":"full a"},
			{"title":"B","url":"https://b","content":"snippet b"},
			{"title":"C","url":"https://c","content":"snippet c"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("tv-key", "", srv.Client())
	tv.BaseURL = srv.URL
	tv.maxBackoff = time.Millisecond

	docs, err := tv.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, []research.Document{
		{URL: "https://a", Title: "A", Markdown: "full a"},
		{URL: "https://b", Title: "B", Markdown: "snippet b"},
	}, docs)
	assert.EqualValues(t, 2, calls.Load())
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is
      All You Need</title>
    <summary> The dominant sequence transduction models... </summary>
    <published>2017-06-12T17:57:34Z</published>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:transformers", r.URL.Query().Get("search_query"))
		assert.Equal(t, "1", r.URL.Query().Get("max_results"))
		w.Write([]byte(arxivFeed))
	}))
	defer srv.Close()

	a := NewArxiv(nil, srv.Client())
	a.BaseURL = srv.URL

	docs, err := a.Search(context.Background(), "transformers", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "http://arxiv.org/abs/1706.03762v7", docs[0].URL)
	assert.Equal(t, "Attention Is All You Need", docs[0].Title)
	assert.Contains(t, docs[0].Markdown, "The dominant sequence transduction models...")
}

func TestArxivReadsPDF(t *testing.T) {
	var ocrCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ocr":
			ocrCalls.Add(1)
			assert.Equal(t, "Bearer m-key", r.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			doc := body["document"].(map[string]any)
			assert.Equal(t, "https://arxiv.org/pdf/1706.03762v7", doc["document_url"])
			w.Write([]byte(`{"pages":[{"index":0,"markdown":"Full paper text"}]}`))
		default:
			w.Write([]byte(arxivFeed))
		}
	}))
	defer srv.Close()

	scraper := NewPDFScraper("m-key", srv.Client())
	scraper.BaseURL = srv.URL
	a := NewArxiv(scraper, srv.Client())
	a.BaseURL = srv.URL + "/api/query"

	docs, err := a.Search(context.Background(), "transformers", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Markdown, "Full paper text")
	assert.EqualValues(t, 1, ocrCalls.Load())
}

func TestPDFScraperRequiresKey(t *testing.T) {
	_, err := NewPDFScraper("", nil).ScrapePDF(context.Background(), "https://x/y.pdf")
	assert.ErrorContains(t, err, "MISTRAL_API_KEY")
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{SearchTimeout: time.Second}
	for _, name := range []string{"firecrawl", "Tavily", " arxiv "} {
		p, err := NewProvider(name, cfg, nil)
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}

	_, err := NewProvider("bing", cfg, nil)
	assert.ErrorContains(t, err, "unknown search provider")
}

func TestNewSearcher(t *testing.T) {
	tests := []struct {
		name          string
		primary       string
		fallback      string
		wantSecondary bool
		wantErr       string
	}{
		{"with fallback", "firecrawl", "tavily", true, ""},
		{"no fallback", "firecrawl", "", false, ""},
		{"same provider", "tavily", "TAVILY", false, ""},
		{"bad fallback", "firecrawl", "bing", false, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSearcher(&config.Config{
				SearchProvider:         tt.primary,
				FallbackSearchProvider: tt.fallback,
				SearchLimit:            3,
				SearchTimeout:          time.Second,
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSecondary, s.Secondary != nil)
			assert.Equal(t, 3, s.Limit)
		})
	}
}
