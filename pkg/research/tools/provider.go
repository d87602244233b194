package tools

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// NewProvider returns the search backend registered under name.
func NewProvider(name string, cfg *config.Config, client *http.Client) (research.SearchProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "firecrawl":
		f := NewFirecrawl(cfg.FirecrawlApiKey, cfg.FirecrawlBaseURL, client)
		f.Timeout = cfg.SearchTimeout
		return f, nil
	case "tavily":
		return NewTavily(cfg.TavilyApiKey, "advanced", client), nil
	case "arxiv":
		var scraper *PDFScraper
		if cfg.MistralApiKey != "" {
			scraper = NewPDFScraper(cfg.MistralApiKey, client)
		}
		return NewArxiv(scraper, client), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
}

// NewSearcher builds the search adapter from the configured primary and
// optional fallback providers.
func NewSearcher(cfg *config.Config) (*research.SearchAdapter, error) {
	primary, err := NewProvider(cfg.SearchProvider, cfg, nil)
	if err != nil {
		return nil, err
	}

	var secondary research.SearchProvider
	if name := cfg.FallbackSearchProvider; name != "" && !strings.EqualFold(name, cfg.SearchProvider) {
		secondary, err = NewProvider(name, cfg, nil)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
	}
	return research.NewSearchAdapter(primary, secondary, cfg.SearchLimit, cfg.SearchTimeout), nil
}
