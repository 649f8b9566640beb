package driven

import "context"

// Page is one fetched page of a website source
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Crawler acquires raw text for website sources. Zero pages is a content
// failure surfaced by the ingestion coordinator, not a silent no-op.
type Crawler interface {
	// Crawl fetches the start URL and same-host links up to maxPages
	Crawl(ctx context.Context, startURL string, maxPages int) ([]Page, error)
}
