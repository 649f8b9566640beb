package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Crawler = (*Crawler)(nil)

// Default configuration values
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 2 << 20 // 2 MiB per page
	defaultUserAgent    = "openbase-crawler/1.0"
)

// Config holds crawler configuration
type Config struct {
	// Timeout for each page fetch
	Timeout time.Duration

	// MaxBodyBytes caps how much of a page body is read
	MaxBodyBytes int64

	Logger *slog.Logger
}

// Crawler fetches website sources with a breadth-first walk restricted to
// the start URL's host. Pages that fail to fetch are skipped rather than
// failing the crawl; zero usable pages is the caller's failure condition.
type Crawler struct {
	client       *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewCrawler creates a new Crawler
func NewCrawler(cfg Config) *Crawler {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		client:       &http.Client{Timeout: cfg.Timeout},
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}
}

// Crawl fetches the start URL and same-host links up to maxPages
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int) ([]driven.Page, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	start, err := url.Parse(startURL)
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid start url %q", domain.ErrInvalidInput, startURL)
	}

	queue := []string{start.String()}
	visited := map[string]bool{}
	var pages []driven.Page

	for len(queue) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		page, links, err := c.fetch(ctx, pageURL, start.Host)
		if err != nil {
			c.logger.Warn("skipping page", "url", pageURL, "error", err)
			continue
		}
		if strings.TrimSpace(page.Text) != "" {
			pages = append(pages, page)
		}
		for _, link := range links {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}

	return pages, nil
}

// fetch retrieves one page, extracting readable text and same-host links
func (c *Crawler) fetch(ctx context.Context, pageURL, host string) (driven.Page, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return driven.Page{}, nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return driven.Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return driven.Page{}, nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return driven.Page{}, nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return driven.Page{}, nil, err
	}

	page := driven.Page{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  extractText(doc),
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link := resolveLink(pageURL, href, host)
		if link != "" {
			links = append(links, link)
		}
	})

	return page, links, nil
}

// extractText pulls readable content from headers, paragraphs, and list
// items, preferring main/article containers when present
func extractText(doc *goquery.Document) string {
	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	var parts []string
	sel.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}

// resolveLink normalizes an href against the page URL, returning "" for
// links that leave the crawl host or are not http(s)
func resolveLink(pageURL, href, host string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if resolved.Host != host {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
