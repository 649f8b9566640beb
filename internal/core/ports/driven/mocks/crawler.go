package mocks

import (
	"context"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// MockCrawler returns a fixed set of pages for any start URL
type MockCrawler struct {
	mu sync.Mutex

	Pages    []driven.Page
	CrawlErr error

	Calls       int
	LastURL     string
	LastMaxHops int
}

// NewMockCrawler creates an empty mock crawler
func NewMockCrawler() *MockCrawler {
	return &MockCrawler{}
}

func (m *MockCrawler) Crawl(ctx context.Context, startURL string, maxPages int) ([]driven.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastURL = startURL
	m.LastMaxHops = maxPages
	if m.CrawlErr != nil {
		return nil, m.CrawlErr
	}
	pages := make([]driven.Page, len(m.Pages))
	copy(pages, m.Pages)
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return pages, nil
}
