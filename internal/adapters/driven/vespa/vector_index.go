package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements driven.VectorIndex using Vespa. Organization and
// agent are index fields so tenant filtering happens inside the kNN query
// itself, not after the fact.
type VectorIndex struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the Vespa endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// NewVectorIndex creates a new Vespa-backed VectorIndex
func NewVectorIndex(cfg Config) *VectorIndex {
	return &VectorIndex{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// vespaDocument represents a document in Vespa format
type vespaDocument struct {
	Fields vespaFields `json:"fields"`
}

type vespaFields struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"source_id"`
	OrganizationID string    `json:"organization_id"`
	AgentID        string    `json:"agent_id"`
	Embedding      []float32 `json:"embedding,omitempty"`
	Position       int       `json:"chunk_position"`
}

// Upsert writes chunks and their embeddings to the index
func (v *VectorIndex) Upsert(ctx context.Context, chunks []*domain.Chunk) error {
	for _, chunk := range chunks {
		if err := v.upsertChunk(ctx, chunk); err != nil {
			return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

func (v *VectorIndex) upsertChunk(ctx context.Context, chunk *domain.Chunk) error {
	doc := vespaDocument{
		Fields: vespaFields{
			ID:             chunk.ID,
			SourceID:       chunk.SourceID,
			OrganizationID: chunk.OrganizationID,
			AgentID:        chunk.AgentID,
			Embedding:      chunk.Embedding,
			Position:       chunk.Position,
		},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	// Vespa document API: POST /document/v1/{namespace}/{doctype}/docid/{docid}
	url := fmt.Sprintf("%s/document/v1/openbase/chunk/docid/%s", v.baseURL, chunk.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: vespa index failed: %s - %s",
			domain.ErrExternalService, resp.Status, string(respBody))
	}

	return nil
}

// Search returns the k nearest chunk ids with scores, filtered to the given
// organization and agent
func (v *VectorIndex) Search(ctx context.Context, orgID, agentID string, queryVector []float32, k int) ([]driven.VectorHit, error) {
	yql := fmt.Sprintf(
		`select * from chunk where organization_id contains %q and agent_id contains %q and ({targetHits:%d}nearestNeighbor(embedding,query_embedding))`,
		orgID, agentID, k,
	)

	searchReq := map[string]interface{}{
		"yql":                          yql,
		"hits":                         k,
		"input.query(query_embedding)": queryVector,
		"ranking.profile":              "semantic",
	}

	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/search/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: vespa search failed: %s - %s",
			domain.ErrExternalService, resp.Status, string(respBody))
	}

	var searchResp vespaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", domain.ErrExternalService, err)
	}

	hits := make([]driven.VectorHit, 0, len(searchResp.Root.Children))
	for _, hit := range searchResp.Root.Children {
		hits = append(hits, driven.VectorHit{
			ChunkID: hit.Fields.ID,
			Score:   hit.Relevance,
		})
	}
	return hits, nil
}

// vespaSearchResponse represents Vespa's search response format
type vespaSearchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			Relevance float64     `json:"relevance"`
			Fields    vespaFields `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

// DeleteBySource removes all indexed chunks for a source
func (v *VectorIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	selection := fmt.Sprintf("chunk.source_id==%q", sourceID)
	deleteURL := fmt.Sprintf("%s/document/v1/openbase/chunk/docid/?selection=%s&cluster=openbase",
		v.baseURL, url.QueryEscape(selection))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	// 404 is OK - documents already gone
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: vespa delete failed: %s - %s",
			domain.ErrExternalService, resp.Status, string(respBody))
	}

	return nil
}

// HealthCheck verifies the index is reachable
func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/state/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: vespa health returned status %d", domain.ErrExternalService, resp.StatusCode)
	}
	return nil
}
