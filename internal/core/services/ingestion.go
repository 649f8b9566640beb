package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/chunker"
	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// embedBatchSize is how many chunk texts go into one embedding call
const embedBatchSize = 64

// defaultMaxCrawlPages caps how many pages a website source pulls in
const defaultMaxCrawlPages = 30

// IngestionCoordinator runs the ingestion pipeline for one job:
// acquire → fingerprint check → chunk → embed → replace → ready.
// Cancellation is observed cooperatively between steps; once observed, no
// further writes happen.
type IngestionCoordinator struct {
	sources   driven.SourceStore
	chunks    driven.ChunkStore
	orgs      driven.OrganizationStore
	index     driven.VectorIndex
	embedding driven.EmbeddingService
	crawler   driven.Crawler
	tracker   *JobTracker
	usage     *UsageRecorder
	publisher driven.StreamPublisher
	chunking  chunker.Config
	maxPages  int
	logger    *slog.Logger
}

// IngestionCoordinatorConfig holds dependencies for IngestionCoordinator.
type IngestionCoordinatorConfig struct {
	SourceStore       driven.SourceStore
	ChunkStore        driven.ChunkStore
	OrganizationStore driven.OrganizationStore
	Index             driven.VectorIndex
	Embedding         driven.EmbeddingService
	Crawler           driven.Crawler
	Tracker           *JobTracker
	Usage             *UsageRecorder
	Publisher         driven.StreamPublisher
	Chunking          chunker.Config
	MaxCrawlPages     int
	Logger            *slog.Logger
}

// NewIngestionCoordinator creates a new ingestion coordinator.
func NewIngestionCoordinator(cfg IngestionCoordinatorConfig) *IngestionCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPages := cfg.MaxCrawlPages
	if maxPages <= 0 {
		maxPages = defaultMaxCrawlPages
	}
	chunking := cfg.Chunking
	if chunking.TargetTokens <= 0 {
		chunking = chunker.DefaultConfig()
	}
	return &IngestionCoordinator{
		sources:   cfg.SourceStore,
		chunks:    cfg.ChunkStore,
		orgs:      cfg.OrganizationStore,
		index:     cfg.Index,
		embedding: cfg.Embedding,
		crawler:   cfg.Crawler,
		tracker:   cfg.Tracker,
		usage:     cfg.Usage,
		publisher: cfg.Publisher,
		chunking:  chunking,
		maxPages:  maxPages,
		logger:    logger,
	}
}

// Run executes the pipeline for a claimed job. Content errors (no text, zero
// chunks, dimension mismatch) are terminal; transient errors leave the job
// to the retry schedule. domain.ErrJobCancelled means the job was cancelled
// mid-flight and nothing further was written.
func (c *IngestionCoordinator) Run(ctx context.Context, job *domain.Job) error {
	switch job.Type {
	case domain.JobTypeIngestSource:
		return c.ingestSource(ctx, job)
	case domain.JobTypeRetrainAgent:
		return c.retrainAgent(ctx, job)
	default:
		return c.failJob(ctx, job, nil,
			fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidInput, job.Type))
	}
}

func (c *IngestionCoordinator) ingestSource(ctx context.Context, job *domain.Job) error {
	source, err := c.sources.Get(ctx, job.OrganizationID, job.SourceID)
	if err != nil {
		return c.failJob(ctx, job, nil, fmt.Errorf("failed to load source: %w", err))
	}
	if source.IsDeleted() {
		return c.failJob(ctx, job, nil,
			fmt.Errorf("%w: source deleted before ingestion", domain.ErrNoContent))
	}

	source.MarkProcessing()
	if err := c.sources.Update(ctx, source); err != nil {
		return c.failJob(ctx, job, nil, fmt.Errorf("failed to mark source processing: %w", err))
	}
	c.publishSourceStatus(ctx, source)

	if err := c.runPipeline(ctx, job, source); err != nil {
		return c.failJob(ctx, job, source, err)
	}
	return nil
}

// runPipeline is the per-source pipeline body shared by ingest and retrain
func (c *IngestionCoordinator) runPipeline(ctx context.Context, job *domain.Job, source *domain.Source) error {
	text, pages, err := c.acquire(ctx, source)
	if err != nil {
		return err
	}
	if err := c.checkpoint(ctx, job, 10, "content acquired"); err != nil {
		return err
	}

	fingerprint := domain.Fingerprint(text)
	if fingerprint == source.Fingerprint && !job.Force {
		c.logger.Info("content unchanged, skipping re-embed",
			"source_id", source.ID, "fingerprint", fingerprint)
		source.MarkReady(fingerprint, source.ChunkCount, len(text))
		if err := c.sources.Update(ctx, source); err != nil {
			return fmt.Errorf("failed to mark source ready: %w", err)
		}
		c.publishSourceStatus(ctx, source)
		return c.recomputeRetraining(ctx, source.OrganizationID, source.AgentID)
	}

	segments := c.splitSegments(text, pages)
	if len(segments) == 0 {
		return fmt.Errorf("%w: source produced no chunks", domain.ErrNoContent)
	}
	if err := c.checkpoint(ctx, job, 40, fmt.Sprintf("chunked into %d segments", len(segments))); err != nil {
		return err
	}

	if cancelled, err := c.cancelled(ctx, job); err != nil || cancelled {
		if cancelled {
			return domain.ErrJobCancelled
		}
		return err
	}

	if err := c.checkpoint(ctx, job, 50, "embedding"); err != nil {
		return err
	}
	chunks, embedTokens, err := c.embedSegments(ctx, source, segments)
	if err != nil {
		return err
	}
	if err := c.checkpoint(ctx, job, 80, "embedded"); err != nil {
		return err
	}

	if cancelled, err := c.cancelled(ctx, job); err != nil || cancelled {
		if cancelled {
			return domain.ErrJobCancelled
		}
		return err
	}

	// Replace-as-unit: old vectors and rows go first so the index never
	// serves a mix of old and new chunk sets for one source.
	if err := c.index.DeleteBySource(ctx, source.ID); err != nil {
		return fmt.Errorf("failed to clear old vectors: %w", err)
	}
	if err := c.chunks.ReplaceForSource(ctx, source.ID, chunks); err != nil {
		return fmt.Errorf("failed to replace chunks: %w", err)
	}
	if err := c.index.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	if err := c.checkpoint(ctx, job, 95, "persisted"); err != nil {
		return err
	}

	source.MarkReady(fingerprint, len(chunks), len(text))
	if err := c.sources.Update(ctx, source); err != nil {
		return fmt.Errorf("failed to mark source ready: %w", err)
	}
	c.publishSourceStatus(ctx, source)

	if err := c.recomputeRetraining(ctx, source.OrganizationID, source.AgentID); err != nil {
		return err
	}

	if err := c.usage.RecordEmbedding(ctx, source.OrganizationID, source.ID,
		fingerprint, c.embedding.Model(), embedTokens); err != nil {
		// The pipeline succeeded; a ledger write failure is logged, not
		// propagated, and the idempotency key makes a later replay safe.
		c.logger.Error("failed to record embedding usage",
			"source_id", source.ID, "error", err)
	}

	c.logger.Info("source ingested",
		"source_id", source.ID,
		"chunks", len(chunks),
		"embed_tokens", embedTokens)
	return nil
}

// retrainAgent re-runs the pipeline for every live source of the agent
func (c *IngestionCoordinator) retrainAgent(ctx context.Context, job *domain.Job) error {
	sources, err := c.sources.ListByAgent(ctx, job.OrganizationID, job.AgentID)
	if err != nil {
		return c.failJob(ctx, job, nil, fmt.Errorf("failed to list sources: %w", err))
	}

	for i, source := range sources {
		if cancelled, err := c.cancelled(ctx, job); err != nil || cancelled {
			if cancelled {
				return domain.ErrJobCancelled
			}
			return c.failJob(ctx, job, nil, err)
		}
		if err := c.tracker.Heartbeat(ctx, job, domain.Progress{
			Current: i,
			Total:   len(sources),
			Message: fmt.Sprintf("retraining source %s", source.ID),
		}); err != nil {
			return err
		}

		source.MarkProcessing()
		if err := c.sources.Update(ctx, source); err != nil {
			return c.failJob(ctx, job, source, fmt.Errorf("failed to mark source processing: %w", err))
		}
		c.publishSourceStatus(ctx, source)

		if err := c.runPipeline(ctx, job, source); err != nil {
			return c.failJob(ctx, job, source, err)
		}
	}
	return nil
}

// acquire resolves the raw text for a source. Website sources return their
// page set as well so chunks can carry per-page citations.
func (c *IngestionCoordinator) acquire(ctx context.Context, source *domain.Source) (string, []driven.Page, error) {
	if source.Type == domain.SourceTypeWebsite {
		pages, err := c.crawler.Crawl(ctx, source.URL, c.maxPages)
		if err != nil {
			return "", nil, fmt.Errorf("crawl failed: %w", err)
		}
		if len(pages) == 0 {
			return "", nil, fmt.Errorf("%w: crawl returned no pages", domain.ErrNoContent)
		}
		var combined string
		for _, p := range pages {
			combined += p.Text + "\n\n"
		}
		return combined, pages, nil
	}

	text := source.RawText()
	if len(text) == 0 {
		return "", nil, fmt.Errorf("%w: source has no content", domain.ErrNoContent)
	}
	return text, nil, nil
}

// splitSegments chunks the source text. Website sources are chunked page by
// page so each segment knows its originating URL.
func (c *IngestionCoordinator) splitSegments(text string, pages []driven.Page) []pageSegment {
	split := chunker.New(c.chunking)

	if len(pages) == 0 {
		segments := split.Split(text)
		out := make([]pageSegment, len(segments))
		for i, seg := range segments {
			out[i] = pageSegment{Segment: seg}
		}
		return out
	}

	var out []pageSegment
	position := 0
	for _, page := range pages {
		for _, seg := range split.Split(page.Text) {
			seg.Position = position
			out = append(out, pageSegment{Segment: seg, PageURL: page.URL})
			position++
		}
	}
	return out
}

type pageSegment struct {
	chunker.Segment
	PageURL string
}

// embedSegments embeds the segment texts in batches and builds the chunk
// rows. The vector dimensionality and model must match the owning agent's
// configuration; a mismatch is a terminal content error.
func (c *IngestionCoordinator) embedSegments(ctx context.Context, source *domain.Source, segments []pageSegment) ([]*domain.Chunk, int, error) {
	agent, err := c.orgs.GetAgent(ctx, source.OrganizationID, source.AgentID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load agent: %w", err)
	}
	if agent.EmbeddingModel != "" && agent.EmbeddingModel != c.embedding.Model() {
		return nil, 0, fmt.Errorf("%w: agent configured for %s, service provides %s",
			domain.ErrDimensionMismatch, agent.EmbeddingModel, c.embedding.Model())
	}

	chunks := make([]*domain.Chunk, 0, len(segments))
	totalTokens := 0
	now := time.Now()

	for start := 0; start < len(segments); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]

		texts := make([]string, len(batch))
		for i, seg := range batch {
			texts[i] = seg.Text
		}

		result, err := c.embedding.Embed(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("embedding batch failed: %w", err)
		}
		if len(result.Vectors) != len(texts) {
			return nil, 0, fmt.Errorf("%w: got %d vectors for %d texts",
				domain.ErrExternalService, len(result.Vectors), len(texts))
		}
		totalTokens += result.Tokens

		for i, seg := range batch {
			vector := result.Vectors[i]
			if agent.EmbeddingDimensions > 0 && len(vector) != agent.EmbeddingDimensions {
				return nil, 0, fmt.Errorf("%w: vector has %d dimensions, agent expects %d",
					domain.ErrDimensionMismatch, len(vector), agent.EmbeddingDimensions)
			}
			chunks = append(chunks, &domain.Chunk{
				ID:             domain.GenerateID(),
				SourceID:       source.ID,
				OrganizationID: source.OrganizationID,
				AgentID:        source.AgentID,
				Content:        seg.Text,
				Embedding:      vector,
				EmbeddingModel: result.Model,
				Position:       seg.Position,
				StartChar:      seg.StartChar,
				EndChar:        seg.EndChar,
				PageURL:        seg.PageURL,
				TokenEstimate:  seg.TokenEstimate,
				CreatedAt:      now,
			})
		}
	}
	return chunks, totalTokens, nil
}

// recomputeRetraining clears the agent's needsRetraining flag only when
// every live source is ready, and sets it otherwise.
func (c *IngestionCoordinator) recomputeRetraining(ctx context.Context, orgID, agentID string) error {
	agent, err := c.orgs.GetAgent(ctx, orgID, agentID)
	if err != nil {
		return fmt.Errorf("failed to load agent: %w", err)
	}
	sources, err := c.sources.ListByAgent(ctx, orgID, agentID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	needs := false
	for _, s := range sources {
		if s.Status != domain.SourceStatusReady {
			needs = true
			break
		}
	}
	if agent.NeedsRetraining == needs {
		return nil
	}
	agent.NeedsRetraining = needs
	if err := c.orgs.UpdateAgent(ctx, agent); err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	return nil
}

// failJob records the failure against the job (terminal for content errors,
// scheduled retry otherwise) and marks the source failed. Cancellation is
// passed through untouched.
func (c *IngestionCoordinator) failJob(ctx context.Context, job *domain.Job, source *domain.Source, cause error) error {
	if errors.Is(cause, domain.ErrJobCancelled) {
		return cause
	}

	if source != nil {
		source.MarkFailed(cause.Error())
		if err := c.sources.Update(ctx, source); err != nil {
			c.logger.Error("failed to mark source failed",
				"source_id", source.ID, "error", err)
		}
		c.publishSourceStatus(ctx, source)
	}

	if !domain.IsRetryable(cause) {
		if err := c.tracker.FailTerminal(ctx, job, cause.Error()); err != nil {
			return err
		}
		return cause
	}
	if _, err := c.tracker.Fail(ctx, job, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (c *IngestionCoordinator) checkpoint(ctx context.Context, job *domain.Job, current int, msg string) error {
	return c.tracker.Heartbeat(ctx, job, domain.Progress{
		Current: current,
		Total:   100,
		Message: msg,
	})
}

func (c *IngestionCoordinator) cancelled(ctx context.Context, job *domain.Job) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return c.tracker.IsCancelled(ctx, job.ID)
}

func (c *IngestionCoordinator) publishSourceStatus(ctx context.Context, source *domain.Source) {
	if c.publisher == nil {
		return
	}
	event := domain.Event{
		Type:           domain.EventSourceStatus,
		OrganizationID: source.OrganizationID,
		Subject:        source.ID,
		Payload: map[string]string{
			"status": string(source.Status),
			"error":  source.ErrorMsg,
		},
		At: time.Now(),
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish source status",
			"source_id", source.ID, "error", err)
	}
}
