package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driving"
)

// SourceManager handles the source lifecycle at the trigger boundary:
// registration, reads, soft deletion, and enqueueing ingestion jobs.
type SourceManager struct {
	sources driven.SourceStore
	chunks  driven.ChunkStore
	index   driven.VectorIndex
	tracker *JobTracker
	logger  *slog.Logger
}

// SourceManagerConfig holds dependencies for SourceManager.
type SourceManagerConfig struct {
	SourceStore driven.SourceStore
	ChunkStore  driven.ChunkStore
	Index       driven.VectorIndex
	Tracker     *JobTracker
	Logger      *slog.Logger
}

// NewSourceManager creates a new source manager.
func NewSourceManager(cfg SourceManagerConfig) *SourceManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceManager{
		sources: cfg.SourceStore,
		chunks:  cfg.ChunkStore,
		index:   cfg.Index,
		tracker: cfg.Tracker,
		logger:  logger,
	}
}

// Register creates a pending source after validating its type-specific
// payload. Ingestion is a separate trigger.
func (s *SourceManager) Register(ctx context.Context, req driving.RegisterSourceRequest) (*domain.Source, error) {
	if req.OrganizationID == "" || req.AgentID == "" {
		return nil, fmt.Errorf("%w: organization and agent are required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}

	source := domain.NewSource(req.OrganizationID, req.AgentID, req.Name, req.Type)
	switch req.Type {
	case domain.SourceTypeText, domain.SourceTypeFile:
		if strings.TrimSpace(req.Content) == "" {
			return nil, fmt.Errorf("%w: %s source requires content", domain.ErrInvalidInput, req.Type)
		}
		source.Content = req.Content
	case domain.SourceTypeWebsite:
		parsed, err := url.Parse(req.URL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("%w: website source requires a valid http(s) url", domain.ErrInvalidInput)
		}
		source.URL = req.URL
	case domain.SourceTypeQA:
		if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
			return nil, fmt.Errorf("%w: qa source requires question and answer", domain.ErrInvalidInput)
		}
		source.Question = req.Question
		source.Answer = req.Answer
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, req.Type)
	}

	if err := s.sources.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	s.logger.Info("source registered",
		"source_id", source.ID, "type", source.Type, "agent_id", source.AgentID)
	return source, nil
}

// Get retrieves a source within an organization.
func (s *SourceManager) Get(ctx context.Context, orgID, id string) (*domain.Source, error) {
	return s.sources.Get(ctx, orgID, id)
}

// ListByAgent returns an agent's live sources.
func (s *SourceManager) ListByAgent(ctx context.Context, orgID, agentID string) ([]*domain.Source, error) {
	return s.sources.ListByAgent(ctx, orgID, agentID)
}

// Delete soft-deletes a source and removes its vectors from the index. The
// chunk rows stay with the retained source row; retrieval filters them out.
func (s *SourceManager) Delete(ctx context.Context, orgID, id string) error {
	if _, err := s.sources.Get(ctx, orgID, id); err != nil {
		return err
	}
	if err := s.sources.SoftDelete(ctx, orgID, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if err := s.index.DeleteBySource(ctx, id); err != nil {
		// Retrieval post-filters deleted sources, so a missed index cleanup
		// degrades to wasted hits, not a leak.
		s.logger.Error("failed to remove vectors for deleted source",
			"source_id", id, "error", err)
	}
	s.logger.Info("source deleted", "source_id", id)
	return nil
}

// TriggerIngest enqueues (or returns the existing) ingestion job for a
// source. The caller's idempotency key deduplicates concurrent triggers; a
// missing key gets a unique one and never deduplicates.
func (s *SourceManager) TriggerIngest(ctx context.Context, req driving.TriggerIngestRequest) (*domain.Job, error) {
	source, err := s.sources.Get(ctx, req.OrganizationID, req.SourceID)
	if err != nil {
		return nil, err
	}
	if source.IsDeleted() {
		return nil, fmt.Errorf("%w: source is deleted", domain.ErrInvalidInput)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("ingest:%s:%s", req.SourceID, uuid.NewString())
	}

	job := domain.NewJob(domain.JobTypeIngestSource, req.OrganizationID, source.AgentID, req.SourceID, key)
	job.Force = req.Force
	return s.tracker.Enqueue(ctx, job)
}

// TriggerRetrain enqueues a retrain job covering every live source of an
// agent.
func (s *SourceManager) TriggerRetrain(ctx context.Context, orgID, agentID, idempotencyKey string, force bool) (*domain.Job, error) {
	key := idempotencyKey
	if key == "" {
		key = fmt.Sprintf("retrain:%s:%s", agentID, uuid.NewString())
	}
	job := domain.NewJob(domain.JobTypeRetrainAgent, orgID, agentID, "", key)
	job.Force = force
	return s.tracker.Enqueue(ctx, job)
}
