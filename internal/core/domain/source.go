package domain

import "time"

// SourceType identifies how a source's raw text is acquired
type SourceType string

const (
	SourceTypeFile    SourceType = "file"
	SourceTypeWebsite SourceType = "website"
	SourceTypeText    SourceType = "text"
	SourceTypeQA      SourceType = "qa"
)

// SourceStatus represents the ingestion lifecycle of a source.
// Transitions are monotonic (pending → processing → ready|failed) except
// retry, which moves failed back to pending.
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusReady      SourceStatus = "ready"
	SourceStatusFailed     SourceStatus = "failed"
)

// Source represents a knowledge input owned by an organization+agent pair
type Source struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	AgentID        string       `json:"agent_id"`
	Name           string       `json:"name"`
	Type           SourceType   `json:"type"`
	Status         SourceStatus `json:"status"`

	// Content is the literal payload for text/qa/file sources.
	// Website sources carry the start URL in URL instead.
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`

	// Question/Answer pair for qa sources
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`

	// Fingerprint is the content digest of the last successful ingestion.
	// An unchanged fingerprint makes re-ingestion a no-op unless forced.
	Fingerprint string `json:"fingerprint,omitempty"`

	SizeBytes  int    `json:"size_bytes"`
	ChunkCount int    `json:"chunk_count"`
	ErrorMsg   string `json:"error_message,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewSource creates a source in the pending state
func NewSource(orgID, agentID, name string, sourceType SourceType) *Source {
	now := time.Now()
	return &Source{
		ID:             GenerateID(),
		OrganizationID: orgID,
		AgentID:        agentID,
		Name:           name,
		Type:           sourceType,
		Status:         SourceStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsDeleted reports whether the source has been soft-deleted.
// Deleted sources are excluded from retrieval and retraining.
func (s *Source) IsDeleted() bool {
	return s.DeletedAt != nil
}

// RawText returns the text to be chunked for literal source types.
// Website sources acquire their text through the crawler instead.
func (s *Source) RawText() string {
	if s.Type == SourceTypeQA {
		return "Q: " + s.Question + "\nA: " + s.Answer
	}
	return s.Content
}

// MarkProcessing moves the source into the processing state
func (s *Source) MarkProcessing() {
	s.Status = SourceStatusProcessing
	s.ErrorMsg = ""
	s.UpdatedAt = time.Now()
}

// MarkReady records a successful ingestion
func (s *Source) MarkReady(fingerprint string, chunkCount, sizeBytes int) {
	s.Status = SourceStatusReady
	s.Fingerprint = fingerprint
	s.ChunkCount = chunkCount
	s.SizeBytes = sizeBytes
	s.ErrorMsg = ""
	s.UpdatedAt = time.Now()
}

// MarkFailed records a failed ingestion with a human-readable message
func (s *Source) MarkFailed(msg string) {
	s.Status = SourceStatusFailed
	s.ErrorMsg = msg
	s.UpdatedAt = time.Now()
}
