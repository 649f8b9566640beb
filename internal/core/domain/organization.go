package domain

import "time"

// PlanTier determines an organization's rate limit policy and credits
type PlanTier string

const (
	PlanTierFree    PlanTier = "free"
	PlanTierStarter PlanTier = "starter"
	PlanTierPro     PlanTier = "pro"
)

// RateLimitPolicy is a token-bucket policy: a capped token count refilled
// lazily from elapsed time, not by a background timer.
type RateLimitPolicy struct {
	Capacity     int     `json:"capacity"`
	RefillPerSec float64 `json:"refill_per_sec"`
}

// PolicyForPlan returns the rate limit policy for a plan tier
func PolicyForPlan(tier PlanTier) RateLimitPolicy {
	switch tier {
	case PlanTierPro:
		return RateLimitPolicy{Capacity: 120, RefillPerSec: 2}
	case PlanTierStarter:
		return RateLimitPolicy{Capacity: 30, RefillPerSec: 0.5}
	default:
		return RateLimitPolicy{Capacity: 10, RefillPerSec: 0.2}
	}
}

// Organization is the tenant boundary. Every persisted row carries an
// organization id and every query is scoped by it.
type Organization struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	PlanTier PlanTier `json:"plan_tier"`

	// Message credits decremented per chat turn; exhausted credits surface
	// as a distinct "upgrade" condition, not a generic failure.
	MessageCredits int `json:"message_credits"`

	// Token-bucket state for the Postgres-backed rate limiter
	RateLimitTokens     float64   `json:"rate_limit_tokens"`
	RateLimitLastRefill time.Time `json:"rate_limit_last_refill"`

	Guardrails GuardrailConfig `json:"guardrails"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuardrailConfig holds the organization's safety configuration consumed by
// the judge: brand/safety rules and the fallback template per category.
type GuardrailConfig struct {
	BrandRules string `json:"brand_rules,omitempty"`

	// FallbackTemplates maps a FallbackCategory to the replacement content
	// delivered when the judge fails a response.
	FallbackTemplates map[FallbackCategory]string `json:"fallback_templates,omitempty"`
}

// FallbackTemplate returns the configured template for a category, falling
// back to a safe default decline.
func (g GuardrailConfig) FallbackTemplate(category FallbackCategory) string {
	if t, ok := g.FallbackTemplates[category]; ok && t != "" {
		return t
	}
	if t, ok := g.FallbackTemplates[FallbackDecline]; ok && t != "" {
		return t
	}
	return "I'm sorry, but I can't help with that. Is there something else I can assist you with?"
}

// Agent is a configured assistant within an organization. Conversations
// snapshot its config at creation so later edits don't retroactively change
// historical behavior.
type Agent struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`

	SystemPrompt string  `json:"system_prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`

	// EmbeddingModel and EmbeddingDimensions are fixed per agent: changing
	// the model requires re-embedding every source, since dimensionality
	// must stay internally consistent for the vector index.
	EmbeddingModel      string `json:"embedding_model"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`

	// NeedsRetraining is set when any source goes stale and cleared only
	// once all live sources are ready.
	NeedsRetraining bool `json:"needs_retraining"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigSnapshot captures the agent settings a conversation was started with
type ConfigSnapshot struct {
	SystemPrompt string  `json:"system_prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
}

// Snapshot returns the agent's current config snapshot
func (a *Agent) Snapshot() ConfigSnapshot {
	return ConfigSnapshot{
		SystemPrompt: a.SystemPrompt,
		Model:        a.Model,
		Temperature:  a.Temperature,
	}
}
