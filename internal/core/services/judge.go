package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// judgeSystemPrompt instructs the judge model to return a strict JSON
// verdict. Anything that doesn't parse is treated as a failure, never as an
// implicit pass.
const judgeSystemPrompt = `You are a safety reviewer for a customer support assistant.
Evaluate the assistant's draft answer against the user's question and the organization's rules.
Respond with a single JSON object and nothing else:
{"verdict":"pass"|"fail","reason":"...","category":"crisis"|"redirect-authorities"|"disclaimer"|"decline"|"none"}
Fail the answer if it gives medical, legal, or financial advice, responds unsafely to self-harm or crisis content, violates the organization's rules, or makes claims unsupported by the provided context.`

// SafetyJudge gates generated answers before delivery. A judge error is a
// FAIL verdict: the system degrades to a safe fallback, never to an
// unreviewed answer.
type SafetyJudge struct {
	llm    driven.CompletionService
	model  string
	logger *slog.Logger
}

// SafetyJudgeConfig holds dependencies for SafetyJudge.
type SafetyJudgeConfig struct {
	LLM    driven.CompletionService
	Model  string
	Logger *slog.Logger
}

// NewSafetyJudge creates a new safety judge.
func NewSafetyJudge(cfg SafetyJudgeConfig) *SafetyJudge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SafetyJudge{llm: cfg.LLM, model: cfg.Model, logger: logger}
}

// judgeChunkExcerptChars bounds each chunk's excerpt in the judge's context
// summary. The judge needs enough text to check grounding, not the full
// prompt-sized context block.
const judgeChunkExcerptChars = 400

// summarizeContext condenses the retrieved chunks into the excerpt block the
// judge checks the answer's claims against.
func summarizeContext(ranked []domain.RankedChunk) string {
	if len(ranked) == 0 {
		return ""
	}
	var b strings.Builder
	for i, rc := range ranked {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		excerpt := rc.Chunk.Content
		if len(excerpt) > judgeChunkExcerptChars {
			excerpt = excerpt[:judgeChunkExcerptChars] + "..."
		}
		b.WriteString(excerpt)
	}
	return b.String()
}

type judgeVerdictPayload struct {
	Verdict  string `json:"verdict"`
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

// Evaluate reviews a draft answer against the context it was generated from.
// contextSummary is the condensed retrieved material the grounding check
// compares claims against; brandRules are the organization's own guardrail
// text, appended to the judge's instructions.
func (j *SafetyJudge) Evaluate(ctx context.Context, question, answer, contextSummary, brandRules string) domain.JudgeResult {
	prompt := judgeSystemPrompt
	if brandRules != "" {
		prompt += "\n\nOrganization rules:\n" + brandRules
	}

	contextBlock := contextSummary
	if contextBlock == "" {
		contextBlock = "(no context was retrieved)"
	}
	userContent := fmt.Sprintf("User question:\n%s\n\nRetrieved context:\n%s\n\nDraft answer:\n%s",
		question, contextBlock, answer)
	result, err := j.llm.Complete(ctx, driven.CompletionRequest{
		Model:        j.model,
		Temperature:  0,
		MaxTokens:    300,
		SystemPrompt: prompt,
		Turns:        []domain.ChatTurn{{Role: domain.RoleUser, Content: userContent}},
	})
	if err != nil {
		j.logger.Warn("judge call failed, failing safe", "error", err)
		return failSafeResult(question, "judge unavailable")
	}

	verdict, parseErr := parseVerdict(result.Text)
	if parseErr != nil {
		j.logger.Warn("judge returned unparseable verdict, failing safe",
			"error", parseErr, "raw", truncateForLog(result.Text, 200))
		return failSafeResult(question, "unparseable judge verdict")
	}
	return verdict
}

// parseVerdict extracts the JSON verdict object from the judge's response.
// Models sometimes wrap JSON in prose or code fences; only the outermost
// object is consulted.
func parseVerdict(raw string) (domain.JudgeResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.JudgeResult{}, fmt.Errorf("no JSON object in judge response")
	}

	var payload judgeVerdictPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return domain.JudgeResult{}, fmt.Errorf("invalid judge JSON: %w", err)
	}

	switch payload.Verdict {
	case string(domain.VerdictPass), string(domain.VerdictFail):
	default:
		return domain.JudgeResult{}, fmt.Errorf("unknown verdict %q", payload.Verdict)
	}

	category := domain.FallbackCategory(payload.Category)
	switch category {
	case domain.FallbackCrisis, domain.FallbackRedirectAuthorities,
		domain.FallbackDisclaimer, domain.FallbackDecline, domain.FallbackNone:
	default:
		category = domain.FallbackDecline
	}

	return domain.JudgeResult{
		Verdict:  domain.Verdict(payload.Verdict),
		Reason:   payload.Reason,
		Category: category,
	}, nil
}

// failSafeResult builds the FAIL verdict used when the judge itself cannot
// be consulted. The category is classified from the question text so crisis
// content still gets the crisis template rather than a generic decline.
func failSafeResult(question, reason string) domain.JudgeResult {
	return domain.JudgeResult{
		Verdict:  domain.VerdictFail,
		Reason:   reason,
		Category: classifyFallback(question),
	}
}

// crisisTerms and authorityTerms drive the keyword classification used only
// on the fail-safe path.
var (
	crisisTerms    = []string{"suicide", "kill myself", "self-harm", "hurt myself", "end my life"}
	authorityTerms = []string{"emergency", "overdose", "poison", "heart attack", "crime in progress"}
)

func classifyFallback(text string) domain.FallbackCategory {
	lower := strings.ToLower(text)
	for _, term := range crisisTerms {
		if strings.Contains(lower, term) {
			return domain.FallbackCrisis
		}
	}
	for _, term := range authorityTerms {
		if strings.Contains(lower, term) {
			return domain.FallbackRedirectAuthorities
		}
	}
	return domain.FallbackDecline
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
