package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven/mocks"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driving"
)

// collectorSink gathers streamed tokens, optionally failing to simulate a
// client disconnect
type collectorSink struct {
	tokens  []string
	sendErr error
}

func (s *collectorSink) Send(token string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.tokens = append(s.tokens, token)
	return nil
}

type chatFixture struct {
	orchestrator  *ChatOrchestrator
	orgs          *mocks.MockOrganizationStore
	conversations *mocks.MockConversationStore
	rateLimits    *mocks.MockRateLimitStore
	llm           *mocks.MockCompletionService
	judgeLLM      *mocks.MockCompletionService
	usage         *mocks.MockUsageStore
	publisher     *mocks.MockStreamPublisher
	index         *mocks.MockVectorIndex
	chunks        *mocks.MockChunkStore
	sources       *mocks.MockSourceStore
	embedding     *mocks.MockEmbeddingService
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		orgs:          mocks.NewMockOrganizationStore(),
		conversations: mocks.NewMockConversationStore(),
		rateLimits:    mocks.NewMockRateLimitStore(),
		llm:           mocks.NewMockCompletionService(),
		judgeLLM:      mocks.NewMockCompletionService(),
		usage:         mocks.NewMockUsageStore(),
		publisher:     mocks.NewMockStreamPublisher(),
		index:         mocks.NewMockVectorIndex(),
		chunks:        mocks.NewMockChunkStore(),
		sources:       mocks.NewMockSourceStore(),
		embedding:     mocks.NewMockEmbeddingService(),
	}
	f.judgeLLM.CompleteResponse = `{"verdict":"pass","reason":"ok","category":"none"}`

	retriever := NewRetriever(RetrieverConfig{
		ChunkStore:  f.chunks,
		SourceStore: f.sources,
		Index:       f.index,
		Embedding:   f.embedding,
	})
	judge := NewSafetyJudge(SafetyJudgeConfig{LLM: f.judgeLLM, Model: "judge-model"})
	f.orchestrator = NewChatOrchestrator(ChatOrchestratorConfig{
		OrganizationStore: f.orgs,
		ConversationStore: f.conversations,
		RateLimitStore:    f.rateLimits,
		LLM:               f.llm,
		Retriever:         retriever,
		Judge:             judge,
		Usage:             NewUsageRecorder(UsageRecorderConfig{Store: f.usage}),
		Publisher:         f.publisher,
	})

	f.orgs.AddOrganization(&domain.Organization{
		ID:             "org-1",
		PlanTier:       domain.PlanTierPro,
		MessageCredits: 100,
		Guardrails: domain.GuardrailConfig{
			FallbackTemplates: map[domain.FallbackCategory]string{
				domain.FallbackDecline: "Sorry, I can't help with that.",
				domain.FallbackCrisis:  "Please reach out to a crisis line.",
			},
		},
	})
	f.orgs.AddAgent(&domain.Agent{
		ID:             "agent-1",
		OrganizationID: "org-1",
		SystemPrompt:   "You are a support assistant.",
		Model:          "gpt-4o-mini",
		Temperature:    0.2,
	})
	return f
}

func chatRequest(content string) driving.ChatRequest {
	return driving.ChatRequest{
		OrganizationID: "org-1",
		AgentID:        "agent-1",
		VisitorID:      "visitor-1",
		Messages:       []domain.ChatTurn{{Role: domain.RoleUser, Content: content}},
	}
}

func TestChatStreamHappyPath(t *testing.T) {
	f := newChatFixture()
	sink := &collectorSink{}

	result, err := f.orchestrator.Stream(context.Background(), chatRequest("What are your hours?"), sink)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, "Hello, world.", result.Content)
	assert.Equal(t, domain.VerdictPass, result.JudgeVerdict)
	assert.Equal(t, "Hello, world.", strings.Join(sink.tokens, ""))

	// Both turns are durable
	messages, err := f.conversations.ListMessages(context.Background(), "org-1", result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.True(t, messages[1].Final)
	assert.NotEmpty(t, messages[1].StreamID)
	assert.Equal(t, "Hello, world.", messages[1].Content)
	assert.Equal(t, 20, messages[1].PromptTokens)

	// Stream completion was announced and usage recorded
	assert.NotEmpty(t, f.publisher.EventsOfType(domain.EventStreamDone))
	assert.Equal(t, 1, f.usage.Count())
}

func TestChatStreamPublishesCheckpoints(t *testing.T) {
	f := newChatFixture()
	f.llm.StreamTokens = []string{"First sentence.", " Second", " sentence."}

	result, err := f.orchestrator.Stream(context.Background(), chatRequest("hi"), &collectorSink{})
	require.NoError(t, err)

	checkpoints := f.publisher.EventsOfType(domain.EventStreamCheckpoint)
	require.NotEmpty(t, checkpoints)
	// The first checkpoint lands at the first sentence boundary
	assert.Equal(t, "First sentence.", checkpoints[0].Payload["content"])
	assert.Equal(t, result.MessageID, checkpoints[0].Payload["message_id"])

	// Subject is the stream id, the resumption handle
	msg := f.conversations.GetMessage(result.MessageID)
	require.NotNil(t, msg)
	assert.Equal(t, msg.StreamID, checkpoints[0].Subject)
}

func TestChatRateLimited(t *testing.T) {
	f := newChatFixture()

	// Drain the pro-tier bucket
	ctx := context.Background()
	policy := domain.PolicyForPlan(domain.PlanTierPro)
	for i := 0; i < policy.Capacity; i++ {
		allowed, err := f.rateLimits.Allow(ctx, "org-1", policy)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	_, err := f.orchestrator.Stream(ctx, chatRequest("hello"), &collectorSink{})
	require.ErrorIs(t, err, domain.ErrRateLimited)

	// A throttled request never burns a credit
	org, _ := f.orgs.GetOrganization(ctx, "org-1")
	assert.Equal(t, 100, org.MessageCredits)
}

func TestChatCreditsExhausted(t *testing.T) {
	f := newChatFixture()
	f.orgs.AddOrganization(&domain.Organization{
		ID:             "org-broke",
		PlanTier:       domain.PlanTierFree,
		MessageCredits: 0,
	})

	req := chatRequest("hello")
	req.OrganizationID = "org-broke"
	req.AgentID = "agent-1"

	_, err := f.orchestrator.Stream(context.Background(), req, &collectorSink{})
	require.ErrorIs(t, err, domain.ErrCreditsExhausted)
}

func TestChatJudgeFailReplacesContent(t *testing.T) {
	f := newChatFixture()
	f.judgeLLM.CompleteResponse = `{"verdict":"fail","reason":"off-brand","category":"decline"}`

	result, err := f.orchestrator.Stream(context.Background(), chatRequest("question"), &collectorSink{})
	require.NoError(t, err)

	assert.Equal(t, "Sorry, I can't help with that.", result.Content)
	assert.Equal(t, domain.VerdictFail, result.JudgeVerdict)
	assert.Empty(t, result.Citations)

	// The fallback, not the generation, is what's durable
	msg := f.conversations.GetMessage(result.MessageID)
	require.NotNil(t, msg)
	assert.Equal(t, "Sorry, I can't help with that.", msg.Content)
	assert.True(t, msg.Final)
}

func TestChatJudgeErrorFailsSafe(t *testing.T) {
	f := newChatFixture()
	f.judgeLLM.CompleteErr = errors.New("judge down")

	result, err := f.orchestrator.Stream(context.Background(), chatRequest("question"), &collectorSink{})
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictFail, result.JudgeVerdict)
	assert.Equal(t, "Sorry, I can't help with that.", result.Content)
}

func TestChatSkipJudgeDeliversRawContent(t *testing.T) {
	f := newChatFixture()
	f.judgeLLM.CompleteErr = errors.New("judge down")

	req := chatRequest("question")
	req.SkipJudge = true
	result, err := f.orchestrator.Stream(context.Background(), req, &collectorSink{})
	require.NoError(t, err)

	assert.Equal(t, "Hello, world.", result.Content)
	assert.Equal(t, domain.VerdictPass, result.JudgeVerdict)
	assert.Equal(t, 0, f.judgeLLM.CompleteCalls)
}

func TestChatGenerationErrorDegradesToApology(t *testing.T) {
	f := newChatFixture()
	f.llm.StreamErr = errors.New("model exploded with internal details")

	result, err := f.orchestrator.Stream(context.Background(), chatRequest("question"), &collectorSink{})
	require.NoError(t, err)

	assert.Equal(t, apologyMessage, result.Content)
	assert.NotContains(t, result.Content, "exploded")

	msg := f.conversations.GetMessage(result.MessageID)
	require.NotNil(t, msg)
	assert.Equal(t, apologyMessage, msg.Content)
	assert.True(t, msg.Final)
}

func TestChatClientDisconnectKeepsPersisting(t *testing.T) {
	f := newChatFixture()
	sink := &collectorSink{sendErr: errors.New("broken pipe")}

	result, err := f.orchestrator.Stream(context.Background(), chatRequest("question"), sink)
	require.NoError(t, err)

	// Nothing was delivered, but the full message is durable
	assert.Empty(t, sink.tokens)
	msg := f.conversations.GetMessage(result.MessageID)
	require.NotNil(t, msg)
	assert.Equal(t, "Hello, world.", msg.Content)
	assert.True(t, msg.Final)
}

func TestChatReusesConversationSnapshot(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	first, err := f.orchestrator.Stream(ctx, chatRequest("first question"), &collectorSink{})
	require.NoError(t, err)

	// Agent config changes after the conversation started
	agent, _ := f.orgs.GetAgent(ctx, "org-1", "agent-1")
	agent.Model = "some-newer-model"
	require.NoError(t, f.orgs.UpdateAgent(ctx, agent))

	req := chatRequest("second question")
	req.ConversationID = first.ConversationID
	second, err := f.orchestrator.Stream(ctx, req, &collectorSink{})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	// The snapshot, not the live agent, drives generation
	assert.Equal(t, "gpt-4o-mini", f.llm.LastRequest.Model)

	messages, _ := f.conversations.ListMessages(ctx, "org-1", first.ConversationID)
	assert.Len(t, messages, 4)
}

func TestChatRejectsInvalidTurns(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	req := chatRequest("x")
	req.Messages = nil
	_, err := f.orchestrator.Stream(ctx, req, &collectorSink{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req.Messages = []domain.ChatTurn{{Role: domain.RoleAssistant, Content: "I speak last"}}
	_, err = f.orchestrator.Stream(ctx, req, &collectorSink{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req.Messages = []domain.ChatTurn{{Role: domain.RoleUser, Content: "   "}}
	_, err = f.orchestrator.Stream(ctx, req, &collectorSink{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChatRetrievalAttachesCitations(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	src := domain.NewSource("org-1", "agent-1", "policy doc", domain.SourceTypeText)
	src.Status = domain.SourceStatusReady
	require.NoError(t, f.sources.Create(ctx, src))

	vec, _ := f.embedding.EmbedQuery(ctx, "refund policy")
	chunk := &domain.Chunk{
		ID:             domain.GenerateID(),
		SourceID:       src.ID,
		OrganizationID: "org-1",
		AgentID:        "agent-1",
		Content:        "Refunds are accepted within thirty days.",
		Embedding:      vec,
	}
	require.NoError(t, f.chunks.ReplaceForSource(ctx, src.ID, []*domain.Chunk{chunk}))
	require.NoError(t, f.index.Upsert(ctx, []*domain.Chunk{chunk}))

	result, err := f.orchestrator.Stream(ctx, chatRequest("refund policy"), &collectorSink{})
	require.NoError(t, err)

	require.Len(t, result.Citations, 1)
	assert.Equal(t, chunk.ID, result.Citations[0].ChunkID)
	assert.Equal(t, src.ID, result.Citations[0].SourceID)

	// Retrieved content rides in the system prompt as delimited data
	assert.Contains(t, f.llm.LastRequest.SystemPrompt, "<context>")
	assert.Contains(t, f.llm.LastRequest.SystemPrompt, chunk.Content)

	// The judge reviews the answer against the same retrieved material
	require.Len(t, f.judgeLLM.LastRequest.Turns, 1)
	assert.Contains(t, f.judgeLLM.LastRequest.Turns[0].Content, chunk.Content)
}

func TestBoundHistoryTruncatesOldTurns(t *testing.T) {
	long := strings.Repeat("w", 800) // 200 tokens per turn
	var turns []domain.ChatTurn
	for i := 0; i < 30; i++ {
		turns = append(turns, domain.ChatTurn{Role: domain.RoleUser, Content: long})
	}

	bounded := boundHistory(turns, 1000)
	require.NotEmpty(t, bounded)
	assert.Equal(t, historyTruncationMarker, bounded[0].Content)
	assert.Less(t, len(bounded), len(turns))

	// Most recent turns survive
	assert.Equal(t, turns[len(turns)-1], bounded[len(bounded)-1])
}

func TestBoundHistoryKeepsShortConversations(t *testing.T) {
	turns := []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleUser, Content: "what are your hours?"},
	}
	bounded := boundHistory(turns, 1000)
	assert.Equal(t, turns, bounded)
}

func TestEndsAtSentence(t *testing.T) {
	assert.True(t, endsAtSentence("done."))
	assert.True(t, endsAtSentence("done!\n"))
	assert.True(t, endsAtSentence("really? "))
	assert.False(t, endsAtSentence("not yet"))
	assert.False(t, endsAtSentence("   "))
}
