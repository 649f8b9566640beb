package domain

import "testing"

func TestPolicyForPlan(t *testing.T) {
	tests := []struct {
		tier     PlanTier
		capacity int
	}{
		{PlanTierPro, 120},
		{PlanTierStarter, 30},
		{PlanTierFree, 10},
		{PlanTier("unknown"), 10},
	}
	for _, tt := range tests {
		if got := PolicyForPlan(tt.tier); got.Capacity != tt.capacity {
			t.Errorf("PolicyForPlan(%s).Capacity = %d, want %d", tt.tier, got.Capacity, tt.capacity)
		}
	}
}

func TestFallbackTemplate(t *testing.T) {
	g := GuardrailConfig{
		FallbackTemplates: map[FallbackCategory]string{
			FallbackCrisis:  "Please reach out to a crisis line.",
			FallbackDecline: "Sorry, I can't help with that.",
		},
	}

	if got := g.FallbackTemplate(FallbackCrisis); got != "Please reach out to a crisis line." {
		t.Errorf("unexpected crisis template: %q", got)
	}
	// Unconfigured category falls back to the decline template
	if got := g.FallbackTemplate(FallbackDisclaimer); got != "Sorry, I can't help with that." {
		t.Errorf("unexpected disclaimer fallback: %q", got)
	}

	// No templates at all falls back to the built-in default
	empty := GuardrailConfig{}
	if got := empty.FallbackTemplate(FallbackDecline); got == "" {
		t.Error("expected non-empty built-in default")
	}
}

func TestAgentSnapshot(t *testing.T) {
	agent := &Agent{
		SystemPrompt: "You are a support bot.",
		Model:        "gpt-4o-mini",
		Temperature:  0.3,
	}
	snap := agent.Snapshot()

	if snap.SystemPrompt != agent.SystemPrompt || snap.Model != agent.Model || snap.Temperature != agent.Temperature {
		t.Errorf("snapshot does not match agent: %+v", snap)
	}

	// Later edits to the agent must not affect the snapshot
	agent.SystemPrompt = "You are a sales bot."
	if snap.SystemPrompt != "You are a support bot." {
		t.Error("snapshot changed after agent edit")
	}
}
