package domain

// Verdict is the safety judge's classification of a generated answer
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// FallbackCategory selects which template replaces a failed response
type FallbackCategory string

const (
	FallbackCrisis              FallbackCategory = "crisis"
	FallbackRedirectAuthorities FallbackCategory = "redirect-authorities"
	FallbackDisclaimer          FallbackCategory = "disclaimer"
	FallbackDecline             FallbackCategory = "decline"
	FallbackNone                FallbackCategory = "none"
)

// JudgeResult is the outcome of one safety judge pass. A judge call that
// itself errors is mapped to a FAIL result by the caller, never to an
// implicit pass.
type JudgeResult struct {
	Verdict  Verdict          `json:"verdict"`
	Reason   string           `json:"reason,omitempty"`
	Category FallbackCategory `json:"category"`
}

// Passed reports whether the response may be delivered as generated
func (r JudgeResult) Passed() bool {
	return r.Verdict == VerdictPass
}
