// Package tier limits what a result exposes based on the caller's
// subscription.
package tier

import "earmark/internal/analysis"

// Feature names reported in Deliverable.Withheld.
const (
	FeatureTranscript = "transcript"
	FeatureChat       = "chat"
)

// Deliverable is a result shaped for presentation.
type Deliverable struct {
	Result    analysis.Result
	Tier      analysis.Tier
	IsLimited bool
	// Withheld lists features the tier does not unlock.
	Withheld []string
}

// Shape derives the view of result that tier may see. The input is never
// modified.
func Shape(result analysis.Result, tier analysis.Tier) Deliverable {
	out := result.Clone()
	if tier.HasSubscription() {
		return Deliverable{Result: out, Tier: tier}
	}
	out.Transcript = nil
	return Deliverable{
		Result:    out,
		Tier:      analysis.TierFree,
		IsLimited: true,
		Withheld:  []string{FeatureTranscript, FeatureChat},
	}
}
