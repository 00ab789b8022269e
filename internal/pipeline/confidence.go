package pipeline

import (
	"math"
	"strings"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

// FusionWeights are the confidence fusion coefficients. They are configuration
// with calibrated defaults, not constants; zero values are honored as-is, so
// callers that want the standard calibration start from DefaultFusionWeights.
type FusionWeights struct {
	Base             float64 `yaml:"base" mapstructure:"base"`
	Retrieval        float64 `yaml:"retrieval" mapstructure:"retrieval"`
	PassBonus        float64 `yaml:"pass_bonus" mapstructure:"pass_bonus"`
	PartialBonus     float64 `yaml:"partial_bonus" mapstructure:"partial_bonus"`
	FailPenalty      float64 `yaml:"fail_penalty" mapstructure:"fail_penalty"`
	ConsistencyBonus float64 `yaml:"consistency_bonus" mapstructure:"consistency_bonus"`
}

// DefaultFusionWeights returns the calibrated default coefficients.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		Base:             0.45,
		Retrieval:        0.35,
		PassBonus:        0.15,
		PartialBonus:     0.03,
		FailPenalty:      0.20,
		ConsistencyBonus: 0.08,
	}
}

// Fuse combines the extraction signals into one final confidence score,
// rounded to three decimals and clamped to [0.05, 0.98]. The clamp bounds are
// fixed: downstream thresholds (the 0.55 low-confidence bar, the anchor gate)
// assume them. Any verifier status other than PASS or PARTIAL takes the fail
// penalty.
func (w FusionWeights) Fuse(signals model.ConfidenceSignals) float64 {
	score := w.Base*signals.BaseConfidence + w.Retrieval*signals.RetrievalScore
	switch signals.VerifierStatus {
	case model.VerifierPass:
		score += w.PassBonus
	case model.VerifierPartial:
		score += w.PartialBonus
	default:
		score -= w.FailPenalty
	}
	if signals.SelfConsistent {
		score += w.ConsistencyBonus
	}
	return math.Max(0.05, math.Min(0.98, round3(score)))
}

// FuseConfidence fuses with the default coefficients.
func FuseConfidence(signals model.ConfidenceSignals) float64 {
	return DefaultFusionWeights().Fuse(signals)
}

// SelfConsistent reports agreement between two extraction passes: equal after
// whitespace normalization and lowercasing.
func SelfConsistent(left, right string) bool {
	return strings.EqualFold(NormalizeSpace(left), NormalizeSpace(right))
}
