package ranking

import (
	"math"

	"github.com/onnwee/citypulse/internal/history"
)

// DecayMultiplier is max(0, 1 - seen*step).
func DecayMultiplier(seen int, cfg DecayConfig) float64 {
	return math.Max(0, 1-float64(seen)*cfg.Step)
}

// DecayExcluded reports whether an item was shown more than the hard cap
// without the user ever engaging.
func DecayExcluded(v history.ViewRecord, cfg DecayConfig) bool {
	return v.SeenCount > cfg.HardCap && !v.Interacted
}

// applyDecay shrinks a positive score toward zero and pushes a negative one
// further down by the same proportion.
func applyDecay(score, multiplier float64) float64 {
	return score - math.Abs(score)*(1-multiplier)
}
