package ranking

import (
	"time"

	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
)

// Adjustments are per-category and per-tag multiplicative factors derived
// from a user's MORE and LESS feedback.
type Adjustments struct {
	categories map[item.Category]float64
	tags       map[string]float64
	maxAdjust  float64
}

// ComputeAdjustments aggregates signals created in [now - window, now].
// Each category and tag gets 1 + clamp((more - less) * step, ±maxAdjust).
// HIDE does not move factors; hidden items are filtered instead.
func ComputeAdjustments(signals []history.FeedbackSignal, now time.Time, cfg FeedbackConfig) *Adjustments {
	since := now.AddDate(0, 0, -cfg.WindowDays)

	catNet := make(map[item.Category]int)
	tagNet := make(map[string]int)
	for i := range signals {
		sig := &signals[i]
		if sig.CreatedAt.Before(since) || sig.CreatedAt.After(now) {
			continue
		}
		var delta int
		switch sig.Type {
		case history.FeedbackMore:
			delta = 1
		case history.FeedbackLess:
			delta = -1
		default:
			continue
		}
		catNet[sig.Category] += delta
		for _, tag := range sig.Tags {
			tagNet[tag] += delta
		}
	}

	a := &Adjustments{
		categories: make(map[item.Category]float64, len(catNet)),
		tags:       make(map[string]float64, len(tagNet)),
		maxAdjust:  cfg.MaxAdjust,
	}
	for c, net := range catNet {
		a.categories[c] = 1 + clamp(float64(net)*cfg.Step, -cfg.MaxAdjust, cfg.MaxAdjust)
	}
	for t, net := range tagNet {
		a.tags[t] = 1 + clamp(float64(net)*cfg.Step, -cfg.MaxAdjust, cfg.MaxAdjust)
	}
	return a
}

// CategoryFactor is 1 for categories without feedback. A nil Adjustments
// is neutral everywhere.
func (a *Adjustments) CategoryFactor(c item.Category) float64 {
	if a == nil {
		return 1
	}
	if f, ok := a.categories[c]; ok {
		return f
	}
	return 1
}

// TagFactor is 1 for tags without feedback.
func (a *Adjustments) TagFactor(tag string) float64 {
	if a == nil {
		return 1
	}
	if f, ok := a.tags[tag]; ok {
		return f
	}
	return 1
}

// Factor combines the category factor with the factors of c's tags, in tag
// order, and caps the product at 1 ± maxAdjust.
func (a *Adjustments) Factor(c *item.Candidate) float64 {
	if a == nil {
		return 1
	}
	f := a.CategoryFactor(c.Category)
	for _, tag := range c.Tags {
		f *= a.TagFactor(tag)
	}
	return clamp(f, 1-a.maxAdjust, 1+a.maxAdjust)
}

// Boosted reports whether feedback has raised c above neutral.
func (a *Adjustments) Boosted(c item.Category) bool {
	return a.CategoryFactor(c) > 1
}

// applyFactor scales score so a factor above 1 always helps: positive scores
// are multiplied, negative scores divided.
func applyFactor(score, factor float64) float64 {
	if score < 0 {
		return score / factor
	}
	return score * factor
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
