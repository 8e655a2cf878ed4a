package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
)

func signal(ft history.FeedbackType, cat item.Category, at time.Time, tags ...string) history.FeedbackSignal {
	return history.FeedbackSignal{UserID: "u1", ItemID: "x", Type: ft, Category: cat, Tags: tags, CreatedAt: at}
}

func TestComputeAdjustments(t *testing.T) {
	cfg := DefaultConfig().Feedback

	t.Run("more and less net out", func(t *testing.T) {
		a := ComputeAdjustments([]history.FeedbackSignal{
			signal(history.FeedbackMore, item.CategoryLiveMusic, testNow.Add(-time.Hour), "jazz"),
			signal(history.FeedbackMore, item.CategoryLiveMusic, testNow.Add(-2*time.Hour), "jazz"),
			signal(history.FeedbackLess, item.CategoryLiveMusic, testNow.Add(-3*time.Hour)),
			signal(history.FeedbackLess, item.CategoryFood, testNow.Add(-3*time.Hour)),
		}, testNow, cfg)

		if got := a.CategoryFactor(item.CategoryLiveMusic); math.Abs(got-1.05) > 1e-9 {
			t.Errorf("expected live music factor 1.05, got %v", got)
		}
		if got := a.CategoryFactor(item.CategoryFood); math.Abs(got-0.95) > 1e-9 {
			t.Errorf("expected food factor 0.95, got %v", got)
		}
		if got := a.TagFactor("jazz"); math.Abs(got-1.1) > 1e-9 {
			t.Errorf("expected jazz factor 1.1, got %v", got)
		}
		if got := a.CategoryFactor(item.CategoryArt); got != 1 {
			t.Errorf("expected neutral factor for untouched category, got %v", got)
		}
	})

	t.Run("signals outside the window are ignored", func(t *testing.T) {
		a := ComputeAdjustments([]history.FeedbackSignal{
			signal(history.FeedbackMore, item.CategoryArt, testNow.AddDate(0, 0, -91)),
			signal(history.FeedbackMore, item.CategoryArt, testNow.Add(time.Hour)),
		}, testNow, cfg)
		if got := a.CategoryFactor(item.CategoryArt); got != 1 {
			t.Errorf("expected 1, got %v", got)
		}
	})

	t.Run("hide does not move factors", func(t *testing.T) {
		a := ComputeAdjustments([]history.FeedbackSignal{
			signal(history.FeedbackHide, item.CategoryArt, testNow.Add(-time.Hour), "murals"),
		}, testNow, cfg)
		if a.CategoryFactor(item.CategoryArt) != 1 || a.TagFactor("murals") != 1 {
			t.Error("expected HIDE to leave factors neutral")
		}
	})

	t.Run("factors are bounded", func(t *testing.T) {
		var signals []history.FeedbackSignal
		for i := 0; i < 40; i++ {
			signals = append(signals, signal(history.FeedbackMore, item.CategoryBars, testNow.Add(-time.Minute), "dive", "pool"))
		}
		a := ComputeAdjustments(signals, testNow, cfg)
		if got := a.CategoryFactor(item.CategoryBars); got != 1.5 {
			t.Errorf("expected category factor capped at 1.5, got %v", got)
		}
		c := testCandidate("bar", item.CategoryBars)
		c.Tags = []string{"dive", "pool"}
		if got := a.Factor(&c); got != 1.5 {
			t.Errorf("expected combined factor capped at 1.5, got %v", got)
		}
	})
}

func TestAdjustmentsNilIsNeutral(t *testing.T) {
	var a *Adjustments
	c := testCandidate("x", item.CategoryArt)
	if a.Factor(&c) != 1 || a.Boosted(item.CategoryArt) {
		t.Error("expected nil adjustments to be neutral")
	}
}

func TestApplyFactor(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		factor   float64
		expected float64
	}{
		{name: "boost positive", score: 40, factor: 1.25, expected: 50},
		{name: "dampen positive", score: 40, factor: 0.5, expected: 20},
		{name: "boost lifts negative toward zero", score: -10, factor: 1.25, expected: -8},
		{name: "dampen pushes negative down", score: -10, factor: 0.5, expected: -20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyFactor(tt.score, tt.factor); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
