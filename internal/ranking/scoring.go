package ranking

import (
	"slices"
	"strings"
	"time"

	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/profile"
)

// Reason is the human-readable explanation attached to a ranked item.
// The empty Reason means no sub-score was positive.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonCategory     Reason = "category match"
	ReasonVibe         Reason = "vibe match"
	ReasonCompanion    Reason = "companion match"
	ReasonBudget       Reason = "within budget"
	ReasonNeighborhood Reason = "neighborhood match"
	ReasonTiming       Reason = "good timing"
)

// Breakdown holds the weighted sub-scores for one candidate.
type Breakdown struct {
	Category     float64 `json:"category"`
	Neighborhood float64 `json:"neighborhood"`
	Vibe         float64 `json:"vibe"`
	Companion    float64 `json:"companion"`
	Budget       float64 `json:"budget"`
	Timing       float64 `json:"timing"`
}

// Total sums the sub-scores.
func (b Breakdown) Total() float64 {
	return b.Category + b.Neighborhood + b.Vibe + b.Companion + b.Budget + b.Timing
}

// Reason returns the largest positive contribution. Ties go to the earlier
// entry in category, vibe, companion, budget, neighborhood, timing order.
func (b Breakdown) Reason() Reason {
	ordered := [...]struct {
		reason Reason
		value  float64
	}{
		{ReasonCategory, b.Category},
		{ReasonVibe, b.Vibe},
		{ReasonCompanion, b.Companion},
		{ReasonBudget, b.Budget},
		{ReasonNeighborhood, b.Neighborhood},
		{ReasonTiming, b.Timing},
	}

	best, bestValue := ReasonNone, 0.0
	for _, o := range ordered {
		if o.value > bestValue {
			best, bestValue = o.reason, o.value
		}
	}
	return best
}

// UserContext is everything about the user the scorer reads.
type UserContext struct {
	Preferences *profile.Preferences
	Constraints *profile.Constraints

	// Companion overrides Preferences.Companion for this request.
	Companion profile.Companion

	// Location is the city's time zone for day and time-of-day matching.
	// Nil means UTC.
	Location *time.Location
}

func (u *UserContext) companion() profile.Companion {
	if u.Companion != "" {
		return u.Companion
	}
	if u.Preferences != nil {
		return u.Preferences.Companion
	}
	return ""
}

// Scorer computes Breakdowns with fixed weights.
type Scorer struct {
	w Weights
}

// NewScorer creates a Scorer.
func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Score computes the weighted sub-scores of c for u.
func (s *Scorer) Score(u *UserContext, c *item.Candidate) Breakdown {
	prefs := u.Preferences
	if prefs == nil {
		prefs = &profile.Preferences{}
	}
	cons := u.Constraints
	if cons == nil {
		cons = &profile.Constraints{}
	}

	return Breakdown{
		Category:     s.category(prefs, c),
		Neighborhood: s.neighborhood(cons, c),
		Vibe:         s.vibe(prefs, c),
		Companion:    s.companionMatch(u.companion(), c),
		Budget:       s.budget(cons, c),
		Timing:       s.timing(cons, c, u.Location),
	}
}

// category maps intensity 1..5 linearly onto 0.2..1.0 of the weight; a
// dislike subtracts DislikeScale of that.
func (s *Scorer) category(p *profile.Preferences, c *item.Candidate) float64 {
	pref, ok := p.Lookup(c.Category)
	if !ok {
		return 0
	}
	scaled := s.w.Category * float64(pref.Intensity) / profile.MaxIntensity
	if pref.Sentiment == profile.Dislike {
		return -s.w.DislikeScale * scaled
	}
	return scaled
}

func (s *Scorer) neighborhood(cons *profile.Constraints, c *item.Candidate) float64 {
	hood := strings.TrimSpace(c.Venue.Neighborhood)
	if hood == "" {
		return 0
	}
	if strings.EqualFold(hood, strings.TrimSpace(cons.HomeNeighborhood)) {
		return s.w.Neighborhood
	}
	for _, n := range cons.Neighborhoods {
		if strings.EqualFold(hood, strings.TrimSpace(n)) {
			return s.w.Neighborhood
		}
	}
	return 0
}

// vibe awards the weight in proportion to how many of the user's vibes the
// item matches. A vibe matches when either string contains the other, so
// "cozy" matches "cozy jazz bar".
func (s *Scorer) vibe(p *profile.Preferences, c *item.Candidate) float64 {
	var wanted []string
	for _, v := range p.VibeAffinity {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			wanted = append(wanted, v)
		}
	}
	if len(wanted) == 0 || len(c.VibeTags) == 0 {
		return 0
	}

	matches := 0
	for _, want := range wanted {
		for _, tag := range c.VibeTags {
			tag = strings.ToLower(tag)
			if strings.Contains(tag, want) || strings.Contains(want, tag) {
				matches++
				break
			}
		}
	}
	return s.w.Vibe * float64(matches) / float64(len(wanted))
}

func (s *Scorer) companionMatch(want profile.Companion, c *item.Candidate) float64 {
	if want == "" {
		return 0
	}
	for _, tag := range c.CompanionTags {
		if strings.EqualFold(tag, string(want)) {
			return s.w.Companion
		}
	}
	return 0
}

// budget rewards free items, every item under a tier with no ceiling, and
// priced items that fit an explicit ceiling. Items over the ceiling never
// reach the scorer.
func (s *Scorer) budget(cons *profile.Constraints, c *item.Candidate) float64 {
	if c.Price.Free {
		return s.w.Budget
	}
	ceiling, ok := cons.Budget.Ceiling()
	if !ok {
		return s.w.Budget
	}
	if c.Price.Max == nil {
		return 0
	}
	if *c.Price.Max <= ceiling {
		return s.w.Budget
	}
	return 0
}

// timing requires a timed item and at least one preference set; every set
// the user filled in must match.
func (s *Scorer) timing(cons *profile.Constraints, c *item.Candidate, loc *time.Location) float64 {
	if c.StartsAt == nil || (len(cons.Days) == 0 && len(cons.Times) == 0) {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}
	start := c.StartsAt.In(loc)

	if len(cons.Days) > 0 && !slices.Contains(cons.Days, start.Weekday()) {
		return 0
	}
	if len(cons.Times) > 0 && !slices.Contains(cons.Times, profile.TimeOfDayOf(start)) {
		return 0
	}
	return s.w.Timing
}
