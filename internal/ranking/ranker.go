package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
)

// Ranked is a candidate with its score and explanation.
type Ranked struct {
	Item      item.Candidate
	Breakdown Breakdown

	// RawScore is the Breakdown total. Score is RawScore after feedback
	// and decay; pages are ordered by Score.
	RawScore float64
	Factor   float64
	Decay    float64
	Score    float64

	Reason         Reason
	Exploration    bool
	DistanceMeters *float64
}

// Skip records a candidate dropped because its data could not be ranked.
type Skip struct {
	ItemID string
	Err    error
}

// Input is everything one ranking request needs.
type Input struct {
	Now      time.Time
	CityID   string
	PageSize int
	Page     int // zero-based

	Candidates   []item.Candidate
	User         UserContext
	Feedback     []history.FeedbackSignal
	Hidden       []string
	Interactions []history.InteractionRecord
	Views        map[string]history.ViewRecord

	// GeoCenter and RadiusMeters drive the nearby result set. GeoCenter
	// also serves as the travel-radius center when the user has no home
	// location.
	GeoCenter    *geo.Point
	RadiusMeters float64

	// Unpersonalized orders by popularity alone and disables exploration.
	// Hard filters and the decay exclusion still apply.
	Unpersonalized bool
}

// Result is one page of the feed.
type Result struct {
	// Items descend by Score except exploration picks, which sit at fixed
	// slots regardless of their score.
	Items   []Ranked
	Page    int
	HasMore bool
	Nearby  []Nearby

	// Eligible counts candidates that survived filtering.
	Eligible int

	// FilteredByConstraints is set when there were candidates but filters
	// removed every one of them.
	FilteredByConstraints bool

	Filtered         map[FilterReason]int
	Skipped          []Skip
	ExplorationPicks int
}

// Ranker runs the ranking pipeline with a fixed configuration.
type Ranker struct {
	cfg    *Config
	scorer *Scorer
}

// NewRanker creates a Ranker. A nil config uses DefaultConfig.
func NewRanker(cfg *Config) *Ranker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Ranker{cfg: cfg, scorer: NewScorer(cfg.Weights)}
}

// Config returns the ranker's configuration.
func (r *Ranker) Config() *Config {
	return r.cfg
}

// PageSize clamps n into [1, max], using the default for n < 1.
func (r *Ranker) PageSize(n int) int {
	switch {
	case n < 1:
		return r.cfg.Page.DefaultSize
	case n > r.cfg.Page.MaxSize:
		return r.cfg.Page.MaxSize
	default:
		return n
	}
}

// Rank produces the requested page.
func (r *Ranker) Rank(in *Input) *Result {
	size := r.PageSize(in.PageSize)
	res := &Result{Page: in.Page, Filtered: make(map[FilterReason]int)}

	fc := &filterContext{
		cityID:      in.CityID,
		now:         in.Now,
		constraints: in.User.Constraints,
		center:      in.GeoCenter,
		hidden:      make(map[string]bool, len(in.Hidden)),
		statuses:    make(map[string]history.Status, len(in.Interactions)),
	}
	for _, id := range in.Hidden {
		fc.hidden[id] = true
	}
	for _, rec := range in.Interactions {
		fc.statuses[rec.ItemID] = rec.Status
	}

	var adj *Adjustments
	if !in.Unpersonalized {
		adj = ComputeAdjustments(in.Feedback, in.Now, r.cfg.Feedback)
	}

	eligible := make([]item.Candidate, 0, len(in.Candidates))
	pool := make([]*Ranked, 0, len(in.Candidates))
	for i := range in.Candidates {
		c, err := in.Candidates[i].Normalize()
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{ItemID: in.Candidates[i].ID, Err: err})
			res.Filtered[FilterMalformed]++
			continue
		}
		if reason := fc.hardFilter(&c); reason != "" {
			res.Filtered[reason]++
			continue
		}
		if v, ok := in.Views[c.ID]; ok && DecayExcluded(v, r.cfg.Decay) {
			res.Filtered[FilterDecayed]++
			continue
		}

		ranked := r.score(&c, in, adj)
		if math.IsNaN(ranked.Score) || math.IsInf(ranked.Score, 0) {
			res.Skipped = append(res.Skipped, Skip{ItemID: c.ID, Err: item.ErrMalformed})
			res.Filtered[FilterMalformed]++
			continue
		}
		eligible = append(eligible, c)
		pool = append(pool, ranked)
	}

	res.Eligible = len(pool)
	if len(in.Candidates) > 0 && len(pool) == 0 {
		res.FilteredByConstraints = len(in.Candidates) > res.Filtered[FilterMalformed]
	}

	sortByScore(pool)

	var exploration []*Ranked
	slots := 0
	if !in.Unpersonalized {
		exploration = r.explorationPool(pool, in, adj)
		fraction := r.cfg.Exploration.Fraction
		if in.User.Constraints != nil && in.User.Constraints.DiscoveryMode {
			fraction = r.cfg.Exploration.DiscoveryFraction
		}
		slots = explorationSlots(size, fraction)
	}

	pb := newPageBuilder(pool, exploration, size, categoryCap(size, r.cfg.Diversity.MaxShareDivisor), slots)
	for p := 0; p <= in.Page && !pb.done(); p++ {
		page := pb.next()
		if p == in.Page {
			res.Items = page
		}
	}
	res.HasMore = !pb.done()

	for i := range res.Items {
		if res.Items[i].Exploration {
			res.ExplorationPicks++
		}
	}

	if center := r.distanceCenter(in); center != nil {
		for i := range res.Items {
			if loc := res.Items[i].Item.Location; loc != nil {
				d := geo.DistanceMeters(*center, *loc)
				res.Items[i].DistanceMeters = &d
			}
		}
	}
	if in.GeoCenter != nil && in.RadiusMeters > 0 {
		res.Nearby = NearbyWithin(eligible, *in.GeoCenter, in.RadiusMeters, size)
	}
	return res
}

func (r *Ranker) score(c *item.Candidate, in *Input, adj *Adjustments) *Ranked {
	if in.Unpersonalized {
		p := c.Popularity()
		return &Ranked{Item: *c, RawScore: p, Factor: 1, Decay: 1, Score: p}
	}

	b := r.scorer.Score(&in.User, c)
	raw := b.Total()
	factor := adj.Factor(c)
	decay := 1.0
	if v, ok := in.Views[c.ID]; ok {
		decay = DecayMultiplier(v.SeenCount, r.cfg.Decay)
	}

	return &Ranked{
		Item:      *c,
		Breakdown: b,
		RawScore:  raw,
		Factor:    factor,
		Decay:     decay,
		Score:     applyDecay(applyFactor(raw, factor), decay),
		Reason:    b.Reason(),
	}
}

// explorationPool returns off-profile candidates by popularity. The profile
// is the user's liked categories plus categories feedback has boosted; a
// user with neither is profiled by the categories of the top scored items.
func (r *Ranker) explorationPool(pool []*Ranked, in *Input, adj *Adjustments) []*Ranked {
	onProfile := make(map[item.Category]bool)
	if prefs := in.User.Preferences; prefs != nil {
		for c := range prefs.Liked() {
			onProfile[c] = true
		}
	}
	for _, rk := range pool {
		if adj.Boosted(rk.Item.Category) {
			onProfile[rk.Item.Category] = true
		}
	}
	if len(onProfile) == 0 {
		for i := 0; i < len(pool) && i < r.cfg.Exploration.ColdStartTopN; i++ {
			onProfile[pool[i].Item.Category] = true
		}
	}

	var out []*Ranked
	for _, rk := range pool {
		if !onProfile[rk.Item.Category] {
			out = append(out, rk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Item.Popularity(), out[j].Item.Popularity()
		if pi != pj {
			return pi > pj
		}
		return newerFirst(&out[i].Item, &out[j].Item)
	})
	return out
}

func (r *Ranker) distanceCenter(in *Input) *geo.Point {
	if in.GeoCenter != nil {
		return in.GeoCenter
	}
	if in.User.Constraints != nil {
		return in.User.Constraints.HomeLocation
	}
	return nil
}

// sortByScore orders by Score descending, then creation time descending,
// then ID.
func sortByScore(pool []*Ranked) {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return newerFirst(&pool[i].Item, &pool[j].Item)
	})
}

func newerFirst(a, b *item.Candidate) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
