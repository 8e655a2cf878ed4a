package ranking

import (
	"time"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/profile"
)

// FilterReason names the hard filter that removed a candidate.
type FilterReason string

const (
	FilterCity      FilterReason = "city_mismatch"
	FilterNotFree   FilterReason = "not_free"
	FilterBudget    FilterReason = "over_budget"
	FilterRadius    FilterReason = "out_of_radius"
	FilterEnded     FilterReason = "ended"
	FilterHidden    FilterReason = "hidden"
	FilterPassed    FilterReason = "passed"
	FilterDone      FilterReason = "done"
	FilterDecayed   FilterReason = "decayed"
	FilterMalformed FilterReason = "malformed"
)

// Constraint reports whether the filter comes from the user's own
// constraints, as opposed to history or data hygiene.
func (r FilterReason) Constraint() bool {
	switch r {
	case FilterNotFree, FilterBudget, FilterRadius:
		return true
	}
	return false
}

// filterContext is the per-request state hard filters read.
type filterContext struct {
	cityID      string
	now         time.Time
	constraints *profile.Constraints
	center      *geo.Point
	hidden      map[string]bool
	statuses    map[string]history.Status
}

// radiusCenter is the user's home location, else the request's geo center.
func (f *filterContext) radiusCenter() *geo.Point {
	if f.constraints != nil && f.constraints.HomeLocation != nil {
		return f.constraints.HomeLocation
	}
	return f.center
}

// hardFilter returns the first filter that excludes c, or "" to keep it.
// Unknown data (no price, no coordinates) never excludes.
func (f *filterContext) hardFilter(c *item.Candidate) FilterReason {
	if f.cityID != "" && c.CityID != f.cityID {
		return FilterCity
	}
	if f.hidden[c.ID] {
		return FilterHidden
	}
	switch f.statuses[c.ID] {
	case history.StatusPass:
		return FilterPassed
	case history.StatusDone:
		if c.IsEvent() {
			return FilterDone
		}
	}
	if c.Ended(f.now) {
		return FilterEnded
	}

	cons := f.constraints
	if cons == nil {
		return ""
	}
	if cons.FreeEventsOnly && !c.Price.Free {
		return FilterNotFree
	}
	if ceiling, ok := cons.Budget.Ceiling(); ok && !c.Price.Free && c.Price.Max != nil && *c.Price.Max > ceiling {
		return FilterBudget
	}
	if cons.TravelRadiusMeters != nil && c.Location != nil {
		if center := f.radiusCenter(); center != nil && !geo.Within(*center, *c.Location, *cons.TravelRadiusMeters) {
			return FilterRadius
		}
	}
	return ""
}
