package ranking

import (
	"sort"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/item"
)

// Nearby is a candidate in the proximity result set.
type Nearby struct {
	Item           item.Candidate
	DistanceMeters float64
}

// NearbyWithin returns candidates with known coordinates within radius of
// center, closest first (ties by ID), at most limit of them. A limit below
// 1 means no limit.
func NearbyWithin(candidates []item.Candidate, center geo.Point, radiusMeters float64, limit int) []Nearby {
	var out []Nearby
	for i := range candidates {
		c := &candidates[i]
		if c.Location == nil {
			continue
		}
		d := geo.DistanceMeters(center, *c.Location)
		if d <= radiusMeters {
			out = append(out, Nearby{Item: *c, DistanceMeters: d})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
