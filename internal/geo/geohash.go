// Package geo provides distance math and coarse location encoding for feed items.
package geo

import "strings"

// DefaultPrecision is the geohash length used for public item locations.
// Six characters is roughly a 1.2km x 0.6km cell: enough to place a venue in
// a neighborhood without exposing the exact door.
const DefaultPrecision = 6

// base32 is the geohash alphabet (no a, i, l, o).
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode returns the geohash of (lat, lng) with the given length.
// A precision below 1 falls back to DefaultPrecision.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var out strings.Builder
	out.Grow(precision)

	var ch byte
	bit := 0
	lngTurn := true
	for out.Len() < precision {
		if lngTurn {
			mid := (lngLo + lngHi) / 2
			if lng > mid {
				ch |= 1 << (4 - bit)
				lngLo = mid
			} else {
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat > mid {
				ch |= 1 << (4 - bit)
				latLo = mid
			} else {
				latHi = mid
			}
		}
		lngTurn = !lngTurn

		if bit++; bit == 5 {
			out.WriteByte(base32[ch])
			bit, ch = 0, 0
		}
	}
	return out.String()
}
