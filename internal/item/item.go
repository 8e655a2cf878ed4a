// Package item models feed candidates (events and places), the closed
// category table, and the repositories that supply candidates per city.
package item

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/validate"
)

var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("item not found")

	// ErrMalformed is returned by Normalize for items that cannot be ranked.
	ErrMalformed = errors.New("malformed item")
)

// Venue is where an item takes place.
type Venue struct {
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
}

// Rating is an external aggregate rating.
type Rating struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// Candidate is an event or place eligible for a city's feed.
// Events have StartsAt; places are timeless.
type Candidate struct {
	ID            string     `json:"id"`
	CityID        string     `json:"city_id"`
	Title         string     `json:"title"`
	Category      Category   `json:"category"`
	Tags          []string   `json:"tags,omitempty"`
	Venue         Venue      `json:"venue"`
	Location      *geo.Point `json:"location,omitempty"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	Price         Price      `json:"price"`
	Rating        Rating     `json:"rating"`
	VibeTags      []string   `json:"vibe_tags,omitempty"`
	CompanionTags []string   `json:"companion_tags,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsEvent reports whether the candidate has a time window.
func (c *Candidate) IsEvent() bool {
	return c.StartsAt != nil
}

// Ended reports whether an event is over at now. Events without an end time
// are over once they have started. Places never end.
func (c *Candidate) Ended(now time.Time) bool {
	if c.StartsAt == nil {
		return false
	}
	end := *c.StartsAt
	if c.EndsAt != nil {
		end = *c.EndsAt
	}
	return end.Before(now)
}

// Popularity is the rating weighted by the log of its vote count, so a 4.6
// with 2,000 reviews outranks a 5.0 with two.
func (c *Candidate) Popularity() float64 {
	if c.Rating.Count <= 0 {
		return 0
	}
	return c.Rating.Value * math.Log1p(float64(c.Rating.Count))
}

// Overlaps reports whether the candidate is active at some point in w.
func (c *Candidate) Overlaps(w Window) bool {
	if c.StartsAt == nil {
		return true
	}
	end := *c.StartsAt
	if c.EndsAt != nil {
		end = *c.EndsAt
	}
	return !c.StartsAt.After(w.To) && !end.Before(w.From)
}

// Normalize returns a copy of c with canonical tag sets, or ErrMalformed
// describing the first problem found.
func (c Candidate) Normalize() (Candidate, error) {
	if c.ID == "" {
		return c, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if !c.Category.Valid() {
		return c, fmt.Errorf("%w: item %s: %w", ErrMalformed, c.ID, ErrUnknownCategory)
	}
	if c.Rating.Value < 0 || c.Rating.Value > 5 || c.Rating.Count < 0 || math.IsNaN(c.Rating.Value) {
		return c, fmt.Errorf("%w: item %s: rating %v out of range", ErrMalformed, c.ID, c.Rating)
	}
	if c.Location != nil {
		if err := c.Location.Validate(); err != nil {
			return c, fmt.Errorf("%w: item %s: %w", ErrMalformed, c.ID, err)
		}
	}
	if c.StartsAt != nil && c.EndsAt != nil && c.EndsAt.Before(*c.StartsAt) {
		return c, fmt.Errorf("%w: item %s: ends before it starts", ErrMalformed, c.ID)
	}

	var err error
	if c.Tags, err = validate.Tags(c.Tags); err != nil {
		return c, fmt.Errorf("%w: item %s: %w", ErrMalformed, c.ID, err)
	}
	if c.VibeTags, err = validate.Tags(c.VibeTags); err != nil {
		return c, fmt.Errorf("%w: item %s vibe: %w", ErrMalformed, c.ID, err)
	}
	if c.CompanionTags, err = validate.Tags(c.CompanionTags); err != nil {
		return c, fmt.Errorf("%w: item %s companion: %w", ErrMalformed, c.ID, err)
	}
	return c, nil
}

// Clone returns a deep copy.
func (c *Candidate) Clone() Candidate {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	out.VibeTags = append([]string(nil), c.VibeTags...)
	out.CompanionTags = append([]string(nil), c.CompanionTags...)
	if c.Location != nil {
		loc := *c.Location
		out.Location = &loc
	}
	if c.StartsAt != nil {
		t := *c.StartsAt
		out.StartsAt = &t
	}
	if c.EndsAt != nil {
		t := *c.EndsAt
		out.EndsAt = &t
	}
	if c.Price.Max != nil {
		m := *c.Price.Max
		out.Price.Max = &m
	}
	return out
}

// Window bounds the time range candidates must overlap.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
