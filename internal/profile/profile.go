// Package profile holds a user's declared taste (category preferences, vibe
// and companion affinity) and structured constraints, plus the stores that
// persist them.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/item"
)

var (
	ErrInvalidIntensity  = errors.New("intensity must be between 1 and 5")
	ErrInvalidSentiment  = errors.New("sentiment must be LIKE or DISLIKE")
	ErrDuplicateCategory = errors.New("duplicate category preference")
	ErrInvalidBudget     = errors.New("unknown budget tier")
	ErrInvalidTimeOfDay  = errors.New("unknown time of day")
	ErrInvalidCompanion  = errors.New("unknown companion type")
	ErrInvalidRadius     = errors.New("travel radius must be positive")
)

// Sentiment is how a user feels about a category.
type Sentiment string

const (
	Like    Sentiment = "LIKE"
	Dislike Sentiment = "DISLIKE"
)

// Intensity bounds.
const (
	MinIntensity = 1
	MaxIntensity = 5
)

// Preference is one declared (category, sentiment, intensity) entry.
type Preference struct {
	Category  item.Category `json:"category" yaml:"category"`
	Sentiment Sentiment     `json:"sentiment" yaml:"sentiment"`
	Intensity int           `json:"intensity" yaml:"intensity"`
}

// Companion is who the user goes out with.
type Companion string

const (
	CompanionSolo    Companion = "solo"
	CompanionDate    Companion = "date"
	CompanionFriends Companion = "friends"
	CompanionFamily  Companion = "family"
)

// ParseCompanion accepts the four companion types case-insensitively; the
// empty string means "no preference".
func ParseCompanion(s string) (Companion, error) {
	c := Companion(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "", CompanionSolo, CompanionDate, CompanionFriends, CompanionFamily:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCompanion, s)
}

// Preferences is a user's taste profile.
type Preferences struct {
	UserID       string       `json:"user_id" yaml:"user_id"`
	Categories   []Preference `json:"categories" yaml:"categories"`
	VibeAffinity []string     `json:"vibe_affinity,omitempty" yaml:"vibe_affinity"`
	Companion    Companion    `json:"companion,omitempty" yaml:"companion"`
}

// Validate enforces intensity bounds, known sentiments and categories, and at
// most one entry per category.
func (p *Preferences) Validate() error {
	seen := make(map[item.Category]bool, len(p.Categories))
	for _, pref := range p.Categories {
		if !pref.Category.Valid() {
			return fmt.Errorf("%w: %q", item.ErrUnknownCategory, pref.Category)
		}
		if seen[pref.Category] {
			return fmt.Errorf("%w: %s", ErrDuplicateCategory, pref.Category)
		}
		seen[pref.Category] = true
		if pref.Sentiment != Like && pref.Sentiment != Dislike {
			return fmt.Errorf("%w: got %q", ErrInvalidSentiment, pref.Sentiment)
		}
		if pref.Intensity < MinIntensity || pref.Intensity > MaxIntensity {
			return fmt.Errorf("%w: %s has %d", ErrInvalidIntensity, pref.Category, pref.Intensity)
		}
	}
	if _, err := ParseCompanion(string(p.Companion)); err != nil {
		return err
	}
	return nil
}

// Lookup returns the preference for c, if any.
func (p *Preferences) Lookup(c item.Category) (Preference, bool) {
	for _, pref := range p.Categories {
		if pref.Category == c {
			return pref, true
		}
	}
	return Preference{}, false
}

// Liked returns the set of LIKE categories.
func (p *Preferences) Liked() map[item.Category]bool {
	out := make(map[item.Category]bool)
	for _, pref := range p.Categories {
		if pref.Sentiment == Like {
			out[pref.Category] = true
		}
	}
	return out
}

// Clone returns a deep copy.
func (p *Preferences) Clone() *Preferences {
	out := *p
	out.Categories = append([]Preference(nil), p.Categories...)
	out.VibeAffinity = append([]string(nil), p.VibeAffinity...)
	return &out
}

// Budget is a spending ceiling tier.
type Budget string

const (
	BudgetFree     Budget = "free"
	BudgetUnder25  Budget = "under_25"
	BudgetUnder50  Budget = "under_50"
	BudgetUnder100 Budget = "under_100"
	BudgetAny      Budget = "any"
)

// Ceiling returns the most the tier allows; ok is false for BudgetAny.
func (b Budget) Ceiling() (max float64, ok bool) {
	switch b {
	case BudgetFree:
		return 0, true
	case BudgetUnder25:
		return 25, true
	case BudgetUnder50:
		return 50, true
	case BudgetUnder100:
		return 100, true
	default:
		return 0, false
	}
}

// Valid reports whether b is a known tier. The zero value counts as any.
func (b Budget) Valid() bool {
	switch b {
	case "", BudgetFree, BudgetUnder25, BudgetUnder50, BudgetUnder100, BudgetAny:
		return true
	}
	return false
}

// TimeOfDay buckets an hour of the day.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	LateNight TimeOfDay = "late_night"
)

// TimeOfDayOf buckets t by its hour: 05-11 morning, 12-16 afternoon, 17-21
// evening, otherwise late night.
func TimeOfDayOf(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 22:
		return Evening
	default:
		return LateNight
	}
}

// ParseTimeOfDay reads a bucket name.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t := TimeOfDay(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, " ", "_"))))
	switch t {
	case Morning, Afternoon, Evening, LateNight:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
}

// Constraints are the structured filters a user has set.
type Constraints struct {
	UserID             string         `json:"user_id" yaml:"user_id"`
	Days               []time.Weekday `json:"days,omitempty" yaml:"days"`
	Times              []TimeOfDay    `json:"times,omitempty" yaml:"times"`
	Budget             Budget         `json:"budget" yaml:"budget"`
	HomeNeighborhood   string         `json:"home_neighborhood,omitempty" yaml:"home_neighborhood"`
	Neighborhoods      []string       `json:"neighborhoods,omitempty" yaml:"neighborhoods"`
	FreeEventsOnly     bool           `json:"free_events_only" yaml:"free_events_only"`
	DiscoveryMode      bool           `json:"discovery_mode" yaml:"discovery_mode"`
	TravelRadiusMeters *float64       `json:"travel_radius_meters,omitempty" yaml:"travel_radius_meters"`
	HomeLocation       *geo.Point     `json:"home_location,omitempty" yaml:"home_location"`
	CreatedAt          time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time      `json:"updated_at" yaml:"-"`
}

// DefaultConstraints is the record created on first access.
func DefaultConstraints(userID string, now time.Time) *Constraints {
	return &Constraints{UserID: userID, Budget: BudgetAny, CreatedAt: now, UpdatedAt: now}
}

// Validate checks enumerated fields and the radius.
func (c *Constraints) Validate() error {
	if !c.Budget.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBudget, c.Budget)
	}
	for _, t := range c.Times {
		if _, err := ParseTimeOfDay(string(t)); err != nil {
			return err
		}
	}
	for _, d := range c.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	if c.TravelRadiusMeters != nil && *c.TravelRadiusMeters <= 0 {
		return ErrInvalidRadius
	}
	if c.HomeLocation != nil {
		if err := c.HomeLocation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Constraints) Clone() *Constraints {
	out := *c
	out.Days = append([]time.Weekday(nil), c.Days...)
	out.Times = append([]TimeOfDay(nil), c.Times...)
	out.Neighborhoods = append([]string(nil), c.Neighborhoods...)
	if c.TravelRadiusMeters != nil {
		r := *c.TravelRadiusMeters
		out.TravelRadiusMeters = &r
	}
	if c.HomeLocation != nil {
		p := *c.HomeLocation
		out.HomeLocation = &p
	}
	return &out
}
