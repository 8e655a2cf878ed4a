// Package fixture loads YAML city snapshots (items plus per-user profiles
// and history) and seeds them into the feed stores. The API server uses it
// to boot in-memory mode with data; feedctl uses it to rank offline.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/profile"
)

// ErrUnknownItem is returned when user history references an item the
// fixture does not define.
var ErrUnknownItem = errors.New("fixture references unknown item")

// File is a parsed fixture.
type File struct {
	// Now pins the clock for offline ranking. Optional.
	Now      *time.Time `yaml:"now"`
	Timezone string     `yaml:"timezone"`
	Items    []Item     `yaml:"items"`
	Users    []User     `yaml:"users"`
}

// Item is a candidate as written in a fixture. Price uses listing
// descriptors ("free", "$$", "$25-40").
type Item struct {
	ID           string     `yaml:"id"`
	City         string     `yaml:"city"`
	Title        string     `yaml:"title"`
	Category     string     `yaml:"category"`
	Tags         []string   `yaml:"tags"`
	Venue        string     `yaml:"venue"`
	Address      string     `yaml:"address"`
	Neighborhood string     `yaml:"neighborhood"`
	Location     *geo.Point `yaml:"location"`
	StartsAt     *time.Time `yaml:"starts_at"`
	EndsAt       *time.Time `yaml:"ends_at"`
	Price        string     `yaml:"price"`
	Rating       float64    `yaml:"rating"`
	Reviews      int        `yaml:"reviews"`
	Vibes        []string   `yaml:"vibes"`
	Companions   []string   `yaml:"companions"`
}

// User is one user's profile and history.
type User struct {
	ID           string               `yaml:"id"`
	Preferences  []profile.Preference `yaml:"preferences"`
	VibeAffinity []string             `yaml:"vibe_affinity"`
	Companion    string               `yaml:"companion"`
	Constraints  *Constraints         `yaml:"constraints"`
	Interactions []Interaction        `yaml:"interactions"`
	Feedback     []Feedback           `yaml:"feedback"`
	Views        []View               `yaml:"views"`
}

// Constraints mirrors profile.Constraints with weekday names.
type Constraints struct {
	Days               []string   `yaml:"days"`
	Times              []string   `yaml:"times"`
	Budget             string     `yaml:"budget"`
	HomeNeighborhood   string     `yaml:"home_neighborhood"`
	Neighborhoods      []string   `yaml:"neighborhoods"`
	FreeEventsOnly     bool       `yaml:"free_events_only"`
	DiscoveryMode      bool       `yaml:"discovery_mode"`
	TravelRadiusMeters *float64   `yaml:"travel_radius_meters"`
	HomeLocation       *geo.Point `yaml:"home_location"`
}

type Interaction struct {
	Item   string `yaml:"item"`
	Status string `yaml:"status"`
	Rating *int   `yaml:"rating"`
	Note   string `yaml:"note"`
}

type Feedback struct {
	Item string    `yaml:"item"`
	Type string    `yaml:"type"`
	At   time.Time `yaml:"at"`
}

type View struct {
	Item       string    `yaml:"item"`
	Seen       int       `yaml:"seen"`
	LastShown  time.Time `yaml:"last_shown"`
	Interacted bool      `yaml:"interacted"`
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a fixture. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &file, nil
}

// Location resolves Timezone, defaulting to UTC.
func (f *File) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture timezone: %w", err)
	}
	return loc, nil
}

// Candidates converts the fixture items. Every item must normalize.
func (f *File) Candidates(createdAt time.Time) ([]item.Candidate, error) {
	out := make([]item.Candidate, 0, len(f.Items))
	for _, it := range f.Items {
		c, err := it.candidate(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (it Item) candidate(createdAt time.Time) (item.Candidate, error) {
	category, err := item.ParseCategory(it.Category)
	if err != nil {
		return item.Candidate{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	price, err := item.ParsePrice(it.Price)
	if err != nil {
		return item.Candidate{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	c := item.Candidate{
		ID:       it.ID,
		CityID:   it.City,
		Title:    it.Title,
		Category: category,
		Tags:     it.Tags,
		Venue: item.Venue{
			Name:         it.Venue,
			Address:      it.Address,
			Neighborhood: it.Neighborhood,
		},
		Location:      it.Location,
		StartsAt:      it.StartsAt,
		EndsAt:        it.EndsAt,
		Price:         price,
		Rating:        item.Rating{Value: it.Rating, Count: it.Reviews},
		VibeTags:      it.Vibes,
		CompanionTags: it.Companions,
		CreatedAt:     createdAt,
	}
	return c.Normalize()
}

// Stores are the seed targets.
type Stores struct {
	Items    item.Repository
	Profiles profile.Store
	History  history.Store
	Views    history.ViewStore
}

// Seed writes every item, profile and history entry in the fixture.
func (f *File) Seed(ctx context.Context, s Stores, now time.Time) error {
	candidates, err := f.Candidates(now)
	if err != nil {
		return err
	}
	byID := make(map[string]*item.Candidate, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if err := s.Items.Upsert(ctx, c); err != nil {
			return fmt.Errorf("failed to seed item %s: %w", c.ID, err)
		}
		byID[c.ID] = c
	}

	for _, u := range f.Users {
		if err := u.seed(ctx, s, byID, now); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.ID, err)
		}
	}
	return nil
}

func (u User) seed(ctx context.Context, s Stores, items map[string]*item.Candidate, now time.Time) error {
	prefs := &profile.Preferences{
		UserID:       u.ID,
		Categories:   u.Preferences,
		VibeAffinity: u.VibeAffinity,
	}
	if u.Companion != "" {
		companion, err := profile.ParseCompanion(u.Companion)
		if err != nil {
			return err
		}
		prefs.Companion = companion
	}
	if err := s.Profiles.SavePreferences(ctx, prefs); err != nil {
		return err
	}

	if u.Constraints != nil {
		cons, err := u.Constraints.profile(u.ID, now)
		if err != nil {
			return err
		}
		if err := s.Profiles.SaveConstraints(ctx, cons); err != nil {
			return err
		}
	}

	for _, in := range u.Interactions {
		if _, ok := items[in.Item]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, in.Item)
		}
		status, err := history.ParseStatus(in.Status)
		if err != nil {
			return err
		}
		rec := &history.InteractionRecord{
			UserID:    u.ID,
			ItemID:    in.Item,
			Status:    status,
			Rating:    in.Rating,
			Note:      in.Note,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.History.UpsertInteraction(ctx, rec); err != nil {
			return err
		}
	}

	for _, fb := range u.Feedback {
		c, ok := items[fb.Item]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, fb.Item)
		}
		ft, err := history.ParseFeedbackType(fb.Type)
		if err != nil {
			return err
		}
		at := fb.At
		if at.IsZero() {
			at = now
		}
		sig, err := history.NewFeedbackSignal(u.ID, c, ft, at)
		if err != nil {
			return err
		}
		if err := s.History.AppendFeedback(ctx, sig); err != nil {
			return err
		}
	}

	for _, v := range u.Views {
		if _, ok := items[v.Item]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, v.Item)
		}
		at := v.LastShown
		if at.IsZero() {
			at = now
		}
		for i := 0; i < v.Seen; i++ {
			if err := s.Views.Increment(ctx, u.ID, v.Item, at); err != nil {
				return err
			}
		}
		if v.Interacted {
			if err := s.Views.MarkInteracted(ctx, u.ID, v.Item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Constraints) profile(userID string, now time.Time) (*profile.Constraints, error) {
	out := profile.DefaultConstraints(userID, now)
	if c.Budget != "" {
		out.Budget = profile.Budget(strings.ToLower(c.Budget))
	}
	for _, d := range c.Days {
		wd, err := parseWeekday(d)
		if err != nil {
			return nil, err
		}
		out.Days = append(out.Days, wd)
	}
	for _, t := range c.Times {
		tod, err := profile.ParseTimeOfDay(t)
		if err != nil {
			return nil, err
		}
		out.Times = append(out.Times, tod)
	}
	out.HomeNeighborhood = c.HomeNeighborhood
	out.Neighborhoods = c.Neighborhoods
	out.FreeEventsOnly = c.FreeEventsOnly
	out.DiscoveryMode = c.DiscoveryMode
	out.TravelRadiusMeters = c.TravelRadiusMeters
	out.HomeLocation = c.HomeLocation
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseWeekday accepts full or three-letter English day names.
func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
