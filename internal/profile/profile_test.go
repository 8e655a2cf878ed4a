package profile

import (
	"errors"
	"testing"
	"time"

	"github.com/onnwee/citypulse/internal/item"
)

func TestPreferences_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   Preferences
		wantErr error
	}{
		{
			name: "valid",
			prefs: Preferences{Categories: []Preference{
				{Category: item.CategoryArt, Sentiment: Like, Intensity: 5},
				{Category: item.CategoryBars, Sentiment: Dislike, Intensity: 1},
			}, Companion: CompanionDate},
		},
		{
			name:    "intensity too low",
			prefs:   Preferences{Categories: []Preference{{Category: item.CategoryArt, Sentiment: Like, Intensity: 0}}},
			wantErr: ErrInvalidIntensity,
		},
		{
			name:    "intensity too high",
			prefs:   Preferences{Categories: []Preference{{Category: item.CategoryArt, Sentiment: Like, Intensity: 6}}},
			wantErr: ErrInvalidIntensity,
		},
		{
			name: "duplicate category",
			prefs: Preferences{Categories: []Preference{
				{Category: item.CategoryArt, Sentiment: Like, Intensity: 3},
				{Category: item.CategoryArt, Sentiment: Dislike, Intensity: 3},
			}},
			wantErr: ErrDuplicateCategory,
		},
		{
			name:    "unknown sentiment",
			prefs:   Preferences{Categories: []Preference{{Category: item.CategoryArt, Sentiment: "MEH", Intensity: 3}}},
			wantErr: ErrInvalidSentiment,
		},
		{
			name:    "unknown category",
			prefs:   Preferences{Categories: []Preference{{Category: "KARAOKE", Sentiment: Like, Intensity: 3}}},
			wantErr: item.ErrUnknownCategory,
		},
		{
			name:    "unknown companion",
			prefs:   Preferences{Companion: "coworkers"},
			wantErr: ErrInvalidCompanion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreferences_LikedAndLookup(t *testing.T) {
	p := Preferences{Categories: []Preference{
		{Category: item.CategoryArt, Sentiment: Like, Intensity: 4},
		{Category: item.CategoryBars, Sentiment: Dislike, Intensity: 2},
	}}

	liked := p.Liked()
	if !liked[item.CategoryArt] || liked[item.CategoryBars] || len(liked) != 1 {
		t.Errorf("Liked() = %v", liked)
	}

	pref, ok := p.Lookup(item.CategoryBars)
	if !ok || pref.Sentiment != Dislike || pref.Intensity != 2 {
		t.Errorf("Lookup(BARS) = %+v, %v", pref, ok)
	}
	if _, ok := p.Lookup(item.CategoryFood); ok {
		t.Error("Lookup(FOOD) should miss")
	}
}

func TestBudget_Ceiling(t *testing.T) {
	tests := []struct {
		budget Budget
		max    float64
		ok     bool
	}{
		{BudgetFree, 0, true},
		{BudgetUnder25, 25, true},
		{BudgetUnder50, 50, true},
		{BudgetUnder100, 100, true},
		{BudgetAny, 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.budget), func(t *testing.T) {
			max, ok := tt.budget.Ceiling()
			if max != tt.max || ok != tt.ok {
				t.Errorf("Ceiling() = (%v, %v), want (%v, %v)", max, ok, tt.max, tt.ok)
			}
		})
	}
}

func TestTimeOfDayOf(t *testing.T) {
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{0, LateNight},
		{4, LateNight},
		{5, Morning},
		{11, Morning},
		{12, Afternoon},
		{16, Afternoon},
		{17, Evening},
		{21, Evening},
		{22, LateNight},
	}

	for _, tt := range tests {
		if got := TimeOfDayOf(day.Add(time.Duration(tt.hour) * time.Hour)); got != tt.want {
			t.Errorf("TimeOfDayOf(%02d:00) = %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	if got, err := ParseTimeOfDay("Late Night"); err != nil || got != LateNight {
		t.Errorf("ParseTimeOfDay(\"Late Night\") = %q, %v", got, err)
	}
	if _, err := ParseTimeOfDay("brunch"); !errors.Is(err, ErrInvalidTimeOfDay) {
		t.Errorf("ParseTimeOfDay(brunch) error = %v", err)
	}
}

func TestConstraints_Validate(t *testing.T) {
	negative := -5.0
	tests := []struct {
		name    string
		c       Constraints
		wantErr bool
	}{
		{name: "defaults", c: *DefaultConstraints("u", time.Time{})},
		{name: "zero budget is any", c: Constraints{}},
		{name: "bad budget", c: Constraints{Budget: "cheap"}, wantErr: true},
		{name: "bad time", c: Constraints{Times: []TimeOfDay{"noon"}}, wantErr: true},
		{name: "bad weekday", c: Constraints{Days: []time.Weekday{9}}, wantErr: true},
		{name: "negative radius", c: Constraints{TravelRadiusMeters: &negative}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
