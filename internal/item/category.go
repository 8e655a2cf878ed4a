package item

import (
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/citypulse/internal/color"
)

// Category is the closed set of item kinds shown in the feed.
type Category string

const (
	CategoryArt           Category = "ART"
	CategoryLiveMusic     Category = "LIVE_MUSIC"
	CategoryBars          Category = "BARS"
	CategoryFood          Category = "FOOD"
	CategoryCoffee        Category = "COFFEE"
	CategoryOutdoors      Category = "OUTDOORS"
	CategoryFitness       Category = "FITNESS"
	CategorySeasonal      Category = "SEASONAL"
	CategoryPopup         Category = "POPUP"
	CategoryRestaurant    Category = "RESTAURANT"
	CategoryActivityVenue Category = "ACTIVITY_VENUE"
	CategoryOther         Category = "OTHER"
)

// ErrUnknownCategory is returned when a string names no category.
var ErrUnknownCategory = errors.New("unknown category")

// CategoryInfo is the display metadata owned by a category.
type CategoryInfo struct {
	Category    Category `json:"category"`
	Label       string   `json:"label"`
	Color       string   `json:"color"`
	TextColor   string   `json:"text_color"`
	DefaultTags []string `json:"default_tags"`
}

// categoryTable is the single source of category labels and colors.
// Order is display order.
var categoryTable = []CategoryInfo{
	{Category: CategoryArt, Label: "Art", Color: "#7C3AED", DefaultTags: []string{"gallery", "museum", "exhibit"}},
	{Category: CategoryLiveMusic, Label: "Live Music", Color: "#DB2777", DefaultTags: []string{"concert", "live band", "dj"}},
	{Category: CategoryBars, Label: "Bars", Color: "#B45309", DefaultTags: []string{"cocktails", "happy hour", "nightlife"}},
	{Category: CategoryFood, Label: "Food", Color: "#EA580C", DefaultTags: []string{"street food", "market", "tasting"}},
	{Category: CategoryCoffee, Label: "Coffee", Color: "#78350F", DefaultTags: []string{"cafe", "espresso", "work friendly"}},
	{Category: CategoryOutdoors, Label: "Outdoors", Color: "#15803D", DefaultTags: []string{"park", "hike", "waterfront"}},
	{Category: CategoryFitness, Label: "Fitness", Color: "#0E7490", DefaultTags: []string{"yoga", "run club", "climbing"}},
	{Category: CategorySeasonal, Label: "Seasonal", Color: "#FACC15", DefaultTags: []string{"festival", "holiday", "fair"}},
	{Category: CategoryPopup, Label: "Pop-up", Color: "#F472B6", DefaultTags: []string{"limited time", "market", "launch"}},
	{Category: CategoryRestaurant, Label: "Restaurant", Color: "#DC2626", DefaultTags: []string{"dinner", "brunch", "reservation"}},
	{Category: CategoryActivityVenue, Label: "Activity Venue", Color: "#2563EB", DefaultTags: []string{"bowling", "arcade", "escape room"}},
	{Category: CategoryOther, Label: "Other", Color: "#6B7280", DefaultTags: nil},
}

var categoryIndex = buildCategoryIndex()

// buildCategoryIndex fills in text colors and panics on a bad table entry.
func buildCategoryIndex() map[Category]int {
	idx := make(map[Category]int, len(categoryTable))
	for i := range categoryTable {
		info := &categoryTable[i]
		text, _, err := color.TextOn(info.Color)
		if err != nil {
			panic(fmt.Sprintf("item: category %s: %v", info.Category, err))
		}
		info.TextColor = text
		idx[info.Category] = i
	}
	return idx
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	_, ok := categoryIndex[c]
	return ok
}

// Info returns the display metadata for c. Unknown categories get the OTHER
// entry.
func (c Category) Info() CategoryInfo {
	i, ok := categoryIndex[c]
	if !ok {
		i = categoryIndex[CategoryOther]
	}
	info := categoryTable[i]
	info.DefaultTags = append([]string(nil), info.DefaultTags...)
	return info
}

// Label is the human readable name of c.
func (c Category) Label() string {
	return c.Info().Label
}

// ParseCategory accepts enum names case-insensitively, with spaces or dashes
// in place of underscores ("live music", "Activity-Venue").
func ParseCategory(s string) (Category, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	c := Category(norm)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Categories returns the full table in display order.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(categoryTable))
	for i, info := range categoryTable {
		out[i] = info.Category.Info()
	}
	return out
}
