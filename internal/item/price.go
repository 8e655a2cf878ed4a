package item

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPrice is returned for price descriptors that cannot be read.
var ErrInvalidPrice = errors.New("invalid price descriptor")

// Upper bounds for dollar-sign tiers.
var dollarTiers = map[int]float64{1: 15, 2: 35, 3: 75, 4: 150}

var (
	dollarSigns = regexp.MustCompile(`^\$+$`)
	priceRange  = regexp.MustCompile(`^\$?\s*(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*\$?\s*(\d+(?:\.\d+)?)$`)
	priceSingle = regexp.MustCompile(`^\$?\s*(\d+(?:\.\d+)?)\+?$`)
)

// Price describes what attending costs. Max is the highest expected spend;
// nil means unknown.
type Price struct {
	Free bool     `json:"free"`
	Max  *float64 `json:"max,omitempty"`
}

// FreePrice is a free item.
func FreePrice() Price { return Price{Free: true} }

// PriceUpTo is a priced item costing at most max.
func PriceUpTo(max float64) Price {
	if max <= 0 {
		return FreePrice()
	}
	return Price{Max: &max}
}

// Known reports whether the cost is known.
func (p Price) Known() bool { return p.Free || p.Max != nil }

// Amount is the expected ceiling; 0 for free items, -1 when unknown.
func (p Price) Amount() float64 {
	switch {
	case p.Free:
		return 0
	case p.Max != nil:
		return *p.Max
	default:
		return -1
	}
}

func (p Price) String() string {
	switch {
	case p.Free:
		return "free"
	case p.Max != nil:
		return "$" + strconv.FormatFloat(*p.Max, 'f', -1, 64)
	default:
		return ""
	}
}

// ParsePrice reads the price descriptors found in listings: "free", "$".."$$$$",
// "$40", "40+", "$25-40". Ranges keep their upper bound. An empty
// descriptor yields an unknown price.
func ParsePrice(s string) (Price, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return Price{}, nil
	case "free", "0", "$0":
		return FreePrice(), nil
	}

	if dollarSigns.MatchString(s) {
		max, ok := dollarTiers[len(s)]
		if !ok {
			return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
		}
		return PriceUpTo(max), nil
	}
	if m := priceRange.FindStringSubmatch(s); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if hi < lo {
			return Price{}, fmt.Errorf("%w: range %q is inverted", ErrInvalidPrice, s)
		}
		return PriceUpTo(hi), nil
	}
	if m := priceSingle.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return PriceUpTo(v), nil
	}
	return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
}
