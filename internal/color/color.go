// Package color validates the hex colors used for category badges and picks
// a readable foreground for them.
package color

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var hexPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// MinContrastAA is the WCAG AA minimum contrast ratio for normal text.
const MinContrastAA = 4.5

// Foreground candidates for badge text.
const (
	Light = "#FFFFFF"
	Dark  = "#111111"
)

var (
	ErrInvalidHex           = errors.New("invalid hex color, expected #RRGGBB")
	ErrInsufficientContrast = errors.New("contrast below WCAG AA")
)

// RGB is an 8-bit sRGB color.
type RGB struct {
	R, G, B uint8
}

// IsValidHex reports whether s has the form #RRGGBB.
func IsValidHex(s string) bool {
	return hexPattern.MatchString(s)
}

// Parse converts #RRGGBB into its components.
func Parse(s string) (RGB, error) {
	if !IsValidHex(s) {
		return RGB{}, fmt.Errorf("%w: got %q", ErrInvalidHex, s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("failed to parse color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// channel linearizes one sRGB channel.
func channel(c uint8) float64 {
	v := float64(c) / 255
	if v <= 0.03928 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// Luminance returns the WCAG relative luminance of c in [0, 1].
func Luminance(c RGB) float64 {
	return 0.2126*channel(c.R) + 0.7152*channel(c.G) + 0.0722*channel(c.B)
}

// Contrast returns the WCAG contrast ratio between a and b, from 1 to 21.
func Contrast(a, b RGB) float64 {
	la, lb := Luminance(a), Luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

// TextOn returns whichever of Light or Dark reads better on background bg,
// along with the achieved ratio. It fails if bg is not a valid hex color or
// neither candidate reaches MinContrastAA.
func TextOn(bg string) (string, float64, error) {
	bgRGB, err := Parse(bg)
	if err != nil {
		return "", 0, err
	}
	light, _ := Parse(Light)
	dark, _ := Parse(Dark)

	best, ratio := Light, Contrast(light, bgRGB)
	if r := Contrast(dark, bgRGB); r > ratio {
		best, ratio = Dark, r
	}
	if ratio < MinContrastAA {
		return best, ratio, fmt.Errorf("%w: %s on %s is %.2f:1", ErrInsufficientContrast, best, bg, ratio)
	}
	return best, ratio, nil
}
