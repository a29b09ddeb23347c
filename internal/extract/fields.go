// Package extract turns raw listing-page fragments into typed venue fields
// and whole candidate records. The field-level helpers here are pure and do
// no I/O; the page-level extractor in page.go walks a parsed document.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/veganvoyager/venue-crawler/internal/schema"
)

var (
	coordsPattern      = regexp.MustCompile(`q=(-?\d+\.?\d*),(-?\d+\.?\d*)`)
	reviewCountPattern = regexp.MustCompile(`\((\d+)\)`)
	imageSizePattern   = regexp.MustCompile(`/\d+/`)
	phoneStrip         = regexp.MustCompile(`[^\d+\-() ]`)
)

// Coordinates parses a map-link URL containing q=<lat>,<lng>. It returns
// nil when the pattern is absent or a component fails to parse; it never
// substitutes a synthetic coordinate.
func Coordinates(mapsURL string) *schema.Coordinates {
	match := coordsPattern.FindStringSubmatch(mapsURL)
	if match == nil {
		return nil
	}
	lat, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return nil
	}
	return &schema.Coordinates{Lat: lat, Lng: lng}
}

// PriceTier counts active price indicators and clamps into [1,4]. The
// clamp is acceptable here only because the source renders at most four
// symbols; zero active symbols still means the cheapest tier.
func PriceTier(activeIndicators int) int {
	if activeIndicators < 1 {
		return 1
	}
	if activeIndicators > 4 {
		return 4
	}
	return activeIndicators
}

// StatusFromColor maps the tri-color visual cue to an operating status. An
// unrecognized cue falls back to closed, the conservative reading.
func StatusFromColor(color string) schema.Status {
	switch strings.ToLower(strings.TrimSpace(color)) {
	case "green":
		return schema.StatusOpenNow
	case "yellow":
		return schema.StatusClosingSoon
	case "red":
		return schema.StatusClosed
	default:
		return schema.StatusClosed
	}
}

// CuisineTags splits a comma-delimited tag string. Order is preserved and
// duplicates pass through; empty entries are dropped.
func CuisineTags(text string) []string {
	parts := strings.Split(text, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// ReviewCount extracts the first parenthesized integer from free text,
// e.g. "(81)" -> 81. No match yields 0; this field does not distinguish
// "zero reviews" from "unknown".
func ReviewCount(text string) int {
	match := reviewCountPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// ImageSize selects a size bucket for ResizeImageURL.
type ImageSize string

// Supported image size buckets and their pixel tokens on the source CDN.
const (
	ImageThumbnail ImageSize = "thumbnail"
	ImageMedium    ImageSize = "medium"
	ImageLarge     ImageSize = "large"
)

var imageSizeTokens = map[ImageSize]string{
	ImageThumbnail: "150",
	ImageMedium:    "500",
	ImageLarge:     "1024",
}

// ResizeImageURL rewrites the first /<digits>/ path segment of an image URL
// to the requested size bucket. URLs without the token shape pass through
// unchanged.
func ResizeImageURL(imageURL string, size ImageSize) string {
	token, ok := imageSizeTokens[size]
	if !ok {
		return imageURL
	}
	if !imageSizePattern.MatchString(imageURL) {
		return imageURL
	}
	replaced := false
	return imageSizePattern.ReplaceAllStringFunc(imageURL, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return "/" + token + "/"
	})
}

// Phone strips a leading tel: prefix and any characters that do not belong
// in a phone number, keeping +, digits, parentheses, hyphens, and spaces.
func Phone(raw string) string {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "tel:")
	s = phoneStrip.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
