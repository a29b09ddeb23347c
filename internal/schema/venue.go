// Package schema defines the canonical venue record and its validator.
// A record enters as a candidate produced by the page extractor, becomes a
// validated record once Validate accepts it, and is treated as immutable
// after it lands in an aggregated result.
package schema

import (
	"regexp"
	"strings"
	"time"
)

// Category classifies how veg-friendly a venue is.
type CategoryKind string

// Supported category values, matching the source site's venue types.
const (
	CategoryVegan      CategoryKind = "vegan"
	CategoryVegetarian CategoryKind = "vegetarian"
	CategoryVegOptions CategoryKind = "veg-options"
)

// Status is the venue's current operating state.
type Status string

// Supported status values.
const (
	StatusOpenNow     Status = "open_now"
	StatusClosingSoon Status = "closing_soon"
	StatusClosed      Status = "closed"
)

// Coordinates is a geographic point. Out-of-range values reject the record;
// they are never clamped.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Location holds the address breakdown plus the map-link URL the
// coordinates were derived from.
type Location struct {
	StreetAddress string      `json:"streetAddress"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	ZipCode       string      `json:"zipCode,omitempty"`
	Country       string      `json:"country"`
	Coordinates   Coordinates `json:"coordinates"`
	GoogleMapsURL string      `json:"googleMapsUrl" validate:"required,url"`
	Neighborhood  string      `json:"neighborhood,omitempty"`
}

// Category carries the primary classification plus its display label/icon.
type Category struct {
	Primary CategoryKind `json:"primary" validate:"required,oneof=vegan vegetarian veg-options"`
	Icon    string       `json:"icon,omitempty" validate:"omitempty,url"`
	Label   string       `json:"label"`
}

// RatingBreakdown holds optional per-aspect sub-scores. A nil pointer means
// the sub-score was absent, which is distinct from a zero score.
type RatingBreakdown struct {
	Food       *float64 `json:"food,omitempty" validate:"omitempty,gte=0,lte=5"`
	Service    *float64 `json:"service,omitempty" validate:"omitempty,gte=0,lte=5"`
	Atmosphere *float64 `json:"atmosphere,omitempty" validate:"omitempty,gte=0,lte=5"`
	Value      *float64 `json:"value,omitempty" validate:"omitempty,gte=0,lte=5"`
}

// Rating aggregates the review score and count.
type Rating struct {
	Score            float64          `json:"score" validate:"gte=0,lte=5"`
	ReviewCount      int              `json:"reviewCount" validate:"gte=0"`
	HasTopRatedBadge bool             `json:"hasTopRatedBadge"`
	Breakdown        *RatingBreakdown `json:"ratingBreakdown,omitempty"`
}

// ServiceOptions flags how food reaches the customer.
type ServiceOptions struct {
	Delivery bool `json:"delivery"`
	Takeout  bool `json:"takeout"`
	DineIn   bool `json:"dineIn"`
	Catering bool `json:"catering,omitempty"`
}

// Cuisine holds tag sets and service flags. Tags keep document order and
// are never deduplicated.
type Cuisine struct {
	Tags            []string       `json:"cuisineTags"`
	ServiceOptions  ServiceOptions `json:"serviceOptions"`
	DietaryFeatures []string       `json:"dietaryFeatures,omitempty"`
}

// WeeklyHours is the optional full schedule from a detail page.
type WeeklyHours struct {
	Monday    string `json:"monday,omitempty"`
	Tuesday   string `json:"tuesday,omitempty"`
	Wednesday string `json:"wednesday,omitempty"`
	Thursday  string `json:"thursday,omitempty"`
	Friday    string `json:"friday,omitempty"`
	Saturday  string `json:"saturday,omitempty"`
	Sunday    string `json:"sunday,omitempty"`
}

// Hours carries the live status cue. StatusColor is the visual proof the
// status was derived from, nothing more.
type Hours struct {
	CurrentStatus Status       `json:"currentStatus" validate:"required,oneof=open_now closing_soon closed"`
	StatusText    string       `json:"statusText"`
	StatusColor   string       `json:"statusColor,omitempty" validate:"omitempty,oneof=green red yellow"`
	Weekly        *WeeklyHours `json:"weeklyHours,omitempty"`
}

// PriceEstimate is an optional min/max entree price range.
type PriceEstimate struct {
	Min float64 `json:"min" validate:"gt=0"`
	Max float64 `json:"max" validate:"gt=0"`
}

// Pricing holds the numeric tier and its display text. The two must agree
// per PriceRangeText; the validator rejects any disagreement.
type Pricing struct {
	PriceRange     int            `json:"priceRange" validate:"gte=1,lte=4"`
	PriceRangeText string         `json:"priceRangeText" validate:"required,oneof=$ $$ $$$ $$$$"`
	AverageEntree  *float64       `json:"averageEntreePrice,omitempty" validate:"omitempty,gt=0"`
	Estimate       *PriceEstimate `json:"priceRangeEstimate,omitempty"`
}

// Contact holds phone and digital presence fields, all optional.
type Contact struct {
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	PhoneFormatted string `json:"phoneFormatted,omitempty"`
	Website        string `json:"website,omitempty" validate:"omitempty,url"`
	OrderingURL    string `json:"onlineOrderingUrl,omitempty" validate:"omitempty,url"`
	ReservationURL string `json:"reservationUrl,omitempty" validate:"omitempty,url"`
}

// Image is a single media asset.
type Image struct {
	URL          string `json:"url" validate:"required,url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" validate:"omitempty,url"`
	AltText      string `json:"altText"`
}

// Media groups the venue imagery.
type Media struct {
	PrimaryImage     Image   `json:"primaryImage"`
	AdditionalImages []Image `json:"additionalImages,omitempty"`
}

// Metadata carries operational flags from the listing card attributes.
type Metadata struct {
	IsTopRated        bool   `json:"isTopRated"`
	IsNew             bool   `json:"isNew"`
	IsPartner         bool   `json:"isPartner"`
	OperationalStatus string `json:"operationalStatus,omitempty" validate:"omitempty,oneof=open closing_soon closed temporarily_closed"`
	SpecialNotes      string `json:"specialNotes,omitempty"`
}

// Features lists accessibility and amenity hints, when present.
type Features struct {
	WheelchairAccessible *bool    `json:"wheelchairAccessible,omitempty"`
	HasParking           *bool    `json:"hasParking,omitempty"`
	HasOutdoorSeating    *bool    `json:"hasOutdoorSeating,omitempty"`
	AcceptsReservations  *bool    `json:"acceptsReservations,omitempty"`
	Amenities            []string `json:"amenities,omitempty"`
}

// SEO carries structured-data annotations from the listing markup.
type SEO struct {
	SchemaOrgType string `json:"schemaOrgType,omitempty"`
	Position      int    `json:"position,omitempty" validate:"omitempty,gt=0"`
	CanonicalURL  string `json:"canonicalUrl,omitempty" validate:"omitempty,url"`
}

// Community holds engagement signals.
type Community struct {
	UserPhotoCount *int  `json:"userPhotoCount,omitempty" validate:"omitempty,gte=0"`
	ClaimedByOwner *bool `json:"claimedByOwner,omitempty"`
}

// SourceKind identifies which page kind a record was extracted from.
type SourceKind string

// Supported extraction sources.
const (
	SourceListing SourceKind = "listing"
	SourceDetail  SourceKind = "detail"
)

// ScrapingInfo is pipeline-assigned provenance. DataCompleteness is
// recomputed whenever a field group changes, never hand-set.
type ScrapingInfo struct {
	ScrapedAt        time.Time  `json:"scrapedAt" validate:"required"`
	Source           SourceKind `json:"source" validate:"required,oneof=listing detail"`
	SchemaVersion    string     `json:"version" validate:"required"`
	DataCompleteness float64    `json:"dataCompleteness" validate:"gte=0,lte=1"`
}

// Venue is the canonical record for one restaurant listing. Pointer groups
// are optional on a candidate; nil groups simply lower the completeness
// score. Value groups are required for validation to pass.
type Venue struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug" validate:"required"`
	URL  string `json:"url" validate:"required,url"`

	Category *Category `json:"category" validate:"required"`
	Location *Location `json:"location" validate:"required"`
	Rating   *Rating   `json:"rating" validate:"required"`
	Cuisine  *Cuisine  `json:"cuisine,omitempty"`
	Hours    *Hours    `json:"hours" validate:"required"`
	Pricing  *Pricing  `json:"pricing,omitempty"`
	Contact  *Contact  `json:"contact,omitempty"`
	Media    *Media    `json:"media,omitempty"`

	Metadata  Metadata   `json:"metadata"`
	Features  *Features  `json:"features,omitempty"`
	SEO       *SEO       `json:"seo,omitempty"`
	Community *Community `json:"community,omitempty"`

	Description string `json:"description,omitempty"`

	ScrapingInfo ScrapingInfo `json:"scrapingInfo"`
}

// SchemaVersion is stamped into every record's scrapingInfo.
const SchemaVersion = "2.0.0"

var priceRangeTexts = map[int]string{1: "$", 2: "$$", 3: "$$$", 4: "$$$$"}

// PriceRangeText maps a numeric price tier to its display text. The mapping
// is total over [1,4]; anything outside falls back to "$".
func PriceRangeText(tier int) string {
	if text, ok := priceRangeTexts[tier]; ok {
		return text
	}
	return "$"
}

var (
	slugInvalid    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-+`)
)

// GenerateSlug derives the URL slug from a venue name and its site id. It
// is a pure function; callers recompute it whenever either input changes.
func GenerateSlug(name, id string) string {
	clean := strings.ToLower(name)
	clean = slugInvalid.ReplaceAllString(clean, "")
	clean = slugWhitespace.ReplaceAllString(clean, "-")
	clean = slugHyphens.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-")
	return clean + "-" + id
}
