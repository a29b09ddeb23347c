package extract

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/veganvoyager/venue-crawler/internal/schema"
	"github.com/veganvoyager/venue-crawler/internal/score"
	"github.com/veganvoyager/venue-crawler/internal/scrapeerr"
)

// Selectors locates the venue-card fragments on a listing page. The values
// are site-specific configuration data; replacing them does not affect the
// pipeline's contracts.
type Selectors struct {
	VenueCard      string `mapstructure:"venue_card"`
	VenueLink      string `mapstructure:"venue_link"`
	VenueName      string `mapstructure:"venue_name"`
	VenueImage     string `mapstructure:"venue_image"`
	Description    string `mapstructure:"description"`
	RatingScore    string `mapstructure:"rating_score"`
	ReviewCount    string `mapstructure:"review_count"`
	TopRatedBadge  string `mapstructure:"top_rated_badge"`
	CategoryLabel  string `mapstructure:"category_label"`
	CategoryIcon   string `mapstructure:"category_icon"`
	CuisineTags    string `mapstructure:"cuisine_tags"`
	HoursStatus    string `mapstructure:"hours_status"`
	PriceIndicator string `mapstructure:"price_indicator"`
	PriceActive    string `mapstructure:"price_active_class"`
	Phone          string `mapstructure:"phone"`
	MapsLink       string `mapstructure:"maps_link"`
	SpecialNotes   string `mapstructure:"special_notes"`
	NextPage       string `mapstructure:"next_page"`
	TotalCount     string `mapstructure:"total_count"`
}

// DefaultSelectors matches the source site's current listing markup.
func DefaultSelectors() Selectors {
	return Selectors{
		VenueCard:      "div.venue-list-item.card-listing",
		VenueLink:      "a.venue-item-link",
		VenueName:      `h4[data-analytics="listing-card-title"]`,
		VenueImage:     "img.card-listing-image",
		Description:    "p.venue-description",
		RatingScore:    "div.rating-score",
		ReviewCount:    "div.review-count",
		TopRatedBadge:  `div[title="Top Rated Restaurant"]`,
		CategoryLabel:  "div.category-label",
		CategoryIcon:   "img.category-label-img",
		CuisineTags:    "div.cuisine-tags",
		HoursStatus:    "div.venue-hours-text",
		PriceIndicator: "span.price-range svg.price-range-item",
		PriceActive:    "text-yellow-500",
		Phone:          `a[href^="tel:"]`,
		MapsLink:       `a[href*="google.com/maps"]`,
		SpecialNotes:   "p.venue-item-note",
		NextPage:       `a[rel="next"]`,
		TotalCount:     "span.venue-count",
	}
}

// statusColorClasses maps the site's status CSS classes to color cues.
var statusColorClasses = map[string]string{
	"text-green-500":  "green",
	"text-red-500":    "red",
	"text-yellow-500": "yellow",
}

var firstIntPattern = regexp.MustCompile(`\d[\d,]*`)

// PageResult is everything one listing page yields: validated records in
// document order, the per-page rejection count, and the pagination signal.
type PageResult struct {
	Venues      []*schema.Venue
	ErrorCount  int
	HasNextPage bool
	TotalVenues int
}

// PageExtractor walks a parsed listing document, builds one candidate per
// venue card, and validates each candidate. A bundle that fails validation
// is counted and skipped; it never aborts the page.
type PageExtractor struct {
	selectors Selectors
	validator *schema.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewPageExtractor builds a PageExtractor. A nil logger is replaced by a
// no-op logger.
func NewPageExtractor(selectors Selectors, validator *schema.Validator, logger *zap.Logger) *PageExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageExtractor{
		selectors: selectors,
		validator: validator,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExtractPage produces the page's validated venues plus pagination
// metadata. The advertised total may exceed what was extractable; that is
// logged as information loss, not treated as an error.
func (pe *PageExtractor) ExtractPage(doc *goquery.Document, pageURL string) (PageResult, error) {
	if doc == nil {
		return PageResult{}, &scrapeerr.ParseError{Message: "nil document", Fragment: pageURL}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return PageResult{}, &scrapeerr.ParseError{Message: "unparseable page URL", Fragment: pageURL}
	}

	result := PageResult{}
	doc.Find(pe.selectors.VenueCard).Each(func(i int, card *goquery.Selection) {
		venue, err := pe.extractCard(card, base, i)
		if err != nil {
			result.ErrorCount++
			pe.logCardFailure(pageURL, i, err)
			return
		}
		result.Venues = append(result.Venues, venue)
	})

	result.HasNextPage = doc.Find(pe.selectors.NextPage).Length() > 0
	result.TotalVenues = pe.advertisedTotal(doc)

	if result.TotalVenues > len(result.Venues)+result.ErrorCount {
		pe.logger.Info("listing advertises more venues than the page yielded",
			zap.String("url", pageURL),
			zap.Int("advertised", result.TotalVenues),
			zap.Int("extracted", len(result.Venues)),
			zap.Int("rejected", result.ErrorCount),
		)
	}
	return result, nil
}

// extractCard turns one venue card into a validated record.
func (pe *PageExtractor) extractCard(card *goquery.Selection, base *url.URL, position int) (*schema.Venue, error) {
	sel := pe.selectors

	id := strings.TrimSpace(card.AttrOr("data-id", ""))
	if id == "" {
		return nil, &scrapeerr.ParseError{
			Message:  "venue card missing data-id",
			Fragment: snippet(card),
		}
	}
	name := strings.TrimSpace(card.Find(sel.VenueName).First().Text())
	href := card.Find(sel.VenueLink).First().AttrOr("href", "")

	mapsLink := card.Find(sel.MapsLink).First()
	mapsURL := mapsLink.AttrOr("href", "")
	coords := Coordinates(mapsURL)

	statusSel := card.Find(sel.HoursStatus).First()
	statusColor := colorFromClasses(statusSel.AttrOr("class", ""))

	candidate := &schema.Venue{
		ID:       id,
		Name:     name,
		Slug:     schema.GenerateSlug(name, id),
		URL:      resolveURL(base, href),
		Category: pe.category(card),
		Rating: &schema.Rating{
			Score:            parseScore(card.Find(sel.RatingScore).First().Text()),
			ReviewCount:      ReviewCount(card.Find(sel.ReviewCount).First().Text()),
			HasTopRatedBadge: card.Find(sel.TopRatedBadge).Length() > 0,
		},
		Hours: &schema.Hours{
			CurrentStatus: StatusFromColor(statusColor),
			StatusText:    strings.TrimSpace(statusSel.Text()),
			StatusColor:   statusColor,
		},
		Metadata: schema.Metadata{
			IsTopRated:   card.AttrOr("data-top", "") == "1",
			IsNew:        card.AttrOr("data-new", "") == "1",
			IsPartner:    card.AttrOr("data-partner", "") == "1",
			SpecialNotes: strings.TrimSpace(card.Find(sel.SpecialNotes).First().Text()),
		},
		Description: strings.TrimSpace(card.Find(sel.Description).First().Text()),
		SEO:         &schema.SEO{SchemaOrgType: "Restaurant", Position: position + 1},
	}

	if coords != nil {
		candidate.Location = &schema.Location{
			StreetAddress: strings.TrimSpace(mapsLink.Text()),
			Coordinates:   *coords,
			GoogleMapsURL: mapsURL,
		}
	}
	if tags := CuisineTags(card.Find(sel.CuisineTags).First().Text()); len(tags) > 0 {
		candidate.Cuisine = &schema.Cuisine{Tags: tags}
	}
	if phoneHref, ok := card.Find(sel.Phone).First().Attr("href"); ok {
		if phone := Phone(phoneHref); phone != "" {
			candidate.Contact = &schema.Contact{PhoneNumber: phone}
		}
	}
	if active := pe.activePriceCount(card); active > 0 {
		tier := PriceTier(active)
		candidate.Pricing = &schema.Pricing{
			PriceRange:     tier,
			PriceRangeText: schema.PriceRangeText(tier),
		}
	}
	if imgSrc, ok := card.Find(sel.VenueImage).First().Attr("src"); ok && imgSrc != "" {
		candidate.Media = &schema.Media{
			PrimaryImage: schema.Image{
				URL:          resolveURL(base, imgSrc),
				ThumbnailURL: ResizeImageURL(resolveURL(base, imgSrc), ImageThumbnail),
				AltText:      card.Find(sel.VenueImage).First().AttrOr("alt", ""),
			},
		}
	}

	candidate.ScrapingInfo = schema.ScrapingInfo{
		ScrapedAt:        pe.now(),
		Source:           schema.SourceListing,
		SchemaVersion:    schema.SchemaVersion,
		DataCompleteness: score.Completeness(candidate),
	}

	return pe.validator.Validate(candidate)
}

func (pe *PageExtractor) category(card *goquery.Selection) *schema.Category {
	kind := strings.TrimSpace(card.AttrOr("data-type", ""))
	label := strings.TrimSpace(card.Find(pe.selectors.CategoryLabel).First().Text())
	if kind == "" {
		kind = categoryFromLabel(label)
	}
	if kind == "" {
		return nil
	}
	cat := &schema.Category{Primary: schema.CategoryKind(kind), Label: label}
	if icon, ok := card.Find(pe.selectors.CategoryIcon).First().Attr("src"); ok {
		cat.Icon = icon
	}
	return cat
}

func (pe *PageExtractor) activePriceCount(card *goquery.Selection) int {
	count := 0
	card.Find(pe.selectors.PriceIndicator).Each(func(_ int, s *goquery.Selection) {
		if s.HasClass(pe.selectors.PriceActive) {
			count++
		}
	})
	return count
}

func (pe *PageExtractor) advertisedTotal(doc *goquery.Document) int {
	text := doc.Find(pe.selectors.TotalCount).First().Text()
	match := firstIntPattern.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func (pe *PageExtractor) logCardFailure(pageURL string, position int, err error) {
	var vErr *scrapeerr.ValidationError
	if errors.As(err, &vErr) {
		pe.logger.Warn("candidate rejected by validator",
			zap.String("url", pageURL),
			zap.Int("position", position),
			zap.String("venue_id", vErr.CandidateID),
			zap.String("venue_name", vErr.CandidateName),
			zap.Any("violations", vErr.Violations),
		)
		return
	}
	pe.logger.Warn("venue card could not be parsed",
		zap.String("url", pageURL),
		zap.Int("position", position),
		zap.Error(err),
	)
}

func categoryFromLabel(label string) string {
	switch l := strings.ToLower(label); {
	case strings.Contains(l, "veg-options"), strings.Contains(l, "veg options"):
		return string(schema.CategoryVegOptions)
	case strings.Contains(l, "vegetarian"):
		return string(schema.CategoryVegetarian)
	case strings.Contains(l, "vegan"):
		return string(schema.CategoryVegan)
	default:
		return ""
	}
}

func colorFromClasses(classAttr string) string {
	for _, class := range strings.Fields(classAttr) {
		if color, ok := statusColorClasses[class]; ok {
			return color
		}
	}
	return ""
}

func parseScore(text string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return score
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func snippet(s *goquery.Selection) string {
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	if len(html) > 200 {
		return html[:200]
	}
	return html
}
