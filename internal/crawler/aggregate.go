package crawler

import (
	"errors"
	"strings"

	"github.com/veganvoyager/venue-crawler/internal/schema"
)

// ErrNoResults is returned when aggregation is asked to combine nothing.
var ErrNoResults = errors.New("no crawl results to combine")

// Combine merges the ordered per-page or per-slice results of one city into
// a single CrawlResult. Venue order is preserved across the inputs; counts
// are summed. The first result supplies the city identity, and an advertised
// total beats a summed one so an incomplete crawl stays visible.
func Combine(results []CrawlResult) (CrawlResult, error) {
	if len(results) == 0 {
		return CrawlResult{}, ErrNoResults
	}

	combined := CrawlResult{
		City:   results[0].City,
		State:  results[0].State,
		URL:    results[0].URL,
		Venues: []*schema.Venue{},
	}
	for _, r := range results {
		combined.Venues = append(combined.Venues, r.Venues...)
		combined.PagesScraped += r.PagesScraped
		combined.ErrorCount += r.ErrorCount
		combined.TotalVenues += r.TotalVenues
		combined.LowCompleteness += r.LowCompleteness
		if r.Failed {
			combined.Failed = true
			if combined.FailureNote == "" {
				combined.FailureNote = r.FailureNote
			}
		}
	}
	return combined, nil
}

// SummaryStats describes one finished batch for reporting: crawl headline
// numbers plus per-venue breakdowns across every city.
type SummaryStats struct {
	Cities          int            `json:"cities"`
	FailedCities    int            `json:"failedCities"`
	Venues          int            `json:"venues"`
	Pages           int            `json:"pages"`
	Errors          int            `json:"errors"`
	LowCompleteness int            `json:"lowCompletenessCount"`
	MeanVenues      float64        `json:"meanVenuesPerCity"`
	ByCategory      map[string]int `json:"byCategory"`
	ByPriceRange    map[string]int `json:"byPriceRange"`
	AvgRating       float64        `json:"avgRating"`
	TopRated        int            `json:"topRatedCount"`
	WithCoordinates int            `json:"withCoordinates"`
	WithPhone       int            `json:"withPhone"`
	OpenNow         int            `json:"openNow"`
}

// Summarize reduces a batch to its summary. AvgRating averages only venues
// with a nonzero score; venues without pricing land in the "Unknown"
// price bucket.
func Summarize(batch BatchResult) SummaryStats {
	stats := SummaryStats{
		Cities:       len(batch.Results),
		ByCategory:   map[string]int{},
		ByPriceRange: map[string]int{},
	}
	ratingSum := 0.0
	rated := 0
	for _, r := range batch.Results {
		stats.Venues += len(r.Venues)
		stats.Pages += r.PagesScraped
		stats.Errors += r.ErrorCount
		stats.LowCompleteness += r.LowCompleteness
		if r.Failed {
			stats.FailedCities++
		}
		for _, v := range r.Venues {
			if v.Category != nil {
				stats.ByCategory[string(v.Category.Primary)]++
			}
			stats.ByPriceRange[priceBucket(v)]++
			if v.Rating != nil && v.Rating.Score > 0 {
				ratingSum += v.Rating.Score
				rated++
			}
			if v.Metadata.IsTopRated || (v.Rating != nil && v.Rating.HasTopRatedBadge) {
				stats.TopRated++
			}
			if v.Location != nil {
				stats.WithCoordinates++
			}
			if v.Contact != nil && v.Contact.PhoneNumber != "" {
				stats.WithPhone++
			}
			if v.Hours != nil && v.Hours.CurrentStatus == schema.StatusOpenNow {
				stats.OpenNow++
			}
		}
	}
	if stats.Cities > 0 {
		stats.MeanVenues = float64(stats.Venues) / float64(stats.Cities)
	}
	if rated > 0 {
		stats.AvgRating = ratingSum / float64(rated)
	}
	return stats
}

func priceBucket(v *schema.Venue) string {
	if v.Pricing == nil || v.Pricing.PriceRange < 1 {
		return "Unknown"
	}
	return strings.Repeat("$", v.Pricing.PriceRange)
}
