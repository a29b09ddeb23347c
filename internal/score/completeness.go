// Package score computes the weighted data-completeness score for a venue
// record. Scoring is pure and deterministic; callers recompute it on every
// mutation of the source fields rather than caching it.
package score

import "github.com/veganvoyager/venue-crawler/internal/schema"

// Tier weights. Each tier contributes its weight times the fraction of its
// three fields that are present.
const (
	essentialWeight     = 0.40
	importantWeight     = 0.35
	supplementaryWeight = 0.25
)

// Completeness returns a value in [0,1]. Presence is boolean, not
// quality-weighted: a one-character name counts the same as a full one.
func Completeness(v *schema.Venue) float64 {
	if v == nil {
		return 0
	}

	essential := fraction(
		v.Name != "",
		v.Location != nil,
		v.Category != nil && v.Category.Primary != "",
	)
	important := fraction(
		v.Rating != nil && v.Rating.Score > 0,
		v.Contact != nil && v.Contact.PhoneNumber != "",
		v.Hours != nil && v.Hours.CurrentStatus != "",
	)
	supplementary := fraction(
		v.Media != nil && v.Media.PrimaryImage.URL != "",
		v.Pricing != nil && v.Pricing.PriceRange >= 1,
		v.Cuisine != nil && len(v.Cuisine.Tags) > 0,
	)

	return essential*essentialWeight +
		important*importantWeight +
		supplementary*supplementaryWeight
}

func fraction(present ...bool) float64 {
	count := 0
	for _, p := range present {
		if p {
			count++
		}
	}
	return float64(count) / float64(len(present))
}
