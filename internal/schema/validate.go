package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/veganvoyager/venue-crawler/internal/scrapeerr"
)

// Validator checks candidate records against the canonical schema. It is
// pure: the same candidate always produces the same accept/reject outcome,
// and fields are never coerced or silently dropped.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator whose violation paths use JSON field
// names, e.g. location.coordinates.lat.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate accepts a candidate and returns it as a validated record, or a
// *scrapeerr.ValidationError naming every violated constraint. The input is
// not mutated either way.
func (vd *Validator) Validate(candidate *Venue) (*Venue, error) {
	if candidate == nil {
		return nil, &scrapeerr.ValidationError{
			Violations: []scrapeerr.Violation{{Field: "(root)", Constraint: "candidate is nil"}},
		}
	}

	var violations []scrapeerr.Violation
	if err := vd.validate.Struct(candidate); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate candidate: %w", err)
		}
		for _, fe := range fieldErrs {
			violations = append(violations, scrapeerr.Violation{
				Field:      trimNamespace(fe.Namespace()),
				Constraint: constraintText(fe),
			})
		}
	}
	violations = append(violations, vd.semanticViolations(candidate)...)

	if len(violations) > 0 {
		return nil, &scrapeerr.ValidationError{
			CandidateID:   candidate.ID,
			CandidateName: candidate.Name,
			Violations:    violations,
		}
	}
	return candidate, nil
}

// semanticViolations covers cross-field rules struct tags cannot express.
func (vd *Validator) semanticViolations(candidate *Venue) []scrapeerr.Violation {
	var out []scrapeerr.Violation
	if p := candidate.Pricing; p != nil {
		if want := PriceRangeText(p.PriceRange); p.PriceRangeText != want {
			out = append(out, scrapeerr.Violation{
				Field:      "pricing.priceRangeText",
				Constraint: fmt.Sprintf("must be %q for priceRange %d, got %q", want, p.PriceRange, p.PriceRangeText),
			})
		}
		if p.Estimate != nil && p.Estimate.Min > p.Estimate.Max {
			out = append(out, scrapeerr.Violation{
				Field:      "pricing.priceRangeEstimate",
				Constraint: "min must not exceed max",
			})
		}
	}
	if candidate.Slug != "" && candidate.ID != "" && candidate.Name != "" {
		if want := GenerateSlug(candidate.Name, candidate.ID); candidate.Slug != want {
			out = append(out, scrapeerr.Violation{
				Field:      "slug",
				Constraint: fmt.Sprintf("must derive from (name, id), want %q", want),
			})
		}
	}
	return out
}

// trimNamespace drops the leading struct type name from a validator
// namespace: "Venue.location.coordinates.lat" -> "location.coordinates.lat".
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func constraintText(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}
