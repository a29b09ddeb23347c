// Package scrapeerr defines the error taxonomy shared across the crawl
// pipeline. Each failure kind is its own type carrying its own payload; a
// uniform Retryable query replaces the per-class flag of ad-hoc schemes.
package scrapeerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NetworkError covers transport failures: refused connections, DNS errors,
// timeouts, and non-2xx responses other than 429. StatusCode is zero when
// the failure happened below HTTP.
type NetworkError struct {
	Message    string
	StatusCode int
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("network error: %s", e.Message)
}

// RateLimitError is raised on HTTP 429. RetryAfter is zero when the server
// sent no hint.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// ParseError means the document structure did not match expectations. The
// offending fragment is kept for log context; the bundle or page that
// produced it is skipped, never the whole crawl.
type ParseError struct {
	Message  string
	Fragment string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Violation names one failed schema constraint on a candidate record.
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Constraint
}

// ValidationError carries every constraint a candidate violated. The
// candidate is identified by its site id and name so logs stay useful
// without dumping the whole record.
type ValidationError struct {
	CandidateID   string
	CandidateName string
	Violations    []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("validation failed for %q (id %s): %s",
		e.CandidateName, e.CandidateID, strings.Join(parts, "; "))
}

// CaptchaError signals an anti-automation challenge. It is fatal for the
// whole run and must never be retried.
type CaptchaError struct {
	URL string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("captcha challenge encountered at %s", e.URL)
}

// Retryable reports whether err is worth handing to the retry controller.
// Only transport-level failures qualify; parse and validation failures are
// deterministic and a captcha gets worse with hammering.
func Retryable(err error) bool {
	var netErr *NetworkError
	var rlErr *RateLimitError
	return errors.As(err, &netErr) || errors.As(err, &rlErr)
}
