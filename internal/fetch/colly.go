// Package fetch implements the page-fetcher adapter on top of the Colly
// collector. It returns a parsed document handle and translates transport
// failures into the pipeline's error taxonomy.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/veganvoyager/venue-crawler/internal/scrapeerr"
)

// Config controls collector behavior. Headers are applied to every
// request; Timeout caps a single attempt's wall clock.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	Headers        map[string]string
	CaptchaMarkers []string
}

const defaultTimeout = 30 * time.Second

// defaultCaptchaMarkers are body substrings that identify an
// anti-automation interstitial rather than a listing page.
var defaultCaptchaMarkers = []string{
	"g-recaptcha",
	"captcha-delivery",
	"cf-challenge",
}

// BodyObserver receives the raw HTML of every successful fetch, after the
// CAPTCHA scan but before parsing. Observers must not retain the slice.
type BodyObserver func(pageURL string, body []byte)

// Client fetches listing pages one at a time. It keeps a base collector and
// clones it per request so no visit state leaks between fetches.
type Client struct {
	cfg      Config
	base     *colly.Collector
	logger   *zap.Logger
	observer BodyObserver
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if len(cfg.CaptchaMarkers) == 0 {
		cfg.CaptchaMarkers = defaultCaptchaMarkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector()
	// colly v2.1.0's Async(...) option ignores its argument and always
	// enables async mode, so set the field directly to stay synchronous.
	base.Async = false
	base.AllowURLRevisit = true
	return &Client{cfg: cfg, base: base, logger: logger}
}

// SetBodyObserver registers an observer for raw page bodies; callers use it
// to snapshot HTML for offline replay. Passing nil removes the observer.
func (c *Client) SetBodyObserver(obs BodyObserver) {
	c.observer = obs
}

// Fetch executes a single GET and parses the response body. Failures map to
// the taxonomy: HTTP 429 becomes *scrapeerr.RateLimitError, every other
// transport problem (timeouts, unfetchable URLs, and robots.txt refusals
// included) becomes *scrapeerr.NetworkError, and a recognized CAPTCHA
// interstitial becomes *scrapeerr.CaptchaError.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var (
		body       []byte
		statusCode int
		headers    http.Header
		fetchErr   error
	)

	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range c.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		statusCode = r.StatusCode
		headers = r.Headers.Clone()
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			statusCode = r.StatusCode
			if r.Headers != nil {
				headers = r.Headers.Clone()
			}
		}
	})

	visitErr := c.visit(ctx, collector, pageURL)
	if fetchErr != nil {
		return nil, c.classify(fetchErr, statusCode, headers)
	}
	if visitErr != nil {
		// Some failures never reach OnError: cancellation, malformed
		// URLs, and robots.txt refusals. They are transport failures
		// all the same.
		var already *scrapeerr.NetworkError
		if errors.As(visitErr, &already) {
			return nil, visitErr
		}
		return nil, c.classify(visitErr, statusCode, headers)
	}
	if statusCode == 0 {
		return nil, &scrapeerr.NetworkError{Message: "no response received for " + pageURL}
	}

	if marker := c.captchaMarker(body); marker != "" {
		c.logger.Error("captcha challenge detected",
			zap.String("url", pageURL),
			zap.String("marker", marker),
		)
		return nil, &scrapeerr.CaptchaError{URL: pageURL}
	}

	if c.observer != nil {
		c.observer(pageURL, body)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &scrapeerr.ParseError{Message: "response body is not parseable HTML", Fragment: pageURL}
	}
	c.logger.Debug("page fetched",
		zap.String("url", pageURL),
		zap.Int("status", statusCode),
		zap.Int("bytes", len(body)),
	)
	return doc, nil
}

func (c *Client) visit(ctx context.Context, collector *colly.Collector, pageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()
	select {
	case <-ctx.Done():
		return &scrapeerr.NetworkError{Message: "fetch canceled: " + ctx.Err().Error()}
	case err := <-done:
		return err
	}
}

func (c *Client) classify(err error, statusCode int, headers http.Header) error {
	if statusCode == http.StatusTooManyRequests {
		return &scrapeerr.RateLimitError{
			Message:    err.Error(),
			RetryAfter: retryAfter(headers),
		}
	}
	return &scrapeerr.NetworkError{Message: err.Error(), StatusCode: statusCode}
}

func (c *Client) captchaMarker(body []byte) string {
	lower := strings.ToLower(string(body))
	for _, marker := range c.cfg.CaptchaMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

func retryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
