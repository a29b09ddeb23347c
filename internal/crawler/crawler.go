// Package crawler orchestrates the page-by-page crawl of city listings and
// the aggregation of per-city results. Exactly one fetch is in flight at
// any time; the politeness delays here are the floor on request rate.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veganvoyager/venue-crawler/internal/extract"
	"github.com/veganvoyager/venue-crawler/internal/progress"
	"github.com/veganvoyager/venue-crawler/internal/retry"
	"github.com/veganvoyager/venue-crawler/internal/schema"
	"github.com/veganvoyager/venue-crawler/internal/scrapeerr"
)

// Fetcher fetches a listing URL and returns a parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// PageExtractor turns a parsed document into validated venues plus a
// pagination signal.
type PageExtractor interface {
	ExtractPage(doc *goquery.Document, pageURL string) (extract.PageResult, error)
}

// CityTarget names one city listing to crawl.
type CityTarget struct {
	Name  string `mapstructure:"name"`
	State string `mapstructure:"state"`
	URL   string `mapstructure:"url"`
}

// Config holds the politeness and retry knobs for a crawl session.
type Config struct {
	// MaxPages caps pages per city; zero means no cap.
	MaxPages int
	// InterPageDelay is the mandatory pause between page fetches within a
	// city. It applies even after a page with zero results.
	InterPageDelay time.Duration
	// InterCityDelay is the pause between cities; it should exceed
	// InterPageDelay.
	InterCityDelay time.Duration
	// MaxRetries is the fetch attempt budget per page.
	MaxRetries int
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration
}

// CrawlResult is the terminal artifact for one city listing.
type CrawlResult struct {
	City         string          `json:"city"`
	State        string          `json:"state"`
	URL          string          `json:"url"`
	Venues       []*schema.Venue `json:"venues"`
	TotalVenues  int             `json:"totalVenues"`
	PagesScraped int             `json:"pagesScraped"`
	ErrorCount   int             `json:"errorCount"`

	// LowCompleteness counts kept records whose completeness score fell
	// below the configured floor.
	LowCompleteness int    `json:"lowCompletenessCount,omitempty"`
	Failed          bool   `json:"failed,omitempty"`
	FailureNote     string `json:"failureNote,omitempty"`
}

// BatchResult is the ordered collection of per-city results for one run.
type BatchResult struct {
	RunID   uuid.UUID     `json:"runId"`
	Results []CrawlResult `json:"results"`
}

// CityCrawler drives fetch, extract, validate, and accumulate across the
// pages of a city listing, then across cities of a batch.
type CityCrawler struct {
	fetcher   Fetcher
	extractor PageExtractor
	cfg       Config
	logger    *zap.Logger
	emitter   progress.Emitter
	runID     uuid.UUID
	pause     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// New builds a CityCrawler with a fresh run ID. A nil emitter discards
// progress events; a nil logger logs nothing.
func New(fetcher Fetcher, extractor PageExtractor, cfg Config, logger *zap.Logger, emitter progress.Emitter) *CityCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Discard{}
	}
	return &CityCrawler{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
		emitter:   emitter,
		runID:     uuid.New(),
		pause:     contextPause,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunID identifies this crawler's batch run.
func (c *CityCrawler) RunID() uuid.UUID {
	return c.runID
}

// CrawlCity processes every page of one city listing in ascending page
// order. A fetch that exhausts its retries marks the result failed and
// keeps the pages already accumulated; only a CAPTCHA challenge is
// returned as an error, because it is fatal for the whole run.
func (c *CityCrawler) CrawlCity(ctx context.Context, target CityTarget) (CrawlResult, error) {
	started := c.now()
	result := CrawlResult{
		City:   target.Name,
		State:  target.State,
		URL:    target.URL,
		Venues: []*schema.Venue{},
	}
	c.emit(progress.Event{Stage: progress.StageCityStart, City: target.Name, URL: target.URL})

	policy := retry.New(c.cfg.MaxRetries, c.cfg.RetryBaseDelay,
		retry.WithRetryIf(scrapeerr.Retryable),
		retry.WithOnRetry(func(attempt int, err error) {
			c.emit(progress.Event{
				Stage: progress.StageFetchRetry,
				City:  target.Name,
				Page:  result.PagesScraped + 1,
				Note:  err.Error(),
			})
		}),
	)

	page := 1
	for {
		pageURL := buildPageURL(target.URL, page)
		doc, err := retry.Do(ctx, policy, func(ctx context.Context) (*goquery.Document, error) {
			return c.fetcher.Fetch(ctx, pageURL)
		})
		if err != nil {
			var captcha *scrapeerr.CaptchaError
			if errors.As(err, &captcha) {
				c.emit(progress.Event{Stage: progress.StageCaptcha, URL: pageURL, Note: err.Error()})
				c.finishCity(&result, started, err)
				return result, err
			}
			c.logger.Error("page fetch exhausted retries",
				zap.String("city", target.Name),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			c.finishCity(&result, started, err)
			return result, nil
		}

		pageResult, err := c.extractor.ExtractPage(doc, pageURL)
		if err != nil {
			// A page-level parse failure skips the page, not the city.
			c.logger.Warn("page extraction failed",
				zap.String("city", target.Name),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			result.ErrorCount++
			pageResult = extract.PageResult{}
		}

		result.Venues = append(result.Venues, pageResult.Venues...)
		result.ErrorCount += pageResult.ErrorCount
		result.PagesScraped++
		if pageResult.TotalVenues > result.TotalVenues {
			result.TotalVenues = pageResult.TotalVenues
		}
		c.emit(progress.Event{
			Stage:  progress.StagePageDone,
			City:   target.Name,
			URL:    pageURL,
			Page:   page,
			Venues: len(pageResult.Venues),
			Errors: pageResult.ErrorCount,
		})

		if !pageResult.HasNextPage {
			break
		}
		if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
			c.logger.Info("page cap reached",
				zap.String("city", target.Name),
				zap.Int("max_pages", c.cfg.MaxPages),
			)
			break
		}
		// Mandatory inter-page delay before the next fetch, regardless of
		// how many venues the page yielded.
		if err := c.pause(ctx, c.cfg.InterPageDelay); err != nil {
			c.finishCity(&result, started, fmt.Errorf("crawl interrupted: %w", err))
			return result, nil
		}
		page++
	}

	if result.TotalVenues == 0 {
		result.TotalVenues = len(result.Venues)
	}
	c.emit(progress.Event{
		Stage:  progress.StageCityDone,
		City:   target.Name,
		Venues: len(result.Venues),
		Errors: result.ErrorCount,
		Dur:    c.now().Sub(started),
	})
	c.logger.Info("city crawl complete",
		zap.String("city", target.Name),
		zap.Int("venues", len(result.Venues)),
		zap.Int("pages", result.PagesScraped),
		zap.Int("errors", result.ErrorCount),
	)
	return result, nil
}

// CrawlBatch crawls the targets strictly in the order given. A failed city
// does not stop the batch; a CAPTCHA does, since continuing would only
// deepen the block.
func (c *CityCrawler) CrawlBatch(ctx context.Context, targets []CityTarget) (BatchResult, error) {
	batch := BatchResult{RunID: c.runID}
	started := c.now()
	c.emit(progress.Event{Stage: progress.StageBatchStart, Note: fmt.Sprintf("%d cities", len(targets))})

	for i, target := range targets {
		result, err := c.CrawlCity(ctx, target)
		batch.Results = append(batch.Results, result)
		if err != nil {
			return batch, fmt.Errorf("batch aborted at %s: %w", target.Name, err)
		}
		if i < len(targets)-1 {
			if err := c.pause(ctx, c.cfg.InterCityDelay); err != nil {
				return batch, fmt.Errorf("batch interrupted: %w", err)
			}
		}
	}

	c.emit(progress.Event{Stage: progress.StageBatchDone, Dur: c.now().Sub(started)})
	return batch, nil
}

func (c *CityCrawler) finishCity(result *CrawlResult, started time.Time, cause error) {
	result.Failed = true
	result.FailureNote = cause.Error()
	if result.TotalVenues == 0 {
		result.TotalVenues = len(result.Venues)
	}
	c.emit(progress.Event{
		Stage:  progress.StageCityError,
		City:   result.City,
		Venues: len(result.Venues),
		Errors: result.ErrorCount,
		Dur:    c.now().Sub(started),
		Note:   cause.Error(),
	})
}

func (c *CityCrawler) emit(evt progress.Event) {
	evt.RunID = c.runID
	evt.TS = c.now()
	c.emitter.Emit(evt)
}

// buildPageURL appends the page query parameter for pages past the first.
func buildPageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s?page=%d", base, page)
	}
	q := u.Query()
	q.Set("page", fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String()
}

func contextPause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
