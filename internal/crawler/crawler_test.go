package crawler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/veganvoyager/venue-crawler/internal/extract"
	"github.com/veganvoyager/venue-crawler/internal/progress"
	"github.com/veganvoyager/venue-crawler/internal/schema"
	"github.com/veganvoyager/venue-crawler/internal/scrapeerr"
)

func emptyDoc(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	require.NoError(t, err)
	return doc
}

// scriptedFetcher returns one scripted outcome per call, then repeats the
// final entry.
type scriptedFetcher struct {
	mu    sync.Mutex
	doc   *goquery.Document
	errs  []error
	calls []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, pageURL string) (*goquery.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.calls)
	f.calls = append(f.calls, pageURL)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return f.doc, nil
}

// scriptedExtractor returns canned page results in order.
type scriptedExtractor struct {
	mu      sync.Mutex
	results []extract.PageResult
	calls   int
}

func (e *scriptedExtractor) ExtractPage(*goquery.Document, string) (extract.PageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := e.results[e.calls]
	e.calls++
	return result, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

type pauseRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *pauseRecorder) pause(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = append(p.pauses, d)
	return nil
}

func venues(n int) []*schema.Venue {
	out := make([]*schema.Venue, n)
	for i := range out {
		out[i] = &schema.Venue{ID: "v", Name: "Venue"}
	}
	return out
}

func testConfig() Config {
	return Config{
		InterPageDelay: 3 * time.Second,
		InterCityDelay: 5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
}

func newTestCrawler(t *testing.T, fetcher Fetcher, extractor PageExtractor, emitter progress.Emitter) (*CityCrawler, *pauseRecorder) {
	t.Helper()
	c := New(fetcher, extractor, testConfig(), nil, emitter)
	rec := &pauseRecorder{}
	c.pause = rec.pause
	return c, rec
}

func TestCrawlCity_WalksPagesUntilNoNextLink(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{doc: emptyDoc(t)}
	extractor := &scriptedExtractor{results: []extract.PageResult{
		{Venues: venues(5), HasNextPage: true, TotalVenues: 12},
		{Venues: venues(5), HasNextPage: true},
		{Venues: venues(2), HasNextPage: false},
	}}
	emitter := &recordingEmitter{}
	c, pauses := newTestCrawler(t, fetcher, extractor, emitter)

	result, err := c.CrawlCity(context.Background(), CityTarget{
		Name: "Dallas", State: "TX", URL: "https://www.happycow.net/tx/dallas/",
	})
	require.NoError(t, err)

	require.Equal(t, "Dallas", result.City)
	require.Len(t, result.Venues, 12)
	require.Equal(t, 3, result.PagesScraped)
	require.Equal(t, 12, result.TotalVenues)
	require.False(t, result.Failed)

	// First page uses the base URL; later pages carry ?page=N.
	require.Equal(t, "https://www.happycow.net/tx/dallas/", fetcher.calls[0])
	require.Contains(t, fetcher.calls[1], "page=2")
	require.Contains(t, fetcher.calls[2], "page=3")

	// Two inter-page pauses for three pages, each the mandatory delay.
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, pauses.pauses)

	require.Equal(t, []progress.Stage{
		progress.StageCityStart,
		progress.StagePageDone,
		progress.StagePageDone,
		progress.StagePageDone,
		progress.StageCityDone,
	}, emitter.stages())
}

func TestCrawlCity_RetriesTransientFetchFailures(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		doc: emptyDoc(t),
		errs: []error{
			&scrapeerr.NetworkError{Message: "timeout"},
			&scrapeerr.RateLimitError{Message: "slow down"},
			nil,
		},
	}
	extractor := &scriptedExtractor{results: []extract.PageResult{
		{Venues: venues(4)},
	}}
	emitter := &recordingEmitter{}
	c, _ := newTestCrawler(t, fetcher, extractor, emitter)

	result, err := c.CrawlCity(context.Background(), CityTarget{Name: "Austin", URL: "https://example.com/austin/"})
	require.NoError(t, err)
	require.False(t, result.Failed)
	require.Len(t, result.Venues, 4)
	require.Len(t, fetcher.calls, 3)

	stages := emitter.stages()
	require.Equal(t, progress.StageFetchRetry, stages[1])
	require.Equal(t, progress.StageFetchRetry, stages[2])
}

func TestCrawlCity_RetryExhaustionKeepsPartialResult(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		doc: emptyDoc(t),
		errs: []error{
			nil, // page 1 succeeds
			&scrapeerr.NetworkError{Message: "down"},
			&scrapeerr.NetworkError{Message: "down"},
			&scrapeerr.NetworkError{Message: "down"},
		},
	}
	extractor := &scriptedExtractor{results: []extract.PageResult{
		{Venues: venues(8), HasNextPage: true},
	}}
	emitter := &recordingEmitter{}
	c, _ := newTestCrawler(t, fetcher, extractor, emitter)

	result, err := c.CrawlCity(context.Background(), CityTarget{Name: "Houston", URL: "https://example.com/houston/"})
	// Exhaustion fails the city, not the batch: no error escapes.
	require.NoError(t, err)
	require.True(t, result.Failed)
	require.NotEmpty(t, result.FailureNote)
	require.Len(t, result.Venues, 8)
	require.Equal(t, 1, result.PagesScraped)
	require.Len(t, fetcher.calls, 4)

	stages := emitter.stages()
	require.Equal(t, progress.StageCityError, stages[len(stages)-1])
}

func TestCrawlCity_CaptchaAbortsTheRun(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{errs: []error{
		&scrapeerr.CaptchaError{URL: "https://example.com/dallas/"},
	}}
	emitter := &recordingEmitter{}
	c, _ := newTestCrawler(t, fetcher, &scriptedExtractor{}, emitter)

	result, err := c.CrawlCity(context.Background(), CityTarget{Name: "Dallas", URL: "https://example.com/dallas/"})
	require.Error(t, err)
	capErr := &scrapeerr.CaptchaError{}
	require.ErrorAs(t, err, &capErr)
	require.True(t, result.Failed)
	// A captcha is never retried.
	require.Len(t, fetcher.calls, 1)
	require.Contains(t, emitter.stages(), progress.StageCaptcha)
}

func TestCrawlCity_MaxPagesCapStopsPagination(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{doc: emptyDoc(t)}
	extractor := &scriptedExtractor{results: []extract.PageResult{
		{Venues: venues(5), HasNextPage: true},
		{Venues: venues(5), HasNextPage: true},
	}}
	c, _ := newTestCrawler(t, fetcher, extractor, nil)
	c.cfg.MaxPages = 2

	result, err := c.CrawlCity(context.Background(), CityTarget{Name: "Dallas", URL: "https://example.com/dallas/"})
	require.NoError(t, err)
	require.Equal(t, 2, result.PagesScraped)
	require.Len(t, fetcher.calls, 2)
}

func TestCrawlBatch_PausesBetweenCitiesAndPreservesOrder(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{doc: emptyDoc(t)}
	extractor := &scriptedExtractor{results: []extract.PageResult{
		{Venues: venues(3)},
		{Venues: venues(7)},
	}}
	emitter := &recordingEmitter{}
	c, pauses := newTestCrawler(t, fetcher, extractor, emitter)

	batch, err := c.CrawlBatch(context.Background(), []CityTarget{
		{Name: "Dallas", URL: "https://example.com/dallas/"},
		{Name: "Austin", URL: "https://example.com/austin/"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	require.Equal(t, "Dallas", batch.Results[0].City)
	require.Equal(t, "Austin", batch.Results[1].City)
	require.Equal(t, c.RunID(), batch.RunID)

	// One inter-city pause between two single-page cities.
	require.Equal(t, []time.Duration{5 * time.Second}, pauses.pauses)

	stages := emitter.stages()
	require.Equal(t, progress.StageBatchStart, stages[0])
	require.Equal(t, progress.StageBatchDone, stages[len(stages)-1])
}

func TestCrawlBatch_CaptchaStopsRemainingCities(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{errs: []error{
		&scrapeerr.CaptchaError{URL: "https://example.com/dallas/"},
	}}
	c, _ := newTestCrawler(t, fetcher, &scriptedExtractor{}, nil)

	batch, err := c.CrawlBatch(context.Background(), []CityTarget{
		{Name: "Dallas", URL: "https://example.com/dallas/"},
		{Name: "Austin", URL: "https://example.com/austin/"},
	})
	require.Error(t, err)
	// The aborted city's partial result is kept; Austin never ran.
	require.Len(t, batch.Results, 1)
	require.Len(t, fetcher.calls, 1)
}
