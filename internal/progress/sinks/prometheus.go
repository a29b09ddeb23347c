package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veganvoyager/venue-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus. It owns all
// collectors for city outcomes, page throughput, and rejection counts.
type PrometheusSink struct {
	citiesStarted   prometheus.Counter
	citiesCompleted *prometheus.CounterVec
	cityDuration    *prometheus.HistogramVec
	pagesScraped    *prometheus.CounterVec
	venuesValidated *prometheus.CounterVec
	venuesRejected  *prometheus.CounterVec
	fetchRetries    *prometheus.CounterVec
	captchaHits     prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		citiesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_cities_started_total",
			Help: "Total city crawls that have started.",
		}),
		citiesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_cities_completed_total",
			Help: "Total city crawls completed partitioned by result.",
		}, []string{"result"}),
		cityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_city_duration_seconds",
			Help:    "Wall time per completed city crawl.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_scraped_total",
			Help: "Listing pages processed per city.",
		}, []string{"city"}),
		venuesValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_venues_validated_total",
			Help: "Venue records that passed schema validation, per city.",
		}, []string{"city"}),
		venuesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_venues_rejected_total",
			Help: "Candidates dropped by parsing or validation, per city.",
		}, []string{"city"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_retries_total",
			Help: "Fetch attempts that were retried, per city.",
		}, []string{"city"}),
		captchaHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_captcha_hits_total",
			Help: "Anti-automation challenges encountered; each aborts the run.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.citiesStarted,
		s.citiesCompleted,
		s.cityDuration,
		s.pagesScraped,
		s.venuesValidated,
		s.venuesRejected,
		s.fetchRetries,
		s.captchaHits,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCityStart:
		s.citiesStarted.Inc()
	case progress.StageCityDone:
		s.citiesCompleted.WithLabelValues("success").Inc()
		s.observeDuration(evt, "success")
	case progress.StageCityError:
		s.citiesCompleted.WithLabelValues("error").Inc()
		s.observeDuration(evt, "error")
	case progress.StagePageDone:
		s.pagesScraped.WithLabelValues(evt.City).Inc()
		if evt.Venues > 0 {
			s.venuesValidated.WithLabelValues(evt.City).Add(float64(evt.Venues))
		}
		if evt.Errors > 0 {
			s.venuesRejected.WithLabelValues(evt.City).Add(float64(evt.Errors))
		}
	case progress.StageFetchRetry:
		s.fetchRetries.WithLabelValues(evt.City).Inc()
	case progress.StageCaptcha:
		s.captchaHits.Inc()
	}
}

func (s *PrometheusSink) observeDuration(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.cityDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
