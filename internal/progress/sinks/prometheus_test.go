package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/veganvoyager/venue-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are
// incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	page := evt(progress.StagePageDone, "Dallas")
	page.Venues = 5
	page.Errors = 1
	done := evt(progress.StageCityDone, "Dallas")
	done.Dur = 42 * time.Second

	batch := []progress.Event{
		evt(progress.StageCityStart, "Dallas"),
		page,
		evt(progress.StageFetchRetry, "Dallas"),
		done,
		evt(progress.StageCaptcha, ""),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.citiesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.citiesCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.citiesCompleted.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesScraped.WithLabelValues("Dallas")))
	require.Equal(t, 5.0, testutil.ToFloat64(sink.venuesValidated.WithLabelValues("Dallas")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.venuesRejected.WithLabelValues("Dallas")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.fetchRetries.WithLabelValues("Dallas")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.captchaHits))
}

func TestPrometheusSinkCityError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	fail := evt(progress.StageCityError, "Houston")
	fail.Dur = 10 * time.Second
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{fail}))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.citiesCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
