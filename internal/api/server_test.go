package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/veganvoyager/venue-crawler/internal/progress/sinks"
)

type fakeProgress struct {
	cities []sinks.CityProgress
}

func (f *fakeProgress) Snapshot() []sinks.CityProgress {
	return f.cities
}

func newTestServer(progress ProgressSource) *httptest.Server {
	return httptest.NewServer(NewServer(progress, prometheus.NewRegistry(), nil).Handler())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProgress{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestGetProgress(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProgress{cities: []sinks.CityProgress{
		{City: "Dallas", Status: "done", Pages: 3, Venues: 12},
		{City: "Austin", Status: "running", Pages: 1, Venues: 4},
	}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Cities []sinks.CityProgress `json:"cities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Cities, 2)
	require.Equal(t, "Dallas", body.Cities[0].City)
	require.Equal(t, 12, body.Cities[0].Venues)
	require.Equal(t, "running", body.Cities[1].Status)
}

func TestGetProgressWithoutSource(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProgress{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRouteIs404(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProgress{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
