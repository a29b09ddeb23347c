package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/veganvoyager/venue-crawler/internal/crawler"
	"github.com/veganvoyager/venue-crawler/internal/schema"
)

func sampleVenue() *schema.Venue {
	return &schema.Venue{
		ID:       "123",
		Name:     "Green Leaf Café",
		Slug:     "green-leaf-caf-123",
		URL:      "https://www.happycow.net/reviews/green-leaf-caf-123",
		Category: &schema.Category{Primary: schema.CategoryVegan},
		Location: &schema.Location{
			StreetAddress: "123 Main St",
			Coordinates:   schema.Coordinates{Lat: 32.7767, Lng: -96.797},
			GoogleMapsURL: "https://www.google.com/maps?q=32.7767,-96.7970",
		},
		Rating:  &schema.Rating{Score: 4.5, ReviewCount: 81, HasTopRatedBadge: true},
		Hours:   &schema.Hours{CurrentStatus: schema.StatusOpenNow},
		Pricing: &schema.Pricing{PriceRange: 2, PriceRangeText: "$$"},
		Contact: &schema.Contact{PhoneNumber: "+1 214-555-0100"},
		Cuisine: &schema.Cuisine{Tags: []string{"Vegan", "Juice Bar"}},
		Metadata: schema.Metadata{
			IsTopRated: true,
		},
		Description: "Plant-based comfort food.",
	}
}

func sampleResult() crawler.CrawlResult {
	return crawler.CrawlResult{
		City:         "Dallas",
		State:        "TX",
		URL:          "https://www.happycow.net/north_america/usa/texas/dallas/",
		Venues:       []*schema.Venue{sampleVenue()},
		TotalVenues:  1,
		PagesScraped: 1,
	}
}

func TestWriteJSON_ArtifactShape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exporter, err := New(dir, nil)
	require.NoError(t, err)

	path, err := exporter.WriteJSON(sampleResult())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "dallas.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var artifact map[string]any
	require.NoError(t, json.Unmarshal(data, &artifact))
	require.Equal(t, "Dallas", artifact["city"])
	require.Equal(t, "TX", artifact["state"])
	require.Equal(t, GeneratedBy, artifact["generatedBy"])
	require.Equal(t, ArtifactVersion, artifact["version"])
	require.NotEmpty(t, artifact["generatedAt"])
	require.Len(t, artifact["venues"], 1)
}

func TestWriteJSON_RoundTripsThroughCityArtifact(t *testing.T) {
	t.Parallel()

	exporter, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	path, err := exporter.WriteJSON(sampleResult())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var artifact CityArtifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	require.Equal(t, "Dallas", artifact.City)
	require.Len(t, artifact.Venues, 1)
	require.Equal(t, "123", artifact.Venues[0].ID)
}

func TestWriteVenuesCSV_FixedColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteVenuesCSV(&buf, []*schema.Venue{sampleVenue()}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, []string{
		"id", "name", "type", "rating", "reviewCount", "priceRange",
		"lat", "lng", "address", "phone", "description", "features",
		"isOpen", "isTopRated", "happyCowUrl",
	}, rows[0])

	require.Equal(t, []string{
		"123",
		"Green Leaf Café",
		"vegan",
		"4.5",
		"81",
		"2",
		"32.7767",
		"-96.797",
		"123 Main St",
		"+1 214-555-0100",
		"Plant-based comfort food.",
		"Vegan, Juice Bar",
		"true",
		"true",
		"https://www.happycow.net/reviews/green-leaf-caf-123",
	}, rows[1])
}

func TestWriteVenuesCSV_AbsentGroupsBecomeEmptyCells(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bare := &schema.Venue{ID: "9", Name: "Mystery Spot", URL: "https://example.com/9"}
	require.NoError(t, WriteVenuesCSV(&buf, []*schema.Venue{bare}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	row := rows[1]
	require.Equal(t, "9", row[0])
	require.Equal(t, "", row[2], "type")
	require.Equal(t, "", row[3], "rating")
	require.Equal(t, "", row[5], "priceRange")
	require.Equal(t, "", row[6], "lat")
	require.Equal(t, "false", row[12], "isOpen")
}

func TestWriteBatch_WritesEveryCityPlusSummary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exporter, err := New(dir, nil)
	require.NoError(t, err)

	second := sampleResult()
	second.City = "Austin"
	batch := crawler.BatchResult{
		RunID:   uuid.New(),
		Results: []crawler.CrawlResult{sampleResult(), second},
	}
	require.NoError(t, exporter.WriteBatch(batch))

	for _, name := range []string{"dallas.json", "dallas.csv", "austin.json", "austin.csv", "summary.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var summary struct {
		RunID string               `json:"runId"`
		Stats crawler.SummaryStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))
	require.Equal(t, batch.RunID.String(), summary.RunID)
	require.Equal(t, 2, summary.Stats.Cities)
	require.Equal(t, 2, summary.Stats.Venues)
}

func TestCityFileName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "new-york", cityFileName(crawler.CrawlResult{City: "New York"}))
	require.Equal(t, "city", cityFileName(crawler.CrawlResult{}))
}
