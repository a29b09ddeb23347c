package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/veganvoyager/venue-crawler/internal/schema"
)

func sampleVenue() *schema.Venue {
	return &schema.Venue{
		ID:       "123",
		Name:     "Green Leaf Café",
		Slug:     "green-leaf-caf-123",
		URL:      "https://www.happycow.net/reviews/green-leaf-caf-123",
		Category: &schema.Category{Primary: schema.CategoryVegan},
		Rating:   &schema.Rating{Score: 4.5, ReviewCount: 81},
		ScrapingInfo: schema.ScrapingInfo{
			ScrapedAt:        time.Unix(1700000000, 0).UTC(),
			Source:           schema.SourceListing,
			SchemaVersion:    schema.SchemaVersion,
			DataCompleteness: 0.75,
		},
	}
}

func TestUpsertVenueInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewVenueStoreWithPool(mock, "venues")
	require.NoError(t, err)

	venue := sampleVenue()
	runID := uuid.New()
	doc, err := json.Marshal(venue)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO venues").
		WithArgs(
			venue.ID,
			runID,
			"Dallas",
			venue.Name,
			venue.Slug,
			"vegan",
			4.5,
			0.75,
			venue.ScrapingInfo.ScrapedAt,
			doc,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertVenue(context.Background(), runID, "Dallas", venue))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVenueRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewVenueStoreWithPool(mock, "venues")
	require.NoError(t, err)

	require.Error(t, store.UpsertVenue(context.Background(), uuid.New(), "Dallas", nil))
	require.Error(t, store.UpsertVenue(context.Background(), uuid.New(), "Dallas", &schema.Venue{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVenuesStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewVenueStoreWithPool(mock, "venues")
	require.NoError(t, err)

	good := sampleVenue()
	bad := &schema.Venue{} // missing id fails before any query

	mock.ExpectExec("INSERT INTO venues").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	runID := uuid.New()
	err = store.UpsertVenues(context.Background(), runID, "Dallas", []*schema.Venue{good, bad})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewVenueStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewVenueStoreWithPool(mock, "venues; drop table users")
	require.Error(t, err)

	store, err := NewVenueStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "venues", store.table)

	_, err = NewVenueStoreWithPool(nil, "venues")
	require.Error(t, err)
}
