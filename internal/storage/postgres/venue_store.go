// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veganvoyager/venue-crawler/internal/schema"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// VenueStoreConfig controls the Postgres connection pool used for venue rows.
type VenueStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// VenueStore writes validated venue records into Postgres, keyed by the
// source site's venue id so re-crawls replace rather than duplicate.
type VenueStore struct {
	pool  execCloser
	table string
}

// NewVenueStore creates a Postgres-backed VenueStore using the provided config.
func NewVenueStore(ctx context.Context, cfg VenueStoreConfig) (*VenueStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "venues"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &VenueStore{pool: pool, table: table}, nil
}

// NewVenueStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewVenueStoreWithPool(pool execCloser, table string) (*VenueStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "venues"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &VenueStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *VenueStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertVenue inserts or replaces one venue row. The full record travels as
// a JSONB document; the promoted columns exist for indexing and filtering.
func (s *VenueStore) UpsertVenue(ctx context.Context, runID uuid.UUID, city string, venue *schema.Venue) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("venue store is not configured")
	}
	if venue == nil || venue.ID == "" {
		return fmt.Errorf("venue id is required")
	}
	doc, err := json.Marshal(venue)
	if err != nil {
		return fmt.Errorf("marshal venue: %w", err)
	}

	venueType := ""
	if venue.Category != nil {
		venueType = string(venue.Category.Primary)
	}
	var rating float64
	if venue.Rating != nil {
		rating = venue.Rating.Score
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	city,
	name,
	slug,
	venue_type,
	rating,
	completeness,
	scraped_at,
	record
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	city = EXCLUDED.city,
	name = EXCLUDED.name,
	slug = EXCLUDED.slug,
	venue_type = EXCLUDED.venue_type,
	rating = EXCLUDED.rating,
	completeness = EXCLUDED.completeness,
	scraped_at = EXCLUDED.scraped_at,
	record = EXCLUDED.record`, s.table)

	args := []any{
		venue.ID,
		runID,
		city,
		venue.Name,
		venue.Slug,
		venueType,
		rating,
		venue.ScrapingInfo.DataCompleteness,
		venue.ScrapingInfo.ScrapedAt,
		doc,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert venue: %w", err)
	}
	return nil
}

// UpsertVenues stores every record of one city's crawl, stopping at the
// first failure.
func (s *VenueStore) UpsertVenues(ctx context.Context, runID uuid.UUID, city string, venues []*schema.Venue) error {
	for _, venue := range venues {
		if err := s.UpsertVenue(ctx, runID, city, venue); err != nil {
			return err
		}
	}
	return nil
}
