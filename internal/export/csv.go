package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veganvoyager/venue-crawler/internal/crawler"
	"github.com/veganvoyager/venue-crawler/internal/schema"
)

// csvHeader is the fixed column set of the flat extract. Column order is
// part of the format; downstream analysis scripts index by position.
var csvHeader = []string{
	"id", "name", "type", "rating", "reviewCount", "priceRange",
	"lat", "lng", "address", "phone", "description", "features",
	"isOpen", "isTopRated", "happyCowUrl",
}

// WriteCSV persists one city result as a flat CSV extract and returns the
// path written.
func (e *Exporter) WriteCSV(result crawler.CrawlResult) (string, error) {
	path := filepath.Join(e.dir, cityFileName(result)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	if err := WriteVenuesCSV(f, result.Venues); err != nil {
		return "", err
	}
	e.logger.Info("wrote CSV extract",
		zap.String("city", result.City),
		zap.String("path", path),
		zap.Int("rows", len(result.Venues)),
	)
	return path, nil
}

// WriteVenuesCSV streams the header plus one row per venue to w.
func WriteVenuesCSV(w io.Writer, venues []*schema.Venue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, v := range venues {
		if err := cw.Write(venueRow(v)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", v.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// venueRow flattens one record into the fixed column set. Absent optional
// groups become empty cells, never zeros, so spreadsheets can tell "missing"
// from "measured zero".
func venueRow(v *schema.Venue) []string {
	row := make([]string, 0, len(csvHeader))
	row = append(row, v.ID, v.Name)

	venueType := ""
	if v.Category != nil {
		venueType = string(v.Category.Primary)
	}
	row = append(row, venueType)

	rating, reviewCount := "", ""
	isTopRated := false
	if v.Rating != nil {
		if v.Rating.Score > 0 {
			rating = strconv.FormatFloat(v.Rating.Score, 'f', -1, 64)
		}
		if v.Rating.ReviewCount > 0 {
			reviewCount = strconv.Itoa(v.Rating.ReviewCount)
		}
		isTopRated = v.Rating.HasTopRatedBadge
	}
	row = append(row, rating, reviewCount)

	priceRange := ""
	if v.Pricing != nil && v.Pricing.PriceRange > 0 {
		priceRange = strconv.Itoa(v.Pricing.PriceRange)
	}
	row = append(row, priceRange)

	lat, lng, address := "", "", ""
	if v.Location != nil {
		lat = strconv.FormatFloat(v.Location.Coordinates.Lat, 'f', -1, 64)
		lng = strconv.FormatFloat(v.Location.Coordinates.Lng, 'f', -1, 64)
		address = v.Location.StreetAddress
	}
	row = append(row, lat, lng, address)

	phone := ""
	if v.Contact != nil {
		phone = v.Contact.PhoneNumber
	}
	row = append(row, phone, v.Description)

	features := ""
	if v.Cuisine != nil {
		features = strings.Join(v.Cuisine.Tags, ", ")
	}
	row = append(row, features)

	isOpen := v.Hours != nil && v.Hours.CurrentStatus == schema.StatusOpenNow
	row = append(row,
		strconv.FormatBool(isOpen),
		strconv.FormatBool(v.Metadata.IsTopRated || isTopRated),
		v.URL,
	)
	return row
}
