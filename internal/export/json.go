// Package export writes finished crawl results to disk as JSON artifacts
// and flat CSV extracts.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veganvoyager/venue-crawler/internal/crawler"
)

// GeneratedBy names the producer in every JSON artifact.
const GeneratedBy = "venue-crawler"

// ArtifactVersion is the export format version, independent of the record
// schema version.
const ArtifactVersion = "1.0.0"

// CityArtifact is the on-disk JSON shape for one city's crawl.
type CityArtifact struct {
	crawler.CrawlResult
	GeneratedBy string    `json:"generatedBy"`
	GeneratedAt time.Time `json:"generatedAt"`
	Version     string    `json:"version"`
}

// Exporter writes crawl artifacts beneath a base directory.
type Exporter struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// New builds an Exporter rooted at dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Exporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Exporter{
		dir:    dir,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WriteJSON persists one city result as a pretty-printed JSON artifact and
// returns the path written.
func (e *Exporter) WriteJSON(result crawler.CrawlResult) (string, error) {
	artifact := CityArtifact{
		CrawlResult: result,
		GeneratedBy: GeneratedBy,
		GeneratedAt: e.now(),
		Version:     ArtifactVersion,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal city artifact: %w", err)
	}
	path := filepath.Join(e.dir, cityFileName(result)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write city artifact: %w", err)
	}
	e.logger.Info("wrote JSON artifact",
		zap.String("city", result.City),
		zap.String("path", path),
		zap.Int("venues", len(result.Venues)),
	)
	return path, nil
}

// WriteBatch persists every city of a batch plus a run-level summary file.
func (e *Exporter) WriteBatch(batch crawler.BatchResult) error {
	for _, result := range batch.Results {
		if _, err := e.WriteJSON(result); err != nil {
			return err
		}
		if _, err := e.WriteCSV(result); err != nil {
			return err
		}
	}
	return e.writeSummary(batch)
}

func (e *Exporter) writeSummary(batch crawler.BatchResult) error {
	summary := struct {
		RunID       string               `json:"runId"`
		Stats       crawler.SummaryStats `json:"stats"`
		GeneratedBy string               `json:"generatedBy"`
		GeneratedAt time.Time            `json:"generatedAt"`
		Version     string               `json:"version"`
	}{
		RunID:       batch.RunID.String(),
		Stats:       crawler.Summarize(batch),
		GeneratedBy: GeneratedBy,
		GeneratedAt: e.now(),
		Version:     ArtifactVersion,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(e.dir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// cityFileName slugs the city name for use as a file stem.
func cityFileName(result crawler.CrawlResult) string {
	stem := strings.ToLower(strings.TrimSpace(result.City))
	stem = strings.ReplaceAll(stem, " ", "-")
	if stem == "" {
		stem = "city"
	}
	return stem
}
