package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veganvoyager/venue-crawler/internal/export"
)

// newExportCmd creates the 'export' subcommand, which re-derives a CSV
// extract from an existing JSON artifact without refetching anything.
func newExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <artifact.json>",
		Short: "Converts a saved JSON artifact to a CSV extract",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runExport(args[0], outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output CSV path (default: artifact path with .csv extension)")
	return cmd
}

func runExport(artifactPath, outPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	var artifact export.CityArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("parse artifact: %w", err)
	}
	if len(artifact.Venues) == 0 && artifact.City == "" {
		return fmt.Errorf("%s does not look like a city artifact", artifactPath)
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".csv"
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	if err := export.WriteVenuesCSV(f, artifact.Venues); err != nil {
		return err
	}
	fmt.Printf("wrote %d rows to %s\n", len(artifact.Venues), outPath)
	return nil
}
