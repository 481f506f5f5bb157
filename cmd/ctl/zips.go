package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	leadrepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/repo"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

var zipBatch int

var importZipsCmd = &cobra.Command{
	Use:   "import-zips <csv>",
	Short: "Upsert zip,lat,lng rows into zip_centroids",
	Args:  cobra.MatchAll(cobra.ExactArgs(1), validBatch),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rows, skipped, err := parseCentroids(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		for start := 0; start < len(rows); start += zipBatch {
			end := min(start+zipBatch, len(rows))
			if err := svc.Zips.Upsert(cmd.Context(), rows[start:end]); err != nil {
				return fmt.Errorf("upsert rows %d-%d: %w", start, end, err)
			}
		}
		logger.Infow("zip import complete", "rows", len(rows), "skipped", skipped, "csv", args[0])
		return nil
	},
}

// validBatch runs with argument validation, before the database is opened.
func validBatch(cmd *cobra.Command, _ []string) error {
	if zipBatch <= 0 {
		return fmt.Errorf("--batch must be positive, got %d", zipBatch)
	}
	return nil
}

// parseCentroids reads zip,lat,lng records. A first row whose latitude is not
// numeric is treated as a header. Rows with an invalid ZIP or out-of-range
// coordinates are skipped and counted.
func parseCentroids(r io.Reader) ([]leadrepo.Centroid, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		rows    []leadrepo.Centroid
		skipped int
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(rec) < 3 {
			skipped++
			continue
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if latErr != nil || lngErr != nil {
			if line > 1 {
				skipped++
			}
			continue
		}
		zip := entity.NormalizeZip(rec[0])
		if zip == "" || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			skipped++
			continue
		}
		rows = append(rows, leadrepo.Centroid{Zip: zip, Lat: lat, Lng: lng})
	}
	return rows, skipped, nil
}

func init() {
	importZipsCmd.Flags().IntVar(&zipBatch, "batch", 1000, "rows per transaction")
	rootCmd.AddCommand(importZipsCmd)
}
