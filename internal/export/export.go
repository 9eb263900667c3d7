// Package export flattens stored model records into a Parquet table with one
// row per (make, model, year, trim).
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Row is one exported trim. Years without trims export a single row with an
// empty Trim.
type Row struct {
	Make           string  `parquet:"make"`
	Model          string  `parquet:"model"`
	Year           string  `parquet:"year"`
	Trim           string  `parquet:"trim"`
	Price          *string `parquet:"price,optional"`
	ImageCount     int32   `parquet:"image_count"`
	ReviewLength   int32   `parquet:"review_length"`
	SpecCategories int32   `parquet:"spec_categories"`
	Category       string  `parquet:"category"`
	Subcategory    string  `parquet:"subcategory"`
	SourceURL      string  `parquet:"source_url"`
}

// Source enumerates stored records.
type Source interface {
	Walk(ctx context.Context, fn func(crawler.ModelRecord) error) error
}

// Rows flattens rec in year order.
func Rows(rec crawler.ModelRecord) []Row {
	var rows []Row
	for _, year := range rec.SortedYears() {
		yr := rec.Years[year]
		base := Row{
			Make:         rec.Make,
			Model:        rec.Model,
			Year:         year,
			ImageCount:   int32(len(yr.MainImages)),
			ReviewLength: int32(len(yr.ExpertReview)),
			Category:     yr.Category,
			Subcategory:  yr.Subcategory,
			SourceURL:    yr.SourceURL,
		}
		if len(yr.Trims) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, trim := range yr.Trims {
			row := base
			row.Trim = trim.Name
			row.Price = trim.Price
			row.SpecCategories = int32(len(trim.Specifications))
			rows = append(rows, row)
		}
	}
	return rows
}

// Write streams every record from src to w as Parquet and returns the number
// of rows written.
func Write(ctx context.Context, w io.Writer, src Source, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pw := parquet.NewGenericWriter[Row](w)
	total, records := 0, 0
	err := src.Walk(ctx, func(rec crawler.ModelRecord) error {
		rows := Rows(rec)
		if len(rows) == 0 {
			logger.Debug("record has no years, skipped", zap.String("record", rec.Key().String()))
			return nil
		}
		n, err := pw.Write(rows)
		total += n
		records++
		if err != nil {
			return fmt.Errorf("write rows for %s: %w", rec.Key(), err)
		}
		return nil
	})
	if err != nil {
		return total, errors.Join(err, pw.Close())
	}
	if err := pw.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w", err)
	}
	logger.Info("export finished", zap.Int("records", records), zap.Int("rows", total))
	return total, nil
}

// WriteFile writes the export to path, replacing any existing file.
func WriteFile(ctx context.Context, path string, src Source, logger *zap.Logger) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, err := Write(ctx, f, src, logger)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close export file: %w", closeErr)
	}
	return n, err
}
