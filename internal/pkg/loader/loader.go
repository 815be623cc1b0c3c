// Package loader feeds trust rows from a persistent store into a freshly
// built trusted table.
package loader

import (
	"context"
	"fmt"

	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"go.uber.org/multierr"
)

// Row is one trust rule as stored: source address, protocol token, and
// optional From URI pattern and tag.
type Row struct {
	Source   string  `yaml:"src_ip"`
	Protocol string  `yaml:"proto"`
	Pattern  *string `yaml:"from_pattern"`
	Tag      *string `yaml:"tag"`
}

// Source yields the complete set of rows for one table generation.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
	// Describe names the source for logs.
	Describe() string
}

// Options controls Build.
type Options struct {
	Table trusted.Config

	// Lenient skips rows that fail to insert instead of aborting the load.
	// Skipped row errors are reported in Report.RowErrors.
	Lenient bool
}

// Report summarizes one Build.
type Report struct {
	Source     string
	Generation string
	Inserted   int
	Skipped    int
	Failed     int
	// RowErrors combines every row failure in lenient mode.
	RowErrors error
}

// Build reads every row from src into a new table. The returned table is
// not yet visible to readers; publish it with trusted.Store.Swap.
func Build(ctx context.Context, src Source, opts Options) (*trusted.Table, Report, error) {
	report := Report{Source: src.Describe()}

	rows, err := src.Rows(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("read %s: %w", report.Source, err)
	}

	tbl, err := trusted.New(opts.Table)
	if err != nil {
		return nil, report, err
	}
	report.Generation = tbl.Generation()

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			tbl.Destroy()
			return nil, report, err
		}

		res, err := tbl.Insert(row.Source, row.Protocol, row.Pattern, row.Tag)
		switch res {
		case trusted.Inserted:
			report.Inserted++
		case trusted.Skipped:
			report.Skipped++
		default:
			report.Failed++
			rowErr := fmt.Errorf("row %d (%s %s): %w", i+1, row.Source, row.Protocol, err)
			if !opts.Lenient {
				tbl.Destroy()
				return nil, report, rowErr
			}
			report.RowErrors = multierr.Append(report.RowErrors, rowErr)
			logger.Warn("Skipping invalid trusted row",
				"source", report.Source,
				"row", i+1,
				"error", err)
		}
	}

	logger.Info("Trusted table built",
		"source", report.Source,
		"generation", report.Generation,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return tbl, report, nil
}

// Reload builds a new generation from src and publishes it in store. On any
// error the current generation stays in place.
func Reload(ctx context.Context, store *trusted.Store, src Source, opts Options) (Report, error) {
	tbl, report, err := Build(ctx, src, opts)
	if err != nil {
		return report, err
	}
	previous := store.Swap(tbl)
	prevGen := ""
	if previous != nil {
		prevGen = previous.Generation()
	}
	logger.Info("Trusted table published",
		"generation", report.Generation,
		"previous", prevGen,
		"entries", tbl.Len())
	return report, nil
}
