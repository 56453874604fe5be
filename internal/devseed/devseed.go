package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lci/lci-lookup/internal/data"
	"github.com/lci/lci-lookup/internal/domain/model"
)

// Seeder inserts records, skipping rows whose NID or LIC already exist.
type Seeder interface {
	Seed(ctx context.Context, recs []model.CreateRecordRequest) (int, error)
}

// Result reports what a seeding run did.
type Result struct {
	Requested int
	Inserted  int
	Short     int
	Long      int
}

// Skipped is the number of sample rows that were already present.
func (r Result) Skipped() int { return r.Requested - r.Inserted }

// Run loads the sample short and long list records. Running it twice inserts nothing the
// second time.
func Run(ctx context.Context, seeder Seeder, logger *slog.Logger) (Result, error) {
	return RunWith(ctx, seeder, data.SeedRecords, logger)
}

// RunWith seeds recs instead of the built-in sample rows.
func RunWith(ctx context.Context, seeder Seeder, recs []model.CreateRecordRequest, logger *slog.Logger) (Result, error) {
	if seeder == nil {
		return Result{}, errors.New("seeder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	res := Result{Requested: len(recs)}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return res, fmt.Errorf("sample record %q: %w", rec.NID, err)
		}
		if model.ListForNID(rec.NID) == model.LongList {
			res.Long++
		} else {
			res.Short++
		}
	}

	n, err := seeder.Seed(ctx, recs)
	if err != nil {
		return res, fmt.Errorf("seed records: %w", err)
	}
	res.Inserted = n

	logger.InfoContext(ctx, "seeded sample records",
		"short", res.Short,
		"long", res.Long,
		"inserted", res.Inserted,
		"skipped", res.Skipped(),
	)
	return res, nil
}
