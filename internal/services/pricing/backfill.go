package pricing

import (
	"context"
	"time"

	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/batch"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// BackfillConfig configures historical price backfill
type BackfillConfig struct {
	Days          int
	BatchSize     int
	FlushInterval time.Duration // partial batches are written at least this often
}

// Backfiller loads recent historical prices from the provider into the store
// so the resolver's nearest-prior tier answers for recent UTXOs.
type Backfiller struct {
	cfg      BackfillConfig
	provider mvrv.PriceProvider
	store    mvrv.Repository
	log      *logger.Logger
}

// NewBackfiller creates a backfiller
func NewBackfiller(cfg BackfillConfig, provider mvrv.PriceProvider, store mvrv.Repository) *Backfiller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Backfiller{
		cfg:      cfg,
		provider: provider,
		store:    store,
		log:      logger.Get().With("component", "price_backfill"),
	}
}

// Run fetches [now - Days, now] and upserts it in batches. Returns the number of prices written.
func (b *Backfiller) Run(ctx context.Context, now time.Time) (int, error) {
	if b.cfg.Days <= 0 {
		return 0, nil
	}

	to := now.UTC()
	from := to.Add(-time.Duration(b.cfg.Days) * 24 * time.Hour)

	points, err := b.provider.GetPriceRange(ctx, from, to)
	if err != nil {
		return 0, errors.Wrap(err, "fetch price range")
	}
	if len(points) == 0 {
		return 0, errors.Wrapf(errors.ErrNoData, "price range %s..%s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	writer := batch.NewWriter(batch.Config[mvrv.PricePoint]{
		FlushFunc:    b.store.UpsertHistoricalPrices,
		Name:         "historical_prices",
		MaxBatchSize: b.cfg.BatchSize,
		MaxAge:       b.cfg.FlushInterval,
	})
	writer.Start(ctx)

	var errs errors.MultiError
	for _, p := range points {
		if err := writer.Add(ctx, p); err != nil {
			errs.Add(err)
		}
	}
	errs.Add(writer.Stop(ctx))

	written := writer.Flushed()
	b.log.Debugw("Historical prices backfilled",
		"fetched", len(points),
		"written", written,
		"from", from,
		"to", to,
	)

	if err := errs.ToError(); err != nil {
		return written, errors.Wrap(err, "store backfilled prices")
	}
	return written, nil
}
