package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/errors"
)

// MVRVRepository is an in-memory implementation of mvrv.Repository.
// Used for the memory storage backend and in service tests.
type MVRVRepository struct {
	mu      sync.RWMutex
	records map[mvrv.Key]mvrv.Record

	prices    map[int64]float64 // unix seconds -> price
	priceKeys []int64           // sorted ascending
	now       func() time.Time
}

// NewMVRVRepository creates an empty repository
func NewMVRVRepository() *MVRVRepository {
	return &MVRVRepository{
		records: make(map[mvrv.Key]mvrv.Record),
		prices:  make(map[int64]float64),
		now:     time.Now,
	}
}

// UpsertRecord inserts or overwrites the record for (timestamp, timeframe)
func (r *MVRVRepository) UpsertRecord(_ context.Context, record *mvrv.Record) error {
	if record == nil || !record.Timeframe.Valid() {
		return errors.Wrap(errors.ErrInvalidInput, "upsert record")
	}

	stored := *record
	stored.Timestamp = record.Timestamp.UTC()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[stored.Key()] = stored
	return nil
}

// QueryHistory returns the most recent limit records, oldest first
func (r *MVRVRepository) QueryHistory(_ context.Context, tf mvrv.Timeframe, limit int) ([]mvrv.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(rec mvrv.Record) bool { return rec.Timeframe == tf })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// GetLatest returns the newest record of a timeframe
func (r *MVRVRepository) GetLatest(_ context.Context, tf mvrv.Timeframe) (*mvrv.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *mvrv.Record
	for _, rec := range r.records {
		if rec.Timeframe != tf {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			copy := rec
			latest = &copy
		}
	}
	if latest == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "latest %s record", tf)
	}
	return latest, nil
}

// QueryRange returns records with from <= timestamp < to, oldest first
func (r *MVRVRepository) QueryRange(_ context.Context, tf mvrv.Timeframe, from, to time.Time) ([]mvrv.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(rec mvrv.Record) bool {
		return rec.Timeframe == tf && !rec.Timestamp.Before(from) && rec.Timestamp.Before(to)
	}), nil
}

// collect must be called with at least a read lock held
func (r *MVRVRepository) collect(keep func(mvrv.Record) bool) []mvrv.Record {
	result := make([]mvrv.Record, 0)
	for _, rec := range r.records {
		if keep(rec) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// UpsertHistoricalPrice stores a price at an instant, overwriting any previous value
func (r *MVRVRepository) UpsertHistoricalPrice(_ context.Context, at time.Time, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putPrice(at.Unix(), price)
	return nil
}

// UpsertHistoricalPrices stores a batch of prices
func (r *MVRVRepository) UpsertHistoricalPrices(_ context.Context, points []mvrv.PricePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range points {
		r.putPrice(p.At.Unix(), p.Price)
	}
	return nil
}

func (r *MVRVRepository) putPrice(ts int64, price float64) {
	if _, exists := r.prices[ts]; !exists {
		i := sort.Search(len(r.priceKeys), func(i int) bool { return r.priceKeys[i] >= ts })
		r.priceKeys = append(r.priceKeys, 0)
		copy(r.priceKeys[i+1:], r.priceKeys[i:])
		r.priceKeys[i] = ts
	}
	r.prices[ts] = price
}

// GetPriceAtOrBefore returns the newest stored price not later than at
func (r *MVRVRepository) GetPriceAtOrBefore(_ context.Context, at time.Time) (*mvrv.PricePoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts := at.Unix()
	// first index with key > ts, the candidate is the one before it
	i := sort.Search(len(r.priceKeys), func(i int) bool { return r.priceKeys[i] > ts })
	if i == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "price at or before %s", at.UTC().Format(time.RFC3339))
	}

	key := r.priceKeys[i-1]
	return &mvrv.PricePoint{
		At:     time.Unix(key, 0).UTC(),
		Price:  r.prices[key],
		Source: mvrv.PriceSourceStore,
	}, nil
}

// Health always succeeds
func (r *MVRVRepository) Health(context.Context) error {
	return nil
}

// Counts returns the number of stored records and prices (diagnostics)
func (r *MVRVRepository) Counts() (records, prices int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), len(r.prices)
}
