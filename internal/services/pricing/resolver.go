package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// ResolverConfig configures the price resolver
type ResolverConfig struct {
	ReferencePrice float64 // heuristic anchor until SetReferencePrice is called
	CacheCapacity  uint64
}

// Resolver resolves a USD price for an instant through a tiered fallback chain:
// in-process cache, shared cache, nearest-prior stored price, provider by date, heuristic.
type Resolver struct {
	store     mvrv.Repository
	provider  mvrv.PriceProvider
	shared    mvrv.PriceCache // optional
	heuristic PriceHeuristic
	cache     *ttlcache.Cache[int64, float64]
	log       *logger.Logger
	now       func() time.Time

	mu        sync.RWMutex
	reference float64
}

// NewResolver creates a resolver. shared may be nil.
func NewResolver(cfg ResolverConfig, store mvrv.Repository, provider mvrv.PriceProvider, shared mvrv.PriceCache, heuristic PriceHeuristic) *Resolver {
	if heuristic == nil {
		heuristic = NewAgeBandHeuristic(0)
	}
	if cfg.ReferencePrice <= 0 {
		cfg.ReferencePrice = 45000
	}

	opts := []ttlcache.Option[int64, float64]{}
	if cfg.CacheCapacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[int64, float64](cfg.CacheCapacity))
	}

	return &Resolver{
		store:     store,
		provider:  provider,
		shared:    shared,
		heuristic: heuristic,
		cache:     ttlcache.New[int64, float64](opts...),
		log:       logger.Get().With("component", "price_resolver"),
		now:       time.Now,
		reference: cfg.ReferencePrice,
	}
}

// SetReferencePrice updates the heuristic anchor, normally with the latest spot price
func (r *Resolver) SetReferencePrice(price float64) {
	if price <= 0 {
		return
	}
	r.mu.Lock()
	r.reference = price
	r.mu.Unlock()
}

// ReferencePrice returns the current heuristic anchor
func (r *Resolver) ReferencePrice() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reference
}

// Resolve returns a price for at. Only context cancellation produces an error.
func (r *Resolver) Resolve(ctx context.Context, at time.Time) (mvrv.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return mvrv.PricePoint{}, err
	}
	at = at.UTC()
	key := at.Unix()

	if item := r.cache.Get(key); item != nil {
		return r.resolved(at, item.Value(), mvrv.PriceSourceCache), nil
	}

	if r.shared != nil {
		price, ok, err := r.shared.Get(ctx, at)
		switch {
		case err != nil:
			r.log.Debugw("Shared price cache lookup failed", "at", at, "error", err)
		case ok:
			r.cache.Set(key, price, ttlcache.NoTTL)
			return r.resolved(at, price, mvrv.PriceSourceCache), nil
		}
	}

	if r.store != nil {
		point, err := r.store.GetPriceAtOrBefore(ctx, at)
		switch {
		case err == nil && point.Price > 0:
			r.remember(ctx, at, point.Price)
			return r.resolved(at, point.Price, mvrv.PriceSourceStore), nil
		case err != nil && !errors.Is(err, errors.ErrNotFound):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return mvrv.PricePoint{}, ctxErr
			}
			r.log.Warnw("Stored price lookup failed", "at", at, "error", err)
		}
	}

	if r.provider != nil {
		price, err := r.provider.GetHistoricalPrice(ctx, at)
		if err == nil && price > 0 {
			r.persist(ctx, at, price)
			r.remember(ctx, at, price)
			return r.resolved(at, price, mvrv.PriceSourceProvider), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return mvrv.PricePoint{}, ctxErr
		}
		r.log.Debugw("Historical price unavailable, using heuristic", "at", at, "error", err)
	}

	estimate := r.heuristic.Estimate(r.ReferencePrice(), r.now().Sub(at))
	return r.resolved(at, estimate, mvrv.PriceSourceHeuristic), nil
}

// remember caches an observed price under the exact instant
func (r *Resolver) remember(ctx context.Context, at time.Time, price float64) {
	r.cache.Set(at.Unix(), price, ttlcache.NoTTL)
	if r.shared == nil {
		return
	}
	if err := r.shared.Set(ctx, at, price); err != nil {
		r.log.Debugw("Shared price cache write failed", "at", at, "error", err)
	}
}

// persist stores a provider price at UTC midnight of its date
func (r *Resolver) persist(ctx context.Context, at time.Time, price float64) {
	if r.store == nil {
		return
	}
	date := mvrv.DayStart(at)
	if err := r.store.UpsertHistoricalPrice(ctx, date, price); err != nil {
		r.log.Warnw("Failed to persist historical price", "date", date, "error", err)
	}
}

func (r *Resolver) resolved(at time.Time, price float64, source mvrv.PriceSource) mvrv.PricePoint {
	metrics.RecordPriceResolution(string(source))
	return mvrv.PricePoint{At: at, Price: price, Source: source}
}

// CacheLen returns the number of prices held in process
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}
