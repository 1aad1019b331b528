package valuation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/services/sampling"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// Sampler builds a UTXO sample
type Sampler interface {
	Sample(ctx context.Context, target int) *sampling.SampleReport
}

// Estimator estimates realized value from a sample
type Estimator interface {
	Estimate(ctx context.Context, sample []mvrv.UTXO) (*mvrv.EstimationResult, error)
}

// ReferencePricer receives the spot price used to anchor heuristic prices
type ReferencePricer interface {
	SetReferencePrice(price float64)
}

// Backfiller loads recent historical prices into the store
type Backfiller interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// PipelineDeps wires the hourly cycle. Backfill and Reference are optional.
type PipelineDeps struct {
	Prices    mvrv.PriceProvider
	Repo      mvrv.Repository
	Sampler   Sampler
	Estimator Estimator
	Computer  *Computer
	Backfill  Backfiller
	Reference ReferencePricer
}

// CycleResult describes one hourly cycle
type CycleResult struct {
	CycleID  string
	Record   *mvrv.Record
	Snapshot *mvrv.MarketSnapshot
	Report   *sampling.SampleReport
	Estimate *mvrv.EstimationResult

	// MarketFallback is set when the previous market value was reused
	MarketFallback bool
	// RealizedFallback is set when the previous realized value was reused
	RealizedFallback bool
}

// Fallback reports whether any value was carried over from the previous record
func (r *CycleResult) Fallback() bool {
	return r.MarketFallback || r.RealizedFallback
}

// Pipeline runs the hourly estimation cycle and the daily aggregation
type Pipeline struct {
	deps         PipelineDeps
	sampleTarget int
	log          *logger.Logger
	now          func() time.Time
}

// NewPipeline creates a pipeline
func NewPipeline(deps PipelineDeps, sampleTarget int) *Pipeline {
	return &Pipeline{
		deps:         deps,
		sampleTarget: sampleTarget,
		log:          logger.Get().With("component", "mvrv_pipeline"),
		now:          time.Now,
	}
}

// RunHourly collects the market snapshot, samples, estimates realized value and
// stores the hourly record. Sampling completes before estimation, and estimation
// before the record is written. Provider failures fall back to the latest hourly
// record; with no prior record the cycle returns ErrNoData and writes nothing.
func (p *Pipeline) RunHourly(ctx context.Context) (*CycleResult, error) {
	cycleID := errors.CycleID(ctx)
	if cycleID == "" {
		cycleID = uuid.NewString()
		ctx = errors.WithCycleID(ctx, cycleID)
	}
	log := p.log.With("cycle_id", cycleID)

	now := p.now().UTC()
	result := &CycleResult{CycleID: cycleID}
	prev := &previousRecord{repo: p.deps.Repo}

	// market value
	marketValue, err := p.marketValue(ctx, log, result, prev)
	if err != nil {
		return result, err
	}

	if p.deps.Backfill != nil {
		if n, err := p.deps.Backfill.Run(ctx, now); err != nil {
			log.Warnw("Historical price backfill failed", "error", err)
		} else {
			log.Debugw("Historical prices backfilled", "count", n)
		}
	}

	// realized value
	result.Report = p.deps.Sampler.Sample(ctx, p.sampleTarget)
	if err := result.Report.Shortfall(); err != nil {
		log.Warnw("Partial sample", "error", err, "blocks_failed", result.Report.BlocksFailed, "tx_failed", result.Report.TxFailed)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	input := ComputeInput{
		Timestamp:   mvrv.HourStart(now),
		Timeframe:   mvrv.TimeframeHourly,
		MarketValue: marketValue,
	}

	est, err := p.deps.Estimator.Estimate(ctx, result.Report.UTXOs)
	switch {
	case err == nil:
		result.Estimate = est
		input.RealizedValue = est.RealizedValue
		input.Confidence = est.AverageConfidence
		input.DataPoints = est.SampleSize

	case errors.Is(err, errors.ErrSampleUnavailable):
		last, lastErr := prev.get(ctx)
		if lastErr != nil {
			return result, errors.Wrapf(errors.ErrNoData, "sample unavailable and no previous realized value: %v", lastErr)
		}
		log.Warnw("Sample unavailable, reusing previous realized value",
			"error", err,
			"previous_timestamp", last.Timestamp,
			"realized_value", last.RealizedValue,
		)
		result.RealizedFallback = true
		input.RealizedValue = last.RealizedValue
		input.Confidence = last.Confidence
		input.DataPoints = 0

	default:
		return result, errors.Wrap(err, "estimate realized value")
	}

	record, err := p.deps.Computer.Compute(ctx, input)
	if err != nil {
		return result, err
	}
	result.Record = record

	log.Infow("Hourly MVRV computed",
		"timestamp", record.Timestamp,
		"ratio", record.Ratio,
		"signal", record.Signal,
		"market_value", record.MarketValue,
		"realized_value", record.RealizedValue,
		"confidence", record.Confidence,
		"data_points", record.DataPoints,
		"fallback", result.Fallback(),
	)
	return result, nil
}

func (p *Pipeline) marketValue(ctx context.Context, log *logger.Logger, result *CycleResult, prev *previousRecord) (float64, error) {
	snapshot, err := p.deps.Prices.GetSpotPrice(ctx)
	if err == nil && (snapshot == nil || snapshot.MarketValue() <= 0) {
		err = errors.Wrap(errors.ErrNoData, "empty market snapshot")
	}
	if err == nil {
		result.Snapshot = snapshot
		if p.deps.Reference != nil {
			p.deps.Reference.SetReferencePrice(snapshot.PriceUSD)
		}
		return snapshot.MarketValue(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}

	last, lastErr := prev.get(ctx)
	if lastErr != nil {
		return 0, errors.Wrapf(errors.ErrNoData, "spot price unavailable (%v) and no previous market value", err)
	}

	log.Warnw("Spot price unavailable, reusing previous market value",
		"error", err,
		"previous_timestamp", last.Timestamp,
		"market_value", last.MarketValue,
	)
	result.MarketFallback = true
	return last.MarketValue, nil
}

// RunDaily aggregates the UTC calendar day before now
func (p *Pipeline) RunDaily(ctx context.Context) (*mvrv.Record, error) {
	yesterday := mvrv.DayStart(p.now()).Add(-24 * time.Hour)
	return p.deps.Computer.Aggregate(ctx, yesterday)
}

// previousRecord loads the latest hourly record at most once per cycle
type previousRecord struct {
	repo   mvrv.Repository
	loaded bool
	record *mvrv.Record
	err    error
}

func (p *previousRecord) get(ctx context.Context) (*mvrv.Record, error) {
	if !p.loaded {
		p.record, p.err = p.repo.GetLatest(ctx, mvrv.TimeframeHourly)
		p.loaded = true
	}
	return p.record, p.err
}
