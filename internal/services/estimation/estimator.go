package estimation

import (
	"context"
	"math"
	"time"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// PriceResolver resolves the USD price at a UTXO's creation instant
type PriceResolver interface {
	Resolve(ctx context.Context, at time.Time) (mvrv.PricePoint, error)
}

// Config holds the estimation tuning values
type Config struct {
	TotalPopulation int64

	SmallSampleThreshold  int
	SmallSampleAdjustment float64
	MediumSampleThreshold int
	MediumSampleAdjust    float64
	LargeSampleAdjustment float64

	MultiplierBase            float64
	MultiplierSpan            float64
	ApplyConfidenceMultiplier bool

	// HeuristicConfidencePenalty scales the confidence of UTXOs priced by the heuristic tier
	HeuristicConfidencePenalty float64
}

// DefaultConfig returns the standard tuning values
func DefaultConfig() Config {
	return Config{
		TotalPopulation:            87_500_000,
		SmallSampleThreshold:       1000,
		SmallSampleAdjustment:      0.8,
		MediumSampleThreshold:      2000,
		MediumSampleAdjust:         0.9,
		LargeSampleAdjustment:      1.0,
		MultiplierBase:             0.8,
		MultiplierSpan:             0.4,
		HeuristicConfidencePenalty: 0.7,
	}
}

// Estimator turns a UTXO sample into a scaled, confidence-weighted realized value
type Estimator struct {
	cfg      Config
	resolver PriceResolver
	log      *logger.Logger
}

// NewEstimator creates an estimator
func NewEstimator(cfg Config, resolver PriceResolver) *Estimator {
	return &Estimator{
		cfg:      cfg,
		resolver: resolver,
		log:      logger.Get().With("component", "realized_value_estimator"),
	}
}

// Estimate prices every UTXO at its creation instant and projects the sample onto
// the UTXO population. Returns ErrSampleUnavailable when nothing could be priced.
func (e *Estimator) Estimate(ctx context.Context, sample []mvrv.UTXO) (*mvrv.EstimationResult, error) {
	if len(sample) == 0 {
		return nil, errors.Wrap(errors.ErrSampleUnavailable, "empty sample")
	}

	result := &mvrv.EstimationResult{}
	var confidenceSum float64

	for _, u := range sample {
		point, err := e.resolver.Resolve(ctx, u.CreatedAt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			result.SkippedCount++
			e.log.Debugw("Price unresolved, skipping utxo", "txid", u.TxID, "vout", u.OutputIndex, "error", err)
			continue
		}

		confidence := u.Confidence
		if point.IsHeuristic() {
			confidence *= e.cfg.HeuristicConfidencePenalty
			result.HeuristicCount++
		}

		value := u.BTC() * point.Price
		result.RawValue += value
		result.WeightedValue += value * confidence
		confidenceSum += confidence
		result.PricedCount++
	}

	if result.PricedCount == 0 {
		return nil, errors.Wrapf(errors.ErrSampleUnavailable, "none of %d utxos priced", len(sample))
	}

	result.SampleSize = result.PricedCount
	result.AverageConfidence = confidenceSum / float64(result.PricedCount)
	result.ConfidenceMultiplier = e.ConfidenceMultiplier(result.AverageConfidence)
	result.ScalingFactor = e.ScalingFactor(result.SampleSize)

	result.RealizedValue = result.WeightedValue * result.ScalingFactor
	if e.cfg.ApplyConfidenceMultiplier {
		result.RealizedValue *= result.ConfidenceMultiplier
	}

	metrics.RecordEstimate(result.SampleSize, result.ScalingFactor, result.ConfidenceMultiplier, result.AverageConfidence)

	e.log.Infow("Realized value estimated",
		"sample_size", result.SampleSize,
		"skipped", result.SkippedCount,
		"heuristic_priced", result.HeuristicCount,
		"raw_value", result.RawValue,
		"weighted_value", result.WeightedValue,
		"avg_confidence", result.AverageConfidence,
		"scaling_factor", result.ScalingFactor,
		"realized_value", result.RealizedValue,
	)

	return result, nil
}

// ConfidenceMultiplier maps an average confidence in [0,1] onto [base, base+span],
// never leaving [MinConfidenceMultiplier, MaxConfidenceMultiplier]
func (e *Estimator) ConfidenceMultiplier(avg float64) float64 {
	if avg < 0 {
		avg = 0
	}
	if avg > 1 {
		avg = 1
	}
	lo := math.Max(e.cfg.MultiplierBase, mvrv.MinConfidenceMultiplier)
	hi := math.Min(e.cfg.MultiplierBase+e.cfg.MultiplierSpan, mvrv.MaxConfidenceMultiplier)
	return math.Min(hi, math.Max(lo, e.cfg.MultiplierBase+avg*e.cfg.MultiplierSpan))
}

// SampleAdjustment returns the dampening applied to the scaling factor for a sample of n
func (e *Estimator) SampleAdjustment(n int) float64 {
	switch {
	case n < e.cfg.SmallSampleThreshold:
		return e.cfg.SmallSampleAdjustment
	case n < e.cfg.MediumSampleThreshold:
		return e.cfg.MediumSampleAdjust
	default:
		return e.cfg.LargeSampleAdjustment
	}
}

// ScalingFactor projects a sample of n onto the population. Never below 1; exactly 1 for n == 0.
func (e *Estimator) ScalingFactor(n int) float64 {
	if n <= 0 {
		return 1
	}
	f := float64(e.cfg.TotalPopulation) / float64(n) * e.SampleAdjustment(n)
	if f < 1 {
		return 1
	}
	return f
}
