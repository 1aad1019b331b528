package sampling

import (
	"context"
	"fmt"
	"time"

	"mvrv/internal/adapters/ratelimit"
	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/logger"
)

// Config configures the sampler
type Config struct {
	BlockWindow   int           // most recent blocks to walk
	TxPerBlock    int           // transactions fetched per block
	DustThreshold int64         // outputs below this many sats are skipped
	RequestPause  time.Duration // minimum spacing between upstream calls
}

// Sampler builds a bounded UTXO sample by walking recent blocks
type Sampler struct {
	cfg      Config
	provider mvrv.BlockchainProvider
	limiter  *ratelimit.Limiter
	log      *logger.Logger
}

// NewSampler creates a sampler
func NewSampler(cfg Config, provider mvrv.BlockchainProvider) *Sampler {
	return &Sampler{
		cfg:      cfg,
		provider: provider,
		limiter:  ratelimit.NewPause("sampler", cfg.RequestPause),
		log:      logger.Get().With("component", "utxo_sampler"),
	}
}

// Sample collects up to target UTXOs. It never fails: provider errors become
// per-item results in the report, and a failed block listing yields an empty sample.
func (s *Sampler) Sample(ctx context.Context, target int) *SampleReport {
	if target <= 0 {
		return newReport(0)
	}
	report := newReport(target)

	blocks, err := s.provider.ListRecentBlocks(ctx, s.cfg.BlockWindow)
	if err != nil {
		s.log.Warnw("Block listing failed, sample unavailable", "error", err)
		report.record(KindBlockList, "", OutcomeFailed, err)
		return report
	}
	report.record(KindBlockList, "", OutcomeOK, nil)

	for _, block := range blocks {
		if s.collectBlock(ctx, block, report) {
			break
		}
	}

	s.log.Debugw("Sampling finished",
		"requested", target,
		"sampled", report.Size(),
		"blocks_scanned", report.BlocksScanned,
		"tx_fetched", report.TxFetched,
		"tx_failed", report.TxFailed,
		"dust_skipped", report.DustSkipped,
		"distinct_addresses", report.DistinctAddresses(),
	)

	return report
}

// collectBlock samples one block and reports whether sampling should stop
func (s *Sampler) collectBlock(ctx context.Context, block mvrv.Block, report *SampleReport) bool {
	if err := s.limiter.Wait(ctx); err != nil {
		return true
	}

	txids, err := s.provider.ListBlockTransactionIDs(ctx, block.ID, s.cfg.TxPerBlock)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		s.log.Debugw("Block transactions unavailable, skipping block", "block", block.ID, "height", block.Height, "error", err)
		report.BlocksFailed++
		report.record(KindBlock, block.ID, OutcomeFailed, err)
		return false
	}
	report.BlocksScanned++
	report.record(KindBlock, block.ID, OutcomeOK, nil)

	for _, txid := range txids {
		if err := s.limiter.Wait(ctx); err != nil {
			return true
		}

		tx, err := s.provider.GetTransaction(ctx, txid)
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			report.TxFailed++
			report.record(KindTx, txid, OutcomeFailed, err)
			continue
		}
		report.TxFetched++
		report.record(KindTx, txid, OutcomeOK, nil)

		for _, out := range tx.Outputs {
			if out.ValueSats < s.cfg.DustThreshold {
				report.DustSkipped++
				report.record(KindOutput, fmt.Sprintf("%s:%d", tx.TxID, out.Index), OutcomeSkipped, nil)
				continue
			}

			report.add(mvrv.UTXO{
				TxID:        tx.TxID,
				OutputIndex: out.Index,
				ValueSats:   out.ValueSats,
				CreatedAt:   block.Timestamp,
				Address:     out.Address,
				ScriptClass: out.ScriptClass,
				Confidence:  ScoreConfidence(out.ValueSats, out.ScriptClass),
			})

			if report.Size() >= report.Requested {
				return true
			}
		}
	}

	return false
}

// ScoreConfidence rates how much an output can be trusted as a value holder,
// from its size and whether its script class is a common standard one. Result is in [0, 1].
func ScoreConfidence(valueSats int64, scriptClass string) float64 {
	score := 0.5

	switch {
	case valueSats > mvrv.SatoshisPerBTC:
		score += 0.3
	case valueSats > mvrv.SatoshisPerBTC/10:
		score += 0.2
	case valueSats > mvrv.SatoshisPerBTC/100:
		score += 0.1
	}

	switch scriptClass {
	case "p2pkh", "p2sh", "v0_p2wpkh":
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}
