package sampling

import (
	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
)

// Outcome of one sampling step
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Item kinds
const (
	KindBlockList = "block_list"
	KindBlock     = "block"
	KindTx        = "tx"
	KindOutput    = "output"
)

// ItemResult records what happened to one block, transaction or output
type ItemResult struct {
	Kind    string
	ID      string
	Outcome Outcome
	Err     error
}

// SampleReport is the result of one sampling pass
type SampleReport struct {
	Requested int
	UTXOs     []mvrv.UTXO
	Items     []ItemResult

	BlocksScanned int
	BlocksFailed  int
	TxFetched     int
	TxFailed      int
	DustSkipped   int

	ScriptClasses map[string]int
	addresses     map[string]struct{}
}

func newReport(requested int) *SampleReport {
	if requested < 0 {
		requested = 0
	}
	return &SampleReport{
		Requested:     requested,
		UTXOs:         make([]mvrv.UTXO, 0, requested),
		ScriptClasses: make(map[string]int),
		addresses:     make(map[string]struct{}),
	}
}

// Size returns the number of sampled UTXOs
func (r *SampleReport) Size() int {
	return len(r.UTXOs)
}

// Empty reports whether nothing was sampled
func (r *SampleReport) Empty() bool {
	return len(r.UTXOs) == 0
}

// DistinctAddresses returns the number of distinct destination addresses
func (r *SampleReport) DistinctAddresses() int {
	return len(r.addresses)
}

// Shortfall returns ErrPartialSample when fewer UTXOs than requested were collected
func (r *SampleReport) Shortfall() error {
	if len(r.UTXOs) >= r.Requested {
		return nil
	}
	return errors.Wrapf(errors.ErrPartialSample, "sampled %d of %d", len(r.UTXOs), r.Requested)
}

func (r *SampleReport) record(kind, id string, outcome Outcome, err error) {
	r.Items = append(r.Items, ItemResult{Kind: kind, ID: id, Outcome: outcome, Err: err})
	metrics.RecordSampleItem(kind, string(outcome))
}

func (r *SampleReport) add(u mvrv.UTXO) {
	r.UTXOs = append(r.UTXOs, u)
	class := u.ScriptClass
	if class == "" {
		class = "unknown"
	}
	r.ScriptClasses[class]++
	if u.Address != "" {
		r.addresses[u.Address] = struct{}{}
	}
}
