package sampling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/testsupport"
	"mvrv/pkg/errors"
)

var (
	t1 = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 6, 15, 9, 50, 0, 0, time.UTC)
)

func testConfig() Config {
	return Config{BlockWindow: 2, TxPerBlock: 3, DustThreshold: 1000}
}

func tx(id string, outs ...mvrv.TxOutput) *mvrv.Transaction {
	for i := range outs {
		outs[i].Index = uint32(i)
	}
	return &mvrv.Transaction{TxID: id, Outputs: outs}
}

func TestSampler_CollectsAndFiltersDust(t *testing.T) {
	provider := &testsupport.MockBlockchainProvider{}
	provider.On("ListRecentBlocks", mock.Anything, 2).Return([]mvrv.Block{
		{ID: "b1", Height: 2, Timestamp: t1},
		{ID: "b2", Height: 1, Timestamp: t2},
	}, nil)
	provider.On("ListBlockTransactionIDs", mock.Anything, "b1", 3).Return([]string{"a", "b"}, nil)
	provider.On("ListBlockTransactionIDs", mock.Anything, "b2", 3).Return(nil, errors.ErrProviderUnavailable)
	provider.On("GetTransaction", mock.Anything, "a").Return(tx("a",
		mvrv.TxOutput{ValueSats: 200_000_000, Address: "addr1", ScriptClass: "p2pkh"},
		mvrv.TxOutput{ValueSats: 546, Address: "dust", ScriptClass: "p2pkh"},
	), nil)
	provider.On("GetTransaction", mock.Anything, "b").Return(nil, errors.ErrProviderUnavailable)

	report := NewSampler(testConfig(), provider).Sample(context.Background(), 10)

	require.Equal(t, 1, report.Size())
	u := report.UTXOs[0]
	assert.Equal(t, "a", u.TxID)
	assert.Equal(t, uint32(0), u.OutputIndex)
	assert.Equal(t, t1, u.CreatedAt)
	assert.InDelta(t, 0.9, u.Confidence, 1e-9)

	assert.Equal(t, 1, report.DustSkipped)
	assert.Contains(t, report.Items, ItemResult{Kind: KindOutput, ID: "a:1", Outcome: OutcomeSkipped})
	assert.Equal(t, 1, report.TxFetched)
	assert.Equal(t, 1, report.TxFailed)
	assert.Equal(t, 1, report.BlocksScanned)
	assert.Equal(t, 1, report.BlocksFailed)
	assert.Equal(t, 1, report.DistinctAddresses())
	assert.Equal(t, 1, report.ScriptClasses["p2pkh"])
	assert.ErrorIs(t, report.Shortfall(), errors.ErrPartialSample)
}

func TestSampler_StopsAtTarget(t *testing.T) {
	provider := &testsupport.MockBlockchainProvider{}
	provider.On("ListRecentBlocks", mock.Anything, 2).Return([]mvrv.Block{
		{ID: "b1", Timestamp: t1},
		{ID: "b2", Timestamp: t2},
	}, nil)
	provider.On("ListBlockTransactionIDs", mock.Anything, "b1", 3).Return([]string{"a", "b", "c"}, nil)
	provider.On("GetTransaction", mock.Anything, "a").Return(tx("a",
		mvrv.TxOutput{ValueSats: 5_000_000, ScriptClass: "v1_p2tr"},
		mvrv.TxOutput{ValueSats: 7_000_000, ScriptClass: "v0_p2wpkh"},
		mvrv.TxOutput{ValueSats: 9_000_000, ScriptClass: "v0_p2wsh"},
	), nil)

	report := NewSampler(testConfig(), provider).Sample(context.Background(), 2)

	assert.Equal(t, 2, report.Size())
	assert.NoError(t, report.Shortfall())
	provider.AssertNotCalled(t, "GetTransaction", mock.Anything, "b")
	provider.AssertNotCalled(t, "ListBlockTransactionIDs", mock.Anything, "b2", mock.Anything)
}

func TestSampler_BlockListingFailureYieldsEmptySample(t *testing.T) {
	provider := &testsupport.MockBlockchainProvider{}
	provider.On("ListRecentBlocks", mock.Anything, 2).Return(nil, errors.ErrProviderUnavailable)

	report := NewSampler(testConfig(), provider).Sample(context.Background(), 10)

	assert.True(t, report.Empty())
	require.Len(t, report.Items, 1)
	assert.Equal(t, KindBlockList, report.Items[0].Kind)
	assert.Equal(t, OutcomeFailed, report.Items[0].Outcome)
}

func TestSampler_CancelledContextStops(t *testing.T) {
	provider := &testsupport.MockBlockchainProvider{}
	provider.On("ListRecentBlocks", mock.Anything, 2).Return([]mvrv.Block{{ID: "b1", Timestamp: t1}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewSampler(testConfig(), provider).Sample(ctx, 10)
	assert.True(t, report.Empty())
	provider.AssertNotCalled(t, "ListBlockTransactionIDs", mock.Anything, mock.Anything, mock.Anything)
}

func TestScoreConfidence(t *testing.T) {
	tests := []struct {
		sats  int64
		class string
		want  float64
	}{
		{sats: 200_000_000, class: "p2pkh", want: 0.9},
		{sats: 200_000_000, class: "v1_p2tr", want: 0.8},
		{sats: 50_000_000, class: "p2sh", want: 0.8},
		{sats: 5_000_000, class: "v0_p2wpkh", want: 0.7},
		{sats: 5_000, class: "", want: 0.5},
		{sats: mvrv.SatoshisPerBTC, class: "", want: 0.7},
	}

	for _, tt := range tests {
		got := ScoreConfidence(tt.sats, tt.class)
		assert.InDelta(t, tt.want, got, 1e-9, "sats=%d class=%s", tt.sats, tt.class)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestSampler_NonPositiveTarget(t *testing.T) {
	provider := &testsupport.MockBlockchainProvider{}
	sampler := NewSampler(testConfig(), provider)

	for _, target := range []int{0, -1} {
		report := sampler.Sample(context.Background(), target)
		assert.True(t, report.Empty())
		assert.Empty(t, report.Items)
		assert.NoError(t, report.Shortfall())
	}
	provider.AssertNotCalled(t, "ListRecentBlocks", mock.Anything, mock.Anything)
}
