package mvrv

import (
	"context"
	"time"
)

// Block is a block header as returned by a blockchain data provider
type Block struct {
	ID        string
	Height    int64
	Timestamp time.Time
}

// TxOutput is one output of a transaction
type TxOutput struct {
	Index       uint32
	ValueSats   int64
	Address     string
	ScriptClass string
}

// Transaction is a transaction with its outputs
type Transaction struct {
	TxID    string
	Outputs []TxOutput
}

// BlockchainProvider returns recent blocks and transactions.
// Every call may fail; callers treat failures as per-item skips.
type BlockchainProvider interface {
	ListRecentBlocks(ctx context.Context, count int) ([]Block, error)
	ListBlockTransactionIDs(ctx context.Context, blockID string, limit int) ([]string, error)
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
}

// PriceProvider returns spot and historical USD prices
type PriceProvider interface {
	// GetSpotPrice returns the current price and circulating supply
	GetSpotPrice(ctx context.Context) (*MarketSnapshot, error)

	// GetHistoricalPrice returns the price for a calendar date.
	// Returns errors.ErrNoData when the provider has no market data for that day.
	GetHistoricalPrice(ctx context.Context, date time.Time) (float64, error)

	// GetPriceRange returns daily prices between from and to (bulk backfill)
	GetPriceRange(ctx context.Context, from, to time.Time) ([]PricePoint, error)
}
