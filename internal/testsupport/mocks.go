package testsupport

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"mvrv/internal/domain/mvrv"
)

// MockPriceProvider is a mock for mvrv.PriceProvider
type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) GetSpotPrice(ctx context.Context) (*mvrv.MarketSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mvrv.MarketSnapshot), args.Error(1)
}

func (m *MockPriceProvider) GetHistoricalPrice(ctx context.Context, date time.Time) (float64, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockPriceProvider) GetPriceRange(ctx context.Context, from, to time.Time) ([]mvrv.PricePoint, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mvrv.PricePoint), args.Error(1)
}

// MockBlockchainProvider is a mock for mvrv.BlockchainProvider
type MockBlockchainProvider struct {
	mock.Mock
}

func (m *MockBlockchainProvider) ListRecentBlocks(ctx context.Context, count int) ([]mvrv.Block, error) {
	args := m.Called(ctx, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mvrv.Block), args.Error(1)
}

func (m *MockBlockchainProvider) ListBlockTransactionIDs(ctx context.Context, blockID string, limit int) ([]string, error) {
	args := m.Called(ctx, blockID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBlockchainProvider) GetTransaction(ctx context.Context, txid string) (*mvrv.Transaction, error) {
	args := m.Called(ctx, txid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mvrv.Transaction), args.Error(1)
}
