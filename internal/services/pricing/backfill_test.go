package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/repository/memory"
	"mvrv/internal/testsupport"
	"mvrv/pkg/errors"
)

func TestBackfiller_Run(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	points := make([]mvrv.PricePoint, 0, 5)
	for i := 0; i < 5; i++ {
		points = append(points, mvrv.PricePoint{
			At:     now.Add(-time.Duration(5-i) * 24 * time.Hour),
			Price:  60000 + float64(i)*100,
			Source: mvrv.PriceSourceProvider,
		})
	}

	provider := &testsupport.MockPriceProvider{}
	provider.On("GetPriceRange", mock.Anything, now.Add(-5*24*time.Hour), now).Return(points, nil)

	store := memory.NewMVRVRepository()
	b := NewBackfiller(BackfillConfig{Days: 5, BatchSize: 2}, provider, store)

	written, err := b.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	got, err := store.GetPriceAtOrBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 60400.0, got.Price)
	provider.AssertExpectations(t)
}

func TestBackfiller_EmptyRange(t *testing.T) {
	provider := &testsupport.MockPriceProvider{}
	provider.On("GetPriceRange", mock.Anything, mock.Anything, mock.Anything).Return([]mvrv.PricePoint{}, nil)

	b := NewBackfiller(BackfillConfig{Days: 30}, provider, memory.NewMVRVRepository())
	written, err := b.Run(context.Background(), time.Now())
	assert.ErrorIs(t, err, errors.ErrNoData)
	assert.Zero(t, written)
}

func TestBackfiller_Disabled(t *testing.T) {
	provider := &testsupport.MockPriceProvider{}
	b := NewBackfiller(BackfillConfig{Days: 0}, provider, memory.NewMVRVRepository())

	written, err := b.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, written)
	provider.AssertNotCalled(t, "GetPriceRange", mock.Anything, mock.Anything, mock.Anything)
}

type failingPriceStore struct {
	*memory.MVRVRepository
	err error
}

func (s *failingPriceStore) UpsertHistoricalPrices(context.Context, []mvrv.PricePoint) error {
	return s.err
}

func TestBackfiller_StoreFailure(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	points := []mvrv.PricePoint{
		{At: now.Add(-48 * time.Hour), Price: 60000, Source: mvrv.PriceSourceProvider},
		{At: now.Add(-24 * time.Hour), Price: 61000, Source: mvrv.PriceSourceProvider},
	}

	provider := &testsupport.MockPriceProvider{}
	provider.On("GetPriceRange", mock.Anything, mock.Anything, mock.Anything).Return(points, nil)

	store := &failingPriceStore{MVRVRepository: memory.NewMVRVRepository(), err: errors.ErrUnavailable}
	b := NewBackfiller(BackfillConfig{Days: 2, BatchSize: 100, FlushInterval: time.Minute}, provider, store)

	written, err := b.Run(context.Background(), now)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Zero(t, written)
}
