package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/repository/memory"
	"mvrv/internal/workers"
	"mvrv/pkg/errors"
)

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Status() workers.Status {
	return m.Called().Get(0).(workers.Status)
}

func (m *MockScheduler) ManualUpdate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockValuation struct {
	mock.Mock
}

func (m *MockValuation) Aggregate(ctx context.Context, day time.Time) (*mvrv.Record, error) {
	args := m.Called(ctx, day)
	if rec := args.Get(0); rec != nil {
		return rec.(*mvrv.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockValuation) Insights(ctx context.Context, window int) (*mvrv.Insights, error) {
	args := m.Called(ctx, window)
	if in := args.Get(0); in != nil {
		return in.(*mvrv.Insights), args.Error(1)
	}
	return nil, args.Error(1)
}

var testNow = time.Date(2024, 6, 15, 14, 37, 0, 0, time.UTC)

func setup(t *testing.T) (*Handler, *http.ServeMux, *MockScheduler, *MockValuation, *memory.MVRVRepository) {
	t.Helper()
	sched := &MockScheduler{}
	val := &MockValuation{}
	repo := memory.NewMVRVRepository()

	h := New(sched, val, repo, 48)
	h.now = func() time.Time { return testNow }
	h.background = func(fn func()) { fn() }

	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux, sched, val, repo
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleStatus(t *testing.T) {
	_, mux, sched, _, _ := setup(t)
	sched.On("Status").Return(workers.Status{Running: true, State: workers.StateRunning, PendingTriggers: 2})

	rec := serve(mux, http.MethodGet, "/api/v1/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	var status workers.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Running)
	assert.Equal(t, 2, status.PendingTriggers)
}

func TestHandleUpdate(t *testing.T) {
	_, mux, sched, _, _ := setup(t)
	sched.On("ManualUpdate", mock.Anything).Return(errors.ErrNoData).Once()

	rec := serve(mux, http.MethodPost, "/api/v1/update")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	sched.AssertExpectations(t)

	rec = serve(mux, http.MethodGet, "/api/v1/update")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleAggregate(t *testing.T) {
	t.Run("defaults to yesterday", func(t *testing.T) {
		_, mux, _, val, _ := setup(t)
		yesterday := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
		val.On("Aggregate", mock.Anything, yesterday).
			Return(&mvrv.Record{Timeframe: mvrv.TimeframeDaily, Ratio: 2.1, DataPoints: 24}, nil)

		rec := serve(mux, http.MethodPost, "/api/v1/aggregate")

		assert.Equal(t, http.StatusOK, rec.Code)
		var record mvrv.Record
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
		assert.Equal(t, 24, record.DataPoints)
	})

	t.Run("explicit date without data", func(t *testing.T) {
		_, mux, _, val, _ := setup(t)
		val.On("Aggregate", mock.Anything, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).
			Return(nil, errors.Wrap(errors.ErrNoData, "no hourly records"))

		rec := serve(mux, http.MethodPost, "/api/v1/aggregate?date=2024-01-02")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		_, mux, _, val, _ := setup(t)
		rec := serve(mux, http.MethodPost, "/api/v1/aggregate?date=02/01/2024")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		val.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
	})
}

func TestHandleRecords(t *testing.T) {
	_, mux, _, _, repo := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.UpsertRecord(ctx, &mvrv.Record{
			Timestamp: testNow.Truncate(time.Hour).Add(time.Duration(i-3) * time.Hour),
			Timeframe: mvrv.TimeframeHourly,
			Ratio:     float64(i + 1),
		}))
	}

	rec := serve(mux, http.MethodGet, "/api/v1/records?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []mvrv.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, 2.0, records[0].Ratio)
	assert.Equal(t, 3.0, records[1].Ratio)

	rec = serve(mux, http.MethodGet, "/api/v1/records?timeframe=daily")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/api/v1/records?timeframe=weekly").Code)
	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/api/v1/records?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/api/v1/records?limit=abc").Code)
}

func TestHandleLatest(t *testing.T) {
	_, mux, _, _, repo := setup(t)

	assert.Equal(t, http.StatusNotFound, serve(mux, http.MethodGet, "/api/v1/records/latest").Code)

	require.NoError(t, repo.UpsertRecord(context.Background(), &mvrv.Record{
		Timestamp: testNow.Truncate(time.Hour),
		Timeframe: mvrv.TimeframeHourly,
		Ratio:     1.7,
		Signal:    mvrv.SignalHold,
	}))

	rec := serve(mux, http.MethodGet, "/api/v1/records/latest?timeframe=hourly")
	require.Equal(t, http.StatusOK, rec.Code)
	var record mvrv.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
	assert.Equal(t, 1.7, record.Ratio)
	assert.Equal(t, mvrv.SignalHold, record.Signal)
}

func TestHandleInsights(t *testing.T) {
	_, mux, _, val, _ := setup(t)
	val.On("Insights", mock.Anything, 48).Return(&mvrv.Insights{WindowSize: 48, Trend: "rising"}, nil).Once()
	val.On("Insights", mock.Anything, 48).Return(nil, errors.ErrUnavailable).Once()

	rec := serve(mux, http.MethodGet, "/api/v1/insights")
	require.Equal(t, http.StatusOK, rec.Code)
	var insights mvrv.Insights
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&insights))
	assert.Equal(t, "rising", insights.Trend)

	assert.Equal(t, http.StatusServiceUnavailable, serve(mux, http.MethodGet, "/api/v1/insights").Code)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(errors.NewValidationError("x", "bad", 1)))
	assert.Equal(t, http.StatusNotFound, StatusCode(errors.ErrNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(&errors.HTTPStatusError{Provider: "coingecko", Status: 502}))
	assert.Equal(t, http.StatusGatewayTimeout, StatusCode(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.ErrInternal))
}
