package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, int64(1000), cfg.Estimation.DustThreshold)
	assert.Equal(t, int64(87_500_000), cfg.Estimation.TotalPopulation)
	assert.Equal(t, 0.8, cfg.Estimation.SmallSampleAdjustment)
	assert.Equal(t, 0.9, cfg.Estimation.MediumSampleAdjust)
	assert.Equal(t, 1.0, cfg.Estimation.LargeSampleAdjustment)
	assert.Equal(t, 0.8, cfg.Estimation.MultiplierBase)
	assert.Equal(t, 0.4, cfg.Estimation.MultiplierSpan)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StopTimeout)
	assert.Equal(t, "00:30", cfg.Scheduler.DailyAt)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "clickhouse")
	t.Setenv("ESTIMATION_TOTAL_UTXO_POPULATION", "90000000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_HOST", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendClickHouse, cfg.Storage.Backend)
	assert.Equal(t, int64(90_000_000), cfg.Estimation.TotalPopulation)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("ESTIMATION_SMALL_SAMPLE_ADJUSTMENT", "1.5")
	t.Setenv("SCHEDULER_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	var multi *errors.MultiError
	require.True(t, errors.As(err, &multi))
	assert.Len(t, multi.Errors, 3)
}

func TestValidate_MultiplierBounds(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		span    string
		wantErr bool
	}{
		{name: "defaults", base: "0.8", span: "0.4"},
		{name: "narrower range", base: "0.9", span: "0.2"},
		{name: "base above bound", base: "1.5", span: "0.4", wantErr: true},
		{name: "base below bound", base: "0.5", span: "0.4", wantErr: true},
		{name: "span too wide", base: "0.8", span: "0.6", wantErr: true},
		{name: "negative span", base: "0.8", span: "-0.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ESTIMATION_MULTIPLIER_BASE", tt.base)
			t.Setenv("ESTIMATION_MULTIPLIER_SPAN", tt.span)

			_, err := Load()
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}
