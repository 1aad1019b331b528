package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
)

// Schema creates the tables used by MVRVRepository.
// ReplacingMergeTree keyed on the upsert key gives last-write-wins semantics; reads use FINAL.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS mvrv_records (
		timestamp      DateTime('UTC'),
		timeframe      LowCardinality(String),
		market_value   Float64,
		realized_value Float64,
		ratio          Float64,
		signal         LowCardinality(String),
		confidence     Float64,
		degenerate     Bool,
		data_points    UInt32,
		updated_at     DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (timeframe, timestamp)`,

	`CREATE TABLE IF NOT EXISTS historical_prices (
		timestamp  DateTime('UTC'),
		price      Float64,
		updated_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY timestamp`,
}

const recordColumns = `timestamp, timeframe, market_value, realized_value, ratio, signal, confidence, degenerate, data_points, updated_at`

// MVRVRepository implements mvrv.Repository for ClickHouse
type MVRVRepository struct {
	conn driver.Conn
}

// NewMVRVRepository creates a new ClickHouse-backed repository
func NewMVRVRepository(conn driver.Conn) *MVRVRepository {
	return &MVRVRepository{conn: conn}
}

// Migrate creates missing tables
func (r *MVRVRepository) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if err := r.conn.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "clickhouse migrate")
		}
	}
	return nil
}

// UpsertRecord inserts a new version of the record; FINAL reads collapse older versions
func (r *MVRVRepository) UpsertRecord(ctx context.Context, record *mvrv.Record) error {
	if record == nil || !record.Timeframe.Valid() {
		return errors.Wrap(errors.ErrInvalidInput, "upsert record")
	}

	start := time.Now()
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	err := r.conn.Exec(ctx, `INSERT INTO mvrv_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UTC(),
		string(record.Timeframe),
		record.MarketValue,
		record.RealizedValue,
		record.Ratio,
		string(record.Signal),
		record.Confidence,
		record.Degenerate,
		uint32(record.DataPoints),
		updatedAt.UTC(),
	)
	metrics.RecordDBQuery("clickhouse", "upsert_record", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "insert mvrv record")
	}
	return nil
}

// QueryHistory returns the most recent limit records, oldest first
func (r *MVRVRepository) QueryHistory(ctx context.Context, tf mvrv.Timeframe, limit int) ([]mvrv.Record, error) {
	if limit <= 0 {
		limit = 1000
	}

	start := time.Now()
	records, err := r.query(ctx, `
		SELECT * FROM (
			SELECT `+recordColumns+`
			FROM mvrv_records FINAL
			WHERE timeframe = ?
			ORDER BY timestamp DESC
			LIMIT ?
		) ORDER BY timestamp ASC`, string(tf), limit)
	metrics.RecordDBQuery("clickhouse", "query_history", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "query mvrv history")
	}
	return records, nil
}

// GetLatest returns the newest record of a timeframe
func (r *MVRVRepository) GetLatest(ctx context.Context, tf mvrv.Timeframe) (*mvrv.Record, error) {
	records, err := r.query(ctx, `
		SELECT `+recordColumns+`
		FROM mvrv_records FINAL
		WHERE timeframe = ?
		ORDER BY timestamp DESC
		LIMIT 1`, string(tf))
	if err != nil {
		return nil, errors.Wrap(err, "query latest mvrv record")
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "latest %s record", tf)
	}
	return &records[0], nil
}

// QueryRange returns records with from <= timestamp < to, oldest first
func (r *MVRVRepository) QueryRange(ctx context.Context, tf mvrv.Timeframe, from, to time.Time) ([]mvrv.Record, error) {
	start := time.Now()
	records, err := r.query(ctx, `
		SELECT `+recordColumns+`
		FROM mvrv_records FINAL
		WHERE timeframe = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`, string(tf), from.UTC(), to.UTC())
	metrics.RecordDBQuery("clickhouse", "query_range", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "query mvrv range")
	}
	return records, nil
}

func (r *MVRVRepository) query(ctx context.Context, query string, args ...interface{}) ([]mvrv.Record, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]mvrv.Record, 0)
	for rows.Next() {
		var (
			rec        mvrv.Record
			timeframe  string
			signal     string
			dataPoints uint32
		)
		if err := rows.Scan(
			&rec.Timestamp, &timeframe, &rec.MarketValue, &rec.RealizedValue, &rec.Ratio,
			&signal, &rec.Confidence, &rec.Degenerate, &dataPoints, &rec.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan mvrv record")
		}
		rec.Timeframe = mvrv.Timeframe(timeframe)
		rec.Signal = mvrv.Signal(signal)
		rec.DataPoints = int(dataPoints)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// UpsertHistoricalPrice stores a price at an instant
func (r *MVRVRepository) UpsertHistoricalPrice(ctx context.Context, at time.Time, price float64) error {
	err := r.conn.Exec(ctx, `INSERT INTO historical_prices (timestamp, price, updated_at) VALUES (?, ?, ?)`,
		at.UTC(), price, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "insert historical price")
	}
	return nil
}

// UpsertHistoricalPrices stores prices in one batch
func (r *MVRVRepository) UpsertHistoricalPrices(ctx context.Context, points []mvrv.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	start := time.Now()
	batch, err := r.conn.PrepareBatch(ctx, `INSERT INTO historical_prices (timestamp, price, updated_at)`)
	if err != nil {
		return errors.Wrap(err, "prepare historical prices batch")
	}

	now := time.Now().UTC()
	for _, p := range points {
		if err := batch.Append(p.At.UTC(), p.Price, now); err != nil {
			return errors.Wrap(err, "append to historical prices batch")
		}
	}

	err = batch.Send()
	metrics.RecordDBQuery("clickhouse", "upsert_prices", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "send historical prices batch")
	}
	return nil
}

// GetPriceAtOrBefore returns the newest stored price not later than at
func (r *MVRVRepository) GetPriceAtOrBefore(ctx context.Context, at time.Time) (*mvrv.PricePoint, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT timestamp, price
		FROM historical_prices FINAL
		WHERE timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1`, at.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query price at or before")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "query price at or before")
		}
		return nil, errors.Wrapf(errors.ErrNotFound, "price at or before %s", at.UTC().Format(time.RFC3339))
	}

	p := &mvrv.PricePoint{Source: mvrv.PriceSourceStore}
	if err := rows.Scan(&p.At, &p.Price); err != nil {
		return nil, errors.Wrap(err, "scan historical price")
	}
	return p, nil
}

// Health checks ClickHouse connectivity
func (r *MVRVRepository) Health(ctx context.Context) error {
	return r.conn.Ping(ctx)
}
