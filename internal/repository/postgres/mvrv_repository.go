package postgres

import (
	"context"
	"database/sql"
	"time"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
)

// Schema creates the tables used by MVRVRepository
const Schema = `
CREATE TABLE IF NOT EXISTS mvrv_records (
	timestamp      TIMESTAMPTZ      NOT NULL,
	timeframe      TEXT             NOT NULL,
	market_value   DOUBLE PRECISION NOT NULL,
	realized_value DOUBLE PRECISION NOT NULL,
	ratio          DOUBLE PRECISION NOT NULL,
	signal         TEXT             NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	degenerate     BOOLEAN          NOT NULL DEFAULT FALSE,
	data_points    INTEGER          NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (timeframe, timestamp)
);

CREATE TABLE IF NOT EXISTS historical_prices (
	timestamp  TIMESTAMPTZ      PRIMARY KEY,
	price      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);
`

const recordColumns = `timestamp, timeframe, market_value, realized_value, ratio, signal, confidence, degenerate, data_points, updated_at`

// MVRVRepository implements mvrv.Repository using sqlx
type MVRVRepository struct {
	db DBTX
}

// NewMVRVRepository creates a new MVRV repository
func NewMVRVRepository(db DBTX) *MVRVRepository {
	return &MVRVRepository{db: db}
}

// Migrate creates missing tables
func (r *MVRVRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "postgres migrate")
	}
	return nil
}

// UpsertRecord inserts or overwrites the record for (timestamp, timeframe)
func (r *MVRVRepository) UpsertRecord(ctx context.Context, record *mvrv.Record) error {
	if record == nil || !record.Timeframe.Valid() {
		return errors.Wrap(errors.ErrInvalidInput, "upsert record")
	}

	row := *record
	row.Timestamp = record.Timestamp.UTC()
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO mvrv_records (` + recordColumns + `)
		VALUES (:timestamp, :timeframe, :market_value, :realized_value, :ratio, :signal,
		        :confidence, :degenerate, :data_points, :updated_at)
		ON CONFLICT (timeframe, timestamp) DO UPDATE SET
			market_value   = EXCLUDED.market_value,
			realized_value = EXCLUDED.realized_value,
			ratio          = EXCLUDED.ratio,
			signal         = EXCLUDED.signal,
			confidence     = EXCLUDED.confidence,
			degenerate     = EXCLUDED.degenerate,
			data_points    = EXCLUDED.data_points,
			updated_at     = EXCLUDED.updated_at`

	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, query, &row)
	metrics.RecordDBQuery("postgres", "upsert_record", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "upsert mvrv record")
	}
	return nil
}

// QueryHistory returns the most recent limit records, oldest first
func (r *MVRVRepository) QueryHistory(ctx context.Context, tf mvrv.Timeframe, limit int) ([]mvrv.Record, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT * FROM (
			SELECT ` + recordColumns + `
			FROM mvrv_records
			WHERE timeframe = $1
			ORDER BY timestamp DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC`

	start := time.Now()
	records := make([]mvrv.Record, 0)
	err := r.db.SelectContext(ctx, &records, query, tf, limit)
	metrics.RecordDBQuery("postgres", "query_history", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "query mvrv history")
	}
	return normalize(records), nil
}

// GetLatest returns the newest record of a timeframe
func (r *MVRVRepository) GetLatest(ctx context.Context, tf mvrv.Timeframe) (*mvrv.Record, error) {
	var rec mvrv.Record
	query := `SELECT ` + recordColumns + ` FROM mvrv_records WHERE timeframe = $1 ORDER BY timestamp DESC LIMIT 1`

	err := r.db.GetContext(ctx, &rec, query, tf)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "latest %s record", tf)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get latest mvrv record")
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

// QueryRange returns records with from <= timestamp < to, oldest first
func (r *MVRVRepository) QueryRange(ctx context.Context, tf mvrv.Timeframe, from, to time.Time) ([]mvrv.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM mvrv_records
		WHERE timeframe = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC`

	start := time.Now()
	records := make([]mvrv.Record, 0)
	err := r.db.SelectContext(ctx, &records, query, tf, from.UTC(), to.UTC())
	metrics.RecordDBQuery("postgres", "query_range", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "query mvrv range")
	}
	return normalize(records), nil
}

func normalize(records []mvrv.Record) []mvrv.Record {
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records
}

// UpsertHistoricalPrice stores a price at an instant
func (r *MVRVRepository) UpsertHistoricalPrice(ctx context.Context, at time.Time, price float64) error {
	query := `
		INSERT INTO historical_prices (timestamp, price, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (timestamp) DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, at.UTC(), price); err != nil {
		return errors.Wrap(err, "upsert historical price")
	}
	return nil
}

type priceRow struct {
	Timestamp time.Time `db:"timestamp"`
	Price     float64   `db:"price"`
}

// UpsertHistoricalPrices stores a batch of prices in one statement
func (r *MVRVRepository) UpsertHistoricalPrices(ctx context.Context, points []mvrv.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	// ON CONFLICT cannot touch the same row twice in one statement
	byInstant := make(map[int64]priceRow, len(points))
	for _, p := range points {
		byInstant[p.At.Unix()] = priceRow{Timestamp: p.At.UTC(), Price: p.Price}
	}
	rows := make([]priceRow, 0, len(byInstant))
	for _, row := range byInstant {
		rows = append(rows, row)
	}

	query := `
		INSERT INTO historical_prices (timestamp, price)
		VALUES (:timestamp, :price)
		ON CONFLICT (timestamp) DO UPDATE SET price = EXCLUDED.price, updated_at = NOW()`

	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, query, rows)
	metrics.RecordDBQuery("postgres", "upsert_prices", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "upsert historical prices")
	}
	return nil
}

// GetPriceAtOrBefore returns the newest stored price not later than at
func (r *MVRVRepository) GetPriceAtOrBefore(ctx context.Context, at time.Time) (*mvrv.PricePoint, error) {
	var row priceRow
	query := `SELECT timestamp, price FROM historical_prices WHERE timestamp <= $1 ORDER BY timestamp DESC LIMIT 1`

	err := r.db.GetContext(ctx, &row, query, at.UTC())
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "price at or before %s", at.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return nil, errors.Wrap(err, "get price at or before")
	}

	return &mvrv.PricePoint{At: row.Timestamp.UTC(), Price: row.Price, Source: mvrv.PriceSourceStore}, nil
}
