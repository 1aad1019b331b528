package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mvrv/internal/adapters/clickhouse"
)

// ClickHouseTestHelper gives each test its own throwaway database.
type ClickHouseTestHelper struct {
	client   *clickhouse.Client
	database string
}

// NewClickHouseTestHelper connects using CLICKHOUSE_* env vars and creates a scratch database.
// The database is dropped when the test finishes.
func NewClickHouseTestHelper(t *testing.T) *ClickHouseTestHelper {
	t.Helper()

	cfg := ClickHouseConfigFromEnv(t)
	ctx := context.Background()

	admin, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	database := fmt.Sprintf("mvrv_test_%d", time.Now().UnixNano())
	if err := admin.Exec(ctx, "CREATE DATABASE "+database); err != nil {
		_ = admin.Close()
		t.Fatalf("failed to create clickhouse database: %v", err)
	}

	cfg.Database = database
	client, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		_ = admin.Close()
		t.Fatalf("failed to connect to clickhouse test database: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		_ = admin.Exec(context.Background(), "DROP DATABASE IF EXISTS "+database)
		_ = admin.Close()
	})

	return &ClickHouseTestHelper{client: client, database: database}
}

// Client exposes the client bound to the scratch database.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}
