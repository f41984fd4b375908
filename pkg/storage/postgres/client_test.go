package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"candlesync/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// testDSN returns the live test database DSN or skips the test.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CANDLESYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CANDLESYNC_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func newTestClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	client, err := postgres.NewClient(testDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.AutoMigrateCandleRecord())
	return client
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=127.0.0.1 port=1 user=fail password=fail dbname=fail sslmode=disable connect_timeout=1"

	_, err := postgres.NewClient(invalidDSN)
	require.Error(t, err)
}

// go test -v --run ^TestPostgresClientHealthy$
func TestPostgresClientHealthy(t *testing.T) {
	client := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.True(t, client.IsHealthy(ctx))
}
