package testutil

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// PostgresURLEnv names the connection string for the PostgreSQL integration tests
const PostgresURLEnv = "SOC_TEST_POSTGRES_URL"

// NewPostgresStore opens a migrated PostgreSQL store in a fresh schema that is
// dropped when the test ends. It skips the test unless SOC_TEST_POSTGRES_URL is set.
func NewPostgresStore(t testing.TB) *storage.Storage {
	t.Helper()

	dbURL := os.Getenv(PostgresURLEnv)
	if dbURL == "" {
		t.Skipf("Skipping PostgreSQL integration test (set %s to enable)", PostgresURLEnv)
	}
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	admin, err := storage.NewStorage("postgres", dbURL, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	schema := "soc_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	store, err := storage.NewStorage("postgres", withSearchPath(dbURL, schema), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, storage.Migrate(ctx, store, logger))
	return store
}

// withSearchPath pins every pooled connection to schema. It accepts both URL
// and key=value connection strings.
func withSearchPath(dbURL, schema string) string {
	u, err := url.Parse(dbURL)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return dbURL + " search_path=" + schema
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}
