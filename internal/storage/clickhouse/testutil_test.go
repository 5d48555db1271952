package clickhouse

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestConn starts a throwaway ClickHouse server holding the
// migration_records table. Skipped under -short.
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse container test skipped in short mode")
	}
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"CLICKHOUSE_DB":       "sentinel",
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
			WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s/sentinel", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	dir := os.DirFS("../migrations/clickhouse")
	names, err := fs.Glob(dir, "*.sql")
	require.NoError(t, err)
	for _, name := range names {
		body, err := fs.ReadFile(dir, name)
		require.NoError(t, err)
		// each file holds a single statement
		stmt := strings.TrimSuffix(strings.TrimSpace(string(body)), ";")
		require.NoError(t, conn.Exec(ctx, stmt), "apply %s", name)
	}
	return conn
}

func ptr[T any](v T) *T { return &v }
