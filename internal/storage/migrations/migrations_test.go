package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFiles(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_migration_records.sql", "002_seen_mints.sql"}, pg)

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)

	for _, f := range ch {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+f)
		require.NoError(t, err)
		assert.Len(t, splitStatements(string(data)), 1, f)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "comments and blank lines",
			in:   "-- header\nCREATE TABLE a (x Int64);\n\nCREATE TABLE b (y String);\n",
			want: []string{"CREATE TABLE a (x Int64)", "CREATE TABLE b (y String)"},
		},
		{
			name: "semicolon in literal",
			in:   "INSERT INTO t VALUES ('a;b'); SELECT 1",
			want: []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name: "escaped quote",
			in:   "SELECT 'it''s; fine';",
			want: []string{"SELECT 'it''s; fine'"},
		},
		{
			name: "trailing comment after statement",
			in:   "SELECT 1; -- done; really\n",
			want: []string{"SELECT 1"},
		},
		{name: "empty", in: " ;; \n", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.in))
		})
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://u:p@host:9000/audit")
	require.NoError(t, err)
	assert.Equal(t, "audit", db)

	_, err = databaseFromDSN("clickhouse://host:9000")
	assert.Error(t, err)

	_, err = databaseFromDSN("clickhouse://host:9000/audit;drop")
	assert.Error(t, err)
}
