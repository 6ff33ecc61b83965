package database

import (
	"context"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

func TestConfig_BuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "postgres",
			cfg: Config{
				Driver: DriverPostgres, Host: "localhost", Port: 5432,
				User: "reader", Password: "secret", Database: "overdoses", SSLMode: "disable",
			},
			want: "host=localhost port=5432 user=reader password=secret dbname=overdoses sslmode=disable",
		},
		{
			name: "mysql",
			cfg: Config{
				Driver: DriverMySQL, Host: "db", Port: 3306,
				User: "reader", Password: "secret", Database: "overdoses",
			},
			want: "reader:secret@tcp(db:3306)/overdoses?parseTime=true",
		},
		{
			name: "sqlite3 opens read only",
			cfg:  Config{Driver: DriverSQLite, Database: "data/cases.db"},
			want: "file:data/cases.db?mode=ro",
		},
		{
			name:    "sqlite3 without path",
			cfg:     Config{Driver: DriverSQLite},
			wantErr: true,
		},
		{
			name: "explicit dsn wins",
			cfg:  Config{Driver: DriverPostgres, DSN: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name:    "unknown driver",
			cfg:     Config{Driver: "oracle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.BuildDSN()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDB_SelectAndClose(t *testing.T) {
	raw, err := sqlx.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)

	_, err = raw.Exec(`CREATE TABLE t (name TEXT); INSERT INTO t VALUES ('a'), ('b');`)
	require.NoError(t, err)

	logger := logging.NewStructuredLoggerWithWriter("test", "0", logging.ErrorLevel, io.Discard)
	db := NewFromSQLX(raw, &Config{Driver: DriverSQLite, Database: ":memory:"}, logger, metrics.NewCollector("db_test"))

	ctx := context.Background()
	require.NoError(t, db.HealthCheck(ctx))

	var names []string
	require.NoError(t, db.SelectContext(ctx, "select_names", &names, "SELECT name FROM t ORDER BY name"))
	assert.Equal(t, []string{"a", "b"}, names)

	var count int
	require.NoError(t, db.GetContext(ctx, "count_names", &count, "SELECT COUNT(*) FROM t WHERE name = ?", "a"))
	assert.Equal(t, 1, count)

	require.Error(t, db.SelectContext(ctx, "bad_query", &names, "SELECT nope FROM missing"))

	require.NoError(t, db.Close())
}
