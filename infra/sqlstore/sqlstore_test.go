package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/core/store"
	"github.com/kilianp07/medqueue/core/store/storetest"
	"github.com/kilianp07/medqueue/internal/testutil"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openSQLite(t) })
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	testutil.RequireDocker(t)
	ctx := context.Background()
	dsn, cleanup, err := testutil.StartPostgres(ctx)
	if err != nil {
		t.Skipf("postgres container: %v", err)
	}
	defer cleanup()

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn}, nil)
		require.NoError(t, err)
		_, err = s.Migrate(ctx)
		require.NoError(t, err)
		for _, table := range []string{"hospitals", "patients", "doctors", "cases", "case_outcomes"} {
			_, err := s.DB().ExecContext(ctx, "TRUNCATE "+table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	from, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), from)
}

func TestRebindDollar(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SELECT 1", "SELECT 1"},
		{"a = ? AND b = ?", "a = $1 AND b = $2"},
		{"VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		if got := rebindDollar(tt.in); got != tt.want {
			t.Fatalf("rebindDollar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	c := Config{}
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{Driver: "mysql", DSN: "x"}.Validate())
	assert.Error(t, Config{Driver: DriverPostgres}.Validate())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(250)&_pragma=foreign_keys(1)", sqliteDSN("a.db", 250e6))
	assert.Equal(t, "a.db?mode=rwc&_pragma=busy_timeout(1000)&_pragma=foreign_keys(1)", sqliteDSN("a.db?mode=rwc", 1e9))
	assert.Equal(t, "a.db?_pragma=busy_timeout(9)", sqliteDSN("a.db?_pragma=busy_timeout(9)", 1e9))
}
