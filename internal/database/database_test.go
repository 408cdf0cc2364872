package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tbill-ledger-go/internal/config"
	"tbill-ledger-go/internal/models"
)

func TestNewDatabase_MemorySQLite(t *testing.T) {
	db, err := NewDatabase(config.Database{Driver: "sqlite", DSN: "file::memory:"}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.Trade{}))
	assert.True(t, db.Migrator().HasTable(&models.Settlement{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(config.Database{Driver: "oracle", DSN: "x"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestIsSQLite(t *testing.T) {
	assert.True(t, isSQLite(config.Database{DSN: ":memory:"}))
	assert.True(t, isSQLite(config.Database{Driver: "SQLite", DSN: "tbill.db"}))
	assert.False(t, isSQLite(config.Database{Driver: "postgres", DSN: ":memory:"}))
}

func TestNewDatabase_FileSQLiteUsesOneConnection(t *testing.T) {
	db, err := NewDatabase(config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "ledger.db")}, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestSQLiteDSN(t *testing.T) {
	testCases := []struct {
		dsn      string
		expected string
	}{
		{dsn: "file::memory:", expected: "file::memory:"},
		{dsn: "tbill.db", expected: "tbill.db?_busy_timeout=5000&_txlock=immediate"},
		{dsn: "tbill.db?cache=shared", expected: "tbill.db?cache=shared&_busy_timeout=5000&_txlock=immediate"},
		{dsn: "tbill.db?_busy_timeout=100", expected: "tbill.db?_busy_timeout=100&_txlock=immediate"},
		{dsn: "tbill.db?_txlock=deferred&_busy_timeout=1", expected: "tbill.db?_txlock=deferred&_busy_timeout=1"},
	}
	for _, tc := range testCases {
		t.Run(tc.dsn, func(t *testing.T) {
			assert.Equal(t, tc.expected, sqliteDSN(tc.dsn))
		})
	}
}
