package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{Path: "file::memory:?cache=shared&_name=" + name, Profile: ProfileStandard, Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_DefaultsToStandardProfileWhenUnset(t *testing.T) {
	db, err := New(Config{Path: "file::memory:?cache=shared&_name=profile_default"})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestMigrate_LedgerSchemaCreatesOrderLogTable(t *testing.T) {
	db := newMemDB(t, "ledger")
	require.NoError(t, db.Migrate())

	_, err := db.Query("SELECT COUNT(*) FROM order_log")
	assert.NoError(t, err)
}

func TestMigrate_UnknownDatabaseNameIsANoOp(t *testing.T) {
	db := newMemDB(t, "something_unmapped")
	assert.NoError(t, db.Migrate())
}

func TestHealthCheck_PassesOnFreshDatabase(t *testing.T) {
	db := newMemDB(t, "health")
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestQuickCheck_PassesOnFreshDatabase(t *testing.T) {
	db := newMemDB(t, "quickcheck")
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestWALCheckpoint_DefaultsToTruncateMode(t *testing.T) {
	db := newMemDB(t, "wal")
	assert.NoError(t, db.WALCheckpoint(""))
}

func TestVacuum_SucceedsOnFreshDatabase(t *testing.T) {
	db := newMemDB(t, "vacuum")
	assert.NoError(t, db.Vacuum())
}

func TestGetStats_ReturnsPageAccounting(t *testing.T) {
	db := newMemDB(t, "stats")
	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}
