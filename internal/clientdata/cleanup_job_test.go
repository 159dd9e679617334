package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())

	assert.Equal(t, "client_data_cleanup", job.Name())
}

func TestCleanupJobRun_RemovesOnlyExpired(t *testing.T) {
	db := setupTestDB(t)
	job := NewCleanupJob(NewRepository(db), zerolog.Nop())

	expiredAt := time.Now().Add(-time.Hour).Unix()
	freshAt := time.Now().Add(time.Hour).Unix()
	for _, table := range AllTables {
		insertRaw(t, db, table, "expired", "x", expiredAt)
		insertRaw(t, db, table, "fresh", "x", freshAt)
	}

	require.NoError(t, job.Run())

	for _, table := range AllTables {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Equal(t, 1, count, table)
	}
}

func TestCleanupJobRun_EmptyTables(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestCleanupJobRun_MissingTableFails(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Exec("DROP TABLE analysis")
	require.NoError(t, err)

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())

	assert.Error(t, job.Run())
}
