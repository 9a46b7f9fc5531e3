package clientdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestRepo(t *testing.T) *Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE client_cache (
			source TEXT NOT NULL,
			key TEXT NOT NULL,
			data TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (source, key)
		);
	`)
	require.NoError(t, err)

	return NewRepository(db)
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := setupTestRepo(t)

	payload := map[string]float64{"EUR": 0.92}
	require.NoError(t, repo.Store("exchangerate", "USD", payload, time.Hour))

	data, err := repo.GetIfFresh("exchangerate", "USD")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.JSONEq(t, `{"EUR":0.92}`, string(data))
}

func TestGetIfFreshSkipsExpired(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("exchangerate", "USD", "stale", -time.Hour))

	data, err := repo.GetIfFresh("exchangerate", "USD")
	require.NoError(t, err)
	assert.Nil(t, data)

	// Get still serves stale data as a fallback
	data, err = repo.Get("exchangerate", "USD")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, `"stale"`, string(data))
}

func TestGetMissingKey(t *testing.T) {
	repo := setupTestRepo(t)

	data, err := repo.GetIfFresh("exchangerate", "nope")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestStoreReplacesExisting(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("exchangerate", "USD", "old", time.Hour))
	require.NoError(t, repo.Store("exchangerate", "USD", "new", time.Hour))

	data, err := repo.GetIfFresh("exchangerate", "USD")
	require.NoError(t, err)
	assert.Equal(t, `"new"`, string(data))
}

func TestRejectsUnknownSource(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Store("weather", "athens", "sunny", time.Hour)
	require.Error(t, err)

	_, err = repo.Get("weather", "athens")
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("exchangerate", "USD", "x", time.Hour))
	require.NoError(t, repo.Delete("exchangerate", "USD"))

	data, err := repo.Get("exchangerate", "USD")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDeleteExpired(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("exchangerate", "fresh", "a", time.Hour))
	require.NoError(t, repo.Store("exchangerate", "stale1", "b", -time.Hour))
	require.NoError(t, repo.Store("exchangerate", "stale2", "c", -time.Minute))

	deleted, err := repo.DeleteExpired("exchangerate")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	data, err := repo.GetIfFresh("exchangerate", "fresh")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("exchangerate", "stale", "x", -time.Hour))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["exchangerate"])
}
