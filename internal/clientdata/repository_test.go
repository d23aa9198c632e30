package clientdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type testPayload struct {
	Rate string `msgpack:"rate"`
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("exchangerate", "USD_IDR", testPayload{Rate: "15750"}, time.Hour))

	var out testPayload
	found, err := repo.GetIfFresh("exchangerate", "USD_IDR", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "15750", out.Rate)
}

func TestGetIfFreshMissesOnExpiredData(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	// Negative TTL: expired the moment it was written.
	require.NoError(t, repo.Store("exchangerate", "USD_IDR", testPayload{Rate: "15750"}, -time.Minute))

	var out testPayload
	found, err := repo.GetIfFresh("exchangerate", "USD_IDR", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// Stale fallback still sees it.
	found, err = repo.Get("exchangerate", "USD_IDR", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "15750", out.Rate)
}

func TestGetMissingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var out testPayload
	found, err := repo.Get("current_prices", "UNKNOWN", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreOverwritesExistingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("current_prices", "BTC", testPayload{Rate: "60000"}, time.Hour))
	require.NoError(t, repo.Store("current_prices", "BTC", testPayload{Rate: "61000"}, time.Hour))

	var out testPayload
	found, err := repo.GetIfFresh("current_prices", "BTC", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "61000", out.Rate)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("current_prices", "BTC", testPayload{Rate: "60000"}, time.Hour))
	require.NoError(t, repo.Delete("current_prices", "BTC"))

	var out testPayload
	found, err := repo.Get("current_prices", "BTC", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("current_prices", "BTC", testPayload{Rate: "60000"}, -time.Minute))
	require.NoError(t, repo.Store("current_prices", "ETH", testPayload{Rate: "3000"}, time.Hour))
	require.NoError(t, repo.Store("exchangerate", "USD_IDR", testPayload{Rate: "15750"}, -time.Minute))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["current_prices"])
	assert.Equal(t, int64(1), results["exchangerate"])

	var out testPayload
	found, err := repo.Get("current_prices", "ETH", &out)
	require.NoError(t, err)
	assert.True(t, found, "fresh entries must survive cleanup")
}

func TestInvalidTableRejected(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	err := repo.Store("transactions; DROP TABLE current_prices", "x", testPayload{}, time.Hour)
	assert.Error(t, err)

	_, err = repo.DeleteExpired("unknown_table")
	assert.Error(t, err)
}
