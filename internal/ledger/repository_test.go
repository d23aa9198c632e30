package ledger

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezapram/arta/internal/database"
	"github.com/rezapram/arta/internal/domain"
)

// setupTestRepo creates a temporary ledger database with the transactions
// schema applied.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_ledger_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)

	require.NoError(t, InitSchema(db.Conn()))

	t.Cleanup(func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
	})

	return NewRepository(db, zerolog.Nop())
}

func sampleTx(id string, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		Type:       domain.TxBuy,
		AssetClass: domain.ClassStock,
		Symbol:     "BBCA",
		Market:     domain.MarketIDX,
		Quantity:   decimal.NewFromInt(100),
		Price:      decimal.NewFromInt(4500),
		Timestamp:  at,
	}
}

func TestAppendAndLoadAll(t *testing.T) {
	repo := setupTestRepo(t)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	entry := decimal.NewFromFloat(4450.5)
	tx := sampleTx("tx-1", at)
	tx.EntryPrice = &entry

	inserted, err := repo.Append(tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	loaded, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, "tx-1", got.ID)
	assert.Equal(t, domain.TxBuy, got.Type)
	assert.Equal(t, "BBCA", got.Symbol)
	assert.Equal(t, domain.MarketIDX, got.Market)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Price.Equal(decimal.NewFromInt(4500)))
	require.NotNil(t, got.EntryPrice)
	assert.True(t, got.EntryPrice.Equal(entry))
	assert.Nil(t, got.ValueNative)
	assert.True(t, got.Timestamp.Equal(at))
}

func TestAppendIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	tx := sampleTx("tx-1", time.Now().UTC())

	inserted, err := repo.Append(tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same id again: ignored, not an error.
	inserted, err = repo.Append(tx)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoadAllOrdersByTimestamp(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// Insert newest first; LoadAll must come back chronological.
	_, err := repo.Append(sampleTx("tx-late", base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.Append(sampleTx("tx-early", base))
	require.NoError(t, err)

	loaded, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "tx-early", loaded[0].ID)
	assert.Equal(t, "tx-late", loaded[1].ID)
}

func TestAppendBatch(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	batch := []domain.Transaction{
		sampleTx("tx-1", base),
		sampleTx("tx-2", base.Add(time.Minute)),
		sampleTx("tx-1", base), // duplicate inside the batch is ignored
	}

	require.NoError(t, repo.AppendBatch(batch))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoadBySymbol(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := repo.Append(sampleTx("tx-1", base))
	require.NoError(t, err)

	other := sampleTx("tx-2", base.Add(time.Minute))
	other.Symbol = "TLKM"
	_, err = repo.Append(other)
	require.NoError(t, err)

	// Lookup is case-insensitive through normalization.
	loaded, err := repo.LoadBySymbol(domain.ClassStock, "bbca")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "tx-1", loaded[0].ID)
}

func TestDeleteAll(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := repo.Append(sampleTx("tx-1", base))
	require.NoError(t, err)
	_, err = repo.Append(sampleTx("tx-2", base.Add(time.Minute)))
	require.NoError(t, err)

	deleted, err := repo.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDecimalPrecisionRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	// IDR totals exceed float64's 53-bit integer range; TEXT storage must
	// carry them back exactly.
	tx := sampleTx("tx-big", time.Now().UTC())
	bigValue, err := decimal.NewFromString("987654321098765432.123456789")
	require.NoError(t, err)
	tx.Quantity = decimal.NewFromFloat(0.000000125)
	tx.ValueNative = &bigValue

	_, err = repo.Append(tx)
	require.NoError(t, err)

	loaded, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].Quantity.Equal(tx.Quantity))
	require.NotNil(t, loaded[0].ValueNative)
	assert.True(t, loaded[0].ValueNative.Equal(bigValue))
}
