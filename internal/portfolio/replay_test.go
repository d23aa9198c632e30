package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezapram/arta/internal/domain"
)

func ts(offsetMinutes int) time.Time {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offsetMinutes) * time.Minute)
}

func buyTx(id, symbol string, qty, price int64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		Type:       domain.TxBuy,
		AssetClass: domain.ClassStock,
		Symbol:     symbol,
		Market:     domain.MarketIDX,
		Quantity:   decimal.NewFromInt(qty),
		Price:      decimal.NewFromInt(price),
		Timestamp:  at,
	}
}

func TestReplay_AveragePriceAcrossBuys(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 1000, 4500, ts(0)),
		buyTx("t2", "BBCA", 1000, 5000, ts(10)),
	}

	pos := Replay(txs, decimal.NewFromInt(5000), decimal.NewFromInt(15000))

	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(2000)))
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(4750)),
		"average price should be 4750, got %s", pos.AveragePrice)
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(9500000)))
}

func TestReplay_SellReducesCostProportionally(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 1000, 4500, ts(0)),
		buyTx("t2", "BBCA", 1000, 5000, ts(10)),
		{
			ID:         "t3",
			Type:       domain.TxSell,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(1000),
			Price:      decimal.NewFromInt(5200),
			Timestamp:  ts(20),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(5200), decimal.NewFromInt(15000))

	// Selling half the quantity removes half the cost at the 4750 average.
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(4750000)),
		"cost basis should be 4,750,000, got %s", pos.CostBasisNative)
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(4750)))
}

func TestReplay_SellEverythingSnapsToZero(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 300, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxSell,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(300),
			Price:      decimal.NewFromInt(4600),
			Timestamp:  ts(5),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(4600), decimal.NewFromInt(15000))

	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.CostBasisNative.IsZero())
	assert.True(t, pos.CostBasisIDR.IsZero())
	assert.True(t, pos.AveragePrice.IsZero())
}

func TestReplay_OversellNeverGoesNegative(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 100, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxSell,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(500),
			Price:      decimal.NewFromInt(4600),
			Timestamp:  ts(5),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(4600), decimal.NewFromInt(15000))

	assert.False(t, pos.Quantity.IsNegative())
	assert.True(t, pos.Quantity.IsZero())
	assert.False(t, pos.CostBasisNative.IsNegative())
}

func TestReplay_SellWithNothingHeldIsNoop(t *testing.T) {
	txs := []domain.Transaction{
		{
			ID:         "t1",
			Type:       domain.TxSell,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(100),
			Price:      decimal.NewFromInt(4600),
			Timestamp:  ts(0),
		},
		buyTx("t2", "BBCA", 200, 4500, ts(10)),
	}

	pos := Replay(txs, decimal.NewFromInt(4500), decimal.NewFromInt(15000))

	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(200)))
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(4500)))
}

func TestReplay_DeleteThenRebuy(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 1000, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxDelete,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Timestamp:  ts(10),
			Source:     domain.DeletePortfolio,
		},
		buyTx("t3", "BBCA", 500, 6000, ts(20)),
	}

	pos := Replay(txs, decimal.NewFromInt(6000), decimal.NewFromInt(15000))

	// History before the delete is dead; only the re-opening buy counts.
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(500)))
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(6000)))
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(3000000)))
}

func TestReplay_HistoryOnlyDeleteDoesNotTouchPosition(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 1000, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxDelete,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Timestamp:  ts(10),
			Source:     domain.DeleteHistory,
		},
	}

	pos := Replay(txs, decimal.NewFromInt(4500), decimal.NewFromInt(15000))

	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(4500000)))
}

func TestReplay_OrderIndependence(t *testing.T) {
	forward := []domain.Transaction{
		buyTx("t1", "BBCA", 1000, 4500, ts(0)),
		buyTx("t2", "BBCA", 1000, 5000, ts(10)),
		{
			ID:         "t3",
			Type:       domain.TxSell,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(500),
			Price:      decimal.NewFromInt(5100),
			Timestamp:  ts(20),
		},
	}
	shuffled := []domain.Transaction{forward[2], forward[0], forward[1]}

	price := decimal.NewFromInt(5100)
	fx := decimal.NewFromInt(15000)
	a := Replay(forward, price, fx)
	b := Replay(shuffled, price, fx)

	assert.True(t, a.Quantity.Equal(b.Quantity))
	assert.True(t, a.CostBasisNative.Equal(b.CostBasisNative))
	assert.True(t, a.AveragePrice.Equal(b.AveragePrice))
}

func TestReplay_UpdateOverwritesExistingPosition(t *testing.T) {
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 1000, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxUpdate,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(1500),
			Price:      decimal.NewFromInt(4800),
			Timestamp:  ts(10),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(4800), decimal.NewFromInt(15000))

	// Update is an absolute correction, not an accumulation.
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1500)))
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(7200000)))
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(4800)))
}

func TestReplay_UpdateAgainstEmptyPositionActsLikeBuy(t *testing.T) {
	txs := []domain.Transaction{
		{
			ID:         "t1",
			Type:       domain.TxUpdate,
			AssetClass: domain.ClassGold,
			Symbol:     "GOLD",
			Quantity:   decimal.NewFromInt(10),
			Price:      decimal.NewFromInt(1000000),
			Timestamp:  ts(0),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(1000000), decimal.NewFromInt(15000))

	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(10000000)))
}

func TestReplay_USStockDualCurrencyValuation(t *testing.T) {
	txs := []domain.Transaction{
		{
			ID:         "t1",
			Type:       domain.TxBuy,
			AssetClass: domain.ClassStock,
			Symbol:     "AAPL",
			Market:     domain.MarketUS,
			Quantity:   decimal.NewFromInt(10),
			Price:      decimal.NewFromInt(150),
			Timestamp:  ts(0),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(160), decimal.NewFromInt(15000))

	require.Equal(t, domain.CurrencyUSD, pos.NativeCurrency)
	assert.True(t, pos.ValuationUSD.Equal(decimal.NewFromInt(1600)),
		"USD valuation should be 1600, got %s", pos.ValuationUSD)
	assert.True(t, pos.ValuationIDR.Equal(decimal.NewFromInt(24000000)),
		"IDR valuation should be 24,000,000, got %s", pos.ValuationIDR)
	assert.True(t, pos.UnrealizedGainUSD.Equal(decimal.NewFromInt(100)))
	assert.True(t, pos.UnrealizedGainIDR.Equal(decimal.NewFromInt(1500000)))
}

func TestReplay_MissingFxRateZeroesConvertedFigures(t *testing.T) {
	txs := []domain.Transaction{
		{
			ID:         "t1",
			Type:       domain.TxBuy,
			AssetClass: domain.ClassCrypto,
			Symbol:     "BTC",
			Quantity:   decimal.NewFromInt(1),
			Price:      decimal.NewFromInt(60000),
			Timestamp:  ts(0),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(65000), decimal.Zero)

	assert.True(t, pos.ValuationUSD.Equal(decimal.NewFromInt(65000)))
	assert.True(t, pos.ValuationIDR.IsZero(), "no FX rate means no IDR conversion")
	assert.True(t, pos.UnrealizedGainIDR.IsZero())
}

func TestReplay_CapturedValuesPreserveHistoricalFxContext(t *testing.T) {
	valueNative := decimal.NewFromInt(1500) // USD
	valueCounter := decimal.NewFromInt(22500000)
	txs := []domain.Transaction{
		{
			ID:           "t1",
			Type:         domain.TxBuy,
			AssetClass:   domain.ClassStock,
			Symbol:       "AAPL",
			Market:       domain.MarketUS,
			Quantity:     decimal.NewFromInt(10),
			Price:        decimal.NewFromInt(150),
			ValueNative:  &valueNative,
			ValueCounter: &valueCounter,
			Timestamp:    ts(0),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(150), decimal.NewFromInt(16000))

	// Cost basis in IDR reflects the captured rate at buy time (15000), not
	// the current 16000.
	assert.True(t, pos.CostBasisUSD.Equal(valueNative))
	assert.True(t, pos.CostBasisIDR.Equal(valueCounter))
}

func TestReplay_EntryPriceOverrideCarried(t *testing.T) {
	entry := decimal.NewFromInt(4400)
	txs := []domain.Transaction{
		{
			ID:         "t1",
			Type:       domain.TxBuy,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(100),
			Price:      decimal.NewFromInt(4500),
			EntryPrice: &entry,
			Timestamp:  ts(0),
		},
	}

	pos := Replay(txs, decimal.NewFromInt(4500), decimal.NewFromInt(15000))

	require.NotNil(t, pos.EntryPrice)
	assert.True(t, pos.EntryPrice.Equal(entry))
	// The override is informational only; average price still comes from cost.
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(4500)))
}
