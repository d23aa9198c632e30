package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezapram/arta/internal/domain"
)

func TestBuilder_GroupsByClassAndFiltersZeroQuantity(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 100, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxBuy,
			AssetClass: domain.ClassCrypto,
			Symbol:     "BTC",
			Quantity:   decimal.NewFromFloat(0.5),
			Price:      decimal.NewFromInt(60000),
			Timestamp:  ts(5),
		},
		// Fully sold position must not appear in the output.
		buyTx("t3", "TLKM", 100, 3000, ts(10)),
		{
			ID:         "t4",
			Type:       domain.TxSell,
			AssetClass: domain.ClassStock,
			Symbol:     "TLKM",
			Market:     domain.MarketIDX,
			Quantity:   decimal.NewFromInt(100),
			Price:      decimal.NewFromInt(3100),
			Timestamp:  ts(15),
		},
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 1)
	assert.Equal(t, "BBCA", assets.Stocks[0].Symbol)
	require.Len(t, assets.Crypto, 1)
	assert.Equal(t, "BTC", assets.Crypto[0].Symbol)
	assert.Equal(t, 2, assets.Count())
}

func TestBuilder_DeletedGroupNeverReachesOutput(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 100, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxDelete,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Timestamp:  ts(10),
			Source:     domain.DeletePortfolio,
		},
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))
	assert.Equal(t, 0, assets.Count())
}

func TestBuilder_DeletedGroupReopenedByLaterBuy(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 100, 4500, ts(0)),
		{
			ID:         "t2",
			Type:       domain.TxDelete,
			AssetClass: domain.ClassStock,
			Symbol:     "BBCA",
			Market:     domain.MarketIDX,
			Timestamp:  ts(10),
			Source:     domain.DeletePortfolio,
		},
		buyTx("t3", "BBCA", 200, 5000, ts(20)),
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 1)
	assert.True(t, assets.Stocks[0].Quantity.Equal(decimal.NewFromInt(200)))
}

func TestBuilder_SymbolNormalizationMergesGroups(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "bbca", 100, 4500, ts(0)),
		buyTx("t2", "BBCA", 100, 4500, ts(10)),
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 1)
	assert.Equal(t, "BBCA", assets.Stocks[0].Symbol)
	assert.True(t, assets.Stocks[0].Quantity.Equal(decimal.NewFromInt(200)))
}

func TestBuilder_IDXQuoteResolvedWithJKSuffix(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	prices := map[string]domain.PriceQuote{
		"BBCA.JK": {Price: decimal.NewFromInt(5200), Currency: domain.CurrencyIDR},
	}
	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 100, 4500, ts(0)),
	}

	assets := b.Build(txs, prices, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 1)
	assert.True(t, assets.Stocks[0].CurrentPrice.Equal(decimal.NewFromInt(5200)))
}

func TestBuilder_FallsBackToLastTransactionPrice(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 100, 4500, ts(0)),
		buyTx("t2", "BBCA", 100, 4800, ts(10)),
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 1)
	assert.True(t, assets.Stocks[0].CurrentPrice.Equal(decimal.NewFromInt(4800)),
		"latest transaction price should back-fill the missing quote")
}

func TestBuilder_IDXLotTruncationIsDisplayOnly(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "BBCA", 250, 4500, ts(0)),
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 1)
	pos := assets.Stocks[0]
	assert.True(t, pos.DisplayQuantity.Equal(decimal.NewFromInt(200)),
		"250 shares is 2 whole lots for display")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(250)),
		"financial quantity must keep the exact amount")
	assert.True(t, pos.CostBasisNative.Equal(decimal.NewFromInt(1125000)))
}

func TestQuoteFor_CashIsAlwaysParValued(t *testing.T) {
	quote, ok := QuoteFor(nil, domain.ClassCash, "", "IDR-SAVINGS")

	require.True(t, ok)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(1)))
}

func TestBuilder_PositionsSortedBySymbol(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	txs := []domain.Transaction{
		buyTx("t1", "TLKM", 100, 3000, ts(0)),
		buyTx("t2", "BBCA", 100, 4500, ts(5)),
		buyTx("t3", "GOTO", 100, 80, ts(10)),
	}

	assets := b.Build(txs, nil, decimal.NewFromInt(15000))

	require.Len(t, assets.Stocks, 3)
	assert.Equal(t, "BBCA", assets.Stocks[0].Symbol)
	assert.Equal(t, "GOTO", assets.Stocks[1].Symbol)
	assert.Equal(t, "TLKM", assets.Stocks[2].Symbol)
}
