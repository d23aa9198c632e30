// Package portfolio implements the position replay engine and the state
// store that keeps derived positions synchronized with live prices and the
// USD/IDR rate.
package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/domain"
)

// zeroEpsilon is the threshold below which a remaining quantity is treated
// as floating-point dust and the whole position snaps to exactly zero.
var zeroEpsilon = decimal.New(1, -9)

// Replay folds one asset's transaction history, in chronological order, into
// its current position. The input order does not matter: transactions are
// sorted by timestamp before folding, with ties broken by original order.
// fx is the USD→IDR rate; non-positive means unavailable, in which case
// converted figures are zero, never an error.
func Replay(txs []domain.Transaction, currentPrice, fx decimal.Decimal) domain.Position {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		quantity   = decimal.Zero
		costNative = decimal.Zero
		costIDR    = decimal.Zero
		costUSD    = decimal.Zero
		entryPrice *decimal.Decimal

		deleted      bool
		deleteCutoff time.Time
	)

	pos := domain.Position{NativeCurrency: domain.CurrencyIDR}
	identified := false
	currencyFixed := false

	for _, tx := range sorted {
		if !identified {
			pos.AssetClass = tx.AssetClass
			pos.Symbol = domain.NormalizeSymbol(tx.Symbol)
			pos.Market = tx.Market
			identified = true
		}

		// History-only deletes never touch position state and never act
		// as a replay cutoff.
		if tx.IsHistoryOnly() {
			continue
		}

		// Everything at or before the most recent delete stays dead; a
		// later transaction legitimately re-opens the position.
		if deleted && !tx.Timestamp.After(deleteCutoff) {
			continue
		}

		switch tx.Type {
		case domain.TxBuy:
			if !currencyFixed {
				pos.NativeCurrency = domain.NativeCurrency(tx.AssetClass, tx.Market)
				currencyFixed = true
			}
			gross := tx.Price.Mul(tx.Quantity)
			costNative = costNative.Add(gross)
			quantity = quantity.Add(tx.Quantity)
			native, counter := capturedValues(tx, gross)
			if domain.NativeCurrency(tx.AssetClass, tx.Market) == domain.CurrencyIDR {
				costIDR = costIDR.Add(native)
				costUSD = costUSD.Add(counter)
			} else {
				costUSD = costUSD.Add(native)
				costIDR = costIDR.Add(counter)
			}
			if tx.EntryPrice != nil {
				ep := *tx.EntryPrice
				entryPrice = &ep
			}

		case domain.TxUpdate:
			if !currencyFixed {
				pos.NativeCurrency = domain.NativeCurrency(tx.AssetClass, tx.Market)
				currencyFixed = true
			}
			if quantity.IsPositive() {
				// Absolute correction: overwrite, don't accumulate.
				if tx.Quantity.IsPositive() {
					quantity = tx.Quantity
				}
				costNative = tx.Price.Mul(quantity)
				native, counter := capturedValues(tx, costNative)
				if domain.NativeCurrency(tx.AssetClass, tx.Market) == domain.CurrencyIDR {
					costIDR = native
					costUSD = counter
				} else {
					costUSD = native
					costIDR = counter
				}
			} else {
				// Update against an empty position is an out-of-band
				// manual entry: behave exactly like a buy.
				gross := tx.Price.Mul(tx.Quantity)
				costNative = costNative.Add(gross)
				quantity = quantity.Add(tx.Quantity)
				native, counter := capturedValues(tx, gross)
				if domain.NativeCurrency(tx.AssetClass, tx.Market) == domain.CurrencyIDR {
					costIDR = costIDR.Add(native)
					costUSD = costUSD.Add(counter)
				} else {
					costUSD = costUSD.Add(native)
					costIDR = costIDR.Add(counter)
				}
			}
			if tx.EntryPrice != nil {
				ep := *tx.EntryPrice
				entryPrice = &ep
			}

		case domain.TxSell:
			// A sell with nothing held is a no-op; quantity never goes
			// negative.
			if !quantity.IsPositive() || !costNative.IsPositive() {
				continue
			}
			avg := costNative.Div(quantity)
			costToRemove := avg.Mul(tx.Quantity)
			// Proportional reduction uses the quantity ratio, which does
			// not compound rounding error the way a cost ratio would.
			ratio := tx.Quantity.Div(quantity)
			costNative = costNative.Sub(costToRemove)
			costIDR = costIDR.Sub(costIDR.Mul(ratio))
			costUSD = costUSD.Sub(costUSD.Mul(ratio))
			quantity = quantity.Sub(tx.Quantity)
			if quantity.LessThanOrEqual(zeroEpsilon) {
				quantity = decimal.Zero
				costNative = decimal.Zero
				costIDR = decimal.Zero
				costUSD = decimal.Zero
				entryPrice = nil
			}

		case domain.TxDelete:
			quantity = decimal.Zero
			costNative = decimal.Zero
			costIDR = decimal.Zero
			costUSD = decimal.Zero
			entryPrice = nil
			deleted = true
			deleteCutoff = tx.Timestamp
		}
	}

	// Drift guard: the quantity and cost invariants are never allowed to go
	// negative, whatever the input sequence was.
	if quantity.IsNegative() {
		quantity = decimal.Zero
		costNative = decimal.Zero
		costIDR = decimal.Zero
		costUSD = decimal.Zero
		entryPrice = nil
	}
	if costNative.IsNegative() {
		costNative = decimal.Zero
	}
	if costIDR.IsNegative() {
		costIDR = decimal.Zero
	}
	if costUSD.IsNegative() {
		costUSD = decimal.Zero
	}

	pos.Quantity = quantity
	pos.DisplayQuantity = quantity
	pos.CostBasisNative = costNative
	pos.CostBasisIDR = costIDR
	pos.CostBasisUSD = costUSD
	pos.EntryPrice = entryPrice

	if quantity.IsPositive() {
		pos.AveragePrice = costNative.Div(quantity)
	} else {
		pos.AveragePrice = decimal.Zero
	}

	pos.Revalue(currentPrice, fx)
	return pos
}

// capturedValues returns the native and counter-currency cost contributions
// of a transaction. The native side falls back to the computed gross amount
// when no value was captured; the counter side falls back to zero because
// the FX context of the moment cannot be reconstructed after the fact.
func capturedValues(tx domain.Transaction, gross decimal.Decimal) (native, counter decimal.Decimal) {
	native = gross
	if tx.ValueNative != nil {
		native = *tx.ValueNative
	}
	counter = decimal.Zero
	if tx.ValueCounter != nil {
		counter = *tx.ValueCounter
	}
	return native, counter
}
