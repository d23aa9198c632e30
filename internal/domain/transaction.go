// Package domain contains the core data model shared across the application:
// transactions, derived positions, price quotes and the currency rules that
// tie them together.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of ledger event.
type TransactionType string

const (
	TxBuy    TransactionType = "buy"
	TxSell   TransactionType = "sell"
	TxUpdate TransactionType = "update"
	TxDelete TransactionType = "delete"
)

// AssetClass identifies which market an asset belongs to.
type AssetClass string

const (
	ClassStock  AssetClass = "stock"
	ClassCrypto AssetClass = "crypto"
	ClassCash   AssetClass = "cash"
	ClassGold   AssetClass = "gold"
)

// Market is the exchange a stock trades on. Empty for non-stock classes.
type Market string

const (
	MarketIDX Market = "IDX"
	MarketUS  Market = "US"
)

// DeleteSource distinguishes a delete that removes a position from one that
// only hides a row in the transaction history view. History-only deletes
// never touch position state.
type DeleteSource string

const (
	DeletePortfolio DeleteSource = "portfolio"
	DeleteHistory   DeleteSource = "history"
)

// Currency codes tracked by the engine. USD/IDR is the only FX pair.
type Currency string

const (
	CurrencyIDR Currency = "IDR"
	CurrencyUSD Currency = "USD"
)

// Transaction is a single immutable ledger event. Corrections are expressed
// as later transactions, never by editing history. Timestamp is the only
// ordering key: replay is chronological, not insertion-ordered.
type Transaction struct {
	ID         string          `json:"id"`
	Type       TransactionType `json:"type"`
	AssetClass AssetClass      `json:"asset_class"`
	Symbol     string          `json:"symbol"`
	Market     Market          `json:"market,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`

	// Captured monetary values at transaction time, used to preserve the
	// historical FX context. Nil when the source did not record them.
	ValueNative  *decimal.Decimal `json:"value_native,omitempty"`
	ValueCounter *decimal.Decimal `json:"value_counter,omitempty"`

	// EntryPrice is an optional informational override shown alongside the
	// computed average price. It never participates in cost-basis math.
	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`

	Timestamp time.Time    `json:"timestamp"`
	Source    DeleteSource `json:"source,omitempty"`
}

// AssetKey identifies a position group: one asset class plus one symbol.
type AssetKey struct {
	Class  AssetClass
	Symbol string
}

// Key returns the normalized asset key for this transaction. Symbols are
// upper-cased so "bbca" and "BBCA" land in the same group.
func (t Transaction) Key() AssetKey {
	return AssetKey{Class: t.AssetClass, Symbol: NormalizeSymbol(t.Symbol)}
}

// NormalizeSymbol upper-cases and trims an asset symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsHistoryOnly reports whether a delete is aimed at hiding a history row
// rather than removing the position. Only meaningful for TxDelete.
func (t Transaction) IsHistoryOnly() bool {
	return t.Type == TxDelete && t.Source == DeleteHistory
}

// Validate checks the fields required before a transaction may enter the
// store. Arithmetic edge cases are not errors; structural problems are.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction missing id")
	}
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("transaction %s missing symbol", t.ID)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("transaction %s missing timestamp", t.ID)
	}
	switch t.Type {
	case TxBuy, TxSell:
		if !t.Quantity.IsPositive() {
			return fmt.Errorf("transaction %s: %s quantity must be positive", t.ID, t.Type)
		}
		if t.Price.IsNegative() {
			return fmt.Errorf("transaction %s: price must not be negative", t.ID)
		}
	case TxUpdate:
		if t.Quantity.IsNegative() {
			return fmt.Errorf("transaction %s: update quantity must not be negative", t.ID)
		}
	case TxDelete:
		// Quantity and price are ignored for deletes.
	default:
		return fmt.Errorf("transaction %s: unknown type %q", t.ID, t.Type)
	}
	switch t.AssetClass {
	case ClassStock:
		if t.Market != MarketIDX && t.Market != MarketUS {
			return fmt.Errorf("transaction %s: stock requires market IDX or US, got %q", t.ID, t.Market)
		}
	case ClassCrypto, ClassCash, ClassGold:
	default:
		return fmt.Errorf("transaction %s: unknown asset class %q", t.ID, t.AssetClass)
	}
	return nil
}

// NativeCurrency returns the currency an asset's market price is quoted in.
// US stocks and crypto are USD-native; IDX stocks, cash and gold are
// IDR-native. The switch is exhaustive over asset classes.
func NativeCurrency(class AssetClass, market Market) Currency {
	switch class {
	case ClassStock:
		if market == MarketUS {
			return CurrencyUSD
		}
		return CurrencyIDR
	case ClassCrypto:
		return CurrencyUSD
	case ClassCash, ClassGold:
		return CurrencyIDR
	default:
		return CurrencyIDR
	}
}

// CounterCurrency returns the opposite side of the USD/IDR pair.
func CounterCurrency(native Currency) Currency {
	if native == CurrencyIDR {
		return CurrencyUSD
	}
	return CurrencyIDR
}
