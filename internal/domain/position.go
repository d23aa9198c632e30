package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the derived state of one held asset. It is never persisted:
// every position is recomputed by replaying the transaction ledger.
type Position struct {
	AssetClass AssetClass `json:"asset_class"`
	Symbol     string     `json:"symbol"`
	Market     Market     `json:"market,omitempty"`

	Quantity decimal.Decimal `json:"quantity"`

	// DisplayQuantity is Quantity truncated to whole lots for IDX stocks.
	// Financial math always uses Quantity.
	DisplayQuantity decimal.Decimal `json:"display_quantity"`

	CostBasisNative decimal.Decimal `json:"cost_basis_native"`
	CostBasisIDR    decimal.Decimal `json:"cost_basis_idr"`
	CostBasisUSD    decimal.Decimal `json:"cost_basis_usd"`

	AveragePrice decimal.Decimal  `json:"average_price"`
	EntryPrice   *decimal.Decimal `json:"entry_price,omitempty"`
	CurrentPrice decimal.Decimal  `json:"current_price"`

	NativeCurrency Currency `json:"native_currency"`

	ValuationIDR     decimal.Decimal `json:"valuation_idr"`
	ValuationUSD     decimal.Decimal `json:"valuation_usd"`
	PrimaryValuation decimal.Decimal `json:"primary_valuation"`

	UnrealizedGainNative decimal.Decimal `json:"unrealized_gain_native"`
	UnrealizedGainIDR    decimal.Decimal `json:"unrealized_gain_idr"`
	UnrealizedGainUSD    decimal.Decimal `json:"unrealized_gain_usd"`
	GainPercent          decimal.Decimal `json:"gain_percent"`
}

// Revalue recomputes the valuation and gain fields from a new market price
// and FX rate without touching quantity or cost basis. Used for the
// incremental price-tick path where a full replay would be wasted work.
// A non-positive fx means the rate is unavailable; converted figures become
// zero rather than an error.
func (p *Position) Revalue(price, fx decimal.Decimal) {
	p.CurrentPrice = price

	valuationNative := price.Mul(p.Quantity)
	costNative := p.AveragePrice.Mul(p.Quantity)
	gainNative := valuationNative.Sub(costNative)

	p.PrimaryValuation = valuationNative
	p.UnrealizedGainNative = gainNative

	hasFX := fx.IsPositive()
	switch p.NativeCurrency {
	case CurrencyIDR:
		p.ValuationIDR = valuationNative
		p.UnrealizedGainIDR = gainNative
		if hasFX {
			p.ValuationUSD = valuationNative.Div(fx)
			p.UnrealizedGainUSD = gainNative.Div(fx)
		} else {
			p.ValuationUSD = decimal.Zero
			p.UnrealizedGainUSD = decimal.Zero
		}
	case CurrencyUSD:
		p.ValuationUSD = valuationNative
		p.UnrealizedGainUSD = gainNative
		if hasFX {
			p.ValuationIDR = valuationNative.Mul(fx)
			p.UnrealizedGainIDR = gainNative.Mul(fx)
		} else {
			p.ValuationIDR = decimal.Zero
			p.UnrealizedGainIDR = decimal.Zero
		}
	}

	if costNative.IsPositive() {
		p.GainPercent = gainNative.Div(costNative).Mul(decimal.NewFromInt(100))
	} else {
		p.GainPercent = decimal.Zero
	}
}

// PriceQuote is a market price delivered by the external price provider.
type PriceQuote struct {
	Price         decimal.Decimal `json:"price"`
	Currency      Currency        `json:"currency"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	AsOf          time.Time       `json:"as_of"`
}

// Assets groups current positions by asset class.
type Assets struct {
	Stocks []Position `json:"stocks"`
	Crypto []Position `json:"crypto"`
	Cash   []Position `json:"cash"`
	Gold   []Position `json:"gold"`
}

// All returns every position across classes, stocks first.
func (a Assets) All() []Position {
	out := make([]Position, 0, len(a.Stocks)+len(a.Crypto)+len(a.Cash)+len(a.Gold))
	out = append(out, a.Stocks...)
	out = append(out, a.Crypto...)
	out = append(out, a.Cash...)
	out = append(out, a.Gold...)
	return out
}

// Count returns the number of held positions.
func (a Assets) Count() int {
	return len(a.Stocks) + len(a.Crypto) + len(a.Cash) + len(a.Gold)
}

// Summary aggregates the whole portfolio. Total* fields are in IDR, the
// display currency of the tracker; USD figures ride alongside.
type Summary struct {
	TotalValue       decimal.Decimal `json:"total_value"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	TotalGain        decimal.Decimal `json:"total_gain"`
	TotalGainPercent decimal.Decimal `json:"total_gain_percent"`
	TotalValueUSD    decimal.Decimal `json:"total_value_usd"`
	TotalGainUSD     decimal.Decimal `json:"total_gain_usd"`
	AssetCount       int             `json:"asset_count"`
	LastUpdate       time.Time       `json:"last_update"`
}
