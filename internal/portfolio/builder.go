package portfolio

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/domain"
)

// IDXLotSize is the IDX trading unit: 100 shares per lot.
const IDXLotSize = 100

// idxPriceSuffix is appended to IDX stock symbols when looking up quotes;
// the price provider keys Jakarta-listed stocks as "BBCA.JK".
const idxPriceSuffix = ".JK"

var idxLot = decimal.NewFromInt(IDXLotSize)

// Builder turns the raw transaction ledger into the Assets aggregate by
// grouping transactions per asset key and replaying each group.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a position builder.
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log.With().Str("component", "position_builder").Logger()}
}

// Build groups allTransactions by normalized asset key, replays each group
// against its resolved price, and assembles the per-class aggregate.
// Zero-quantity results are filtered out. fx is the USD→IDR rate
// (non-positive = unavailable).
func (b *Builder) Build(allTransactions []domain.Transaction, prices map[string]domain.PriceQuote, fx decimal.Decimal) domain.Assets {
	groups := make(map[domain.AssetKey][]domain.Transaction)
	var order []domain.AssetKey
	for _, tx := range allTransactions {
		key := tx.Key()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], tx)
	}

	var assets domain.Assets
	for _, key := range order {
		group := groups[key]

		// A portfolio-source delete removes the asset outright unless
		// later transactions re-open it; this must happen before replay
		// so a closed asset never reaches the output at all.
		if groupDeleted(group) {
			continue
		}

		price := b.resolvePrice(key, group, prices)
		pos := Replay(group, price, fx)
		if !pos.Quantity.IsPositive() {
			continue
		}

		if key.Class == domain.ClassStock && pos.Market == domain.MarketIDX {
			b.applyLotInvariant(&pos)
		}

		switch key.Class {
		case domain.ClassStock:
			assets.Stocks = append(assets.Stocks, pos)
		case domain.ClassCrypto:
			assets.Crypto = append(assets.Crypto, pos)
		case domain.ClassCash:
			assets.Cash = append(assets.Cash, pos)
		case domain.ClassGold:
			assets.Gold = append(assets.Gold, pos)
		}
	}

	sortPositions(assets.Stocks)
	sortPositions(assets.Crypto)
	sortPositions(assets.Cash)
	sortPositions(assets.Gold)
	return assets
}

// groupDeleted reports whether the group's most recent portfolio-source
// delete has no later transactions, i.e. the asset was closed and never
// re-opened.
func groupDeleted(group []domain.Transaction) bool {
	var cutoff time.Time
	found := false
	for _, tx := range group {
		if tx.Type == domain.TxDelete && !tx.IsHistoryOnly() && tx.Timestamp.After(cutoff) {
			cutoff = tx.Timestamp
			found = true
		}
	}
	if !found {
		return false
	}
	for _, tx := range group {
		if tx.Type != domain.TxDelete && tx.Timestamp.After(cutoff) {
			return false
		}
	}
	return true
}

// resolvePrice finds the current price for an asset group. Live quotes win;
// when none exists yet the most recent transaction price is used so a
// freshly added asset never shows up valued at zero while the first price
// refresh is still in flight.
func (b *Builder) resolvePrice(key domain.AssetKey, group []domain.Transaction, prices map[string]domain.PriceQuote) decimal.Decimal {
	market := groupMarket(group)
	if quote, ok := QuoteFor(prices, key.Class, market, key.Symbol); ok {
		return quote.Price
	}
	if fallback, ok := lastTransactionPrice(group); ok {
		b.log.Debug().
			Str("symbol", key.Symbol).
			Str("class", string(key.Class)).
			Str("price", fallback.String()).
			Msg("No live quote, falling back to last transaction price")
		return fallback
	}
	return decimal.Zero
}

// QuoteFor looks up a quote using the class-specific key rules. Cash is
// par-valued: one unit of cash is always worth exactly 1.
func QuoteFor(prices map[string]domain.PriceQuote, class domain.AssetClass, market domain.Market, symbol string) (domain.PriceQuote, bool) {
	symbol = domain.NormalizeSymbol(symbol)
	if class == domain.ClassCash {
		return domain.PriceQuote{Price: decimal.NewFromInt(1), Currency: domain.CurrencyIDR}, true
	}
	if class == domain.ClassStock && market == domain.MarketIDX {
		if quote, ok := prices[symbol+idxPriceSuffix]; ok {
			return quote, true
		}
	}
	quote, ok := prices[symbol]
	return quote, ok
}

// lastTransactionPrice returns the price of the chronologically latest
// non-delete transaction carrying a positive price.
func lastTransactionPrice(group []domain.Transaction) (decimal.Decimal, bool) {
	var (
		best   decimal.Decimal
		bestAt time.Time
		found  bool
	)
	for _, tx := range group {
		if tx.Type == domain.TxDelete || !tx.Price.IsPositive() {
			continue
		}
		if !found || tx.Timestamp.After(bestAt) {
			best = tx.Price
			bestAt = tx.Timestamp
			found = true
		}
	}
	return best, found
}

// applyLotInvariant truncates the displayed quantity of an IDX stock to a
// whole number of lots. The exact quantity is kept for all financial math;
// only DisplayQuantity changes.
func (b *Builder) applyLotInvariant(pos *domain.Position) {
	lots := pos.Quantity.Div(idxLot).Floor()
	display := lots.Mul(idxLot)
	if !display.Equal(pos.Quantity) {
		b.log.Warn().
			Str("symbol", pos.Symbol).
			Str("quantity", pos.Quantity.String()).
			Str("display_quantity", display.String()).
			Msg("IDX quantity is not a whole lot multiple, truncating for display")
	}
	pos.DisplayQuantity = display
}

func sortPositions(positions []domain.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
}

// groupMarket returns the market of the first transaction that declares one.
func groupMarket(group []domain.Transaction) domain.Market {
	for _, tx := range group {
		if tx.Market != "" {
			return tx.Market
		}
	}
	return ""
}
