package portfolio

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/domain"
)

var (
	// ErrNotInitialized is returned by mutation entry points before
	// Initialize has run.
	ErrNotInitialized = errors.New("portfolio store not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("portfolio store already initialized")
)

// Snapshot is a defensively-copied view of the store. Nested collections are
// copied one level deep; callers can never mutate internal state through it.
type Snapshot struct {
	Assets       domain.Assets
	Transactions []domain.Transaction
	Prices       map[string]domain.PriceQuote
	FxRate       decimal.Decimal
	LastUpdate   time.Time
	Initialized  bool
}

// Observer is invoked synchronously after each committed mutation. A panic
// inside an observer is caught and logged; it never reaches other observers
// or the writer.
type Observer func(Snapshot)

type mutationKind int

const (
	mutRebuild mutationKind = iota // full rebuild from a transaction list
	mutAppend                      // append one transaction, then rebuild
	mutPrices                      // incremental revaluation from price ticks
	mutFxRate                      // incremental revaluation from a new rate
)

type mutation struct {
	kind         mutationKind
	gen          int // store generation at the entry-point check; stale after a reset
	transactions []domain.Transaction
	tx           domain.Transaction
	prices       map[string]domain.PriceQuote
	fx           decimal.Decimal
}

// Store owns the canonical portfolio state and serializes every mutation
// behind a single active writer. Callers may submit mutations from any
// goroutine; submissions either start a drain or append to the FIFO queue of
// the drain already in progress, so no two mutations ever touch the shared
// position map concurrently and none is dropped under load.
type Store struct {
	log     zerolog.Logger
	builder *Builder

	mu           sync.Mutex
	initialized  bool
	gen          int
	assets       domain.Assets
	transactions []domain.Transaction
	prices       map[string]domain.PriceQuote
	fxRate       decimal.Decimal
	lastUpdate   time.Time
	lastTxHash   string
	pending      map[string]struct{}
	queue        []mutation
	writerActive bool

	obsMu        sync.Mutex
	observers    map[int]Observer
	nextObserver int
}

// NewStore creates an empty, uninitialized store.
func NewStore(builder *Builder, log zerolog.Logger) *Store {
	return &Store{
		log:       log.With().Str("component", "portfolio_store").Logger(),
		builder:   builder,
		prices:    make(map[string]domain.PriceQuote),
		pending:   make(map[string]struct{}),
		observers: make(map[int]Observer),
	}
}

// Initialize seeds the store with the ledger snapshot. No derived
// computation runs before this; it may be called exactly once between
// resets.
func (s *Store) Initialize(transactions []domain.Transaction, prices map[string]domain.PriceQuote, fx decimal.Decimal) error {
	deduped, err := dedupeTransactions(transactions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.initialized = true
	gen := s.gen
	for symbol, quote := range prices {
		s.prices[domain.NormalizeSymbol(symbol)] = quote
	}
	s.fxRate = fx
	s.lastTxHash = hashTransactions(deduped)
	s.mu.Unlock()

	return s.submit(mutation{kind: mutRebuild, gen: gen, transactions: deduped})
}

// RecordTransactions replaces the committed transaction list and rebuilds
// all positions. A call whose (id, timestamp) content hash matches the last
// accepted call is a no-op, so noisy upstream subscriptions cannot trigger
// redundant rebuilds.
func (s *Store) RecordTransactions(transactions []domain.Transaction) error {
	deduped, err := dedupeTransactions(transactions)
	if err != nil {
		return err
	}
	hash := hashTransactions(deduped)

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if hash == s.lastTxHash {
		s.mu.Unlock()
		s.log.Debug().Msg("Transaction list unchanged, skipping rebuild")
		return nil
	}
	s.lastTxHash = hash
	gen := s.gen
	s.mu.Unlock()

	return s.submit(mutation{kind: mutRebuild, gen: gen, transactions: deduped})
}

// AppendTransaction adds one interactive transaction (e.g. a partial sell
// submitted through the UI) and rebuilds. It deduplicates against both the
// in-flight pending set and the committed list, so a retried network call
// can never create two ledger entries.
func (s *Store) AppendTransaction(tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("rejecting transaction: %w", err)
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if _, inFlight := s.pending[tx.ID]; inFlight {
		s.mu.Unlock()
		s.log.Debug().Str("tx_id", tx.ID).Msg("Duplicate in-flight transaction ignored")
		return nil
	}
	for _, existing := range s.transactions {
		if existing.ID == tx.ID {
			s.mu.Unlock()
			s.log.Debug().Str("tx_id", tx.ID).Msg("Duplicate committed transaction ignored")
			return nil
		}
	}
	s.pending[tx.ID] = struct{}{}
	gen := s.gen
	s.mu.Unlock()

	return s.submit(mutation{kind: mutAppend, gen: gen, tx: tx})
}

// RecordPrices merges a batch of price quotes. If nothing actually changed
// the call is a no-op; otherwise only valuations and gains are recomputed —
// a price tick can never change cost basis, so the full replay is skipped.
func (s *Store) RecordPrices(prices map[string]domain.PriceQuote) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	changed := false
	for symbol, quote := range prices {
		key := domain.NormalizeSymbol(symbol)
		current, ok := s.prices[key]
		if !ok || !current.Price.Equal(quote.Price) || !current.ChangePercent.Equal(quote.ChangePercent) {
			changed = true
			break
		}
	}
	gen := s.gen
	s.mu.Unlock()
	if !changed {
		return nil
	}

	normalized := make(map[string]domain.PriceQuote, len(prices))
	for symbol, quote := range prices {
		normalized[domain.NormalizeSymbol(symbol)] = quote
	}
	return s.submit(mutation{kind: mutPrices, gen: gen, prices: normalized})
}

// RecordFxRate updates the USD→IDR rate and revalues both USD- and
// IDR-native positions. No change, no work.
func (s *Store) RecordFxRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("rejecting fx rate %s: must not be negative", rate)
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if s.fxRate.Equal(rate) {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()

	return s.submit(mutation{kind: mutFxRate, gen: gen, fx: rate})
}

// submit appends a mutation to the queue. The first submitter becomes the
// active writer and drains the whole queue on its own goroutine; everyone
// arriving mid-drain enqueues and returns immediately.
func (s *Store) submit(m mutation) error {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	if s.writerActive {
		s.mu.Unlock()
		return nil
	}
	s.writerActive = true
	s.mu.Unlock()
	return s.drain()
}

// drain applies queued mutations strictly in arrival order. On failure the
// remaining queue is discarded — a half-applied backlog is worse than a
// dropped one — and the writer flag is released in a guaranteed-cleanup
// path so the store can never wedge.
func (s *Store) drain() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic applying queued mutation: %v", r)
		}
		s.mu.Lock()
		if err != nil {
			s.queue = nil
			s.pending = make(map[string]struct{})
			s.log.Error().Err(err).Msg("Queue drain failed, discarding pending mutations")
		}
		s.writerActive = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.writerActive = false
			s.mu.Unlock()
			return nil
		}
		m := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err = s.apply(m); err != nil {
			return err
		}
	}
}

// apply executes one mutation to completion and notifies observers with the
// committed snapshot. Rebuilds and revaluations run outside the lock; only
// the single active writer ever reaches this code. The generation check
// guards every commit: a mutation dequeued before a concurrent ResetAll must
// not write into the freshly-reset state.
func (s *Store) apply(m mutation) error {
	switch m.kind {
	case mutRebuild:
		s.mu.Lock()
		if m.gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		prices := s.prices
		fx := s.fxRate
		s.mu.Unlock()

		assets := s.builder.Build(m.transactions, prices, fx)

		s.mu.Lock()
		if m.gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		s.transactions = m.transactions
		s.assets = assets
		s.lastUpdate = time.Now()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)

	case mutAppend:
		s.mu.Lock()
		if m.gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		transactions := append(copyTransactions(s.transactions), m.tx)
		prices := s.prices
		fx := s.fxRate
		s.mu.Unlock()

		assets := s.builder.Build(transactions, prices, fx)

		s.mu.Lock()
		if m.gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		s.transactions = transactions
		s.assets = assets
		s.lastTxHash = hashTransactions(transactions)
		s.lastUpdate = time.Now()
		delete(s.pending, m.tx.ID)
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)

	case mutPrices:
		s.mu.Lock()
		if m.gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		for symbol, quote := range m.prices {
			s.prices[symbol] = quote
		}
		s.revalueLocked(s.fxRate)
		s.lastUpdate = time.Now()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)

	case mutFxRate:
		s.mu.Lock()
		if m.gen != s.gen {
			s.mu.Unlock()
			return nil
		}
		s.fxRate = m.fx
		s.revalueLocked(m.fx)
		s.lastUpdate = time.Now()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)

	default:
		return fmt.Errorf("unknown mutation kind %d", m.kind)
	}
	return nil
}

// revalueLocked recomputes valuation and gain fields for every held
// position against the current price table and fx rate. Cost basis is
// untouched. Caller holds s.mu.
func (s *Store) revalueLocked(fx decimal.Decimal) {
	revalue := func(positions []domain.Position) {
		for i := range positions {
			pos := &positions[i]
			price := pos.CurrentPrice
			if quote, ok := QuoteFor(s.prices, pos.AssetClass, pos.Market, pos.Symbol); ok {
				price = quote.Price
			}
			pos.Revalue(price, fx)
		}
	}
	revalue(s.assets.Stocks)
	revalue(s.assets.Crypto)
	revalue(s.assets.Cash)
	revalue(s.assets.Gold)
}

// Subscribe registers an observer and returns its unsubscribe function.
func (s *Store) Subscribe(observer Observer) func() {
	s.obsMu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = observer
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify invokes every observer with the snapshot, isolating failures so
// one broken observer cannot starve the rest or corrupt the store.
func (s *Store) notify(snapshot Snapshot) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = s.observers[id]
	}
	s.obsMu.Unlock()

	for i, observer := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Int("observer", ids[i]).
						Interface("panic", r).
						Msg("Observer panicked, continuing with remaining observers")
				}
			}()
			observer(snapshot)
		}()
	}
}

// Snapshot returns a defensive copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	prices := make(map[string]domain.PriceQuote, len(s.prices))
	for symbol, quote := range s.prices {
		prices[symbol] = quote
	}
	return Snapshot{
		Assets: domain.Assets{
			Stocks: append([]domain.Position(nil), s.assets.Stocks...),
			Crypto: append([]domain.Position(nil), s.assets.Crypto...),
			Cash:   append([]domain.Position(nil), s.assets.Cash...),
			Gold:   append([]domain.Position(nil), s.assets.Gold...),
		},
		Transactions: copyTransactions(s.transactions),
		Prices:       prices,
		FxRate:       s.fxRate,
		LastUpdate:   s.lastUpdate,
		Initialized:  s.initialized,
	}
}

// Summary sums all positions into the portfolio aggregate. Totals are in
// IDR with USD figures alongside.
func (s *Store) Summary() domain.Summary {
	snapshot := s.Snapshot()

	summary := domain.Summary{LastUpdate: snapshot.LastUpdate}
	totalCostUSD := decimal.Zero
	for _, pos := range snapshot.Assets.All() {
		summary.TotalValue = summary.TotalValue.Add(pos.ValuationIDR)
		summary.TotalCost = summary.TotalCost.Add(pos.CostBasisIDR)
		summary.TotalValueUSD = summary.TotalValueUSD.Add(pos.ValuationUSD)
		totalCostUSD = totalCostUSD.Add(pos.CostBasisUSD)
		summary.AssetCount++
	}
	summary.TotalGain = summary.TotalValue.Sub(summary.TotalCost)
	summary.TotalGainUSD = summary.TotalValueUSD.Sub(totalCostUSD)
	if summary.TotalCost.IsPositive() {
		summary.TotalGainPercent = summary.TotalGain.Div(summary.TotalCost).Mul(decimal.NewFromInt(100))
	}
	return summary
}

// ResetAll clears every field and the pending queue, returning the store to
// its pre-Initialize state. Observers stay registered and receive the empty
// snapshot. Bumping the generation invalidates any mutation an active drain
// has already dequeued.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.initialized = false
	s.gen++
	s.assets = domain.Assets{}
	s.transactions = nil
	s.prices = make(map[string]domain.PriceQuote)
	s.fxRate = decimal.Zero
	s.lastUpdate = time.Time{}
	s.lastTxHash = ""
	s.pending = make(map[string]struct{})
	s.queue = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Msg("Portfolio store reset")
	s.notify(snapshot)
}

// dedupeTransactions validates the batch and drops repeated ids, keeping
// the first occurrence.
func dedupeTransactions(transactions []domain.Transaction) ([]domain.Transaction, error) {
	seen := make(map[string]struct{}, len(transactions))
	out := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("rejecting transaction batch: %w", err)
		}
		if _, dup := seen[tx.ID]; dup {
			continue
		}
		seen[tx.ID] = struct{}{}
		out = append(out, tx)
	}
	return out, nil
}

// hashTransactions fingerprints a batch by its (id, timestamp) pairs,
// independent of array order.
func hashTransactions(transactions []domain.Transaction) string {
	pairs := make([]string, len(transactions))
	for i, tx := range transactions {
		pairs[i] = tx.ID + "|" + tx.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	sort.Strings(pairs)

	h := sha256.New()
	for _, pair := range pairs {
		h.Write([]byte(pair))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func copyTransactions(transactions []domain.Transaction) []domain.Transaction {
	return append([]domain.Transaction(nil), transactions...)
}
