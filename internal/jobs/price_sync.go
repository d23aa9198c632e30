// Package jobs contains the scheduled background jobs: price and FX
// synchronization, backups and maintenance.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezapram/arta/internal/clients/marketdata"
	"github.com/rezapram/arta/internal/domain"
	"github.com/rezapram/arta/internal/events"
	"github.com/rezapram/arta/internal/portfolio"
)

// PriceSyncJob polls the price provider for every held asset and pushes the
// quotes into the portfolio store.
type PriceSyncJob struct {
	client *marketdata.Client
	store  *portfolio.Store
	em     *events.Manager
	log    zerolog.Logger
}

// NewPriceSyncJob creates a price sync job.
func NewPriceSyncJob(client *marketdata.Client, store *portfolio.Store, em *events.Manager, log zerolog.Logger) *PriceSyncJob {
	return &PriceSyncJob{
		client: client,
		store:  store,
		em:     em,
		log:    log.With().Str("job", "price_sync").Logger(),
	}
}

// Run fetches quotes for the current holdings. Cash positions are skipped:
// one unit of cash is always worth 1.
func (j *PriceSyncJob) Run() error {
	snapshot := j.store.Snapshot()
	if !snapshot.Initialized {
		j.log.Debug().Msg("Store not initialized yet, skipping price sync")
		return nil
	}

	symbols := symbolsToSync(snapshot.Assets)
	if len(symbols) == 0 {
		j.log.Debug().Msg("No priced assets held, skipping price sync")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quotes, err := j.client.GetQuotes(ctx, symbols)
	if err != nil {
		j.log.Error().Err(err).Msg("Price sync failed")
		return err
	}
	if len(quotes) == 0 {
		return nil
	}

	if err := j.store.RecordPrices(quotes); err != nil {
		return err
	}

	updated := make([]string, 0, len(quotes))
	for symbol := range quotes {
		updated = append(updated, symbol)
	}
	j.em.EmitTyped(events.PriceUpdated, "price_sync", &events.PriceUpdatedData{Symbols: updated})

	j.log.Info().Int("symbols", len(quotes)).Msg("Price sync completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// symbolsToSync collects the provider-facing symbols of all non-cash
// positions. IDX stocks are keyed with the .JK suffix upstream.
func symbolsToSync(assets domain.Assets) []string {
	var symbols []string
	for _, pos := range assets.All() {
		if pos.AssetClass == domain.ClassCash {
			continue
		}
		symbol := pos.Symbol
		if pos.AssetClass == domain.ClassStock && pos.Market == domain.MarketIDX {
			symbol += ".JK"
		}
		symbols = append(symbols, symbol)
	}
	return symbols
}
