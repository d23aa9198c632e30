package jobs

import (
	"github.com/rs/zerolog"

	"github.com/rezapram/arta/internal/clients/exchangerate"
	"github.com/rezapram/arta/internal/events"
	"github.com/rezapram/arta/internal/portfolio"
)

// FxSyncJob refreshes the USD→IDR rate and pushes it into the store.
type FxSyncJob struct {
	client *exchangerate.Client
	store  *portfolio.Store
	em     *events.Manager
	log    zerolog.Logger
}

// NewFxSyncJob creates an FX sync job.
func NewFxSyncJob(client *exchangerate.Client, store *portfolio.Store, em *events.Manager, log zerolog.Logger) *FxSyncJob {
	return &FxSyncJob{
		client: client,
		store:  store,
		em:     em,
		log:    log.With().Str("job", "fx_sync").Logger(),
	}
}

// Run fetches the rate. A failed fetch with no cached fallback leaves the
// store's previous rate in place rather than zeroing valuations.
func (j *FxSyncJob) Run() error {
	snapshot := j.store.Snapshot()
	if !snapshot.Initialized {
		j.log.Debug().Msg("Store not initialized yet, skipping fx sync")
		return nil
	}

	rate, stale, err := j.client.GetRate("USD", "IDR")
	if err != nil {
		j.log.Error().Err(err).Msg("FX sync failed, keeping previous rate")
		return err
	}

	if err := j.store.RecordFxRate(rate); err != nil {
		return err
	}

	j.em.EmitTyped(events.FxRateUpdated, "fx_sync", &events.FxRateUpdatedData{
		Rate:  rate.String(),
		Stale: stale,
	})

	j.log.Info().Str("rate", rate.String()).Bool("stale", stale).Msg("FX sync completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *FxSyncJob) Name() string {
	return "fx_sync"
}
