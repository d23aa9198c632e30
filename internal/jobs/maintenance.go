package jobs

import (
	"github.com/rs/zerolog"

	"github.com/rezapram/arta/internal/database"
)

// MaintenanceJob checkpoints WAL files on every database so they cannot
// grow unbounded on a long-running instance.
type MaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job.
func NewMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Run truncates the WAL on every database. Failures are logged per database
// and do not stop the rest.
func (j *MaintenanceJob) Run() error {
	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			continue
		}
		j.log.Debug().Str("database", name).Msg("WAL checkpoint completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}
