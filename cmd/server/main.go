// Package main is the entry point for the Arta portfolio tracker.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env supported)
//  2. Initialize structured logging
//  3. Open the ledger and cache databases and run their schemas
//  4. Replay the transaction ledger into the in-memory store
//  5. Wire the event bus, price clients and scheduled jobs
//  6. Start the HTTP server and the crypto price stream
//  7. Wait for SIGINT/SIGTERM and shut everything down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/backup"
	"github.com/rezapram/arta/internal/clientdata"
	"github.com/rezapram/arta/internal/clients/exchangerate"
	"github.com/rezapram/arta/internal/clients/marketdata"
	"github.com/rezapram/arta/internal/config"
	"github.com/rezapram/arta/internal/database"
	"github.com/rezapram/arta/internal/domain"
	"github.com/rezapram/arta/internal/events"
	"github.com/rezapram/arta/internal/jobs"
	"github.com/rezapram/arta/internal/ledger"
	"github.com/rezapram/arta/internal/portfolio"
	"github.com/rezapram/arta/internal/scheduler"
	"github.com/rezapram/arta/internal/server"
	"github.com/rezapram/arta/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Arta")

	// Ledger database: durable, synchronous=FULL. Cache database: ephemeral,
	// rebuilt from upstream APIs, so it runs with synchronous=OFF.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := ledger.InitSchema(ledgerDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger schema")
	}
	if err := clientdata.InitSchema(cacheDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	databases := map[string]*database.DB{
		"ledger": ledgerDB,
		"cache":  cacheDB,
	}

	// Repositories and clients
	ledgerRepo := ledger.NewRepository(ledgerDB, log)
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	fxClient := exchangerate.NewClient(cacheRepo, log)
	quoteClient := marketdata.NewClient(cfg.MarketDataBaseURL, cfg.MarketDataAPIKey, cacheRepo, log)

	// Event bus and manager
	eventBus := events.NewBus(log)
	eventManager := events.NewManager(eventBus, log)

	// Portfolio store, seeded from the ledger. The FX rate comes from the
	// cache when fresh and from the API otherwise; when both fail, valuations
	// start at zero and the first fx_sync run repairs them.
	store := portfolio.NewStore(portfolio.NewBuilder(log), log)

	transactions, err := ledgerRepo.LoadAll()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transaction ledger")
	}

	fxRate := decimal.Zero
	if rate, stale, err := fxClient.GetRate("USD", "IDR"); err != nil {
		log.Warn().Err(err).Msg("No FX rate available at startup")
	} else {
		fxRate = rate
		log.Info().Str("rate", rate.String()).Bool("stale", stale).Msg("Loaded USD/IDR rate")
	}

	if err := store.Initialize(transactions, nil, fxRate); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio store")
	}
	log.Info().Int("transactions", len(transactions)).Msg("Portfolio store initialized from ledger")

	// Fan store commits out to SSE clients.
	store.Subscribe(func(snapshot portfolio.Snapshot) {
		eventManager.EmitTyped(events.PortfolioChanged, "store", &events.PortfolioChangedData{
			AssetCount: snapshot.Assets.Count(),
			Trigger:    "commit",
		})
	})

	// Crypto price stream (optional)
	var priceStream *marketdata.PriceStream
	if cfg.MarketDataStreamURL != "" {
		priceStream = marketdata.NewPriceStream(
			cfg.MarketDataStreamURL,
			cfg.CryptoStreamSymbols,
			func(quotes map[string]domain.PriceQuote) {
				if err := store.RecordPrices(quotes); err != nil {
					log.Error().Err(err).Msg("Failed to record streamed prices")
				}
			},
			log,
		)
		if err := priceStream.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start price stream")
		}
	} else {
		log.Info().Msg("Price stream disabled (MARKETDATA_STREAM_URL not set)")
	}

	// Local and cloud backups
	backupService := backup.NewService(databases, cfg.BackupDir, log)

	var cloudBackup *backup.CloudService
	if cfg.R2Enabled() {
		r2Client, err := backup.NewR2Client(
			cfg.R2AccountID,
			cfg.R2AccessKeyID,
			cfg.R2SecretAccessKey,
			cfg.R2BucketName,
			log,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create R2 client, cloud backup disabled")
		} else {
			cloudBackup = backup.NewCloudService(r2Client, backupService, cfg.DataDir, log)
		}
	} else {
		log.Info().Msg("Cloud backup disabled (R2 credentials not configured)")
	}

	// Scheduled jobs
	sched := scheduler.New(log)

	priceSyncJob := jobs.NewPriceSyncJob(quoteClient, store, eventManager, log)
	fxSyncJob := jobs.NewFxSyncJob(fxClient, store, eventManager, log)
	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)
	hourlyBackupJob := jobs.NewHourlyBackupJob(backupService)
	dailyBackupJob := jobs.NewDailyBackupJob(backupService)
	maintenanceJob := jobs.NewMaintenanceJob(databases, log)

	registerJob := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}

	registerJob(cfg.PriceSyncSchedule, priceSyncJob)
	registerJob(cfg.FxSyncSchedule, fxSyncJob)
	registerJob("0 15 * * * *", cleanupJob)     // hourly, offset from backups
	registerJob("0 0 * * * *", hourlyBackupJob) // top of every hour
	registerJob("0 30 2 * * *", dailyBackupJob) // 02:30 daily
	registerJob("0 45 3 * * *", maintenanceJob) // 03:45 daily WAL truncate

	triggerableJobs := []scheduler.Job{
		priceSyncJob,
		fxSyncJob,
		cleanupJob,
		hourlyBackupJob,
		dailyBackupJob,
		maintenanceJob,
	}

	if cloudBackup != nil {
		cloudBackupJob := jobs.NewCloudBackupJob(cloudBackup, cfg.R2RetentionDays)
		registerJob("0 0 4 * * *", cloudBackupJob) // 04:00 daily upload
		triggerableJobs = append(triggerableJobs, cloudBackupJob)
	}

	sched.Start()

	// HTTP server
	var streamStatus server.StreamStatus
	if priceStream != nil {
		streamStatus = priceStream
	}

	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Store:        store,
		Ledger:       ledgerRepo,
		Databases:    databases,
		EventBus:     eventBus,
		EventManager: eventManager,
		PriceStream:  streamStatus,
	})
	srv.SetJobs(triggerableJobs...)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Warm prices shortly after boot so the dashboard is not empty until the
	// first scheduled sync.
	go func() {
		time.Sleep(2 * time.Second)
		if err := sched.RunNow(priceSyncJob); err != nil {
			log.Warn().Err(err).Msg("Initial price sync failed")
		}
	}()

	waitForShutdown(log, srv, sched, priceStream)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops components in
// reverse startup order.
func waitForShutdown(log zerolog.Logger, srv *server.Server, sched *scheduler.Scheduler, priceStream *marketdata.PriceStream) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if priceStream != nil {
		if err := priceStream.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping price stream")
		}
	}

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
