package backup

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezapram/arta/internal/database"
)

// Service manages tiered local database backups (hourly for the ledger,
// daily for everything).
type Service struct {
	databases map[string]*database.DB
	backupDir string
	log       zerolog.Logger
}

// NewService creates a new backup service. databases is keyed by the
// friendly name ("ledger", "cache").
func NewService(databases map[string]*database.DB, backupDir string, log zerolog.Logger) *Service {
	return &Service{
		databases: databases,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the names of all managed databases.
func (s *Service) DatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	return names
}

// HourlyBackup backs up ledger.db only. Keeps the last 24 hours.
func (s *Service) HourlyBackup() error {
	s.log.Info().Msg("Starting hourly backup")
	startTime := time.Now()

	hourlyDir := filepath.Join(s.backupDir, "hourly")
	if err := os.MkdirAll(hourlyDir, 0755); err != nil {
		return fmt.Errorf("failed to create hourly backup directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15")
	backupPath := filepath.Join(hourlyDir, fmt.Sprintf("ledger_%s.db", timestamp))

	if err := s.BackupDatabase("ledger", backupPath); err != nil {
		return fmt.Errorf("failed to backup ledger.db: %w", err)
	}

	if err := s.verifyBackup(backupPath); err != nil {
		os.Remove(backupPath)
		return fmt.Errorf("backup verification failed: %w", err)
	}

	if err := s.rotateHourlyBackups(hourlyDir); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate hourly backups")
		// Don't fail - backup succeeded
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("backup_path", backupPath).
		Msg("Hourly backup completed successfully")
	return nil
}

// DailyBackup backs up every database. Keeps the last 30 days.
func (s *Service) DailyBackup() error {
	s.log.Info().Msg("Starting daily backup")
	startTime := time.Now()

	date := time.Now().Format("2006-01-02")
	dailyDir := filepath.Join(s.backupDir, "daily", date)
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	for _, dbName := range s.DatabaseNames() {
		backupPath := filepath.Join(dailyDir, dbName+".db")

		if err := s.BackupDatabase(dbName, backupPath); err != nil {
			s.log.Error().
				Str("database", dbName).
				Err(err).
				Msg("Failed to backup database")
			// Continue with other databases
			continue
		}

		if err := s.verifyBackup(backupPath); err != nil {
			s.log.Error().
				Str("database", dbName).
				Err(err).
				Msg("Backup verification failed")
			os.Remove(backupPath)
		}
	}

	if err := s.rotateDailyBackups(); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate daily backups")
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("backup_dir", dailyDir).
		Msg("Daily backup completed successfully")
	return nil
}

// BackupDatabase copies one database to backupPath using SQLite's
// VACUUM INTO, which produces an atomic, WAL-free, defragmented copy.
func (s *Service) BackupDatabase(dbName, backupPath string) error {
	db, ok := s.databases[dbName]
	if !ok {
		return fmt.Errorf("database %s not found", dbName)
	}

	s.log.Debug().
		Str("database", dbName).
		Str("backup_path", backupPath).
		Msg("Backing up database")

	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	return nil
}

// verifyBackup opens the backup and runs an integrity check.
func (s *Service) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	err = backupDB.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotateHourlyBackups deletes backups older than 24 hours
func (s *Service) rotateHourlyBackups(hourlyDir string) error {
	cutoff := time.Now().Add(-24 * time.Hour)

	entries, err := os.ReadDir(hourlyDir)
	if err != nil {
		return fmt.Errorf("failed to read hourly backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			path := filepath.Join(hourlyDir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.log.Warn().
					Str("path", path).
					Err(err).
					Msg("Failed to delete old hourly backup")
			} else {
				s.log.Debug().
					Str("path", path).
					Msg("Deleted old hourly backup")
			}
		}
	}

	return nil
}

// rotateDailyBackups deletes backups older than 30 days
func (s *Service) rotateDailyBackups() error {
	dailyDir := filepath.Join(s.backupDir, "daily")
	cutoff := time.Now().AddDate(0, 0, -30)

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Directory names are YYYY-MM-DD
		dirDate, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			s.log.Warn().
				Str("dir", entry.Name()).
				Msg("Failed to parse date from directory name")
			continue
		}

		if dirDate.Before(cutoff) {
			path := filepath.Join(dailyDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn().
					Str("path", path).
					Err(err).
					Msg("Failed to delete old daily backup")
			} else {
				s.log.Debug().
					Str("path", path).
					Msg("Deleted old daily backup")
			}
		}
	}

	return nil
}
