package jobs

import (
	"context"
	"time"

	"github.com/rezapram/arta/internal/backup"
)

// HourlyBackupJob wraps the local ledger backup for the scheduler.
type HourlyBackupJob struct {
	service *backup.Service
}

// NewHourlyBackupJob creates a new hourly backup job
func NewHourlyBackupJob(service *backup.Service) *HourlyBackupJob {
	return &HourlyBackupJob{service: service}
}

// Run executes the hourly backup
func (j *HourlyBackupJob) Run() error {
	return j.service.HourlyBackup()
}

// Name returns the job name for scheduler
func (j *HourlyBackupJob) Name() string {
	return "hourly_backup"
}

// DailyBackupJob wraps the full local backup for the scheduler.
type DailyBackupJob struct {
	service *backup.Service
}

// NewDailyBackupJob creates a new daily backup job
func NewDailyBackupJob(service *backup.Service) *DailyBackupJob {
	return &DailyBackupJob{service: service}
}

// Run executes the daily backup
func (j *DailyBackupJob) Run() error {
	return j.service.DailyBackup()
}

// Name returns the job name for scheduler
func (j *DailyBackupJob) Name() string {
	return "daily_backup"
}

// CloudBackupJob uploads a backup archive to R2 and rotates old ones.
type CloudBackupJob struct {
	service       *backup.CloudService
	retentionDays int
}

// NewCloudBackupJob creates a new cloud backup job
func NewCloudBackupJob(service *backup.CloudService, retentionDays int) *CloudBackupJob {
	return &CloudBackupJob{service: service, retentionDays: retentionDays}
}

// Run creates and uploads the archive, then rotates old backups.
func (j *CloudBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUpload(ctx); err != nil {
		return err
	}
	return j.service.RotateOldBackups(ctx, j.retentionDays)
}

// Name returns the job name for scheduler
func (j *CloudBackupJob) Name() string {
	return "cloud_backup"
}
