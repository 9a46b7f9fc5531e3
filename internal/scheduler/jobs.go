package scheduler

import (
	"context"
	"time"

	"github.com/apostolou/hestia/internal/clientdata"
	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/currency"
	"github.com/apostolou/hestia/internal/modules/fixeddeposit"
	"github.com/apostolou/hestia/internal/modules/snapshots"
	"github.com/apostolou/hestia/internal/reliability"
)

// MaturityScanJob flips fixed deposits past their maturity date to MATURED
type MaturityScanJob struct {
	service *fixeddeposit.Service
}

// NewMaturityScanJob creates a new maturity scan job
func NewMaturityScanJob(service *fixeddeposit.Service) *MaturityScanJob {
	return &MaturityScanJob{service: service}
}

// Run executes the maturity scan
func (j *MaturityScanJob) Run() error {
	_, err := j.service.MarkMatured()
	return err
}

// Name returns the job name for the scheduler
func (j *MaturityScanJob) Name() string {
	return "maturity_scan"
}

// SnapshotJob captures a daily valuation snapshot for every portfolio
type SnapshotJob struct {
	service *snapshots.Service
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(service *snapshots.Service) *SnapshotJob {
	return &SnapshotJob{service: service}
}

// Run captures the snapshots
func (j *SnapshotJob) Run() error {
	_, err := j.service.CaptureAll()
	return err
}

// Name returns the job name for the scheduler
func (j *SnapshotJob) Name() string {
	return "valuation_snapshot"
}

// LocalBackupJob backs up every database to the local backup directory
type LocalBackupJob struct {
	service       *reliability.BackupService
	retentionDays int
}

// NewLocalBackupJob creates a new local backup job
func NewLocalBackupJob(service *reliability.BackupService, retentionDays int) *LocalBackupJob {
	return &LocalBackupJob{service: service, retentionDays: retentionDays}
}

// Run executes the local backup
func (j *LocalBackupJob) Run() error {
	return j.service.DailyBackup(j.retentionDays)
}

// Name returns the job name for the scheduler
func (j *LocalBackupJob) Name() string {
	return "local_backup"
}

// CloudBackupJob uploads a backup archive to the S3 bucket and rotates
// old archives
type CloudBackupJob struct {
	service       *reliability.S3BackupService
	retentionDays int
}

// NewCloudBackupJob creates a new cloud backup job
func NewCloudBackupJob(service *reliability.S3BackupService, retentionDays int) *CloudBackupJob {
	return &CloudBackupJob{service: service, retentionDays: retentionDays}
}

// Run executes the cloud backup and rotation
func (j *CloudBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	return j.service.RotateOldBackups(ctx, j.retentionDays)
}

// Name returns the job name for the scheduler
func (j *CloudBackupJob) Name() string {
	return "cloud_backup"
}

// RateRefreshJob warms the exchange-rate cache for every supported
// currency against the base currency, so valuations do not block on the
// rate API
type RateRefreshJob struct {
	provider     currency.RateProvider
	baseCurrency string
}

// NewRateRefreshJob creates a new rate refresh job
func NewRateRefreshJob(provider currency.RateProvider, baseCurrency string) *RateRefreshJob {
	return &RateRefreshJob{provider: provider, baseCurrency: baseCurrency}
}

// Run fetches a fresh rate for each supported currency pair
func (j *RateRefreshJob) Run() error {
	var firstErr error
	for _, c := range domain.AllCurrencies {
		if string(c) == j.baseCurrency {
			continue
		}
		if _, err := j.provider.GetRate(string(c), j.baseCurrency); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Name returns the job name for the scheduler
func (j *RateRefreshJob) Name() string {
	return "rate_refresh"
}

// CacheCleanupJob purges expired rows from the client cache
type CacheCleanupJob struct {
	repo *clientdata.Repository
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(repo *clientdata.Repository) *CacheCleanupJob {
	return &CacheCleanupJob{repo: repo}
}

// Run deletes expired cache entries
func (j *CacheCleanupJob) Run() error {
	_, err := j.repo.DeleteAllExpired()
	return err
}

// Name returns the job name for the scheduler
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}
