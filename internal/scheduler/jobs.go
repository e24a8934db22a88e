package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/internal/modules/collector"
	"github.com/stockhunter/stockhunter/internal/modules/master"
	"github.com/stockhunter/stockhunter/internal/reliability"
)

// jobTimeout bounds any single background run.
const jobTimeout = 2 * time.Hour

// IncrementalUpdateJob fills the gap between the stored bars and today.
type IncrementalUpdateJob struct {
	collector *collector.Collector
	log       zerolog.Logger
}

func NewIncrementalUpdateJob(c *collector.Collector, log zerolog.Logger) *IncrementalUpdateJob {
	return &IncrementalUpdateJob{collector: c, log: log}
}

func (j *IncrementalUpdateJob) Name() string { return "incremental_update" }

func (j *IncrementalUpdateJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	err := j.collector.Update(ctx)
	if errors.Is(err, domain.ErrCollectionRunning) {
		j.log.Warn().Msg("Skipping scheduled update, a collection is already running")
		return nil
	}
	return err
}

// MasterRefreshJob re-resolves the universe so a stale master falls back to
// fresher sources, then backfills missing display names.
type MasterRefreshJob struct {
	universe  *master.Manager
	collector *collector.Collector
	log       zerolog.Logger
}

func NewMasterRefreshJob(universe *master.Manager, c *collector.Collector, log zerolog.Logger) *MasterRefreshJob {
	return &MasterRefreshJob{universe: universe, collector: c, log: log}
}

func (j *MasterRefreshJob) Name() string { return "master_refresh" }

func (j *MasterRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := j.universe.KoreanUniverse(); err != nil {
		return err
	}

	updated, err := j.collector.SyncStockNames(ctx)
	if err != nil {
		return err
	}
	if updated > 0 {
		j.log.Info().Int("updated", updated).Msg("Backfilled instrument names")
	}
	return nil
}

// BackupJob ships a store snapshot to object storage.
type BackupJob struct {
	backups *reliability.BackupService
}

func NewBackupJob(backups *reliability.BackupService) *BackupJob {
	return &BackupJob{backups: backups}
}

func (j *BackupJob) Name() string { return "store_backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.backups.CreateAndUploadBackup(ctx)
}

// MaintenanceJob runs the daily store maintenance pass.
type MaintenanceJob struct {
	maintenance *reliability.MaintenanceService
}

func NewMaintenanceJob(m *reliability.MaintenanceService) *MaintenanceJob {
	return &MaintenanceJob{maintenance: m}
}

func (j *MaintenanceJob) Name() string { return "store_maintenance" }

func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.maintenance.RunDaily(ctx)
}
