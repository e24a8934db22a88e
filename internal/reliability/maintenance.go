package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/stockhunter/stockhunter/internal/database"
)

// minFreeDiskPercent is the floor below which maintenance raises an error
// instead of silently degrading.
const minFreeDiskPercent = 10.0

// MaintenanceService keeps the store healthy between collections: WAL
// truncation, integrity checks and a disk space watchdog.
type MaintenanceService struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// NewMaintenanceService creates the maintenance service.
func NewMaintenanceService(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("service", "maintenance").Logger(),
	}
}

// RunDaily performs the nightly maintenance pass.
func (s *MaintenanceService) RunDaily(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("Starting daily maintenance")

	if err := s.CheckDiskSpace(); err != nil {
		return err
	}

	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}

	healthCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := s.db.HealthCheck(healthCtx); err != nil {
		return fmt.Errorf("store failed integrity check: %w", err)
	}

	if stats, err := s.db.GetStats(); err == nil {
		s.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_bytes", stats.WALSizeBytes).
			Int64("freelist_pages", stats.FreelistCount).
			Dur("duration", time.Since(start)).
			Msg("Daily maintenance complete")
	}

	return nil
}

// CheckDiskSpace verifies the data volume has headroom left.
func (s *MaintenanceService) CheckDiskSpace() error {
	usage, err := disk.Usage(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}

	freePercent := 100.0 - usage.UsedPercent
	if freePercent < minFreeDiskPercent {
		return fmt.Errorf("low disk space: %.1f%% free on %s", freePercent, s.dataDir)
	}

	s.log.Debug().Float64("free_percent", freePercent).Msg("Disk space OK")
	return nil
}
