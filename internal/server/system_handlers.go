package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stockhunter/stockhunter/internal/modules/prices"
)

// SystemHandlers serves host and store health for the operator dashboard.
type SystemHandlers struct {
	store     *prices.Store
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system status handlers.
func NewSystemHandlers(store *prices.Store, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		store:     store,
		dataDir:   dataDir,
		startedAt: time.Now(),
		log:       log.With().Str("component", "system").Logger(),
	}
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// handleSystemStatus reports CPU, memory, disk and store statistics.
func (h *SystemHandlers) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpuPercent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"totalBytes":  vm.Total,
			"usedBytes":   vm.Used,
			"usedPercent": vm.UsedPercent,
		}
	}
	if usage, err := disk.Usage(h.dataDir); err == nil {
		status["disk"] = map[string]interface{}{
			"totalBytes":  usage.Total,
			"freeBytes":   usage.Free,
			"usedPercent": usage.UsedPercent,
		}
	}

	if stats, err := h.store.GetStatistics(); err == nil {
		status["store"] = map[string]interface{}{
			"instrumentCount": stats.InstrumentCount,
			"barCount":        stats.BarCount,
			"oldestDate":      stats.OldestDate,
			"newestDate":      stats.NewestDate,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read store statistics")
	}

	h.writeJSON(w, status)
}
