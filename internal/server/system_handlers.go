package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rezapram/arta/internal/database"
	"github.com/rezapram/arta/internal/portfolio"
	"github.com/rezapram/arta/internal/scheduler"
)

// SystemHandlers serves system monitoring endpoints and manual job triggers.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	databases   map[string]*database.DB
	store       *portfolio.Store
	priceStream StreamStatus
	startupTime time.Time

	jobsMu sync.RWMutex
	jobs   map[string]scheduler.Job
}

// SystemStatusResponse is the payload for GET /api/system/status.
type SystemStatusResponse struct {
	Status          string  `json:"status"`
	UptimeHours     float64 `json:"uptime_hours"`
	CPUPercent      float64 `json:"cpu_percent"`
	RAMPercent      float64 `json:"ram_percent"`
	StoreReady      bool    `json:"store_ready"`
	AssetCount      int     `json:"asset_count"`
	TransactionNum  int     `json:"transaction_count"`
	FxRate          string  `json:"fx_rate"`
	StreamConnected bool    `json:"stream_connected"`
	LastUpdate      string  `json:"last_update"`
}

// DBInfo describes one database file.
type DBInfo struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	SizeMB     float64 `json:"size_mb"`
	WALSizeMB  float64 `json:"wal_size_mb"`
	PageCount  int64   `json:"page_count"`
	FreePages  int64   `json:"free_pages"`
	StatsError string  `json:"stats_error,omitempty"`
}

// DatabaseStatsResponse is the payload for GET /api/system/database/stats.
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse is the payload for GET /api/system/disk.
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	BackupsMB float64 `json:"backups_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	store *portfolio.Store,
	priceStream StreamStatus,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		databases:   databases,
		store:       store,
		priceStream: priceStream,
		startupTime: time.Now(),
		jobs:        make(map[string]scheduler.Job),
	}
}

// SetJobs registers jobs for manual triggering, keyed by Job.Name().
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	for _, job := range jobs {
		h.jobs[job.Name()] = job
	}
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()
	snapshot := h.store.Snapshot()

	streamConnected := false
	if h.priceStream != nil {
		streamConnected = h.priceStream.IsConnected()
	}

	response := SystemStatusResponse{
		Status:          "healthy",
		UptimeHours:     time.Since(h.startupTime).Hours(),
		CPUPercent:      cpuPercent,
		RAMPercent:      ramPercent,
		StoreReady:      snapshot.Initialized,
		AssetCount:      snapshot.Assets.Count(),
		TransactionNum:  len(snapshot.Transactions),
		FxRate:          snapshot.FxRate.String(),
		StreamConnected: streamConnected,
		LastUpdate:      snapshot.LastUpdate.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	infos := make([]DBInfo, 0, len(h.databases))
	totalSizeMB := 0.0

	for name, db := range h.databases {
		info := DBInfo{Name: name, Path: db.Path()}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			info.StatsError = err.Error()
		} else {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.PageCount = stats.PageCount
			info.FreePages = stats.FreelistCount
			totalSizeMB += info.SizeMB + info.WALSizeMB
		}

		infos = append(infos, info)
	}

	response := DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	backupsDir := filepath.Join(h.dataDir, "backups")
	backupsSize := h.getDirSize(backupsDir)

	response := DiskUsageResponse{
		DataDirMB: dataDirSize,
		BackupsMB: backupsSize,
		TotalMB:   dataDirSize,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleTriggerJob runs a registered job by name in the background.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.jobsMu.RLock()
	job, ok := h.jobs[name]
	h.jobsMu.RUnlock()

	if !ok {
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Job not registered: " + name,
		})
		return
	}

	go func() {
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.log.Info().Str("job", name).Msg("Job triggered manually")
	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Job triggered: " + name,
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages. Uses a 100ms
// sampling interval so the status endpoint stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
