package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/growin/growin/internal/database"
	"github.com/growin/growin/internal/modules/charts"
	"github.com/growin/growin/internal/modules/live"
	"github.com/growin/growin/internal/scheduler"
)

// SystemHandlers handles system monitoring and maintenance endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	poller      *live.Poller
	charts      *charts.Registry
	cacheDB     *database.DB
	scheduler   *scheduler.Scheduler
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance. Every dependency is
// optional; missing ones are left out of the responses.
func NewSystemHandlers(
	log zerolog.Logger,
	poller *live.Poller,
	chartRegistry *charts.Registry,
	cacheDB *database.DB,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		poller:      poller,
		charts:      chartRegistry,
		cacheDB:     cacheDB,
		scheduler:   sched,
	}
	h.systemStats = h.getSystemStats
	return h
}

// PollerStatus summarizes the live poller.
type PollerStatus struct {
	Status      string     `json:"status"`
	Account     string     `json:"account"`
	Running     bool       `json:"running"`
	Cycles      int        `json:"cycles"`
	Error       string     `json:"error,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// StreamStatus is the connection state of one chart stream.
type StreamStatus struct {
	Symbol    string `json:"symbol"`
	Connected bool   `json:"connected"`
	Points    int    `json:"points"`
	Error     string `json:"error,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	CPUPercent    float64        `json:"cpu_percent"`
	MemoryPercent float64        `json:"memory_percent"`
	Poller        *PollerStatus  `json:"poller,omitempty"`
	Streams       []StreamStatus `json:"streams"`
	Jobs          []string       `json:"jobs"`
}

// GetSystemStatusSnapshot collects the current system status.
func (h *SystemHandlers) GetSystemStatusSnapshot() SystemStatusResponse {
	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Streams:       []StreamStatus{},
		Jobs:          []string{},
	}

	if h.poller != nil {
		state := h.poller.State()
		ps := &PollerStatus{
			Status:  string(state.Status),
			Account: string(state.Account),
			Running: h.poller.Running(),
			Cycles:  state.Cycles,
		}
		if state.Err != nil {
			ps.Error = state.Err.Error()
			response.Status = "degraded"
		}
		if !state.LastSuccess.IsZero() {
			t := state.LastSuccess
			ps.LastSuccess = &t
		}
		response.Poller = ps
	}

	if h.charts != nil {
		for _, symbol := range h.charts.Symbols() {
			stream, ok := h.charts.Lookup(symbol)
			if !ok {
				continue
			}
			state := stream.Merger().Snapshot()
			response.Streams = append(response.Streams, StreamStatus{
				Symbol:    symbol,
				Connected: stream.IsConnected(),
				Points:    len(state.Points),
				Error:     state.Error,
			})
		}
	}

	if h.scheduler != nil {
		response.Jobs = h.scheduler.Jobs()
	}

	return response
}

// HandleSystemStatus returns CPU and memory usage plus poller and stream state.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot())
}

// HandleDatabaseStats returns response cache database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.cacheDB == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "cache database not configured"})
		return
	}

	stats, err := h.cacheDB.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get cache database stats")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":  h.cacheDB.Name(),
		"stats": stats,
	})
}

// HandleTriggerJob runs a registered maintenance job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "scheduler not configured"})
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.scheduler.RunNamed(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrUnknownJob) {
			status = http.StatusNotFound
		}
		h.log.Warn().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeJSON(w, status, map[string]string{"detail": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

// getSystemStats returns CPU and RAM usage percentages. The CPU sample window
// is kept short so the endpoint stays responsive.
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
