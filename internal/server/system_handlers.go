package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"marketmind/internal/database"
)

// handleSystemHealth reports process, host and database health.
// GET /api/system/health
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cpuPct, memPct := hostStats()

	databases := map[string]string{}
	status := http.StatusOK
	overall := "healthy"

	for name, db := range map[string]*database.DB{
		"core":  s.deps.CoreDB,
		"cache": s.deps.CacheDB,
	} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			databases[name] = "unhealthy: " + err.Error()
			overall = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			databases[name] = "ok"
		}
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     overall,
		"databases":  databases,
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
		"host": map[string]interface{}{
			"cpu_percent": cpuPct,
			"ram_percent": memPct,
		},
	})
}

// hostStats samples host CPU and memory. A short interval keeps the
// endpoint responsive for dashboard polling.
func hostStats() (float64, float64) {
	cpuAvg := 0.0
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		return cpuAvg, 0
	}

	return cpuAvg, memStat.UsedPercent
}
