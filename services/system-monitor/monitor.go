package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	// gopsutil čte systémové statistiky (CPU, RAM, disk, procesy) multiplatformně.
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// targetApps jsou klíčová slova v názvech procesů platformy.
var targetApps = []string{
	"telemetry-server",
	"mosquitto",
	"postgres",
	"valkey",
}

// SystemStats je jeden snímek stavu hostitele. Publikuje se jako JSON.
type SystemStats struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`

	// CPULoad: průměrné vytížení procesoru v procentech (0-100).
	CPULoad float64 `json:"cpuLoad"`

	RamUsedMB  float64 `json:"ramUsedMb"`
	RamTotalMB float64 `json:"ramTotalMb"`

	// AppRamUsedMB: součet RSS procesů platformy.
	AppRamUsedMB float64 `json:"appRamUsedMb"`

	DiskUsedGB  float64 `json:"diskUsedGb"`
	DiskTotalGB float64 `json:"diskTotalGb"`
}

// Payload serializuje snímek pro MQTT.
func (s *SystemStats) Payload() ([]byte, error) {
	return json.Marshal(s)
}

// CollectStats změří CPU, RAM, paměť procesů platformy a disk.
// Jednotlivé chyby jen loguje, aby výpadek jedné metriky nezastavil ostatní.
func CollectStats(logger *slog.Logger) (*SystemStats, error) {
	stats := &SystemStats{Timestamp: time.Now().UTC()}
	stats.Host, _ = os.Hostname()

	// cpu.Percent blokuje po dobu intervalu (1s) a měří rozdíl čítačů.
	percentages, err := cpu.Percent(time.Second, false)
	if err == nil && len(percentages) > 0 {
		stats.CPULoad = percentages[0]
	} else {
		logger.Error("Chyba při čtení CPU statistik", "error", err)
	}

	vMem, err := mem.VirtualMemory()
	if err == nil {
		// Linux používá volnou RAM jako cache. Skutečně obsazená je Total - Available.
		stats.RamUsedMB = bytesToMB(vMem.Total - vMem.Available)
		stats.RamTotalMB = bytesToMB(vMem.Total)
	} else {
		logger.Error("Chyba při čtení RAM statistik", "error", err)
	}

	stats.AppRamUsedMB = bytesToMB(appMemory())

	dStat, err := disk.Usage("/")
	if err == nil {
		stats.DiskUsedGB = bytesToMB(dStat.Used) / 1024.0
		stats.DiskTotalGB = bytesToMB(dStat.Total) / 1024.0
	} else {
		logger.Error("Chyba při čtení statistik disku", "error", err)
	}

	return stats, nil
}

// appMemory sečte RSS procesů, jejichž název obsahuje některé z targetApps.
func appMemory() uint64 {
	procs, _ := process.Processes()
	var sum uint64
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// proces mezitím skončil
			continue
		}
		if !matchesTarget(name) {
			continue
		}
		if memInfo, err := p.MemoryInfo(); err == nil {
			sum += memInfo.RSS
		}
	}
	return sum
}

func matchesTarget(name string) bool {
	for _, target := range targetApps {
		if strings.Contains(name, target) {
			return true
		}
	}
	return false
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024.0 / 1024.0
}
