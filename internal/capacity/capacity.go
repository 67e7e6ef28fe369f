// Package capacity probes this host's compute capacity, adapting
// pkg/compute/manager.go's probeCapacity from the teacher. §4.1 of
// spec.md: "CPU count is queried and becomes the initial max_workers."
package capacity

import (
	"math"
	"runtime"
)

// Capacity describes a node's compute resources, carried in the
// server_up broadcast (§12 supplement) so a richer cluster advertisement
// is available to a future (still non-goal'd) load-balancing scheduler.
type Capacity struct {
	CPUCores    int     `json:"cpuCores"`
	RAMMB       uint64  `json:"ramMb"`
	CurrentLoad float64 `json:"currentLoad"`
}

// Probe reads runtime statistics to estimate this host's capacity.
func Probe() Capacity {
	numCPU := runtime.NumCPU()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	ramMB := memStats.HeapSys / (1024 * 1024)
	if ramMB < 512 {
		ramMB = 512
	}

	numGoroutines := runtime.NumGoroutine()
	load := math.Min(float64(numGoroutines)/float64(numCPU*10), 1.0)

	return Capacity{
		CPUCores:    numCPU,
		RAMMB:       ramMB,
		CurrentLoad: load,
	}
}
