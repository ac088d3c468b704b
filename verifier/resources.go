package verifier

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSnapshot is a point-in-time read of the host's load, taken by
// SizePool when sizing a BatchRunner's worker pool (spec.md §5
// "Concurrency & Resource Model"). It is not included in any Report.
type ResourceSnapshot struct {
	Cores       int32
	CPUUsage    float64
	MemTotal    uint64
	MemUsed     uint64
	MemUsedPct  float64
	Load1       float64
	Load5       float64
}

// Snapshot collects the current CPU/memory/load readings.
func Snapshot() (ResourceSnapshot, error) {
	infos, err := cpu.Info()
	if err != nil {
		return ResourceSnapshot{}, fmt.Errorf("verifier: reading cpu info: %w", err)
	}
	usage, err := cpu.Percent(0, false)
	if err != nil {
		return ResourceSnapshot{}, fmt.Errorf("verifier: reading cpu usage: %w", err)
	}
	v, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSnapshot{}, fmt.Errorf("verifier: reading memory info: %w", err)
	}
	avg, err := load.Avg()
	if err != nil {
		return ResourceSnapshot{}, fmt.Errorf("verifier: reading system load: %w", err)
	}

	var cores int32
	if len(infos) > 0 {
		cores = infos[0].Cores
	}
	var cpuUsage float64
	if len(usage) > 0 {
		cpuUsage = usage[0]
	}

	return ResourceSnapshot{
		Cores:      cores,
		CPUUsage:   cpuUsage,
		MemTotal:   v.Total,
		MemUsed:    v.Used,
		MemUsedPct: v.UsedPercent,
		Load1:      avg.Load1,
		Load5:      avg.Load5,
	}, nil
}

// SizePool picks a worker-pool size for a BatchRunner from the current
// resource snapshot: one worker per core, but never more than requested and
// never zero.
func SizePool(requested int) int {
	snap, err := Snapshot()
	if err != nil || snap.Cores <= 0 {
		if requested > 0 {
			return requested
		}
		return 1
	}
	if requested > 0 && int(snap.Cores) > requested {
		return requested
	}
	return int(snap.Cores)
}
