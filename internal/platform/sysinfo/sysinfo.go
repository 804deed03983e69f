// Package sysinfo reports host resource usage for the status endpoint.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of process and host load.
type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

// MemoryUsagePercent returns host memory utilisation in [0,100].
func MemoryUsagePercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// CPUUsagePercent returns host CPU utilisation in [0,100], averaged since
// the previous call.
func CPUUsagePercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// Capture collects a Snapshot, tolerating partial failure: fields that
// cannot be read stay zero.
func Capture() Snapshot {
	snap := Snapshot{Goroutines: runtime.NumGoroutine()}
	if cpuPct, err := CPUUsagePercent(); err == nil {
		snap.CPUPercent = cpuPct
	}
	if memPct, err := MemoryUsagePercent(); err == nil {
		snap.MemoryPercent = memPct
	}
	return snap
}
