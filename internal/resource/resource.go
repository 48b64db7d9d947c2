// Package resource reports CPU usage and the container memory limit
// for ringcast-server's /health endpoint, runs the admission Guard,
// and provides MaxConnectionsFor to derive a connection cap from the
// memory limit.
package resource

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Snapshot is a point-in-time resource reading.
type Snapshot struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryLimit int64   `json:"memory_limit_bytes"`
}

// Sample takes a short CPU reading. interval should be small (100ms is
// long enough to be accurate, short enough not to stall a periodic
// caller) since cpu.Percent(0, ...) has no baseline on its first call.
func Sample(interval time.Duration) (Snapshot, error) {
	percents, err := cpu.Percent(interval, false)
	if err != nil {
		return Snapshot{}, err
	}
	var pct float64
	if len(percents) > 0 {
		pct = percents[0]
	}
	return Snapshot{CPUPercent: pct, MemoryLimit: memoryLimit()}, nil
}

// DetectMemoryLimit returns the container memory limit in bytes, for
// callers that need it outside of a full Snapshot (e.g. to configure
// a Guard at startup).
func DetectMemoryLimit() int64 {
	return memoryLimit()
}

// memoryLimit returns the container memory limit in bytes, checking
// cgroup v2 then v1, or 0 if neither is present (unconstrained host).
func memoryLimit() int64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(data))
		if s != "max" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				return v
			}
		}
		return 0
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

// MaxConnectionsFor derives a conservative connection cap from the
// detected memory limit, reserving headroom for runtime overhead.
// Falls back to fallback when no limit is detected.
func MaxConnectionsFor(memLimitBytes int64, bytesPerConn int64, fallback int) int {
	if memLimitBytes == 0 || bytesPerConn <= 0 {
		return fallback
	}
	const runtimeOverhead = 128 * 1024 * 1024
	available := memLimitBytes - runtimeOverhead
	if available < 0 {
		available = memLimitBytes / 2
	}
	n := int(available / bytesPerConn)
	if n < 1 {
		n = 1
	}
	return n
}
