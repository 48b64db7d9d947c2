package resource

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// GuardConfig bounds the admission checks a Guard enforces: static,
// configured limits rather than auto-calculated ones.
type GuardConfig struct {
	MaxConnections     int
	CPURejectThreshold float64 // reject new connections above this percent
	MemoryLimitBytes   int64   // 0 disables the memory check
	MaxGoroutines      int     // 0 disables the goroutine check
}

// Guard enforces admission limits for the transport server, sampling
// CPU and memory on an interval rather than on every connection
// attempt (a live syscall per accept would itself become a bottleneck
// under connection storms).
type Guard struct {
	cfg GuardConfig
	log zerolog.Logger

	currentCPU    atomic.Value // float64
	currentMemory atomic.Int64
}

// NewGuard builds a Guard with its CPU reading initialized to zero
// until the first Start tick.
func NewGuard(cfg GuardConfig, log zerolog.Logger) *Guard {
	g := &Guard{cfg: cfg, log: log}
	g.currentCPU.Store(float64(0))
	return g
}

// Start begins periodic resource sampling until done is closed.
func (g *Guard) Start(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sample()
			case <-done:
				return
			}
		}
	}()
}

func (g *Guard) sample() {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		g.log.Warn().Err(err).Msg("guard: cpu sample failed")
	} else if len(percents) > 0 {
		g.currentCPU.Store(percents[0])
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.currentMemory.Store(int64(mem.Alloc))
}

// ShouldAccept reports whether a new connection may be admitted given
// currentConns live connections, checking the hard connection cap,
// the CPU reject threshold, the memory limit, and the goroutine
// count, in that order.
func (g *Guard) ShouldAccept(currentConns int64) (accept bool, reason string) {
	if g.cfg.MaxConnections > 0 && currentConns >= int64(g.cfg.MaxConnections) {
		return false, "at max connections"
	}

	cpuPct := g.currentCPU.Load().(float64)
	if g.cfg.CPURejectThreshold > 0 && cpuPct > g.cfg.CPURejectThreshold {
		return false, "cpu overload"
	}

	if g.cfg.MemoryLimitBytes > 0 && g.currentMemory.Load() > g.cfg.MemoryLimitBytes {
		return false, "memory limit exceeded"
	}

	if g.cfg.MaxGoroutines > 0 && runtime.NumGoroutine() > g.cfg.MaxGoroutines {
		return false, "goroutine limit exceeded"
	}

	return true, ""
}
