// Command ringcast-server runs the frame exchange: it subscribes to an
// upstream NATS feed, publishes every message into a ring pool, and
// serves the pool out to any number of WebSocket clients, each with
// its own lossy, zero-copy view of the latest frame.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred/ringcast/internal/config"
	"github.com/adred/ringcast/internal/feed"
	"github.com/adred/ringcast/internal/logging"
	"github.com/adred/ringcast/internal/metrics"
	"github.com/adred/ringcast/internal/ratelimit"
	"github.com/adred/ringcast/internal/resource"
	"github.com/adred/ringcast/internal/transport"
	"github.com/adred/ringcast/ringpool"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ringcast-server: config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ringcast-server: logging:", err)
		os.Exit(1)
	}

	log.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("ringcast-server starting")

	reg := metrics.NewRegistry()

	sender, rootReceiver := ringpool.NewPool(cfg.BufSize)

	heartbeatPerSec := float64(cfg.MaxConnections) / cfg.HeartbeatPeriod.Seconds()
	limiters := ratelimit.New(cfg.ConnectRatePS, heartbeatPerSec)

	f, err := feed.Connect(cfg.NATSUrl, sender, cfg.BufSize, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to upstream feed")
	}
	if err := f.Start(cfg.NATSSubject); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to upstream subject")
	}

	memLimit := resource.DetectMemoryLimit()
	guard := resource.NewGuard(resource.GuardConfig{
		MaxConnections:     cfg.MaxConnections,
		CPURejectThreshold: cfg.CPURejectThreshold,
		MemoryLimitBytes:   memLimit,
		MaxGoroutines:      cfg.MaxGoroutines,
	}, log)

	shutdownGuard := make(chan struct{})
	guard.Start(shutdownGuard, cfg.ResourceInterval)
	defer close(shutdownGuard)

	ts := transport.New(transport.Config{
		ListenAddr:      cfg.ListenAddr,
		MaxConnections:  cfg.MaxConnections,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		HeartbeatWait:   cfg.HeartbeatWait,
	}, rootReceiver, limiters, reg, guard, log)

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", reg.Handler())
	adminMux.HandleFunc("/health", healthHandler(sender))
	adminServer := &http.Server{Addr: cfg.MetricsAddr, Handler: adminMux}

	go reportPoolGauges(reg, sender)

	go func() {
		if err := ts.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("transport server stopped unexpectedly")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("admin: listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin server stopped unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Dependency order: the upstream feed stops producing first, then
	// the transport layer stops accepting and closes every client (and
	// with it, every cloned receiver), then the admin server, then the
	// root receiver and finally the sender.
	f.Stop()

	if err := ts.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("transport shutdown error")
	}
	if err := adminServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("admin server shutdown error")
	}

	rootReceiver.Close()
	sender.Close()

	log.Info().Msg("shutdown complete")
}

func reportPoolGauges(reg *metrics.Registry, sender *ringpool.Sender) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := sender.Stats()
		reg.ActiveReceivers.Set(float64(stats.NumReceivers))
		reg.ConflationsTotal.Set(float64(stats.ConflationsTotal))
	}
}

func healthHandler(sender *ringpool.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := resource.Sample(100 * time.Millisecond)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats := sender.Stats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			CPUPercent       float64 `json:"cpu_percent"`
			MemoryLimit      int64   `json:"memory_limit_bytes"`
			NumSegments      int     `json:"num_segments"`
			NumReceivers     int     `json:"num_receivers"`
			ConflationsTotal uint64  `json:"conflations_total"`
		}{
			CPUPercent:       snap.CPUPercent,
			MemoryLimit:      snap.MemoryLimit,
			NumSegments:      stats.NumSegments,
			NumReceivers:     stats.NumReceivers,
			ConflationsTotal: stats.ConflationsTotal,
		})
	}
}
