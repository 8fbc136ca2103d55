// Package monitor runs the long-lived watch loop: it starts the
// synchronizer, logs published state transitions and optionally exposes the
// Prometheus metrics endpoint.
package monitor

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vantagesec/sentinel-go/internal/conf"
	"github.com/vantagesec/sentinel-go/internal/logging"
	"github.com/vantagesec/sentinel-go/internal/observability"
	"github.com/vantagesec/sentinel-go/internal/state"
	syncpkg "github.com/vantagesec/sentinel-go/internal/sync"
)

// Run starts the synchronization loop and blocks until SIGINT or SIGTERM.
func Run(settings *conf.Settings) error {
	logger := logging.ForService("monitor")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	synchronizer, err := syncpkg.New(settings.Sync, logging.ForService("sync"), metrics)
	if err != nil {
		return err
	}
	defer synchronizer.Teardown()

	unsubscribe := synchronizer.Subscribe(func(snapshot *state.NormalizedState) {
		logger.Info("state update",
			"version", snapshot.Version,
			"power_mode", snapshot.System.PowerMode,
			"camera", snapshot.System.CameraStatus,
			"processing", snapshot.System.ProcessingStatus,
			"tracks", len(snapshot.Tracks),
			"alerts", len(snapshot.Alerts))
	})
	defer unsubscribe()

	var telemetrySrv *http.Server
	if settings.Telemetry.Enabled {
		telemetrySrv = startTelemetry(settings.Telemetry.Listen, metrics)
		defer shutdownTelemetry(telemetrySrv)
	}

	if err := synchronizer.Start(); err != nil {
		return err
	}
	logger.Info("synchronization started",
		"push_url", settings.Sync.PushURL,
		"poll_url", settings.Sync.PollURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Printf("Received %s, shutting down", sig)
	return nil
}

func startTelemetry(listen string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("telemetry endpoint failed", "listen", listen, "error", err)
		}
	}()

	return srv
}

func shutdownTelemetry(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
