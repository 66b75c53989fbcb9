// Package app runs the daemon's long-lived components: the MQTT bridge pump
// and the metrics endpoint. Sensor registration has already happened by the
// time Run is called; everything here is steady-state plumbing.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edgehub/sensorhub/internal/config"
	"github.com/edgehub/sensorhub/internal/mqttbridge"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Run blocks until ctx is cancelled. bridge may be nil when no MQTT broker is
// configured.
func Run(parentCtx context.Context, cfg *config.Config, bridge *mqttbridge.Bridge, logger *logrus.Logger) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)

	// Keep Run blocked until shutdown even with no bridge or metrics.
	grp.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	// Bridge pump ---------------------------------------------------------
	if bridge != nil {
		grp.Go(func() error {
			return bridge.Run(ctx)
		})
	}

	// Metrics endpoint ----------------------------------------------------
	if cfg.HasMetrics() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		grp.Go(func() error {
			logger.WithField("addr", cfg.MetricsAddr).Info("metrics endpoint listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		grp.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("app: background group exited")
	}
}
