package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/edgehub/sensorhub/internal/app"
	"github.com/edgehub/sensorhub/internal/config"
	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/edgehub/sensorhub/internal/metrics"
	"github.com/edgehub/sensorhub/internal/mqttbridge"
	"github.com/edgehub/sensorhub/internal/plugins/dm"
	"github.com/edgehub/sensorhub/internal/plugins/filedef"
	"github.com/edgehub/sensorhub/internal/plugins/iio"
	"github.com/edgehub/sensorhub/internal/scheduler"
	"github.com/edgehub/sensorhub/internal/sensorfw"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	cfg := parseFlags()
	logger := setupLogger(cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":  version,
		"capacity": cfg.Capacity,
		"mqtt":     cfg.HasMQTT(),
		"metrics":  cfg.MetricsAddr,
	}).Info("Starting sensorhubd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Core components ------------------------------------------------------
	memHub := hub.NewMemory(logger)
	sched := scheduler.New(memHub, clock.New(), logger)
	defer sched.Close()

	met := metrics.New(prometheus.DefaultRegisterer)
	fw := sensorfw.New(memHub, sched, cfg.Capacity, met, logger)

	// Plugins --------------------------------------------------------------
	if !cfg.DisableDM {
		if err := dm.New("", "", "", logger).Register(fw); err != nil {
			logger.WithError(err).Error("Device-management plugin failed")
		}
	}
	if err := iio.Register(fw, cfg.IIORoot, logger); err != nil {
		logger.WithError(err).Error("IIO plugin failed")
	}
	if cfg.DefinitionsDir != "" {
		if err := filedef.Register(fw, cfg.DefinitionsDir, logger); err != nil {
			logger.WithError(err).Error("File-defined sensors failed")
		}
	}

	// MQTT bridge ----------------------------------------------------------
	var bridge *mqttbridge.Bridge
	if cfg.HasMQTT() {
		client, err := mqttbridge.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer client.Disconnect(250)
		bridge = mqttbridge.New(client, memHub, cfg.TopicPrefix, logger)
		logger.Info("MQTT bridge ready")
	} else {
		logger.Warn("No MQTT broker configured; hub values stay local")
	}

	app.Run(ctx, cfg, bridge, logger)
	logger.Info("sensorhubd stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() *config.Config {
	cfg := config.GetDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("SENSORHUB_MQTT_URL", cfg.MQTTUrl), "MQTT broker URL")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", getEnv("SENSORHUB_TOPIC_PREFIX", cfg.TopicPrefix), "MQTT topic prefix")
	flag.StringVar(&cfg.DeviceID, "device-id", getEnv("SENSORHUB_DEVICE_ID", cfg.DeviceID), "Device identifier")
	flag.StringVar(&cfg.IIORoot, "iio-root", getEnv("SENSORHUB_IIO_ROOT", cfg.IIORoot), "IIO sysfs root")
	flag.StringVar(&cfg.DefinitionsDir, "definitions-dir", getEnv("SENSORHUB_DEFINITIONS_DIR", cfg.DefinitionsDir), "Directory of YAML sensor definitions")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("SENSORHUB_METRICS_ADDR", cfg.MetricsAddr), "Listen address for /metrics (empty = disabled)")
	flag.IntVar(&cfg.Capacity, "capacity", getEnvInt("SENSORHUB_CAPACITY", cfg.Capacity), "Handler pool capacity")
	flag.BoolVar(&cfg.DisableDM, "disable-dm", getEnv("SENSORHUB_DISABLE_DM", "false") == "true", "Disable the device-management plugin")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("SENSORHUB_VERBOSE", "false") == "true", "Verbose logging")

	flag.Parse()

	if *showVersion {
		fmt.Printf("sensorhubd %s\n", version)
		os.Exit(0)
	}

	return cfg
}

func setupLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
