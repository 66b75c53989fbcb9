package config

import (
	"fmt"
	"strings"
)

// Config holds all configuration options for the sensorhub daemon.
type Config struct {
	// MQTT bridge
	MQTTUrl     string `json:"mqtt_url"`     // broker URL (ws, wss, mqtt or mqtts scheme); empty disables the bridge
	TopicPrefix string `json:"topic_prefix"` // topic namespace for hub resources
	DeviceID    string `json:"device_id"`    // MQTT client identity; auto-generated when empty

	// Framework
	Capacity int `json:"capacity"` // handler pool size

	// Plugins
	IIORoot        string `json:"iio_root"`        // IIO sysfs tree; empty uses the system default
	DefinitionsDir string `json:"definitions_dir"` // directory of YAML sensor definitions
	DisableDM      bool   `json:"disable_dm"`      // skip the device-management plugin

	// Observability
	MetricsAddr string `json:"metrics_addr"` // listen address for /metrics; empty disables it
	Verbose     bool   `json:"verbose"`      // enable debug logging
}

// GetDefaultConfig returns a configuration with sensible defaults.
func GetDefaultConfig() *Config {
	return &Config{
		TopicPrefix: "sensorhub",
		Capacity:    1000,
		MetricsAddr: "",
	}
}

// Validate checks the configuration and normalizes invalid values.
func (c *Config) Validate() error {
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.TopicPrefix == "" {
		return fmt.Errorf("topic prefix is required")
	}
	if strings.HasSuffix(c.TopicPrefix, "/") {
		c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	}

	if c.Capacity <= 0 {
		c.Capacity = 1000
	}

	return nil
}

// HasMQTT returns true if the MQTT bridge is configured.
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// HasMetrics returns true if the metrics endpoint is configured.
func (c *Config) HasMetrics() bool {
	return c.MetricsAddr != ""
}
