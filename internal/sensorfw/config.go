package sensorfw

import (
	"errors"
	"fmt"
	"time"

	"github.com/edgehub/sensorhub/internal/hub"
)

// openConfigChannel creates the path/config JSON output, pushes the plugin's
// current configuration once, and subscribes for hub-side updates. Called
// only for periodic sensors that declared a config callback.
func (fw *Framework) openConfigChannel(s *Sensor) error {
	configPath := s.desc.Path + "/config"

	err := fw.hub.CreateOutput(configPath, hub.KindJSON, "")
	if err != nil && !errors.Is(err, hub.ErrExists) {
		return fmt.Errorf("sensorfw: create %s: %w", configPath, err)
	}

	// Read the initial configuration and push it. A failing read leaves the
	// config output in place but unpopulated.
	s.mu.Lock()
	initial, cbErr := s.cb.Config(nil, s.pluginCtx)
	s.mu.Unlock()
	if cbErr != nil {
		fw.metrics.ConfigFailed()
		fw.logger.WithError(cbErr).WithField("path", s.desc.Path).Warn("reading sensor configuration failed")
	} else if len(initial) > 0 {
		if err := fw.hub.PushJSON(configPath, time.Now(), string(initial)); err != nil {
			fw.logger.WithError(err).WithField("path", configPath).Warn("pushing initial configuration failed")
		}
	}

	// Subscribe after the initial push so the sensor does not see its own
	// configuration echoed back.
	return fw.hub.SubscribeJSON(configPath, s.onConfigUpdate)
}

// onConfigUpdate relays a hub-side configuration update into the plugin. The
// payload is passed through verbatim and the callback's outcome is discarded;
// the plugin alone owns its configuration.
func (s *Sensor) onConfigUpdate(ts time.Time, payload string) {
	s.mu.Lock()
	_, err := s.cb.Config([]byte(payload), s.pluginCtx)
	s.mu.Unlock()

	if err != nil {
		s.fw.metrics.ConfigFailed()
		s.fw.logger.WithError(err).WithField("path", s.desc.Path).Warn("config callback failed, update dropped")
		return
	}
	s.fw.metrics.ConfigRelayed()
	s.fw.logger.WithField("path", s.desc.Path).Debug("configuration update relayed")
}
