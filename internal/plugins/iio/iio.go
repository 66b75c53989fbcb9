// Package iio registers Industrial I/O sensors with the framework. It walks
// the IIO sysfs tree, registers one numeric periodic sensor per input
// channel, and exposes the channel's tuning attributes (sampling frequency,
// scale) through the sensor's configuration channel.
//
// See the kernel sysfs-bus-iio ABI documentation for attribute semantics.
package iio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/edgehub/sensorhub/internal/sensorfw"
	"github.com/sirupsen/logrus"
)

// DefaultRoot is the live IIO sysfs tree.
const DefaultRoot = "/sys/bus/iio/devices"

// standardUnits maps IIO measurement names to their sysfs ABI units. The
// channel id is matched by substring, so "temp" covers "temp_ambient" etc.
var standardUnits = []struct {
	measurement string
	unit        string
}{
	{"temp", "milli degree celcius"},
	{"pressure", "kilo pascals"},
	{"anglvel", "radians per second"},
	{"voltage", "millivolts"},
	{"current", "milliamps"},
	{"power", "milliwatts"},
	{"capacitance", "nanofarads"},
	{"positionrelative", "milli percent"},
	{"magn", "Gauss"},
	{"accel", "m/s^2"},
	{"incli", "degrees"},
	{"humidity", "milli percent"},
	{"proximity", "meters"},
}

func unitFor(channel string) string {
	for _, su := range standardUnits {
		if strings.Contains(channel, su.measurement) {
			return su.unit
		}
	}
	return ""
}

// channel is the plugin context for one registered IIO channel. It is handed
// to the framework opaquely and comes back on every callback.
type channel struct {
	dir    string // device sysfs directory
	device string // device name
	id     string // channel id, e.g. "temp" or "voltage0"
	prefix string // attribute prefix, e.g. "in_temp"
}

// discover scans the IIO devices under root and returns every input channel
// that exposes a readable value ("input" or "raw" attribute).
func discover(root string) ([]*channel, error) {
	devices, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var channels []*channel
	for _, dev := range devices {
		if !strings.HasPrefix(dev.Name(), "iio:device") {
			continue
		}
		dir := filepath.Join(root, dev.Name())
		deviceName := dev.Name()
		if data, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
			deviceName = strings.TrimSpace(string(data))
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		seen := make(map[string]bool)
		for _, e := range entries {
			name := e.Name()
			var id string
			switch {
			case strings.HasPrefix(name, "in_") && strings.HasSuffix(name, "_input"):
				id = strings.TrimSuffix(strings.TrimPrefix(name, "in_"), "_input")
			case strings.HasPrefix(name, "in_") && strings.HasSuffix(name, "_raw"):
				id = strings.TrimSuffix(strings.TrimPrefix(name, "in_"), "_raw")
			default:
				continue
			}
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			channels = append(channels, &channel{
				dir:    dir,
				device: deviceName,
				id:     id,
				prefix: "in_" + id,
			})
		}
	}
	return channels, nil
}

// Register discovers the channels under root and registers each one as a
// numeric periodic sensor at <device>/<channel>. A missing IIO tree is not an
// error; the host simply has no IIO sensors.
func Register(fw *sensorfw.Framework, root string, logger *logrus.Logger) error {
	if root == "" {
		root = DefaultRoot
	}
	channels, err := discover(root)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("root", root).Debug("iio: no sysfs tree, skipping")
			return nil
		}
		return fmt.Errorf("iio: discover: %w", err)
	}

	for _, ch := range channels {
		name := ch.id
		if len(name) > 20 {
			name = name[:20]
		}
		desc, err := json.Marshal(sensorfw.Descriptor{
			Name: name,
			Path: ch.device + "/" + ch.id,
			Unit: unitFor(ch.id),
		})
		if err != nil {
			return fmt.Errorf("iio: descriptor for %s/%s: %w", ch.device, ch.id, err)
		}

		cb := sensorfw.Callbacks{
			SampleNumeric: sampleChannel,
			Config:        configChannel,
		}
		if _, err := fw.Register(desc, hub.KindNumeric, cb, ch); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"device":  ch.device,
				"channel": ch.id,
			}).Error("iio: registering channel failed")
			continue
		}
		logger.WithFields(logrus.Fields{
			"device":  ch.device,
			"channel": ch.id,
		}).Info("iio: channel registered")
	}
	return nil
}
