// Package dm registers device-management sensors with the framework: static
// identity values (hostname, kernel, machine id) as read-once resources and
// live host health values (uptime, load, memory, temperature) as periodic
// sensors.
package dm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/edgehub/sensorhub/internal/sensorfw"
	"github.com/sirupsen/logrus"
)

// handlerDef is one row of the registration table. Exactly one sample
// function matching kind is set.
type handlerDef struct {
	name     string
	path     string
	readOnce bool
	unit     string
	kind     hub.Kind

	sampleBool    func(p *Plugin) (bool, error)
	sampleNumeric func(p *Plugin) (float64, error)
	sampleString  func(p *Plugin) (string, error)
	sampleJSON    func(p *Plugin) (string, error)
}

var handlers = []handlerDef{
	{name: "hostname", path: "device/hostname", readOnce: true, kind: hub.KindString, sampleString: (*Plugin).hostname},
	{name: "kernel", path: "device/kernel", readOnce: true, kind: hub.KindString, sampleString: (*Plugin).kernelRelease},
	{name: "machineId", path: "device/machineId", readOnce: true, kind: hub.KindString, sampleString: (*Plugin).machineID},
	{name: "bootTime", path: "device/bootTime", readOnce: true, unit: "s", kind: hub.KindNumeric, sampleNumeric: (*Plugin).bootTime},
	{name: "uptime", path: "device/uptime", unit: "s", kind: hub.KindNumeric, sampleNumeric: (*Plugin).uptime},
	{name: "load", path: "device/load", kind: hub.KindNumeric, sampleNumeric: (*Plugin).loadAverage},
	{name: "memAvailable", path: "device/memAvailable", unit: "kB", kind: hub.KindNumeric, sampleNumeric: (*Plugin).memAvailable},
	{name: "temperature", path: "device/temperature", unit: "deg C", kind: hub.KindNumeric, sampleNumeric: (*Plugin).cpuTemperature},
	{name: "time", path: "device/time", kind: hub.KindString, sampleString: (*Plugin).currentTime},
	{name: "isOnline", path: "net/isOnline", kind: hub.KindBoolean, sampleBool: (*Plugin).hasDefaultRoute},
	{name: "interfaces", path: "net/interfaces", kind: hub.KindJSON, sampleJSON: (*Plugin).interfacesJSON},
}

// Plugin reads host state from proc and sysfs. The roots are parameters so
// tests can point it at fixture trees.
type Plugin struct {
	procRoot string
	sysRoot  string
	etcRoot  string
	logger   *logrus.Logger
}

// New creates a plugin reading from the given filesystem roots. Empty roots
// default to the live system paths.
func New(procRoot, sysRoot, etcRoot string, logger *logrus.Logger) *Plugin {
	if procRoot == "" {
		procRoot = "/proc"
	}
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	if etcRoot == "" {
		etcRoot = "/etc"
	}
	return &Plugin{procRoot: procRoot, sysRoot: sysRoot, etcRoot: etcRoot, logger: logger}
}

// Register registers every device-management sensor. A sensor that cannot be
// read at registration time is still registered; only registration errors
// from the framework abort, and only for that sensor.
func (p *Plugin) Register(fw *sensorfw.Framework) error {
	var failed int
	for _, def := range handlers {
		desc, err := json.Marshal(sensorfw.Descriptor{
			Name:     def.name,
			Path:     def.path,
			ReadOnce: def.readOnce,
			Unit:     def.unit,
		})
		if err != nil {
			return fmt.Errorf("dm: descriptor for %s: %w", def.path, err)
		}

		cb := sensorfw.Callbacks{}
		switch def.kind {
		case hub.KindBoolean:
			fn := def.sampleBool
			cb.SampleBool = func(any) (bool, error) { return fn(p) }
		case hub.KindNumeric:
			fn := def.sampleNumeric
			cb.SampleNumeric = func(any) (float64, error) { return fn(p) }
		case hub.KindString:
			fn := def.sampleString
			cb.SampleString = func(any) (string, error) { return fn(p) }
		case hub.KindJSON:
			fn := def.sampleJSON
			cb.SampleJSON = func(any) (string, error) { return fn(p) }
		}

		if _, err := fw.Register(desc, def.kind, cb, nil); err != nil {
			p.logger.WithError(err).WithField("path", def.path).Error("dm: registering sensor failed")
			failed++
		}
	}
	if failed == len(handlers) {
		return fmt.Errorf("dm: all %d registrations failed", failed)
	}
	return nil
}

func (p *Plugin) currentTime() (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}
