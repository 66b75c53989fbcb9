// Package sensorfw is the registration and sampling-dispatch engine between
// sensor plugins and the hub. A plugin registers each physical sensor once
// with a JSON descriptor, a value kind and a matching sample callback; the
// framework models the sensor as hub resources, drives read-once or periodic
// sampling, and relays configuration both ways.
package sensorfw

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/edgehub/sensorhub/internal/metrics"
	"github.com/edgehub/sensorhub/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// MaxValueLen bounds string and JSON sample values. A sample exceeding it is
// a plugin contract violation and fails with ErrValueTooLarge rather than
// being truncated.
const MaxValueLen = 1024

// DefaultCapacity is the handler pool size used when the framework is built
// with capacity <= 0.
const DefaultCapacity = 1000

var (
	// ErrPoolExhausted is returned when the handler pool is full. The sensor
	// population is expected to be bounded and known ahead of time, so this
	// is fatal for the affected plugin, not a retryable condition.
	ErrPoolExhausted = errors.New("sensorfw: handler pool exhausted")
	// ErrValueTooLarge is returned when a sampled string or JSON value does
	// not fit the transfer buffer.
	ErrValueTooLarge = errors.New("sensorfw: sample value too large")
	// ErrCallbackMismatch is returned when the supplied callbacks do not
	// include a sample function matching the declared kind.
	ErrCallbackMismatch = errors.New("sensorfw: sample callback does not match declared kind")
)

// Sample callbacks, one per value kind. pluginCtx is the opaque value the
// plugin supplied at registration, passed back unmodified on every call.
type (
	BoolSampleFunc    func(pluginCtx any) (bool, error)
	NumericSampleFunc func(pluginCtx any) (float64, error)
	StringSampleFunc  func(pluginCtx any) (string, error)
	JSONSampleFunc    func(pluginCtx any) (string, error)
)

// ConfigFunc reads and writes the plugin's free-form JSON configuration.
// With incoming == nil it returns the plugin's current configuration; with a
// payload it applies the hub-side update (the return value is ignored then).
type ConfigFunc func(incoming []byte, pluginCtx any) ([]byte, error)

// Callbacks bundles the functions a plugin registers for one sensor. Exactly
// the sample function matching the declared kind must be set; Config is
// optional and only meaningful for periodic sensors.
type Callbacks struct {
	SampleBool    BoolSampleFunc
	SampleNumeric NumericSampleFunc
	SampleString  StringSampleFunc
	SampleJSON    JSONSampleFunc
	Config        ConfigFunc
}

// Framework owns the handler pool and mediates between plugins and the hub.
type Framework struct {
	hub     hub.Hub
	sched   *scheduler.Scheduler
	metrics *metrics.Set
	logger  *logrus.Logger

	mu       sync.Mutex
	capacity int
	count    int
	nextID   int
}

// New creates a framework bound to a hub and a periodic-sampling scheduler.
// met may be nil.
func New(h hub.Hub, sched *scheduler.Scheduler, capacity int, met *metrics.Set, logger *logrus.Logger) *Framework {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Framework{hub: h, sched: sched, metrics: met, logger: logger, capacity: capacity}
}

// Sensor is the handler record binding one registered sensor to its
// callbacks and hub resources. It is created by Register and lives until
// process teardown.
type Sensor struct {
	fw        *Framework
	id        int
	desc      Descriptor
	kind      hub.Kind
	cb        Callbacks
	pluginCtx any
	psensor   *scheduler.Sensor // nil for read-once sensors

	// Serializes callback invocations: at most one sample or config
	// callback is in flight per handler, because pluginCtx is handed to the
	// plugin without any synchronization of its own.
	mu sync.Mutex
}

// ID returns the process-wide unique registration id.
func (s *Sensor) ID() int { return s.id }

// Descriptor returns the parsed registration descriptor.
func (s *Sensor) Descriptor() Descriptor { return s.desc }

// Kind returns the sensor's value kind, fixed at registration.
func (s *Sensor) Kind() hub.Kind { return s.kind }

func sampleFuncFor(kind hub.Kind, cb Callbacks) bool {
	switch kind {
	case hub.KindBoolean:
		return cb.SampleBool != nil
	case hub.KindNumeric:
		return cb.SampleNumeric != nil
	case hub.KindString:
		return cb.SampleString != nil
	case hub.KindJSON:
		return cb.SampleJSON != nil
	default:
		return false
	}
}

// Register validates the descriptor, allocates a handler, creates the hub
// resources for the sensor, samples it once and, for a configurable periodic
// sensor, wires the configuration channel. The registration is complete
// before the sensor can receive a scheduler tick or a config update.
func (fw *Framework) Register(descriptor []byte, kind hub.Kind, cb Callbacks, pluginCtx any) (*Sensor, error) {
	desc, err := ParseDescriptor(descriptor)
	if err != nil {
		fw.metrics.RegistrationFailed()
		return nil, err
	}
	if !sampleFuncFor(kind, cb) {
		fw.metrics.RegistrationFailed()
		return nil, ErrCallbackMismatch
	}

	fw.mu.Lock()
	if fw.count >= fw.capacity {
		fw.mu.Unlock()
		fw.metrics.RegistrationFailed()
		return nil, ErrPoolExhausted
	}
	id := fw.nextID
	fw.nextID++ // ids are never reused, even if this registration aborts
	fw.count++
	fw.mu.Unlock()

	s := &Sensor{fw: fw, id: id, desc: desc, kind: kind, cb: cb, pluginCtx: pluginCtx}

	log := fw.logger.WithFields(logrus.Fields{
		"sensor": desc.Name,
		"path":   desc.Path,
		"kind":   kind.String(),
	})

	if err := fw.addHubEntry(s); err != nil {
		fw.mu.Lock()
		fw.count--
		fw.mu.Unlock()
		fw.metrics.RegistrationFailed()
		return nil, err
	}

	// Sample once now. A failing first sample is logged but does not undo
	// the registration; the next tick or explicit sample tries again.
	if err := s.Sample(); err != nil {
		log.WithError(err).Warn("initial sample failed")
	}

	if !desc.ReadOnce && cb.Config != nil {
		if err := fw.openConfigChannel(s); err != nil {
			fw.sched.Remove(s.psensor)
			fw.mu.Lock()
			fw.count--
			fw.mu.Unlock()
			fw.metrics.RegistrationFailed()
			return nil, err
		}
	}

	// Only now may the scheduler deliver ticks: the hub resources exist,
	// psensor is set, the initial sample ran and the config channel is wired.
	if s.psensor != nil {
		s.psensor.Start()
	}

	fw.metrics.Registered()
	log.WithField("id", id).Info("sensor registered")
	return s, nil
}

// addHubEntry creates the hub resources for the sensor: a plain input for
// read-once sensors, a scheduler-backed periodic sensor otherwise. A resource
// that already exists with identical kind and unit is reused.
func (fw *Framework) addHubEntry(s *Sensor) error {
	if s.desc.ReadOnce {
		err := fw.hub.CreateInput(s.desc.Path, s.kind, s.desc.Unit)
		if err != nil && !errors.Is(err, hub.ErrExists) {
			return fmt.Errorf("sensorfw: create input %s: %w", s.desc.Path, err)
		}
		return nil
	}

	ps, err := fw.sched.Create(s.desc.Path, s.kind, s.desc.Unit, func(ctx any) {
		sensor := ctx.(*Sensor)
		if err := sensor.Sample(); err != nil {
			fw.logger.WithError(err).WithField("path", sensor.desc.Path).Warn("scheduled sample failed")
		}
	}, s)
	if err != nil {
		return err
	}
	s.psensor = ps
	return nil
}

// Sample reads the sensor through its typed callback and pushes the value to
// the hub. It is safe to call from the scheduler, from the config channel's
// owner and from plugins; invocations for one sensor never overlap.
func (s *Sensor) Sample() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushData()
}

// pushData dispatches on the sensor's kind, invokes the matching callback
// and routes the value to the hub. Caller holds s.mu.
func (s *Sensor) pushData() error {
	now := time.Now()

	fail := func(err error) error {
		s.fw.metrics.SampleFailed()
		return fmt.Errorf("sensorfw: sample %s: %w", s.desc.Path, err)
	}

	switch s.kind {
	case hub.KindBoolean:
		v, err := s.cb.SampleBool(s.pluginCtx)
		if err != nil {
			return fail(err)
		}
		if s.desc.ReadOnce {
			err = s.fw.hub.PushBoolean(s.desc.Path, now, v)
		} else {
			err = s.psensor.PushBoolean(now, v)
		}
		if err != nil {
			return fail(err)
		}

	case hub.KindNumeric:
		v, err := s.cb.SampleNumeric(s.pluginCtx)
		if err != nil {
			return fail(err)
		}
		if s.desc.ReadOnce {
			err = s.fw.hub.PushNumeric(s.desc.Path, now, v)
		} else {
			err = s.psensor.PushNumeric(now, v)
		}
		if err != nil {
			return fail(err)
		}

	case hub.KindString:
		v, err := s.cb.SampleString(s.pluginCtx)
		if err != nil {
			return fail(err)
		}
		if len(v) > MaxValueLen {
			return fail(ErrValueTooLarge)
		}
		if s.desc.ReadOnce {
			err = s.fw.hub.PushString(s.desc.Path, now, v)
		} else {
			err = s.psensor.PushString(now, v)
		}
		if err != nil {
			return fail(err)
		}

	case hub.KindJSON:
		v, err := s.cb.SampleJSON(s.pluginCtx)
		if err != nil {
			return fail(err)
		}
		if len(v) > MaxValueLen {
			return fail(ErrValueTooLarge)
		}
		if s.desc.ReadOnce {
			err = s.fw.hub.PushJSON(s.desc.Path, now, v)
		} else {
			err = s.psensor.PushJSON(now, v)
		}
		if err != nil {
			return fail(err)
		}

	default:
		return fail(fmt.Errorf("unsupported kind %s", s.kind))
	}

	s.fw.metrics.Sampled(s.kind.String())
	return nil
}
