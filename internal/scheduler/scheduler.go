// Package scheduler drives periodic sampling for hub sensors. For every
// periodic sensor at path P it owns the sibling resources P/enable, P/period
// and P/trigger and runs one sampling loop honoring them. The sampling work
// itself is a callback supplied by the sensor framework.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/sirupsen/logrus"
)

// DefaultPeriod is the sampling interval a sensor starts with until the
// hub-side period output is changed.
const DefaultPeriod = 60 * time.Second

// TickFunc is invoked on every scheduled or triggered sample. ctx is the
// opaque value supplied at Create; the scheduler never inspects it.
type TickFunc func(ctx any)

// ControlHub is the hub surface the scheduler needs: resource creation,
// pushes, and generic update subscriptions on the sibling outputs.
type ControlHub interface {
	hub.Hub
	Subscribe(path string, fn func(hub.Update)) error
}

// Scheduler creates and runs periodic sensors against one hub.
type Scheduler struct {
	hub    ControlHub
	clock  clock.Clock
	logger *logrus.Logger

	mu      sync.Mutex
	sensors []*Sensor
	closed  bool
}

// New creates a scheduler bound to one hub and clock source. Close stops
// every started sensor loop.
func New(h ControlHub, clk clock.Clock, logger *logrus.Logger) *Scheduler {
	return &Scheduler{hub: h, clock: clk, logger: logger}
}

// Sensor is one periodic sensor's scheduling state. Pushes through it land on
// the sensor's value resource.
type Sensor struct {
	sched *Scheduler
	path  string
	tick  TickFunc
	ctx   any

	enablec  chan bool
	periodc  chan time.Duration
	triggerc chan struct{}
	stopc    chan struct{}
	done     chan struct{}

	started bool // guarded by sched.mu
}

// Create sets up the hub resources for a periodic sensor at path: path/value
// of the declared kind, path/enable (true), path/period (DefaultPeriod
// seconds) and path/trigger. Existing identical resources are reused. The
// sensor is returned stopped; its sampling loop runs only after Start, so the
// caller can finish its own wiring before the first tick can arrive.
func (s *Scheduler) Create(path string, kind hub.Kind, unit string, tick TickFunc, ctx any) (*Sensor, error) {
	type entry struct {
		path  string
		kind  hub.Kind
		unit  string
		input bool
	}
	entries := []entry{
		{path + "/value", kind, unit, true},
		{path + "/enable", hub.KindBoolean, "", false},
		{path + "/period", hub.KindNumeric, "s", false},
		{path + "/trigger", hub.KindTrigger, "", false},
	}
	for _, e := range entries {
		var err error
		if e.input {
			err = s.hub.CreateInput(e.path, e.kind, e.unit)
		} else {
			err = s.hub.CreateOutput(e.path, e.kind, e.unit)
		}
		if err != nil && !errors.Is(err, hub.ErrExists) {
			return nil, fmt.Errorf("scheduler: create %s: %w", e.path, err)
		}
	}

	sensor := &Sensor{
		sched:    s,
		path:     path,
		tick:     tick,
		ctx:      ctx,
		enablec:  make(chan bool, 1),
		periodc:  make(chan time.Duration, 1),
		triggerc: make(chan struct{}, 1),
		stopc:    make(chan struct{}),
		done:     make(chan struct{}),
	}

	now := s.clock.Now()
	if err := s.hub.PushBoolean(path+"/enable", now, true); err != nil {
		return nil, fmt.Errorf("scheduler: init %s/enable: %w", path, err)
	}
	if err := s.hub.PushNumeric(path+"/period", now, DefaultPeriod.Seconds()); err != nil {
		return nil, fmt.Errorf("scheduler: init %s/period: %w", path, err)
	}

	// Relay hub-side control updates into the loop. Channel sends are
	// non-blocking; a control update superseded before the loop saw it is
	// simply replaced by the newer one.
	if err := s.hub.Subscribe(path+"/enable", func(u hub.Update) {
		replace(sensor.enablec, u.Value.Bool)
	}); err != nil {
		return nil, err
	}
	if err := s.hub.Subscribe(path+"/period", func(u hub.Update) {
		if u.Value.Num > 0 {
			replace(sensor.periodc, time.Duration(u.Value.Num*float64(time.Second)))
		}
	}); err != nil {
		return nil, err
	}
	if err := s.hub.Subscribe(path+"/trigger", func(u hub.Update) {
		select {
		case sensor.triggerc <- struct{}{}:
		default:
		}
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: closed")
	}
	s.sensors = append(s.sensors, sensor)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"path":   path,
		"kind":   kind.String(),
		"period": DefaultPeriod,
	}).Debug("scheduler: periodic sensor created")
	return sensor, nil
}

// replace drains a stale pending value before sending the new one.
func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Start begins the sensor's sampling loop. A control update or trigger that
// arrived before Start is buffered and handled once the loop runs. Starting a
// started sensor, or one on a closed scheduler, is a no-op.
func (ps *Sensor) Start() {
	s := ps.sched
	s.mu.Lock()
	if s.closed || ps.started {
		s.mu.Unlock()
		return
	}
	ps.started = true
	s.mu.Unlock()
	go ps.run(s.clock)
}

// Remove stops the sensor's loop, if started, and detaches it from the
// scheduler. Used when a caller abandons a sensor it created but could not
// finish wiring.
func (s *Scheduler) Remove(ps *Sensor) {
	if ps == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	started := ps.started
	for i, sensor := range s.sensors {
		if sensor == ps {
			s.sensors = append(s.sensors[:i], s.sensors[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if started {
		close(ps.stopc)
		<-ps.done
	}
}

// Close stops all started sensor loops and waits for them to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var running []*Sensor
	for _, sensor := range s.sensors {
		if sensor.started {
			running = append(running, sensor)
		}
	}
	s.mu.Unlock()

	for _, sensor := range running {
		close(sensor.stopc)
	}
	for _, sensor := range running {
		<-sensor.done
	}
}

func (ps *Sensor) run(clk clock.Clock) {
	defer close(ps.done)

	enabled := true
	ticker := clk.Ticker(DefaultPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ps.stopc:
			return
		case <-ticker.C:
			if enabled {
				ps.tick(ps.ctx)
			}
		case <-ps.triggerc:
			// One-shot fire, independent of enable state.
			ps.tick(ps.ctx)
		case en := <-ps.enablec:
			enabled = en
		case d := <-ps.periodc:
			ticker.Reset(d)
		}
	}
}

// Path returns the sensor's base resource path.
func (ps *Sensor) Path() string { return ps.path }

// PushBoolean pushes a sampled value to the sensor's value resource.
func (ps *Sensor) PushBoolean(ts time.Time, v bool) error {
	return ps.sched.hub.PushBoolean(ps.path+"/value", ts, v)
}

// PushNumeric pushes a sampled value to the sensor's value resource.
func (ps *Sensor) PushNumeric(ts time.Time, v float64) error {
	return ps.sched.hub.PushNumeric(ps.path+"/value", ts, v)
}

// PushString pushes a sampled value to the sensor's value resource.
func (ps *Sensor) PushString(ts time.Time, v string) error {
	return ps.sched.hub.PushString(ps.path+"/value", ts, v)
}

// PushJSON pushes a sampled value to the sensor's value resource.
func (ps *Sensor) PushJSON(ts time.Time, v string) error {
	return ps.sched.hub.PushJSON(ps.path+"/value", ts, v)
}
