package hub

import (
	"sync"
	"time"

	"github.com/edgehub/sensorhub/internal/bus"
	"github.com/sirupsen/logrus"
)

type resource struct {
	path  string
	kind  Kind
	unit  string
	input bool

	last     Value
	hasValue bool

	// Subscribers, invoked synchronously on every push to this path.
	subs []func(Update)
}

// Memory is the in-memory reference hub: a resource tree keyed by path,
// typed pushes, per-path subscriptions and a global watch stream for bridges.
type Memory struct {
	mu        sync.RWMutex
	resources map[string]*resource
	watch     *bus.Bus[Update]
	logger    *logrus.Logger
}

// NewMemory creates an empty hub.
func NewMemory(logger *logrus.Logger) *Memory {
	return &Memory{
		resources: make(map[string]*resource),
		watch:     bus.New[Update](),
		logger:    logger,
	}
}

func (m *Memory) create(path string, kind Kind, unit string, input bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.resources[path]; ok {
		if existing.kind != kind || existing.unit != unit || existing.input != input {
			return ErrMismatch
		}
		return ErrExists
	}
	m.resources[path] = &resource{path: path, kind: kind, unit: unit, input: input}
	m.logger.WithFields(logrus.Fields{
		"path": path,
		"kind": kind.String(),
		"unit": unit,
	}).Debug("hub: resource created")
	return nil
}

// CreateInput creates a data-producing resource.
func (m *Memory) CreateInput(path string, kind Kind, unit string) error {
	return m.create(path, kind, unit, true)
}

// CreateOutput creates a settable resource.
func (m *Memory) CreateOutput(path string, kind Kind, unit string) error {
	return m.create(path, kind, unit, false)
}

func (m *Memory) push(path string, v Value) error {
	m.mu.Lock()
	res, ok := m.resources[path]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if res.kind != v.Kind {
		m.mu.Unlock()
		return ErrKind
	}
	res.last = v
	res.hasValue = true
	subs := make([]func(Update), len(res.subs))
	copy(subs, res.subs)
	u := Update{Path: path, Unit: res.unit, Input: res.input, Value: v}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(u)
	}
	m.watch.Publish(u)
	return nil
}

func (m *Memory) PushBoolean(path string, ts time.Time, value bool) error {
	return m.push(path, Value{Kind: KindBoolean, Bool: value, Timestamp: ts})
}

func (m *Memory) PushNumeric(path string, ts time.Time, value float64) error {
	return m.push(path, Value{Kind: KindNumeric, Num: value, Timestamp: ts})
}

func (m *Memory) PushString(path string, ts time.Time, value string) error {
	return m.push(path, Value{Kind: KindString, Str: value, Timestamp: ts})
}

func (m *Memory) PushJSON(path string, ts time.Time, value string) error {
	return m.push(path, Value{Kind: KindJSON, Str: value, Timestamp: ts})
}

func (m *Memory) PushTrigger(path string, ts time.Time) error {
	return m.push(path, Value{Kind: KindTrigger, Timestamp: ts})
}

// Subscribe registers fn for every future push on path, regardless of kind.
// fn runs synchronously on the pusher's goroutine.
func (m *Memory) Subscribe(path string, fn func(Update)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[path]
	if !ok {
		return ErrNotFound
	}
	res.subs = append(res.subs, fn)
	return nil
}

// SubscribeJSON registers fn for future pushes on a JSON resource.
func (m *Memory) SubscribeJSON(path string, fn JSONHandler) error {
	m.mu.Lock()
	res, ok := m.resources[path]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if res.kind != KindJSON {
		m.mu.Unlock()
		return ErrKind
	}
	m.mu.Unlock()
	return m.Subscribe(path, func(u Update) {
		fn(u.Value.Timestamp, u.Value.Str)
	})
}

// Watch returns a stream of every push on every resource. Slow consumers
// miss updates rather than stalling pushers.
func (m *Memory) Watch() <-chan Update {
	return m.watch.Subscribe()
}

// Lookup returns the resource metadata and last value for path.
func (m *Memory) Lookup(path string) (kind Kind, unit string, input bool, last Value, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, found := m.resources[path]
	if !found {
		return 0, "", false, Value{}, false
	}
	if !res.hasValue {
		return res.kind, res.unit, res.input, Value{}, true
	}
	return res.kind, res.unit, res.input, res.last, true
}

// Paths returns all resource paths, in no particular order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.resources))
	for p := range m.resources {
		paths = append(paths, p)
	}
	return paths
}
