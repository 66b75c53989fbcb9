// Package mqttbridge mirrors hub resource updates onto MQTT topics and feeds
// broker-side configuration writes back into the hub. It is a thin egress and
// ingress adapter; the hub remains the owner of canonical values.
package mqttbridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/sirupsen/logrus"
)

// Publisher is the subset of Client the bridge needs; tests substitute it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// BridgeHub is the hub surface the bridge consumes: the global update stream
// going out, JSON pushes coming back in.
type BridgeHub interface {
	Watch() <-chan hub.Update
	PushJSON(path string, timestamp time.Time, value string) error
}

// Bridge pumps hub updates to `<prefix>/<path>` topics and relays payloads
// arriving on `<prefix>/<path>/config/set` into the hub's config outputs.
type Bridge struct {
	client Publisher
	hub    BridgeHub
	prefix string
	logger *logrus.Logger

	mu   sync.Mutex
	last map[string]string // topic -> last published payload body
}

// New creates a bridge. prefix is the topic namespace, without trailing slash.
func New(client Publisher, h BridgeHub, prefix string, logger *logrus.Logger) *Bridge {
	return &Bridge{
		client: client,
		hub:    h,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger,
		last:   make(map[string]string),
	}
}

// message is the wire payload for one resource update.
type message struct {
	Value     any    `json:"value,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Run subscribes for inbound config writes and pumps hub updates until ctx
// is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.client.Subscribe(b.prefix+"/#", b.onMessage); err != nil {
		return err
	}

	updates := b.hub.Watch()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-updates:
			b.publish(u)
		}
	}
}

func (b *Bridge) publish(u hub.Update) {
	topic, payload, key, err := b.encode(u)
	if err != nil {
		b.logger.WithError(err).WithField("path", u.Path).Warn("bridge: encoding update failed")
		return
	}

	// Suppress republishing unchanged values; a newer timestamp alone does
	// not make an update worth the broker round-trip.
	b.mu.Lock()
	if prev, ok := b.last[topic]; ok && prev == key {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := b.client.Publish(topic, payload, true); err != nil {
		b.logger.WithError(err).WithField("topic", topic).Warn("bridge: publish failed")
		return
	}
	b.mu.Lock()
	b.last[topic] = key
	b.mu.Unlock()
}

// encode builds the topic and payload for a hub update, plus the
// change-suppression key, which covers the value but not the timestamp.
func (b *Bridge) encode(u hub.Update) (topic string, payload []byte, key string, err error) {
	topic = b.prefix + "/" + u.Path

	m := message{Unit: u.Unit, Timestamp: u.Value.Timestamp.UTC().Format(time.RFC3339)}
	switch u.Value.Kind {
	case hub.KindBoolean:
		m.Value = u.Value.Bool
	case hub.KindNumeric:
		m.Value = u.Value.Num
	case hub.KindString:
		m.Value = u.Value.Str
	case hub.KindJSON:
		m.Value = json.RawMessage(u.Value.Str)
	case hub.KindTrigger:
		// No payload; the event itself is the information.
	}

	keyBytes, err := json.Marshal(m.Value)
	if err != nil {
		return topic, nil, "", err
	}
	payload, err = json.Marshal(m)
	return topic, payload, string(keyBytes), err
}

// configSuffix marks inbound topics that carry configuration writes.
const configSuffix = "/config/set"

// onMessage handles every broker message under the prefix and relays the
// config writes into the hub. Other topics under the prefix are the bridge's
// own publications and are ignored.
func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	if !strings.HasSuffix(topic, configSuffix) {
		return
	}
	path, ok := b.hubPath(topic)
	if !ok {
		return
	}

	if err := b.hub.PushJSON(path, time.Now(), string(msg.Payload())); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"path":  path,
		}).Warn("bridge: inbound config rejected")
		return
	}
	b.logger.WithField("path", path).Debug("bridge: inbound config applied")
}

// hubPath maps `<prefix>/<P>/config/set` to the hub resource `<P>/config`.
func (b *Bridge) hubPath(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", false
	}
	base, ok := strings.CutSuffix(rest, configSuffix)
	if !ok || base == "" {
		return "", false
	}
	return base + "/config", true
}
