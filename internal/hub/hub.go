// Package hub defines the interface to the time-series resource store that
// owns canonical sensor values, and provides an in-memory implementation of
// it. Sensors never talk to the hub directly; the sensor framework mediates.
package hub

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the data type of a hub resource.
type Kind int

const (
	KindBoolean Kind = iota
	KindNumeric
	KindString
	KindJSON
	// KindTrigger carries no payload; pushing it just records an event.
	// It is used by the periodic-sampling scheduler for one-shot fires.
	KindTrigger
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	case KindTrigger:
		return "trigger"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a textual kind name to a Kind. Trigger is deliberately not
// accepted; it is internal to the scheduler.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "boolean":
		return KindBoolean, nil
	case "numeric":
		return KindNumeric, nil
	case "string":
		return KindString, nil
	case "json":
		return KindJSON, nil
	default:
		return 0, fmt.Errorf("hub: unknown kind %q", s)
	}
}

var (
	// ErrExists is returned when a resource is created twice with identical
	// kind and unit. Callers treat it as success (idempotent creation).
	ErrExists = errors.New("hub: resource already exists")
	// ErrMismatch is returned when a resource is re-created with a different
	// kind or unit than the existing one. This is a hard error.
	ErrMismatch = errors.New("hub: resource exists with different kind or unit")
	// ErrNotFound is returned when pushing to or subscribing on a path that
	// has no resource.
	ErrNotFound = errors.New("hub: no such resource")
	// ErrKind is returned when a pushed value does not match the resource kind.
	ErrKind = errors.New("hub: value kind does not match resource")
)

// JSONHandler receives hub-side updates to a JSON resource.
type JSONHandler func(timestamp time.Time, payload string)

// Hub is the surface the sensor framework consumes. The store behind it is
// external to the framework; Memory below is the reference implementation.
type Hub interface {
	CreateInput(path string, kind Kind, unit string) error
	CreateOutput(path string, kind Kind, unit string) error

	PushBoolean(path string, timestamp time.Time, value bool) error
	PushNumeric(path string, timestamp time.Time, value float64) error
	PushString(path string, timestamp time.Time, value string) error
	PushJSON(path string, timestamp time.Time, value string) error
	PushTrigger(path string, timestamp time.Time) error

	SubscribeJSON(path string, fn JSONHandler) error
}

// Value is one pushed sample. Exactly the field matching Kind is meaningful.
type Value struct {
	Kind      Kind
	Bool      bool
	Num       float64
	Str       string
	Timestamp time.Time
}

// Update describes a push on a hub resource, as seen by watchers.
type Update struct {
	Path  string
	Unit  string
	Input bool
	Value Value
}
