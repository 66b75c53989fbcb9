package sensorfw

import (
	"encoding/json"
	"fmt"
)

// Bounds on descriptor fields. These mirror the resource naming limits of
// the hub; a path also has derived siblings appended to it, so it stays well
// under the hub's path limit.
const (
	maxNameLen = 20
	maxPathLen = 128
)

// Descriptor is the plugin-supplied registration record.
type Descriptor struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	ReadOnce bool   `json:"readOnce,omitempty"`
	Unit     string `json:"unit"`
}

// ParseError reports a malformed registration descriptor.
type ParseError struct {
	Field  string
	Reason string // "missing", "too long" or "malformed"
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("sensorfw: %s descriptor", e.Reason)
	}
	return fmt.Sprintf("sensorfw: descriptor field %q %s", e.Field, e.Reason)
}

// ParseDescriptor validates a JSON descriptor. name, path and unit are
// mandatory (unit may be the empty string, but the key must be present);
// readOnce is optional and defaults to false. The parse is a pure transform
// with no side effects.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var raw struct {
		Name     *string `json:"name"`
		Path     *string `json:"path"`
		ReadOnce *bool   `json:"readOnce"`
		Unit     *string `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, &ParseError{Reason: "malformed"}
	}

	switch {
	case raw.Name == nil:
		return Descriptor{}, &ParseError{Field: "name", Reason: "missing"}
	case raw.Path == nil:
		return Descriptor{}, &ParseError{Field: "path", Reason: "missing"}
	case raw.Unit == nil:
		return Descriptor{}, &ParseError{Field: "unit", Reason: "missing"}
	}

	if len(*raw.Name) > maxNameLen {
		return Descriptor{}, &ParseError{Field: "name", Reason: "too long"}
	}
	if len(*raw.Path) > maxPathLen {
		return Descriptor{}, &ParseError{Field: "path", Reason: "too long"}
	}
	if *raw.Path == "" {
		return Descriptor{}, &ParseError{Field: "path", Reason: "missing"}
	}

	d := Descriptor{Name: *raw.Name, Path: *raw.Path, Unit: *raw.Unit}
	if raw.ReadOnce != nil {
		d.ReadOnce = *raw.ReadOnce
	}
	return d, nil
}
