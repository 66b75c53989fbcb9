package iio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readAttr reads a channel attribute, trying the channel-prefixed name first
// and then the device-wide name (sampling_frequency lives at either level).
func (c *channel) readAttr(name string) (string, bool) {
	for _, file := range []string{c.prefix + "_" + name, name} {
		data, err := os.ReadFile(filepath.Join(c.dir, file))
		if err == nil {
			return strings.TrimSpace(string(data)), true
		}
	}
	return "", false
}

func (c *channel) writeAttr(name, value string) error {
	for _, file := range []string{c.prefix + "_" + name, name} {
		path := filepath.Join(c.dir, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return os.WriteFile(path, []byte(value), 0o644)
	}
	return fmt.Errorf("iio: attribute %s not found", name)
}

func (c *channel) readFloat(name string) (float64, bool) {
	raw, ok := c.readAttr(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// sampleChannel reads the channel value. A scaled "input" value is used
// as-is; otherwise the raw value is scaled with the channel's scale and
// offset attributes.
func sampleChannel(pluginCtx any) (float64, error) {
	c := pluginCtx.(*channel)

	if v, ok := c.readFloat("input"); ok {
		return v, nil
	}

	raw, ok := c.readFloat("raw")
	if !ok {
		return 0, fmt.Errorf("iio: %s/%s has neither input nor raw value", c.device, c.id)
	}
	scale, hasScale := c.readFloat("scale")
	if !hasScale {
		scale = 1
	}
	offset, _ := c.readFloat("offset")
	return (raw + offset) * scale, nil
}

// tunable attributes exposed through the config channel. The *_available
// lists are read-only.
var tunableAttrs = []string{"sampling_frequency", "scale"}
var readOnlyAttrs = []string{"sampling_frequency_available", "scale_available", "oversampling_ratio_available"}

// configChannel implements the framework config callback. With no incoming
// payload it reports the channel's current tuning attributes as JSON; with a
// payload it applies numeric updates to the writable attributes first and
// reports the resulting state.
func configChannel(incoming []byte, pluginCtx any) ([]byte, error) {
	c := pluginCtx.(*channel)

	if len(incoming) > 0 {
		if err := c.applyConfig(incoming); err != nil {
			return nil, err
		}
	}

	cfg := make(map[string]any)
	for _, attr := range append(append([]string{}, tunableAttrs...), readOnlyAttrs...) {
		raw, ok := c.readAttr(attr)
		if !ok {
			continue
		}
		cfg[attr] = parseAttrValue(raw)
	}
	return json.Marshal(cfg)
}

// parseAttrValue turns an attribute string into a number or, for
// space-separated availability lists, a slice of numbers.
func parseAttrValue(raw string) any {
	fields := strings.Fields(raw)
	if len(fields) > 1 {
		values := make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return raw
			}
			values = append(values, v)
		}
		return values
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}

// applyConfig writes numeric values from the incoming JSON to the writable
// attributes they name. Unknown keys and read-only attributes are ignored;
// the hub-side configuration is plugin-defined and forgiving.
func (c *channel) applyConfig(incoming []byte) error {
	var update map[string]json.RawMessage
	if err := json.Unmarshal(incoming, &update); err != nil {
		return fmt.Errorf("iio: config payload: %w", err)
	}

	for _, attr := range tunableAttrs {
		raw, ok := update[attr]
		if !ok {
			continue
		}
		var value float64
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("iio: config %s is not a number", attr)
		}

		formatted := strconv.FormatFloat(value, 'f', -1, 64)
		if current, ok := c.readAttr(attr); ok && current == formatted {
			continue
		}
		if err := c.writeAttr(attr, formatted); err != nil {
			return err
		}
	}
	return nil
}
