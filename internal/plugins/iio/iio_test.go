package iio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/edgehub/sensorhub/internal/scheduler"
	"github.com/edgehub/sensorhub/internal/sensorfw"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// writeTree builds a fake IIO sysfs tree with one device.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestDiscover(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/name":              "bmp280\n",
		"iio:device0/in_temp_input":     "23400\n",
		"iio:device0/in_pressure_input": "101.2\n",
		"iio:device1/in_voltage0_raw":   "512\n",
		"iio:device1/in_voltage0_scale": "0.5\n",
		"not-a-device/in_temp_input":    "1\n",
	})

	channels, err := discover(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	got := make(map[string]string)
	for _, ch := range channels {
		got[ch.device+"/"+ch.id] = ch.prefix
	}
	want := map[string]string{
		"bmp280/temp":          "in_temp",
		"bmp280/pressure":      "in_pressure",
		"iio:device1/voltage0": "in_voltage0",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("discover = %v; want %v", got, want)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := discover(filepath.Join(t.TempDir(), "nope")); !os.IsNotExist(err) {
		t.Fatalf("err = %v; want not-exist", err)
	}
}

func TestSampleChannelPrefersInput(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/in_temp_input": "23400\n",
		"iio:device0/in_temp_raw":   "999\n",
		"iio:device0/in_temp_scale": "2\n",
	})
	c := &channel{dir: filepath.Join(root, "iio:device0"), device: "d", id: "temp", prefix: "in_temp"}

	v, err := sampleChannel(c)
	if err != nil {
		t.Fatalf("sampleChannel: %v", err)
	}
	if v != 23400 {
		t.Fatalf("value = %v; want 23400 (input used as-is)", v)
	}
}

func TestSampleChannelScalesRaw(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/in_voltage0_raw":    "100\n",
		"iio:device0/in_voltage0_offset": "4\n",
		"iio:device0/in_voltage0_scale":  "0.5\n",
	})
	c := &channel{dir: filepath.Join(root, "iio:device0"), device: "d", id: "voltage0", prefix: "in_voltage0"}

	v, err := sampleChannel(c)
	if err != nil {
		t.Fatalf("sampleChannel: %v", err)
	}
	if v != 52 { // (100 + 4) * 0.5
		t.Fatalf("value = %v; want 52", v)
	}
}

func TestSampleChannelNoValue(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/name": "x\n",
	})
	c := &channel{dir: filepath.Join(root, "iio:device0"), device: "d", id: "temp", prefix: "in_temp"}
	if _, err := sampleChannel(c); err == nil {
		t.Fatal("channel without input or raw should fail")
	}
}

func TestUnitFor(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"temp", "milli degree celcius"},
		{"temp_ambient", "milli degree celcius"},
		{"voltage3", "millivolts"},
		{"accel_x", "m/s^2"},
		{"frobnicate", ""},
	}
	for _, tc := range cases {
		if got := unitFor(tc.id); got != tc.want {
			t.Errorf("unitFor(%q) = %q; want %q", tc.id, got, tc.want)
		}
	}
}

func TestParseAttrValue(t *testing.T) {
	if got := parseAttrValue("12.5"); got != 12.5 {
		t.Fatalf("number = %v", got)
	}
	got := parseAttrValue("1 2 4 8")
	if !reflect.DeepEqual(got, []float64{1, 2, 4, 8}) {
		t.Fatalf("list = %v", got)
	}
	if got := parseAttrValue("enabled"); got != "enabled" {
		t.Fatalf("string = %v", got)
	}
}

func TestConfigChannelReportsAttrs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/in_temp_sampling_frequency":           "10\n",
		"iio:device0/in_temp_sampling_frequency_available": "1 10 100\n",
		"iio:device0/in_temp_scale":                        "0.001\n",
	})
	c := &channel{dir: filepath.Join(root, "iio:device0"), device: "d", id: "temp", prefix: "in_temp"}

	payload, err := configChannel(nil, c)
	if err != nil {
		t.Fatalf("configChannel: %v", err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if cfg["sampling_frequency"] != 10.0 {
		t.Fatalf("sampling_frequency = %v", cfg["sampling_frequency"])
	}
	if cfg["scale"] != 0.001 {
		t.Fatalf("scale = %v", cfg["scale"])
	}
	if _, ok := cfg["sampling_frequency_available"]; !ok {
		t.Fatal("availability list missing from report")
	}
}

func TestConfigChannelAppliesUpdate(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/in_temp_sampling_frequency": "10\n",
		"iio:device0/in_temp_scale":              "0.001\n",
	})
	dir := filepath.Join(root, "iio:device0")
	c := &channel{dir: dir, device: "d", id: "temp", prefix: "in_temp"}

	payload, err := configChannel([]byte(`{"sampling_frequency": 100, "ignored": true}`), c)
	if err != nil {
		t.Fatalf("configChannel: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "in_temp_sampling_frequency"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "100" {
		t.Fatalf("written attr = %q; want %q", data, "100")
	}
	var cfg map[string]any
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["sampling_frequency"] != 100.0 {
		t.Fatalf("reported sampling_frequency = %v; want 100", cfg["sampling_frequency"])
	}
}

func TestConfigChannelRejectsNonNumericTunable(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/in_temp_scale": "0.001\n",
	})
	c := &channel{dir: filepath.Join(root, "iio:device0"), device: "d", id: "temp", prefix: "in_temp"}
	if _, err := configChannel([]byte(`{"scale": "fast"}`), c); err == nil {
		t.Fatal("non-numeric tunable should fail")
	}
}

func TestRegisterCreatesSensors(t *testing.T) {
	root := writeTree(t, map[string]string{
		"iio:device0/name":          "bmp280\n",
		"iio:device0/in_temp_input": "23400\n",
	})
	logger := testLogger()

	h := hub.NewMemory(logger)
	sched := scheduler.New(h, clock.NewMock(), logger)
	defer sched.Close()
	fw := sensorfw.New(h, sched, 100, nil, logger)

	if err := Register(fw, root, logger); err != nil {
		t.Fatalf("Register: %v", err)
	}
	kind, unit, _, last, ok := h.Lookup("bmp280/temp/value")
	if !ok {
		t.Fatal("bmp280/temp/value missing")
	}
	if kind != hub.KindNumeric || unit != "milli degree celcius" {
		t.Fatalf("kind=%v unit=%q", kind, unit)
	}
	if last.Num != 23400 {
		t.Fatalf("initial sample = %v; want 23400", last.Num)
	}
	// Config callback present, so the sensor grows a config sibling.
	if _, _, _, _, ok := h.Lookup("bmp280/temp/config"); !ok {
		t.Fatal("bmp280/temp/config missing")
	}
}

func TestRegisterMissingTreeIsNotAnError(t *testing.T) {
	logger := testLogger()
	h := hub.NewMemory(logger)
	sched := scheduler.New(h, clock.NewMock(), logger)
	defer sched.Close()
	fw := sensorfw.New(h, sched, 100, nil, logger)

	if err := Register(fw, filepath.Join(t.TempDir(), "absent"), logger); err != nil {
		t.Fatalf("missing tree should be skipped, got %v", err)
	}
}
