package filedef

import (
	"os"
	"path/filepath"
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

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "temp.yaml"), `
name: zoneTemp
path: board/temperature
unit: deg C
kind: numeric
source: /sys/class/thermal/thermal_zone1/temp
scale: 0.001
`)
	writeFile(t, filepath.Join(dir, "flag.yml"), `
name: maintenance
path: board/maintenance
kind: boolean
source: /run/maintenance
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	defs, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d definitions; want 2", len(defs))
	}
	byName := make(map[string]Definition)
	for _, d := range defs {
		byName[d.Name] = d
	}
	temp := byName["zoneTemp"]
	if temp.Path != "board/temperature" || temp.Scale != 0.001 || temp.Kind != "numeric" {
		t.Fatalf("zoneTemp = %+v", temp)
	}
	if byName["maintenance"].Kind != "boolean" {
		t.Fatalf("maintenance = %+v", byName["maintenance"])
	}
}

func TestLoadMissingDir(t *testing.T) {
	defs, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should not fail: %v", err)
	}
	if defs != nil {
		t.Fatalf("got %v; want nil", defs)
	}
}

func TestLoadRejectsInvalidDefinition(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing name", "path: p\nkind: numeric\nsource: /f\n"},
		{"missing path", "name: n\nkind: numeric\nsource: /f\n"},
		{"missing source", "name: n\npath: p\nkind: numeric\n"},
		{"bad kind", "name: n\npath: p\nkind: fancy\nsource: /f\n"},
		{"bad yaml", "name: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "def.yaml"), tc.yaml)
			if _, err := Load(dir); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestSamplers(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "value")

	writeFile(t, source, "1500\n")
	def := &Definition{Name: "n", Path: "p", Kind: "numeric", Source: source, Scale: 0.001}
	v, err := sampleNumeric(def)
	if err != nil {
		t.Fatalf("sampleNumeric: %v", err)
	}
	if v != 1.5 {
		t.Fatalf("numeric = %v; want 1.5", v)
	}

	for raw, want := range map[string]bool{
		"1": true, "true": true, "ON": true, "yes": true, "enabled": true,
		"0": false, "off": false, "garbage": false,
	} {
		writeFile(t, source, raw+"\n")
		got, err := sampleBool(def)
		if err != nil {
			t.Fatalf("sampleBool(%q): %v", raw, err)
		}
		if got != want {
			t.Errorf("sampleBool(%q) = %v; want %v", raw, got, want)
		}
	}

	writeFile(t, source, "  hello world \n")
	s, err := sampleString(def)
	if err != nil {
		t.Fatalf("sampleString: %v", err)
	}
	if s != "hello world" {
		t.Fatalf("string = %q", s)
	}
}

func TestSampleNumericMissingSource(t *testing.T) {
	def := &Definition{Name: "n", Path: "p", Kind: "numeric", Source: filepath.Join(t.TempDir(), "absent")}
	if _, err := sampleNumeric(def); err == nil {
		t.Fatal("missing source should fail")
	}
}

func TestRegisterCreatesSensors(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "milli")
	writeFile(t, source, "42000\n")
	writeFile(t, filepath.Join(dir, "defs", "temp.yaml"),
		"name: zoneTemp\npath: board/temperature\nunit: deg C\nkind: numeric\nsource: "+source+"\nscale: 0.001\n")
	writeFile(t, filepath.Join(dir, "defs", "serial.yaml"),
		"name: serial\npath: board/serial\nkind: string\nreadOnce: true\nsource: "+source+"\n")

	logger := testLogger()
	h := hub.NewMemory(logger)
	sched := scheduler.New(h, clock.NewMock(), logger)
	defer sched.Close()
	fw := sensorfw.New(h, sched, 100, nil, logger)

	if err := Register(fw, filepath.Join(dir, "defs"), logger); err != nil {
		t.Fatalf("Register: %v", err)
	}

	kind, unit, _, last, ok := h.Lookup("board/temperature/value")
	if !ok {
		t.Fatal("board/temperature/value missing")
	}
	if kind != hub.KindNumeric || unit != "deg C" {
		t.Fatalf("kind=%v unit=%q", kind, unit)
	}
	if last.Num != 42 {
		t.Fatalf("initial sample = %v; want 42", last.Num)
	}

	// Read-once sensors land directly at their path, no siblings.
	if _, _, _, last, ok := h.Lookup("board/serial"); !ok || last.Str != "42000" {
		t.Fatalf("board/serial = %q ok=%v", last.Str, ok)
	}
	if _, _, _, _, ok := h.Lookup("board/serial/period"); ok {
		t.Fatal("read-once sensor must not have a period sibling")
	}
}
