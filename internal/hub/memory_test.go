package hub

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCreateIsIdempotentForIdenticalResources(t *testing.T) {
	m := NewMemory(testLogger())

	if err := m.CreateInput("temp", KindNumeric, "degC"); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := m.CreateInput("temp", KindNumeric, "degC"); err != ErrExists {
		t.Fatalf("duplicate CreateInput: err=%v; want ErrExists", err)
	}
}

func TestCreateMismatchIsHardError(t *testing.T) {
	m := NewMemory(testLogger())
	if err := m.CreateInput("temp", KindNumeric, "degC"); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"different kind", func() error { return m.CreateInput("temp", KindString, "degC") }},
		{"different unit", func() error { return m.CreateInput("temp", KindNumeric, "degF") }},
		{"different direction", func() error { return m.CreateOutput("temp", KindNumeric, "degC") }},
	}
	for _, tt := range tests {
		if err := tt.fn(); err != ErrMismatch {
			t.Fatalf("%s: err=%v; want ErrMismatch", tt.name, err)
		}
	}
}

func TestPushChecksResourceAndKind(t *testing.T) {
	m := NewMemory(testLogger())
	now := time.Now()

	if err := m.PushNumeric("missing", now, 1); err != ErrNotFound {
		t.Fatalf("push to missing resource: err=%v; want ErrNotFound", err)
	}

	if err := m.CreateInput("temp", KindNumeric, "degC"); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := m.PushString("temp", now, "21"); err != ErrKind {
		t.Fatalf("push with wrong kind: err=%v; want ErrKind", err)
	}
	if err := m.PushNumeric("temp", now, 21.5); err != nil {
		t.Fatalf("PushNumeric: %v", err)
	}

	kind, unit, input, last, ok := m.Lookup("temp")
	if !ok || kind != KindNumeric || unit != "degC" || !input {
		t.Fatalf("Lookup = %v %q %v ok=%v", kind, unit, input, ok)
	}
	if last.Num != 21.5 || !last.Timestamp.Equal(now) {
		t.Fatalf("last = %+v", last)
	}
}

func TestSubscribeJSONDeliversUpdates(t *testing.T) {
	m := NewMemory(testLogger())
	if err := m.CreateOutput("s/config", KindJSON, ""); err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}

	var payloads []string
	if err := m.SubscribeJSON("s/config", func(ts time.Time, payload string) {
		payloads = append(payloads, payload)
	}); err != nil {
		t.Fatalf("SubscribeJSON: %v", err)
	}

	if err := m.PushJSON("s/config", time.Now(), `{"a":1}`); err != nil {
		t.Fatalf("PushJSON: %v", err)
	}
	if len(payloads) != 1 || payloads[0] != `{"a":1}` {
		t.Fatalf("payloads = %v", payloads)
	}
}

func TestSubscribeJSONRejectsNonJSONResource(t *testing.T) {
	m := NewMemory(testLogger())
	if err := m.CreateInput("temp", KindNumeric, ""); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := m.SubscribeJSON("temp", func(time.Time, string) {}); err != ErrKind {
		t.Fatalf("SubscribeJSON on numeric: err=%v; want ErrKind", err)
	}
	if err := m.SubscribeJSON("missing", func(time.Time, string) {}); err != ErrNotFound {
		t.Fatalf("SubscribeJSON on missing: err=%v; want ErrNotFound", err)
	}
}

func TestWatchStreamsEveryPush(t *testing.T) {
	m := NewMemory(testLogger())
	if err := m.CreateInput("a", KindNumeric, ""); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := m.CreateInput("b", KindBoolean, ""); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}

	updates := m.Watch()
	now := time.Now()
	if err := m.PushNumeric("a", now, 5); err != nil {
		t.Fatalf("PushNumeric: %v", err)
	}
	if err := m.PushBoolean("b", now, true); err != nil {
		t.Fatalf("PushBoolean: %v", err)
	}

	u := <-updates
	if u.Path != "a" || u.Value.Num != 5 {
		t.Fatalf("first update = %+v", u)
	}
	u = <-updates
	if u.Path != "b" || !u.Value.Bool {
		t.Fatalf("second update = %+v", u)
	}
}
