package logx

import (
	"strings"
	"testing"
	"time"

	"offerbot/internal/eventbus"
)

func TestDecodeLogLine(t *testing.T) {
	t.Parallel()

	line := []byte(`{"level":"warn","time":"2026-08-30T10:00:00Z","tenant":"t1","message":"cycle failed","keyword":"fone","attempt":2}`)
	ev, tenant := decodeLogLine(line)

	if tenant != "t1" {
		t.Fatalf("tenant = %q, want t1", tenant)
	}
	if ev.Message != "cycle failed" {
		t.Fatalf("message = %q", ev.Message)
	}
	if !strings.Contains(ev.Fields, "keyword=fone") || !strings.Contains(ev.Fields, "attempt=2") {
		t.Fatalf("fields = %q", ev.Fields)
	}
	if strings.Contains(ev.Fields, "tenant=") || strings.Contains(ev.Fields, "time=") {
		t.Fatalf("reserved keys leaked into fields: %q", ev.Fields)
	}
}

func TestDecodeLogLineNonJSON(t *testing.T) {
	t.Parallel()

	ev, tenant := decodeLogLine([]byte("plain text line\n"))
	if tenant != "" || ev.Message != "plain text line" {
		t.Fatalf("ev = %+v tenant = %q", ev, tenant)
	}
}

func TestBusSinkPublishesScopedEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe("t1", 8)
	defer unsub()

	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		Bus:     BusConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, bus)
	defer svc.Close()

	// Below the bus threshold: must not be forwarded.
	log.Info("quiet", String("tenant", "t1"))
	log.Warn("session terminated", String("tenant", "t1"), String("status", "browserClose"))

	select {
	case e := <-ch:
		if e.Type != BusEventType {
			t.Fatalf("event type = %q", e.Type)
		}
		le, ok := e.Data.(LogEvent)
		if !ok {
			t.Fatalf("payload type %T", e.Data)
		}
		if le.Message != "session terminated" || le.Level != "warn" {
			t.Fatalf("payload = %+v", le)
		}
	case <-time.After(time.Second):
		t.Fatal("log event not forwarded to the bus")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event: %+v", e)
	default:
	}
}

func TestApplyChangesMinLevel(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe("", 8)
	defer unsub()

	svc, log := New(Config{
		Level: "debug",
		Bus:   BusConfig{Enabled: true, MinLevel: "error", RatePerSec: 100},
	}, bus)
	defer svc.Close()

	log.Warn("below threshold")
	svc.Apply(Config{
		Level: "debug",
		Bus:   BusConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	})
	log.Warn("above threshold")

	select {
	case e := <-ch:
		le := e.Data.(LogEvent)
		if le.Message != "above threshold" {
			t.Fatalf("forwarded wrong record: %+v", le)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after lowering min level")
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()

	base := Nop()
	if base.IsZero() {
		t.Fatal("Nop logger should be usable, not zero")
	}
	child := base.With(String("comp", "test"))
	// Must not panic, even with a rich field set.
	child.Info("hello",
		Int("n", 1),
		Int64("n64", 2),
		Bool("ok", true),
		Float64("f", 1.5),
		Duration("d", time.Second),
		Time("t", time.Now()),
		Any("v", struct{ X int }{1}),
		Err(nil),
	)
}
