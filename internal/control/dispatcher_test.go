// v0
// internal/control/dispatcher_test.go
package control

import (
	"io"
	"log/slog"
	"testing"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/registry"
)

type capturedIntent struct {
	name    string
	payload map[string]any
}

type stubSender struct {
	sent []capturedIntent
}

func (s *stubSender) SendIntent(name string, payload map[string]any) {
	s.sent = append(s.sent, capturedIntent{name: name, payload: payload})
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *stubSender, *alerts.Feed) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.Load("", log)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sender := &stubSender{}
	feed := alerts.NewFeed(log)
	return New(sender, feed, reg, log), sender, feed
}

func TestEmergencyMode(t *testing.T) {
	d, sender, feed := newTestDispatcher(t)

	d.EmergencyMode(true)

	if len(sender.sent) != 1 || sender.sent[0].name != model.IntentEmergencyMode {
		t.Fatalf("unexpected intents: %+v", sender.sent)
	}
	if sender.sent[0].payload["active"] != true {
		t.Fatalf("unexpected payload: %v", sender.sent[0].payload)
	}
	entries := feed.Entries()
	if len(entries) != 1 || entries[0].Kind != alerts.KindWarning {
		t.Fatalf("expected a warning alert, got %+v", entries)
	}
}

func TestResetSystem(t *testing.T) {
	d, sender, feed := newTestDispatcher(t)
	d.ResetSystem()
	if len(sender.sent) != 1 || sender.sent[0].name != model.IntentResetSystem {
		t.Fatalf("unexpected intents: %+v", sender.sent)
	}
	if len(feed.Entries()) != 1 {
		t.Fatalf("expected an optimistic alert")
	}
}

func TestAISettingsNumericFrequency(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)
	d.UpdateAISettings("aggressive", " 30 ")

	payload := sender.sent[0].payload
	if payload["aggressiveness"] != "aggressive" {
		t.Fatalf("unexpected aggressiveness: %v", payload)
	}
	if payload["frequency"] != 30 {
		t.Fatalf("expected parsed frequency 30, got %v", payload["frequency"])
	}
}

func TestAISettingsNonNumericFrequencyOmitted(t *testing.T) {
	d, sender, feed := newTestDispatcher(t)

	// Must not panic and must not smuggle NaN or a raw string upstream.
	d.UpdateAISettings("balanced", "abc")

	payload := sender.sent[0].payload
	if _, present := payload["frequency"]; present {
		t.Fatalf("unparseable frequency must be omitted, got %v", payload["frequency"])
	}
	if payload["aggressiveness"] != "balanced" {
		t.Fatalf("aggressiveness lost: %v", payload)
	}
	if len(feed.Entries()) != 1 {
		t.Fatalf("optimistic alert still expected on parse failure")
	}
}

func TestToggleSignalMode(t *testing.T) {
	d, sender, feed := newTestDispatcher(t)

	if err := d.ToggleSignalMode("silk_board"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.sent[0].payload["point_id"] != "silk_board" {
		t.Fatalf("unexpected payload: %v", sender.sent[0].payload)
	}
	if len(feed.Entries()) != 1 {
		t.Fatalf("expected an alert naming the intersection")
	}
}

func TestToggleUnknownIntersectionRejectedLocally(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	if err := d.ToggleSignalMode("atlantis"); err == nil {
		t.Fatalf("expected an error for an uncatalogued intersection")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("invalid toggles must never go upstream: %+v", sender.sent)
	}
}

type stubRecorder struct {
	names []string
}

func (s *stubRecorder) RecordIntent(name string, _ map[string]any) {
	s.names = append(s.names, name)
}

func TestRecorderSeesEveryIntent(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	rec := &stubRecorder{}
	d.WithRecorder(rec)

	d.ResetSystem()
	d.EmergencyMode(false)

	if len(rec.names) != 2 {
		t.Fatalf("expected 2 recorded intents, got %v", rec.names)
	}
}
