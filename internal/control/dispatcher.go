// v1
// internal/control/dispatcher.go
package control

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/registry"
)

// intentSender is the slice of the transport session the dispatcher needs.
type intentSender interface {
	SendIntent(name string, payload map[string]any)
}

// Recorder mirrors outbound intents into the audit ledger. Optional.
type Recorder interface {
	RecordIntent(name string, payload map[string]any)
}

// Dispatcher translates operator actions into named intents. Every action
// raises an informational alert immediately: with a fire-and-forget channel
// that alert is optimistic feedback, not a delivery confirmation.
type Dispatcher struct {
	log      *slog.Logger
	session  intentSender
	feed     *alerts.Feed
	reg      *registry.Registry
	recorder Recorder
}

func New(session intentSender, feed *alerts.Feed, reg *registry.Registry, log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log, session: session, feed: feed, reg: reg}
}

// WithRecorder attaches an intent audit sink.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// EmergencyMode toggles the network-wide emergency override.
func (d *Dispatcher) EmergencyMode(active bool) {
	d.send(model.IntentEmergencyMode, map[string]any{"active": active})
	if active {
		d.feed.Push(alerts.KindWarning, "Emergency mode activated")
	} else {
		d.feed.Push(alerts.KindInfo, "Emergency mode deactivated")
	}
}

// ResetSystem asks the server to reset all signals to their defaults.
func (d *Dispatcher) ResetSystem() {
	d.send(model.IntentResetSystem, map[string]any{})
	d.feed.Push(alerts.KindInfo, "System reset requested")
}

// UpdateAISettings bundles the aggressiveness selector with the numeric
// update frequency. The frequency arrives as raw operator input: when it
// does not parse, the field is omitted rather than sent as garbage.
func (d *Dispatcher) UpdateAISettings(aggressiveness, frequency string) {
	payload := map[string]any{"aggressiveness": aggressiveness}
	if n, err := strconv.Atoi(strings.TrimSpace(frequency)); err == nil && n > 0 {
		payload["frequency"] = n
	} else if strings.TrimSpace(frequency) != "" {
		d.log.Warn("ignoring unparseable update frequency", "input", frequency)
	}
	d.send(model.IntentUpdateAISettings, payload)
	d.feed.Push(alerts.KindInfo, fmt.Sprintf("AI settings updated (%s)", aggressiveness))
}

// ToggleSignalMode flips one intersection between auto and manual control.
// Unknown intersections are rejected locally and never sent upstream.
func (d *Dispatcher) ToggleSignalMode(pointID string) error {
	p, ok := d.reg.Get(pointID)
	if !ok {
		d.log.Warn("mode toggle for unknown intersection", "id", pointID)
		return fmt.Errorf("unknown intersection %q", pointID)
	}
	d.send(model.IntentToggleSignalMode, map[string]any{"point_id": pointID})
	d.feed.Push(alerts.KindInfo, fmt.Sprintf("Signal mode toggled for %s", p.Name))
	return nil
}

func (d *Dispatcher) send(name string, payload map[string]any) {
	d.session.SendIntent(name, payload)
	if d.recorder != nil {
		d.recorder.RecordIntent(name, payload)
	}
	d.log.Info("intent dispatched", "intent", name)
}
