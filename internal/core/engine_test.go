// v0
// internal/core/engine_test.go
package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/metrics"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/reconcile"
	"github.com/namma-traffic/opsdash/internal/registry"
	"github.com/namma-traffic/opsdash/internal/render"
)

func testEngine(t *testing.T, source string) *Engine {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.Load("", log)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return New(
		reconcile.New(log),
		render.NewDispatcher(reg, log),
		alerts.NewFeed(log),
		metrics.New(),
		log,
		Options{Source: source},
	)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func TestSnapshotProducesFrame(t *testing.T) {
	e := testEngine(t, SourceSimulated)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnSnapshot(model.Update{
		TrafficData: map[string]model.TrafficSnapshot{
			"hebbal": {VehicleCount: 120, CongestionLevel: 40, AverageSpeed: 22},
		},
	})

	waitFor(t, func() bool {
		for _, p := range e.Frame().Entities {
			if p.ID == "hebbal" && p.VehicleCount == "120" {
				return true
			}
		}
		return false
	}, "snapshot never reached the frame")
}

func TestSubscriberReceivesFrames(t *testing.T) {
	e := testEngine(t, SourceSimulated)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	ch, unsub := e.Subscribe()
	defer unsub()

	e.OnSnapshot(model.Update{
		SystemStats: &model.SystemStats{TotalVehiclesProcessed: 1000, CommuteTimeReduction: 8},
	})

	select {
	case f := <-ch:
		if f.Source != SourceSimulated {
			t.Fatalf("frame source: %q", f.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame delivered to subscriber")
	}
}

func TestLifecycleTogglesConnectionAndAlerts(t *testing.T) {
	e := testEngine(t, SourceLive)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnLifecycle(false)
	waitFor(t, func() bool { return !e.Frame().Connected }, "disconnect never surfaced")

	found := false
	for _, a := range e.Frame().Alerts {
		if a.Kind == alerts.KindWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning alert after disconnect, got %+v", e.Frame().Alerts)
	}

	e.OnLifecycle(true)
	waitFor(t, func() bool { return e.Frame().Connected }, "reconnect never surfaced")
}

func TestSimulatedModeNeverReportsLive(t *testing.T) {
	e := testEngine(t, SourceSimulated)
	if e.Frame().Connected {
		t.Fatalf("simulated engine must start disconnected")
	}
	if e.Source() != SourceSimulated {
		t.Fatalf("source: %q", e.Source())
	}
}
