// v0
// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/control"
	"github.com/namma-traffic/opsdash/internal/core"
	"github.com/namma-traffic/opsdash/internal/metrics"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/reconcile"
	"github.com/namma-traffic/opsdash/internal/registry"
	"github.com/namma-traffic/opsdash/internal/render"
	"github.com/namma-traffic/opsdash/internal/transport"
)

func testServer(t *testing.T) (*Server, *core.Engine, *alerts.Feed, context.CancelFunc) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.Load("", log)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	feed := alerts.NewFeed(log)
	met := metrics.New()
	eng := core.New(reconcile.New(log), render.NewDispatcher(reg, log), feed, met, log, core.Options{Source: core.SourceSimulated})
	ctrl := control.New(transport.Offline{Log: log}, feed, reg, log)
	srv := NewServer(eng, feed, ctrl, reg, met, log)

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	return srv, eng, feed, cancel
}

func TestHealth(t *testing.T) {
	srv, _, _, cancel := testServer(t)
	defer cancel()

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["source"] != "simulated" {
		t.Fatalf("source: %v", body["source"])
	}
}

func TestFrameEndpoint(t *testing.T) {
	srv, eng, _, cancel := testServer(t)
	defer cancel()

	eng.OnSnapshot(model.Update{
		TrafficData: map[string]model.TrafficSnapshot{"majestic": {VehicleCount: 80, CongestionLevel: 25}},
	})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(eng.Frame().Entities) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/frame", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var f render.Frame
	if err := json.Unmarshal(rr.Body.Bytes(), &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Entities) != 1 || f.Entities[0].ID != "majestic" {
		t.Fatalf("entities: %+v", f.Entities)
	}
	if f.Entities[0].CongestionColor != render.ColorGreen {
		t.Fatalf("25%% congestion should be green, got %s", f.Entities[0].CongestionColor)
	}
}

func TestNearestPoint(t *testing.T) {
	srv, _, _, cancel := testServer(t)
	defer cancel()

	// Hebbal flyover coordinates.
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/nearest?lat=13.0358&lng=77.5970", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var p registry.Point
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "hebbal" {
		t.Fatalf("nearest: %q", p.ID)
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/nearest?lat=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad coords should 400, got %d", rr.Code)
	}
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	srv, _, feed, cancel := testServer(t)
	defer cancel()

	a := feed.Push(alerts.KindInfo, "signal plan updated")

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/alerts", nil))
	var got []alerts.Alert
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("alerts: %+v", got)
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("DELETE", "/api/alerts/"+a.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("dismiss status %d", rr.Code)
	}
	if len(feed.Entries()) != 0 {
		t.Fatalf("alert not dismissed")
	}
}

func TestControlEndpoints(t *testing.T) {
	srv, _, feed, cancel := testServer(t)
	defer cancel()

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("POST", "/api/control/emergency", strings.NewReader(`{"active":true}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("emergency status %d", rr.Code)
	}
	// Optimistic alert regardless of the dropped intent.
	if len(feed.Entries()) == 0 {
		t.Fatalf("expected optimistic alert from emergency intent")
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("POST", "/api/control/signal/no_such_point/toggle", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown point should 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("POST", "/api/control/signal/silk_board/toggle", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("toggle status %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("POST", "/api/control/ai-settings", strings.NewReader(`{"aggressiveness":"high","frequency":"30"}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ai-settings status %d", rr.Code)
	}
}

func TestDashboardWSDeliversFrames(t *testing.T) {
	srv, eng, _, cancel := testServer(t)
	defer cancel()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/dashboard"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	// First message is the current frame.
	var f render.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("initial frame: %v", err)
	}

	eng.OnSnapshot(model.Update{
		SystemStats: &model.SystemStats{TotalVehiclesProcessed: 42},
	})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("frame read: %v", err)
		}
		if f.TotalVehicles == "42" {
			return
		}
	}
	t.Fatalf("snapshot never reached the websocket client, last frame total %q", f.TotalVehicles)
}
