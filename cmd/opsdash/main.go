// v2
// cmd/opsdash/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/api"
	"github.com/namma-traffic/opsdash/internal/config"
	"github.com/namma-traffic/opsdash/internal/control"
	"github.com/namma-traffic/opsdash/internal/core"
	"github.com/namma-traffic/opsdash/internal/ledger"
	"github.com/namma-traffic/opsdash/internal/logging"
	"github.com/namma-traffic/opsdash/internal/metrics"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/reconcile"
	"github.com/namma-traffic/opsdash/internal/registry"
	"github.com/namma-traffic/opsdash/internal/render"
	"github.com/namma-traffic/opsdash/internal/simulate"
	"github.com/namma-traffic/opsdash/internal/transport"
)

func main() {
	cfg := config.FromEnv()
	log := logging.New(cfg.LogFile)

	log.Info("opsdash boot",
		"bind_addr", cfg.BindAddr,
		"feed_url", cfg.FeedURL,
		"mqtt_broker", cfg.MQTTBroker,
		"kafka_brokers", cfg.KafkaBrokers,
	)

	reg, err := registry.Load(cfg.PointsFile, log)
	if err != nil {
		log.Error("point registry load failed", "err", err)
		os.Exit(1)
	}

	met := metrics.New()
	audit := ledger.New(cfg.KafkaBrokers, cfg.LedgerTopic, log)
	defer func() {
		if err := audit.Close(); err != nil {
			log.Error("event ledger close failed", "err", err)
		}
	}()
	rec := reconcile.New(log)
	disp := render.NewDispatcher(reg, log)

	// The feed sessions and the alert feed start delivering before the engine
	// exists, so they go through an atomic reference that is filled in below.
	var engRef atomic.Pointer[core.Engine]

	feed := alerts.NewFeed(log,
		alerts.WithTTL(cfg.AlertTTL),
		alerts.WithPushSink(func(a alerts.Alert) {
			met.AlertsRaised.WithLabelValues(string(a.Kind)).Inc()
			audit.RecordAlert(a)
		}),
		alerts.WithChangeSink(func([]alerts.Alert) {
			if e := engRef.Load(); e != nil {
				e.Invalidate()
			}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, source := dialFeed(ctx, cfg, met, &engRef, log)
	defer session.Close()

	opts := core.Options{Source: source}
	if source == core.SourceSimulated {
		opts.Simulator = simulate.New(reg, log, simulate.WithInterval(cfg.TickInterval))
	}
	eng := core.New(rec, disp, feed, met, log, opts)
	engRef.Store(eng)
	if source == core.SourceSimulated {
		feed.Push(alerts.KindWarning, "Live feed unavailable, showing simulated data")
	} else {
		met.ConnectionState.Set(1)
	}

	ctrl := control.New(session, feed, reg, log).WithRecorder(audit)
	srv := api.NewServer(eng, feed, ctrl, reg, met, log)

	go eng.Run(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: handlers.LoggingHandler(os.Stdout, srv.Router()),
	}
	go func() {
		log.Info("dashboard API listening", "addr", cfg.BindAddr, "source", source)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("opsdash stopped")
}

// dialFeed tries the configured live channels in order: WebSocket first,
// MQTT second. When neither connects the dashboard runs on the simulator
// and never switches back for the life of the process.
func dialFeed(ctx context.Context, cfg config.Config, met *metrics.Metrics, engRef *atomic.Pointer[core.Engine], log *slog.Logger) (transport.Session, string) {
	cb := transport.Callbacks{
		OnSnapshot: func(up model.Update) {
			if e := engRef.Load(); e != nil {
				e.OnSnapshot(up)
			}
		},
		OnLifecycle: func(connected bool) {
			if e := engRef.Load(); e != nil {
				e.OnLifecycle(connected)
			}
		},
		OnIntentSent:    func(string) { met.IntentsSent.Inc() },
		OnIntentDropped: func(string) { met.IntentsDropped.Inc() },
	}
	if cfg.FeedURL != "" {
		s, err := transport.Dial(ctx, cfg.FeedURL, cb, log)
		if err == nil {
			return s, core.SourceLive
		}
		log.Warn("websocket feed unreachable", "url", cfg.FeedURL, "err", err)
	}
	if cfg.MQTTBroker != "" {
		s, err := transport.DialMQTT(transport.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			FeedTopic:   cfg.MQTTFeedTopic,
			IntentTopic: cfg.MQTTIntentTopic,
		}, cb, log)
		if err == nil {
			return s, core.SourceLive
		}
		log.Warn("mqtt feed unreachable", "broker", cfg.MQTTBroker, "err", err)
	}
	return transport.Offline{Log: log, OnDrop: func(string) { met.IntentsDropped.Inc() }}, core.SourceSimulated
}
