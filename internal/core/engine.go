// v1
// internal/core/engine.go
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/metrics"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/reconcile"
	"github.com/namma-traffic/opsdash/internal/render"
	"github.com/namma-traffic/opsdash/internal/simulate"
)

// Source labels where snapshots are coming from. The engine starts in one
// mode and never switches back to Live once it has fallen to Simulated.
const (
	SourceLive      = "live"
	SourceSimulated = "simulated"
)

// Engine owns the update loop: every snapshot, lifecycle change and alert
// mutation funnels into one goroutine, which applies it to the view model,
// projects a fresh frame and fans it out to subscribers. Handlers read the
// latest frame; nothing outside the loop ever mutates state.
type Engine struct {
	log  *slog.Logger
	rec  *reconcile.Reconciler
	disp *render.Dispatcher
	feed *alerts.Feed
	met  *metrics.Metrics
	sim  *simulate.Simulator

	source  string
	updates chan model.Update
	lcEvent chan bool
	redraw  chan struct{}

	mu        sync.RWMutex
	frame     render.Frame
	connected bool
	subs      map[chan render.Frame]struct{}

	now func() time.Time
}

type Options struct {
	Source    string              // SourceLive or SourceSimulated
	Simulator *simulate.Simulator // required when Source is SourceSimulated
	Now       func() time.Time    // test hook, defaults to time.Now
}

func New(rec *reconcile.Reconciler, disp *render.Dispatcher, feed *alerts.Feed, met *metrics.Metrics, log *slog.Logger, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		log:     log,
		rec:     rec,
		disp:    disp,
		feed:    feed,
		met:     met,
		sim:     opts.Simulator,
		source:  opts.Source,
		updates: make(chan model.Update, 16),
		lcEvent: make(chan bool, 4),
		redraw:  make(chan struct{}, 1),
		subs:    make(map[chan render.Frame]struct{}),
		now:     now,
	}
	e.connected = opts.Source == SourceLive
	e.frame = e.project()
	return e
}

// OnSnapshot is the transport/simulator ingestion point. Safe from any
// goroutine; drops the snapshot if the loop is saturated rather than block
// the reader.
func (e *Engine) OnSnapshot(up model.Update) {
	select {
	case e.updates <- up:
	default:
		e.log.Warn("update queue full, snapshot dropped")
	}
}

// OnLifecycle reports transport connectivity changes.
func (e *Engine) OnLifecycle(connected bool) {
	select {
	case e.lcEvent <- connected:
	default:
	}
}

// Invalidate requests a frame rebuild without new data, e.g. after the
// alert feed changed. Coalesces bursts into one redraw.
func (e *Engine) Invalidate() {
	select {
	case e.redraw <- struct{}{}:
	default:
	}
}

// Frame returns the latest projected frame.
func (e *Engine) Frame() render.Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frame
}

// View returns a copy of the reconciled view model.
func (e *Engine) View() reconcile.ViewModel { return e.rec.View() }

// Source reports which feed the engine is running on.
func (e *Engine) Source() string { return e.source }

// Subscribe registers a frame receiver. The returned cancel func must be
// called when the receiver goes away. Slow receivers miss frames instead
// of stalling the loop.
func (e *Engine) Subscribe() (<-chan render.Frame, func()) {
	ch := make(chan render.Frame, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	cancel := func() {
		e.mu.Lock()
		delete(e.subs, ch)
		e.mu.Unlock()
	}
	return ch, cancel
}

// Run drives the event loop until ctx is done. When the engine runs
// simulated it also starts the snapshot generator.
func (e *Engine) Run(ctx context.Context) {
	if e.source == SourceSimulated && e.sim != nil {
		go e.sim.Run(ctx, e.updates)
	}
	clock := time.NewTicker(time.Second)
	defer clock.Stop()

	e.log.Info("engine loop started", "source", e.source)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine loop stopped")
			return
		case up := <-e.updates:
			changed := e.rec.Apply(up)
			e.met.SnapshotsApplied.WithLabelValues(e.source).Inc()
			e.log.Debug("snapshot applied", "changed", len(changed))
			e.publish()
		case up := <-e.lcEvent:
			e.applyLifecycle(up)
			e.publish()
		case <-e.redraw:
			e.publish()
		case <-clock.C:
			e.publish()
		}
	}
}

func (e *Engine) applyLifecycle(up bool) {
	e.mu.Lock()
	prev := e.connected
	e.connected = up
	e.mu.Unlock()
	if prev == up {
		return
	}
	if up {
		e.met.ConnectionState.Set(1)
		e.feed.Push(alerts.KindSuccess, "Live feed connected")
	} else {
		e.met.ConnectionState.Set(0)
		e.feed.Push(alerts.KindWarning, "Live feed connection lost, retrying")
	}
}

func (e *Engine) publish() {
	f := e.project()
	e.mu.Lock()
	e.frame = f
	for ch := range e.subs {
		select {
		case ch <- f:
		default:
			// receiver still holds an older frame; replace it
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
			}
		}
	}
	e.mu.Unlock()
}

func (e *Engine) project() render.Frame {
	start := e.now()
	e.mu.RLock()
	connected := e.connected
	e.mu.RUnlock()
	f := e.disp.Frame(render.Inputs{
		View:      e.rec.View(),
		Connected: connected,
		Source:    e.source,
		Now:       e.now(),
		Alerts:    e.feed.Entries(),
	})
	e.met.FrameDuration.Observe(e.now().Sub(start).Seconds())
	return f
}
