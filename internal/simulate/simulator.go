// v2
// internal/simulate/simulator.go
package simulate

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/registry"
)

// DefaultInterval is how often a synthetic snapshot is produced when the
// live feed is unavailable.
const DefaultInterval = 2 * time.Second

// commuteReductionTarget is the fleet-wide goal the demo curve converges to.
const commuteReductionTarget = 0.10

var phaseTimings = map[model.SignalPhase]int{
	model.PhaseGreen:  45,
	model.PhaseYellow: 5,
	model.PhaseRed:    60,
}

// Simulator produces plausible synthetic snapshots for every catalogued
// intersection. Its output goes through the same ingestion path as a live
// feed snapshot; downstream consumers cannot tell the difference. The
// rush-hour widening is a demo heuristic, not a traffic model.
type Simulator struct {
	log      *slog.Logger
	reg      *registry.Registry
	rng      *rand.Rand
	now      func() time.Time
	interval time.Duration

	started       time.Time
	totalVehicles int64
	signals       map[string]model.SignalState
}

// Option tweaks a Simulator, mainly for deterministic tests.
type Option func(*Simulator)

// WithRand fixes the random source.
func WithRand(rng *rand.Rand) Option { return func(s *Simulator) { s.rng = rng } }

// WithClock fixes the wall clock.
func WithClock(now func() time.Time) Option { return func(s *Simulator) { s.now = now } }

// WithInterval overrides the snapshot cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

func New(reg *registry.Registry, log *slog.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		log:      log,
		reg:      reg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		interval: DefaultInterval,
		signals:  make(map[string]model.SignalState),
	}
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	return s
}

// Run emits one full snapshot per interval onto out until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, out chan<- model.Update) {
	t := time.NewTicker(s.interval)
	s.log.Info("simulator started", "interval", s.interval.String(), "points", s.reg.Len())
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case out <- s.Generate():
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				s.log.Info("simulator stopped")
				return
			}
		}
	}()
}

// Generate builds one complete snapshot for every intersection in the
// catalogue, plus refreshed system aggregates.
func (s *Simulator) Generate() model.Update {
	now := s.now()
	rush := RushHour(now)

	traffic := make(map[string]model.TrafficSnapshot, s.reg.Len())
	signals := make(map[string]model.SignalState, s.reg.Len())

	var cycleVehicles int64
	var waitSum float64
	var effWeighted, weightSum float64

	for _, p := range s.reg.All() {
		snap := s.pointSnapshot(rush)
		traffic[p.ID] = snap
		signals[p.ID] = s.signalFor(p.ID)

		cycleVehicles += int64(snap.VehicleCount)
		waitSum += snap.WaitTime

		w := priorityWeight(p.Priority)
		effWeighted += pointEfficiency(snap) * w
		weightSum += w
	}

	s.totalVehicles += cycleVehicles

	stats := model.SystemStats{
		TotalVehiclesProcessed: s.totalVehicles,
		AverageWaitTime:        round1(waitSum / float64(s.reg.Len())),
		CommuteTimeReduction:   s.commuteReduction(now),
		SystemEfficiency:       round1(effWeighted / weightSum * 100),
	}

	return model.Update{TrafficData: traffic, SignalStates: signals, SystemStats: &stats}
}

// RushHour reports whether t falls inside the 08:00-10:00 or 17:00-20:00
// local windows.
func RushHour(t time.Time) bool {
	h := t.Hour()
	return (h >= 8 && h < 10) || (h >= 17 && h < 20)
}

func (s *Simulator) pointSnapshot(rush bool) model.TrafficSnapshot {
	var vehicles int
	var congestion float64
	if rush {
		vehicles = 50 + s.rng.Intn(300)
		congestion = float64(40 + s.rng.Intn(60))
	} else {
		vehicles = 50 + s.rng.Intn(150)
		congestion = float64(10 + s.rng.Intn(50))
	}

	queue := 0
	if congestion > 50 {
		queue = int((congestion - 50) * 0.5)
	}
	wait := 0.0
	if congestion > 30 {
		wait = round1((congestion - 30) * 0.8)
	}

	return model.TrafficSnapshot{
		VehicleCount:    vehicles,
		CongestionLevel: congestion,
		AverageSpeed:    round1(s.speedFor(congestion)),
		QueueLength:     queue,
		WaitTime:        wait,
	}
}

func (s *Simulator) speedFor(congestion float64) float64 {
	span := func(lo, hi float64) float64 { return lo + s.rng.Float64()*(hi-lo) }
	switch {
	case congestion < 20:
		return span(45, 60)
	case congestion < 40:
		return span(35, 50)
	case congestion < 60:
		return span(25, 40)
	case congestion < 80:
		return span(15, 30)
	default:
		return span(5, 20)
	}
}

// signalFor keeps a persistent per-point state so countdowns look coherent
// between cycles; when a countdown hits zero a fresh phase is drawn
// uniformly. The simulator is a visual placeholder, not a phase controller.
func (s *Simulator) signalFor(id string) model.SignalState {
	// Sub-second cadences still count down by a whole second; a decrement
	// of zero would freeze every phase forever.
	dec := int(s.interval.Seconds())
	if dec < 1 {
		dec = 1
	}
	st, ok := s.signals[id]
	if ok && st.TimeRemaining > dec {
		st.TimeRemaining -= dec
		st.VehiclesWaiting = 10 + s.rng.Intn(41)
		s.signals[id] = st
		return st
	}
	phase := []model.SignalPhase{model.PhaseRed, model.PhaseYellow, model.PhaseGreen}[s.rng.Intn(3)]
	st = model.SignalState{
		CurrentState:    phase,
		TimeRemaining:   phaseTimings[phase],
		AutoMode:        true,
		VehiclesWaiting: 10 + s.rng.Intn(41),
	}
	s.signals[id] = st
	return st
}

// commuteReduction follows a learning curve toward the 10% target as the
// process accrues runtime, with a little jitter so the dashboard moves.
func (s *Simulator) commuteReduction(now time.Time) float64 {
	hours := now.Sub(s.started).Hours()
	if hours < 0 {
		hours = 0
	}
	improvement := 1 - math.Exp(-0.1*hours)
	r := commuteReductionTarget * improvement * (0.8 + 0.4*s.rng.Float64())
	if r > commuteReductionTarget {
		r = commuteReductionTarget
	}
	if r < 0 {
		r = 0
	}
	return r
}

func pointEfficiency(snap model.TrafficSnapshot) float64 {
	congestionEff := math.Max(0, (100-snap.CongestionLevel)/100)
	speedEff := math.Min(1, snap.AverageSpeed/50)
	waitEff := math.Max(0, (30-snap.WaitTime)/30)
	return (congestionEff + speedEff + waitEff) / 3
}

func priorityWeight(priority string) float64 {
	switch priority {
	case "high":
		return 3
	case "medium":
		return 2
	default:
		return 1
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
