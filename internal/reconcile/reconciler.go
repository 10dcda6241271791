// v1
// internal/reconcile/reconciler.go
package reconcile

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/namma-traffic/opsdash/internal/model"
)

// ViewModel is the latest known state per intersection plus the global
// aggregates. It is written only by the Reconciler; everyone else gets
// copies and treats them as read-only.
type ViewModel struct {
	Traffic    map[string]model.TrafficSnapshot `json:"traffic_data"`
	Signals    map[string]model.SignalState     `json:"signal_states"`
	Stats      model.SystemStats                `json:"system_stats"`
	StatsKnown bool                             `json:"-"`
	UpdatedAt  time.Time                        `json:"updated_at"`
}

// Reconciler merges inbound snapshots into the view model under
// last-writer-wins semantics: no sequence numbers or timestamps are
// compared, so ordering is whatever the transport delivers. That is a
// documented assumption of the feed, not something enforced here.
type Reconciler struct {
	log *slog.Logger

	mu sync.RWMutex
	vm ViewModel

	now func() time.Time
}

func New(log *slog.Logger) *Reconciler {
	return &Reconciler{
		log: log,
		vm: ViewModel{
			Traffic: make(map[string]model.TrafficSnapshot),
			Signals: make(map[string]model.SignalState),
		},
		now: time.Now,
	}
}

// Apply replaces the traffic snapshot and signal state of every entity
// present in the update; entities absent from the payload keep their
// previous values. Stats are replaced wholesale, never merged field by
// field. It returns the sorted ids whose state changed this cycle.
func (r *Reconciler) Apply(up model.Update) []string {
	touched := make(map[string]struct{}, len(up.TrafficData)+len(up.SignalStates))

	r.mu.Lock()
	for id, snap := range up.TrafficData {
		if prev, ok := r.vm.Traffic[id]; !ok || prev != snap {
			touched[id] = struct{}{}
		}
		r.vm.Traffic[id] = snap
	}
	for id, sig := range up.SignalStates {
		if !sig.CurrentState.Valid() {
			r.log.Warn("dropping signal state with unknown phase", "id", id, "phase", sig.CurrentState)
			continue
		}
		if prev, ok := r.vm.Signals[id]; !ok || prev != sig {
			touched[id] = struct{}{}
		}
		r.vm.Signals[id] = sig
	}
	if up.SystemStats != nil {
		r.vm.Stats = *up.SystemStats
		r.vm.StatsKnown = true
	}
	r.vm.UpdatedAt = r.now()
	r.mu.Unlock()

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// View returns a deep copy of the current view model.
func (r *Reconciler) View() ViewModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := ViewModel{
		Traffic:    make(map[string]model.TrafficSnapshot, len(r.vm.Traffic)),
		Signals:    make(map[string]model.SignalState, len(r.vm.Signals)),
		Stats:      r.vm.Stats,
		StatsKnown: r.vm.StatsKnown,
		UpdatedAt:  r.vm.UpdatedAt,
	}
	for id, v := range r.vm.Traffic {
		out.Traffic[id] = v
	}
	for id, v := range r.vm.Signals {
		out.Signals[id] = v
	}
	return out
}
