// v0
// internal/reconcile/reconciler_test.go
package reconcile

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namma-traffic/opsdash/internal/model"
)

func newTestReconciler() *Reconciler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func snapA() model.TrafficSnapshot {
	return model.TrafficSnapshot{VehicleCount: 120, CongestionLevel: 45, AverageSpeed: 30, QueueLength: 5, WaitTime: 20}
}

func TestAbsentEntitiesRetained(t *testing.T) {
	r := newTestReconciler()

	r.Apply(model.Update{
		TrafficData: map[string]model.TrafficSnapshot{
			"silk_board": snapA(),
			"hebbal":     {VehicleCount: 80, CongestionLevel: 20, AverageSpeed: 50},
		},
		SignalStates: map[string]model.SignalState{
			"silk_board": {CurrentState: model.PhaseGreen, TimeRemaining: 15, AutoMode: true, VehiclesWaiting: 8},
			"hebbal":     {CurrentState: model.PhaseRed, TimeRemaining: 40, AutoMode: true},
		},
	})

	// Second payload only mentions hebbal; silk_board must be untouched.
	r.Apply(model.Update{
		TrafficData: map[string]model.TrafficSnapshot{
			"hebbal": {VehicleCount: 95, CongestionLevel: 33, AverageSpeed: 42},
		},
	})

	vm := r.View()
	require.Contains(t, vm.Traffic, "silk_board")
	assert.Equal(t, snapA(), vm.Traffic["silk_board"])
	assert.Equal(t, model.PhaseGreen, vm.Signals["silk_board"].CurrentState)
	assert.Equal(t, 95, vm.Traffic["hebbal"].VehicleCount)
	assert.Equal(t, model.PhaseRed, vm.Signals["hebbal"].CurrentState)
}

func TestLastWriterWins(t *testing.T) {
	r := newTestReconciler()

	r.Apply(model.Update{TrafficData: map[string]model.TrafficSnapshot{"a": {VehicleCount: 10}}})
	r.Apply(model.Update{TrafficData: map[string]model.TrafficSnapshot{"a": {VehicleCount: 99}}})

	assert.Equal(t, 99, r.View().Traffic["a"].VehicleCount)
}

func TestStatsReplacedWholesale(t *testing.T) {
	r := newTestReconciler()

	r.Apply(model.Update{SystemStats: &model.SystemStats{
		TotalVehiclesProcessed: 1000, AverageWaitTime: 25, CommuteTimeReduction: 0.08, SystemEfficiency: 80,
	}})
	// Partial-looking stats still replace the whole struct, no field merge.
	r.Apply(model.Update{SystemStats: &model.SystemStats{TotalVehiclesProcessed: 1200}})

	vm := r.View()
	require.True(t, vm.StatsKnown)
	assert.Equal(t, int64(1200), vm.Stats.TotalVehiclesProcessed)
	assert.Zero(t, vm.Stats.SystemEfficiency)
}

func TestStatsRetainedWhenAbsent(t *testing.T) {
	r := newTestReconciler()

	r.Apply(model.Update{SystemStats: &model.SystemStats{SystemEfficiency: 80}})
	r.Apply(model.Update{TrafficData: map[string]model.TrafficSnapshot{"a": {VehicleCount: 1}}})

	assert.Equal(t, 80.0, r.View().Stats.SystemEfficiency)
}

func TestChangedIDs(t *testing.T) {
	r := newTestReconciler()

	first := r.Apply(model.Update{
		TrafficData:  map[string]model.TrafficSnapshot{"b": {VehicleCount: 1}, "a": {VehicleCount: 2}},
		SignalStates: map[string]model.SignalState{"c": {CurrentState: model.PhaseRed}},
	})
	assert.Equal(t, []string{"a", "b", "c"}, first)

	// Re-applying identical data reports nothing changed.
	second := r.Apply(model.Update{
		TrafficData: map[string]model.TrafficSnapshot{"a": {VehicleCount: 2}},
	})
	assert.Empty(t, second)
}

func TestInvalidPhaseDropped(t *testing.T) {
	r := newTestReconciler()

	r.Apply(model.Update{SignalStates: map[string]model.SignalState{
		"a": {CurrentState: model.PhaseGreen, TimeRemaining: 10},
	}})
	r.Apply(model.Update{SignalStates: map[string]model.SignalState{
		"a": {CurrentState: "purple", TimeRemaining: 99},
	}})

	assert.Equal(t, model.PhaseGreen, r.View().Signals["a"].CurrentState)
}

func TestViewIsACopy(t *testing.T) {
	r := newTestReconciler()
	r.Apply(model.Update{TrafficData: map[string]model.TrafficSnapshot{"a": {VehicleCount: 5}}})

	vm := r.View()
	vm.Traffic["a"] = model.TrafficSnapshot{VehicleCount: 777}

	assert.Equal(t, 5, r.View().Traffic["a"].VehicleCount)
}
