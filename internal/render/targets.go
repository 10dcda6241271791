// v0
// internal/render/targets.go
package render

import (
	"fmt"

	"github.com/namma-traffic/opsdash/internal/registry"
)

// EntitySurfaces is the set of markup handles for one intersection. Keeping
// the mapping typed and resolved once means a missing handle is a
// configuration error at startup rather than a silent no-op scattered
// across call sites.
type EntitySurfaces struct {
	VehicleCount  string `json:"vehicle_count"`
	Speed         string `json:"speed"`
	Congestion    string `json:"congestion"`
	CongestionBar string `json:"congestion_bar"`
	LightRed      string `json:"light_red"`
	LightYellow   string `json:"light_yellow"`
	LightGreen    string `json:"light_green"`
	Countdown     string `json:"countdown"`
	ControlButton string `json:"control_button"`
}

// GlobalSurfaces are the singleton markup handles.
type GlobalSurfaces struct {
	CommuteReduction string `json:"commute_reduction"`
	Efficiency       string `json:"efficiency"`
	AverageWait      string `json:"average_wait"`
	TotalVehicles    string `json:"total_vehicles"`
	ConnectionStatus string `json:"connection_status"`
	Clock            string `json:"clock"`
}

// Targets is the full surface-id mapping for the catalogue.
type Targets struct {
	Global   GlobalSurfaces
	entities map[string]EntitySurfaces
}

// NewTargets resolves every surface id for the given catalogue up front.
func NewTargets(reg *registry.Registry) Targets {
	t := Targets{
		Global: GlobalSurfaces{
			CommuteReduction: "commute-reduction",
			Efficiency:       "system-efficiency",
			AverageWait:      "average-wait",
			TotalVehicles:    "total-vehicles",
			ConnectionStatus: "connection-status",
			Clock:            "clock-display",
		},
		entities: make(map[string]EntitySurfaces, reg.Len()),
	}
	for _, id := range reg.IDs() {
		t.entities[id] = EntitySurfaces{
			VehicleCount:  "vehicles-" + id,
			Speed:         "speed-" + id,
			Congestion:    "congestion-" + id,
			CongestionBar: "congestion-bar-" + id,
			LightRed:      "light-red-" + id,
			LightYellow:   "light-yellow-" + id,
			LightGreen:    "light-green-" + id,
			Countdown:     "countdown-" + id,
			ControlButton: "mode-toggle-" + id,
		}
	}
	return t
}

// Entity returns the surfaces for id, or an error for ids outside the
// catalogue.
func (t Targets) Entity(id string) (EntitySurfaces, error) {
	s, ok := t.entities[id]
	if !ok {
		return EntitySurfaces{}, fmt.Errorf("no render targets for entity %q", id)
	}
	return s, nil
}
