// v1
// internal/model/model.go
package model

// SignalPhase is one of the three light phases. Exactly one phase is active
// per intersection at any instant.
type SignalPhase string

const (
	PhaseRed    SignalPhase = "red"
	PhaseYellow SignalPhase = "yellow"
	PhaseGreen  SignalPhase = "green"
)

// Valid reports whether p is one of the three known phases.
func (p SignalPhase) Valid() bool {
	return p == PhaseRed || p == PhaseYellow || p == PhaseGreen
}

// TrafficSnapshot is the per-intersection traffic reading for one update
// cycle. It is superseded wholesale on every update; no history is kept.
type TrafficSnapshot struct {
	VehicleCount    int     `json:"vehicle_count"`
	CongestionLevel float64 `json:"congestion_level"` // 0-100
	AverageSpeed    float64 `json:"average_speed"`    // km/h
	QueueLength     int     `json:"queue_length"`
	WaitTime        float64 `json:"wait_time"` // seconds
}

// SignalState is the per-intersection light state.
type SignalState struct {
	CurrentState    SignalPhase `json:"current_state"`
	TimeRemaining   int         `json:"time_remaining"` // seconds
	AutoMode        bool        `json:"auto_mode"`
	VehiclesWaiting int         `json:"vehicles_waiting"`
}

// SystemStats are the network-wide aggregates, replaced wholesale each cycle.
type SystemStats struct {
	TotalVehiclesProcessed int64   `json:"total_vehicles_processed"`
	AverageWaitTime        float64 `json:"average_wait_time"`       // seconds
	CommuteTimeReduction   float64 `json:"commute_time_reduction"`  // fraction 0-1
	SystemEfficiency       float64 `json:"system_efficiency"`       // percent 0-100
}

// Update is the complete inbound payload of one traffic_update message.
// Entities absent from the maps are not zeroed by consumers; they keep their
// previous values. SystemStats is a pointer so a payload without stats leaves
// the prior aggregates in place.
type Update struct {
	TrafficData  map[string]TrafficSnapshot `json:"traffic_data"`
	SignalStates map[string]SignalState     `json:"signal_states"`
	SystemStats  *SystemStats               `json:"system_stats"`
}

// Outbound intent names. Intents are fire-and-forget: there is no response
// contract and no delivery acknowledgment.
const (
	IntentEmergencyMode    = "emergency_mode"
	IntentResetSystem      = "reset_system"
	IntentUpdateAISettings = "update_ai_settings"
	IntentToggleSignalMode = "toggle_signal_mode"
)
