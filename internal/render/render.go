// v2
// internal/render/render.go
package render

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/model"
	"github.com/namma-traffic/opsdash/internal/reconcile"
	"github.com/namma-traffic/opsdash/internal/registry"
)

// Color classifies a metric for dashboard styling.
type Color string

const (
	ColorGreen  Color = "green"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
)

// TargetReductionPct is the fixed commute-time-reduction goal, in percent.
const TargetReductionPct = 10.0

// CongestionColor classifies a congestion level: 0-29 green, 30-59 orange,
// 60-100 red.
func CongestionColor(level float64) Color {
	switch {
	case level < 30:
		return ColorGreen
	case level < 60:
		return ColorOrange
	default:
		return ColorRed
	}
}

// ReductionColor classifies a commute-reduction percentage against the fixed
// target: at or above target green, within 70% of it orange, otherwise red.
func ReductionColor(pct float64) Color {
	switch {
	case pct >= TargetReductionPct:
		return ColorGreen
	case pct >= 0.7*TargetReductionPct:
		return ColorOrange
	default:
		return ColorRed
	}
}

// VehicleBarColor classifies a vehicle count for the bar chart.
func VehicleBarColor(count int) Color {
	switch {
	case count < 100:
		return ColorGreen
	case count < 200:
		return ColorOrange
	default:
		return ColorRed
	}
}

// ChartBar is one already-shaped datum handed to whatever chart library the
// frontend uses.
type ChartBar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Color Color   `json:"color"`
}

// EntityPanel is the rendered state of one intersection. Intersections with
// no data yet are simply absent from the frame.
type EntityPanel struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Surfaces        EntitySurfaces    `json:"surfaces"`
	VehicleCount    string            `json:"vehicle_count"`
	Speed           string            `json:"speed"`
	CongestionPct   float64           `json:"congestion_pct"` // bar width
	CongestionText  string            `json:"congestion_text"`
	CongestionColor Color             `json:"congestion_color"`
	ActiveLight     model.SignalPhase `json:"active_light"`
	TimeRemaining   int               `json:"time_remaining"`
	AutoMode        bool              `json:"auto_mode"`
	VehiclesWaiting int               `json:"vehicles_waiting"`
}

// Frame is one complete projection of the view model onto the dashboard
// surfaces. It is pure data; producing it has no side effects.
type Frame struct {
	GeneratedAt time.Time `json:"generated_at"`
	Clock       string    `json:"clock"`
	Source      string    `json:"source"`

	// Exactly one of the two stylings is active at any time; both derive
	// from the same boolean so they cannot disagree.
	Connected        bool   `json:"connected"`
	ConnectionStatus string `json:"connection_status"`

	CommuteReduction      string `json:"commute_reduction"`
	CommuteReductionColor Color  `json:"commute_reduction_color"`
	Efficiency            string `json:"efficiency"`
	AverageWait           string `json:"average_wait"`
	TotalVehicles         string `json:"total_vehicles"`

	Entities         []EntityPanel     `json:"entities"`
	VehicleChart     []ChartBar        `json:"vehicle_chart"`
	PerformanceChart []ChartBar        `json:"performance_chart"`
	ChartNotes       map[string]string `json:"chart_notes,omitempty"`

	Alerts []alerts.Alert `json:"alerts"`
}

// Inputs bundles everything a frame is projected from.
type Inputs struct {
	View      reconcile.ViewModel
	Connected bool
	Source    string
	Now       time.Time
	Alerts    []alerts.Alert
}

// Dispatcher is a stateless projector from view model to Frame. Chart
// sections are isolated: a failure in one degrades to a placeholder note
// instead of aborting the rest of the frame.
type Dispatcher struct {
	log     *slog.Logger
	reg     *registry.Registry
	targets Targets
	printer *message.Printer
}

func NewDispatcher(reg *registry.Registry, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		log:     log,
		reg:     reg,
		targets: NewTargets(reg),
		printer: message.NewPrinter(language.English),
	}
}

// Targets exposes the resolved surface-id mapping.
func (d *Dispatcher) Targets() Targets { return d.targets }

// Frame projects the inputs into a complete dashboard frame.
func (d *Dispatcher) Frame(in Inputs) Frame {
	f := Frame{
		GeneratedAt: in.Now,
		Clock:       in.Now.Format("15:04:05"),
		Source:      in.Source,
		Connected:   in.Connected,
		ChartNotes:  map[string]string{},
		Alerts:      in.Alerts,
	}
	if in.Connected {
		f.ConnectionStatus = "connected"
	} else {
		f.ConnectionStatus = "disconnected"
	}

	d.section("metrics", f.ChartNotes, func() {
		reductionPct := in.View.Stats.CommuteTimeReduction * 100
		f.CommuteReduction = formatPct(reductionPct)
		f.CommuteReductionColor = ReductionColor(reductionPct)
		f.Efficiency = formatPct(in.View.Stats.SystemEfficiency)
		f.AverageWait = fmt.Sprintf("%.1fs", in.View.Stats.AverageWaitTime)
		f.TotalVehicles = d.printer.Sprintf("%d", in.View.Stats.TotalVehiclesProcessed)
	})

	d.section("entities", f.ChartNotes, func() {
		f.Entities = d.entityPanels(in.View)
	})

	d.section("vehicle_chart", f.ChartNotes, func() {
		f.VehicleChart = d.vehicleChart(in.View)
	})

	d.section("performance_chart", f.ChartNotes, func() {
		reductionPct := in.View.Stats.CommuteTimeReduction * 100
		f.PerformanceChart = []ChartBar{
			{Label: "System Efficiency", Value: in.View.Stats.SystemEfficiency, Color: ColorGreen},
			{Label: "Commute Reduction %", Value: reductionPct, Color: ReductionColor(reductionPct)},
			{Label: "Target %", Value: TargetReductionPct, Color: ColorOrange},
		}
	})

	if len(f.ChartNotes) == 0 {
		f.ChartNotes = nil
	}
	return f
}

func (d *Dispatcher) entityPanels(vm reconcile.ViewModel) []EntityPanel {
	panels := make([]EntityPanel, 0, d.reg.Len())
	for _, p := range d.reg.All() {
		snap, haveTraffic := vm.Traffic[p.ID]
		sig, haveSignal := vm.Signals[p.ID]
		if !haveTraffic && !haveSignal {
			// Partial-data tolerance: nothing known yet, nothing painted.
			continue
		}
		surfaces, err := d.targets.Entity(p.ID)
		if err != nil {
			d.log.Error("unresolvable render target", "id", p.ID, "err", err)
			continue
		}
		panel := EntityPanel{ID: p.ID, Name: p.Name, Surfaces: surfaces}
		if haveTraffic {
			panel.VehicleCount = d.printer.Sprintf("%d", snap.VehicleCount)
			panel.Speed = fmt.Sprintf("%.1f km/h", snap.AverageSpeed)
			panel.CongestionPct = snap.CongestionLevel
			panel.CongestionText = formatPct(snap.CongestionLevel)
			panel.CongestionColor = CongestionColor(snap.CongestionLevel)
		}
		if haveSignal {
			panel.ActiveLight = sig.CurrentState
			panel.TimeRemaining = sig.TimeRemaining
			panel.AutoMode = sig.AutoMode
			panel.VehiclesWaiting = sig.VehiclesWaiting
		}
		panels = append(panels, panel)
	}
	return panels
}

func (d *Dispatcher) vehicleChart(vm reconcile.ViewModel) []ChartBar {
	bars := make([]ChartBar, 0, d.reg.Len())
	for _, p := range d.reg.All() {
		snap, ok := vm.Traffic[p.ID]
		if !ok {
			continue
		}
		bars = append(bars, ChartBar{
			Label: p.Name,
			Value: float64(snap.VehicleCount),
			Color: VehicleBarColor(snap.VehicleCount),
		})
	}
	return bars
}

func (d *Dispatcher) section(name string, notes map[string]string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("render section failed", "section", name, "reason", r)
			notes[name] = "unavailable"
		}
	}()
	fn()
}

func formatPct(v float64) string { return fmt.Sprintf("%.1f%%", v) }
