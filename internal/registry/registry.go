// v1
// internal/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dhconnelly/rtreego"
)

// Point is one monitored intersection. The catalogue is loaded once at
// startup and never mutated afterwards.
type Point struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Lat                float64 `json:"lat"`
	Lng                float64 `json:"lng"`
	Priority           string  `json:"priority"`
	AvgVehiclesPerHour int     `json:"avg_vehicles_per_hour"`
}

type spatialPoint struct {
	p    Point
	rect *rtreego.Rect
}

func (s *spatialPoint) Bounds() *rtreego.Rect { return s.rect }

// Registry is the immutable catalogue of intersections plus a spatial index
// over their coordinates.
type Registry struct {
	points map[string]Point
	order  []string
	tree   *rtreego.Rtree
}

// Load reads the catalogue from a JSON file. An empty path yields the
// built-in default catalogue.
func Load(path string, log *slog.Logger) (*Registry, error) {
	if path == "" {
		log.Info("no catalogue path configured, using built-in intersections")
		return New(defaultPoints())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load catalogue: %w", err)
	}
	var doc struct {
		Points []Point `json:"points"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid catalogue %s: %w", path, err)
	}
	reg, err := New(doc.Points)
	if err != nil {
		return nil, err
	}
	log.Info("catalogue loaded", "path", path, "points", len(doc.Points))
	return reg, nil
}

// New builds a registry from an explicit point list.
func New(points []Point) (*Registry, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("catalogue has no points")
	}
	r := &Registry{
		points: make(map[string]Point, len(points)),
		tree:   rtreego.NewTree(2, 2, 8),
	}
	for _, p := range points {
		if p.ID == "" {
			return nil, fmt.Errorf("catalogue point without id (name %q)", p.Name)
		}
		if _, dup := r.points[p.ID]; dup {
			return nil, fmt.Errorf("duplicate catalogue id %q", p.ID)
		}
		r.points[p.ID] = p
		r.order = append(r.order, p.ID)
		loc := rtreego.Point{p.Lng, p.Lat}
		r.tree.Insert(&spatialPoint{p: p, rect: loc.ToRect(1e-6)})
	}
	sort.Strings(r.order)
	return r, nil
}

// Get returns the point for id.
func (r *Registry) Get(id string) (Point, bool) {
	p, ok := r.points[id]
	return p, ok
}

// IDs returns all intersection ids in stable (sorted) order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all points in stable id order.
func (r *Registry) All() []Point {
	out := make([]Point, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.points[id])
	}
	return out
}

// Len reports the catalogue size.
func (r *Registry) Len() int { return len(r.points) }

// Nearest returns the intersection closest to the given coordinates.
func (r *Registry) Nearest(lat, lng float64) (Point, bool) {
	got := r.tree.NearestNeighbor(rtreego.Point{lng, lat})
	sp, ok := got.(*spatialPoint)
	if !ok {
		return Point{}, false
	}
	return sp.p, true
}

// defaultPoints is the stock Bangalore junction set used when no catalogue
// file is supplied.
func defaultPoints() []Point {
	return []Point{
		{ID: "silk_board", Name: "Silk Board Junction", Lat: 12.9178, Lng: 77.6229, Priority: "high", AvgVehiclesPerHour: 3500},
		{ID: "electronic_city", Name: "Electronic City Toll", Lat: 12.8399, Lng: 77.6773, Priority: "high", AvgVehiclesPerHour: 4200},
		{ID: "hebbal", Name: "Hebbal Flyover", Lat: 13.0358, Lng: 77.5970, Priority: "high", AvgVehiclesPerHour: 3800},
		{ID: "marathahalli", Name: "Marathahalli Bridge", Lat: 12.9591, Lng: 77.6974, Priority: "medium", AvgVehiclesPerHour: 3200},
		{ID: "whitefield", Name: "Whitefield Main Road", Lat: 12.9698, Lng: 77.7499, Priority: "medium", AvgVehiclesPerHour: 2800},
		{ID: "koramangala", Name: "Koramangala Junction", Lat: 12.9279, Lng: 77.6271, Priority: "medium", AvgVehiclesPerHour: 2900},
		{ID: "jayanagar", Name: "Jayanagar 4th Block", Lat: 12.9237, Lng: 77.5937, Priority: "low", AvgVehiclesPerHour: 2400},
		{ID: "richmond_circle", Name: "Richmond Circle", Lat: 12.9581, Lng: 77.6015, Priority: "medium", AvgVehiclesPerHour: 2600},
		{ID: "majestic", Name: "Majestic Bus Stand Area", Lat: 12.9767, Lng: 77.5710, Priority: "high", AvgVehiclesPerHour: 4000},
	}
}
