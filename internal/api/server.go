// v1
// internal/api/server.go
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/control"
	"github.com/namma-traffic/opsdash/internal/core"
	"github.com/namma-traffic/opsdash/internal/metrics"
	"github.com/namma-traffic/opsdash/internal/registry"
)

type Server struct {
	eng  *core.Engine
	feed *alerts.Feed
	ctrl *control.Dispatcher
	reg  *registry.Registry
	met  *metrics.Metrics
	log  *slog.Logger
}

func NewServer(eng *core.Engine, feed *alerts.Feed, ctrl *control.Dispatcher, reg *registry.Registry, met *metrics.Metrics, log *slog.Logger) *Server {
	return &Server{eng: eng, feed: feed, ctrl: ctrl, reg: reg, met: met, log: log}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")
	r.Handle("/metrics", s.met.Handler()).Methods("GET")

	r.HandleFunc("/api/frame", s.getFrame).Methods("GET")
	r.HandleFunc("/api/traffic-data", s.getTrafficData).Methods("GET")
	r.HandleFunc("/api/points", s.listPoints).Methods("GET")
	r.HandleFunc("/api/nearest", s.nearestPoint).Methods("GET")
	r.HandleFunc("/api/alerts", s.listAlerts).Methods("GET")
	r.HandleFunc("/api/alerts/{id}", s.dismissAlert).Methods("DELETE")

	r.HandleFunc("/api/control/emergency", s.emergency).Methods("POST")
	r.HandleFunc("/api/control/reset", s.reset).Methods("POST")
	r.HandleFunc("/api/control/ai-settings", s.aiSettings).Methods("POST")
	r.HandleFunc("/api/control/signal/{id}/toggle", s.toggleSignal).Methods("POST")

	r.HandleFunc("/ws/dashboard", s.dashboardWS).Methods("GET")

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"source": s.eng.Source(),
	})
}

func (s *Server) getFrame(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Frame())
}

func (s *Server) getTrafficData(w http.ResponseWriter, _ *http.Request) {
	vm := s.eng.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"traffic_data":  vm.Traffic,
		"signal_states": vm.Signals,
		"system_stats":  vm.Stats,
		"updated_at":    vm.UpdatedAt,
	})
}

func (s *Server) listPoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.All())
}

func (s *Server) nearestPoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	p, ok := s.reg.Nearest(lat, lng)
	if !ok {
		writeError(w, http.StatusNotFound, "no points registered")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.Entries())
}

func (s *Server) dismissAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.feed.Dismiss(id)
	s.eng.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"dismissed": id})
}

func (s *Server) emergency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.ctrl.EmergencyMode(req.Active)
	s.eng.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]any{"intent": "emergency_mode", "active": req.Active})
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.ResetSystem()
	s.eng.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]string{"intent": "reset_system"})
}

func (s *Server) aiSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Aggressiveness string `json:"aggressiveness"`
		Frequency      string `json:"frequency"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.ctrl.UpdateAISettings(req.Aggressiveness, req.Frequency)
	s.eng.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]string{"intent": "update_ai_settings"})
}

func (s *Server) toggleSignal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.ctrl.ToggleSignalMode(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.eng.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]string{"intent": "toggle_signal_mode", "point_id": id})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return false
	}
	defer r.Body.Close()
	if len(b) == 0 {
		return true
	}
	if err := json.Unmarshal(b, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
