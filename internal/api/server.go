// Package api provides the HTTP API for observing and driving the farm.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/harvestor/internal/engine"
	"github.com/talgya/harvestor/internal/persistence"
	"github.com/talgya/harvestor/internal/report"
	"github.com/talgya/harvestor/internal/world"
)

// Server serves the farm state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // optional; runs and snapshots are skipped without it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	SoilFile     string // default soil samples for evaluator reloads
	GenerateSoil bool   // rewrite SoilFile from the farm on every layout swap
	ReportPath   string // workbook written by POST /report; empty = JSON only
	Layout       world.LayoutOptions

	bestLimiter *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.bestLimiter == nil {
		s.bestLimiter = NewRateLimiter(120, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/tiles", s.handleTiles)
	mux.HandleFunc("/api/v1/crops", s.handleCrops)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/best-crop", RateLimitMiddleware(s.bestLimiter, s.handleBestCrop))
	mux.HandleFunc("/api/v1/crop-at", s.handleCropAt)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/simulate", s.adminOnly(s.postOnly(s.handleSimulate)))
	mux.HandleFunc("/api/v1/rain", s.adminOnly(s.postOnly(s.handleRain)))
	mux.HandleFunc("/api/v1/plant", s.adminOnly(s.postOnly(s.handlePlant)))
	mux.HandleFunc("/api/v1/log/export", s.adminOnly(s.postOnly(s.handleExport)))
	mux.HandleFunc("/api/v1/log/clear", s.adminOnly(s.postOnly(s.handleClear)))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.postOnly(s.handleReset)))
	mux.HandleFunc("/api/v1/layout", s.adminOnly(s.postOnly(s.handleLayout)))
	mux.HandleFunc("/api/v1/evaluator/reload", s.adminOnly(s.postOnly(s.handleReload)))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.postOnly(s.handleSnapshot)))
	mux.HandleFunc("/api/v1/report", s.adminOnly(s.postOnly(s.handleReport)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no HARVESTOR_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	resp := map[string]any{
		"name":       "Harvestor",
		"farm":       st,
		"samples":    s.Sim.Evaluator.SampleCount(),
		"logged":     s.Sim.Evaluator.RecordCount(),
		"precision":  s.Sim.Evaluator.Precision(),
		"speed":      0.0,
		"running":    false,
		"tick":       uint64(0),
		"crop_count": s.Sim.Crops.Len(),
	}
	if s.Eng != nil {
		resp["speed"] = s.Eng.Speed()
		resp["running"] = s.Eng.Running()
		resp["tick"] = s.Eng.Tick()
	}
	writeJSON(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	type tileEntry struct {
		Index int `json:"index"`
		world.SoilTile
		Crop    string `json:"crop,omitempty"`
		Matured bool   `json:"matured"`
	}

	plantedOnly := r.URL.Query().Get("planted") == "true"
	tiles := s.Sim.Tiles()
	out := make([]tileEntry, 0, len(tiles))
	for i := range tiles {
		t := &tiles[i]
		if plantedOnly && !t.HasCrop {
			continue
		}
		out = append(out, tileEntry{Index: i, SoilTile: *t, Crop: t.CropName(), Matured: t.Matured()})
	}

	writeJSON(w, map[string]any{
		"tiles":  out,
		"bodies": s.Sim.Bodies(),
	})
}

func (s *Server) handleCrops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Crops.All())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	category := r.URL.Query().Get("category")

	// history=true reads persisted events, which outlive the in-memory log.
	if r.URL.Query().Get("history") == "true" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		events, err := s.DB.RecentEvents(limit, category)
		if err != nil {
			slog.Error("event history query failed", "error", err)
			http.Error(w, "event history failed", http.StatusInternalServerError)
			return
		}
		// Oldest first, like the in-memory log.
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		if events == nil {
			events = []engine.Event{}
		}
		writeJSON(w, events)
		return
	}

	events := s.Sim.Events(0)

	// Optional category filter.
	if category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}

	writeJSON(w, events[start:])
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs(50)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "list runs failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// queryFloats parses the named query parameters as finite floats.
func queryFloats(r *http.Request, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, n := range names {
		v, err := strconv.ParseFloat(r.URL.Query().Get(n), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("query parameter %q must be a number", n)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Server) handleBestCrop(w http.ResponseWriter, r *http.Request) {
	v, err := queryFloats(r, "x0", "y0", "x1", "y1")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, b := world.Point{X: v[0], Y: v[1]}, world.Point{X: v[2], Y: v[3]}
	best, counts := s.Sim.Evaluator.Tally(a, b)
	writeJSON(w, map[string]any{
		"region": world.NewRect(a, b),
		"crop":   best,
		"counts": counts,
	})
}

func (s *Server) handleCropAt(w http.ResponseWriter, r *http.Request) {
	v, err := queryFloats(r, "x", "y")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := map[string]any{
		"logged_crop": s.Sim.Evaluator.CropWithLowestMaturity(v[0], v[1]),
	}
	if t, ok := s.Sim.TileAt(world.Point{X: v[0], Y: v[1]}); ok {
		resp["tile"] = t
		resp["crop"] = t.CropName()
	}
	writeJSON(w, resp)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		http.Error(w, `invalid json (want {"on": true|false})`, http.StatusBadRequest)
		return
	}
	s.Sim.SetSimulating(*req.On)
	writeJSON(w, map[string]bool{"simulating": s.Sim.Simulating()})
}

func (s *Server) handleRain(w http.ResponseWriter, r *http.Request) {
	s.Sim.TriggerRain()
	writeJSON(w, map[string]string{"weather": s.Sim.Status().Weather})
}

func (s *Server) handlePlant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Crop   string `json:"crop"`
		Mode   string `json:"mode"`
		Region *struct {
			X0 float64 `json:"x0"`
			Y0 float64 `json:"y0"`
			X1 float64 `json:"x1"`
			Y1 float64 `json:"y1"`
		} `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Mode != "" && req.Mode != "keep" && req.Mode != "exclusive" {
		http.Error(w, `invalid mode (want "keep" or "exclusive")`, http.StatusBadRequest)
		return
	}
	if _, ok := s.Sim.Crops.Get(req.Crop); !ok {
		http.Error(w, fmt.Sprintf("%v: %q", engine.ErrUnknownCrop, req.Crop), http.StatusNotFound)
		return
	}
	if req.Mode != "" {
		s.Sim.SetPlantMode(engine.ParsePlantMode(req.Mode))
	}

	var region *world.Rect
	if req.Region != nil {
		rect := world.NewRect(world.Point{X: req.Region.X0, Y: req.Region.Y0}, world.Point{X: req.Region.X1, Y: req.Region.Y1})
		region = &rect
	}

	n, err := s.Sim.PlantCrop(req.Crop, region)
	if errors.Is(err, engine.ErrUnknownCrop) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("crop planted", "crop", req.Crop, "tiles", n, "region", req.Region != nil)
	writeJSON(w, map[string]any{"crop": req.Crop, "planted": n, "mode": s.Sim.Status().PlantMode})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Sim.ExportLog("")
	if err != nil {
		slog.Error("log export failed", "error", err)
		http.Error(w, "log export failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{"records": len(recs)}
	if s.DB != nil {
		id, err := s.DB.SaveRun(s.Sim.Clock(), recs)
		if err != nil {
			slog.Error("run save failed", "error", err)
		} else {
			resp["run_id"] = id
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.ClearLog(""); err != nil {
		slog.Error("log clear failed", "error", err)
		http.Error(w, "log clear failed", http.StatusInternalServerError)
		return
	}
	if s.DB != nil {
		if err := s.DB.ClearRuns(); err != nil {
			slog.Error("run clear failed", "error", err)
		}
	}
	writeJSON(w, map[string]string{"message": "log cleared"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Sim.Reset()
	writeJSON(w, map[string]any{"message": "farm reset", "clock": s.Sim.Clock()})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, `invalid json (want {"path": "..."})`, http.StatusBadRequest)
		return
	}
	layout, err := world.LoadLayout(req.Path, s.Layout)
	if err == nil {
		err = s.Sim.SwapLayout(layout)
	}
	if err != nil {
		slog.Error("layout load failed", "path", req.Path, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, world.ErrLoad) || errors.Is(err, world.ErrConfig) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	resp := map[string]any{"layout": layout.String()}
	if s.GenerateSoil && s.SoilFile != "" {
		if _, err := s.Sim.ExportSoil(s.SoilFile); err != nil {
			slog.Error("soil export failed", "path", s.SoilFile, "error", err)
			http.Error(w, "soil export failed", http.StatusInternalServerError)
			return
		}
		n, err := s.Sim.Evaluator.LoadSoilSamples(s.SoilFile)
		if err != nil {
			slog.Error("soil reload failed", "path", s.SoilFile, "error", err)
			http.Error(w, "soil reload failed", http.StatusInternalServerError)
			return
		}
		resp["samples"] = n
	}
	writeJSON(w, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Soil string `json:"soil"`
		Log  string `json:"log"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Soil == "" {
		req.Soil = s.SoilFile
	}

	samples, positions, err := s.Sim.ReloadEvaluator(req.Soil, req.Log)
	if err != nil {
		slog.Error("evaluator reload failed", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]int{"samples": samples, "positions": positions})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveFarmState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"clock":   s.Sim.Clock(),
		"message": "snapshot saved",
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep := report.Build(s.Sim.Evaluator.Joined())
	if s.ReportPath != "" {
		if err := report.WriteXLSX(s.ReportPath, rep); err != nil {
			slog.Error("report write failed", "error", err)
			http.Error(w, "report write failed", http.StatusInternalServerError)
			return
		}
		slog.Info("report written", "path", s.ReportPath, "rows", rep.KPIs.Rows)
	}
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
