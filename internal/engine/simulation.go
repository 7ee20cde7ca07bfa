// Simulation ties the farm grid, rain, crop book and evaluator together and
// exposes the commands an external driver issues.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/harvestor/internal/evaluator"
	"github.com/talgya/harvestor/internal/simlog"
	"github.com/talgya/harvestor/internal/weather"
	"github.com/talgya/harvestor/internal/world"
)

// ErrUnknownCrop is returned when a command names a crop that was never loaded.
var ErrUnknownCrop = errors.New("unknown crop")

// Event is a notable occurrence on the farm.
type Event struct {
	Clock       float64 `json:"clock" db:"clock"`
	Description string  `json:"description" db:"description"`
	Category    string  `json:"category" db:"category"` // "plant", "rain", "log", "layout", ...
}

// maxEvents bounds the in-memory event history.
const maxEvents = 1000

// Options configures a new Simulation.
type Options struct {
	Params  GrowthParams
	Seed    int64
	Mode    PlantMode
	LogPath string // default target of ExportLog and ClearLog
}

// Simulation holds the complete farm state. All methods are safe for
// concurrent use; each command runs to completion under one lock so ticks
// never overlap with each other or with queries.
type Simulation struct {
	mu sync.Mutex

	Crops     *world.CropBook
	Evaluator *evaluator.Evaluator

	grid       *FarmGrid
	rain       *weather.RainSpell
	simulating bool
	selected   *world.CropProfile
	opts       Options
	events     []Event
	eventTotal int
	exports    int
}

// NewSimulation creates a paused simulation over layout. The first crop in the
// book is selected.
func NewSimulation(layout *world.Layout, crops *world.CropBook, eval *evaluator.Evaluator, opts Options) (*Simulation, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if crops == nil || crops.Len() == 0 {
		return nil, fmt.Errorf("%w: no crops loaded", world.ErrConfig)
	}
	if eval == nil {
		eval = evaluator.New(evaluator.DefaultPrecision)
	}
	return &Simulation{
		Crops:     crops,
		Evaluator: eval,
		grid:      NewFarmGrid(layout, opts.Params, opts.Seed),
		rain:      weather.NewRainSpell(weather.DefaultRainDuration),
		selected:  crops.All()[0],
		opts:      opts,
	}, nil
}

// Advance is one driver tick of dt seconds. Rain counts down whether or not
// the farm is simulating. Reports whether the farm moved.
func (s *Simulation) Advance(dt float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	raining := s.rain.Active()
	moved := s.grid.Tick(dt, raining, s.simulating)
	s.rain.Advance(dt)
	return moved
}

// SetSimulating pauses or resumes growth.
func (s *Simulation) SetSimulating(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simulating == on {
		return
	}
	s.simulating = on
	state := "paused"
	if on {
		state = "resumed"
	}
	s.record("sim", "simulation "+state)
}

// Simulating reports whether growth is running.
func (s *Simulation) Simulating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simulating
}

// TriggerRain starts a rain spell.
func (s *Simulation) TriggerRain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rain.Start()
	s.record("rain", fmt.Sprintf("rain for %.0fs", s.rain.Remaining()))
}

// PlantCrop plants the named crop everywhere, or only on tiles overlapping
// region when region is non-nil. The crop becomes the selected crop.
// Returns the number of tiles planted.
func (s *Simulation) PlantCrop(name string, region *world.Rect) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	crop, ok := s.Crops.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCrop, name)
	}
	s.selected = crop

	var n int
	if region == nil {
		n = s.grid.PlantAll(crop)
	} else {
		n = s.grid.PlantRegion(crop, *region, s.opts.Mode)
	}
	s.record("plant", fmt.Sprintf("planted %s on %d tiles", crop.Name, n))
	return n, nil
}

// ExportLog appends every matured tile to the log at path (the configured log
// when path is empty) and returns the records written.
func (s *Simulation) ExportLog(path string) ([]simlog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		path = s.opts.LogPath
	}
	recs := simlog.Collect(s.grid.Tiles, s.grid.Clock())
	size, err := simlog.Export(path, recs)
	if err != nil {
		return nil, err
	}
	s.exports++
	s.record("log", fmt.Sprintf("exported %d matured tiles to %s", len(recs), path))
	slog.Info("simulation log exported", "path", path, "records", len(recs), "bytes", size)
	return recs, nil
}

// ClearLog truncates the log at path (the configured log when path is empty).
func (s *Simulation) ClearLog(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		path = s.opts.LogPath
	}
	if err := simlog.Clear(path); err != nil {
		return err
	}
	s.record("log", "cleared "+path)
	return nil
}

// QueryBestCrop asks the evaluator for the best crop in the rectangle
// spanned by a and b.
func (s *Simulation) QueryBestCrop(a, b world.Point) string {
	return s.Evaluator.BestCropInRegion(a, b)
}

// ReloadEvaluator reloads soil samples and the simulation log. The evaluator
// keeps whichever dataset failed to load.
func (s *Simulation) ReloadEvaluator(soilPath, logPath string) (samples, positions int, err error) {
	if logPath == "" {
		logPath = s.opts.LogPath
	}
	samples, err = s.Evaluator.LoadSoilSamples(soilPath)
	if err != nil {
		return 0, 0, err
	}
	positions, err = s.Evaluator.LoadSimulationLog(logPath)
	if err != nil {
		return samples, 0, err
	}
	return samples, positions, nil
}

// Reset unplants every tile, rewinds the clock, stops rain and pauses.
func (s *Simulation) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid.Reset()
	s.rain.Stop()
	s.simulating = false
	s.record("sim", "farm reset")
}

// SwapLayout replaces the farm with a freshly loaded layout. The layout is
// validated first; on error the running farm is untouched.
func (s *Simulation) SwapLayout(layout *world.Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = NewFarmGrid(layout, s.opts.Params, s.opts.Seed)
	s.rain.Stop()
	s.simulating = false
	s.record("layout", layout.String())
	return nil
}

// SetPlantMode changes how region plantings treat the rest of the farm.
func (s *Simulation) SetPlantMode(m PlantMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Mode = m
}

// Stats computes the current farm aggregates.
func (s *Simulation) Stats() FarmStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid.Stats()
}

// Clock returns the simulation time in seconds.
func (s *Simulation) Clock() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid.Clock()
}

// Tiles returns a copy of the farm tiles.
func (s *Simulation) Tiles() []world.SoilTile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]world.SoilTile, len(s.grid.Tiles))
	copy(out, s.grid.Tiles)
	return out
}

// Bodies returns a copy of the water bodies of the farm.
func (s *Simulation) Bodies() []world.WaterBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]world.WaterBody, len(s.grid.Bodies))
	copy(out, s.grid.Bodies)
	return out
}

// ExportSoil writes the soil factors of every farm tile to a soil CSV at
// path, so the evaluator can join the farm's own log against them.
// Returns the number of rows written.
func (s *Simulation) ExportSoil(path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := world.SaveSoilSamples(path, s.grid.Tiles); err != nil {
		return 0, err
	}
	s.record("log", fmt.Sprintf("wrote %d soil samples to %s", len(s.grid.Tiles), path))
	return len(s.grid.Tiles), nil
}

// TileAt returns a copy of the tile covering p.
func (s *Simulation) TileAt(p world.Point) (world.SoilTile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.grid.TileAt(p)
	if i < 0 {
		return world.SoilTile{}, false
	}
	return s.grid.Tiles[i], true
}

// Status is a point-in-time summary of the simulation.
type Status struct {
	Clock      float64      `json:"clock"`
	SimTime    string       `json:"sim_time"`
	Simulating bool         `json:"simulating"`
	Raining    bool         `json:"raining"`
	RainSpells int          `json:"rain_spells"`
	Weather    string       `json:"weather"`
	Selected   string       `json:"selected_crop"`
	PlantMode  string       `json:"plant_mode"`
	Tiles      int          `json:"tiles"`
	Lands      int          `json:"lands"`
	Bodies     int          `json:"water_bodies"`
	Exports    int          `json:"exports"`
	Stats      FarmStats    `json:"stats"`
	Params     GrowthParams `json:"params"`
}

// Status returns a consistent snapshot of the simulation state.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Clock:      s.grid.Clock(),
		SimTime:    SimTime(s.grid.Clock()),
		Simulating: s.simulating,
		Raining:    s.rain.Active(),
		RainSpells: s.rain.Spells(),
		Weather:    s.rain.Description(),
		Selected:   s.selected.Name,
		PlantMode:  s.opts.Mode.String(),
		Tiles:      len(s.grid.Tiles),
		Lands:      s.grid.Lands,
		Bodies:     len(s.grid.Bodies),
		Exports:    s.exports,
		Stats:      s.grid.Stats(),
		Params:     s.grid.Params(),
	}
}

// Events returns the most recent events, newest last.
func (s *Simulation) Events(limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// EventLog returns how many events have ever been recorded, and the ones
// recorded after the first since. Events already trimmed from the history
// are not returned.
func (s *Simulation) EventLog(since int) (int, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.eventTotal - since
	if n <= 0 {
		return s.eventTotal, nil
	}
	if n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return s.eventTotal, out
}

// record appends an event. Callers hold s.mu.
func (s *Simulation) record(category, desc string) {
	s.events = append(s.events, Event{Clock: s.grid.Clock(), Description: desc, Category: category})
	s.eventTotal++
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

// Report logs a one-line farm summary.
func (s *Simulation) Report(tick uint64) {
	st := s.Status()
	slog.Info("farm report",
		"tick", tick,
		"time", st.SimTime,
		"planted", st.Stats.Planted,
		"matured", st.Stats.Matured,
		"avg_quality", fmt.Sprintf("%.3f", st.Stats.AvgSoilQuality),
		"avg_water", fmt.Sprintf("%.3f", st.Stats.AvgWaterLevel),
		"avg_growth", fmt.Sprintf("%.3f", st.Stats.AvgGrowth),
		"pct_matured", fmt.Sprintf("%.1f", st.Stats.PercentMatured),
		"weather", st.Weather,
	)
}

// TileState is the mutable part of a tile, as persisted between runs.
type TileState struct {
	Index        int     `db:"idx"`
	PosX         float64 `db:"pos_x"`
	PosY         float64 `db:"pos_y"`
	Crop         string  `db:"crop"`
	WaterLevel   float64 `db:"water_level"`
	Growth       float64 `db:"growth"`
	TimeToMature float64 `db:"time_to_mature"`
	LastQuality  float64 `db:"last_quality"`
}

// TileStates returns the state of every planted tile.
func (s *Simulation) TileStates() []TileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TileState
	for i := range s.grid.Tiles {
		t := &s.grid.Tiles[i]
		if !t.HasCrop {
			continue
		}
		out = append(out, TileState{
			Index:        i,
			PosX:         t.Position.X,
			PosY:         t.Position.Y,
			Crop:         t.CropName(),
			WaterLevel:   t.WaterLevel,
			Growth:       t.Growth,
			TimeToMature: t.TimeToMature,
			LastQuality:  t.LastQuality,
		})
	}
	return out
}

// RestoreTiles re-plants tiles from saved state and sets the clock. States
// whose index or position no longer matches the layout, or whose crop is not
// loaded, are skipped. Returns the number restored.
func (s *Simulation) RestoreTiles(states []TileState, clock float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, st := range states {
		if st.Index < 0 || st.Index >= len(s.grid.Tiles) {
			continue
		}
		t := &s.grid.Tiles[st.Index]
		if t.Position.X != st.PosX || t.Position.Y != st.PosY {
			continue
		}
		crop, ok := s.Crops.Get(st.Crop)
		if !ok {
			slog.Warn("skipping saved tile with unknown crop", "index", st.Index, "crop", st.Crop)
			continue
		}
		t.Plant(crop)
		t.WaterLevel = world.Clamp(st.WaterLevel, 0, 1)
		t.Growth = world.Clamp(st.Growth, 0, 1)
		t.TimeToMature = st.TimeToMature
		t.LastQuality = world.Clamp(st.LastQuality, 0, 1)
		restored++
	}
	if clock > 0 {
		s.grid.clock = clock
	}
	return restored
}
