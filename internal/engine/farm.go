package engine

import (
	"math"
	"math/rand"

	"github.com/talgya/harvestor/internal/world"
)

// DefaultSeed seeds the growth noise when none is configured.
const DefaultSeed = 12345

// PlantMode selects what a region replant does to tiles outside the region.
type PlantMode int

const (
	// PlantKeep leaves tiles outside the region as they are.
	PlantKeep PlantMode = iota
	// PlantExclusive unplants tiles outside the region.
	PlantExclusive
)

// ParsePlantMode maps a config value to a PlantMode. Unknown values keep.
func ParsePlantMode(s string) PlantMode {
	if s == "exclusive" {
		return PlantExclusive
	}
	return PlantKeep
}

func (m PlantMode) String() string {
	if m == PlantExclusive {
		return "exclusive"
	}
	return "keep"
}

// FarmStats holds aggregates over the planted tiles of a farm.
type FarmStats struct {
	Tiles          int         `json:"tiles"`
	Planted        int         `json:"planted"`
	Matured        int         `json:"matured"`
	AvgSoilQuality float64     `json:"avg_soil_quality"`
	AvgWaterLevel  float64     `json:"avg_water_level"`
	AvgGrowth      float64     `json:"avg_growth"`
	PercentMatured float64     `json:"percent_matured"`
	Lands          []LandStats `json:"lands"`
}

// LandStats is the maturity summary of one land block.
type LandStats struct {
	Land           int     `json:"land"`
	Planted        int     `json:"planted"`
	Matured        int     `json:"matured"`
	PercentMatured float64 `json:"percent_matured"`
}

// FarmGrid owns the tiles and water bodies of one loaded layout and runs the
// integrator over them. It is not safe for concurrent use.
type FarmGrid struct {
	Tiles  []world.SoilTile
	Bodies []world.WaterBody
	Lands  int

	integrator *Integrator
	rng        *rand.Rand
	clock      float64
	steps      uint64
}

// NewFarmGrid takes ownership of the layout's tiles. The noise generator is
// seeded once here; draws then follow tile order on every tick.
func NewFarmGrid(layout *world.Layout, params GrowthParams, seed int64) *FarmGrid {
	return &FarmGrid{
		Tiles:      layout.Tiles,
		Bodies:     layout.Bodies,
		Lands:      layout.Lands,
		integrator: NewIntegrator(params),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Clock returns the simulation time in seconds.
func (g *FarmGrid) Clock() float64 {
	return g.clock
}

// Steps returns how many ticks have advanced the clock.
func (g *FarmGrid) Steps() uint64 {
	return g.steps
}

// Params returns the growth constants in use.
func (g *FarmGrid) Params() GrowthParams {
	return g.integrator.Params
}

// Tick advances every planted tile by dt. It does nothing when simulating is
// false or dt is negative, and reports whether the clock moved.
func (g *FarmGrid) Tick(dt float64, raining, simulating bool) bool {
	if !simulating || !(dt >= 0) || math.IsInf(dt, 0) {
		return false
	}
	g.clock += dt
	g.steps++
	for i := range g.Tiles {
		t := &g.Tiles[i]
		if !t.HasCrop {
			continue
		}
		g.integrator.Step(t, g.Bodies, dt, raining, g.rng, g.clock)
	}
	return true
}

// PlantAll puts crop on every tile in its just-planted state.
func (g *FarmGrid) PlantAll(crop *world.CropProfile) int {
	for i := range g.Tiles {
		g.Tiles[i].Plant(crop)
	}
	return len(g.Tiles)
}

// PlantRegion plants crop on the tiles whose bounds overlap region. Tiles
// outside are kept or unplanted according to mode. Returns the number planted.
func (g *FarmGrid) PlantRegion(crop *world.CropProfile, region world.Rect, mode PlantMode) int {
	planted := 0
	for i := range g.Tiles {
		t := &g.Tiles[i]
		switch {
		case t.Bounds().Intersects(region):
			t.Plant(crop)
			planted++
		case mode == PlantExclusive:
			t.Clear()
		}
	}
	return planted
}

// Reset unplants every tile and rewinds the clock.
func (g *FarmGrid) Reset() {
	for i := range g.Tiles {
		g.Tiles[i].Clear()
	}
	g.clock = 0
	g.steps = 0
}

// TileAt returns the index of the tile covering p, or -1.
func (g *FarmGrid) TileAt(p world.Point) int {
	for i := range g.Tiles {
		b := g.Tiles[i].Bounds()
		if p.X >= b.Min.X && p.X < b.Max.X && p.Y >= b.Min.Y && p.Y < b.Max.Y {
			return i
		}
	}
	return -1
}

// Stats computes the farm aggregates in a single pass over the tiles.
func (g *FarmGrid) Stats() FarmStats {
	st := FarmStats{Tiles: len(g.Tiles)}
	lands := make([]LandStats, g.Lands)
	for i := range lands {
		lands[i].Land = i
	}

	var quality, water, growth float64
	for i := range g.Tiles {
		t := &g.Tiles[i]
		if !t.HasCrop {
			continue
		}
		st.Planted++
		quality += t.LastQuality
		water += t.WaterLevel
		growth += t.Growth
		matured := t.Matured()
		if matured {
			st.Matured++
		}
		if t.Land >= 0 && t.Land < len(lands) {
			lands[t.Land].Planted++
			if matured {
				lands[t.Land].Matured++
			}
		}
	}

	if st.Planted > 0 {
		n := float64(st.Planted)
		st.AvgSoilQuality = quality / n
		st.AvgWaterLevel = water / n
		st.AvgGrowth = growth / n
		st.PercentMatured = float64(st.Matured) / n * 100
	}
	for i := range lands {
		if lands[i].Planted > 0 {
			lands[i].PercentMatured = float64(lands[i].Matured) / float64(lands[i].Planted) * 100
		}
	}
	st.Lands = lands
	return st
}
