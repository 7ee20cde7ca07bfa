package engine

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/harvestor/internal/evaluator"
	"github.com/talgya/harvestor/internal/simlog"
	"github.com/talgya/harvestor/internal/world"
)

func testCrops(t *testing.T) *world.CropBook {
	t.Helper()
	book, err := world.NewCropBook([]*world.CropProfile{
		wheat(),
		{Name: "Radish", BaseGrowthRate: 50, OptimalWater: 0.5, Tolerance: 0.2},
	})
	require.NoError(t, err)
	return book
}

func newTestSim(t *testing.T) *Simulation {
	t.Helper()
	sim, err := NewSimulation(testLayout(), testCrops(t), nil, Options{
		Params:  DefaultGrowthParams(),
		Seed:    DefaultSeed,
		LogPath: filepath.Join(t.TempDir(), "simulation_output.csv"),
	})
	require.NoError(t, err)
	return sim
}

func TestNewSimulationRejectsBadConfig(t *testing.T) {
	_, err := NewSimulation(&world.Layout{}, testCrops(t), nil, Options{Params: DefaultGrowthParams()})
	assert.ErrorIs(t, err, world.ErrConfig)

	bad := DefaultGrowthParams()
	bad.NoiseMin = -1
	_, err = NewSimulation(testLayout(), testCrops(t), nil, Options{Params: bad})
	assert.ErrorIs(t, err, world.ErrConfig)
}

func TestAdvanceOnlyWhileSimulating(t *testing.T) {
	sim := newTestSim(t)
	_, err := sim.PlantCrop("Wheat", nil)
	require.NoError(t, err)

	assert.False(t, sim.Advance(1))
	assert.Equal(t, 0.0, sim.Clock())

	sim.SetSimulating(true)
	assert.True(t, sim.Advance(1))
	assert.Equal(t, 1.0, sim.Clock())
	assert.Greater(t, sim.Stats().AvgGrowth, 0.0)
}

func TestRainCountsDownWhilePaused(t *testing.T) {
	sim := newTestSim(t)
	sim.TriggerRain()
	assert.True(t, sim.Status().Raining)

	for i := 0; i < 10; i++ {
		sim.Advance(1)
	}
	assert.False(t, sim.Status().Raining)
	assert.Equal(t, 0.0, sim.Clock())
}

func TestRainRaisesWater(t *testing.T) {
	dry := newTestSim(t)
	wet := newTestSim(t)
	for _, s := range []*Simulation{dry, wet} {
		_, err := s.PlantCrop("Wheat", nil)
		require.NoError(t, err)
		s.SetSimulating(true)
	}
	wet.TriggerRain()
	dry.Advance(1)
	wet.Advance(1)
	assert.Greater(t, wet.Stats().AvgWaterLevel, dry.Stats().AvgWaterLevel)
}

func TestPlantCropUnknown(t *testing.T) {
	sim := newTestSim(t)
	_, err := sim.PlantCrop("Tobacco", nil)
	assert.ErrorIs(t, err, ErrUnknownCrop)
	assert.Equal(t, "Wheat", sim.Status().Selected)
}

func TestPlantCropRegion(t *testing.T) {
	sim := newTestSim(t)
	region := world.NewRect(world.Point{X: 0, Y: 0}, world.Point{X: 5, Y: 5})
	n, err := sim.PlantCrop("Radish", &region)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Radish", sim.Status().Selected)

	tile, ok := sim.TileAt(world.Point{X: 1, Y: 1})
	require.True(t, ok)
	assert.Equal(t, "Radish", tile.CropName())
}

func TestExportLogAndEvaluate(t *testing.T) {
	sim := newTestSim(t)
	_, err := sim.PlantCrop("Radish", nil)
	require.NoError(t, err)
	sim.SetSimulating(true)
	sim.Advance(1)

	recs, err := sim.ExportLog("")
	require.NoError(t, err)
	require.Len(t, recs, 8)
	assert.Equal(t, "Radish", recs[0].CropName)
	assert.Equal(t, 1.0, recs[0].TimeToMature)

	// Soil samples at the tile positions join with the exported log.
	soil := filepath.Join(t.TempDir(), "soil.csv")
	var rows []string
	rows = append(rows, "x,y,soilBaseQuality,sunlight,nutrients,pH,organicMatter,compaction,salinity")
	for _, tile := range sim.Tiles() {
		rows = append(rows, strings.Join([]string{
			strconv.FormatFloat(tile.Position.X, 'f', -1, 64),
			strconv.FormatFloat(tile.Position.Y, 'f', -1, 64),
			"0.5", "0.5", "0.5", "0.5", "0.5", "0.5", "0.5",
		}, ","))
	}
	require.NoError(t, os.WriteFile(soil, []byte(strings.Join(rows, "\n")+"\n"), 0o644))

	samples, positions, err := sim.ReloadEvaluator(soil, "")
	require.NoError(t, err)
	assert.Equal(t, 8, samples)
	assert.Equal(t, 8, positions)
	assert.Equal(t, "Radish", sim.QueryBestCrop(world.Point{X: 0, Y: 0}, world.Point{X: 30, Y: 30}))
	assert.Equal(t, evaluator.UnknownCrop, sim.QueryBestCrop(world.Point{X: 100, Y: 100}, world.Point{X: 130, Y: 130}))

	require.NoError(t, sim.ClearLog(""))
	res, err := simlog.Load(sim.opts.LogPath)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestResetStopsEverything(t *testing.T) {
	sim := newTestSim(t)
	_, err := sim.PlantCrop("Wheat", nil)
	require.NoError(t, err)
	sim.SetSimulating(true)
	sim.TriggerRain()
	sim.Advance(2)

	sim.Reset()
	st := sim.Status()
	assert.False(t, st.Simulating)
	assert.False(t, st.Raining)
	assert.Equal(t, 0.0, st.Clock)
	assert.Equal(t, 0, st.Stats.Planted)
}

func TestSwapLayoutRejectsInvalid(t *testing.T) {
	sim := newTestSim(t)
	err := sim.SwapLayout(&world.Layout{Tiles: testLayout().Tiles, Bodies: []world.WaterBody{world.NewPond(world.Point{}, 0)}})
	assert.ErrorIs(t, err, world.ErrConfig)
	assert.Equal(t, 8, sim.Status().Tiles)

	small := testLayout()
	small.Tiles = small.Tiles[:3]
	require.NoError(t, sim.SwapLayout(small))
	assert.Equal(t, 3, sim.Status().Tiles)
}

func TestTileStatesRoundTrip(t *testing.T) {
	sim := newTestSim(t)
	region := world.NewRect(world.Point{X: 0, Y: 0}, world.Point{X: 11, Y: 5})
	_, err := sim.PlantCrop("Wheat", &region)
	require.NoError(t, err)
	sim.SetSimulating(true)
	sim.Advance(3)
	states := sim.TileStates()
	require.Len(t, states, 2)

	fresh := newTestSim(t)
	states = append(states, TileState{Index: 99, Crop: "Wheat"}, TileState{Index: 2, PosX: 12, Crop: "Tobacco"})
	assert.Equal(t, 2, fresh.RestoreTiles(states, 3))
	assert.Equal(t, 3.0, fresh.Clock())
	assert.Equal(t, sim.Tiles()[:2], fresh.Tiles()[:2])
}

func TestEventsAreBounded(t *testing.T) {
	sim := newTestSim(t)
	for i := 0; i < maxEvents+10; i++ {
		sim.TriggerRain()
	}
	assert.Len(t, sim.Events(0), maxEvents)
	last := sim.Events(1)
	require.Len(t, last, 1)
	assert.Equal(t, "rain", last[0].Category)
}

func TestBodiesReturnsCopy(t *testing.T) {
	sim := newTestSim(t)
	bodies := sim.Bodies()
	require.NotEmpty(t, bodies)
	want := bodies[0]

	bodies[0] = world.NewPond(world.Point{X: -100, Y: -100}, 1)
	assert.Equal(t, want, sim.Bodies()[0])
}

func TestStatusReportsRainAndParams(t *testing.T) {
	sim := newTestSim(t)
	sim.TriggerRain()
	sim.TriggerRain()
	st := sim.Status()
	assert.Equal(t, 2, st.RainSpells)
	assert.Equal(t, DefaultGrowthParams(), st.Params)
}

func TestGeneratedFarmJoinsItsOwnSoil(t *testing.T) {
	layout, err := world.ParseLayout(strings.NewReader("Land 30 30 20\nPond 30 30 4\n"), "", world.DefaultLayoutOptions())
	require.NoError(t, err)
	dir := t.TempDir()
	eval := evaluator.New(evaluator.DefaultPrecision)
	sim, err := NewSimulation(layout, testCrops(t), eval, Options{
		Params:  DefaultGrowthParams(),
		Seed:    DefaultSeed,
		LogPath: filepath.Join(dir, "simulation_output.csv"),
	})
	require.NoError(t, err)

	_, err = sim.PlantCrop("Radish", nil)
	require.NoError(t, err)
	sim.SetSimulating(true)
	for i := 0; i < 60; i++ {
		sim.Advance(1)
	}
	require.Positive(t, sim.Stats().Matured)

	recs, err := sim.ExportLog("")
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	soil := filepath.Join(dir, "soil.csv")
	n, err := sim.ExportSoil(soil)
	require.NoError(t, err)
	assert.Equal(t, len(sim.Tiles()), n)

	samples, err := eval.LoadSoilSamples(soil)
	require.NoError(t, err)
	assert.Equal(t, n, samples)
	positions, err := eval.LoadSimulationLog(sim.opts.LogPath)
	require.NoError(t, err)
	assert.Equal(t, len(recs), positions)

	assert.Equal(t, "Radish", eval.BestCropInRegion(world.Point{X: 10, Y: 10}, world.Point{X: 50, Y: 50}))
	assert.Len(t, eval.Joined(), len(recs))
}
