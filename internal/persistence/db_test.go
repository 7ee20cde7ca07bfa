package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/harvestor/internal/engine"
	"github.com/talgya/harvestor/internal/simlog"
	"github.com/talgya/harvestor/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "harvestor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSim(t *testing.T) *engine.Simulation {
	t.Helper()
	l := &world.Layout{Lands: 1}
	for i := 0; i < 4; i++ {
		l.Tiles = append(l.Tiles, world.NewTile(world.Point{X: float64(i) * 6}, 6, 0, world.SoilFactors{
			SoilBaseQuality: 0.5, Sunlight: 0.5, Nutrients: 0.5, PH: 0.5, OrganicMatter: 0.5,
		}))
	}
	l.Bodies = []world.WaterBody{world.NewPond(world.Point{X: 12, Y: 3}, 8)}
	crops, err := world.NewCropBook([]*world.CropProfile{
		{Name: "Wheat", BaseGrowthRate: 1, OptimalWater: 0.5, Tolerance: 0.2},
	})
	require.NoError(t, err)
	sim, err := engine.NewSimulation(l, crops, nil, engine.Options{
		Params:  engine.DefaultGrowthParams(),
		Seed:    engine.DefaultSeed,
		LogPath: filepath.Join(t.TempDir(), "log.csv"),
	})
	require.NoError(t, err)
	return sim
}

func TestSaveRunAndLoadRecords(t *testing.T) {
	db := openTestDB(t)
	first := []simlog.Record{
		{LandIndex: 0, TileX: 1, TileY: 2, CropName: "Wheat", Growth: 1, TimeToMature: 5, SoilQuality: 0.6},
		{LandIndex: 1, TileX: 3, TileY: 4, CropName: "Corn", Growth: 1, TimeToMature: 7, SoilQuality: 0.5},
	}
	id, err := db.SaveRun(12, first)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	_, err = db.SaveRun(20, []simlog.Record{{TileX: 1, TileY: 2, CropName: "Rice", Growth: 1, TimeToMature: 4}})
	require.NoError(t, err)

	recs, err := db.LoadRecords()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, first[0], recs[0])
	assert.Equal(t, "Rice", recs[2].CropName)

	runs, err := db.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Records)
	assert.Equal(t, id, runs[1].ID)

	require.NoError(t, db.ClearRuns())
	recs, err = db.LoadRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFarmStateRoundTrip(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasFarmState())
	states, clock, err := db.LoadFarmState()
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Zero(t, clock)

	sim := testSim(t)
	_, err = sim.PlantCrop("Wheat", nil)
	require.NoError(t, err)
	sim.SetSimulating(true)
	for i := 0; i < 5; i++ {
		sim.Advance(0.5)
	}
	require.NoError(t, db.SaveFarmState(sim))
	assert.True(t, db.HasFarmState())

	states, clock, err = db.LoadFarmState()
	require.NoError(t, err)
	assert.Equal(t, 2.5, clock)
	assert.Equal(t, sim.TileStates(), states)

	restored := testSim(t)
	assert.Equal(t, 4, restored.RestoreTiles(states, clock))
	assert.Equal(t, sim.Tiles(), restored.Tiles())
	assert.Equal(t, 2.5, restored.Clock())
}

func TestSaveFarmStateWritesEventsOnce(t *testing.T) {
	db := openTestDB(t)
	sim := testSim(t)
	sim.TriggerRain()
	sim.SetSimulating(true)

	require.NoError(t, db.SaveFarmState(sim))
	require.NoError(t, db.SaveFarmState(sim))
	events, err := db.RecentEvents(10, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "sim", events[0].Category)
	assert.Equal(t, "rain", events[1].Category)

	sim.Reset()
	require.NoError(t, db.SaveFarmState(sim))
	events, err = db.RecentEvents(10, "")
	require.NoError(t, err)
	assert.Len(t, events, 3)

	events, err = db.RecentEvents(10, "rain")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "rain", events[0].Category)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveMeta("layout", "farm.layout"))
	require.NoError(t, db.SaveMeta("layout", "other.layout"))
	v, err := db.GetMeta("layout")
	require.NoError(t, err)
	assert.Equal(t, "other.layout", v)
}
