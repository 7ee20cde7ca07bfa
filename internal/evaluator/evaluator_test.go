package evaluator

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/harvestor/internal/simlog"
	"github.com/talgya/harvestor/internal/world"
)

const soilCSV = `x,y,soilBaseQuality,sunlight,nutrients,pH,organicMatter,compaction,salinity
0,0,0.5,0.5,0.5,0.5,0.5,0.5,0.5
6,0,0.6,0.5,0.5,0.5,0.5,0.5,0.5
12,0,0.7,0.5,0.5,0.5,0.5,0.5
0,6,0.8,0.5,0.5,0.5,0.5,0.5,0.5
6,6,0.9,0.5,0.5,0.5,0.5,0.5,0.5
50,50,0.4,0.5,0.5,0.5,0.5,0.5,0.5
`

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func logFile(t *testing.T, rows ...string) string {
	t.Helper()
	return writeFile(t, "simulation_output.csv", simlog.Header+"\n"+strings.Join(rows, "\n")+"\n")
}

func TestLoadSoilSamplesSkipsMalformedRow(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	e := New(DefaultPrecision)
	n, err := e.LoadSoilSamples(writeFile(t, "soil.csv", soilCSV))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, e.SampleCount())
	assert.Equal(t, 1, strings.Count(buf.String(), "level=WARN"))
}

func TestLoadSoilSamplesIsIdempotent(t *testing.T) {
	e := New(DefaultPrecision)
	soil := writeFile(t, "soil.csv", soilCSV)
	_, err := e.LoadSimulationLog(logFile(t,
		"0,0.00,0.00,Wheat,1.00,10.00,0.60",
		"0,6.00,0.00,Barley,1.00,12.00,0.60",
	))
	require.NoError(t, err)

	first, err := e.LoadSoilSamples(soil)
	require.NoError(t, err)
	firstBest := e.BestCropInRegion(world.Point{X: 0, Y: 0}, world.Point{X: 10, Y: 10})

	second, err := e.LoadSoilSamples(soil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstBest, e.BestCropInRegion(world.Point{X: 0, Y: 0}, world.Point{X: 10, Y: 10}))
}

func TestFailedLoadKeepsPreviousData(t *testing.T) {
	e := New(DefaultPrecision)
	_, err := e.LoadSoilSamples(writeFile(t, "soil.csv", soilCSV))
	require.NoError(t, err)

	_, err = e.LoadSoilSamples(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, world.ErrLoad)
	assert.Equal(t, 5, e.SampleCount())

	_, err = e.LoadSimulationLog(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, world.ErrLoad)
}

func TestLowestMaturityWins(t *testing.T) {
	e := New(DefaultPrecision)
	_, err := e.LoadSimulationLog(logFile(t,
		"0,1.00,1.00,Corn,1.00,5.00,0.60",
		"0,1.00,1.00,Wheat,1.00,3.00,0.60",
	))
	require.NoError(t, err)
	assert.Equal(t, "Wheat", e.CropWithLowestMaturity(1, 1))

	_, err = e.LoadSimulationLog(logFile(t,
		"0,1.00,1.00,Wheat,1.00,3.00,0.60",
		"0,1.00,1.00,Corn,1.00,5.00,0.60",
	))
	require.NoError(t, err)
	assert.Equal(t, "Wheat", e.CropWithLowestMaturity(1, 1))
}

func TestEqualMaturityLaterRecordWins(t *testing.T) {
	e := New(DefaultPrecision)
	n, err := e.LoadSimulationLog(logFile(t,
		"0,1.00,1.00,Corn,1.00,4.00,0.60",
		"0,1.00,1.00,Wheat,1.00,4.00,0.60",
	))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Wheat", e.CropWithLowestMaturity(1, 1))
}

func TestCropWithLowestMaturityQuantizes(t *testing.T) {
	e := New(DefaultPrecision)
	e.SetRecords([]simlog.Record{{TileX: 2.5, TileY: 7.25, CropName: "Rice", TimeToMature: 9}})

	assert.Equal(t, "Rice", e.CropWithLowestMaturity(2.5, 7.25))
	assert.Equal(t, "Rice", e.CropWithLowestMaturity(2.5000001, 7.2500001))
	assert.Equal(t, UnknownCrop, e.CropWithLowestMaturity(2.6, 7.25))
}

func TestKeysDoNotAlias(t *testing.T) {
	e := New(1)
	assert.NotEqual(t, e.KeyOf(2, 0), e.KeyOf(0, 1))
	assert.Equal(t, Key{X: -1, Y: 0}, e.KeyOf(-0.5, 0.5))
}

func sample(x, y float64) Sample {
	return Sample{Position: world.Point{X: x, Y: y}}
}

func TestBestCropInRegionMajority(t *testing.T) {
	e := New(DefaultPrecision)
	e.SetSamples([]Sample{sample(0, 0), sample(6, 0), sample(12, 0), sample(100, 100)})
	e.SetRecords([]simlog.Record{
		{TileX: 0, TileY: 0, CropName: "Wheat", TimeToMature: 10},
		{TileX: 6, TileY: 0, CropName: "Wheat", TimeToMature: 11},
		{TileX: 12, TileY: 0, CropName: "Barley", TimeToMature: 9},
		{TileX: 100, TileY: 100, CropName: "Barley", TimeToMature: 9},
	})

	assert.Equal(t, "Wheat", e.BestCropInRegion(world.Point{X: 0, Y: 0}, world.Point{X: 12, Y: 0}))

	// Corners may come in any order.
	assert.Equal(t, "Wheat", e.BestCropInRegion(world.Point{X: 12, Y: 5}, world.Point{X: -1, Y: -5}))

	_, counts := e.Tally(world.Point{X: 0, Y: 0}, world.Point{X: 12, Y: 0})
	assert.Equal(t, map[string]int{"Wheat": 2, "Barley": 1}, counts)
}

func TestBestCropInRegionBoundsInclusive(t *testing.T) {
	e := New(DefaultPrecision)
	e.SetSamples([]Sample{sample(10, 10)})
	e.SetRecords([]simlog.Record{{TileX: 10, TileY: 10, CropName: "Corn", TimeToMature: 3}})

	assert.Equal(t, "Corn", e.BestCropInRegion(world.Point{X: 0, Y: 0}, world.Point{X: 10, Y: 10}))
	assert.Equal(t, UnknownCrop, e.BestCropInRegion(world.Point{X: 0, Y: 0}, world.Point{X: 9.99, Y: 10}))
}

func TestBestCropInRegionTieBreak(t *testing.T) {
	e := New(DefaultPrecision)
	e.SetSamples([]Sample{sample(0, 0), sample(1, 0)})
	e.SetRecords([]simlog.Record{
		{TileX: 0, TileY: 0, CropName: "Wheat", TimeToMature: 3},
		{TileX: 1, TileY: 0, CropName: "Barley", TimeToMature: 3},
	})
	for i := 0; i < 20; i++ {
		assert.Equal(t, "Barley", e.BestCropInRegion(world.Point{X: 0, Y: 0}, world.Point{X: 1, Y: 1}))
	}
}

func TestBestCropInRegionMisses(t *testing.T) {
	e := New(DefaultPrecision)
	assert.Equal(t, UnknownCrop, e.BestCropInRegion(world.Point{}, world.Point{X: 10, Y: 10}))

	e.SetSamples([]Sample{sample(1, 1), sample(2, 2)})
	assert.Equal(t, UnknownCrop, e.BestCropInRegion(world.Point{}, world.Point{X: 10, Y: 10}))
	assert.Equal(t, UnknownCrop, e.BestCropInRegion(world.Point{X: 50, Y: 50}, world.Point{X: 60, Y: 60}))
}

func TestJoined(t *testing.T) {
	e := New(DefaultPrecision)
	e.SetSamples([]Sample{sample(0, 0), sample(6, 0)})
	e.SetRecords([]simlog.Record{
		{TileX: 6, TileY: 0, CropName: "Wheat", TimeToMature: 3},
		{TileX: 0, TileY: 0, CropName: "Corn", TimeToMature: 4},
		{TileX: 90, TileY: 0, CropName: "Corn", TimeToMature: 4},
	})

	rows := e.Joined()
	require.Len(t, rows, 2)
	assert.Equal(t, "Wheat", rows[0].Record.CropName)
	assert.Equal(t, world.Point{X: 6, Y: 0}, rows[0].Sample.Position)
}

func TestNewDefaultsPrecision(t *testing.T) {
	assert.Equal(t, DefaultPrecision, New(0).Precision())
	assert.Equal(t, 0.5, New(0.5).Precision())
}
