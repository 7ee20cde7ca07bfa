package world

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadLayout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "soil.csv", soilHeader+
		"0,0,0.5,0.5,0.5,0.5,0.5,0.5,0.5\n"+
		"6,0,0.5,0.5,0.5,0.5,0.5,0.5,0.5\n")
	writeFile(t, dir, "water.csv", "x,y\n40,40\n46,40\n")
	path := writeFile(t, dir, "farm.layout", `# test farm
LandFile soil.csv
Pond 0 0 10
PondFile water.csv
Land 100 100 20
`)

	l, err := LoadLayout(path, DefaultLayoutOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, l.Lands)
	require.Len(t, l.Bodies, 2)
	assert.False(t, l.Bodies[0].Irregular())
	assert.True(t, l.Bodies[1].Irregular())
	assert.Equal(t, []Point{{X: 43, Y: 43}, {X: 49, Y: 43}}, l.Bodies[1].Cells)

	require.Greater(t, len(l.Tiles), 2)
	assert.Equal(t, 0, l.Tiles[0].Land)
	for _, tile := range l.Tiles[2:] {
		assert.Equal(t, 1, tile.Land)
	}
	assert.Contains(t, l.String(), "2 water bodies")
}

func TestLoadLayoutErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "soil.csv", soilHeader+"0,0,0.5,0.5,0.5,0.5,0.5,0.5,0.5\n")
	writeFile(t, dir, "bad.csv", soilHeader+"0,0,1.5,0.5,0.5,0.5,0.5,0.5,0.5\n")
	writeFile(t, dir, "nowater.csv", "x,y\n")

	tests := []struct {
		name   string
		layout string
		want   error
	}{
		{"zero radius pond", "LandFile soil.csv\nPond 0 0 0\n", ErrConfig},
		{"no tiles", "Pond 0 0 10\n", ErrConfig},
		{"duplicate tiles", "LandFile soil.csv\nLandFile soil.csv\n", ErrConfig},
		{"factor out of range", "LandFile bad.csv\n", ErrConfig},
		{"empty pond file", "LandFile soil.csv\nPondFile nowater.csv\n", ErrConfig},
		{"unknown directive", "Lake 0 0 1\n", ErrConfig},
		{"bad argument", "Pond a 0 1\n", ErrConfig},
		{"missing soil file", "LandFile missing.csv\n", ErrLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayout(strings.NewReader(tt.layout), dir, DefaultLayoutOptions())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	opts := DefaultLayoutOptions()
	opts.TileSize = 0
	_, err := ParseLayout(strings.NewReader("LandFile soil.csv\n"), dir, opts)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = LoadLayout(filepath.Join(dir, "missing.layout"), DefaultLayoutOptions())
	assert.ErrorIs(t, err, ErrLoad)
}

func TestGenerateLand(t *testing.T) {
	cfg := DefaultGenConfig()
	center := Point{X: 50, Y: 50}

	tiles := GenerateLand(cfg, center, 30, 6, 3)
	require.NotEmpty(t, tiles)
	for _, tile := range tiles {
		assert.Equal(t, 3, tile.Land)
		for _, c := range []Point{
			tile.Position,
			{X: tile.Position.X + 6, Y: tile.Position.Y + 6},
		} {
			assert.LessOrEqual(t, Distance(c, center), 30.0)
		}
		for _, v := range tile.Values() {
			assert.GreaterOrEqual(t, v, 0.2-1e-9)
			assert.LessOrEqual(t, v, 0.9+1e-9)
		}
	}

	again := GenerateLand(cfg, center, 30, 6, 3)
	assert.Equal(t, tiles, again)

	assert.Empty(t, GenerateLand(cfg, center, 2, 6, 0))
}
