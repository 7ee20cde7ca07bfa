// Land generation using layered simplex noise.
// Each soil factor gets its own noise layer so neighboring tiles vary smoothly.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds land generation parameters.
type GenConfig struct {
	Seed        int64   // Random seed (0 = random)
	Octaves     int     // Noise octaves per factor layer
	Frequency   float64 // Base noise frequency in cycles per world unit
	Persistence float64 // Amplitude falloff per octave
	FactorMin   float64 // Lowest soil factor value produced
	FactorMax   float64 // Highest soil factor value produced
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:        12345,
		Octaves:     3,
		Frequency:   0.02,
		Persistence: 0.5,
		FactorMin:   0.2,
		FactorMax:   0.9,
	}
}

// GenerateLand lays tiles of edge tileSize on a lattice over the bounding
// square of the circle (center, radius) and keeps the ones whose four corners
// all fall inside it. Tiles are returned row by row, top to bottom.
func GenerateLand(cfg GenConfig, center Point, radius, tileSize float64, land int) []SoilTile {
	if !(radius > 0) || !(tileSize > 0) {
		return nil
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// One noise layer per soil factor, offset by index and land so
	// neighboring blocks do not repeat each other.
	var layers [7]opensimplex.Noise
	for i := range layers {
		layers[i] = opensimplex.NewNormalized(seed + int64(land)*7 + int64(i))
	}

	span := cfg.FactorMax - cfg.FactorMin
	n := int(math.Floor(2 * radius / tileSize))
	left := center.X - radius
	top := center.Y - radius

	var tiles []SoilTile
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			pos := Point{X: left + float64(col)*tileSize, Y: top + float64(row)*tileSize}
			if !squareInCircle(pos, tileSize, center, radius) {
				continue
			}

			c := Point{X: pos.X + tileSize/2, Y: pos.Y + tileSize/2}
			var v [7]float64
			for i, layer := range layers {
				nv := octaveNoise(layer, c.X, c.Y, cfg.Octaves, cfg.Frequency, cfg.Persistence)
				v[i] = Clamp(cfg.FactorMin+nv*span, 0, 1)
			}
			tiles = append(tiles, NewTile(pos, tileSize, land, SoilFactorsFrom(v)))
		}
	}
	return tiles
}

// squareInCircle reports whether all four corners of the square lie in the circle.
func squareInCircle(pos Point, size float64, center Point, radius float64) bool {
	corners := [4]Point{
		pos,
		{X: pos.X + size, Y: pos.Y},
		{X: pos.X, Y: pos.Y + size},
		{X: pos.X + size, Y: pos.Y + size},
	}
	for _, c := range corners {
		if Distance(c, center) > radius {
			return false
		}
	}
	return true
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	if maxVal == 0 {
		return 0
	}
	return total / maxVal
}
