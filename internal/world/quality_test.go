package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCrop() *CropProfile {
	return &CropProfile{Name: "Wheat", BaseGrowthRate: 1.0, OptimalWater: 0.5, Tolerance: 0.2}
}

func TestQualityBoundsAtExtremes(t *testing.T) {
	crop := testCrop()
	for mask := 0; mask < 1<<7; mask++ {
		var v [7]float64
		for i := range v {
			if mask&(1<<i) != 0 {
				v[i] = 1
			}
		}
		for _, water := range []float64{0, 0.5, 1} {
			tile := NewTile(Point{}, 1, 0, SoilFactorsFrom(v))
			tile.WaterLevel = water
			q := Quality(&tile, crop)
			assert.GreaterOrEqual(t, q, 0.0, "mask %b water %v", mask, water)
			assert.LessOrEqual(t, q, 1.0, "mask %b water %v", mask, water)
		}
	}
}

func TestQualityOvershootIsClamped(t *testing.T) {
	tile := NewTile(Point{}, 1, 0, SoilFactors{
		SoilBaseQuality: 1, Sunlight: 1, Nutrients: 1, PH: 1, OrganicMatter: 1,
	})
	tile.WaterLevel = 0.5
	assert.Equal(t, 1.0, Quality(&tile, testCrop()))
}

func TestQualityWeights(t *testing.T) {
	tile := NewTile(Point{}, 1, 0, SoilFactors{
		SoilBaseQuality: 0.5, Sunlight: 0.5, Nutrients: 0.5, PH: 0.5,
		OrganicMatter: 0.5, Compaction: 0.5, Salinity: 0.5,
	})
	tile.WaterLevel = 0.5
	assert.InDelta(t, 0.6, Quality(&tile, testCrop()), 1e-9)

	// One tolerance away the water term vanishes.
	tile.WaterLevel = 0.7
	assert.InDelta(t, 0.5, Quality(&tile, testCrop()), 1e-9)
}

func TestWaterStress(t *testing.T) {
	crop := testCrop()
	assert.Equal(t, 1.0, WaterStress(0.5, crop))
	assert.InDelta(t, 0.6065, WaterStress(0.7, crop), 1e-4)
	assert.Less(t, WaterStress(0, crop), WaterStress(0.3, crop))
}

func TestWaterFit(t *testing.T) {
	crop := testCrop()
	assert.Equal(t, 1.0, WaterFit(0.5, crop))
	assert.InDelta(t, 0.5, WaterFit(0.4, crop), 1e-9)
	assert.Equal(t, 0.0, WaterFit(1, crop))
}
