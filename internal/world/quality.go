package world

import "math"

// Soil quality weights. The seven soil terms sum to 1.00 and the water-fit
// term adds another 0.10 on top; the final clamp absorbs the excess.
const (
	weightBase      = 0.25
	weightSunlight  = 0.15
	weightNutrients = 0.15
	weightPH        = 0.10
	weightOrganic   = 0.15
	weightLoose     = 0.10 // applied to 1-compaction
	weightFresh     = 0.10 // applied to 1-salinity
	weightWater     = 0.10
)

// WaterFit scores how close the tile's water level is to the crop's optimum:
// 1 at the optimum, falling linearly to 0 at one tolerance away.
func WaterFit(waterLevel float64, crop *CropProfile) float64 {
	return Clamp(1-math.Abs(waterLevel-crop.OptimalWater)/crop.Tolerance, 0, 1)
}

// Quality scores a tile for a crop in [0,1]. Pure function of its inputs.
func Quality(t *SoilTile, crop *CropProfile) float64 {
	q := weightBase*t.SoilBaseQuality +
		weightSunlight*t.Sunlight +
		weightNutrients*t.Nutrients +
		weightPH*t.PH +
		weightOrganic*t.OrganicMatter +
		weightLoose*(1-t.Compaction) +
		weightFresh*(1-t.Salinity) +
		weightWater*WaterFit(t.WaterLevel, crop)
	return Clamp(q, 0, 1)
}

// WaterStress is a Gaussian in the water level centered on the crop's
// optimum with the crop's tolerance as its width. 1 means no stress.
func WaterStress(waterLevel float64, crop *CropProfile) float64 {
	d := waterLevel - crop.OptimalWater
	return Clamp(math.Exp(-(d*d)/(2*crop.Tolerance*crop.Tolerance)), 0, 1)
}
