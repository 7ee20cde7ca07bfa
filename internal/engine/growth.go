package engine

import (
	"fmt"
	"math"

	"github.com/talgya/harvestor/internal/world"
)

// GrowthParams holds the constants of the water and growth model.
type GrowthParams struct {
	GrowthSpeed     float64 `json:"growth_speed"`     // global multiplier on every crop's base rate
	RainIntensity   float64 `json:"rain_intensity"`   // water gained per second of rain
	RelaxRate       float64 `json:"relax_rate"`       // fraction of the gap to target water closed per second
	EvaporationRate float64 `json:"evaporation_rate"` // water lost per second
	NoiseMin        float64 `json:"noise_min"`        // lower bound of the multiplicative growth noise
	NoiseMax        float64 `json:"noise_max"`        // upper bound of the multiplicative growth noise
}

// DefaultGrowthParams returns the calibrated model constants.
func DefaultGrowthParams() GrowthParams {
	return GrowthParams{
		GrowthSpeed:     0.15,
		RainIntensity:   0.5,
		RelaxRate:       0.5,
		EvaporationRate: 0.01,
		NoiseMin:        0.9,
		NoiseMax:        1.1,
	}
}

// Validate rejects parameters that could make growth negative or non-finite.
func (p GrowthParams) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"growth speed", p.GrowthSpeed},
		{"rain intensity", p.RainIntensity},
		{"relax rate", p.RelaxRate},
		{"evaporation rate", p.EvaporationRate},
		{"noise min", p.NoiseMin},
	}
	for _, f := range fields {
		if !(f.v >= 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite value >= 0, got %g", world.ErrConfig, f.name, f.v)
		}
	}
	if !(p.NoiseMax >= p.NoiseMin) || math.IsInf(p.NoiseMax, 0) {
		return fmt.Errorf("%w: noise range [%g, %g] is empty", world.ErrConfig, p.NoiseMin, p.NoiseMax)
	}
	return nil
}

// NoiseSource yields uniform samples in [0,1). *rand.Rand satisfies it.
type NoiseSource interface {
	Float64() float64
}

// Integrator advances a single planted tile through time.
type Integrator struct {
	Params GrowthParams
}

// NewIntegrator creates an integrator with the given constants.
func NewIntegrator(p GrowthParams) *Integrator {
	return &Integrator{Params: p}
}

// Noise draws one multiplicative growth factor from rng.
func (g *Integrator) Noise(rng NoiseSource) float64 {
	p := g.Params
	return p.NoiseMin + rng.Float64()*(p.NoiseMax-p.NoiseMin)
}

// Step advances tile t by dt seconds. clock is the simulation time at the end
// of this step and becomes the tile's maturity time if its crop matures now.
// Each call draws exactly one noise sample from rng for a planted tile.
// Unplanted tiles and negative dt are left alone.
func (g *Integrator) Step(t *world.SoilTile, bodies []world.WaterBody, dt float64, raining bool, rng NoiseSource, clock float64) {
	crop := t.PlantedCrop
	if !t.HasCrop || crop == nil || !(dt >= 0) {
		return
	}
	p := g.Params

	if raining {
		t.WaterLevel = world.Clamp(t.WaterLevel+p.RainIntensity*dt, 0, 1)
	}

	target := world.TargetWater(t.Center(), bodies, crop)
	t.WaterLevel = world.Clamp(t.WaterLevel+(target-t.WaterLevel)*p.RelaxRate*dt, 0, 1)

	t.WaterLevel = math.Max(t.WaterLevel-p.EvaporationRate*dt, 0)

	t.LastQuality = world.Quality(t, crop)
	stress := world.WaterStress(t.WaterLevel, crop)

	rate := p.GrowthSpeed * crop.BaseGrowthRate * t.LastQuality * stress
	rate *= g.Noise(rng)

	before := t.Growth
	t.Growth = world.Clamp(t.Growth+rate*dt, before, 1)

	if before < 1 && t.Growth >= 1 && t.TimeToMature == world.NoMaturity {
		t.TimeToMature = clock
	}
}
