package world

import (
	"fmt"
	"math"
)

// InfluenceRange is how many radii out a water body still feeds tiles.
const InfluenceRange = 5.0

// WaterBody is a pond: either a circle, or an irregular body made of cells.
// For irregular bodies Radius is the radius of each constituent cell and
// Center is the centroid of the cell centers.
type WaterBody struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
	Cells  []Point `json:"cells,omitempty"` // cell centers; empty for a circular pond
}

// NewPond returns a circular water body.
func NewPond(center Point, radius float64) WaterBody {
	return WaterBody{Center: center, Radius: radius}
}

// NewIrregularBody builds a water body from the top-left corners of square
// cells of size cellSize, each feeding tiles as a pond of cellRadius.
func NewIrregularBody(corners []Point, cellSize, cellRadius float64) WaterBody {
	cells := make([]Point, len(corners))
	var sx, sy float64
	for i, c := range corners {
		cells[i] = Point{X: c.X + cellSize/2, Y: c.Y + cellSize/2}
		sx += cells[i].X
		sy += cells[i].Y
	}
	var center Point
	if n := float64(len(cells)); n > 0 {
		center = Point{X: sx / n, Y: sy / n}
	}
	return WaterBody{Center: center, Radius: cellRadius, Cells: cells}
}

// Validate rejects bodies that would divide by zero in the diffusion model.
func (b *WaterBody) Validate() error {
	if !(b.Radius > 0) || math.IsInf(b.Radius, 0) {
		return fmt.Errorf("%w: water body at (%.2f, %.2f) radius must be > 0, got %g",
			ErrConfig, b.Center.X, b.Center.Y, b.Radius)
	}
	return nil
}

// Irregular reports whether the body is made of cells.
func (b *WaterBody) Irregular() bool {
	return len(b.Cells) > 0
}

// DistanceFrom returns the distance from p to the body's nearest
// representative point: its center, or its nearest cell center.
func (b *WaterBody) DistanceFrom(p Point) float64 {
	if !b.Irregular() {
		return Distance(p, b.Center)
	}
	best := math.Inf(1)
	for _, c := range b.Cells {
		if d := Distance(p, c); d < best {
			best = d
		}
	}
	return best
}

// Contribution is the water target the body alone would give a tile at p.
func (b *WaterBody) Contribution(p Point, crop *CropProfile) float64 {
	reach := b.Radius * InfluenceRange
	return math.Max(0, 1-b.DistanceFrom(p)/reach) * crop.OptimalWater
}

// TargetWater is the level a tile centered at p relaxes toward: the largest
// single contribution among bodies. Contributions do not add up.
// The result lies in [0, crop.OptimalWater].
func TargetWater(p Point, bodies []WaterBody, crop *CropProfile) float64 {
	target := 0.0
	for i := range bodies {
		target = math.Max(target, bodies[i].Contribution(p, crop))
	}
	return target
}
