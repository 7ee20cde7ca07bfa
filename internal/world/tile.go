// Package world provides the farm tiles, crop profiles, water bodies, and the
// pure agronomic models that read them.
// Positions are continuous world units; a tile's position is its top-left corner.
package world

import (
	"math"

	"golang.org/x/exp/constraints"
)

// NoMaturity marks a tile whose crop has not yet reached full growth.
const NoMaturity = -1.0

// Point is a position in world units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Rect is an axis-aligned rectangle given by two opposite corners.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NewRect returns the rectangle spanned by two corners in any order.
func NewRect(a, b Point) Rect {
	return Rect{
		Min: Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// Contains reports whether p lies inside r, bounds inclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Intersects reports whether r and o overlap with positive area.
// Rectangles that only share an edge do not intersect.
func (r Rect) Intersects(o Rect) bool {
	return r.Min.X < o.Max.X && o.Min.X < r.Max.X && r.Min.Y < o.Max.Y && o.Min.Y < r.Max.Y
}

// SoilFactors holds the static environmental attributes of a cell, each in [0,1].
type SoilFactors struct {
	SoilBaseQuality float64 `json:"soil_base_quality"` // fertility
	Sunlight        float64 `json:"sunlight"`
	Nutrients       float64 `json:"nutrients"`
	PH              float64 `json:"ph"` // acidity, normalized
	OrganicMatter   float64 `json:"organic_matter"`
	Compaction      float64 `json:"compaction"`
	Salinity        float64 `json:"salinity"`
}

// Values returns the factors in file column order.
func (f SoilFactors) Values() [7]float64 {
	return [7]float64{f.SoilBaseQuality, f.Sunlight, f.Nutrients, f.PH, f.OrganicMatter, f.Compaction, f.Salinity}
}

// SoilFactorsFrom builds factors from the seven soil columns of a soil CSV row.
func SoilFactorsFrom(v [7]float64) SoilFactors {
	return SoilFactors{
		SoilBaseQuality: v[0],
		Sunlight:        v[1],
		Nutrients:       v[2],
		PH:              v[3],
		OrganicMatter:   v[4],
		Compaction:      v[5],
		Salinity:        v[6],
	}
}

// SoilTile is a single farm cell: fixed soil factors plus mutable water and crop state.
// Presentation concerns (shapes, colors, sprites) are kept by the renderer,
// keyed by tile index.
type SoilTile struct {
	Position Point   `json:"position"`
	Size     float64 `json:"size"`
	Land     int     `json:"land"` // index of the land block the tile came from

	SoilFactors

	WaterLevel float64 `json:"water_level"`

	HasCrop      bool         `json:"has_crop"`
	PlantedCrop  *CropProfile `json:"-"`
	Growth       float64      `json:"growth"`
	TimeToMature float64      `json:"time_to_mature"` // NoMaturity until growth first reaches 1
	LastQuality  float64      `json:"last_quality"`
}

// NewTile creates an unplanted tile.
func NewTile(pos Point, size float64, land int, f SoilFactors) SoilTile {
	return SoilTile{
		Position:     pos,
		Size:         size,
		Land:         land,
		SoilFactors:  f,
		TimeToMature: NoMaturity,
	}
}

// Center returns the tile's center point.
func (t *SoilTile) Center() Point {
	return Point{X: t.Position.X + t.Size/2, Y: t.Position.Y + t.Size/2}
}

// Bounds returns the tile's footprint.
func (t *SoilTile) Bounds() Rect {
	return Rect{Min: t.Position, Max: Point{X: t.Position.X + t.Size, Y: t.Position.Y + t.Size}}
}

// Matured reports whether the crop on this tile has reached full growth.
func (t *SoilTile) Matured() bool {
	return t.HasCrop && t.Growth >= 1
}

// CropName returns the planted crop's name, or "" for an empty tile.
func (t *SoilTile) CropName() string {
	if !t.HasCrop || t.PlantedCrop == nil {
		return ""
	}
	return t.PlantedCrop.Name
}

// Plant puts crop on the tile in its just-planted state: growth 0, water at
// the crop's optimum, maturity cleared, quality recomputed.
func (t *SoilTile) Plant(crop *CropProfile) {
	t.HasCrop = true
	t.PlantedCrop = crop
	t.Growth = 0
	t.TimeToMature = NoMaturity
	t.WaterLevel = Clamp(crop.OptimalWater, 0, 1)
	t.LastQuality = Quality(t, crop)
}

// Clear returns the tile to its initial unplanted state.
func (t *SoilTile) Clear() {
	t.HasCrop = false
	t.PlantedCrop = nil
	t.Growth = 0
	t.WaterLevel = 0
	t.LastQuality = 0
	t.TimeToMature = NoMaturity
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
