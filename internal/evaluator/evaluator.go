// Package evaluator joins soil samples with logged simulation runs and answers
// which crop has historically done best in a region.
//
// Both datasets are keyed by a quantized position so that coordinates written
// by different stages of the pipeline still meet on the same key.
package evaluator

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/dustin/go-humanize"

	"github.com/talgya/harvestor/internal/simlog"
	"github.com/talgya/harvestor/internal/world"
)

// UnknownCrop is returned when no logged crop answers a query.
const UnknownCrop = "Unknown"

// DefaultPrecision is the quantization step of position keys.
const DefaultPrecision = 0.001

// Key is a quantized position. Both axes are kept so distinct cells never
// share a key.
type Key struct {
	X, Y int64
}

// Sample is one soil sample row.
type Sample = world.SoilRow

// sampleGeom places a sample in the spatial index.
type sampleGeom struct {
	geom.Point
	key Key
}

// Evaluator holds the two joined datasets. Each load replaces its dataset
// wholesale; a failed load leaves the previous one in place.
type Evaluator struct {
	precision float64

	mu      sync.RWMutex
	samples map[Key]Sample
	tree    *rtree.Rtree
	best    map[Key]simlog.Record
	records []simlog.Record
}

// New creates an empty evaluator. A non-positive precision uses the default.
func New(precision float64) *Evaluator {
	if !(precision > 0) || math.IsInf(precision, 0) {
		precision = DefaultPrecision
	}
	return &Evaluator{
		precision: precision,
		samples:   make(map[Key]Sample),
		tree:      rtree.NewTree(25, 50),
		best:      make(map[Key]simlog.Record),
	}
}

// Precision returns the quantization step.
func (e *Evaluator) Precision() float64 {
	return e.precision
}

// KeyOf quantizes a position.
func (e *Evaluator) KeyOf(x, y float64) Key {
	return Key{
		X: int64(math.Floor(x / e.precision)),
		Y: int64(math.Floor(y / e.precision)),
	}
}

// LoadSoilSamples replaces the sample set with the rows of a 9-column soil
// CSV. Malformed rows are skipped with a warning. Returns the number of
// distinct sample positions loaded.
func (e *Evaluator) LoadSoilSamples(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("could not open soil samples", "path", path, "error", err)
		return 0, fmt.Errorf("%w: soil samples %s: %v", world.ErrLoad, path, err)
	}
	defer f.Close()

	res, err := world.ReadSoilRows(f, path, world.HeaderAlways)
	if err != nil {
		return 0, err
	}
	n := e.SetSamples(res.Rows)
	slog.Info("soil samples loaded", "path", path,
		"samples", humanize.Comma(int64(n)), "skipped", res.Skipped)
	return n, nil
}

// SetSamples replaces the sample set. Rows that quantize to the same key keep
// the last one.
func (e *Evaluator) SetSamples(rows []Sample) int {
	samples := make(map[Key]Sample, len(rows))
	for _, r := range rows {
		samples[e.KeyOf(r.Position.X, r.Position.Y)] = r
	}

	// Insert in key order so the index shape does not depend on map order.
	keys := sortedKeys(samples)
	tree := rtree.NewTree(25, 50)
	for _, k := range keys {
		s := samples[k]
		tree.Insert(sampleGeom{Point: geom.Point{X: s.Position.X, Y: s.Position.Y}, key: k})
	}

	e.mu.Lock()
	e.samples = samples
	e.tree = tree
	e.mu.Unlock()
	return len(samples)
}

// LoadSimulationLog replaces the crop history with the records of a
// simulation log. Returns the number of distinct positions with a best crop.
func (e *Evaluator) LoadSimulationLog(path string) (int, error) {
	res, err := simlog.Load(path)
	if err != nil {
		slog.Error("could not open simulation log", "path", path, "error", err)
		return 0, err
	}
	n := e.SetRecords(res.Records)
	slog.Info("simulation log loaded", "path", path,
		"records", humanize.Comma(int64(len(res.Records))),
		"positions", humanize.Comma(int64(n)), "skipped", res.Skipped)
	return n, nil
}

// SetRecords replaces the crop history. For each position only the record
// with the lowest time to mature is kept; among equal times the later record
// wins.
func (e *Evaluator) SetRecords(recs []simlog.Record) int {
	best := make(map[Key]simlog.Record, len(recs))
	for _, r := range recs {
		k := e.KeyOf(r.TileX, r.TileY)
		if cur, ok := best[k]; !ok || r.TimeToMature <= cur.TimeToMature {
			best[k] = r
		}
	}
	all := make([]simlog.Record, len(recs))
	copy(all, recs)

	e.mu.Lock()
	e.best = best
	e.records = all
	e.mu.Unlock()
	return len(best)
}

// SampleCount returns the number of loaded sample positions.
func (e *Evaluator) SampleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.samples)
}

// RecordCount returns the number of positions with a known best crop.
func (e *Evaluator) RecordCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.best)
}

// CropWithLowestMaturity returns the fastest-maturing crop logged at (x,y),
// or UnknownCrop.
func (e *Evaluator) CropWithLowestMaturity(x, y float64) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cropAt(e.KeyOf(x, y))
}

func (e *Evaluator) cropAt(k Key) string {
	if r, ok := e.best[k]; ok {
		return r.CropName
	}
	return UnknownCrop
}

// BestCropInRegion tallies the best crop of every sample inside the rectangle
// spanned by a and b (bounds inclusive) and returns the most frequent one.
// Samples with no logged crop count toward UnknownCrop. Equal counts go to
// the alphabetically first name. An empty region yields UnknownCrop.
func (e *Evaluator) BestCropInRegion(a, b world.Point) string {
	name, _ := e.Tally(a, b)
	return name
}

// Tally is BestCropInRegion that also returns the per-crop counts.
func (e *Evaluator) Tally(a, b world.Point) (string, map[string]int) {
	region := world.NewRect(a, b)
	counts := make(map[string]int)

	e.mu.RLock()
	for _, k := range e.samplesIn(region) {
		counts[e.cropAt(k)]++
	}
	e.mu.RUnlock()

	return pickBest(counts), counts
}

// samplesIn returns the keys of samples inside region. The index search is
// padded so samples on the boundary are always candidates; the exact
// inclusive test decides.
func (e *Evaluator) samplesIn(region world.Rect) []Key {
	pad := e.precision
	box := &geom.Bounds{
		Min: geom.Point{X: region.Min.X - pad, Y: region.Min.Y - pad},
		Max: geom.Point{X: region.Max.X + pad, Y: region.Max.Y + pad},
	}
	var keys []Key
	for _, g := range e.tree.SearchIntersect(box) {
		s, ok := g.(sampleGeom)
		if !ok {
			continue
		}
		if region.Contains(world.Point{X: s.X, Y: s.Y}) {
			keys = append(keys, s.key)
		}
	}
	return keys
}

func pickBest(counts map[string]int) string {
	best, top := UnknownCrop, 0
	for name, n := range counts {
		if n > top || (n == top && name < best) {
			best, top = name, n
		}
	}
	return best
}

// Row is a logged record joined with the soil sample at its position.
type Row struct {
	Record simlog.Record
	Sample Sample
}

// Joined returns every loaded log record that has a soil sample at its
// position, in log order.
func (e *Evaluator) Joined() []Row {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var rows []Row
	for _, r := range e.records {
		s, ok := e.samples[e.KeyOf(r.TileX, r.TileY)]
		if !ok {
			continue
		}
		rows = append(rows, Row{Record: r, Sample: s})
	}
	return rows
}

func sortedKeys(m map[Key]Sample) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}
