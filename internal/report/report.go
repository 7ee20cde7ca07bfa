// Package report summarises joined maturity records and soil samples into
// farm KPIs, per-crop figures and per-tile agronomy suggestions.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/harvestor/internal/evaluator"
)

// Soil thresholds shared by the KPIs and the suggestions.
const (
	SuitableQuality = 0.4 // logged SoilQuality above this counts as usable land
	HighCompaction  = 0.7
	HighSalinity    = 0.7
	LowOrganic      = 0.2
	LowFactor       = 0.4
	HighFactor      = 0.7
	HighPH          = 0.6
	ExpectedGrowth  = 0.8 // growth below SoilQuality times this is flagged
)

// KPIs are the farm-wide indicators.
type KPIs struct {
	Rows                int     `json:"rows"`
	AvgGrowth           float64 `json:"avg_growth"`
	GrowthStd           float64 `json:"growth_std"`
	AvgTimeToMature     float64 `json:"avg_time_to_mature"`
	LandUtilization     float64 `json:"land_utilization"` // percent
	AvgSoilQuality      float64 `json:"avg_soil_quality"`
	HighCompactionPct   float64 `json:"high_compaction_pct"`
	HighSalinityPct     float64 `json:"high_salinity_pct"`
	LowOrganicMatterPct float64 `json:"low_organic_matter_pct"`
}

// CropSummary aggregates the rows of one crop.
type CropSummary struct {
	Name            string  `json:"name"`
	Tiles           int     `json:"tiles"`
	AvgGrowth       float64 `json:"avg_growth"`
	AvgTimeToMature float64 `json:"avg_time_to_mature"`
	AvgSoilQuality  float64 `json:"avg_soil_quality"`
}

// Tile is one joined row with its derived figures.
type Tile struct {
	Land             int      `json:"land"`
	X                float64  `json:"x"`
	Y                float64  `json:"y"`
	Crop             string   `json:"crop"`
	Growth           float64  `json:"growth"`
	TimeToMature     float64  `json:"time_to_mature"`
	SoilQuality      float64  `json:"soil_quality"`
	GrowthEfficiency float64  `json:"growth_efficiency"`
	Suggestions      []string `json:"suggestions"`
}

// Correlation is the Pearson correlation of one soil factor with growth.
type Correlation struct {
	Factor string  `json:"factor"`
	R      float64 `json:"r"`
}

// Report is the full evaluation of one dataset.
type Report struct {
	KPIs         KPIs          `json:"kpis"`
	Crops        []CropSummary `json:"crops"`
	Tiles        []Tile        `json:"tiles"`
	Correlations []Correlation `json:"correlations"`
}

var factorNames = [7]string{"soilBaseQuality", "sunlight", "nutrients", "pH", "organicMatter", "compaction", "salinity"}

// Build evaluates rows. An empty input yields a zero report.
func Build(rows []evaluator.Row) Report {
	var r Report
	n := len(rows)
	r.KPIs.Rows = n
	if n == 0 {
		return r
	}

	growth := make([]float64, n)
	ttm := make([]float64, n)
	base := make([]float64, n)
	factors := make([][]float64, len(factorNames))
	for i := range factors {
		factors[i] = make([]float64, n)
	}
	var suitable, compacted, saline, barren int

	for i, row := range rows {
		rec, s := row.Record, row.Sample
		growth[i] = rec.Growth
		ttm[i] = rec.TimeToMature
		base[i] = s.SoilBaseQuality
		for j, v := range s.Values() {
			factors[j][i] = v
		}
		if rec.SoilQuality > SuitableQuality {
			suitable++
		}
		if s.Compaction > HighCompaction {
			compacted++
		}
		if s.Salinity > HighSalinity {
			saline++
		}
		if s.OrganicMatter < LowOrganic {
			barren++
		}
		r.Tiles = append(r.Tiles, Tile{
			Land:             rec.LandIndex,
			X:                rec.TileX,
			Y:                rec.TileY,
			Crop:             rec.CropName,
			Growth:           rec.Growth,
			TimeToMature:     rec.TimeToMature,
			SoilQuality:      rec.SoilQuality,
			GrowthEfficiency: efficiency(rec.Growth, rec.SoilQuality),
			Suggestions:      Suggestions(row),
		})
	}

	pct := func(c int) float64 { return float64(c) / float64(n) * 100 }
	r.KPIs.AvgGrowth = stat.Mean(growth, nil)
	r.KPIs.GrowthStd = stdDev(growth)
	r.KPIs.AvgTimeToMature = floats.Sum(ttm) / float64(n)
	r.KPIs.LandUtilization = pct(suitable)
	r.KPIs.AvgSoilQuality = stat.Mean(base, nil)
	r.KPIs.HighCompactionPct = pct(compacted)
	r.KPIs.HighSalinityPct = pct(saline)
	r.KPIs.LowOrganicMatterPct = pct(barren)

	r.Crops = summarizeCrops(rows)
	r.Correlations = correlate(factors, growth)
	return r
}

// Suggestions returns the agronomy advice for one tile, in a fixed order.
func Suggestions(row evaluator.Row) []string {
	s, rec := row.Sample, row.Record
	var out []string
	switch {
	case s.SoilBaseQuality < LowFactor:
		out = append(out, "Add compost / improve fertility")
	case s.SoilBaseQuality > HighFactor:
		out = append(out, "Ideal soil")
	}
	switch {
	case s.Nutrients < LowFactor:
		out = append(out, "Apply targeted fertilizer")
	case s.Nutrients > HighFactor:
		out = append(out, "No extra fertilization needed")
	}
	switch {
	case s.PH < LowFactor:
		out = append(out, "Apply lime to raise pH")
	case s.PH > HighPH:
		out = append(out, "Consider acid-tolerant crops")
	}
	if s.OrganicMatter < LowOrganic {
		out = append(out, "Add compost or cover crops")
	}
	if s.Compaction > HighCompaction {
		out = append(out, "Aerate or till soil")
	}
	if s.Salinity > HighSalinity {
		out = append(out, "Use salt-tolerant crops or leach soil")
	}
	if s.Sunlight < LowFactor {
		out = append(out, "Consider shade-tolerant crops")
	}
	if rec.Growth < rec.SoilQuality*ExpectedGrowth {
		out = append(out, "Growth below expected; investigate limiting factors")
	}
	return out
}

// efficiency is growth per unit of soil quality; zero quality yields 0.
func efficiency(growth, quality float64) float64 {
	if quality <= 0 {
		return 0
	}
	return growth / quality
}

// stdDev is the sample standard deviation, 0 below two values.
func stdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

func summarizeCrops(rows []evaluator.Row) []CropSummary {
	type acc struct{ growth, ttm, quality []float64 }
	by := make(map[string]*acc)
	for _, row := range rows {
		a := by[row.Record.CropName]
		if a == nil {
			a = &acc{}
			by[row.Record.CropName] = a
		}
		a.growth = append(a.growth, row.Record.Growth)
		a.ttm = append(a.ttm, row.Record.TimeToMature)
		a.quality = append(a.quality, row.Record.SoilQuality)
	}

	out := make([]CropSummary, 0, len(by))
	for name, a := range by {
		out = append(out, CropSummary{
			Name:            name,
			Tiles:           len(a.growth),
			AvgGrowth:       stat.Mean(a.growth, nil),
			AvgTimeToMature: stat.Mean(a.ttm, nil),
			AvgSoilQuality:  stat.Mean(a.quality, nil),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// correlate ranks soil factors by correlation with growth, strongest
// positive first. Factors with no variance are left out.
func correlate(factors [][]float64, growth []float64) []Correlation {
	if len(growth) < 2 {
		return nil
	}
	var out []Correlation
	for i, x := range factors {
		c := stat.Correlation(x, growth, nil)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		out = append(out, Correlation{Factor: factorNames[i], R: c})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].R > out[j].R })
	return out
}

// WriteText prints the KPIs and crop summary in the dashboard's layout.
func WriteText(w io.Writer, r Report) error {
	k := r.KPIs
	lines := []string{
		"Key Performance Indicators",
		fmt.Sprintf("  Average Crop Growth: %.2f", k.AvgGrowth),
		fmt.Sprintf("  Growth Variability (Std Dev): %.2f", k.GrowthStd),
		fmt.Sprintf("  Average Time to Mature: %.1f", k.AvgTimeToMature),
		fmt.Sprintf("  Land Utilization (%% tiles suitable): %.1f%%", k.LandUtilization),
		fmt.Sprintf("  Average Soil Quality: %.2f", k.AvgSoilQuality),
		fmt.Sprintf("  High Compaction Tiles (%%): %.1f%%", k.HighCompactionPct),
		fmt.Sprintf("  High Salinity Tiles (%%): %.1f%%", k.HighSalinityPct),
		fmt.Sprintf("  Low Organic Matter Tiles (%%): %.1f%%", k.LowOrganicMatterPct),
	}
	if len(r.Crops) > 0 {
		lines = append(lines, "Crops")
		for _, c := range r.Crops {
			lines = append(lines, fmt.Sprintf("  %-12s tiles=%d growth=%.2f ttm=%.1f quality=%.2f",
				c.Name, c.Tiles, c.AvgGrowth, c.AvgTimeToMature, c.AvgSoilQuality))
		}
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
