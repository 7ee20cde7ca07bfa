package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook.
const (
	SheetKPI   = "KPI"
	SheetCrops = "Crops"
	SheetTiles = "Tiles"
)

// WriteXLSX saves r as a workbook with KPI, Crops and Tiles sheets.
func WriteXLSX(path string, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetKPI); err != nil {
		return err
	}
	for _, name := range []string{SheetCrops, SheetTiles} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	k := r.KPIs
	kpi := [][]any{
		{"Indicator", "Value"},
		{"Rows", k.Rows},
		{"Average Crop Growth", k.AvgGrowth},
		{"Growth Variability (Std Dev)", k.GrowthStd},
		{"Average Time to Mature", k.AvgTimeToMature},
		{"Land Utilization (%)", k.LandUtilization},
		{"Average Soil Quality", k.AvgSoilQuality},
		{"High Compaction Tiles (%)", k.HighCompactionPct},
		{"High Salinity Tiles (%)", k.HighSalinityPct},
		{"Low Organic Matter Tiles (%)", k.LowOrganicMatterPct},
	}
	if len(r.Correlations) > 0 {
		kpi = append(kpi, []any{}, []any{"Soil Factor", "Correlation with Growth"})
		for _, c := range r.Correlations {
			kpi = append(kpi, []any{c.Factor, c.R})
		}
	}

	crops := [][]any{{"Crop", "Tiles", "Average Growth", "Average Time to Mature", "Average Soil Quality"}}
	for _, c := range r.Crops {
		crops = append(crops, []any{c.Name, c.Tiles, c.AvgGrowth, c.AvgTimeToMature, c.AvgSoilQuality})
	}

	tiles := [][]any{{"LandIndex", "TileX", "TileY", "CropName", "Growth", "TimeToMature", "SoilQuality", "GrowthEfficiency", "Suggestions"}}
	for _, t := range r.Tiles {
		tiles = append(tiles, []any{t.Land, t.X, t.Y, t.Crop, t.Growth, t.TimeToMature, t.SoilQuality,
			t.GrowthEfficiency, strings.Join(t.Suggestions, "; ")})
	}

	for _, s := range []struct {
		name string
		rows [][]any
	}{{SheetKPI, kpi}, {SheetCrops, crops}, {SheetTiles, tiles}} {
		if err := writeRows(f, s.name, s.rows, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, header int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, header)
}
