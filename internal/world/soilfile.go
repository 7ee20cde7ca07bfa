package world

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SoilHeader is the header row of a soil CSV.
const SoilHeader = "x,y,soilBaseQuality,sunlight,nutrients,pH,organicMatter,compaction,salinity"

// WriteSoilSamples writes one soil CSV row per tile, header first.
// Positions carry two decimals, the same as the simulation log, so the two
// files quantize to the same keys.
func WriteSoilSamples(w io.Writer, tiles []SoilTile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(SoilHeader, ",")); err != nil {
		return err
	}
	row := make([]string, SoilColumns)
	for i := range tiles {
		t := &tiles[i]
		row[0] = strconv.FormatFloat(t.Position.X, 'f', 2, 64)
		row[1] = strconv.FormatFloat(t.Position.Y, 'f', 2, 64)
		for j, v := range t.SoilFactors.Values() {
			row[2+j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveSoilSamples replaces the soil CSV at path with the given tiles.
func SaveSoilSamples(path string, tiles []SoilTile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: soil samples %s: %v", ErrLoad, path, err)
	}
	if err := WriteSoilSamples(f, tiles); err != nil {
		f.Close()
		return fmt.Errorf("write soil samples %s: %w", path, err)
	}
	return f.Close()
}
