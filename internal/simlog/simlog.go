// Package simlog writes and reads the simulation log: one CSV row per matured
// tile, appended on each export.
package simlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/talgya/harvestor/internal/world"
)

// Header is the first line of every log file.
const Header = "LandIndex,TileX,TileY,CropName,Growth,TimeToMature,SoilQuality"

// Columns is the number of fields in a log row.
const Columns = 7

// Record is one matured tile at export time.
type Record struct {
	LandIndex    int     `json:"land_index" db:"land_index"`
	TileX        float64 `json:"tile_x" db:"tile_x"`
	TileY        float64 `json:"tile_y" db:"tile_y"`
	CropName     string  `json:"crop_name" db:"crop_name"`
	Growth       float64 `json:"growth" db:"growth"`
	TimeToMature float64 `json:"time_to_mature" db:"time_to_mature"`
	SoilQuality  float64 `json:"soil_quality" db:"soil_quality"`
}

// Collect returns a record for every tile whose crop has fully grown.
// A tile that matured without a recorded time is stamped with clock.
func Collect(tiles []world.SoilTile, clock float64) []Record {
	var recs []Record
	for i := range tiles {
		t := &tiles[i]
		if !t.Matured() {
			continue
		}
		ttm := t.TimeToMature
		if ttm < 0 {
			ttm = clock
		}
		recs = append(recs, Record{
			LandIndex:    t.Land,
			TileX:        t.Position.X,
			TileY:        t.Position.Y,
			CropName:     t.CropName(),
			Growth:       t.Growth,
			TimeToMature: ttm,
			SoilQuality:  t.LastQuality,
		})
	}
	return recs
}

func (r Record) fields() []string {
	return []string{
		strconv.Itoa(r.LandIndex),
		formatFloat(r.TileX),
		formatFloat(r.TileY),
		r.CropName,
		formatFloat(r.Growth),
		formatFloat(r.TimeToMature),
		formatFloat(r.SoilQuality),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Export appends recs to the log at path, creating it if needed. The header
// is written only when the file is empty. Returns the bytes written.
func Export(path string, recs []Record) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: simulation log %s: %v", world.ErrLoad, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat simulation log: %w", err)
	}

	cw := &countingWriter{w: f}
	if err := Write(cw, recs, info.Size() == 0); err != nil {
		return cw.n, fmt.Errorf("write simulation log %s: %w", path, err)
	}
	return cw.n, f.Close()
}

// Write encodes recs as CSV rows, preceded by the header if header is set.
func Write(w io.Writer, recs []Record, header bool) error {
	if header {
		if _, err := io.WriteString(w, Header+"\n"); err != nil {
			return err
		}
	}
	cw := csv.NewWriter(w)
	for _, r := range recs {
		if err := cw.Write(r.fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Clear truncates the log at path. The next export writes a fresh header.
func Clear(path string) error {
	if err := os.Truncate(path, 0); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("clear simulation log %s: %w", path, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
