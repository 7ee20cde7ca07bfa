package simlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/talgya/harvestor/internal/world"
)

// minColumns is the shortest row that still carries a maturity time.
const minColumns = 6

// ReadResult is what Read produced.
type ReadResult struct {
	Records []Record
	Skipped int
}

// Load reads the log file at path.
func Load(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: simulation log %s: %v", world.ErrLoad, path, err)
	}
	defer f.Close()
	return Read(f, path)
}

// Read parses log rows from r. The first line is the header. Rows that are
// too short or carry an unparsable number are logged and skipped; the
// SoilQuality column is optional.
func Read(r io.Reader, source string) (ReadResult, error) {
	var res ReadResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				slog.Warn("skipping log row", "path", source, "line", perr.Line, "reason", perr.Err)
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("%w: simulation log %s: %v", world.ErrLoad, source, err)
		}
		if first {
			first = false
			continue
		}

		line, _ := cr.FieldPos(0)
		row, err := parseRecord(rec)
		if err != nil {
			slog.Warn("skipping log row", "path", source, "line", line, "reason", err)
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, row)
	}
	return res, nil
}

func parseRecord(rec []string) (Record, error) {
	if len(rec) < minColumns {
		return Record{}, fmt.Errorf("want at least %d fields, got %d", minColumns, len(rec))
	}
	land, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return Record{}, fmt.Errorf("land index: %w", err)
	}
	r := Record{LandIndex: land, CropName: strings.TrimSpace(rec[3])}
	if r.CropName == "" {
		return Record{}, errors.New("empty crop name")
	}

	nums := []struct {
		name  string
		field int
		dst   *float64
	}{
		{"tile x", 1, &r.TileX},
		{"tile y", 2, &r.TileY},
		{"growth", 4, &r.Growth},
		{"time to mature", 5, &r.TimeToMature},
		{"soil quality", 6, &r.SoilQuality},
	}
	for _, n := range nums {
		if n.field >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[n.field]), 64)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", n.name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, fmt.Errorf("%s: not finite", n.name)
		}
		*n.dst = v
	}
	return r, nil
}
