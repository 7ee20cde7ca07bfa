package world

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// SoilColumns is the field count of a soil CSV row: x, y and seven factors.
const SoilColumns = 9

// SoilRow is one parsed row of a soil CSV.
type SoilRow struct {
	Position Point
	SoilFactors
}

// HeaderMode selects how the first row of a soil CSV is treated.
type HeaderMode int

const (
	// HeaderAlways drops the first row unconditionally.
	HeaderAlways HeaderMode = iota
	// HeaderDetect drops the first row only if it contains letters.
	HeaderDetect
)

// SoilReadResult is what ReadSoilRows produced.
type SoilReadResult struct {
	Rows    []SoilRow
	Skipped int // malformed rows dropped with a warning
}

// ReadSoilRows parses a 9-column soil CSV. Rows with the wrong field count or
// a non-numeric field are logged and skipped; lines starting with '#' are comments.
func ReadSoilRows(r io.Reader, source string, mode HeaderMode) (SoilReadResult, error) {
	var res SoilReadResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	cr.ReuseRecord = true

	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				slog.Warn("skipping soil row", "path", source, "line", perr.Line, "reason", perr.Err)
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("%w: soil %s: %v", ErrLoad, source, err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if mode == HeaderAlways || hasLetters(rec) {
				continue
			}
		}

		row, err := parseSoilRecord(rec)
		if err != nil {
			slog.Warn("skipping soil row", "path", source, "line", line, "reason", err)
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func parseSoilRecord(rec []string) (SoilRow, error) {
	if len(rec) != SoilColumns {
		return SoilRow{}, fmt.Errorf("want %d fields, got %d", SoilColumns, len(rec))
	}
	var v [SoilColumns]float64
	for i, field := range rec {
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return SoilRow{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return SoilRow{}, fmt.Errorf("field %d: not finite", i+1)
		}
		v[i] = f
	}
	return SoilRow{
		Position:    Point{X: v[0], Y: v[1]},
		SoilFactors: SoilFactorsFrom([7]float64(v[2:])),
	}, nil
}

func hasLetters(rec []string) bool {
	for _, field := range rec {
		for _, r := range field {
			if unicode.IsLetter(r) && r != 'e' && r != 'E' {
				return true
			}
		}
	}
	return false
}

// LoadSoilMatrix reads land tiles from a soil CSV. The header row is
// optional. An empty matrix is a configuration error.
func LoadSoilMatrix(path string, tileSize float64, land int) ([]SoilTile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: soil matrix %s: %v", ErrLoad, path, err)
	}
	defer f.Close()

	res, err := ReadSoilRows(f, path, HeaderDetect)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: soil matrix %s is empty", ErrConfig, path)
	}

	tiles := make([]SoilTile, 0, len(res.Rows))
	for _, row := range res.Rows {
		tiles = append(tiles, NewTile(row.Position, tileSize, land, row.SoilFactors))
	}
	return tiles, nil
}

// LoadWaterPoints reads an (x,y) point list: the first line is a header,
// then two floats per line. Unparsable lines are skipped silently.
func LoadWaterPoints(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: water %s: %v", ErrLoad, path, err)
	}
	defer f.Close()
	return ParseWaterPoints(f)
}

// ParseWaterPoints is LoadWaterPoints over an open reader.
func ParseWaterPoints(r io.Reader) ([]Point, error) {
	var points []Point
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return points, sc.Err()
	}
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), ",", 3)
		if len(parts) < 2 {
			continue
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			continue
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: water points: %v", ErrLoad, err)
	}
	return points, nil
}
