package world

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Layout is a loaded farm: its tiles and the water bodies feeding them.
// A layout is fixed for a session and replaced wholesale on reload.
type Layout struct {
	Tiles  []SoilTile  `json:"tiles"`
	Bodies []WaterBody `json:"bodies"`
	Lands  int         `json:"lands"` // number of land blocks
}

// LayoutOptions controls how layout directives are turned into tiles and bodies.
type LayoutOptions struct {
	TileSize       float64 // edge length of every tile
	PondCellRadius float64 // feeding radius of each cell of an irregular pond
	Gen            GenConfig
}

// DefaultLayoutOptions returns the options used when nothing is configured.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		TileSize:       6,
		PondCellRadius: 6,
		Gen:            DefaultGenConfig(),
	}
}

// LoadLayout reads a layout file. Each non-comment line is one directive:
//
//	LandFile <soil.csv>      land tiles from a soil matrix
//	Land <cx> <cy> <radius>  generated circular land block
//	PondFile <water.csv>     irregular pond from an (x,y) point list
//	Pond <cx> <cy> <radius>  circular pond
//
// Relative paths resolve against the layout file's directory.
// The result is validated before it is returned.
func LoadLayout(path string, opts LayoutOptions) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: layout %s: %v", ErrLoad, path, err)
	}
	defer f.Close()
	return ParseLayout(f, filepath.Dir(path), opts)
}

// ParseLayout is LoadLayout over an open reader; dir anchors relative paths.
func ParseLayout(r io.Reader, dir string, opts LayoutOptions) (*Layout, error) {
	if !(opts.TileSize > 0) {
		return nil, fmt.Errorf("%w: tile size must be > 0, got %g", ErrConfig, opts.TileSize)
	}

	l := &Layout{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if err := l.apply(fields, dir, opts); err != nil {
			return nil, fmt.Errorf("layout line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: layout: %v", ErrLoad, err)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Layout) apply(fields []string, dir string, opts LayoutOptions) error {
	directive, args := fields[0], fields[1:]
	switch directive {
	case "LandFile":
		if len(args) != 1 {
			return fmt.Errorf("%w: LandFile wants 1 argument, got %d", ErrConfig, len(args))
		}
		tiles, err := LoadSoilMatrix(resolve(dir, args[0]), opts.TileSize, l.Lands)
		if err != nil {
			return err
		}
		l.Tiles = append(l.Tiles, tiles...)
		l.Lands++

	case "Land":
		v, err := parseFloats(directive, args, 3)
		if err != nil {
			return err
		}
		tiles := GenerateLand(opts.Gen, Point{X: v[0], Y: v[1]}, v[2], opts.TileSize, l.Lands)
		if len(tiles) == 0 {
			slog.Warn("land block holds no whole tile", "center_x", v[0], "center_y", v[1], "radius", v[2])
		}
		l.Tiles = append(l.Tiles, tiles...)
		l.Lands++

	case "PondFile":
		if len(args) != 1 {
			return fmt.Errorf("%w: PondFile wants 1 argument, got %d", ErrConfig, len(args))
		}
		points, err := LoadWaterPoints(resolve(dir, args[0]))
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return fmt.Errorf("%w: pond file %s has no points", ErrConfig, args[0])
		}
		l.Bodies = append(l.Bodies, NewIrregularBody(points, opts.TileSize, opts.PondCellRadius))

	case "Pond":
		v, err := parseFloats(directive, args, 3)
		if err != nil {
			return err
		}
		l.Bodies = append(l.Bodies, NewPond(Point{X: v[0], Y: v[1]}, v[2]))

	default:
		return fmt.Errorf("%w: unknown directive %q", ErrConfig, directive)
	}
	return nil
}

func parseFloats(directive string, args []string, want int) ([]float64, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%w: %s wants %d arguments, got %d", ErrConfig, directive, want, len(args))
	}
	v := make([]float64, want)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %v", ErrConfig, directive, i+1, err)
		}
		v[i] = f
	}
	return v, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate rejects layouts the growth model cannot run safely.
func (l *Layout) Validate() error {
	if len(l.Tiles) == 0 {
		return fmt.Errorf("%w: layout has no tiles", ErrConfig)
	}
	seen := make(map[Point]struct{}, len(l.Tiles))
	for i := range l.Tiles {
		t := &l.Tiles[i]
		if !(t.Size > 0) {
			return fmt.Errorf("%w: tile at (%.2f, %.2f) size must be > 0", ErrConfig, t.Position.X, t.Position.Y)
		}
		if _, dup := seen[t.Position]; dup {
			return fmt.Errorf("%w: duplicate tile at (%.2f, %.2f)", ErrConfig, t.Position.X, t.Position.Y)
		}
		seen[t.Position] = struct{}{}
		for _, v := range t.Values() {
			if !(v >= 0 && v <= 1) {
				return fmt.Errorf("%w: tile at (%.2f, %.2f) soil factor %g outside [0,1]",
					ErrConfig, t.Position.X, t.Position.Y, v)
			}
		}
	}
	for i := range l.Bodies {
		if err := l.Bodies[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String summarizes the layout for log lines.
func (l *Layout) String() string {
	return fmt.Sprintf("%d tiles in %d lands, %d water bodies", len(l.Tiles), l.Lands, len(l.Bodies))
}
