package world

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ErrLoad reports a source file that could not be opened or read.
var ErrLoad = errors.New("load failed")

// ErrConfig reports data that parsed but would make the simulation unsound.
var ErrConfig = errors.New("invalid configuration")

// Color is a crop's display color. The simulation never reads it.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// CropProfile holds the static parameters of a crop species.
// Profiles are immutable once loaded and shared by pointer across tiles.
type CropProfile struct {
	Name           string  `json:"name"`
	BaseGrowthRate float64 `json:"base_growth_rate"`
	OptimalWater   float64 `json:"optimal_water"` // 0..1
	Tolerance      float64 `json:"tolerance"`     // allowed deviation from OptimalWater
	DisplayColor   Color   `json:"display_color"`
}

// Validate checks the invariants the growth model divides by.
func (c *CropProfile) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: crop has no name", ErrConfig)
	case !(c.BaseGrowthRate > 0):
		return fmt.Errorf("%w: crop %q base growth rate must be > 0, got %g", ErrConfig, c.Name, c.BaseGrowthRate)
	case !(c.Tolerance > 0):
		return fmt.Errorf("%w: crop %q tolerance must be > 0, got %g", ErrConfig, c.Name, c.Tolerance)
	case !(c.OptimalWater >= 0 && c.OptimalWater <= 1):
		return fmt.Errorf("%w: crop %q optimal water must be in [0,1], got %g", ErrConfig, c.Name, c.OptimalWater)
	}
	return nil
}

// CropBook is the set of loaded crops, in file order.
type CropBook struct {
	crops  []*CropProfile
	byName map[string]*CropProfile
}

// NewCropBook validates crops and indexes them by name.
func NewCropBook(crops []*CropProfile) (*CropBook, error) {
	b := &CropBook{byName: make(map[string]*CropProfile, len(crops))}
	for _, c := range crops {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := b.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate crop %q", ErrConfig, c.Name)
		}
		b.byName[c.Name] = c
		b.crops = append(b.crops, c)
	}
	return b, nil
}

// Get returns the crop with the given name.
func (b *CropBook) Get(name string) (*CropProfile, bool) {
	c, ok := b.byName[name]
	return c, ok
}

// All returns the crops in load order.
func (b *CropBook) All() []*CropProfile {
	return b.crops
}

// Len returns the number of crops.
func (b *CropBook) Len() int {
	return len(b.crops)
}

// LoadCrops reads a crop definition file: one crop per line,
// "name baseGrowthRate r g b optimalWater tolerance", '#' starts a comment line.
func LoadCrops(path string) (*CropBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: crops %s: %v", ErrLoad, path, err)
	}
	defer f.Close()
	return ParseCrops(f, path)
}

// ParseCrops parses crop definitions from r. Malformed lines are skipped with
// a warning; an invalid profile or an empty result fails the whole load.
func ParseCrops(r io.Reader, source string) (*CropBook, error) {
	var crops []*CropProfile
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		crop, err := parseCropLine(line)
		if err != nil {
			slog.Warn("skipping crop line", "path", source, "line", lineNo, "reason", err)
			continue
		}
		crops = append(crops, crop)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: crops %s: %v", ErrLoad, source, err)
	}
	if len(crops) == 0 {
		return nil, fmt.Errorf("%w: no crops defined in %s", ErrConfig, source)
	}
	return NewCropBook(crops)
}

func parseCropLine(line string) (*CropProfile, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return nil, fmt.Errorf("want 7 fields, got %d", len(fields))
	}
	rate, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("growth rate: %w", err)
	}
	var rgb [3]uint8
	for i := range rgb {
		v, err := strconv.ParseUint(fields[2+i], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("color channel %d: %w", i, err)
		}
		rgb[i] = uint8(v)
	}
	optimal, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return nil, fmt.Errorf("optimal water: %w", err)
	}
	tolerance, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return nil, fmt.Errorf("tolerance: %w", err)
	}
	return &CropProfile{
		Name:           fields[0],
		BaseGrowthRate: rate,
		OptimalWater:   optimal,
		Tolerance:      tolerance,
		DisplayColor:   Color{R: rgb[0], G: rgb[1], B: rgb[2]},
	}, nil
}
