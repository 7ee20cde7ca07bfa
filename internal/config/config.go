// Package config reads runtime settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "HARVESTOR_"

// Config holds the settings of the harvestor binaries.
type Config struct {
	Port     int
	AdminKey string
	DBPath   string

	CropsFile  string
	LayoutFile string
	SoilFile   string
	LogFile    string
	ReportPath string

	Seed           int64
	Precision      float64
	TickInterval   time.Duration
	Step           float64
	SnapshotEvery  uint64
	PlantMode      string
	TileSize       float64
	PondCellRadius float64

	LogLevel slog.Level
}

// Load reads .env (if present) and the environment. Unset variables take
// their defaults; malformed values are an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "error", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(Prefix + k)); v != "" {
			return v
		}
		return def
	}

	p := parser{get: get}
	snapshotEvery := p.integer("SNAPSHOT_EVERY", 3000)
	cfg := Config{
		Port:     p.integer("PORT", 8080),
		AdminKey: get("ADMIN_KEY", ""),
		DBPath:   get("DB_PATH", "data/harvestor.db"),

		CropsFile:  get("CROPS_FILE", "data/crops.txt"),
		LayoutFile: get("LAYOUT_FILE", "data/farm.layout"),
		SoilFile:   get("SOIL_FILE", "data/soil_data.csv"),
		LogFile:    get("LOG_FILE", "data/simulation_output.csv"),
		ReportPath: get("REPORT_PATH", "data/report.xlsx"),

		Seed:           int64(p.integer("SEED", 12345)),
		Precision:      p.number("PRECISION", 0.001),
		TickInterval:   p.duration("TICK_INTERVAL", 100*time.Millisecond),
		Step:           p.number("STEP", 0.1),
		SnapshotEvery:  uint64(max(snapshotEvery, 0)),
		PlantMode:      get("PLANT_MODE", "keep"),
		TileSize:       p.number("TILE_SIZE", 6),
		PondCellRadius: p.number("POND_CELL_RADIUS", 6),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		p.fail("LOG_LEVEL", err)
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.PlantMode != "keep" && cfg.PlantMode != "exclusive" {
		return Config{}, fmt.Errorf("%sPLANT_MODE: want keep or exclusive, got %q", Prefix, cfg.PlantMode)
	}
	if snapshotEvery < 0 {
		return Config{}, fmt.Errorf("%sSNAPSHOT_EVERY: want 0 (off) or more ticks, got %d", Prefix, snapshotEvery)
	}
	if !(cfg.Step > 0) || cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("%sSTEP and %sTICK_INTERVAL must be positive", Prefix, Prefix)
	}
	return cfg, nil
}

// parser records the first malformed value.
type parser struct {
	get func(k, def string) string
	err error
}

func (p *parser) fail(k string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s%s: %w", Prefix, k, err)
	}
}

func (p *parser) integer(k string, def int) int {
	v := p.get(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(k, err)
		return def
	}
	return n
}

func (p *parser) number(k string, def float64) float64 {
	v := p.get(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(k, err)
		return def
	}
	return f
}

func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := p.get(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(k, err)
		return def
	}
	return d
}
