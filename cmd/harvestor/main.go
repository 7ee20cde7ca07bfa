// Command harvestor runs the farm growth simulation behind an HTTP control
// plane, resuming any planted state saved by a previous run.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/harvestor/internal/api"
	"github.com/talgya/harvestor/internal/config"
	"github.com/talgya/harvestor/internal/engine"
	"github.com/talgya/harvestor/internal/evaluator"
	"github.com/talgya/harvestor/internal/persistence"
	"github.com/talgya/harvestor/internal/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Harvestor farm simulation",
		"seed", cfg.Seed,
		"step", cfg.Step,
		"interval", cfg.TickInterval,
		"plant_mode", cfg.PlantMode,
	)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Crops and layout ──────────────────────────────────────────────
	crops, err := world.LoadCrops(cfg.CropsFile)
	if err != nil {
		slog.Error("failed to load crops", "path", cfg.CropsFile, "error", err)
		os.Exit(1)
	}
	for _, c := range crops.All() {
		slog.Info("crop", "name", c.Name, "rate", c.BaseGrowthRate,
			"optimal_water", c.OptimalWater, "tolerance", c.Tolerance)
	}

	layoutOpts := world.DefaultLayoutOptions()
	layoutOpts.TileSize = cfg.TileSize
	layoutOpts.PondCellRadius = cfg.PondCellRadius
	layoutOpts.Gen.Seed = cfg.Seed

	layout, err := world.LoadLayout(cfg.LayoutFile, layoutOpts)
	if err != nil {
		slog.Error("failed to load layout", "path", cfg.LayoutFile, "error", err)
		os.Exit(1)
	}
	slog.Info("layout loaded", "path", cfg.LayoutFile, "farm", layout.String())

	// ── Evaluator ─────────────────────────────────────────────────────
	eval := evaluator.New(cfg.Precision)
	if recs, err := db.LoadRecords(); err != nil {
		slog.Warn("could not read persisted runs", "error", err)
	} else if len(recs) > 0 {
		n := eval.SetRecords(recs)
		slog.Info("evaluator seeded from run history",
			"records", humanize.Comma(int64(len(recs))), "positions", humanize.Comma(int64(n)))
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(layout, crops, eval, engine.Options{
		Params:  engine.DefaultGrowthParams(),
		Seed:    cfg.Seed,
		Mode:    engine.ParsePlantMode(cfg.PlantMode),
		LogPath: cfg.LogFile,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	// ── Soil samples ──────────────────────────────────────────────────
	// A missing soil file is generated from the farm itself, and kept in
	// step with later layout swaps.
	generateSoil := false
	if _, err := os.Stat(cfg.SoilFile); errors.Is(err, fs.ErrNotExist) {
		os.MkdirAll(filepath.Dir(cfg.SoilFile), 0755)
		n, err := sim.ExportSoil(cfg.SoilFile)
		if err != nil {
			slog.Warn("could not write soil samples", "path", cfg.SoilFile, "error", err)
		} else {
			generateSoil = true
			slog.Info("soil samples generated from layout", "path", cfg.SoilFile, "rows", humanize.Comma(int64(n)))
		}
	}
	if n, err := eval.LoadSoilSamples(cfg.SoilFile); err != nil {
		slog.Warn("evaluator starts without soil samples", "error", err)
	} else {
		slog.Info("soil samples loaded", "path", cfg.SoilFile, "samples", humanize.Comma(int64(n)))
	}

	if db.HasFarmState() {
		slog.Info("found saved farm state, loading...")
		states, clock, err := db.LoadFarmState()
		if err != nil {
			slog.Error("failed to load farm state", "error", err)
			os.Exit(1)
		}
		restored := sim.RestoreTiles(states, clock)
		slog.Info("farm state restored",
			"tiles", restored,
			"skipped", len(states)-restored,
			"sim_time", engine.SimTime(clock),
		)
	}

	eng := engine.NewEngine()
	eng.Interval = cfg.TickInterval
	eng.Step = cfg.Step
	eng.TicksPerSnapshot = cfg.SnapshotEvery

	eng.OnTick = func(_ uint64, dt float64) { sim.Advance(dt) }
	eng.OnReport = sim.Report
	eng.OnSnapshot = func(uint64) {
		if err := db.SaveFarmState(sim); err != nil {
			slog.Error("periodic save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("HARVESTOR_ADMIN_KEY not set; admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:          sim,
		Eng:          eng,
		DB:           db,
		Port:         cfg.Port,
		AdminKey:     cfg.AdminKey,
		SoilFile:     cfg.SoilFile,
		GenerateSoil: generateSoil,
		ReportPath:   cfg.ReportPath,
		Layout:       layoutOpts,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nHarvestor is ready: %s, %d crops.\n", layout.String(), crops.Len())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	if c := sim.Clock(); c > 0 {
		fmt.Printf("Resuming at %s\n", engine.SimTime(c))
	}
	fmt.Println("Farm is paused; POST /api/v1/simulate {\"on\": true} to grow. (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveFarmState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Farm state saved.")
}
