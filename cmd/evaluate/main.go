// Command evaluate answers best-crop queries offline from a soil sample file
// and a simulation log, and optionally writes the farm report workbook.
//
//	evaluate -soil soil_data.csv -log simulation_output.csv -region 0,0,50,50 -xlsx report.xlsx
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/talgya/harvestor/internal/config"
	"github.com/talgya/harvestor/internal/evaluator"
	"github.com/talgya/harvestor/internal/persistence"
	"github.com/talgya/harvestor/internal/report"
	"github.com/talgya/harvestor/internal/simlog"
	"github.com/talgya/harvestor/internal/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	soil := flag.String("soil", cfg.SoilFile, "soil sample CSV")
	logFile := flag.String("log", cfg.LogFile, "simulation log CSV")
	dbPath := flag.String("db", "", "also read run history from this database")
	precision := flag.Float64("precision", cfg.Precision, "coordinate quantization step")
	region := flag.String("region", "", "x0,y0,x1,y1 rectangle to query")
	at := flag.String("at", "", "x,y position to query")
	xlsx := flag.String("xlsx", "", "write the report workbook here")
	quiet := flag.Bool("q", false, "only log warnings")
	flag.Parse()

	level := cfg.LogLevel
	if *quiet {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*soil, *logFile, *dbPath, *precision, *region, *at, *xlsx); err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
}

func run(soil, logFile, dbPath string, precision float64, region, at, xlsx string) error {
	eval := evaluator.New(precision)
	if _, err := eval.LoadSoilSamples(soil); err != nil {
		return err
	}
	if _, err := eval.LoadSimulationLog(logFile); err != nil {
		return err
	}
	if dbPath != "" {
		if err := mergeHistory(eval, logFile, dbPath); err != nil {
			return err
		}
	}

	if region != "" {
		v, err := parseCoords(region, 4)
		if err != nil {
			return fmt.Errorf("-region: %w", err)
		}
		best, counts := eval.Tally(world.Point{X: v[0], Y: v[1]}, world.Point{X: v[2], Y: v[3]})
		fmt.Printf("best crop in (%g,%g)-(%g,%g): %s\n", v[0], v[1], v[2], v[3], best)
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-12s %d\n", name, counts[name])
		}
	}
	if at != "" {
		v, err := parseCoords(at, 2)
		if err != nil {
			return fmt.Errorf("-at: %w", err)
		}
		fmt.Printf("fastest crop at (%g,%g): %s\n", v[0], v[1], eval.CropWithLowestMaturity(v[0], v[1]))
	}

	rep := report.Build(eval.Joined())
	if err := report.WriteText(os.Stdout, rep); err != nil {
		return err
	}
	if xlsx != "" {
		if err := report.WriteXLSX(xlsx, rep); err != nil {
			return err
		}
		slog.Info("report written", "path", xlsx, "rows", rep.KPIs.Rows)
	}
	return nil
}

// mergeHistory adds the persisted run records to the log's records.
func mergeHistory(eval *evaluator.Evaluator, logFile, dbPath string) error {
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	history, err := db.LoadRecords()
	if err != nil {
		return fmt.Errorf("read run history: %w", err)
	}
	res, err := simlog.Load(logFile)
	if err != nil {
		return err
	}
	n := eval.SetRecords(append(history, res.Records...))
	slog.Info("merged run history", "history", len(history), "positions", n)
	return nil
}

func parseCoords(s string, want int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("want %d comma-separated numbers, got %q", want, s)
	}
	out := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
