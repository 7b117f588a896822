// Command debflow runs two-phase debris-flow simulations over synthetic
// slopes or DEM rasters and exports hazard-mapping products.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"debflow/internal/config"
	"debflow/internal/flow"
	"debflow/internal/results"
	"debflow/internal/solver"
	"debflow/internal/sweep"
)

const version = "0.1.0"

// flagKeys maps CLI flag names onto run-config paths for the koanf layer.
// Flags without an entry stay CLI-only.
var flagKeys = map[string]string{
	"dem":             "terrain.dem",
	"rows":            "terrain.rows",
	"cols":            "terrain.cols",
	"cell-size":       "terrain.cell_size",
	"slope-angle":     "terrain.slope_angle",
	"channel":         "terrain.channel",
	"release-row":     "release.row",
	"release-col":     "release.col",
	"release-radius":  "release.radius",
	"release-height":  "release.height",
	"solid-fraction":  "release.solid_fraction",
	"cfl":             "solver.cfl",
	"max-timestep":    "solver.max_timestep",
	"limiter":         "solver.flux_limiter",
	"boundary":        "solver.boundary",
	"t-end":           "t_end",
	"output-interval": "output_interval",
	"output":          "output_dir",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "debflow",
		Short:   "Two-phase mass-flow simulation tool",
		Version: version,
	}
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the debflow version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "debflow", version)
		},
	})
	return root
}

// addScenarioFlags defines the flags shared by every command that sets up a
// run: terrain source, release geometry, physics-independent solver knobs
// and the simulated time window.
func addScenarioFlags(f *pflag.FlagSet) {
	f.StringP("config", "c", "", "YAML run configuration file")
	f.BoolP("verbose", "v", false, "enable debug logging")
	f.String("dem", "", "DEM file; omit to use a synthetic slope")
	f.Int("rows", 80, "synthetic terrain rows")
	f.Int("cols", 60, "synthetic terrain columns")
	f.Float64("cell-size", 10, "cell size in meters")
	f.Float64("slope-angle", 25, "synthetic slope angle in degrees")
	f.Bool("channel", true, "carve a channel into the synthetic slope")
	f.Int("release-row", 15, "release zone center row")
	f.Int("release-col", 30, "release zone center column")
	f.Int("release-radius", 8, "release zone radius in cells")
	f.Float64("release-height", 5, "release zone peak height in meters")
	f.Float64("solid-fraction", 0.7, "solid fraction of the release volume")
	f.Float64("cfl", 0.4, "CFL number in (0, 1]")
	f.Float64("max-timestep", 0.5, "maximum timestep in seconds")
	f.String("limiter", "minmod", "flux limiter: minmod, superbee or vanleer")
	f.String("boundary", "outflow", "boundary treatment: outflow or reflective")
	f.Float64("t-end", 30, "simulation end time in seconds")
	f.Float64("output-interval", 1, "snapshot interval in seconds")
}

func newLogger(flags *pflag.FlagSet) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a debris-flow simulation",
		Long:  "Run a simulation on a synthetic slope or a DEM file (ESRI ASCII grid).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Flags())
		},
	}
	addScenarioFlags(cmd.Flags())
	cmd.Flags().Bool("no-progress", false, "disable the progress line")
	cmd.Flags().StringP("output", "o", "./output", "output directory")
	return cmd
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep Voellmy friction parameters over one scenario",
		Long: "Run the configured scenario for every combination of the given " +
			"mu and xi values and rank the outcomes, optionally against an " +
			"observed runout distance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Flags())
		},
	}
	addScenarioFlags(cmd.Flags())
	f := cmd.Flags()
	f.Float64Slice("mu", []float64{0.1, 0.15, 0.2, 0.3}, "Coulomb friction values to try")
	f.Float64Slice("xi", []float64{200, 500, 1000}, "turbulent friction values to try")
	f.Float64("target-runout", 0, "observed runout in meters; ranks by closeness when set")
	f.Int("workers", 0, "parallel runs; 0 means all CPUs")
	f.Int("top", 10, "number of ranked candidates to print; 0 prints all")
	return cmd
}

// printLimiter throttles progress-line redraws to a fixed wall-clock rate.
type printLimiter struct {
	interval time.Duration
	last     time.Time
}

func (p *printLimiter) Allow() bool {
	now := time.Now()
	if now.Sub(p.last) < p.interval {
		return false
	}
	p.last = now
	return true
}

func runSimulate(flags *pflag.FlagSet) error {
	noProgress, _ := flags.GetBool("no-progress")
	cfgFile, _ := flags.GetString("config")
	log := newLogger(flags)

	cfg, err := config.Load(cfgFile, flags, flagKeys)
	if err != nil {
		return err
	}

	ter, err := cfg.BuildTerrain()
	if err != nil {
		return err
	}
	log.Info("terrain ready", "rows", ter.Rows, "cols", ter.Cols, "cell_size", ter.CellSize)

	model, err := flow.NewModel(cfg.FlowParameters())
	if err != nil {
		return err
	}
	sol, err := solver.New(ter, model, cfg.SolverConfig())
	if err != nil {
		return err
	}

	state := flow.NewState(ter.Rows, ter.Cols)
	release, err := ter.CreateReleaseZone(cfg.Release.Row, cfg.Release.Col, cfg.Release.Radius, cfg.Release.Height)
	if err != nil {
		return err
	}
	if err := state.SeedRelease(release, cfg.Release.SolidFraction); err != nil {
		return err
	}
	log.Info("release seeded",
		"center_row", cfg.Release.Row, "center_col", cfg.Release.Col,
		"radius", cfg.Release.Radius, "volume_m3", state.TotalVolume(ter.CellSize))

	if !noProgress {
		lim := &printLimiter{interval: 50 * time.Millisecond}
		sol.Progress = func(progress, t float64, step int) {
			if progress < 1 && !lim.Allow() {
				return
			}
			const barLen = 40
			filled := int(barLen * progress)
			bar := strings.Repeat("#", filled) + strings.Repeat("-", barLen-filled)
			fmt.Fprintf(os.Stderr, "\r[%s] %5.1f%% t=%6.1fs step=%d", bar, progress*100, t, step)
		}
	}

	snaps, err := sol.RunSimulation(state, cfg.TEnd, cfg.OutputInterval)
	if !noProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	log.Info("simulation complete", "snapshots", len(snaps))

	sum, err := results.Collect(ter, model, snaps)
	if err != nil {
		return err
	}
	exporter := results.NewExporter(cfg.OutputDir, ter)
	written, err := exporter.Export(sum)
	if err != nil {
		return err
	}
	log.Info("results exported", "dir", cfg.OutputDir, "files", len(written))

	printSummary(sum, cfg.TEnd)
	return nil
}

func runSweep(flags *pflag.FlagSet) error {
	cfgFile, _ := flags.GetString("config")
	log := newLogger(flags)

	cfg, err := config.Load(cfgFile, flags, flagKeys)
	if err != nil {
		return err
	}

	ter, err := cfg.BuildTerrain()
	if err != nil {
		return err
	}
	release, err := ter.CreateReleaseZone(cfg.Release.Row, cfg.Release.Col, cfg.Release.Radius, cfg.Release.Height)
	if err != nil {
		return err
	}

	mu, _ := flags.GetFloat64Slice("mu")
	xi, _ := flags.GetFloat64Slice("xi")
	target, _ := flags.GetFloat64("target-runout")
	workers, _ := flags.GetInt("workers")
	top, _ := flags.GetInt("top")

	sc := sweep.Scenario{
		Terrain:        ter,
		Params:         cfg.FlowParameters(),
		Solver:         cfg.SolverConfig(),
		Release:        release,
		SolidFraction:  cfg.Release.SolidFraction,
		TEnd:           cfg.TEnd,
		OutputInterval: cfg.OutputInterval,
	}
	plan := sweep.Plan{Mu: mu, Xi: xi, TargetRunout: target, Workers: workers}

	log.Info("sweep started", "candidates", len(mu)*len(xi), "t_end", cfg.TEnd)
	start := time.Now()
	outcomes, err := sweep.Run(sc, plan)
	if err != nil {
		return err
	}
	log.Info("sweep finished", "elapsed", time.Since(start).Round(time.Millisecond))

	printOutcomes(outcomes, target, top)
	return nil
}

func printOutcomes(outcomes []sweep.Outcome, target float64, top int) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	header := table.Row{"#", "mu", "xi", "Runout", "Area", "Peak h", "Peak v"}
	if target > 0 {
		header = append(header, "Δ runout")
	}
	t.AppendHeader(header)
	for i, o := range outcomes {
		if top > 0 && i >= top {
			break
		}
		if o.Err != nil {
			t.AppendRow(table.Row{i + 1, fmt.Sprintf("%.3f", o.Mu), fmt.Sprintf("%.0f", o.Xi), "failed: " + o.Err.Error()})
			continue
		}
		row := table.Row{
			i + 1,
			fmt.Sprintf("%.3f", o.Mu),
			fmt.Sprintf("%.0f", o.Xi),
			fmt.Sprintf("%.0f m", o.Runout),
			fmt.Sprintf("%.0f m²", o.AffectedArea),
			fmt.Sprintf("%.2f m", o.PeakHeight),
			fmt.Sprintf("%.2f m/s", o.PeakVelocity),
		}
		if target > 0 {
			row = append(row, fmt.Sprintf("%+.0f m", o.Runout-target))
		}
		t.AppendRow(row)
	}
	t.Render()
}

func printSummary(sum *results.Summary, tEnd float64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Quantity", "Value"})
	t.AppendRows([]table.Row{
		{"Simulated time", fmt.Sprintf("%.1f s", tEnd)},
		{"Snapshots", len(sum.Times)},
		{"Max flow height", fmt.Sprintf("%.2f m", sum.PeakHeight)},
		{"Max velocity", fmt.Sprintf("%.2f m/s", sum.PeakVelocity)},
		{"Max impact pressure", fmt.Sprintf("%.1f kPa", sum.PeakPressure)},
		{"Initial volume", fmt.Sprintf("%.0f m³", sum.InitialVolume)},
		{"Final volume", fmt.Sprintf("%.0f m³", sum.FinalVolume)},
		{"Affected area", fmt.Sprintf("%.0f m²", sum.AffectedArea)},
		{"Approximate runout", fmt.Sprintf("%.0f m", sum.Runout)},
	})
	t.Render()
}
