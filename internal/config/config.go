// Package config loads a simulation run specification from YAML, environment
// variables and command-line flags, layered in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"debflow/internal/flow"
	"debflow/internal/solver"
	"debflow/internal/terrain"
)

// envPrefix namespaces environment overrides. A double underscore descends
// one config level, so DEBFLOW_SOLVER__CFL maps to solver.cfl and
// DEBFLOW_T_END to t_end.
const envPrefix = "DEBFLOW_"

// ErrInvalid indicates a run configuration that fails validation.
var ErrInvalid = errors.New("config: invalid run configuration")

// TerrainSpec selects the terrain source: a DEM file when Dem is set,
// otherwise a synthetic slope.
type TerrainSpec struct {
	Dem        string  `koanf:"dem"`
	Rows       int     `koanf:"rows"`
	Cols       int     `koanf:"cols"`
	CellSize   float64 `koanf:"cell_size"`
	SlopeAngle float64 `koanf:"slope_angle"`
	Channel    bool    `koanf:"channel"`
}

// ReleaseSpec places the initial release zone.
type ReleaseSpec struct {
	Row           int     `koanf:"row"`
	Col           int     `koanf:"col"`
	Radius        int     `koanf:"radius"`
	Height        float64 `koanf:"height"`
	SolidFraction float64 `koanf:"solid_fraction"`
}

// PhysicsSpec mirrors flow.FlowParameters in configuration form.
type PhysicsSpec struct {
	SolidDensity       float64 `koanf:"solid_density"`
	FluidDensity       float64 `koanf:"fluid_density"`
	BasalFrictionAngle float64 `koanf:"basal_friction_angle"`
	VoellmyMu          float64 `koanf:"voellmy_mu"`
	VoellmyXi          float64 `koanf:"voellmy_xi"`
}

// SolverSpec mirrors solver.SolverConfig in configuration form.
type SolverSpec struct {
	CFL         float64 `koanf:"cfl"`
	MaxTimestep float64 `koanf:"max_timestep"`
	FluxLimiter string  `koanf:"flux_limiter"`
	Boundary    string  `koanf:"boundary"`
}

// RunConfig is the full run specification.
type RunConfig struct {
	Terrain        TerrainSpec `koanf:"terrain"`
	Release        ReleaseSpec `koanf:"release"`
	Physics        PhysicsSpec `koanf:"physics"`
	Solver         SolverSpec  `koanf:"solver"`
	TEnd           float64     `koanf:"t_end"`
	OutputInterval float64     `koanf:"output_interval"`
	OutputDir      string      `koanf:"output_dir"`
}

// defaults mirror the reference synthetic test scenario.
func defaults() map[string]interface{} {
	p := flow.DefaultParameters()
	s := solver.DefaultConfig()
	return map[string]interface{}{
		"terrain.rows":                 80,
		"terrain.cols":                 60,
		"terrain.cell_size":            10.0,
		"terrain.slope_angle":          25.0,
		"terrain.channel":              true,
		"release.row":                  15,
		"release.col":                  30,
		"release.radius":               8,
		"release.height":               5.0,
		"release.solid_fraction":       0.7,
		"physics.solid_density":        p.SolidDensity,
		"physics.fluid_density":        p.FluidDensity,
		"physics.basal_friction_angle": p.BasalFrictionAngle,
		"physics.voellmy_mu":           p.VoellmyMu,
		"physics.voellmy_xi":           p.VoellmyXi,
		"solver.cfl":                   s.CFLNumber,
		"solver.max_timestep":          s.MaxTimestep,
		"solver.flux_limiter":          s.FluxLimiter,
		"solver.boundary":              s.Boundary,
		"t_end":                        30.0,
		"output_interval":              1.0,
		"output_dir":                   "./output",
	}
}

// Load layers defaults, an optional YAML file, DEBFLOW_* environment
// variables and (optionally) pflag values into a validated RunConfig.
// flagKeys maps flag names onto config paths; flags without an entry are
// ignored, and unchanged flags never override file or env settings.
func Load(path string, flags *pflag.FlagSet, flagKeys map[string]string) (*RunConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if flags != nil {
		cb := func(f *pflag.Flag) (string, interface{}) {
			key := f.Name
			if flagKeys != nil {
				mapped, ok := flagKeys[f.Name]
				if !ok {
					return "", nil
				}
				key = mapped
			}
			if !f.Changed && k.Exists(key) {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, cb), nil); err != nil {
			return nil, fmt.Errorf("config: flags: %w", err)
		}
	}

	var cfg RunConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the run-level contracts; the physics and solver values
// are validated again by their own constructors.
func (c *RunConfig) Validate() error {
	if c.TEnd <= 0 {
		return fmt.Errorf("%w: t_end must be positive", ErrInvalid)
	}
	if c.OutputInterval <= 0 {
		return fmt.Errorf("%w: output_interval must be positive", ErrInvalid)
	}
	if c.Release.SolidFraction < 0 || c.Release.SolidFraction > 1 {
		return fmt.Errorf("%w: release solid_fraction must be in [0, 1]", ErrInvalid)
	}
	if c.Terrain.Dem == "" && (c.Terrain.Rows <= 0 || c.Terrain.Cols <= 0) {
		return fmt.Errorf("%w: synthetic terrain needs positive rows and cols", ErrInvalid)
	}
	return nil
}

// FlowParameters converts the physics section.
func (c *RunConfig) FlowParameters() flow.FlowParameters {
	return flow.FlowParameters{
		SolidDensity:       c.Physics.SolidDensity,
		FluidDensity:       c.Physics.FluidDensity,
		BasalFrictionAngle: c.Physics.BasalFrictionAngle,
		VoellmyMu:          c.Physics.VoellmyMu,
		VoellmyXi:          c.Physics.VoellmyXi,
	}
}

// SolverConfig converts the solver section.
func (c *RunConfig) SolverConfig() solver.SolverConfig {
	return solver.SolverConfig{
		CFLNumber:   c.Solver.CFL,
		MaxTimestep: c.Solver.MaxTimestep,
		FluxLimiter: c.Solver.FluxLimiter,
		Boundary:    c.Solver.Boundary,
	}
}

// BuildTerrain loads the DEM when one is configured, otherwise generates
// the synthetic slope.
func (c *RunConfig) BuildTerrain() (*terrain.Terrain, error) {
	if c.Terrain.Dem != "" {
		return terrain.Load(c.Terrain.Dem)
	}
	return terrain.CreateSyntheticSlope(c.Terrain.Rows, c.Terrain.Cols,
		c.Terrain.CellSize, c.Terrain.SlopeAngle, c.Terrain.Channel)
}
