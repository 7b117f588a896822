package solver

import "fmt"

// Boundary selects the treatment of the domain edges.
type Boundary int

const (
	// Outflow lets mass leave through the edges (zero-gradient ghost).
	Outflow Boundary = iota
	// Reflective closes the domain with frictionless walls; total volume is
	// conserved.
	Reflective
)

// ParseBoundary maps a configuration name to a Boundary.
func ParseBoundary(name string) (Boundary, error) {
	switch name {
	case "outflow":
		return Outflow, nil
	case "reflective":
		return Reflective, nil
	}
	return 0, fmt.Errorf("%w: unknown boundary %q", ErrConfig, name)
}

func (b Boundary) String() string {
	if b == Reflective {
		return "reflective"
	}
	return "outflow"
}

// SolverConfig holds the numerical tunables. Enum-valued fields are plain
// strings so the config is representable across process boundaries; they
// are parsed and validated once when the solver is built.
type SolverConfig struct {
	// CFLNumber bounds the timestep; must lie in (0, 1].
	CFLNumber float64
	// MaxTimestep caps dt in seconds regardless of wave speeds.
	MaxTimestep float64
	// FluxLimiter is one of "minmod", "superbee", "vanleer".
	FluxLimiter string
	// Boundary is "outflow" or "reflective".
	Boundary string
}

// DefaultConfig returns the standard solver configuration.
func DefaultConfig() SolverConfig {
	return SolverConfig{
		CFLNumber:   0.4,
		MaxTimestep: 0.5,
		FluxLimiter: "minmod",
		Boundary:    "outflow",
	}
}

// Validate checks scalar ranges and resolves the enum names.
func (c SolverConfig) Validate() (Limiter, Boundary, error) {
	if c.CFLNumber <= 0 || c.CFLNumber > 1 {
		return 0, 0, fmt.Errorf("%w: cfl number %v outside (0, 1]", ErrConfig, c.CFLNumber)
	}
	if c.MaxTimestep <= 0 {
		return 0, 0, fmt.Errorf("%w: max timestep %v must be positive", ErrConfig, c.MaxTimestep)
	}
	lim, err := ParseLimiter(c.FluxLimiter)
	if err != nil {
		return 0, 0, err
	}
	bnd, err := ParseBoundary(c.Boundary)
	if err != nil {
		return 0, 0, err
	}
	return lim, bnd, nil
}
