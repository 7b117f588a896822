package solver

import (
	"fmt"
	"math"
)

// Limiter selects the TVD slope limiter used for the piecewise-linear
// in-cell reconstruction. The set is closed; the choice is parsed once at
// solver construction.
type Limiter int

const (
	// Minmod is the most diffusive limiter, safest against overshoot.
	Minmod Limiter = iota
	// Superbee is the least diffusive, sharpest at fronts.
	Superbee
	// VanLeer sits between the two.
	VanLeer
)

// ParseLimiter maps a configuration name to a Limiter.
func ParseLimiter(name string) (Limiter, error) {
	switch name {
	case "minmod":
		return Minmod, nil
	case "superbee":
		return Superbee, nil
	case "vanleer":
		return VanLeer, nil
	}
	return 0, fmt.Errorf("%w: unknown flux limiter %q", ErrConfig, name)
}

func (l Limiter) String() string {
	switch l {
	case Minmod:
		return "minmod"
	case Superbee:
		return "superbee"
	case VanLeer:
		return "vanleer"
	}
	return "unknown"
}

// Slope returns the limited in-cell slope from the backward and forward
// differences d1 and d2. All three limiters return zero at extrema, so
// reconstructed face values never leave the range of the neighboring cell
// averages.
func (l Limiter) Slope(d1, d2 float64) float64 {
	switch l {
	case Superbee:
		return maxmod(minmod(2*d1, d2), minmod(d1, 2*d2))
	case VanLeer:
		if d1*d2 <= 0 {
			return 0
		}
		return 2 * d1 * d2 / (d1 + d2)
	default:
		return minmod(d1, d2)
	}
}

func minmod(a, b float64) float64 {
	if a*b <= 0 {
		return 0
	}
	if math.Abs(a) < math.Abs(b) {
		return a
	}
	return b
}

func maxmod(a, b float64) float64 {
	if a*b <= 0 {
		return 0
	}
	if math.Abs(a) > math.Abs(b) {
		return a
	}
	return b
}
