package flow

import "errors"

var (
	// ErrDensity indicates a non-positive phase density.
	ErrDensity = errors.New("flow: densities must be positive")
	// ErrFrictionAngle indicates a basal friction angle outside [0, 90).
	ErrFrictionAngle = errors.New("flow: basal friction angle must be in [0, 90) degrees")
	// ErrVoellmy indicates invalid Voellmy coefficients.
	ErrVoellmy = errors.New("flow: voellmy mu must be >= 0 and xi > 0")
	// ErrShape indicates a grid whose shape does not match the state.
	ErrShape = errors.New("flow: grid shape does not match state")
)
