package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates invalid construction arguments: a bad CFL number,
	// timestep, limiter or boundary name. Fix the configuration and retry.
	ErrConfig = errors.New("solver: invalid configuration")
	// ErrShapeMismatch indicates a state whose grids do not match the
	// terrain dimensions.
	ErrShapeMismatch = errors.New("solver: state shape does not match terrain")
)

// InstabilityError reports numerical blow-up during a run: non-finite state
// values or a timestep underflow. The run aborts immediately; snapshots
// collected up to the failing step are still returned by RunSimulation.
// Retry with a smaller CFL number or maximum timestep.
type InstabilityError struct {
	// Time is the simulated time at which the instability was detected.
	Time float64
	// Step is the step counter at failure.
	Step int
	// Reason describes what was detected.
	Reason string
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("solver: numerical instability at t=%.6g (step %d): %s", e.Time, e.Step, e.Reason)
}
