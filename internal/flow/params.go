package flow

import "fmt"

// FlowParameters holds the physical constants of a two-phase mass flow.
// Immutable for the duration of a run.
type FlowParameters struct {
	// SolidDensity and FluidDensity are the phase densities in kg/m³.
	SolidDensity float64
	FluidDensity float64
	// BasalFrictionAngle is the Coulomb yield angle in degrees.
	BasalFrictionAngle float64
	// VoellmyMu is the dimensionless Coulomb friction coefficient.
	VoellmyMu float64
	// VoellmyXi is the turbulent friction coefficient in m/s².
	VoellmyXi float64
}

// DefaultParameters returns the standard debris-flow parameter set.
func DefaultParameters() FlowParameters {
	return FlowParameters{
		SolidDensity:       2500,
		FluidDensity:       1100,
		BasalFrictionAngle: 22,
		VoellmyMu:          0.15,
		VoellmyXi:          500,
	}
}

// Validate checks the physical-parameter contracts. Invalid values are
// rejected eagerly, never clamped.
func (p FlowParameters) Validate() error {
	if p.SolidDensity <= 0 || p.FluidDensity <= 0 {
		return fmt.Errorf("%w: solid=%v fluid=%v", ErrDensity, p.SolidDensity, p.FluidDensity)
	}
	if p.BasalFrictionAngle < 0 || p.BasalFrictionAngle >= 90 {
		return fmt.Errorf("%w: got %v", ErrFrictionAngle, p.BasalFrictionAngle)
	}
	if p.VoellmyMu < 0 || p.VoellmyXi <= 0 {
		return fmt.Errorf("%w: mu=%v xi=%v", ErrVoellmy, p.VoellmyMu, p.VoellmyXi)
	}
	return nil
}
