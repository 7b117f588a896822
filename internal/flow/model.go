// Package flow implements the two-phase shallow mass-flow physics: phase
// state, physical constants and the closures (fluxes, gravity, interphase
// drag, Voellmy basal friction) consumed by the solver.
package flow

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"debflow/internal/grid"
	"debflow/internal/terrain"
)

// Gravity is the gravitational acceleration in m/s².
const Gravity = 9.81

// epsHeight regularizes velocity recovery from momentum near zero height so
// the scheme stays numerically smooth across wet/dry fronts.
const epsHeight = 1e-6

// staticSpeed is the speed below which a cell is treated as at rest for the
// Coulomb yield condition.
const staticSpeed = 1e-3

// interphaseDrag is the velocity relaxation rate between phases in 1/s.
const interphaseDrag = 1.0

// Conserved variable indices of a per-cell state vector.
const (
	CHSolid = iota
	CQSolidX
	CQSolidY
	CHFluid
	CQFluidX
	CQFluidY
	NumConserved
)

// Conserved is the per-cell vector of conserved quantities: phase heights
// and phase momenta (h·u, h·v).
type Conserved [NumConserved]float64

// regVel recovers velocity from momentum with the standard desingularization
// 2h·q/(h² + max(h, ε)²): exactly q/h for h ≥ ε, bounded and vanishing on
// thinner films, so a clipped face can never produce an unbounded speed.
func regVel(q, h float64) float64 {
	if h <= 0 {
		return 0
	}
	d := math.Max(h, epsHeight)
	return 2 * h * q / (h*h + d*d)
}

// TwoPhaseFlowModel bundles the physics closures for a solid-grain plus
// interstitial-fluid mixture over terrain. The phases are pressure-coupled
// through the shared free surface.
type TwoPhaseFlowModel struct {
	Params FlowParameters

	gamma  float64 // fluid/solid density ratio, buoyancy fraction
	tanPhi float64 // Coulomb yield slope
}

// NewModel validates the parameters and builds a model.
func NewModel(p FlowParameters) (*TwoPhaseFlowModel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &TwoPhaseFlowModel{
		Params: p,
		gamma:  p.FluidDensity / p.SolidDensity,
		tanPhi: math.Tan(p.BasalFrictionAngle * math.Pi / 180),
	}, nil
}

// FluxX evaluates the physical flux in the column (x) direction. The
// hydrostatic pressure term uses the total height so each phase feels the
// shared free-surface elevation.
func (m *TwoPhaseFlowModel) FluxX(c Conserved) Conserved {
	hs, hf := c[CHSolid], c[CHFluid]
	htot := hs + hf
	us := regVel(c[CQSolidX], hs)
	uf := regVel(c[CQFluidX], hf)
	press := 0.5 * Gravity * htot
	return Conserved{
		c[CQSolidX],
		c[CQSolidX]*us + press*hs,
		c[CQSolidY] * us,
		c[CQFluidX],
		c[CQFluidX]*uf + press*hf,
		c[CQFluidY] * uf,
	}
}

// FluxY evaluates the physical flux in the row (y) direction.
func (m *TwoPhaseFlowModel) FluxY(c Conserved) Conserved {
	hs, hf := c[CHSolid], c[CHFluid]
	htot := hs + hf
	vs := regVel(c[CQSolidY], hs)
	vf := regVel(c[CQFluidY], hf)
	press := 0.5 * Gravity * htot
	return Conserved{
		c[CQSolidY],
		c[CQSolidX] * vs,
		c[CQSolidY]*vs + press*hs,
		c[CQFluidY],
		c[CQFluidX] * vf,
		c[CQFluidY]*vf + press*hf,
	}
}

// WaveSpeed returns the local characteristic speed |u| + sqrt(g·h_total)
// for a conserved cell vector.
func (m *TwoPhaseFlowModel) WaveSpeed(c Conserved) float64 {
	hs, hf := math.Max(c[CHSolid], 0), math.Max(c[CHFluid], 0)
	speedS := math.Hypot(regVel(c[CQSolidX], hs), regVel(c[CQSolidY], hs))
	speedF := math.Hypot(regVel(c[CQFluidX], hf), regVel(c[CQFluidY], hf))
	return math.Max(speedS, speedF) + math.Sqrt(Gravity*(hs+hf))
}

// MaxWaveSpeed scans the state for the largest per-cell wave speed, the
// quantity that bounds the stable CFL timestep.
func (m *TwoPhaseFlowModel) MaxWaveSpeed(s *FlowState) float64 {
	hs := grid.Data(s.HSolid)
	hf := grid.Data(s.HFluid)
	us := grid.Data(s.USolid)
	vs := grid.Data(s.VSolid)
	uf := grid.Data(s.UFluid)
	vf := grid.Data(s.VFluid)
	max := 0.0
	for i := range hs {
		speed := math.Max(math.Hypot(us[i], vs[i]), math.Hypot(uf[i], vf[i]))
		c := speed + math.Sqrt(Gravity*(hs[i]+hf[i]))
		if c > max {
			max = c
		}
	}
	return max
}

// ApplySources integrates the per-cell source terms over dt as the second
// fractional step: gravity driving from the bed slope, interphase drag, and
// Voellmy basal friction on the solid phase with a Coulomb yield condition.
// Gravity and drag are explicit; the stiff velocity-squared turbulent term
// is implicit in velocity so thin fast cells cannot overshoot through zero.
func (m *TwoPhaseFlowModel) ApplySources(t *terrain.Terrain, s *FlowState, dt float64) {
	hs := grid.Data(s.HSolid)
	hf := grid.Data(s.HFluid)
	us := grid.Data(s.USolid)
	vs := grid.Data(s.VSolid)
	uf := grid.Data(s.UFluid)
	vf := grid.Data(s.VFluid)
	gxd := grid.Data(t.GradX)
	gyd := grid.Data(t.GradY)

	dragDt := interphaseDrag * dt
	if dragDt > 1 {
		dragDt = 1
	}

	for i := range hs {
		hS, hF := hs[i], hf[i]
		htot := hS + hF
		if htot <= HDry {
			continue
		}
		gx, gy := gxd[i], gyd[i]
		cosS := 1 / math.Sqrt(1+gx*gx+gy*gy)
		ff := hF / (htot + epsHeight)
		buoy := 1 - m.gamma*ff
		if buoy < 0 {
			buoy = 0
		}

		uS0, vS0 := us[i], vs[i]
		uF0, vF0 := uf[i], vf[i]

		if hS > HDry {
			speed := math.Hypot(uS0, vS0)
			driving := Gravity * buoy * math.Hypot(gx, gy)
			yield := Gravity * cosS * buoy * m.tanPhi
			if speed < staticSpeed && driving <= yield {
				// Below the Coulomb threshold the grain pile holds.
				us[i], vs[i] = 0, 0
			} else {
				uS := uS0 - Gravity*buoy*gx*dt
				vS := vS0 - Gravity*buoy*gy*dt
				if hF > HDry {
					uS += dragDt * ff * (uF0 - uS0)
					vS += dragDt * ff * (vF0 - vS0)
				}
				uS, vS = m.voellmy(uS, vS, cosS, buoy, dt)
				us[i], vs[i] = uS, vS
			}
		}
		if hF > HDry {
			uF := uF0 - Gravity*gx*dt
			vF := vF0 - Gravity*gy*dt
			if hS > HDry {
				uF += dragDt * (1 - ff) * (uS0 - uF0)
				vF += dragDt * (1 - ff) * (vS0 - vF0)
			}
			uf[i], vf[i] = uF, vF
		}
	}
}

// voellmy applies the two-term basal friction law to a solid velocity:
// the Coulomb term -g·μ·cosθ·sign(u), scaled by the buoyancy-reduced normal
// stress, then the turbulent term -g·u²/ξ integrated implicitly.
func (m *TwoPhaseFlowModel) voellmy(u, v, cosSlope, buoy, dt float64) (float64, float64) {
	speed := math.Hypot(u, v)
	if speed == 0 {
		return 0, 0
	}
	s1 := speed - Gravity*m.Params.VoellmyMu*cosSlope*buoy*dt
	if s1 <= 0 {
		return 0, 0
	}
	s2 := s1 / (1 + Gravity*s1*dt/m.Params.VoellmyXi)
	scale := s2 / speed
	return u * scale, v * scale
}

// ComputeImpactPressure returns the density-weighted dynamic pressure
// diagnostic p = ½·Σ ρ·h·|u|² per cell, in kPa, for hazard mapping.
func (m *TwoPhaseFlowModel) ComputeImpactPressure(s *FlowState) *mat.Dense {
	out := grid.New(s.Rows, s.Cols)
	data := grid.Data(out)
	hs := grid.Data(s.HSolid)
	hf := grid.Data(s.HFluid)
	us := grid.Data(s.USolid)
	vs := grid.Data(s.VSolid)
	uf := grid.Data(s.UFluid)
	vf := grid.Data(s.VFluid)
	for i := range data {
		speedS2 := us[i]*us[i] + vs[i]*vs[i]
		speedF2 := uf[i]*uf[i] + vf[i]*vf[i]
		p := 0.5 * (m.Params.SolidDensity*hs[i]*speedS2 + m.Params.FluidDensity*hf[i]*speedF2)
		data[i] = p / 1000
	}
	return out
}
