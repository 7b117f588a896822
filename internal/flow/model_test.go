package flow_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debflow/internal/flow"
	"debflow/internal/terrain"
)

func TestParameterValidation(t *testing.T) {
	p := flow.DefaultParameters()
	require.NoError(t, p.Validate())

	cases := []struct {
		name   string
		mutate func(*flow.FlowParameters)
		want   error
	}{
		{"zero solid density", func(p *flow.FlowParameters) { p.SolidDensity = 0 }, flow.ErrDensity},
		{"negative fluid density", func(p *flow.FlowParameters) { p.FluidDensity = -1 }, flow.ErrDensity},
		{"friction angle 90", func(p *flow.FlowParameters) { p.BasalFrictionAngle = 90 }, flow.ErrFrictionAngle},
		{"negative friction angle", func(p *flow.FlowParameters) { p.BasalFrictionAngle = -5 }, flow.ErrFrictionAngle},
		{"negative mu", func(p *flow.FlowParameters) { p.VoellmyMu = -0.1 }, flow.ErrVoellmy},
		{"zero xi", func(p *flow.FlowParameters) { p.VoellmyXi = 0 }, flow.ErrVoellmy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := flow.DefaultParameters()
			tc.mutate(&bad)
			err := bad.Validate()
			assert.ErrorIs(t, err, tc.want)

			_, err = flow.NewModel(bad)
			assert.ErrorIs(t, err, tc.want, "NewModel must reject what Validate rejects")
		})
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	s := flow.NewState(4, 4)
	s.HSolid.Set(1, 1, 2.5)
	s.USolid.Set(1, 1, 3)

	cp := s.Clone()
	s.HSolid.Set(1, 1, 0)
	s.USolid.Set(1, 1, 0)

	assert.Equal(t, 2.5, cp.HSolid.At(1, 1))
	assert.Equal(t, 3.0, cp.USolid.At(1, 1))
}

func TestSeedReleaseAndVolume(t *testing.T) {
	s := flow.NewState(2, 2)
	release := flow.NewState(2, 2).HSolid // zero field of the right shape
	release.Set(0, 0, 4)
	release.Set(1, 1, 2)

	require.NoError(t, s.SeedRelease(release, 0.75))
	assert.InDelta(t, 3.0, s.HSolid.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, s.HFluid.At(0, 0), 1e-12)

	// Volume with cell size 10: (4+2) m × 100 m².
	assert.InDelta(t, 600, s.TotalVolume(10), 1e-9)
}

func TestSeedReleaseRejectsShapeMismatch(t *testing.T) {
	s := flow.NewState(2, 2)
	release := flow.NewState(3, 3).HSolid
	assert.ErrorIs(t, s.SeedRelease(release, 0.5), flow.ErrShape)
}

func TestMaxWaveSpeed(t *testing.T) {
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s := flow.NewState(3, 3)
	assert.Equal(t, 0.0, m.MaxWaveSpeed(s))

	s.HSolid.Set(1, 1, 1)
	assert.InDelta(t, math.Sqrt(flow.Gravity), m.MaxWaveSpeed(s), 1e-9)

	s.USolid.Set(1, 1, 3)
	s.VSolid.Set(1, 1, 4)
	assert.InDelta(t, 5+math.Sqrt(flow.Gravity), m.MaxWaveSpeed(s), 1e-9)
}

func TestFluxMassComponentsAreMomenta(t *testing.T) {
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	c := flow.Conserved{}
	c[flow.CHSolid] = 2
	c[flow.CQSolidX] = 3
	c[flow.CHFluid] = 1
	c[flow.CQFluidX] = -0.5

	fx := m.FluxX(c)
	assert.InDelta(t, 3, fx[flow.CHSolid], 1e-12)
	assert.InDelta(t, -0.5, fx[flow.CHFluid], 1e-12)

	fy := m.FluxY(c)
	assert.InDelta(t, 0, fy[flow.CHSolid], 1e-12)
}

func TestComputeImpactPressure(t *testing.T) {
	p := flow.DefaultParameters()
	m, err := flow.NewModel(p)
	require.NoError(t, err)

	s := flow.NewState(2, 2)
	s.HSolid.Set(0, 0, 2)
	s.USolid.Set(0, 0, 3) // speed² = 9

	out := m.ComputeImpactPressure(s)
	want := 0.5 * p.SolidDensity * 2 * 9 / 1000
	assert.InDelta(t, want, out.At(0, 0), 1e-9)
	assert.Zero(t, out.At(1, 1))
}

// buildSlope returns a uniform slope terrain for source-term tests.
func buildSlope(t *testing.T, angleDeg float64) *terrain.Terrain {
	t.Helper()
	ter, err := terrain.CreateSyntheticSlope(20, 20, 10, angleDeg, false)
	require.NoError(t, err)
	return ter
}

func TestYieldHoldsStaticPileOnGentleSlope(t *testing.T) {
	// 10° bed against a 22° friction angle: the Coulomb threshold holds.
	ter := buildSlope(t, 10)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s := flow.NewState(20, 20)
	s.HSolid.Set(10, 10, 2)

	m.ApplySources(ter, s, 0.1)
	assert.Zero(t, s.USolid.At(10, 10))
	assert.Zero(t, s.VSolid.At(10, 10))
}

func TestGravityMobilizesSteepSlope(t *testing.T) {
	// 30° bed exceeds the 22° yield angle: the pile accelerates downslope.
	ter := buildSlope(t, 30)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s := flow.NewState(20, 20)
	s.HSolid.Set(10, 10, 2)

	m.ApplySources(ter, s, 0.1)
	// GradY is negative on the descending ramp; -g·dz/dy·dt > 0.
	assert.Greater(t, s.VSolid.At(10, 10), 0.0)
	assert.Zero(t, s.USolid.At(10, 10), "no cross-slope driving on a planar ramp")
}

func TestVoellmyFrictionDecelerates(t *testing.T) {
	ter, err := terrain.CreateSyntheticSlope(10, 10, 10, 0, false)
	require.NoError(t, err)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s := flow.NewState(10, 10)
	s.HSolid.Set(5, 5, 1)
	s.VSolid.Set(5, 5, 20)

	m.ApplySources(ter, s, 0.1)
	after := s.VSolid.At(5, 5)
	assert.Less(t, after, 20.0, "flat-bed friction must decelerate the flow")
	assert.Greater(t, after, 0.0, "one small step cannot stop a fast flow outright")
}

func TestFrictionStopsSlowFlowCompletely(t *testing.T) {
	ter, err := terrain.CreateSyntheticSlope(10, 10, 10, 0, false)
	require.NoError(t, err)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s := flow.NewState(10, 10)
	s.HSolid.Set(5, 5, 1)
	s.USolid.Set(5, 5, 0.01)

	// Coulomb deceleration g·μ·dt ≈ 0.15 m/s over 0.1 s exceeds the speed.
	m.ApplySources(ter, s, 0.1)
	assert.Zero(t, s.USolid.At(5, 5))
}

func TestDragPullsPhasesTogether(t *testing.T) {
	ter, err := terrain.CreateSyntheticSlope(10, 10, 10, 0, false)
	require.NoError(t, err)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s := flow.NewState(10, 10)
	s.HSolid.Set(5, 5, 1)
	s.HFluid.Set(5, 5, 1)
	s.USolid.Set(5, 5, 10)
	s.UFluid.Set(5, 5, 2)

	du0 := s.USolid.At(5, 5) - s.UFluid.At(5, 5)
	m.ApplySources(ter, s, 0.1)
	du1 := s.USolid.At(5, 5) - s.UFluid.At(5, 5)
	assert.Less(t, math.Abs(du1), math.Abs(du0), "drag must reduce the velocity difference")
}

func TestBuoyancyReducesSolidDriving(t *testing.T) {
	ter := buildSlope(t, 30)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	dry := flow.NewState(20, 20)
	dry.HSolid.Set(10, 10, 2)

	saturated := flow.NewState(20, 20)
	saturated.HSolid.Set(10, 10, 2)
	saturated.HFluid.Set(10, 10, 2)

	m.ApplySources(ter, dry, 0.05)
	m.ApplySources(ter, saturated, 0.05)

	assert.Less(t, saturated.VSolid.At(10, 10), dry.VSolid.At(10, 10),
		"fluid pressure must reduce the effective solid weight")
	assert.Greater(t, saturated.VSolid.At(10, 10), 0.0)
}
