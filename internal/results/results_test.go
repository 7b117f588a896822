package results_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"debflow/internal/flow"
	"debflow/internal/grid"
	"debflow/internal/rasterio"
	"debflow/internal/results"
	"debflow/internal/solver"
	"debflow/internal/terrain"
)

func fixtureRun(t *testing.T) (*terrain.Terrain, *flow.TwoPhaseFlowModel, []solver.Snapshot) {
	t.Helper()
	ter, err := terrain.New(grid.New(4, 5), 2)
	require.NoError(t, err)
	m, err := flow.NewModel(flow.DefaultParameters())
	require.NoError(t, err)

	s0 := flow.NewState(4, 5)
	s0.HSolid.Set(1, 1, 2)

	s1 := flow.NewState(4, 5)
	s1.HSolid.Set(1, 1, 1)
	s1.HSolid.Set(2, 2, 0.5)
	s1.USolid.Set(2, 2, 3)
	s1.VSolid.Set(2, 2, 4)
	s1.HFluid.Set(2, 2, 0.05)

	snaps := []solver.Snapshot{
		{Time: 0, State: s0},
		{Time: 1, State: s1},
	}
	return ter, m, snaps
}

func TestCollectEmptySequence(t *testing.T) {
	ter, m, _ := fixtureRun(t)
	_, err := results.Collect(ter, m, nil)
	assert.ErrorIs(t, err, results.ErrNoSnapshots)
}

func TestCollectAggregates(t *testing.T) {
	ter, m, snaps := fixtureRun(t)
	sum, err := results.Collect(ter, m, snaps)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1}, sum.Times)

	// Per-cell maxima across both snapshots.
	assert.InDelta(t, 2.0, sum.MaxFlowHeight.At(1, 1), 1e-12)
	assert.InDelta(t, 0.55, sum.MaxFlowHeight.At(2, 2), 1e-12)
	assert.InDelta(t, 5.0, sum.MaxVelocity.At(2, 2), 1e-12)
	assert.Zero(t, sum.MaxVelocity.At(1, 1))

	// 0.5 * rho_s * h_s * |u_s|^2 / 1000 at the moving cell; the fluid
	// there is at rest and contributes nothing.
	assert.InDelta(t, 0.5*2500*0.5*25/1000, sum.MaxPressure.At(2, 2), 1e-9)

	assert.InDelta(t, 8.0, sum.InitialVolume, 1e-12)
	assert.InDelta(t, 6.2, sum.FinalVolume, 1e-12)

	// Two cells ever exceed the 0.1 m threshold, 4 m² each; the lowest of
	// them sits on row 2.
	assert.InDelta(t, 8.0, sum.AffectedArea, 1e-12)
	assert.InDelta(t, 4.0, sum.Runout, 1e-12)

	assert.InDelta(t, 2.0, sum.PeakHeight, 1e-12)
	assert.InDelta(t, 5.0, sum.PeakVelocity, 1e-12)
	assert.InDelta(t, 15.625, sum.PeakPressure, 1e-9)
}

func TestCollectCopiesFinalState(t *testing.T) {
	ter, m, snaps := fixtureRun(t)
	sum, err := results.Collect(ter, m, snaps)
	require.NoError(t, err)

	snaps[1].State.HSolid.Set(1, 1, 42)
	assert.InDelta(t, 1.0, sum.Final.HSolid.At(1, 1), 1e-12)
}

func TestExportWritesRastersAndMetadata(t *testing.T) {
	ter, m, snaps := fixtureRun(t)
	sum, err := results.Collect(ter, m, snaps)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	written, err := results.NewExporter(dir, ter).Export(sum)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"max_flow_height.asc",
		"max_velocity.asc",
		"max_pressure.asc",
		"final_h_solid.asc",
		"final_h_fluid.asc",
		"metadata.yaml",
	}, written)

	r, err := rasterio.ReadASCII(filepath.Join(dir, "max_flow_height.asc"))
	require.NoError(t, err)
	assert.Equal(t, ter.CellSize, r.CellSize)
	assert.InDelta(t, 2.0, r.Values.At(1, 1), 1e-6)
	assert.InDelta(t, 0.55, r.Values.At(2, 2), 1e-6)

	buf, err := os.ReadFile(filepath.Join(dir, "metadata.yaml"))
	require.NoError(t, err)
	var md struct {
		Times        []float64 `yaml:"times"`
		CellSize     float64   `yaml:"cell_size"`
		AffectedArea float64   `yaml:"affected_area_m2"`
		Runout       float64   `yaml:"runout_m"`
		PeakHeight   float64   `yaml:"peak_height_m"`
	}
	require.NoError(t, yaml.Unmarshal(buf, &md))
	assert.Equal(t, []float64{0, 1}, md.Times)
	assert.Equal(t, 2.0, md.CellSize)
	assert.InDelta(t, 8.0, md.AffectedArea, 1e-9)
	assert.InDelta(t, 4.0, md.Runout, 1e-9)
	assert.InDelta(t, 2.0, md.PeakHeight, 1e-9)
}
