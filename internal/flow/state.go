package flow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"debflow/internal/grid"
)

// HDry is the dry-cell height threshold in meters. Velocity is considered
// undefined on cells thinner than this and is held at zero.
const HDry = 1e-3

// FlowState is the per-cell two-phase state: heights and depth-averaged
// velocities for the solid and fluid phases. A state is mutated in place by
// the solver during a run; snapshots are deep copies.
type FlowState struct {
	Rows int
	Cols int

	HSolid *mat.Dense // m
	HFluid *mat.Dense // m
	USolid *mat.Dense // m/s, column direction
	VSolid *mat.Dense // m/s, row direction
	UFluid *mat.Dense
	VFluid *mat.Dense
}

// NewState returns a zero-initialized state for a rows×cols grid.
func NewState(rows, cols int) *FlowState {
	return &FlowState{
		Rows:   rows,
		Cols:   cols,
		HSolid: grid.New(rows, cols),
		HFluid: grid.New(rows, cols),
		USolid: grid.New(rows, cols),
		VSolid: grid.New(rows, cols),
		UFluid: grid.New(rows, cols),
		VFluid: grid.New(rows, cols),
	}
}

// Clone returns an independent deep copy.
func (s *FlowState) Clone() *FlowState {
	return &FlowState{
		Rows:   s.Rows,
		Cols:   s.Cols,
		HSolid: grid.Clone(s.HSolid),
		HFluid: grid.Clone(s.HFluid),
		USolid: grid.Clone(s.USolid),
		VSolid: grid.Clone(s.VSolid),
		UFluid: grid.Clone(s.UFluid),
		VFluid: grid.Clone(s.VFluid),
	}
}

// SeedRelease adds a release-zone height field to the state, split between
// the phases by solidFraction in [0, 1]. The release grid must match the
// state shape.
func (s *FlowState) SeedRelease(release *mat.Dense, solidFraction float64) error {
	if !grid.SameShape(release, s.HSolid) {
		r, c := release.Dims()
		return fmt.Errorf("%w: release is %dx%d, state is %dx%d", ErrShape, r, c, s.Rows, s.Cols)
	}
	hs := grid.Data(s.HSolid)
	hf := grid.Data(s.HFluid)
	for i, v := range grid.Data(release) {
		hs[i] += v * solidFraction
		hf[i] += v * (1 - solidFraction)
	}
	return nil
}

// TotalVolume returns the combined phase volume in m³ for the given cell
// size.
func (s *FlowState) TotalVolume(cellSize float64) float64 {
	return (grid.Sum(s.HSolid) + grid.Sum(s.HFluid)) * cellSize * cellSize
}

// TotalHeight returns h_solid + h_fluid as a fresh field.
func (s *FlowState) TotalHeight() *mat.Dense {
	out := grid.Clone(s.HSolid)
	out.Add(out, s.HFluid)
	return out
}

// MaxSpeed returns the largest phase speed over the grid in m/s.
func (s *FlowState) MaxSpeed() float64 {
	us := grid.Data(s.USolid)
	vs := grid.Data(s.VSolid)
	uf := grid.Data(s.UFluid)
	vf := grid.Data(s.VFluid)
	max := 0.0
	for i := range us {
		if v := math.Hypot(us[i], vs[i]); v > max {
			max = v
		}
		if v := math.Hypot(uf[i], vf[i]); v > max {
			max = v
		}
	}
	return max
}

// AllFinite reports whether every field value is finite.
func (s *FlowState) AllFinite() bool {
	return grid.AllFinite(s.HSolid) && grid.AllFinite(s.HFluid) &&
		grid.AllFinite(s.USolid) && grid.AllFinite(s.VSolid) &&
		grid.AllFinite(s.UFluid) && grid.AllFinite(s.VFluid)
}

// ShapeMatches reports whether the state grids match rows×cols.
func (s *FlowState) ShapeMatches(rows, cols int) bool {
	return s.Rows == rows && s.Cols == cols
}
