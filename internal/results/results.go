// Package results aggregates simulation snapshots into the hazard-mapping
// products: per-cell maxima of flow height, velocity and impact pressure,
// affected area and runout, and exports them as rasters.
package results

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"debflow/internal/flow"
	"debflow/internal/grid"
	"debflow/internal/rasterio"
	"debflow/internal/solver"
	"debflow/internal/terrain"
)

// AffectedThreshold is the total flow height, in meters, above which a cell
// counts toward the affected area.
const AffectedThreshold = 0.1

// ErrNoSnapshots indicates an empty snapshot sequence.
var ErrNoSnapshots = errors.New("results: snapshot sequence is empty")

// Summary holds the aggregated products of one run.
type Summary struct {
	Times []float64

	MaxFlowHeight *mat.Dense // m
	MaxVelocity   *mat.Dense // m/s, solid phase
	MaxPressure   *mat.Dense // kPa

	Final *flow.FlowState

	InitialVolume float64 // m³
	FinalVolume   float64 // m³
	AffectedArea  float64 // m²
	Runout        float64 // m, downslope extent of the affected zone

	PeakHeight   float64
	PeakVelocity float64
	PeakPressure float64
}

// Collect reduces an ordered snapshot sequence over its run terrain and
// model into a Summary.
func Collect(t *terrain.Terrain, m *flow.TwoPhaseFlowModel, snaps []solver.Snapshot) (*Summary, error) {
	if len(snaps) == 0 {
		return nil, ErrNoSnapshots
	}
	sum := &Summary{
		Times:         make([]float64, 0, len(snaps)),
		MaxFlowHeight: grid.New(t.Rows, t.Cols),
		MaxVelocity:   grid.New(t.Rows, t.Cols),
		MaxPressure:   grid.New(t.Rows, t.Cols),
	}
	maxH := grid.Data(sum.MaxFlowHeight)
	maxV := grid.Data(sum.MaxVelocity)
	maxP := grid.Data(sum.MaxPressure)

	for _, snap := range snaps {
		sum.Times = append(sum.Times, snap.Time)
		hs := grid.Data(snap.State.HSolid)
		hf := grid.Data(snap.State.HFluid)
		us := grid.Data(snap.State.USolid)
		vs := grid.Data(snap.State.VSolid)
		pressure := grid.Data(m.ComputeImpactPressure(snap.State))
		for i := range maxH {
			if h := hs[i] + hf[i]; h > maxH[i] {
				maxH[i] = h
			}
			if v := math.Hypot(us[i], vs[i]); v > maxV[i] {
				maxV[i] = v
			}
			if pressure[i] > maxP[i] {
				maxP[i] = pressure[i]
			}
		}
	}

	sum.Final = snaps[len(snaps)-1].State.Clone()
	sum.InitialVolume = snaps[0].State.TotalVolume(t.CellSize)
	sum.FinalVolume = sum.Final.TotalVolume(t.CellSize)
	sum.PeakHeight = grid.Max(sum.MaxFlowHeight)
	sum.PeakVelocity = grid.Max(sum.MaxVelocity)
	sum.PeakPressure = grid.Max(sum.MaxPressure)

	cellArea := t.CellSize * t.CellSize
	lastRow := -1
	for i := 0; i < t.Rows; i++ {
		for j := 0; j < t.Cols; j++ {
			if maxH[i*t.Cols+j] > AffectedThreshold {
				sum.AffectedArea += cellArea
				if i > lastRow {
					lastRow = i
				}
			}
		}
	}
	if lastRow >= 0 {
		sum.Runout = float64(lastRow) * t.CellSize
	}
	return sum, nil
}

// Exporter writes summary grids as ESRI ASCII rasters plus a YAML metadata
// file into a directory.
type Exporter struct {
	Dir  string
	meta rasterio.Raster
}

// NewExporter binds an exporter to an output directory, carrying the
// terrain georeferencing into every written raster.
func NewExporter(dir string, t *terrain.Terrain) *Exporter {
	return &Exporter{
		Dir: dir,
		meta: rasterio.Raster{
			CellSize: t.CellSize,
			XOrigin:  t.XOrigin,
			YOrigin:  t.YOrigin,
			NoData:   -9999,
		},
	}
}

// runMetadata is the schema of the exported metadata.yaml.
type runMetadata struct {
	Times         []float64 `yaml:"times"`
	CellSize      float64   `yaml:"cell_size"`
	XOrigin       float64   `yaml:"x_origin"`
	YOrigin       float64   `yaml:"y_origin"`
	InitialVolume float64   `yaml:"initial_volume_m3"`
	FinalVolume   float64   `yaml:"final_volume_m3"`
	AffectedArea  float64   `yaml:"affected_area_m2"`
	Runout        float64   `yaml:"runout_m"`
	PeakHeight    float64   `yaml:"peak_height_m"`
	PeakVelocity  float64   `yaml:"peak_velocity_ms"`
	PeakPressure  float64   `yaml:"peak_pressure_kpa"`
}

// Export writes all summary products and returns the written file names.
func (e *Exporter) Export(sum *Summary) ([]string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	grids := []struct {
		name string
		m    *mat.Dense
	}{
		{"max_flow_height.asc", sum.MaxFlowHeight},
		{"max_velocity.asc", sum.MaxVelocity},
		{"max_pressure.asc", sum.MaxPressure},
		{"final_h_solid.asc", sum.Final.HSolid},
		{"final_h_fluid.asc", sum.Final.HFluid},
	}
	written := make([]string, 0, len(grids)+1)
	for _, g := range grids {
		if err := rasterio.WriteASCII(filepath.Join(e.Dir, g.name), g.m, e.meta); err != nil {
			return written, err
		}
		written = append(written, g.name)
	}

	md := runMetadata{
		Times:         sum.Times,
		CellSize:      e.meta.CellSize,
		XOrigin:       e.meta.XOrigin,
		YOrigin:       e.meta.YOrigin,
		InitialVolume: sum.InitialVolume,
		FinalVolume:   sum.FinalVolume,
		AffectedArea:  sum.AffectedArea,
		Runout:        sum.Runout,
		PeakHeight:    sum.PeakHeight,
		PeakVelocity:  sum.PeakVelocity,
		PeakPressure:  sum.PeakPressure,
	}
	buf, err := yaml.Marshal(md)
	if err != nil {
		return written, fmt.Errorf("results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.Dir, "metadata.yaml"), buf, 0o644); err != nil {
		return written, fmt.Errorf("results: %w", err)
	}
	written = append(written, "metadata.yaml")
	return written, nil
}
