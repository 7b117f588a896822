// Package terrain models the immutable grid geometry a simulation runs on:
// a uniform square-cell elevation raster plus derived bed-slope gradients.
package terrain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"debflow/internal/grid"
	"debflow/internal/rasterio"
)

// Terrain holds the digital terrain model for a run. It is immutable once
// constructed; the solver and flow model only ever read from it.
type Terrain struct {
	Rows     int
	Cols     int
	CellSize float64

	// Elevation is the rows×cols bed elevation in meters.
	Elevation *mat.Dense

	// GradX and GradY hold the central-difference bed-slope gradients
	// dz/dx (column direction) and dz/dy (row direction).
	GradX *mat.Dense
	GradY *mat.Dense

	// Raster origin of the lower-left corner, carried through from DEM
	// files so exported results stay georeferenced.
	XOrigin float64
	YOrigin float64
}

// New constructs a Terrain from an elevation field and cell size, validating
// shape, positivity and finiteness eagerly.
func New(elevation *mat.Dense, cellSize float64) (*Terrain, error) {
	if elevation == nil {
		return nil, ErrEmptyGrid
	}
	rows, cols := elevation.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyGrid
	}
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrCellSize, cellSize)
	}
	if !grid.AllFinite(elevation) {
		return nil, ErrNotFinite
	}
	t := &Terrain{
		Rows:      rows,
		Cols:      cols,
		CellSize:  cellSize,
		Elevation: grid.Clone(elevation),
	}
	t.GradX, t.GradY = gradients(t.Elevation, cellSize)
	return t, nil
}

// Load reads a DEM raster from disk (ESRI ASCII grid) and wraps it in a
// Terrain. File parsing is delegated to the rasterio package.
func Load(path string) (*Terrain, error) {
	r, err := rasterio.ReadASCII(path)
	if err != nil {
		return nil, err
	}
	t, err := New(r.Values, r.CellSize)
	if err != nil {
		return nil, err
	}
	t.XOrigin = r.XOrigin
	t.YOrigin = r.YOrigin
	return t, nil
}

// CreateSyntheticSlope builds a planar ramp dipping along the row axis with
// elevation = tan(slopeAngle)·distance, highest at row 0. With addChannel a
// parabolic channel is carved along the center column band to concentrate
// the flow path.
func CreateSyntheticSlope(rows, cols int, cellSize, slopeAngleDeg float64, addChannel bool) (*Terrain, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrEmptyGrid
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrCellSize, cellSize)
	}
	elev := grid.New(rows, cols)
	data := grid.Data(elev)
	slope := math.Tan(slopeAngleDeg * math.Pi / 180)
	for i := 0; i < rows; i++ {
		// Descending ramp: row 0 sits at the top of the slope.
		z := slope * float64(rows-1-i) * cellSize
		for j := 0; j < cols; j++ {
			data[i*cols+j] = z
		}
	}
	if addChannel {
		carveChannel(elev, cellSize)
	}
	return New(elev, cellSize)
}

// carveChannel lowers a parabolic band around the center column, 5 m deep
// at the centerline and a third of the domain wide.
func carveChannel(elev *mat.Dense, cellSize float64) {
	rows, cols := elev.Dims()
	data := grid.Data(elev)
	center := float64(cols-1) / 2
	halfWidth := float64(cols) / 6
	if halfWidth < 1 {
		halfWidth = 1
	}
	const depth = 5.0
	for j := 0; j < cols; j++ {
		d := (float64(j) - center) / halfWidth
		if d < -1 || d > 1 {
			continue
		}
		drop := depth * (1 - d*d)
		for i := 0; i < rows; i++ {
			data[i*cols+j] -= drop
		}
	}
}

// CreateReleaseZone returns a rows×cols height field that peaks at height in
// cell (centerI, centerJ) and decays smoothly (raised cosine) to exactly
// zero at radius cells from the center. Callers split the field between
// phases with a solid fraction of their choosing.
func (t *Terrain) CreateReleaseZone(centerI, centerJ, radius int, height float64) (*mat.Dense, error) {
	if radius <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: radius=%d height=%v", ErrReleaseZone, radius, height)
	}
	out := grid.New(t.Rows, t.Cols)
	data := grid.Data(out)
	r := float64(radius)
	for i := 0; i < t.Rows; i++ {
		for j := 0; j < t.Cols; j++ {
			di := float64(i - centerI)
			dj := float64(j - centerJ)
			dist := math.Hypot(di, dj)
			if dist >= r {
				continue
			}
			data[i*t.Cols+j] = height * 0.5 * (1 + math.Cos(math.Pi*dist/r))
		}
	}
	return out, nil
}

// SlopeCos returns cos of the local bed inclination at (i, j), used to
// project gravity onto the bed normal.
func (t *Terrain) SlopeCos(i, j int) float64 {
	gx := t.GradX.At(i, j)
	gy := t.GradY.At(i, j)
	return 1 / math.Sqrt(1+gx*gx+gy*gy)
}

// gradients computes one-sided differences at the edges and central
// differences in the interior.
func gradients(elev *mat.Dense, cellSize float64) (gx, gy *mat.Dense) {
	rows, cols := elev.Dims()
	gx = grid.New(rows, cols)
	gy = grid.New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			switch {
			case cols == 1:
				// single column, flat in x
			case j == 0:
				gx.Set(i, j, (elev.At(i, 1)-elev.At(i, 0))/cellSize)
			case j == cols-1:
				gx.Set(i, j, (elev.At(i, cols-1)-elev.At(i, cols-2))/cellSize)
			default:
				gx.Set(i, j, (elev.At(i, j+1)-elev.At(i, j-1))/(2*cellSize))
			}
			switch {
			case rows == 1:
				// single row, flat in y
			case i == 0:
				gy.Set(i, j, (elev.At(1, j)-elev.At(0, j))/cellSize)
			case i == rows-1:
				gy.Set(i, j, (elev.At(rows-1, j)-elev.At(rows-2, j))/cellSize)
			default:
				gy.Set(i, j, (elev.At(i+1, j)-elev.At(i-1, j))/(2*cellSize))
			}
		}
	}
	return gx, gy
}
