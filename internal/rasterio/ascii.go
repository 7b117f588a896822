// Package rasterio reads and writes ESRI ASCII grid rasters, the DEM
// exchange format the simulation tooling uses for terrain input and result
// export. GeoTIFF support is intentionally absent.
package rasterio

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"debflow/internal/grid"
)

// ErrFormat indicates a malformed ASCII grid file.
var ErrFormat = errors.New("rasterio: malformed ASCII grid")

// Raster is a parsed ASCII grid: values plus georeferencing metadata.
type Raster struct {
	Values   *mat.Dense
	CellSize float64
	XOrigin  float64
	YOrigin  float64
	NoData   float64
}

// ReadASCII parses an ESRI ASCII grid file. Header keys are case-insensitive
// and NODATA_value is optional; no-data cells are read as 0 elevation.
func ReadASCII(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rasterio: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	header := map[string]float64{}
	var fields []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		key := strings.ToLower(parts[0])
		if len(parts) == 2 && isHeaderKey(key) {
			v, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: header %q", ErrFormat, line)
			}
			header[key] = v
			continue
		}
		// First data row reached.
		fields = parts
		break
	}

	ncols := int(header["ncols"])
	nrows := int(header["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("%w: missing ncols/nrows", ErrFormat)
	}
	cell, ok := header["cellsize"]
	if !ok || cell <= 0 {
		return nil, fmt.Errorf("%w: missing or non-positive cellsize", ErrFormat)
	}
	nodata, hasNoData := header["nodata_value"]

	data := make([]float64, 0, nrows*ncols)
	appendFields := func(parts []string) error {
		for _, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return fmt.Errorf("%w: value %q", ErrFormat, p)
			}
			if hasNoData && v == nodata {
				v = 0
			}
			data = append(data, v)
		}
		return nil
	}
	if err := appendFields(fields); err != nil {
		return nil, err
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := appendFields(strings.Fields(line)); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rasterio: %w", err)
	}
	if len(data) != nrows*ncols {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrFormat, nrows*ncols, len(data))
	}

	return &Raster{
		Values:   mat.NewDense(nrows, ncols, data),
		CellSize: cell,
		XOrigin:  header["xllcorner"],
		YOrigin:  header["yllcorner"],
		NoData:   nodata,
	}, nil
}

// WriteASCII writes values as an ESRI ASCII grid using the georeferencing in
// meta. meta.Values is ignored.
func WriteASCII(path string, values *mat.Dense, meta Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rasterio: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	rows, cols := values.Dims()
	fmt.Fprintf(w, "ncols %d\n", cols)
	fmt.Fprintf(w, "nrows %d\n", rows)
	fmt.Fprintf(w, "xllcorner %g\n", meta.XOrigin)
	fmt.Fprintf(w, "yllcorner %g\n", meta.YOrigin)
	fmt.Fprintf(w, "cellsize %g\n", meta.CellSize)
	fmt.Fprintf(w, "NODATA_value %g\n", meta.NoData)

	data := grid.Data(values)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		for j, v := range row {
			if j > 0 {
				if err := w.WriteByte(' '); err != nil {
					return fmt.Errorf("rasterio: %w", err)
				}
			}
			if _, err := w.WriteString(strconv.FormatFloat(v, 'g', 6, 64)); err != nil {
				return fmt.Errorf("rasterio: %w", err)
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("rasterio: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("rasterio: %w", err)
	}
	return nil
}

func isHeaderKey(key string) bool {
	switch key {
	case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value":
		return true
	}
	return false
}
