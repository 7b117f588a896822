// Package grid provides helpers for the dense rows×cols fields shared by the
// terrain, flow and solver packages. Fields are stored as gonum mat.Dense
// matrices in row-major order; hot loops operate on the raw backing slice.
package grid

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// New allocates a zeroed rows×cols field.
func New(rows, cols int) *mat.Dense {
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}
	return mat.NewDense(rows, cols, nil)
}

// Clone returns an independent deep copy of m.
func Clone(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.CloneFrom(m)
	return out
}

// Data exposes the row-major backing slice of m for direct indexing.
func Data(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}

// Fill sets every cell of m to v.
func Fill(m *mat.Dense, v float64) {
	data := Data(m)
	for i := range data {
		data[i] = v
	}
}

// Sum returns the sum over all cells.
func Sum(m *mat.Dense) float64 {
	return floats.Sum(Data(m))
}

// Max returns the maximum cell value, or 0 for an empty field.
func Max(m *mat.Dense) float64 {
	data := Data(m)
	if len(data) == 0 {
		return 0
	}
	return floats.Max(data)
}

// AllFinite reports whether every cell holds a finite value.
func AllFinite(m *mat.Dense) bool {
	for _, v := range Data(m) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b *mat.Dense) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

// FromRows builds a field from nested rows, which must be rectangular and
// non-empty. Returns nil on ragged or empty input.
func FromRows(rows [][]float64) *mat.Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	nc := len(rows[0])
	data := make([]float64, 0, len(rows)*nc)
	for _, r := range rows {
		if len(r) != nc {
			return nil
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), nc, data)
}

// ToRows converts a field to plain nested slices, the representation used at
// process and language boundaries.
func ToRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		copy(out[i], m.RawRowView(i))
	}
	return out
}
