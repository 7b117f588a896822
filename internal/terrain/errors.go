package terrain

import "errors"

var (
	// ErrEmptyGrid indicates an elevation field with no rows or columns.
	ErrEmptyGrid = errors.New("terrain: elevation grid must have at least one row and one column")
	// ErrCellSize indicates a non-positive cell size.
	ErrCellSize = errors.New("terrain: cell size must be positive")
	// ErrNotFinite indicates NaN or Inf elevation values.
	ErrNotFinite = errors.New("terrain: elevation values must be finite")
	// ErrReleaseZone indicates invalid release-zone geometry.
	ErrReleaseZone = errors.New("terrain: release zone radius and height must be positive")
)
