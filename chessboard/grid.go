// Package chessboard models a detected chessboard corner grid and resolves
// the physical orientation of the partially-symmetric calibration target.
// The four outer squares of the target look alike except for one darker
// marker square; brightness gives a hint, but reprojection geometry is what
// decides which of the four possible corner orderings is the real one.
package chessboard

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Orientation selects which of the four outer corners of a detected grid
// becomes the origin corner when the grid is reordered to canonical
// row-major order.
type Orientation int

// The four possible origin corners of a detected grid, in enumeration order.
const (
	OrientationTopLeft Orientation = iota
	OrientationTopRight
	OrientationBottomLeft
	OrientationBottomRight
)

// Orientations lists all four orientations in enumeration order.
func Orientations() [4]Orientation {
	return [4]Orientation{OrientationTopLeft, OrientationTopRight, OrientationBottomLeft, OrientationBottomRight}
}

func (o Orientation) String() string {
	switch o {
	case OrientationTopLeft:
		return "top-left"
	case OrientationTopRight:
		return "top-right"
	case OrientationBottomLeft:
		return "bottom-left"
	case OrientationBottomRight:
		return "bottom-right"
	}
	return "unknown"
}

// Grid is a rectangular grid of 2D corner points stored row-major. Before
// orientation resolution it holds whatever order the detector returned;
// Reorder produces the relabeled grid for a candidate orientation.
type Grid struct {
	rows, cols int
	points     []r2.Point
}

// NewGrid wraps detected corner points in a Grid. The number of points must
// be exactly rows*cols; a grid is never partially populated.
func NewGrid(points []r2.Point, rows, cols int) (Grid, error) {
	if rows <= 0 || cols <= 0 {
		return Grid{}, errors.Errorf("invalid grid dimensions %dx%d", rows, cols)
	}
	if len(points) != rows*cols {
		return Grid{}, errors.Errorf("have %d points, need %d for a %dx%d grid", len(points), rows*cols, rows, cols)
	}
	return Grid{rows: rows, cols: cols, points: points}, nil
}

// Rows returns the number of grid rows.
func (g Grid) Rows() int { return g.rows }

// Cols returns the number of grid columns.
func (g Grid) Cols() int { return g.cols }

// Points returns the corner points in the grid's current order.
func (g Grid) Points() []r2.Point { return g.points }

// At returns the point at row r, column c in the current order.
func (g Grid) At(r, c int) r2.Point { return g.points[r*g.cols+c] }

// Reorder returns a new grid relabeled so that the given outer corner is the
// origin. The walk direction along each axis flips depending on which corner
// is chosen, so every point appears exactly once in the output.
func (g Grid) Reorder(o Orientation) Grid {
	stepX, stepY := 1, 1
	if o == OrientationTopRight || o == OrientationBottomRight {
		stepX = -1
	}
	if o == OrientationBottomLeft || o == OrientationBottomRight {
		stepY = -1
	}
	startX, startY := 0, 0
	if stepX == -1 {
		startX = g.cols - 1
	}
	if stepY == -1 {
		startY = g.rows - 1
	}

	ordered := make([]r2.Point, 0, len(g.points))
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			col := startX + x*stepX
			row := startY + y*stepY
			ordered = append(ordered, g.points[row*g.cols+col])
		}
	}
	return Grid{rows: g.rows, cols: g.cols, points: ordered}
}

// OuterCorners returns the four extreme grid corners in the current order:
// top-left, top-right, bottom-left, bottom-right.
func (g Grid) OuterCorners() (tl, tr, bl, br r2.Point) {
	tl = g.points[0]
	tr = g.points[g.cols-1]
	bl = g.points[(g.rows-1)*g.cols]
	br = g.points[g.rows*g.cols-1]
	return tl, tr, bl, br
}
