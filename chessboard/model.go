package chessboard

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// ObjectPoints generates the canonical 3D model of a rows x cols corner grid
// on the Z=0 plane, in row-major order: the point at grid index (r, c) is
// (r*squareSize, c*squareSize, 0). This order must exactly match the order
// produced by Grid.Reorder, or correspondences become systematically wrong.
//
// ObjectPoints panics when rows or cols is not positive; that is a caller
// error, not a runtime condition.
func ObjectPoints(rows, cols int, squareSize float64) []r3.Vector {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("invalid model dimensions %dx%d", rows, cols))
	}
	points := make([]r3.Vector, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			points = append(points, r3.Vector{
				X: float64(r) * squareSize,
				Y: float64(c) * squareSize,
				Z: 0,
			})
		}
	}
	return points
}
