// Package render draws calibration overlays: the detected corner grid, the
// board coordinate axes, and square labels. All drawing happens on a copy of
// the input frame; the original is never mutated.
package render

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/boardcal/calib"
	"go.viam.com/boardcal/chessboard"
)

// axisLength is the drawn axis length in board squares.
const axisLength = 3.0

// DrawGrid overlays the detected corner grid: corners as dots connected in
// scan order, with the origin corner highlighted.
func DrawGrid(img image.Image, grid chessboard.Grid) image.Image {
	dc := gg.NewContextForImage(img)
	points := grid.Points()

	dc.SetLineWidth(1.5)
	dc.SetRGB255(0, 200, 0)
	for i := 1; i < len(points); i++ {
		dc.DrawLine(points[i-1].X, points[i-1].Y, points[i].X, points[i].Y)
		dc.Stroke()
	}
	for _, pt := range points {
		dc.DrawCircle(pt.X, pt.Y, 3)
		dc.Stroke()
	}
	dc.SetRGB255(255, 0, 0)
	dc.DrawCircle(points[0].X, points[0].Y, 5)
	dc.Fill()
	return dc.Image()
}

// DrawPose overlays the board coordinate axes and square labels under a
// solved pose. The axes originate at the outer corner of the board, half a
// square beyond the first inner corner.
func DrawPose(
	img image.Image,
	pose *calib.Pose,
	intrinsics *calib.Intrinsics,
	distortion *calib.BrownConrady,
	rows, cols int,
	squareSize float64,
) image.Image {
	dc := gg.NewContextForImage(img)

	origin := r3.Vector{X: -squareSize, Y: -squareSize, Z: 0}
	axes := []r3.Vector{
		origin,
		{X: origin.X + axisLength*squareSize, Y: origin.Y, Z: 0},
		{X: origin.X, Y: origin.Y + axisLength*squareSize, Z: 0},
		{X: origin.X, Y: origin.Y, Z: -axisLength * squareSize},
	}
	projected := calib.ProjectPoints(axes, pose, intrinsics, distortion)

	dc.SetLineWidth(2)
	colors := [][3]int{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}}
	for i, c := range colors {
		dc.SetRGB255(c[0], c[1], c[2])
		dc.DrawLine(projected[0].X, projected[0].Y, projected[i+1].X, projected[i+1].Y)
		dc.Stroke()
	}

	// origin marker
	dc.SetRGB255(255, 0, 0)
	dc.DrawCircle(projected[0].X, projected[0].Y, 6)
	dc.Fill()

	// rank/file label at each square center
	labels := make([]r3.Vector, 0, rows*cols)
	for r := 0; r <= rows; r++ {
		for c := 0; c <= cols; c++ {
			labels = append(labels, r3.Vector{
				X: (float64(r) - 0.5) * squareSize,
				Y: (float64(c) - 0.5) * squareSize,
				Z: 0,
			})
		}
	}
	projectedLabels := calib.ProjectPoints(labels, pose, intrinsics, distortion)
	dc.SetRGB255(255, 255, 0)
	i := 0
	for r := 0; r <= rows; r++ {
		for c := 0; c <= cols; c++ {
			name := fmt.Sprintf("%c%d", 'A'+c, r+1)
			dc.DrawStringAnchored(name, projectedLabels[i].X, projectedLabels[i].Y, 0.5, 0.5)
			i++
		}
	}
	return dc.Image()
}

// SavePNG writes an annotated frame to disk.
func SavePNG(path string, img image.Image) error {
	if err := gg.SavePNG(path, img); err != nil {
		return errors.Wrapf(err, "could not save %q", path)
	}
	return nil
}
