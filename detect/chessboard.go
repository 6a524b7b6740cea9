// Package detect provides the external detection collaborators of the
// calibration pipeline: OpenCV-backed chessboard corner extraction and a
// Laplacian-variance blur gate.
package detect

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.viam.com/boardcal/chessboard"
)

// ErrChessboardNotFound is returned when no full corner grid is visible in a
// frame. It is a transient per-frame condition, not a failure.
var ErrChessboardNotFound = errors.New("chessboard not found")

// ChessboardFinder extracts a full inner-corner grid from a frame using
// OpenCV's chessboard detector, refined to subpixel accuracy.
type ChessboardFinder struct {
	rows, cols int
}

// NewChessboardFinder returns a finder for a board with the given number of
// inner corners per column (rows) and per row (cols).
func NewChessboardFinder(rows, cols int) (*ChessboardFinder, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("invalid chessboard dimensions %dx%d", rows, cols)
	}
	return &ChessboardFinder{rows: rows, cols: cols}, nil
}

// FindCorners detects the corner grid in img. The returned grid is in the
// detector's arbitrary scan order; orientation resolution happens later.
func (f *ChessboardFinder) FindCorners(img image.Image) (grid chessboard.Grid, err error) {
	m, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return chessboard.Grid{}, errors.Wrap(err, "could not convert frame for detection")
	}
	defer func() {
		err = multierr.Combine(err, m.Close())
	}()

	corners := gocv.NewMat()
	defer func() {
		err = multierr.Combine(err, corners.Close())
	}()

	patternSize := image.Pt(f.cols, f.rows)
	found := gocv.FindChessboardCorners(m, patternSize, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage)
	if !found {
		return chessboard.Grid{}, ErrChessboardNotFound
	}

	gray := gocv.NewMat()
	defer func() {
		err = multierr.Combine(err, gray.Close())
	}()
	gocv.CvtColor(m, &gray, gocv.ColorRGBToGray)

	// refine to subpixel accuracy before handing the grid downstream
	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, 30, 0.1)
	gocv.CornerSubPix(gray, &corners, image.Pt(11, 11), image.Pt(-1, -1), criteria)

	points := make([]r2.Point, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		vec := corners.GetVecfAt(i, 0)
		points = append(points, r2.Point{X: float64(vec[0]), Y: float64(vec[1])})
	}
	return chessboard.NewGrid(points, f.rows, f.cols)
}
