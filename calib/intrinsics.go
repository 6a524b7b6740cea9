// Package calib estimates pinhole camera parameters from planar chessboard
// correspondences. It provides the default perspective-pose solver used during
// orientation resolution, the sample store that accumulates accepted frames,
// and the batch calibration engine that turns all samples into intrinsics,
// distortion coefficients, and a reprojection error figure.
package calib

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when camera intrinsic parameters are not available.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// DefaultProvisionalFocal is the focal length guess used before any
// calibration exists. It only needs to be in the right ballpark for
// orientation resolution to rank candidates correctly.
const DefaultProvisionalFocal = 1000.0

// Intrinsics holds the parameters necessary to do a perspective projection of
// a 3D scene onto the 2D image plane.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// Provisional returns the fixed focal-length intrinsic guess centered on an
// image of the given size. It is a deliberate approximation, distinct from
// any calibrated intrinsics.
func Provisional(width, height int, focal float64) *Intrinsics {
	return &Intrinsics{
		Width:  width,
		Height: height,
		Fx:     focal,
		Fy:     focal,
		Ppx:    float64(width) / 2.,
		Ppy:    float64(height) / 2.,
	}
}

// CheckValid checks if the fields for Intrinsics have valid inputs.
func (params *Intrinsics) CheckValid() error {
	if params == nil {
		return ErrNoIntrinsics
	}
	if params.Width == 0 || params.Height == 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid size (%d, %d)", params.Width, params.Height)
	}
	if params.Fx <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length Fx = %v", params.Fx)
	}
	if params.Fy <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length Fy = %v", params.Fy)
	}
	if params.Ppx < 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid principal point Ppx = %v", params.Ppx)
	}
	if params.Ppy < 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid principal point Ppy = %v", params.Ppy)
	}
	return nil
}

// CameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *Intrinsics) CameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// PointToPixel projects a 3D point in camera space to a pixel on the image
// plane, without applying any distortion model.
func (params *Intrinsics) PointToPixel(pt r3.Vector) r2.Point {
	if pt.Z == 0 {
		return r2.Point{X: -1, Y: -1}
	}
	return r2.Point{
		X: (pt.X/pt.Z)*params.Fx + params.Ppx,
		Y: (pt.Y/pt.Z)*params.Fy + params.Ppy,
	}
}

// NewIntrinsicsFromJSONFile reads Intrinsics from a JSON file.
func NewIntrinsicsFromJSONFile(jsonPath string) (*Intrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &Intrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// MeanReprojectionError returns the mean Euclidean pixel distance between
// projected and detected points. The two slices must have the same length.
func MeanReprojectionError(projected, detected []r2.Point) float64 {
	if len(projected) != len(detected) || len(projected) == 0 {
		return math.Inf(1)
	}
	errSum := 0.0
	for i := range projected {
		errSum += projected[i].Sub(detected[i]).Norm()
	}
	return errSum / float64(len(projected))
}

func (params *Intrinsics) String() string {
	return fmt.Sprintf("fx=%.2f fy=%.2f ppx=%.2f ppy=%.2f (%dx%d)",
		params.Fx, params.Fy, params.Ppx, params.Ppy, params.Width, params.Height)
}
