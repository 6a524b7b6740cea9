package calib

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientData is returned when calibration is attempted without
// enough accepted samples.
var ErrInsufficientData = errors.New("insufficient data to calibrate")

// minSamples is the minimum number of views needed to constrain the image of
// the absolute conic for a planar target.
const minSamples = 3

// RunCalibration solves for camera intrinsics and distortion from all
// samples accumulated in the store, using Zhang's planar calibration method.
// The store is only read; it holds no references into the result.
func RunCalibration(store *SampleStore, width, height int) (*Result, error) {
	if store == nil || store.Count() == 0 {
		return nil, ErrInsufficientData
	}
	if store.Count() < minSamples {
		return nil, errors.Wrapf(ErrInsufficientData, "have %d samples, need at least %d", store.Count(), minSamples)
	}
	return calibrateCamera(store.Samples(), width, height)
}

func calibrateCamera(samples []Sample, width, height int) (*Result, error) {
	homographies := make([]*mat.Dense, len(samples))
	for i, s := range samples {
		planePoints := make([]r2.Point, len(s.ObjectPoints))
		for j, op := range s.ObjectPoints {
			if op.Z != 0 {
				return nil, errors.New("calibration requires a planar target with Z=0 object points")
			}
			planePoints[j] = r2.Point{X: op.X, Y: op.Y}
		}
		H, err := EstimateHomography(planePoints, s.ImagePoints)
		if err != nil {
			return nil, errors.Wrapf(err, "could not estimate homography for sample %d", i)
		}
		homographies[i] = H
	}

	intrinsics, err := intrinsicsFromHomographies(homographies, width, height)
	if err != nil {
		return nil, err
	}

	// per-view extrinsics, discarded after the error aggregate
	poses := make([]*Pose, len(samples))
	for i, H := range homographies {
		pose, err := poseFromHomography(H, intrinsics)
		if err != nil {
			return nil, errors.Wrapf(err, "could not recover extrinsics for sample %d", i)
		}
		poses[i] = pose
	}

	distortion := estimateRadialDistortion(samples, poses, intrinsics)

	errSum, nPoints := 0.0, 0
	for i, s := range samples {
		projected := ProjectPoints(s.ObjectPoints, poses[i], intrinsics, distortion)
		for j := range projected {
			errSum += projected[j].Sub(s.ImagePoints[j]).Norm()
			nPoints++
		}
	}

	return &Result{
		Intrinsics:      *intrinsics,
		Distortion:      distortion,
		MeanReprojError: errSum / float64(nPoints),
	}, nil
}

// intrinsicsFromHomographies solves the absolute-conic constraints
// v12 . b = 0 and (v11 - v22) . b = 0 stacked over all views, then extracts
// the closed-form intrinsics. The skew recovered from the conic is dropped;
// the pinhole model here has none.
func intrinsicsFromHomographies(homographies []*mat.Dense, width, height int) (*Intrinsics, error) {
	V := mat.NewDense(2*len(homographies), 6, nil)
	for i, H := range homographies {
		V.SetRow(2*i, conicConstraint(H, 0, 1))
		v00 := conicConstraint(H, 0, 0)
		v11 := conicConstraint(H, 1, 1)
		row := make([]float64, 6)
		for j := range row {
			row[j] = v00[j] - v11[j]
		}
		V.SetRow(2*i+1, row)
	}

	mats := performSVD(V)
	if mats == nil {
		return nil, errors.New("could not perform SVD on conic constraint matrix")
	}
	b := make([]float64, 6)
	lastColV := mats.V.ColView(5)
	for i := range b {
		b[i] = lastColV.AtVec(i)
	}
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]
	// B is defined up to sign; it must be positive definite
	if b11 < 0 {
		b11, b12, b22, b13, b23, b33 = -b11, -b12, -b22, -b13, -b23, -b33
	}

	denom := b11*b22 - b12*b12
	if math.Abs(denom) < 1e-15 || b11 == 0 {
		return nil, errors.New("calibration failed: degenerate view geometry")
	}
	v0 := (b12*b13 - b11*b23) / denom
	lambda := b33 - (b13*b13+v0*(b12*b13-b11*b23))/b11
	if lambda/b11 <= 0 || lambda*b11/denom <= 0 {
		return nil, errors.New("calibration failed: conic is not positive definite")
	}
	alpha := math.Sqrt(lambda / b11)
	beta := math.Sqrt(lambda * b11 / denom)
	gamma := -b12 * alpha * alpha * beta / lambda
	u0 := gamma*v0/beta - b13*alpha*alpha/lambda

	intrinsics := &Intrinsics{
		Width:  width,
		Height: height,
		Fx:     alpha,
		Fy:     beta,
		Ppx:    u0,
		Ppy:    v0,
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "calibration produced invalid intrinsics")
	}
	return intrinsics, nil
}

// conicConstraint builds the 6-vector v_ij from columns i and j of H such
// that v_ij . b = h_i^T B h_j for the symmetric conic B.
func conicConstraint(H *mat.Dense, i, j int) []float64 {
	hi := []float64{H.At(0, i), H.At(1, i), H.At(2, i)}
	hj := []float64{H.At(0, j), H.At(1, j), H.At(2, j)}
	return []float64{
		hi[0] * hj[0],
		hi[0]*hj[1] + hi[1]*hj[0],
		hi[1] * hj[1],
		hi[2]*hj[0] + hi[0]*hj[2],
		hi[2]*hj[1] + hi[1]*hj[2],
		hi[2] * hj[2],
	}
}

// estimateRadialDistortion fits the k1, k2 radial coefficients with linear
// least squares against the pinhole reprojections. A rank-deficient system
// (e.g. perfectly undistorted synthetic data seen fronto-parallel) falls
// back to zero distortion.
func estimateRadialDistortion(samples []Sample, poses []*Pose, intrinsics *Intrinsics) *BrownConrady {
	nPoints := 0
	for _, s := range samples {
		nPoints += len(s.ObjectPoints)
	}
	D := mat.NewDense(2*nPoints, 2, nil)
	d := mat.NewVecDense(2*nPoints, nil)
	row := 0
	for i, s := range samples {
		for j, op := range s.ObjectPoints {
			cp := poses[i].Transform(op)
			x, y := cp.X/cp.Z, cp.Y/cp.Z
			radius2 := x*x + y*y
			radius4 := radius2 * radius2
			u := x*intrinsics.Fx + intrinsics.Ppx
			v := y*intrinsics.Fy + intrinsics.Ppy
			observed := s.ImagePoints[j]
			D.SetRow(2*row, []float64{(u - intrinsics.Ppx) * radius2, (u - intrinsics.Ppx) * radius4})
			d.SetVec(2*row, observed.X-u)
			D.SetRow(2*row+1, []float64{(v - intrinsics.Ppy) * radius2, (v - intrinsics.Ppy) * radius4})
			d.SetVec(2*row+1, observed.Y-v)
			row++
		}
	}
	var k mat.VecDense
	if err := k.SolveVec(D, d); err != nil {
		return &BrownConrady{}
	}
	return &BrownConrady{RadialK1: k.AtVec(0), RadialK2: k.AtVec(1)}
}
