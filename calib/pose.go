package calib

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform placing the board model in the camera frame.
type Pose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// Transform applies the pose to a model point, returning it in camera space.
func (p *Pose) Transform(pt r3.Vector) r3.Vector {
	r := p.Rotation
	return r3.Vector{
		X: r.At(0, 0)*pt.X + r.At(0, 1)*pt.Y + r.At(0, 2)*pt.Z + p.Translation.X,
		Y: r.At(1, 0)*pt.X + r.At(1, 1)*pt.Y + r.At(1, 2)*pt.Z + p.Translation.Y,
		Z: r.At(2, 0)*pt.X + r.At(2, 1)*pt.Y + r.At(2, 2)*pt.Z + p.Translation.Z,
	}
}

// ZAxisOutward reports whether the board's local Z axis, after rotation,
// has a positive component along the camera's viewing axis. A pose that
// fails this check sees the board from behind and is not physical.
func (p *Pose) ZAxisOutward() bool {
	return p.Rotation.At(2, 2) > 0
}

// ProjectPoints projects model points through a pose onto the image plane.
// A nil or zero distortion leaves the pinhole projection untouched.
func ProjectPoints(objectPoints []r3.Vector, pose *Pose, intrinsics *Intrinsics, distortion *BrownConrady) []r2.Point {
	projected := make([]r2.Point, len(objectPoints))
	for i, op := range objectPoints {
		cp := pose.Transform(op)
		if distortion.IsZero() {
			projected[i] = intrinsics.PointToPixel(cp)
			continue
		}
		xd, yd := distortion.Transform(cp.X/cp.Z, cp.Y/cp.Z)
		projected[i] = r2.Point{
			X: xd*intrinsics.Fx + intrinsics.Ppx,
			Y: yd*intrinsics.Fy + intrinsics.Ppy,
		}
	}
	return projected
}

// PlanarPoseSolver solves the perspective pose of a planar model (all object
// points with Z=0) from 2D correspondences. It estimates the plane-to-image
// homography and decomposes it against the camera matrix. Distortion is
// assumed to be zero; callers working with distorted detections should
// undistort them first.
type PlanarPoseSolver struct{}

// Solve returns the pose of the Z=0 plane in the camera frame, or an error
// when the correspondences are degenerate.
func (PlanarPoseSolver) Solve(objectPoints []r3.Vector, imagePoints []r2.Point, intrinsics *Intrinsics) (*Pose, error) {
	if len(objectPoints) != len(imagePoints) {
		return nil, errors.Errorf("point count mismatch: %d object, %d image", len(objectPoints), len(imagePoints))
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	planePoints := make([]r2.Point, len(objectPoints))
	for i, op := range objectPoints {
		if op.Z != 0 {
			return nil, errors.New("planar pose solver requires all object points to have Z=0")
		}
		planePoints[i] = r2.Point{X: op.X, Y: op.Y}
	}
	H, err := EstimateHomography(planePoints, imagePoints)
	if err != nil {
		return nil, errors.Wrap(err, "could not estimate plane homography")
	}
	return poseFromHomography(H, intrinsics)
}

// poseFromHomography decomposes H = K [r1 r2 t] into a rotation and a
// translation, following the standard planar decomposition: scale K^-1 H so
// its first two columns are unit rotation columns, complete the rotation
// with their cross product, and re-orthonormalize with an SVD.
func poseFromHomography(H *mat.Dense, intrinsics *Intrinsics) (*Pose, error) {
	var kInv mat.Dense
	if err := kInv.Inverse(intrinsics.CameraMatrix()); err != nil {
		return nil, errors.Wrap(err, "could not invert camera matrix")
	}
	var B mat.Dense
	B.Mul(&kInv, H)

	b1 := r3.Vector{X: B.At(0, 0), Y: B.At(1, 0), Z: B.At(2, 0)}
	b2 := r3.Vector{X: B.At(0, 1), Y: B.At(1, 1), Z: B.At(2, 1)}
	b3 := r3.Vector{X: B.At(0, 2), Y: B.At(1, 2), Z: B.At(2, 2)}

	norm1, norm2 := b1.Norm(), b2.Norm()
	if norm1 < 1e-12 || norm2 < 1e-12 {
		return nil, errors.New("homography decomposition is degenerate")
	}
	lambda := 2. / (norm1 + norm2)
	// the board must sit in front of the camera
	if b3.Z*lambda < 0 {
		lambda = -lambda
	}

	r1 := b1.Mul(lambda)
	r2col := b2.Mul(lambda)
	r3col := r1.Cross(r2col)
	t := b3.Mul(lambda)
	if t.Z <= 0 {
		return nil, errors.New("no convergence: board behind camera")
	}

	Q := mat.NewDense(3, 3, []float64{
		r1.X, r2col.X, r3col.X,
		r1.Y, r2col.Y, r3col.Y,
		r1.Z, r2col.Z, r3col.Z,
	})
	R, err := nearestRotation(Q)
	if err != nil {
		return nil, err
	}
	return &Pose{Rotation: R, Translation: t}, nil
}

// nearestRotation returns the rotation matrix closest to Q in the Frobenius
// sense, R = U V^T with the determinant forced positive.
func nearestRotation(Q *mat.Dense) (*mat.Dense, error) {
	mats := performSVD(Q)
	if mats == nil {
		return nil, errors.New("could not perform SVD on pose matrix")
	}
	var R mat.Dense
	R.Mul(mats.U, mats.VT)
	if mat.Det(&R) < 0 {
		// flip the last column of U
		D := mat.NewDiagDense(3, []float64{1, 1, -1})
		var UD mat.Dense
		UD.Mul(mats.U, D)
		R.Mul(&UD, mats.VT)
	}
	if math.Abs(mat.Det(&R)-1) > 1e-6 {
		return nil, errors.New("could not orthonormalize rotation")
	}
	out := mat.DenseCopyOf(&R)
	return out, nil
}
