package calib

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// rotationXY composes rotations about the camera X and Y axes.
func rotationXY(thetaX, thetaY float64) *mat.Dense {
	cx, sx := math.Cos(thetaX), math.Sin(thetaX)
	cy, sy := math.Cos(thetaY), math.Sin(thetaY)
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	ry := mat.NewDense(3, 3, []float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	var r mat.Dense
	r.Mul(ry, rx)
	return mat.DenseCopyOf(&r)
}

func boardPoints(rows, cols int, square float64) []r3.Vector {
	points := make([]r3.Vector, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			points = append(points, r3.Vector{X: float64(r) * square, Y: float64(c) * square})
		}
	}
	return points
}

func testIntrinsics() *Intrinsics {
	return &Intrinsics{Width: 640, Height: 480, Fx: 1000, Fy: 1000, Ppx: 320, Ppy: 240}
}

func TestPlanarPoseSolverRecovers(t *testing.T) {
	intrinsics := testIntrinsics()
	truePose := &Pose{
		Rotation:    rotationXY(0.35, -0.15),
		Translation: r3.Vector{X: -3, Y: -3, Z: 20},
	}
	objectPoints := boardPoints(7, 7, 1.0)
	imagePoints := ProjectPoints(objectPoints, truePose, intrinsics, nil)

	pose, err := PlanarPoseSolver{}.Solve(objectPoints, imagePoints, intrinsics)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, pose.Rotation.At(i, j), test.ShouldAlmostEqual, truePose.Rotation.At(i, j), 1e-6)
		}
	}
	test.That(t, pose.Translation.X, test.ShouldAlmostEqual, truePose.Translation.X, 1e-6)
	test.That(t, pose.Translation.Y, test.ShouldAlmostEqual, truePose.Translation.Y, 1e-6)
	test.That(t, pose.Translation.Z, test.ShouldAlmostEqual, truePose.Translation.Z, 1e-6)
	test.That(t, pose.ZAxisOutward(), test.ShouldBeTrue)

	projected := ProjectPoints(objectPoints, pose, intrinsics, nil)
	test.That(t, MeanReprojectionError(projected, imagePoints), test.ShouldBeLessThan, 1e-8)
}

func TestPlanarPoseSolverErrors(t *testing.T) {
	intrinsics := testIntrinsics()
	objectPoints := boardPoints(3, 3, 1.0)

	_, err := PlanarPoseSolver{}.Solve(objectPoints, nil, intrinsics)
	test.That(t, err, test.ShouldNotBeNil)

	truePose := &Pose{Rotation: rotationXY(0.1, 0.1), Translation: r3.Vector{X: -1, Y: -1, Z: 10}}
	imagePoints := ProjectPoints(objectPoints, truePose, intrinsics, nil)

	_, err = PlanarPoseSolver{}.Solve(objectPoints, imagePoints, &Intrinsics{})
	test.That(t, err, test.ShouldNotBeNil)

	nonPlanar := append([]r3.Vector{}, objectPoints...)
	nonPlanar[4].Z = 1.0
	_, err = PlanarPoseSolver{}.Solve(nonPlanar, imagePoints, intrinsics)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMeanReprojectionError(t *testing.T) {
	projected := []r2.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}
	detected := []r2.Point{{X: 3, Y: 4}, {X: 10, Y: 0}}
	test.That(t, MeanReprojectionError(projected, detected), test.ShouldAlmostEqual, 2.5)

	test.That(t, math.IsInf(MeanReprojectionError(projected, detected[:1]), 1), test.ShouldBeTrue)
	test.That(t, math.IsInf(MeanReprojectionError(nil, nil), 1), test.ShouldBeTrue)
}
