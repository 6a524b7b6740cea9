package calib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestProvisional(t *testing.T) {
	provisional := Provisional(640, 480, 1000)
	test.That(t, provisional.CheckValid(), test.ShouldBeNil)
	test.That(t, provisional.Fx, test.ShouldEqual, 1000.0)
	test.That(t, provisional.Fy, test.ShouldEqual, 1000.0)
	test.That(t, provisional.Ppx, test.ShouldEqual, 320.0)
	test.That(t, provisional.Ppy, test.ShouldEqual, 240.0)
}

func TestCheckValid(t *testing.T) {
	var nilParams *Intrinsics
	test.That(t, errors.Is(nilParams.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, errors.Is((&Intrinsics{}).CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	bad := testIntrinsics()
	bad.Fx = -1
	test.That(t, errors.Is(bad.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	test.That(t, testIntrinsics().CheckValid(), test.ShouldBeNil)
}

func TestPointToPixel(t *testing.T) {
	intrinsics := testIntrinsics()

	// a point on the optical axis lands on the principal point
	pt := intrinsics.PointToPixel(r3.Vector{X: 0, Y: 0, Z: 10})
	test.That(t, pt.X, test.ShouldAlmostEqual, 320.0)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 240.0)

	pt = intrinsics.PointToPixel(r3.Vector{X: 1, Y: 2, Z: 10})
	test.That(t, pt.X, test.ShouldAlmostEqual, 420.0)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 440.0)

	// Z=0 cannot be projected
	pt = intrinsics.PointToPixel(r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, pt.X, test.ShouldEqual, -1.0)
	test.That(t, pt.Y, test.ShouldEqual, -1.0)
}

func TestCameraMatrix(t *testing.T) {
	var nilParams *Intrinsics
	test.That(t, nilParams.CameraMatrix(), test.ShouldBeNil)

	K := testIntrinsics().CameraMatrix()
	test.That(t, K.At(0, 0), test.ShouldEqual, 1000.0)
	test.That(t, K.At(1, 1), test.ShouldEqual, 1000.0)
	test.That(t, K.At(0, 2), test.ShouldEqual, 320.0)
	test.That(t, K.At(1, 2), test.ShouldEqual, 240.0)
	test.That(t, K.At(2, 2), test.ShouldEqual, 1.0)
	test.That(t, K.At(1, 0), test.ShouldEqual, 0.0)
}

func TestNewIntrinsicsFromJSONFile(t *testing.T) {
	want := testIntrinsics()
	raw, err := json.Marshal(want)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	test.That(t, os.WriteFile(path, raw, 0o600), test.ShouldBeNil)

	got, err := NewIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, want)

	_, err = NewIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBrownConrady(t *testing.T) {
	// the 5-vector order is (k1, k2, p1, p2, k3)
	bc, err := NewBrownConrady([]float64{0.1, 0.2, 0.3, 0.4, 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK1, test.ShouldEqual, 0.1)
	test.That(t, bc.RadialK2, test.ShouldEqual, 0.2)
	test.That(t, bc.TangentialP1, test.ShouldEqual, 0.3)
	test.That(t, bc.TangentialP2, test.ShouldEqual, 0.4)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0.5)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0.3, 0.4, 0.5})

	short, err := NewBrownConrady([]float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, short.Parameters(), test.ShouldResemble, []float64{0.1, 0, 0, 0, 0})

	_, err = NewBrownConrady(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)

	var nilBC *BrownConrady
	test.That(t, nilBC.IsZero(), test.ShouldBeTrue)
	test.That(t, (&BrownConrady{}).IsZero(), test.ShouldBeTrue)
	test.That(t, bc.IsZero(), test.ShouldBeFalse)

	x, y := nilBC.Transform(0.3, -0.2)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, -0.2)

	// pure radial distortion scales both coordinates by the same factor
	radial := &BrownConrady{RadialK1: 0.1}
	x, y = radial.Transform(0.3, -0.2)
	scale := 1 + 0.1*(0.3*0.3+0.2*0.2)
	test.That(t, x, test.ShouldAlmostEqual, 0.3*scale)
	test.That(t, y, test.ShouldAlmostEqual, -0.2*scale)
}
