package calib

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EstimateHomography computes the 3x3 homography mapping the planar points
// pts1 onto the image points pts2 with the normalized DLT. At least 4
// correspondences are required.
func EstimateHomography(pts1, pts2 []r2.Point) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}
	nPoints := len(pts1)

	// normalize points and keep the similarity transforms
	points1, T1 := normalizePoints(pts1)
	points2, T2 := normalizePoints(pts2)
	if T1 == nil || T2 == nil {
		return nil, errors.New("points are degenerate, cannot normalize")
	}

	m := mat.NewDense(2*nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(2*i, []float64{
			-v1.X, -v1.Y, -1,
			0, 0, 0,
			v2.X * v1.X, v2.X * v1.Y, v2.X,
		})
		m.SetRow(2*i+1, []float64{
			0, 0, 0,
			-v1.X, -v1.Y, -1,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
		})
	}

	// the homography is the right singular vector with the smallest
	// singular value
	mats := performSVD(m)
	if mats == nil {
		return nil, errors.New("could not perform SVD on correspondence matrix")
	}
	lastColV := mats.V.ColView(8)
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	H := mat.NewDense(3, 3, lastColVdata)

	// denormalize: H = T2^-1 @ Hnorm @ T1
	var T2Inv mat.Dense
	if err := T2Inv.Inverse(T2); err != nil {
		return nil, errors.Wrap(err, "could not invert normalization transform")
	}
	H.Mul(&T2Inv, H)
	H.Mul(H, T1)

	if math.Abs(H.At(2, 2)) < 1e-12 {
		return nil, errors.New("degenerate homography")
	}
	H.Scale(1/H.At(2, 2), H)
	return H, nil
}

// ApplyHomography maps a point through the homography and dehomogenizes it.
func ApplyHomography(h *mat.Dense, pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	// compute centroid of points
	mu := r2.Point{}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	if d == 0 {
		return nil, nil
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	// apply transform to points
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, T
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}
}
