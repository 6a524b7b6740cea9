package calib

import "github.com/pkg/errors"

// BrownConrady applies the forward Brown-Conrady distortion model to
// normalized image coordinates. The coefficient order matches the usual
// 5-vector convention (k1, k2, p1, p2, k3).
//
// The forward model is:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x*y + p1*(r² + 2*y²)
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of up to 5 floats (k1, k2, p1, p2, k3)
// and fills any missing values with 0.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	for i := len(inp); i < 5; i++ {
		inp = append(inp, 0.0)
	}
	return &BrownConrady{inp[0], inp[1], inp[4], inp[2], inp[3]}, nil
}

// Parameters returns the distortion coefficients as the usual 5-vector
// (k1, k2, p1, p2, k3).
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{0, 0, 0, 0, 0}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// IsZero reports whether all coefficients are zero.
func (bc *BrownConrady) IsZero() bool {
	if bc == nil {
		return true
	}
	return bc.RadialK1 == 0 && bc.RadialK2 == 0 && bc.RadialK3 == 0 &&
		bc.TangentialP1 == 0 && bc.TangentialP2 == 0
}

// Transform distorts the normalized coordinates (x, y).
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + 2*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2*y*y)
	return xd, yd
}
