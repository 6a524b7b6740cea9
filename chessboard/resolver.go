package chessboard

import (
	"image"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/boardcal/calib"
)

// ErrNoValidPose is returned when no orientation candidate passes the
// geometric gates; the frame contributes nothing to calibration.
var ErrNoValidPose = errors.New("no geometrically valid board orientation")

// PoseSolver solves the perspective pose of the planar board model from 2D
// correspondences, assuming zero distortion. Orientation resolution always
// works against undistorted provisional intrinsics, so distortion is not
// part of this contract.
type PoseSolver interface {
	Solve(objectPoints []r3.Vector, imagePoints []r2.Point, intrinsics *calib.Intrinsics) (*calib.Pose, error)
}

// ResolverConfig holds the policy parameters for orientation acceptance.
type ResolverConfig struct {
	// MaxReprojError is the hard acceptance gate on the mean per-point
	// reprojection error, in pixels.
	MaxReprojError float64
	Marker         MarkerConfig
}

// DefaultResolverConfig returns the resolution defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		MaxReprojError: 15.0,
		Marker:         DefaultMarkerConfig(),
	}
}

// Candidate is one orientation hypothesis that passed the geometric gates.
type Candidate struct {
	Orientation     Orientation
	Grid            Grid
	Pose            *calib.Pose
	MeanReprojError float64
}

// Resolver resolves the physical orientation of a detected grid. The darkest
// outer square hints at the answer, but geometry is authoritative: each of
// the four orientations is scored by solving a pose and measuring
// reprojection consistency, and only geometric validity decides.
type Resolver struct {
	solver PoseSolver
	cfg    ResolverConfig
	logger golog.Logger
}

// NewResolver returns a resolver using the given pose solver.
func NewResolver(solver PoseSolver, cfg ResolverConfig, logger golog.Logger) *Resolver {
	return &Resolver{solver: solver, cfg: cfg, logger: logger}
}

// Resolve enumerates all four orientations of the raw detected grid and
// returns the one with the lowest mean reprojection error among those that
// pass the gates: the pose solve must converge, the board normal must point
// away from the camera, and the error must stay under MaxReprojError. Ties
// resolve to the lowest orientation index. When nothing passes,
// ErrNoValidPose is returned and the frame is rejected.
//
// Brightness of the outer squares is sampled purely as a diagnostic; a
// marker washed out by lighting must not veto a geometrically sound pose.
func (r *Resolver) Resolve(raw Grid, gray *image.Gray, provisional *calib.Intrinsics, squareSize float64) (*Candidate, error) {
	brightness := OuterSquareBrightness(gray, raw, r.cfg.Marker)
	objectPoints := ObjectPoints(raw.Rows(), raw.Cols(), squareSize)

	candidates := make([]Candidate, 0, 4)
	for _, o := range Orientations() {
		reordered := raw.Reorder(o)
		pose, err := r.solver.Solve(objectPoints, reordered.Points(), provisional)
		if err != nil {
			r.logger.Debugf("orientation %v: brightness=%.1f, no convergence: %v", o, brightness[o], err)
			continue
		}
		if !pose.ZAxisOutward() {
			r.logger.Debugf("orientation %v: brightness=%.1f, board normal points into the camera", o, brightness[o])
			continue
		}
		projected := calib.ProjectPoints(objectPoints, pose, provisional, nil)
		meanErr := calib.MeanReprojectionError(projected, reordered.Points())
		r.logger.Debugf("orientation %v: brightness=%.1f, reprojErr=%.2f (max %.1f)",
			o, brightness[o], meanErr, r.cfg.MaxReprojError)
		if meanErr >= r.cfg.MaxReprojError {
			continue
		}
		candidates = append(candidates, Candidate{
			Orientation:     o,
			Grid:            reordered,
			Pose:            pose,
			MeanReprojError: meanErr,
		})
	}

	best := bestCandidate(candidates)
	if best == nil {
		return nil, ErrNoValidPose
	}
	return best, nil
}

// bestCandidate picks the candidate with the minimum mean reprojection
// error. Candidates arrive in orientation enumeration order, so a strict
// comparison breaks ties toward the lowest orientation index.
func bestCandidate(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		if best == nil || candidates[i].MeanReprojError < best.MeanReprojError {
			best = &candidates[i]
		}
	}
	return best
}
