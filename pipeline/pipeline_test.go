package pipeline

import (
	"context"
	"image"
	"io"
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/boardcal/calib"
	"go.viam.com/boardcal/chessboard"
)

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

func trueIntrinsics() *calib.Intrinsics {
	return &calib.Intrinsics{Width: 640, Height: 480, Fx: 1000, Fy: 1000, Ppx: 320, Ppy: 240}
}

// fakeSource replays uniform gray frames; frame i has pixel value values[i]
// so the blur gate can single out frames by content.
type fakeSource struct {
	values []uint8
	idx    int
	closed bool
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.idx >= len(s.values) {
		return nil, io.EOF
	}
	gray := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range gray.Pix {
		gray.Pix[i] = s.values[s.idx]
	}
	s.idx++
	return gray, nil
}

func (s *fakeSource) Size() (int, int) { return 640, 480 }
func (s *fakeSource) Count() int       { return len(s.values) }
func (s *fakeSource) Close() error     { s.closed = true; return nil }

// fakeFinder hands out precomputed grids by call order, simulating a corner
// detector that sees a different board pose in every frame.
type fakeFinder struct {
	grids []chessboard.Grid
	fail  map[int]bool
	calls int
}

func (f *fakeFinder) FindCorners(img image.Image) (chessboard.Grid, error) {
	call := f.calls
	f.calls++
	if f.fail[call] {
		return chessboard.Grid{}, errors.New("no chessboard in frame")
	}
	return f.grids[call%len(f.grids)], nil
}

// syntheticGrids projects the board model under n distinct poses.
func syntheticGrids(t *testing.T, n int, intrinsics *calib.Intrinsics) []chessboard.Grid {
	t.Helper()
	objectPoints := chessboard.ObjectPoints(7, 7, 1.0)
	grids := make([]chessboard.Grid, 0, n)
	for i := 0; i < n; i++ {
		pose := &calib.Pose{
			Rotation:    rotationXY(0.15+0.04*float64(i), -0.25+0.05*float64(i)),
			Translation: r3.Vector{X: -3, Y: -3, Z: 18 + float64(i%3)},
		}
		imagePoints := calib.ProjectPoints(objectPoints, pose, intrinsics, nil)
		grid, err := chessboard.NewGrid(imagePoints, 7, 7)
		test.That(t, err, test.ShouldBeNil)
		grids = append(grids, grid)
	}
	return grids
}

func newTestPipeline(t *testing.T, cfg Config, finder CornerFinder, blurred BlurGate) *Pipeline {
	t.Helper()
	logger := golog.NewTestLogger(t)
	resolver := chessboard.NewResolver(calib.PlanarPoseSolver{}, chessboard.DefaultResolverConfig(), logger)
	return New(cfg, finder, blurred, resolver, logger)
}

func TestPipelineRun(t *testing.T) {
	intrinsics := trueIntrinsics()

	// 14 frames: one is flagged blurred, one defeats the detector, so
	// exactly 12 frames contribute samples
	values := make([]uint8, 14)
	for i := range values {
		values[i] = uint8(100 + i)
	}
	src := &fakeSource{values: values}
	blurred := func(gray *image.Gray) bool { return gray.Pix[0] == 103 }
	finder := &fakeFinder{grids: syntheticGrids(t, 14, intrinsics), fail: map[int]bool{7: true}}

	cfg := Config{Rows: 7, Cols: 7, SquareSize: 1.0, RequiredFrames: 12}
	p := newTestPipeline(t, cfg, finder, blurred)

	result, err := p.Run(context.Background(), src)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Store().Count(), test.ShouldEqual, 12)

	test.That(t, result.Intrinsics.Fx, test.ShouldAlmostEqual, intrinsics.Fx, 1e-2)
	test.That(t, result.Intrinsics.Fy, test.ShouldAlmostEqual, intrinsics.Fy, 1e-2)
	test.That(t, result.Intrinsics.Ppx, test.ShouldAlmostEqual, intrinsics.Ppx, 1e-2)
	test.That(t, result.Intrinsics.Ppy, test.ShouldAlmostEqual, intrinsics.Ppy, 1e-2)
	test.That(t, result.MeanReprojError, test.ShouldBeLessThan, 1e-3)

	test.That(t, p.LastAccepted(), test.ShouldNotBeNil)
	test.That(t, p.LastCandidate(), test.ShouldNotBeNil)
}

func TestPipelineRunSourceEnds(t *testing.T) {
	intrinsics := trueIntrinsics()
	src := &fakeSource{values: []uint8{100, 101, 102, 103, 104}}
	finder := &fakeFinder{grids: syntheticGrids(t, 5, intrinsics)}

	// the source ends before 12 frames are accepted, so the batch runs on
	// whatever was collected: 5 views are enough to calibrate
	cfg := Config{Rows: 7, Cols: 7, SquareSize: 1.0, RequiredFrames: 12}
	p := newTestPipeline(t, cfg, finder, nil)

	result, err := p.Run(context.Background(), src)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Store().Count(), test.ShouldEqual, 5)
	test.That(t, result.Intrinsics.Fx, test.ShouldAlmostEqual, intrinsics.Fx, 1e-2)
}

func TestPipelineRunInsufficient(t *testing.T) {
	intrinsics := trueIntrinsics()
	src := &fakeSource{values: []uint8{100, 101}}
	finder := &fakeFinder{grids: syntheticGrids(t, 2, intrinsics)}

	p := newTestPipeline(t, Config{Rows: 7, Cols: 7, SquareSize: 1.0}, finder, nil)
	_, err := p.Run(context.Background(), src)
	test.That(t, errors.Is(err, calib.ErrInsufficientData), test.ShouldBeTrue)
}

func TestPipelineRunCanceled(t *testing.T) {
	src := &fakeSource{values: []uint8{100}}
	p := newTestPipeline(t, Config{Rows: 7, Cols: 7, SquareSize: 1.0}, &fakeFinder{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, src)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestProcessFrameRejections(t *testing.T) {
	intrinsics := trueIntrinsics()
	provisional := calib.Provisional(640, 480, 0)
	grids := syntheticGrids(t, 1, intrinsics)

	frame := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}

	// blur gate fires first
	p := newTestPipeline(t, Config{Rows: 7, Cols: 7, SquareSize: 1.0},
		&fakeFinder{grids: grids}, func(*image.Gray) bool { return true })
	test.That(t, p.ProcessFrame(frame, provisional), test.ShouldBeFalse)
	test.That(t, p.Store().Count(), test.ShouldEqual, 0)
	test.That(t, p.LastAccepted(), test.ShouldBeNil)

	// detector failure is skipped, not fatal
	p = newTestPipeline(t, Config{Rows: 7, Cols: 7, SquareSize: 1.0},
		&fakeFinder{grids: grids, fail: map[int]bool{0: true}}, nil)
	test.That(t, p.ProcessFrame(frame, provisional), test.ShouldBeFalse)
	test.That(t, p.Store().Count(), test.ShouldEqual, 0)

	// a clean frame is accepted
	p = newTestPipeline(t, Config{Rows: 7, Cols: 7, SquareSize: 1.0},
		&fakeFinder{grids: grids}, nil)
	test.That(t, p.ProcessFrame(frame, provisional), test.ShouldBeTrue)
	test.That(t, p.Store().Count(), test.ShouldEqual, 1)
	test.That(t, p.LastAccepted(), test.ShouldNotBeNil)
}
