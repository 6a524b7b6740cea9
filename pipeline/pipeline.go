// Package pipeline drives one calibration session: it pulls frames from a
// source, gates out blurred ones, detects the corner grid, resolves the
// board orientation, accumulates accepted samples, and finally runs the
// batch calibration. The whole pipeline is single-threaded and synchronous;
// one frame is fully processed before the next is requested, and
// cancellation is only observed between frames.
package pipeline

import (
	"context"
	"image"
	"image/draw"
	"io"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/boardcal/calib"
	"go.viam.com/boardcal/chessboard"
)

// FrameSource yields frames for one calibration session.
type FrameSource interface {
	// Next returns the next frame, or io.EOF at end of stream.
	Next(ctx context.Context) (image.Image, error)
	// Size returns the frame dimensions.
	Size() (width, height int)
	// Count returns the known number of frames, or -1 when unbounded.
	Count() int
	Close() error
}

// CornerFinder extracts a corner grid from a frame, in arbitrary scan order.
type CornerFinder interface {
	FindCorners(img image.Image) (chessboard.Grid, error)
}

// BlurGate reports whether a frame is too blurred to use.
type BlurGate func(gray *image.Gray) bool

// Config holds the session parameters.
type Config struct {
	Rows       int
	Cols       int
	SquareSize float64
	// RequiredFrames is how many accepted frames end an unbounded session.
	RequiredFrames int
	// ProvisionalFocal is the focal-length guess used during orientation
	// resolution, before any calibration exists.
	ProvisionalFocal float64
}

// Pipeline runs one calibration session.
type Pipeline struct {
	cfg      Config
	finder   CornerFinder
	blurred  BlurGate
	resolver *chessboard.Resolver
	store    *calib.SampleStore
	logger   golog.Logger

	lastAccepted  image.Image
	lastCandidate *chessboard.Candidate
}

// New assembles a pipeline. A nil blur gate disables blur checking.
func New(cfg Config, finder CornerFinder, blurred BlurGate, resolver *chessboard.Resolver, logger golog.Logger) *Pipeline {
	if cfg.ProvisionalFocal == 0 {
		cfg.ProvisionalFocal = calib.DefaultProvisionalFocal
	}
	return &Pipeline{
		cfg:      cfg,
		finder:   finder,
		blurred:  blurred,
		resolver: resolver,
		store:    calib.NewSampleStore(),
		logger:   logger,
	}
}

// Store returns the sample store backing this session.
func (p *Pipeline) Store() *calib.SampleStore { return p.store }

// LastAccepted returns an unmodified copy of the most recently accepted
// frame, or nil when no frame was accepted. Overlay drawing on the returned
// image never feeds back into detection.
func (p *Pipeline) LastAccepted() image.Image { return p.lastAccepted }

// LastCandidate returns the orientation candidate of the most recently
// accepted frame, or nil.
func (p *Pipeline) LastCandidate() *chessboard.Candidate { return p.lastCandidate }

// Run processes frames until the source ends or enough frames were accepted,
// then calibrates from all accumulated samples. Per-frame failures (blur, no
// detection, no valid orientation) are logged and skipped; the loop always
// progresses to the next frame. Only the terminal calibration step can fail.
func (p *Pipeline) Run(ctx context.Context, src FrameSource) (*calib.Result, error) {
	width, height := src.Size()
	provisional := calib.Provisional(width, height, p.cfg.ProvisionalFocal)

	frameIdx := 0
	for {
		// cancellation is coarse: checked between frame iterations only
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.cfg.RequiredFrames > 0 && p.store.Count() >= p.cfg.RequiredFrames {
			break
		}
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "frame source failed")
		}
		accepted := p.ProcessFrame(frame, provisional)
		p.logger.Debugf("frame %d: accepted=%t (%d/%d)", frameIdx, accepted, p.store.Count(), p.cfg.RequiredFrames)
		frameIdx++
	}

	return calib.RunCalibration(p.store, width, height)
}

// ProcessFrame runs one frame through the gate/detect/resolve stages and
// reports whether it was accepted into the sample store.
func (p *Pipeline) ProcessFrame(frame image.Image, provisional *calib.Intrinsics) bool {
	gray := grayscale(frame)

	if p.blurred != nil && p.blurred(gray) {
		p.logger.Debug("frame is blurred")
		return false
	}

	grid, err := p.finder.FindCorners(frame)
	if err != nil {
		p.logger.Debugf("chessboard not found: %v", err)
		return false
	}

	candidate, err := p.resolver.Resolve(grid, gray, provisional, p.cfg.SquareSize)
	if err != nil {
		p.logger.Debugf("pose not valid: %v", err)
		return false
	}

	objectPoints := chessboard.ObjectPoints(grid.Rows(), grid.Cols(), p.cfg.SquareSize)
	if err := p.store.Add(candidate.Grid.Points(), objectPoints); err != nil {
		p.logger.Errorw("could not store sample", "error", err)
		return false
	}

	// keep a clean copy for later visualization; overlays must never touch
	// the buffer that feeds the next detection cycle
	p.lastAccepted = cloneImage(frame)
	p.lastCandidate = candidate
	p.logger.Infof("accepted frame: orientation=%v reprojErr=%.2fpx samples=%d",
		candidate.Orientation, candidate.MeanReprojError, p.store.Count())
	return true
}

func grayscale(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

func cloneImage(img image.Image) image.Image {
	clone := image.NewRGBA(img.Bounds())
	draw.Draw(clone, clone.Bounds(), img, img.Bounds().Min, draw.Src)
	return clone
}
