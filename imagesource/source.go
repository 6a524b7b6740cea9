// Package imagesource provides the frame-source collaborators of the
// calibration pipeline: live webcam capture and still-frame sequences from
// disk.
package imagesource

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Webcam captures frames from a local camera device.
type Webcam struct {
	deviceID int
	capture  *gocv.VideoCapture
}

// NewWebcam opens a camera device for capture.
func NewWebcam(deviceID int) (*Webcam, error) {
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open camera device %d", deviceID)
	}
	return &Webcam{deviceID: deviceID, capture: capture}, nil
}

// Next returns the next captured frame.
func (w *Webcam) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := gocv.NewMat()
	defer func() {
		_ = m.Close()
	}()
	if ok := w.capture.Read(&m); !ok || m.Empty() {
		return nil, errors.Errorf("cannot read camera device %d", w.deviceID)
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "could not decode camera frame")
	}
	return img, nil
}

// Size returns the capture frame dimensions.
func (w *Webcam) Size() (int, int) {
	return int(w.capture.Get(gocv.VideoCaptureFrameWidth)), int(w.capture.Get(gocv.VideoCaptureFrameHeight))
}

// Count returns -1; a camera stream is unbounded.
func (w *Webcam) Count() int { return -1 }

// Close releases the camera device.
func (w *Webcam) Close() error {
	return w.capture.Close()
}

// EnumerateWebcams probes device IDs from 0 up to maxDevices and returns the
// ones that open successfully.
func EnumerateWebcams(maxDevices int) []int {
	var available []int
	for i := 0; i < maxDevices; i++ {
		capture, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if capture.IsOpened() {
			available = append(available, i)
		}
		_ = capture.Close()
	}
	return available
}

// ImageSequence replays still frames from a directory in lexical order.
type ImageSequence struct {
	paths  []string
	idx    int
	first  image.Image
	width  int
	height int
}

var sequenceExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// NewImageSequence scans dir for image files. The first frame is decoded
// eagerly so the frame size is known before iteration starts.
func NewImageSequence(dir string) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read frame directory %q", dir)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if sequenceExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no images found in %q", dir)
	}
	sort.Strings(paths)

	first, err := imaging.Open(paths[0])
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode first frame %q", paths[0])
	}
	bounds := first.Bounds()
	return &ImageSequence{
		paths:  paths,
		first:  first,
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}, nil
}

// Next returns the next frame, or io.EOF at the end of the sequence.
func (s *ImageSequence) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.idx >= len(s.paths) {
		return nil, io.EOF
	}
	defer func() { s.idx++ }()
	if s.idx == 0 && s.first != nil {
		img := s.first
		s.first = nil
		return img, nil
	}
	img, err := imaging.Open(s.paths[s.idx])
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode frame %q", s.paths[s.idx])
	}
	return img, nil
}

// Size returns the frame dimensions of the sequence.
func (s *ImageSequence) Size() (int, int) { return s.width, s.height }

// Count returns the known number of frames.
func (s *ImageSequence) Count() int { return len(s.paths) }

// Close is a no-op for an on-disk sequence.
func (s *ImageSequence) Close() error { return nil }
